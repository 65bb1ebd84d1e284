package indicators

import (
	"context"
	"fmt"
	"math"

	"tradePilot/internal/domain"
)

// BollingerConfig holds configuration for the Bollinger Bands indicator
type BollingerConfig struct {
	IndicatorConfig
	StdDevMultiplier float64 // Band width in standard deviations (e.g., 2.0)
}

// Bollinger implements the Bollinger Bands indicator
type Bollinger struct {
	BaseIndicator
	config BollingerConfig
}

// NewBollinger creates a new Bollinger Bands indicator instance
func NewBollinger(config BollingerConfig) *Bollinger {
	if config.StdDevMultiplier == 0 {
		config.StdDevMultiplier = 2.0
	}
	return &Bollinger{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		config:        config,
	}
}

// Name returns the name of the indicator
func (b *Bollinger) Name() string {
	return "BBANDS"
}

// Calculate returns the position of the latest close inside the band, scaled
// to [0,1]: 0 at the lower band, 1 at the upper band, 0.5 at the middle.
// Values are clamped when price trades outside the bands.
func (b *Bollinger) Calculate(ctx context.Context, klines []*domain.Kline) (float64, error) {
	lower, _, upper, err := b.Bands(klines)
	if err != nil {
		return 0, err
	}
	width := upper - lower
	if width == 0 {
		return 0.5, nil
	}
	pos := (klines[len(klines)-1].Close - lower) / width
	return math.Max(0, math.Min(1, pos)), nil
}

// Bands computes the lower, middle and upper band values.
func (b *Bollinger) Bands(klines []*domain.Kline) (lower, middle, upper float64, err error) {
	period := b.Config.Period
	if len(klines) < period {
		return 0, 0, 0, fmt.Errorf("not enough data points for Bollinger calculation: need %d, got %d", period, len(klines))
	}

	window := klines[len(klines)-period:]
	sum := 0.0
	for _, k := range window {
		sum += k.Close
	}
	middle = sum / float64(period)

	variance := 0.0
	for _, k := range window {
		d := k.Close - middle
		variance += d * d
	}
	stdDev := math.Sqrt(variance / float64(period))

	lower = middle - b.config.StdDevMultiplier*stdDev
	upper = middle + b.config.StdDevMultiplier*stdDev
	return lower, middle, upper, nil
}
