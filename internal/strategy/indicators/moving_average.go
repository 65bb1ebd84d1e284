package indicators

import (
	"context"
	"fmt"

	"tradePilot/internal/domain"
)

// MovingAverageType selects the averaging method.
type MovingAverageType string

const (
	SimpleMovingAverage      MovingAverageType = "SMA"
	ExponentialMovingAverage MovingAverageType = "EMA"
)

// MovingAverageConfig holds configuration for a moving average.
type MovingAverageConfig struct {
	IndicatorConfig
	Type MovingAverageType
}

// MovingAverage averages closes over the configured period, either simply or
// with exponential weighting.
type MovingAverage struct {
	BaseIndicator
	config MovingAverageConfig
}

// NewMovingAverage creates a moving average of the given type and period.
func NewMovingAverage(config MovingAverageConfig) *MovingAverage {
	return &MovingAverage{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		config:        config,
	}
}

func (m *MovingAverage) Name() string {
	return string(m.config.Type)
}

// Calculate returns the average over the most recent closes. The EMA seeds
// from a simple average of the first period and folds in every later close.
func (m *MovingAverage) Calculate(ctx context.Context, klines []*domain.Kline) (float64, error) {
	period := m.Config.Period
	if len(klines) < period {
		return 0, fmt.Errorf("%s over period %d needs %d klines, got %d", m.Name(), period, period, len(klines))
	}

	switch m.config.Type {
	case SimpleMovingAverage:
		return meanClose(klines[len(klines)-period:]), nil
	case ExponentialMovingAverage:
		weight := 2.0 / float64(period+1)
		ema := meanClose(klines[:period])
		for _, k := range klines[period:] {
			ema += (k.Close - ema) * weight
		}
		return ema, nil
	default:
		return 0, fmt.Errorf("unknown moving average type %q", m.config.Type)
	}
}

func meanClose(klines []*domain.Kline) float64 {
	sum := 0.0
	for _, k := range klines {
		sum += k.Close
	}
	return sum / float64(len(klines))
}
