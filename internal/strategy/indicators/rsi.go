package indicators

import (
	"context"
	"fmt"

	"tradePilot/internal/domain"
)

// RSIConfig holds configuration for the RSI indicator.
type RSIConfig struct {
	IndicatorConfig
	Overbought float64
	Oversold   float64
}

// RSI computes the Relative Strength Index with Wilder smoothing.
type RSI struct {
	BaseIndicator
	config RSIConfig
}

// NewRSI creates an RSI indicator.
func NewRSI(config RSIConfig) *RSI {
	return &RSI{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		config:        config,
	}
}

func (r *RSI) Name() string {
	return "RSI"
}

// RequiredDataPoints is one more than the period: the first change needs a
// previous close.
func (r *RSI) RequiredDataPoints() int {
	return r.Config.Period + 1
}

// Calculate returns the RSI of the window, in [0,100]. The averages seed
// from the first period of changes and decay by Wilder's factor after that.
func (r *RSI) Calculate(ctx context.Context, klines []*domain.Kline) (float64, error) {
	period := r.Config.Period
	if len(klines) <= period {
		return 0, fmt.Errorf("RSI over period %d needs %d klines, got %d", period, period+1, len(klines))
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := klines[i].Close - klines[i-1].Close
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	gain /= float64(period)
	loss /= float64(period)

	decay := float64(period-1) / float64(period)
	for i := period + 1; i < len(klines); i++ {
		d := klines[i].Close - klines[i-1].Close
		gain *= decay
		loss *= decay
		if d > 0 {
			gain += d / float64(period)
		} else {
			loss -= d / float64(period)
		}
	}

	if loss == 0 {
		if gain == 0 {
			// A perfectly flat window has no momentum either way.
			return 50, nil
		}
		return 100, nil
	}
	return 100 - 100/(1+gain/loss), nil
}

// IsOverbought reports whether the value is at or above the configured
// overbought threshold.
func (r *RSI) IsOverbought(value float64) bool {
	return value >= r.config.Overbought
}

// IsOversold reports whether the value is at or below the configured
// oversold threshold.
func (r *RSI) IsOversold(value float64) bool {
	return value <= r.config.Oversold
}
