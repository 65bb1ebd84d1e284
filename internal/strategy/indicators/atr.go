package indicators

import (
	"context"
	"fmt"
	"math"

	"tradePilot/internal/domain"
)

// ATRConfig holds configuration for the Average True Range indicator.
type ATRConfig struct {
	IndicatorConfig
}

// ATR measures recent volatility as the Wilder-smoothed average true range.
// The protective-level calculator scales its stop and take-profit distances
// by this value.
type ATR struct {
	BaseIndicator
}

// NewATR creates an Average True Range indicator.
func NewATR(config ATRConfig) *ATR {
	return &ATR{BaseIndicator: BaseIndicator{Config: config.IndicatorConfig}}
}

func (a *ATR) Name() string {
	return "ATR"
}

// RequiredDataPoints is one more than the period: every true range past the
// first needs a previous close.
func (a *ATR) RequiredDataPoints() int {
	return a.Config.Period + 1
}

// Calculate seeds from a simple average of the first period of true ranges,
// then applies Wilder smoothing across the rest of the window.
func (a *ATR) Calculate(ctx context.Context, klines []*domain.Kline) (float64, error) {
	period := a.Config.Period
	if len(klines) < period+1 {
		return 0, fmt.Errorf("ATR over period %d needs %d klines, got %d", period, period+1, len(klines))
	}

	atr := 0.0
	for i := 0; i < period; i++ {
		atr += trueRange(klines, i)
	}
	atr /= float64(period)

	for i := period; i < len(klines); i++ {
		atr = (atr*float64(period-1) + trueRange(klines, i)) / float64(period)
	}
	return atr, nil
}

// trueRange is the bar's high-low range, extended across any gap from the
// prior close.
func trueRange(klines []*domain.Kline, i int) float64 {
	r := klines[i].High - klines[i].Low
	if i == 0 {
		return r
	}
	prev := klines[i-1].Close
	return math.Max(r, math.Max(math.Abs(klines[i].High-prev), math.Abs(klines[i].Low-prev)))
}
