// Package indicators holds the technical computations the strategies and the
// metrics builder share. Every indicator is pure: it derives one value from a
// kline window, oldest bar first, and keeps no state between calls.
package indicators

import (
	"context"

	"tradePilot/internal/domain"
)

// Indicator is a single technical computation over a kline window.
type Indicator interface {
	// Calculate derives the indicator value from the given klines.
	Calculate(ctx context.Context, klines []*domain.Kline) (float64, error)

	// RequiredDataPoints is the minimum kline count Calculate accepts.
	RequiredDataPoints() int

	Name() string
}

// IndicatorConfig holds the settings shared by every indicator.
type IndicatorConfig struct {
	Period int
}

// BaseIndicator carries the shared config and the default data requirement.
type BaseIndicator struct {
	Config IndicatorConfig
}

func (b *BaseIndicator) RequiredDataPoints() int {
	return b.Config.Period
}
