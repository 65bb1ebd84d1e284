package ports

import (
	"context"

	"tradePilot/internal/domain"
)

// Strategy produces a directional verdict for an instrument. The risk engine
// consumes verdicts, it never generates them.
type Strategy interface {
	// Name identifies the strategy in verdict summaries and logs.
	Name() string

	// RequiredDataPoints returns the minimum number of klines needed for the
	// strategy calculations.
	RequiredDataPoints() int

	// Evaluate returns the strategy's verdict for the given candle history.
	Evaluate(ctx context.Context, klines []*domain.Kline, currentPrice float64) (domain.Verdict, error)
}
