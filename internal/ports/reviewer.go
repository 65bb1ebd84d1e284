package ports

import (
	"context"

	"tradePilot/internal/domain"
)

// ReviewRequest carries everything the external policy-review step needs to
// arbitrate the cycle's strategy verdicts for one instrument.
type ReviewRequest struct {
	Instrument string
	Mode       domain.Mode
	Metrics    domain.RiskMetrics
	Verdicts   []domain.Verdict
	Exposure   []*domain.Position // Current open positions on the instrument
	Balance    float64
}

// Reviewer arbitrates conflicting strategy signals into a final decision.
// Implementations carry a hard timeout; on timeout or any failure the caller
// must treat the cycle's decision as hold rather than fall back to executing
// the raw, unreviewed signal.
type Reviewer interface {
	Review(ctx context.Context, req ReviewRequest) (*domain.ReviewDecision, error)
}
