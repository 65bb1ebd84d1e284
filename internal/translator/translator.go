// Package translator maps directional decisions onto concrete open/close
// actions given current exposure: the long/short/cover state machine.
package translator

import (
	"fmt"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
)

// State is the exposure state for one instrument in one mode.
type State int

const (
	Flat State = iota
	Long
	Short
)

func (s State) String() string {
	switch s {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "flat"
	}
}

// Plan is the concrete action resolved from a decision and current state.
type Plan struct {
	Side domain.Side // Direction of the position affected
	Exit bool        // True when the plan closes existing exposure
}

// ExposureReader is the slice of ledger state the translator needs.
type ExposureReader interface {
	Find(instrument string, side domain.Side, mode domain.Mode) (*domain.Position, bool)
}

// StateOf derives the translator state from current ledger exposure.
// A simultaneous long and short on one instrument resolves per requested
// side at plan time, so state here prefers reporting the long leg.
func StateOf(ledger ExposureReader, instrument string, mode domain.Mode) State {
	if _, ok := ledger.Find(instrument, domain.SideLong, mode); ok {
		return Long
	}
	if _, ok := ledger.Find(instrument, domain.SideShort, mode); ok {
		return Short
	}
	return Flat
}

// Resolve validates an action against current exposure and returns the
// concrete plan. Hold never yields a plan. Explicit short/cover actions are
// validated the same way as translated buy/sell verdicts so a review output
// built on stale exposure cannot slip through.
//
// Transitions happen only through approved ledger mutations, never
// speculatively; Resolve itself is read-only.
func Resolve(action domain.Action, market domain.MarketType, ledger ExposureReader, instrument string, mode domain.Mode) (Plan, error) {
	if !action.IsValid() {
		return Plan{}, fmt.Errorf("action %q outside enumeration: %w", action, ports.ErrInvalidRequest)
	}
	if action == domain.ActionHold {
		return Plan{}, fmt.Errorf("hold resolves to no action: %w", ports.ErrInvalidRequest)
	}

	_, hasLong := ledger.Find(instrument, domain.SideLong, mode)
	_, hasShort := ledger.Find(instrument, domain.SideShort, mode)

	switch action {
	case domain.ActionBuy:
		// A buy-like verdict against a short covers it first.
		if hasShort {
			return Plan{Side: domain.SideShort, Exit: true}, nil
		}
		if hasLong {
			return Plan{}, fmt.Errorf("already long %s: %w", instrument, ports.ErrDuplicatePosition)
		}
		return Plan{Side: domain.SideLong}, nil

	case domain.ActionSell:
		if hasLong {
			return Plan{Side: domain.SideLong, Exit: true}, nil
		}
		// A sell-like verdict while flat opens a short on derivatives only.
		if market != domain.MarketFutures {
			return Plan{}, fmt.Errorf("sell while flat on spot market %s: %w", instrument, ports.ErrStaleExposureConflict)
		}
		if hasShort {
			return Plan{}, fmt.Errorf("already short %s: %w", instrument, ports.ErrDuplicatePosition)
		}
		return Plan{Side: domain.SideShort}, nil

	case domain.ActionShort:
		if market != domain.MarketFutures {
			return Plan{}, fmt.Errorf("short on spot market %s: %w", instrument, ports.ErrStaleExposureConflict)
		}
		if hasShort {
			return Plan{}, fmt.Errorf("already short %s: %w", instrument, ports.ErrDuplicatePosition)
		}
		// Opposite-side exclusion: no short while a long is open on the
		// same instrument.
		if hasLong {
			return Plan{}, fmt.Errorf("open long conflicts with short on %s: %w", instrument, ports.ErrStaleExposureConflict)
		}
		return Plan{Side: domain.SideShort}, nil

	case domain.ActionCover:
		if !hasShort {
			return Plan{}, fmt.Errorf("cover with no short on %s: %w", instrument, ports.ErrStaleExposureConflict)
		}
		return Plan{Side: domain.SideShort, Exit: true}, nil
	}

	return Plan{}, fmt.Errorf("unhandled action %q: %w", action, ports.ErrInvalidRequest)
}
