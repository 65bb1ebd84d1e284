package risk

import (
	"fmt"

	"tradePilot/internal/domain"
)

// HorizonParams is one immutable row of the horizon policy table. Rows are
// never mutated at runtime; hot reload replaces the whole table between
// cycles.
type HorizonParams struct {
	SLMultiplier  float64 // ATR multiplier for the stop-loss distance
	TPMultiplier  float64 // ATR multiplier for the take-profit distance
	SLPct         float64 // Fixed-percent stop fallback when ATR is unavailable
	TPPct         float64 // Fixed-percent take-profit fallback
	SizeFactor    float64 // Scales the risk-computed base quantity
	MinRiskReward float64 // Minimum acceptable take-profit/stop distance ratio
}

// Table maps a holding horizon to its policy row. The zero value is unusable;
// construct via DefaultTable or NewTable.
type Table struct {
	rows map[domain.Horizon]HorizonParams
}

// DefaultTable returns the compiled-in horizon policy.
func DefaultTable() Table {
	return Table{rows: map[domain.Horizon]HorizonParams{
		domain.HorizonShort: {
			SLMultiplier:  1.0,
			TPMultiplier:  1.5,
			SLPct:         0.01,
			TPPct:         0.015,
			SizeFactor:    0.5,
			MinRiskReward: 1.2,
		},
		domain.HorizonMedium: {
			SLMultiplier:  1.5,
			TPMultiplier:  3.0,
			SLPct:         0.02,
			TPPct:         0.04,
			SizeFactor:    1.0,
			MinRiskReward: 2.0,
		},
		domain.HorizonLong: {
			SLMultiplier:  2.5,
			TPMultiplier:  5.0,
			SLPct:         0.05,
			TPPct:         0.10,
			SizeFactor:    1.5,
			MinRiskReward: 2.0,
		},
	}}
}

// NewTable builds a table from explicit rows, validating each one. All three
// horizons must be present.
func NewTable(rows map[domain.Horizon]HorizonParams) (Table, error) {
	for _, h := range []domain.Horizon{domain.HorizonShort, domain.HorizonMedium, domain.HorizonLong} {
		p, ok := rows[h]
		if !ok {
			return Table{}, fmt.Errorf("horizon table missing row for %q", h)
		}
		if err := validateParams(h, p); err != nil {
			return Table{}, err
		}
	}
	copied := make(map[domain.Horizon]HorizonParams, len(rows))
	for h, p := range rows {
		copied[h] = p
	}
	return Table{rows: copied}, nil
}

func validateParams(h domain.Horizon, p HorizonParams) error {
	if p.SLMultiplier <= 0 || p.TPMultiplier <= 0 {
		return fmt.Errorf("horizon %q: ATR multipliers must be positive", h)
	}
	if p.SLPct <= 0 || p.SLPct >= 1 || p.TPPct <= 0 || p.TPPct >= 1 {
		return fmt.Errorf("horizon %q: fallback percentages must be in (0,1)", h)
	}
	if p.SizeFactor <= 0 {
		return fmt.Errorf("horizon %q: size factor must be positive", h)
	}
	if p.MinRiskReward <= 0 {
		return fmt.Errorf("horizon %q: minimum risk/reward must be positive", h)
	}
	return nil
}

// Get returns the policy row for the given horizon. Unknown horizons resolve
// to the medium row so an out-of-range review output cannot select an
// unbounded policy.
func (t Table) Get(h domain.Horizon) HorizonParams {
	if p, ok := t.rows[h]; ok {
		return p
	}
	return t.rows[domain.HorizonMedium]
}
