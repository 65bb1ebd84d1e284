package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"tradePilot/internal/domain"
	"tradePilot/internal/risk"
)

// horizonRow mirrors one horizon policy entry in the YAML file.
type horizonRow struct {
	SLMultiplier  float64 `yaml:"sl_multiplier"`
	TPMultiplier  float64 `yaml:"tp_multiplier"`
	SLPct         float64 `yaml:"sl_pct"`
	TPPct         float64 `yaml:"tp_pct"`
	SizeFactor    float64 `yaml:"size_factor"`
	MinRiskReward float64 `yaml:"min_risk_reward"`
}

// restorePolicy mirrors the restore section of the YAML file.
type restorePolicy struct {
	FallbackHorizon string `yaml:"fallback_horizon"`
	RequireLevels   bool   `yaml:"require_levels"`
}

// Policy is the hot-reloadable risk policy. The service re-reads it between
// cycles; values are never mutated mid-cycle.
type Policy struct {
	MaxPositionPct   float64               `yaml:"max_position_pct"`
	MaxOpenPositions int                   `yaml:"max_open_positions"`
	MaxDailyLossPct  float64               `yaml:"max_daily_loss_pct"`
	MaxLeverage      int                   `yaml:"max_leverage"`
	AdaptiveStops    bool                  `yaml:"adaptive_stops"`
	OverrideHalving  bool                  `yaml:"override_halving"`
	ATRPeriod        int                   `yaml:"atr_period"`
	Horizons         map[string]horizonRow `yaml:"horizons"`
	Restore          restorePolicy         `yaml:"restore"`
}

// DefaultPolicy returns the policy used when no YAML file is present.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxPositionPct:   0.10,
		MaxOpenPositions: 3,
		MaxDailyLossPct:  0.05,
		MaxLeverage:      5,
		AdaptiveStops:    true,
		OverrideHalving:  true,
		ATRPeriod:        14,
		Restore: restorePolicy{
			FallbackHorizon: string(domain.HorizonMedium),
			RequireLevels:   false,
		},
	}
}

// LoadPolicy reads the risk policy file. A missing file yields the defaults;
// a malformed file is an error, never a silent fallback.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPolicy(), nil
		}
		return nil, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}

	p := DefaultPolicy()
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("invalid policy file %s: %w", path, err)
	}
	return p, nil
}

func (p *Policy) validate() error {
	if p.MaxPositionPct <= 0 || p.MaxPositionPct > 1 {
		return fmt.Errorf("max_position_pct must be in (0,1]")
	}
	if p.MaxOpenPositions <= 0 {
		return fmt.Errorf("max_open_positions must be positive")
	}
	if p.MaxDailyLossPct <= 0 || p.MaxDailyLossPct >= 1 {
		return fmt.Errorf("max_daily_loss_pct must be in (0,1)")
	}
	if p.ATRPeriod <= 0 {
		return fmt.Errorf("atr_period must be positive")
	}
	if !domain.Horizon(p.Restore.FallbackHorizon).IsValid() {
		return fmt.Errorf("restore.fallback_horizon %q is not a known horizon", p.Restore.FallbackHorizon)
	}
	return nil
}

// HorizonTable builds the risk horizon table: compiled-in defaults overlaid
// with any rows present in the policy file.
func (p *Policy) HorizonTable() (risk.Table, error) {
	if len(p.Horizons) == 0 {
		return risk.DefaultTable(), nil
	}

	rows := make(map[domain.Horizon]risk.HorizonParams)
	defaults := risk.DefaultTable()
	for _, h := range []domain.Horizon{domain.HorizonShort, domain.HorizonMedium, domain.HorizonLong} {
		rows[h] = defaults.Get(h)
	}
	for name, row := range p.Horizons {
		h := domain.Horizon(name)
		if !h.IsValid() {
			return risk.Table{}, fmt.Errorf("unknown horizon %q in policy file", name)
		}
		rows[h] = risk.HorizonParams{
			SLMultiplier:  row.SLMultiplier,
			TPMultiplier:  row.TPMultiplier,
			SLPct:         row.SLPct,
			TPPct:         row.TPPct,
			SizeFactor:    row.SizeFactor,
			MinRiskReward: row.MinRiskReward,
		}
	}
	return risk.NewTable(rows)
}

// EvaluatorConfig maps the policy onto the guardrail evaluator settings.
func (p *Policy) EvaluatorConfig() risk.Config {
	return risk.Config{
		MaxPositionPct:   p.MaxPositionPct,
		MaxOpenPositions: p.MaxOpenPositions,
		MaxDailyLossPct:  p.MaxDailyLossPct,
		MaxLeverage:      p.MaxLeverage,
		AdaptiveStops:    p.AdaptiveStops,
		OverrideHalving:  p.OverrideHalving,
	}
}

// FallbackHorizon returns the horizon used to recheck restored positions
// that carry no stored protective levels.
func (p *Policy) FallbackHorizon() domain.Horizon {
	return domain.Horizon(p.Restore.FallbackHorizon)
}
