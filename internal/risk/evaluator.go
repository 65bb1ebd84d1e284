package risk

import (
	"fmt"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
)

// Rejection reason codes reported to the telemetry collaborator. Rejections
// are structured decisions, not exceptions; no instrument's rejection halts
// the cycle.
const (
	ReasonNoPosition     = "NO_POSITION"
	ReasonDailyLossLimit = "DAILY_LOSS_LIMIT"
	ReasonMaxPositions   = "MAX_OPEN_POSITIONS"
	ReasonDuplicate      = "DUPLICATE_POSITION"
	ReasonLeverageLimit  = "LEVERAGE_LIMIT"
	ReasonRiskReward     = "RR_TOO_LOW"
	ReasonLevelInversion = "LEVEL_INVERSION"
	ReasonZeroQuantity   = "ZERO_QUANTITY"
)

// LedgerView is the read-only slice of ledger state the evaluator needs.
// Implemented by *position.Ledger.
type LedgerView interface {
	// Count returns the number of open positions in the given mode.
	Count(mode domain.Mode) int
	// Find returns the open position for the exact key, if any.
	Find(instrument string, side domain.Side, mode domain.Mode) (*domain.Position, bool)
}

// Config holds the portfolio guardrail settings. Read-only for the evaluator;
// swapped wholesale on hot reload, never mutated mid-cycle.
type Config struct {
	MaxPositionPct   float64 // Fraction of balance committed to one entry
	MaxOpenPositions int
	MaxDailyLossPct  float64 // Entries blocked once today's loss would reach this fraction of balance
	MaxLeverage      int     // Derivative entries above this are rejected
	AdaptiveStops    bool    // Volatility-adaptive protective levels
	OverrideHalving  bool    // Halve quantity on entries accepted against consensus
}

// Request is a candidate trade for one instrument in one cycle. Every
// per-cycle derived value is threaded through explicitly so nothing can leak
// across instruments or cycles.
type Request struct {
	Instrument string
	Mode       domain.Mode
	Market     domain.MarketType
	Side       domain.Side // Direction of the position affected
	Exit       bool        // True when the request closes existing exposure
	Price      float64
	Balance    float64
	ATR        float64
	Horizon    domain.Horizon
	Leverage   int

	// StopLossPct and TakeProfitPct are review-supplied percentage hints
	// (0 means unset). They replace the horizon's fixed percentages in the
	// fallback path; adaptive ATR distances still take precedence.
	StopLossPct   float64
	TakeProfitPct float64

	// SuggestedSizePct is the externally suggested size as a fraction of
	// balance; 0 means no suggestion. The evaluator only ever sizes down
	// toward it, never up beyond its own risk computation.
	SuggestedSizePct float64

	// Override marks an entry accepted against strategy consensus; such
	// entries carry half size regardless of market type.
	Override bool

	// DailyPNL is today's realized plus unrealized P&L (signed; losses are
	// negative).
	DailyPNL float64
}

// Decision is the evaluator's verdict on a candidate trade.
type Decision struct {
	Approved   bool
	Quantity   float64
	StopLoss   float64
	TakeProfit float64
	RiskReward float64
	Reason     string // Reason code when rejected
	Err        error  // Sentinel error when rejected
}

// Evaluator sizes approved entries and enforces portfolio guardrails. It
// holds no per-cycle state; the ledger view and daily P&L arrive with each
// request. Mutating the ledger on approval is the caller's responsibility.
type Evaluator struct {
	cfg     Config
	horizon Table
	logger  ports.Logger
}

// NewEvaluator creates a sizing and guardrail evaluator.
func NewEvaluator(cfg Config, horizon Table, logger ports.Logger) (*Evaluator, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for evaluator")
	}
	if cfg.MaxPositionPct <= 0 || cfg.MaxPositionPct > 1 {
		return nil, fmt.Errorf("MaxPositionPct must be in (0,1], got %f", cfg.MaxPositionPct)
	}
	if cfg.MaxOpenPositions <= 0 {
		return nil, fmt.Errorf("MaxOpenPositions must be positive")
	}
	if cfg.MaxDailyLossPct <= 0 || cfg.MaxDailyLossPct >= 1 {
		return nil, fmt.Errorf("MaxDailyLossPct must be in (0,1), got %f", cfg.MaxDailyLossPct)
	}
	return &Evaluator{cfg: cfg, horizon: horizon, logger: logger}, nil
}

// Reconfigure swaps the guardrail settings and horizon table. Called between
// cycles only.
func (e *Evaluator) Reconfigure(cfg Config, horizon Table) {
	e.cfg = cfg
	e.horizon = horizon
}

// Evaluate runs the ordered guardrail checks and, for entries, computes the
// position size and protective levels. Checks short-circuit on the first
// failure. The method has no side effects beyond the returned decision.
func (e *Evaluator) Evaluate(req Request, ledger LedgerView) Decision {
	// 1. Exits bypass every guardrail: reducing exposure is always allowed.
	if req.Exit {
		pos, ok := ledger.Find(req.Instrument, req.Side, req.Mode)
		if !ok {
			return Decision{Reason: ReasonNoPosition, Err: ports.ErrPositionNotFound}
		}
		return Decision{Approved: true, Quantity: pos.Quantity}
	}

	// 2. Daily loss cap blocks new entries only. The full check, including
	// the candidate's own stop risk, runs once the quantity and levels are
	// known; a loss already at the cap short-circuits here.
	if req.DailyPNL < 0 && -req.DailyPNL >= e.cfg.MaxDailyLossPct*req.Balance {
		return Decision{Reason: ReasonDailyLossLimit, Err: fmt.Errorf(
			"daily loss %.2f at or beyond %.1f%% of balance %.2f: %w",
			-req.DailyPNL, e.cfg.MaxDailyLossPct*100, req.Balance, ports.ErrGuardrailBreached)}
	}

	// 3. Portfolio-wide position count.
	if ledger.Count(req.Mode) >= e.cfg.MaxOpenPositions {
		return Decision{Reason: ReasonMaxPositions, Err: fmt.Errorf(
			"open positions at limit %d: %w", e.cfg.MaxOpenPositions, ports.ErrGuardrailBreached)}
	}

	// 4. No pyramiding.
	if _, ok := ledger.Find(req.Instrument, req.Side, req.Mode); ok {
		return Decision{Reason: ReasonDuplicate, Err: ports.ErrDuplicatePosition}
	}

	// Margin/leverage limit applies to derivative entries.
	if req.Market == domain.MarketFutures && e.cfg.MaxLeverage > 0 && req.Leverage > e.cfg.MaxLeverage {
		return Decision{Reason: ReasonLeverageLimit, Err: fmt.Errorf(
			"leverage %d exceeds maximum %d: %w", req.Leverage, e.cfg.MaxLeverage, ports.ErrGuardrailBreached)}
	}

	params := e.horizon.Get(req.Horizon)

	// 5. Size: risk-computed base scaled by the horizon factor, then capped
	// by the external suggestion. Sizing only ever goes down from here.
	if req.Price <= 0 || req.Balance <= 0 {
		return Decision{Reason: ReasonZeroQuantity, Err: fmt.Errorf(
			"price %.4f balance %.2f: %w", req.Price, req.Balance, ports.ErrInvalidRequest)}
	}
	quantity := req.Balance * e.cfg.MaxPositionPct / req.Price * params.SizeFactor
	if req.SuggestedSizePct > 0 {
		suggested := req.Balance * req.SuggestedSizePct / req.Price
		if suggested < quantity {
			quantity = suggested
		}
	}
	if quantity <= 0 {
		return Decision{Reason: ReasonZeroQuantity, Err: fmt.Errorf(
			"computed quantity is zero: %w", ports.ErrInvalidRequest)}
	}

	// 6. Protective levels and risk/reward gate. Review-supplied percentage
	// hints narrow the fixed-percentage fallback.
	if req.StopLossPct > 0 && req.StopLossPct < 1 {
		params.SLPct = req.StopLossPct
	}
	if req.TakeProfitPct > 0 && req.TakeProfitPct < 1 {
		params.TPPct = req.TakeProfitPct
	}
	stopLoss, takeProfit, err := ComputeLevels(req.Side, req.Price, req.ATR, params, e.cfg.AdaptiveStops)
	if err != nil {
		return Decision{Reason: ReasonLevelInversion, Err: err}
	}
	rr := RiskReward(req.Price, stopLoss, takeProfit)
	if rr < params.MinRiskReward {
		return Decision{
			RiskReward: rr,
			Reason:     ReasonRiskReward,
			Err: fmt.Errorf("risk/reward %.2f below minimum %.2f: %w",
				rr, params.MinRiskReward, ports.ErrInsufficientRiskReward),
		}
	}

	// 7. Override entries carry half size. Applies to every market type.
	if req.Override && e.cfg.OverrideHalving {
		quantity /= 2
	}

	// 8. Projected daily loss. An entry is blocked when its worst case, the
	// stop-loss being hit, would carry today's loss to the cap.
	lossSoFar := 0.0
	if req.DailyPNL < 0 {
		lossSoFar = -req.DailyPNL
	}
	stopRisk := quantity * abs(req.Price-stopLoss)
	if lossSoFar+stopRisk >= e.cfg.MaxDailyLossPct*req.Balance {
		return Decision{Reason: ReasonDailyLossLimit, Err: fmt.Errorf(
			"loss %.2f plus stop risk %.2f reaches %.1f%% of balance %.2f: %w",
			lossSoFar, stopRisk, e.cfg.MaxDailyLossPct*100, req.Balance, ports.ErrGuardrailBreached)}
	}

	return Decision{
		Approved:   true,
		Quantity:   quantity,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		RiskReward: rr,
	}
}
