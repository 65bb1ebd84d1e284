package domain

// Signal is the raw directional opinion of a single strategy.
type Signal string

const (
	SignalBuy  Signal = "buy"
	SignalSell Signal = "sell"
	SignalHold Signal = "hold"
)

// Verdict is one strategy's opinion on an instrument for the current cycle.
type Verdict struct {
	Strategy   string  // Name of the strategy that produced the verdict
	Signal     Signal  // buy, sell or hold
	Confidence float64 // [0,1]
}

// Action is the final directional decision after policy review.
type Action string

const (
	ActionBuy   Action = "buy"
	ActionSell  Action = "sell"
	ActionHold  Action = "hold"
	ActionShort Action = "short"
	ActionCover Action = "cover"
)

// IsValid reports whether a is one of the enumerated actions. Anything
// outside the enumeration must be treated as hold, never defaulted
// ambiguously.
func (a Action) IsValid() bool {
	switch a {
	case ActionBuy, ActionSell, ActionHold, ActionShort, ActionCover:
		return true
	}
	return false
}

// IsExit reports whether the action closes existing exposure.
func (a Action) IsExit() bool {
	return a == ActionSell || a == ActionCover
}

// ReviewDecision is the authoritative output of the external policy-review
// step: a validated directional/sizing hint, still subject to every
// guardrail check before execution.
type ReviewDecision struct {
	Action          Action  // buy, sell, hold, short, cover
	Confidence      float64 // [0,1]
	StopLossPct     float64 // Optional; 0 means unset
	TakeProfitPct   float64 // Optional; 0 means unset
	PositionSizePct float64 // Suggested fraction of balance; 0 means unset
	Horizon         Horizon // short, medium or long
	Reasoning       string  // Free-form explanation, logged only
}

// RiskMetrics is the per-instrument, per-cycle bundle of computed technical
// context. Ephemeral: recomputed every cycle, never the source of truth for
// an open position's protective levels.
type RiskMetrics struct {
	Instrument   string
	Price        float64
	ATR          float64
	Support      float64 // 0 if not determined
	Resistance   float64 // 0 if not determined
	BandPosition float64 // Position inside the Bollinger band, [0,1]; 0.5 = mid
}

// ExecutionRequest is what the core hands to the order-execution
// collaborator. The core never calls an exchange directly.
type ExecutionRequest struct {
	DecisionID      string // ULID identifying the originating decision
	Instrument      string
	Side            Side
	Quantity        float64
	StopLossPrice   float64
	TakeProfitPrice float64
	Leverage        int
	Mode            Mode
}
