package domain

// Side represents the direction of an open position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Sign returns +1 for a long position and -1 for a short one.
// Used for signed P&L calculations.
func (s Side) Sign() float64 {
	if s == SideShort {
		return -1
	}
	return 1
}

// Mode represents the operating mode a position belongs to.
type Mode string

const (
	ModeLive  Mode = "live"
	ModePaper Mode = "paper"
)

// MarketType distinguishes spot holdings from derivative positions.
// Spot positions are always conceptually long; shorts require derivatives.
type MarketType string

const (
	MarketSpot    MarketType = "spot"
	MarketFutures MarketType = "futures"
)

// Horizon is a coarse holding-period intent that parameterises
// stop/take-profit distance and position size.
type Horizon string

const (
	HorizonShort  Horizon = "short"
	HorizonMedium Horizon = "medium"
	HorizonLong   Horizon = "long"
)

// IsValid reports whether h is one of the known horizons.
func (h Horizon) IsValid() bool {
	switch h {
	case HorizonShort, HorizonMedium, HorizonLong:
		return true
	}
	return false
}

// OrderSide represents the side of an exchange order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// PositionStatus represents the status of a trading position.
type PositionStatus string

const (
	StatusOpen   PositionStatus = "open"
	StatusClosed PositionStatus = "closed"
)

// CloseReason indicates why a position was closed.
type CloseReason string

const (
	CloseReasonStopLoss   CloseReason = "SL"
	CloseReasonTakeProfit CloseReason = "TP"
	CloseReasonSignal     CloseReason = "SIGNAL"
	CloseReasonManual     CloseReason = "MANUAL"
	CloseReasonUnknown    CloseReason = "UNKNOWN"
)
