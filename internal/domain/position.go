package domain

import "time"

// Position represents an open exposure in one instrument, one side, one mode.
// At most one Position may exist per (instrument, side, mode) tuple; the
// ledger enforces this, not the persistence layer.
type Position struct {
	ID         int64     // Unique identifier (usually from DB)
	Instrument string    // Trading instrument (e.g., "ETHUSDT")
	Side       Side      // long or short
	Mode       Mode      // live or paper
	Quantity   float64   // Size of the position
	EntryPrice float64   // Price at which the position was entered
	ExitPrice  float64   // Price at which the position was exited (0 if open)
	Leverage   int       // Leverage used (1 for spot)
	Horizon    Horizon   // Holding horizon chosen at entry
	EntryTime  time.Time // Timestamp when the position was entered
	ExitTime   time.Time // Timestamp when the position was exited (zero value if open)
	Status     PositionStatus
	PNL        float64 // Realized P&L (calculated on close)

	// Protective levels stored at entry time. Nil means the level was never
	// stored (e.g., a position restored from an older snapshot); rechecks
	// then fall back to recomputation against a configured default horizon.
	StopLoss   *float64
	TakeProfit *float64

	// Exchange order references for protective orders (nullable in DB).
	StopLossOrderID   *string
	TakeProfitOrderID *string

	CloseReason CloseReason
}

// IsOpen checks if the position status is open.
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen
}

// HasStoredLevels reports whether at least one protective level was stored
// with the position at entry time.
func (p *Position) HasStoredLevels() bool {
	return p.StopLoss != nil || p.TakeProfit != nil
}

// UnrealizedPNL returns the signed open P&L against the given price.
func (p *Position) UnrealizedPNL(currentPrice float64) float64 {
	return (currentPrice - p.EntryPrice) * p.Quantity * p.Side.Sign()
}
