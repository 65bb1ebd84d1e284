package domain

import "time"

// Trade represents a completed round trip: a position that was opened and
// later closed. Written to the trade history on every qualifying exit.
type Trade struct {
	ID          int64       // Unique identifier (usually from DB)
	PositionID  int64       // Identifier of the position this trade closed
	Instrument  string      // Trading instrument (e.g., "ETHUSDT")
	Side        Side        // Direction of the closed position
	Mode        Mode        // Operating mode the position belonged to
	EntryPrice  float64     // Price at which the position was entered
	ExitPrice   float64     // Price at which the position was exited
	Quantity    float64     // Size of the position traded
	Leverage    int         // Leverage used for the position
	PNL         float64     // Signed profit and loss for this trade
	EntryTime   time.Time   // Timestamp when the position was entered
	ExitTime    time.Time   // Timestamp when the position was exited
	CloseReason CloseReason // Reason why the position was closed (SL, TP, etc.)
}
