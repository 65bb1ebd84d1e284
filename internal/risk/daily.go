package risk

import (
	"sync"
	"time"
)

// DailyTracker accumulates realized P&L for the current calendar day (UTC).
// The accumulator resets on the day boundary; rollover is checked lazily on
// every access so a long-running process never carries yesterday's losses
// into today's guardrail checks.
type DailyTracker struct {
	mu       sync.Mutex
	day      time.Time // Midnight UTC of the day being accumulated
	realized float64
}

// NewDailyTracker creates a tracker seeded with realized P&L already booked
// today, e.g. restored from the trade history at process start.
func NewDailyTracker(now time.Time, seedRealized float64) *DailyTracker {
	return &DailyTracker{
		day:      midnightUTC(now),
		realized: seedRealized,
	}
}

// AddRealized books realized P&L from a closed position.
func (t *DailyTracker) AddRealized(now time.Time, pnl float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover(now)
	t.realized += pnl
}

// Realized returns today's realized P&L, rolling the day over if needed.
func (t *DailyTracker) Realized(now time.Time) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover(now)
	return t.realized
}

// rollover resets the accumulator when the calendar day has changed.
// Caller must hold the mutex.
func (t *DailyTracker) rollover(now time.Time) {
	day := midnightUTC(now)
	if !day.Equal(t.day) {
		t.day = day
		t.realized = 0
	}
}

func midnightUTC(ts time.Time) time.Time {
	ts = ts.UTC()
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}
