// Package position owns the set of open positions for the process lifetime.
// All mutations go through the Ledger; other components only read snapshots
// and request mutations through its public operations.
package position

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
	"tradePilot/internal/risk"
)

// TriggerResult classifies the outcome of a protective-level recheck.
type TriggerResult int

const (
	TriggerNone TriggerResult = iota
	TriggerStopLoss
	TriggerTakeProfit
)

// Trigger pairs a position with its recheck outcome for the cycle.
type Trigger struct {
	Position *domain.Position
	Result   TriggerResult
}

// FallbackPolicy governs rechecks of positions restored without stored
// protective levels. The fallback path is a last resort, gated explicitly
// behind "levels were never stored"; it must not become the routine path or
// protective levels visibly jump between cycles as horizons drift.
type FallbackPolicy struct {
	Horizon       domain.Horizon // Horizon used to recompute missing levels
	Table         risk.Table
	AdaptiveStops bool
	// RequireLevels makes restoring a position without stored levels a
	// startup error instead of allowing the lazy fallback.
	RequireLevels bool
}

type key struct {
	instrument string
	side       domain.Side
	mode       domain.Mode
}

// Ledger is the only mutable shared resource of the risk engine. Operations
// are atomic with respect to concurrent readers via a process-wide mutex.
type Ledger struct {
	mu        sync.RWMutex
	positions map[key]*domain.Position

	posRepo   ports.PositionRepository
	tradeRepo ports.TradeRepository
	logger    ports.Logger
	fallback  FallbackPolicy
}

// NewLedger creates an empty ledger. Call Restore before the first cycle to
// rehydrate open positions from storage.
func NewLedger(posRepo ports.PositionRepository, tradeRepo ports.TradeRepository, logger ports.Logger, fallback FallbackPolicy) (*Ledger, error) {
	if posRepo == nil || tradeRepo == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for ledger")
	}
	if !fallback.Horizon.IsValid() {
		return nil, fmt.Errorf("invalid fallback horizon %q", fallback.Horizon)
	}
	return &Ledger{
		positions: make(map[key]*domain.Position),
		posRepo:   posRepo,
		tradeRepo: tradeRepo,
		logger:    logger,
		fallback:  fallback,
	}, nil
}

// Restore rehydrates open positions for the given mode from storage. Stored
// protective levels that are absent stay unset; recomputation happens lazily
// through the recheck fallback, never eagerly here.
func (l *Ledger) Restore(ctx context.Context, mode domain.Mode) (int, error) {
	open, err := l.posRepo.FindOpen(ctx, mode)
	if err != nil {
		return 0, fmt.Errorf("failed to load open positions: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, pos := range open {
		if l.fallback.RequireLevels && !pos.HasStoredLevels() {
			return 0, fmt.Errorf("position %d (%s %s) restored without protective levels: %w",
				pos.ID, pos.Instrument, pos.Side, ports.ErrConfigurationError)
		}
		k := key{pos.Instrument, pos.Side, pos.Mode}
		if _, exists := l.positions[k]; exists {
			return 0, fmt.Errorf("storage holds two open positions for %s/%s/%s: %w",
				pos.Instrument, pos.Side, pos.Mode, ports.ErrDuplicatePosition)
		}
		l.positions[k] = pos
		if !pos.HasStoredLevels() {
			l.logger.Warn(ctx, "Restored position without stored protective levels; rechecks will use fallback horizon",
				map[string]interface{}{"positionID": pos.ID, "instrument": pos.Instrument, "fallbackHorizon": l.fallback.Horizon})
		}
	}
	return len(l.positions), nil
}

// Add registers a new open position and persists it. Protective levels are
// stored verbatim; the caller is expected to have computed them before the
// entry was executed.
func (l *Ledger) Add(ctx context.Context, pos *domain.Position) error {
	if pos == nil {
		return fmt.Errorf("position is nil: %w", ports.ErrInvalidRequest)
	}
	k := key{pos.Instrument, pos.Side, pos.Mode}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.positions[k]; exists {
		return fmt.Errorf("%s/%s/%s: %w", pos.Instrument, pos.Side, pos.Mode, ports.ErrDuplicatePosition)
	}

	pos.Status = domain.StatusOpen
	id, err := l.posRepo.Create(ctx, pos)
	if err != nil {
		return fmt.Errorf("failed to persist position: %w", err)
	}
	pos.ID = id
	l.positions[k] = pos

	l.logger.Info(ctx, "Position opened", map[string]interface{}{
		"positionID": pos.ID,
		"instrument": pos.Instrument,
		"side":       pos.Side,
		"mode":       pos.Mode,
		"quantity":   pos.Quantity,
		"entryPrice": pos.EntryPrice,
		"horizon":    pos.Horizon,
	})
	return nil
}

// CheckProtective rechecks stored stop-loss/take-profit levels for every open
// position on the instrument in the given mode. Stored levels are
// authoritative until exit; only a position with neither level stored falls
// back to levels recomputed at the configured fallback horizon against the
// current ATR.
//
// The method is read-only: calling it twice with an unchanged price yields
// the same result and cannot double-close a position.
func (l *Ledger) CheckProtective(ctx context.Context, instrument string, mode domain.Mode, currentPrice, atr float64) []Trigger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Trigger
	for _, side := range []domain.Side{domain.SideLong, domain.SideShort} {
		pos, ok := l.positions[key{instrument, side, mode}]
		if !ok {
			continue
		}
		cp := *pos
		out = append(out, Trigger{Position: &cp, Result: l.evaluateTrigger(ctx, pos, currentPrice, atr)})
	}
	return out
}

func (l *Ledger) evaluateTrigger(ctx context.Context, pos *domain.Position, currentPrice, atr float64) TriggerResult {
	stopLoss, takeProfit := pos.StopLoss, pos.TakeProfit
	if !pos.HasStoredLevels() {
		params := l.fallback.Table.Get(l.fallback.Horizon)
		sl, tp, err := risk.ComputeLevels(pos.Side, pos.EntryPrice, atr, params, l.fallback.AdaptiveStops)
		if err != nil {
			l.logger.Error(ctx, err, "Fallback level computation failed; position unprotected this cycle",
				map[string]interface{}{"positionID": pos.ID, "instrument": pos.Instrument})
			return TriggerNone
		}
		stopLoss, takeProfit = &sl, &tp
	}

	switch pos.Side {
	case domain.SideLong:
		if stopLoss != nil && currentPrice <= *stopLoss {
			return TriggerStopLoss
		}
		if takeProfit != nil && currentPrice >= *takeProfit {
			return TriggerTakeProfit
		}
	case domain.SideShort:
		if stopLoss != nil && currentPrice >= *stopLoss {
			return TriggerStopLoss
		}
		if takeProfit != nil && currentPrice <= *takeProfit {
			return TriggerTakeProfit
		}
	}
	return TriggerNone
}

// Close removes the position for the key, persists the closed state, books a
// trade-history row and returns the signed realized P&L.
func (l *Ledger) Close(ctx context.Context, instrument string, side domain.Side, mode domain.Mode, exitPrice float64, reason domain.CloseReason) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{instrument, side, mode}
	pos, ok := l.positions[k]
	if !ok {
		return 0, fmt.Errorf("%s/%s/%s: %w", instrument, side, mode, ports.ErrPositionNotFound)
	}

	pnl := (exitPrice - pos.EntryPrice) * pos.Quantity * side.Sign()
	now := time.Now().UTC()

	pos.ExitPrice = exitPrice
	pos.ExitTime = now
	pos.Status = domain.StatusClosed
	pos.PNL = pnl
	pos.CloseReason = reason

	if err := l.posRepo.Update(ctx, pos); err != nil {
		// Roll the in-memory state back so the position is not lost from
		// tracking while storage still shows it open.
		pos.Status = domain.StatusOpen
		pos.ExitPrice = 0
		pos.ExitTime = time.Time{}
		pos.PNL = 0
		pos.CloseReason = ""
		return 0, fmt.Errorf("failed to persist closed position %d: %w", pos.ID, err)
	}
	delete(l.positions, k)

	trade := &domain.Trade{
		PositionID:  pos.ID,
		Instrument:  pos.Instrument,
		Side:        pos.Side,
		Mode:        pos.Mode,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   exitPrice,
		Quantity:    pos.Quantity,
		Leverage:    pos.Leverage,
		PNL:         pnl,
		EntryTime:   pos.EntryTime,
		ExitTime:    now,
		CloseReason: reason,
	}
	if _, err := l.tradeRepo.CreateTrade(ctx, trade); err != nil {
		// The position is already closed; history is best effort.
		l.logger.Error(ctx, err, "Failed to record trade history", map[string]interface{}{"positionID": pos.ID})
	}

	l.logger.Info(ctx, "Position closed", map[string]interface{}{
		"positionID": pos.ID,
		"instrument": instrument,
		"side":       side,
		"exitPrice":  exitPrice,
		"pnl":        pnl,
		"reason":     reason,
	})
	return pnl, nil
}

// UpdateLevels amends the stored protective levels and order references for
// an open position and persists the change.
func (l *Ledger) UpdateLevels(ctx context.Context, instrument string, side domain.Side, mode domain.Mode, stopLoss, takeProfit *float64, slOrderID, tpOrderID *string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[key{instrument, side, mode}]
	if !ok {
		return fmt.Errorf("%s/%s/%s: %w", instrument, side, mode, ports.ErrPositionNotFound)
	}
	pos.StopLoss = stopLoss
	pos.TakeProfit = takeProfit
	pos.StopLossOrderID = slOrderID
	pos.TakeProfitOrderID = tpOrderID

	if err := l.posRepo.Update(ctx, pos); err != nil {
		return fmt.Errorf("failed to persist level update for position %d: %w", pos.ID, err)
	}
	return nil
}

// Positions returns a read-only snapshot of all open positions. This is the
// only sanctioned way for other components to inspect exposure.
func (l *Ledger) Positions() []*domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*domain.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		cp := *pos
		out = append(out, &cp)
	}
	return out
}

// InstrumentPositions returns copies of the open positions on one instrument
// in the given mode.
func (l *Ledger) InstrumentPositions(instrument string, mode domain.Mode) []*domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*domain.Position
	for _, side := range []domain.Side{domain.SideLong, domain.SideShort} {
		if pos, ok := l.positions[key{instrument, side, mode}]; ok {
			cp := *pos
			out = append(out, &cp)
		}
	}
	return out
}

// Count returns the number of open positions in the given mode.
func (l *Ledger) Count(mode domain.Mode) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	for k := range l.positions {
		if k.mode == mode {
			n++
		}
	}
	return n
}

// Find returns a copy of the open position for the exact key, if any.
func (l *Ledger) Find(instrument string, side domain.Side, mode domain.Mode) (*domain.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pos, ok := l.positions[key{instrument, side, mode}]
	if !ok {
		return nil, false
	}
	cp := *pos
	return &cp, true
}

// UnrealizedPNL sums open P&L across positions in the given mode using the
// supplied price lookup. Instruments without a price contribute zero.
func (l *Ledger) UnrealizedPNL(mode domain.Mode, prices map[string]float64) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := 0.0
	for k, pos := range l.positions {
		if k.mode != mode {
			continue
		}
		if price, ok := prices[k.instrument]; ok {
			total += pos.UnrealizedPNL(price)
		}
	}
	return total
}
