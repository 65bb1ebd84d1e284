package ports

import (
	"context"

	"tradePilot/internal/domain"
)

// PositionRepository defines the interface for persisting trading positions.
// The ledger writes through it on every mutation; it never feeds decisions
// back except position restoration at startup.
type PositionRepository interface {
	// Create saves a new position and returns its assigned ID.
	Create(ctx context.Context, pos *domain.Position) (int64, error)
	// Update modifies an existing position.
	Update(ctx context.Context, pos *domain.Position) error
	// FindOpen retrieves all currently open positions for the given mode.
	// Used to rehydrate the ledger at process start.
	FindOpen(ctx context.Context, mode domain.Mode) ([]*domain.Position, error)
	// FindByID retrieves a position by its unique ID.
	// Returns nil, nil if not found.
	FindByID(ctx context.Context, id int64) (*domain.Position, error)
}

// TradeRepository defines the interface for storing completed trades.
type TradeRepository interface {
	// CreateTrade saves a new trade record and returns its assigned ID.
	CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error)
	// FindByInstrument retrieves the most recent trades for an instrument, up to a limit.
	FindByInstrument(ctx context.Context, instrument string, limit int) ([]*domain.Trade, error)
	// RealizedPNLToday sums the P&L of trades closed today (UTC) for the given mode.
	RealizedPNLToday(ctx context.Context, mode domain.Mode) (float64, error)
}
