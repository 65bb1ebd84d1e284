package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.PositionRepository and ports.TradeRepository
// using SQLite. It is the durability collaborator: it receives snapshots on
// every ledger mutation and feeds decisions back only through position
// restoration at startup.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/trading_agent.db" // Default path
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL mode for better concurrency
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; the Go driver benefits from a
	// single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	cfg.Logger.Info(context.Background(), "SQLite database ready", map[string]interface{}{"path": dbPath})
	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		instrument TEXT NOT NULL,
		side TEXT NOT NULL,
		mode TEXT NOT NULL,
		quantity REAL NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL DEFAULT NULL,
		leverage INTEGER NOT NULL,
		horizon TEXT NOT NULL,
		stop_loss REAL DEFAULT NULL,
		take_profit REAL DEFAULT NULL,
		stop_loss_order_id TEXT DEFAULT NULL,
		take_profit_order_id TEXT DEFAULT NULL,
		entry_time TIMESTAMP NOT NULL,
		exit_time TIMESTAMP DEFAULT NULL,
		status TEXT NOT NULL,
		pnl REAL DEFAULT NULL,
		close_reason TEXT DEFAULT NULL
	);

	CREATE TABLE IF NOT EXISTS trade_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		position_id INTEGER NULL,
		instrument TEXT NOT NULL,
		side TEXT NOT NULL,
		mode TEXT NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL,
		quantity REAL NOT NULL,
		leverage INTEGER NOT NULL,
		pnl REAL NOT NULL,
		entry_time TIMESTAMP NOT NULL,
		exit_time TIMESTAMP NOT NULL,
		close_reason TEXT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_positions_open_key
		ON positions (instrument, side, mode) WHERE status = 'open';
	CREATE INDEX IF NOT EXISTS idx_positions_status ON positions (status, mode);
	CREATE INDEX IF NOT EXISTS idx_trade_history_exit_time ON trade_history (mode, exit_time);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- PositionRepository Implementation ---

// Create saves a new position and returns its assigned ID.
func (r *Repository) Create(ctx context.Context, pos *domain.Position) (int64, error) {
	const query = `
	INSERT INTO positions (instrument, side, mode, quantity, entry_price, leverage, horizon,
		stop_loss, take_profit, stop_loss_order_id, take_profit_order_id, entry_time, status)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		pos.Instrument, pos.Side, pos.Mode, pos.Quantity, pos.EntryPrice, pos.Leverage, pos.Horizon,
		pos.StopLoss, pos.TakeProfit, pos.StopLossOrderID, pos.TakeProfitOrderID, pos.EntryTime, pos.Status)
	if err != nil {
		return 0, fmt.Errorf("failed to insert position for %s: %w", pos.Instrument, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get inserted position ID: %w", err)
	}
	return id, nil
}

// Update modifies an existing position.
func (r *Repository) Update(ctx context.Context, pos *domain.Position) error {
	const query = `
	UPDATE positions SET quantity = ?, exit_price = ?, stop_loss = ?, take_profit = ?,
		stop_loss_order_id = ?, take_profit_order_id = ?, exit_time = ?, status = ?, pnl = ?, close_reason = ?
	WHERE id = ?`

	var exitPrice, pnl interface{}
	var exitTime interface{}
	if pos.Status == domain.StatusClosed {
		exitPrice, pnl, exitTime = pos.ExitPrice, pos.PNL, pos.ExitTime
	}

	result, err := r.db.ExecContext(ctx, query,
		pos.Quantity, exitPrice, pos.StopLoss, pos.TakeProfit,
		pos.StopLossOrderID, pos.TakeProfitOrderID, exitTime, pos.Status, pnl, nullableReason(pos.CloseReason),
		pos.ID)
	if err != nil {
		return fmt.Errorf("failed to update position %d: %w", pos.ID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result for position %d: %w", pos.ID, err)
	}
	if rows == 0 {
		return fmt.Errorf("position %d: %w", pos.ID, ports.ErrNotFound)
	}
	return nil
}

// FindOpen retrieves all currently open positions for the given mode.
func (r *Repository) FindOpen(ctx context.Context, mode domain.Mode) ([]*domain.Position, error) {
	const query = selectPositionColumns + ` WHERE status = ? AND mode = ? ORDER BY entry_time ASC`

	rows, err := r.db.QueryContext(ctx, query, domain.StatusOpen, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to query open positions: %w", err)
	}
	defer rows.Close()

	var positions []*domain.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating open positions: %w", err)
	}
	return positions, nil
}

// FindByID retrieves a position by its unique ID. Returns nil, nil if not found.
func (r *Repository) FindByID(ctx context.Context, id int64) (*domain.Position, error) {
	const query = selectPositionColumns + ` WHERE id = ?`

	pos, err := scanPosition(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return pos, nil
}

const selectPositionColumns = `
	SELECT id, instrument, side, mode, quantity, entry_price, COALESCE(exit_price, 0), leverage, horizon,
		stop_loss, take_profit, stop_loss_order_id, take_profit_order_id,
		entry_time, exit_time, status, COALESCE(pnl, 0), COALESCE(close_reason, '')
	FROM positions`

// scannable covers both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row scannable) (*domain.Position, error) {
	pos := &domain.Position{}
	var exitTime sql.NullTime
	var reason string
	err := row.Scan(
		&pos.ID, &pos.Instrument, &pos.Side, &pos.Mode, &pos.Quantity, &pos.EntryPrice, &pos.ExitPrice,
		&pos.Leverage, &pos.Horizon, &pos.StopLoss, &pos.TakeProfit,
		&pos.StopLossOrderID, &pos.TakeProfitOrderID,
		&pos.EntryTime, &exitTime, &pos.Status, &pos.PNL, &reason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan position row: %w", err)
	}
	if exitTime.Valid {
		pos.ExitTime = exitTime.Time
	}
	pos.CloseReason = domain.CloseReason(reason)
	return pos, nil
}

func nullableReason(reason domain.CloseReason) interface{} {
	if reason == "" {
		return nil
	}
	return string(reason)
}

// --- TradeRepository Implementation ---

// CreateTrade saves a new trade record and returns its assigned ID.
func (r *Repository) CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	const query = `
	INSERT INTO trade_history (position_id, instrument, side, mode, entry_price, exit_price,
		quantity, leverage, pnl, entry_time, exit_time, close_reason)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		trade.PositionID, trade.Instrument, trade.Side, trade.Mode, trade.EntryPrice, trade.ExitPrice,
		trade.Quantity, trade.Leverage, trade.PNL, trade.EntryTime, trade.ExitTime, trade.CloseReason)
	if err != nil {
		return 0, fmt.Errorf("failed to insert trade for %s: %w", trade.Instrument, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get inserted trade ID: %w", err)
	}
	return id, nil
}

// FindByInstrument retrieves the most recent trades for an instrument, up to a limit.
func (r *Repository) FindByInstrument(ctx context.Context, instrument string, limit int) ([]*domain.Trade, error) {
	const query = `
	SELECT id, position_id, instrument, side, mode, entry_price, exit_price,
		quantity, leverage, pnl, entry_time, exit_time, COALESCE(close_reason, '')
	FROM trade_history WHERE instrument = ? ORDER BY exit_time DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, instrument, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades for %s: %w", instrument, err)
	}
	defer rows.Close()

	var trades []*domain.Trade
	for rows.Next() {
		trade := &domain.Trade{}
		var reason string
		if err := rows.Scan(
			&trade.ID, &trade.PositionID, &trade.Instrument, &trade.Side, &trade.Mode,
			&trade.EntryPrice, &trade.ExitPrice, &trade.Quantity, &trade.Leverage,
			&trade.PNL, &trade.EntryTime, &trade.ExitTime, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan trade row: %w", err)
		}
		trade.CloseReason = domain.CloseReason(reason)
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}
	return trades, nil
}

// RealizedPNLToday sums the P&L of trades closed today (UTC) for the given mode.
func (r *Repository) RealizedPNLToday(ctx context.Context, mode domain.Mode) (float64, error) {
	const query = `
	SELECT COALESCE(SUM(pnl), 0) FROM trade_history
	WHERE mode = ? AND exit_time >= ?`

	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var total float64
	if err := r.db.QueryRowContext(ctx, query, mode, midnight).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum today's realized PNL: %w", err)
	}
	return total, nil
}
