package ports

import (
	"context"
	"time"

	"tradePilot/internal/domain"
)

// OrderResponse represents the essential details returned after placing an order.
type OrderResponse struct {
	OrderID       int64     // Exchange's order ID
	Instrument    string    // Instrument for the order
	ClientOrderID string    // User-defined order ID
	Price         float64   // Price of the order (might be 0 for market orders initially)
	AvgPrice      float64   // Average filled price
	OrigQuantity  float64   // Original quantity requested
	ExecutedQty   float64   // Quantity filled
	Status        string    // Order status (e.g., NEW, FILLED, CANCELED)
	Type          string    // Order type (e.g., MARKET, STOP_MARKET)
	Side          string    // Order side (BUY, SELL)
	Timestamp     time.Time // Time the order response was generated
}

// MarketDataProvider supplies OHLCV series and current prices. The risk
// engine consumes this data once per instrument per cycle; retrieval and
// caching live behind this boundary.
type MarketDataProvider interface {
	// GetTickerPrice retrieves the last ticker price for a given instrument.
	GetTickerPrice(ctx context.Context, instrument string) (float64, error)

	// GetKlines retrieves historical klines for the given instrument.
	GetKlines(ctx context.Context, instrument string, interval string, limit int) ([]*domain.Kline, error)
}

// OrderExecutor accepts a sizing decision and reports fill details and order
// identifiers. The core never calls an exchange directly; live and paper
// modes provide different implementations.
type OrderExecutor interface {
	// GetAccountBalance retrieves the available balance for a quote asset (e.g., "USDT").
	GetAccountBalance(ctx context.Context, asset string) (float64, error)

	// SetLeverage sets the leverage for a derivative instrument.
	SetLeverage(ctx context.Context, instrument string, leverage int) error

	// PlaceMarketOrder places a market order. reduce marks orders that close
	// existing exposure.
	PlaceMarketOrder(ctx context.Context, instrument string, side domain.OrderSide, quantity float64, reduce bool) (*OrderResponse, error)

	// PlaceStopMarketOrder places a protective stop-market order.
	PlaceStopMarketOrder(ctx context.Context, instrument string, side domain.OrderSide, quantity, stopPrice float64) (*OrderResponse, error)

	// PlaceTakeProfitMarketOrder places a protective take-profit-market order.
	PlaceTakeProfitMarketOrder(ctx context.Context, instrument string, side domain.OrderSide, quantity, stopPrice float64) (*OrderResponse, error)

	// CancelOrder cancels an existing open order by its ID.
	CancelOrder(ctx context.Context, instrument string, orderID int64) (*OrderResponse, error)
}

// BalanceAdjuster is implemented by executors that track balance locally
// (paper mode). Realized P&L is applied through it after every close; live
// executors settle on the exchange and do not implement it.
type BalanceAdjuster interface {
	AdjustBalance(delta float64)
}
