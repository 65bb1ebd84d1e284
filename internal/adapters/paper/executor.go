// Package paper provides a simulated order executor for paper mode. Orders
// fill instantly at the last ticker price and the balance is tracked
// in-memory, so the full decision pipeline runs without touching real funds.
package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
)

// Executor implements ports.OrderExecutor with simulated fills.
type Executor struct {
	mu          sync.Mutex
	balance     float64
	asset       string
	nextOrderID int64
	leverage    map[string]int
	open        map[int64]*ports.OrderResponse

	market ports.MarketDataProvider
	logger ports.Logger
}

// Config holds configuration for the paper executor.
type Config struct {
	StartingBalance float64
	QuoteAsset      string
	Market          ports.MarketDataProvider
	Logger          ports.Logger
}

// New creates a paper executor seeded with a starting balance.
func New(cfg Config) (*Executor, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for paper executor")
	}
	if cfg.Market == nil {
		return nil, fmt.Errorf("market data provider is required for paper executor")
	}
	if cfg.StartingBalance <= 0 {
		cfg.StartingBalance = 10000
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	return &Executor{
		balance:     cfg.StartingBalance,
		asset:       cfg.QuoteAsset,
		nextOrderID: 1,
		leverage:    make(map[string]int),
		open:        make(map[int64]*ports.OrderResponse),
		market:      cfg.Market,
		logger:      cfg.Logger,
	}, nil
}

// GetAccountBalance returns the simulated balance for the configured asset.
func (e *Executor) GetAccountBalance(ctx context.Context, asset string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if asset != e.asset {
		return 0, fmt.Errorf("paper balance tracks %s only, asked for %s: %w", e.asset, asset, ports.ErrNotFound)
	}
	return e.balance, nil
}

// AdjustBalance applies realized profit or loss to the simulated balance.
func (e *Executor) AdjustBalance(delta float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balance += delta
}

// SetLeverage records the requested leverage. No exchange call is made.
func (e *Executor) SetLeverage(ctx context.Context, instrument string, leverage int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.leverage[instrument] = leverage
	return nil
}

// PlaceMarketOrder simulates an immediate fill at the current ticker price.
func (e *Executor) PlaceMarketOrder(ctx context.Context, instrument string, side domain.OrderSide, quantity float64, reduce bool) (*ports.OrderResponse, error) {
	price, err := e.market.GetTickerPrice(ctx, instrument)
	if err != nil {
		return nil, fmt.Errorf("paper market order fill price: %w", err)
	}

	resp := e.fill(instrument, side, quantity, price, "MARKET")
	e.logger.Info(ctx, "Paper market order filled", map[string]interface{}{
		"instrument": instrument, "side": string(side), "quantity": quantity,
		"price": price, "reduceOnly": reduce, "orderId": resp.OrderID,
	})
	return resp, nil
}

// PlaceStopMarketOrder records a resting protective stop. Paper mode never
// triggers it on the exchange side; the protective recheck closes positions.
func (e *Executor) PlaceStopMarketOrder(ctx context.Context, instrument string, side domain.OrderSide, quantity, stopPrice float64) (*ports.OrderResponse, error) {
	return e.rest(ctx, instrument, side, quantity, stopPrice, "STOP_MARKET"), nil
}

// PlaceTakeProfitMarketOrder records a resting take-profit order.
func (e *Executor) PlaceTakeProfitMarketOrder(ctx context.Context, instrument string, side domain.OrderSide, quantity, stopPrice float64) (*ports.OrderResponse, error) {
	return e.rest(ctx, instrument, side, quantity, stopPrice, "TAKE_PROFIT_MARKET"), nil
}

// CancelOrder removes a resting simulated order.
func (e *Executor) CancelOrder(ctx context.Context, instrument string, orderID int64) (*ports.OrderResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	resp, ok := e.open[orderID]
	if !ok {
		return nil, fmt.Errorf("paper order %d: %w", orderID, ports.ErrOrderNotFound)
	}
	delete(e.open, orderID)
	canceled := *resp
	canceled.Status = "CANCELED"
	canceled.Timestamp = time.Now().UTC()
	return &canceled, nil
}

func (e *Executor) fill(instrument string, side domain.OrderSide, quantity, price float64, orderType string) *ports.OrderResponse {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextOrderID
	e.nextOrderID++
	return &ports.OrderResponse{
		OrderID:       id,
		Instrument:    instrument,
		ClientOrderID: fmt.Sprintf("paper-%d", id),
		Price:         price,
		AvgPrice:      price,
		OrigQuantity:  quantity,
		ExecutedQty:   quantity,
		Status:        "FILLED",
		Type:          orderType,
		Side:          string(side),
		Timestamp:     time.Now().UTC(),
	}
}

func (e *Executor) rest(ctx context.Context, instrument string, side domain.OrderSide, quantity, stopPrice float64, orderType string) *ports.OrderResponse {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextOrderID
	e.nextOrderID++
	resp := &ports.OrderResponse{
		OrderID:       id,
		Instrument:    instrument,
		ClientOrderID: fmt.Sprintf("paper-%d", id),
		Price:         stopPrice,
		OrigQuantity:  quantity,
		Status:        "NEW",
		Type:          orderType,
		Side:          string(side),
		Timestamp:     time.Now().UTC(),
	}
	e.open[id] = resp
	e.logger.Debug(ctx, "Paper protective order resting", map[string]interface{}{
		"instrument": instrument, "type": orderType, "stopPrice": stopPrice, "orderId": id,
	})
	return resp
}
