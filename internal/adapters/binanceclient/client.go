// Package binanceclient adapts the Binance futures API to the market-data
// and order-execution ports. The risk engine never talks to the exchange
// directly; this adapter is the live-mode execution collaborator.
package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/oklog/ulid/v2"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
)

const (
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"
)

// Client implements ports.MarketDataProvider and ports.OrderExecutor using
// the go-binance library.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger
	entropy       *ulid.MonotonicEntropy
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
	} else {
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{
		"baseURL": client.BaseURL, "testnet": cfg.UseTestnet,
	})

	return &Client{
		futuresClient: client,
		logger:        cfg.Logger,
		entropy:       ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}, nil
}

// newClientOrderID generates a ULID-based client order ID so fills can be
// correlated with the originating decision in the logs.
func (c *Client) newClientOrderID() string {
	return "tp-" + ulid.MustNew(ulid.Timestamp(time.Now()), c.entropy).String()
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003:
			mappedErr = ports.ErrRateLimited
		case -1021:
			mappedErr = ports.ErrTimeout
		case -1022, -2014, -2015:
			mappedErr = ports.ErrAuthenticationFailed
		case -2010, -2022:
			mappedErr = ports.ErrOrderPlacementFailed
		case -2011:
			mappedErr = ports.ErrOrderCancelFailed
		case -2013:
			mappedErr = ports.ErrOrderNotFound
		case -2019, -3005, -3041, -4047:
			mappedErr = ports.ErrInsufficientFunds
		case -4003, -4014, -4015:
			mappedErr = ports.ErrInvalidRequest
		case -4044:
			mappedErr = ports.ErrPositionNotFound
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, operation+" failed with API error", fields)
		return finalErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		c.logger.Error(ctx, err, operation+" timed out", fields)
		return fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	}

	c.logger.Error(ctx, err, operation+" failed", fields)
	return fmt.Errorf("%s failed: %w: %w", operation, ports.ErrExchangeUnavailable, err)
}

// --- MarketDataProvider ---

// GetTickerPrice retrieves the last ticker price for a given instrument.
func (c *Client) GetTickerPrice(ctx context.Context, instrument string) (float64, error) {
	op := "GetTickerPrice"
	prices, err := c.futuresClient.NewListPricesService().Symbol(instrument).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("%s: no price returned for %s: %w", op, instrument, ports.ErrMarketDataUnavailable)
	}
	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to parse price %q: %w", op, prices[0].Price, err)
	}
	return price, nil
}

// GetKlines retrieves historical klines for the given instrument.
func (c *Client) GetKlines(ctx context.Context, instrument string, interval string, limit int) ([]*domain.Kline, error) {
	op := "GetKlines"
	raw, err := c.futuresClient.NewKlinesService().
		Symbol(instrument).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	klines := make([]*domain.Kline, 0, len(raw))
	for _, bk := range raw {
		kline, err := translateBinanceKline(bk, instrument, interval)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		klines = append(klines, kline)
	}
	return klines, nil
}

// --- OrderExecutor ---

// GetAccountBalance retrieves the available balance for a quote asset.
func (c *Client) GetAccountBalance(ctx context.Context, asset string) (float64, error) {
	op := "GetAccountBalance"
	balances, err := c.futuresClient.NewGetBalanceService().Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	for _, b := range balances {
		if b.Asset == asset {
			available, err := strconv.ParseFloat(b.AvailableBalance, 64)
			if err != nil {
				return 0, fmt.Errorf("%s: failed to parse balance %q: %w", op, b.AvailableBalance, err)
			}
			return available, nil
		}
	}
	return 0, fmt.Errorf("%s: asset %s not found: %w", op, asset, ports.ErrNotFound)
}

// SetLeverage sets the leverage for a derivative instrument.
func (c *Client) SetLeverage(ctx context.Context, instrument string, leverage int) error {
	op := "SetLeverage"
	_, err := c.futuresClient.NewChangeLeverageService().
		Symbol(instrument).Leverage(leverage).Do(ctx)
	return c.handleError(ctx, err, op)
}

// PlaceMarketOrder places a market order. reduce marks orders closing
// existing exposure so they can never flip the position.
func (c *Client) PlaceMarketOrder(ctx context.Context, instrument string, side domain.OrderSide, quantity float64, reduce bool) (*ports.OrderResponse, error) {
	op := "PlaceMarketOrder"
	svc := c.futuresClient.NewCreateOrderService().
		Symbol(instrument).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeMarket).
		Quantity(formatQuantity(quantity)).
		NewClientOrderID(c.newClientOrderID())
	if reduce {
		svc = svc.ReduceOnly(true)
	}
	order, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	return translateOrderResponse(order), nil
}

// PlaceStopMarketOrder places a protective stop-market order.
func (c *Client) PlaceStopMarketOrder(ctx context.Context, instrument string, side domain.OrderSide, quantity, stopPrice float64) (*ports.OrderResponse, error) {
	op := "PlaceStopMarketOrder"
	order, err := c.futuresClient.NewCreateOrderService().
		Symbol(instrument).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeStopMarket).
		Quantity(formatQuantity(quantity)).
		StopPrice(formatPrice(stopPrice)).
		ReduceOnly(true).
		NewClientOrderID(c.newClientOrderID()).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	return translateOrderResponse(order), nil
}

// PlaceTakeProfitMarketOrder places a protective take-profit-market order.
func (c *Client) PlaceTakeProfitMarketOrder(ctx context.Context, instrument string, side domain.OrderSide, quantity, stopPrice float64) (*ports.OrderResponse, error) {
	op := "PlaceTakeProfitMarketOrder"
	order, err := c.futuresClient.NewCreateOrderService().
		Symbol(instrument).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeTakeProfitMarket).
		Quantity(formatQuantity(quantity)).
		StopPrice(formatPrice(stopPrice)).
		ReduceOnly(true).
		NewClientOrderID(c.newClientOrderID()).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	return translateOrderResponse(order), nil
}

// CancelOrder cancels an existing open order by its ID.
func (c *Client) CancelOrder(ctx context.Context, instrument string, orderID int64) (*ports.OrderResponse, error) {
	op := "CancelOrder"
	order, err := c.futuresClient.NewCancelOrderService().
		Symbol(instrument).OrderID(orderID).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	return &ports.OrderResponse{
		OrderID:       order.OrderID,
		Instrument:    order.Symbol,
		ClientOrderID: order.ClientOrderID,
		Status:        string(order.Status),
		Type:          string(order.Type),
		Side:          string(order.Side),
		Timestamp:     time.Now().UTC(),
	}, nil
}

// --- Translation helpers ---

// formatQuantity formats a quantity for the Binance API.
// TODO: use per-instrument precision from exchange info instead of a fixed scale.
func formatQuantity(quantity float64) string {
	return strconv.FormatFloat(quantity, 'f', 3, 64)
}

// formatPrice formats a price for the Binance API.
func formatPrice(price float64) string {
	return strconv.FormatFloat(price, 'f', 2, 64)
}

func translateOrderResponse(order *futures.CreateOrderResponse) *ports.OrderResponse {
	if order == nil {
		return nil
	}
	price, _ := strconv.ParseFloat(order.Price, 64)
	avgPrice, _ := strconv.ParseFloat(order.AvgPrice, 64)
	origQty, _ := strconv.ParseFloat(order.OrigQuantity, 64)
	executedQty, _ := strconv.ParseFloat(order.ExecutedQuantity, 64)

	return &ports.OrderResponse{
		OrderID:       order.OrderID,
		Instrument:    order.Symbol,
		ClientOrderID: order.ClientOrderID,
		Price:         price,
		AvgPrice:      avgPrice,
		OrigQuantity:  origQty,
		ExecutedQty:   executedQty,
		Status:        string(order.Status),
		Type:          string(order.Type),
		Side:          string(order.Side),
		Timestamp:     time.UnixMilli(order.UpdateTime).UTC(),
	}
}

func translateBinanceKline(bk *futures.Kline, instrument, interval string) (*domain.Kline, error) {
	open, err := strconv.ParseFloat(bk.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse kline open %q: %w", bk.Open, err)
	}
	high, err := strconv.ParseFloat(bk.High, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse kline high %q: %w", bk.High, err)
	}
	low, err := strconv.ParseFloat(bk.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse kline low %q: %w", bk.Low, err)
	}
	closePrice, err := strconv.ParseFloat(bk.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse kline close %q: %w", bk.Close, err)
	}
	volume, err := strconv.ParseFloat(bk.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse kline volume %q: %w", bk.Volume, err)
	}

	return &domain.Kline{
		OpenTime:   time.UnixMilli(bk.OpenTime).UTC(),
		CloseTime:  time.UnixMilli(bk.CloseTime).UTC(),
		Instrument: instrument,
		Interval:   interval,
		Open:       open,
		High:       high,
		Low:        low,
		Close:      closePrice,
		Volume:     volume,
	}, nil
}
