package app

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradePilot/config"
	"tradePilot/internal/adapters/paper"
	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
	"tradePilot/internal/position"
	"tradePilot/internal/risk"
	"tradePilot/internal/strategy"
)

// --- Test Fakes ---

type noopLogger struct{}

func (noopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (noopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (noopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (noopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockPosRepo struct{ nextID int64 }

func (m *mockPosRepo) Create(ctx context.Context, pos *domain.Position) (int64, error) {
	m.nextID++
	return m.nextID, nil
}
func (m *mockPosRepo) Update(ctx context.Context, pos *domain.Position) error { return nil }
func (m *mockPosRepo) FindOpen(ctx context.Context, mode domain.Mode) ([]*domain.Position, error) {
	return nil, nil
}
func (m *mockPosRepo) FindByID(ctx context.Context, id int64) (*domain.Position, error) {
	return nil, nil
}

type mockTradeRepo struct{}

func (mockTradeRepo) CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	return 1, nil
}
func (mockTradeRepo) FindByInstrument(ctx context.Context, instrument string, limit int) ([]*domain.Trade, error) {
	return nil, nil
}
func (mockTradeRepo) RealizedPNLToday(ctx context.Context, mode domain.Mode) (float64, error) {
	return 0, nil
}

type mockMarket struct {
	price  float64
	klines []*domain.Kline
}

func (m *mockMarket) GetTickerPrice(ctx context.Context, instrument string) (float64, error) {
	return m.price, nil
}

func (m *mockMarket) GetKlines(ctx context.Context, instrument string, interval string, limit int) ([]*domain.Kline, error) {
	return m.klines, nil
}

type placedOrder struct {
	kind     string // market, stop, take_profit, cancel
	side     domain.OrderSide
	quantity float64
	price    float64
	reduce   bool
}

type mockExecutor struct {
	balance float64
	orders  []placedOrder
	nextID  int64
}

func (m *mockExecutor) GetAccountBalance(ctx context.Context, asset string) (float64, error) {
	return m.balance, nil
}

func (m *mockExecutor) SetLeverage(ctx context.Context, instrument string, leverage int) error {
	return nil
}

func (m *mockExecutor) respond(side domain.OrderSide, quantity float64) *ports.OrderResponse {
	m.nextID++
	return &ports.OrderResponse{
		OrderID:      m.nextID,
		OrigQuantity: quantity,
		ExecutedQty:  quantity,
		Status:       "FILLED",
		Side:         string(side),
		Timestamp:    time.Now().UTC(),
	}
}

func (m *mockExecutor) PlaceMarketOrder(ctx context.Context, instrument string, side domain.OrderSide, quantity float64, reduce bool) (*ports.OrderResponse, error) {
	m.orders = append(m.orders, placedOrder{kind: "market", side: side, quantity: quantity, reduce: reduce})
	return m.respond(side, quantity), nil
}

func (m *mockExecutor) PlaceStopMarketOrder(ctx context.Context, instrument string, side domain.OrderSide, quantity, stopPrice float64) (*ports.OrderResponse, error) {
	m.orders = append(m.orders, placedOrder{kind: "stop", side: side, quantity: quantity, price: stopPrice})
	return m.respond(side, quantity), nil
}

func (m *mockExecutor) PlaceTakeProfitMarketOrder(ctx context.Context, instrument string, side domain.OrderSide, quantity, stopPrice float64) (*ports.OrderResponse, error) {
	m.orders = append(m.orders, placedOrder{kind: "take_profit", side: side, quantity: quantity, price: stopPrice})
	return m.respond(side, quantity), nil
}

func (m *mockExecutor) CancelOrder(ctx context.Context, instrument string, orderID int64) (*ports.OrderResponse, error) {
	m.orders = append(m.orders, placedOrder{kind: "cancel"})
	return &ports.OrderResponse{OrderID: orderID, Status: "CANCELED"}, nil
}

type mockReviewer struct {
	decision *domain.ReviewDecision
	err      error
	calls    int
}

func (m *mockReviewer) Review(ctx context.Context, req ports.ReviewRequest) (*domain.ReviewDecision, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.decision, nil
}

type mockStrategy struct{ signal domain.Signal }

func (m mockStrategy) Name() string            { return "mock" }
func (m mockStrategy) RequiredDataPoints() int { return 1 }
func (m mockStrategy) Evaluate(ctx context.Context, klines []*domain.Kline, currentPrice float64) (domain.Verdict, error) {
	return domain.Verdict{Strategy: "mock", Signal: m.signal, Confidence: 0.8}, nil
}

// steadyKlines yields bars with a constant true range of 4 around a flat
// close, so a period-2 ATR resolves to exactly 4.
func steadyKlines(n int) []*domain.Kline {
	klines := make([]*domain.Kline, n)
	base := time.Now().UTC().Add(-time.Duration(n) * time.Minute)
	for i := range klines {
		klines[i] = &domain.Kline{
			OpenTime:  base.Add(time.Duration(i) * time.Minute),
			CloseTime: base.Add(time.Duration(i+1) * time.Minute),
			Open:      100.0, High: 102.0, Low: 98.0, Close: 100.0,
			Volume:    10.0,
		}
	}
	return klines
}

type harness struct {
	service  *Service
	ledger   *position.Ledger
	executor *mockExecutor
	reviewer *mockReviewer
	daily    *risk.DailyTracker
	market   *mockMarket
}

func newHarness(t *testing.T, rev *mockReviewer) *harness {
	t.Helper()

	cfg := &config.Config{
		Mode:            domain.ModePaper,
		Market:          domain.MarketFutures,
		Instruments:     []string{"ETHUSDT"},
		QuoteAsset:      "USDT",
		Leverage:        2,
		CycleInterval:   time.Minute,
		KlineInterval:   "1m",
		KlineLimit:      10,
		PolicyPath:      filepath.Join(t.TempDir(), "absent.yaml"), // reload falls back to defaults
		ReviewerTimeout: time.Second,
	}
	policy := config.DefaultPolicy()
	table, err := policy.HorizonTable()
	require.NoError(t, err)

	ledger, err := position.NewLedger(&mockPosRepo{}, mockTradeRepo{}, noopLogger{}, position.FallbackPolicy{
		Horizon: domain.HorizonMedium,
		Table:   table,
	})
	require.NoError(t, err)

	evaluator, err := risk.NewEvaluator(policy.EvaluatorConfig(), table, noopLogger{})
	require.NoError(t, err)

	builder, err := strategy.NewMetricsBuilder(strategy.MetricsConfig{
		ATRPeriod: 2, BBPeriod: 2, BBStdDev: 2.0, SupportLookback: 2,
	})
	require.NoError(t, err)

	market := &mockMarket{price: 100.0, klines: steadyKlines(6)}
	executor := &mockExecutor{balance: 10000.0}
	daily := risk.NewDailyTracker(time.Now(), 0)

	svc, err := NewService(Deps{
		Config:     cfg,
		Policy:     policy,
		Ledger:     ledger,
		Evaluator:  evaluator,
		Daily:      daily,
		Strategies: []ports.Strategy{mockStrategy{signal: domain.SignalBuy}},
		Metrics:    builder,
		Market:     market,
		Executor:   executor,
		Reviewer:   rev,
		Logger:     noopLogger{},
	})
	require.NoError(t, err)

	return &harness{service: svc, ledger: ledger, executor: executor, reviewer: rev, daily: daily, market: market}
}

func (h *harness) openLong(t *testing.T, entry, sl, tp float64) {
	t.Helper()
	require.NoError(t, h.ledger.Add(context.Background(), &domain.Position{
		Instrument: "ETHUSDT",
		Side:       domain.SideLong,
		Mode:       domain.ModePaper,
		Quantity:   2.0,
		EntryPrice: entry,
		Leverage:   2,
		Horizon:    domain.HorizonMedium,
		EntryTime:  time.Now().UTC(),
		StopLoss:   &sl,
		TakeProfit: &tp,
	}))
}

func buyDecision() *domain.ReviewDecision {
	return &domain.ReviewDecision{
		Action:     domain.ActionBuy,
		Confidence: 0.9,
		Horizon:    domain.HorizonMedium,
	}
}

// --- Tests ---

func TestService_EntryFlow(t *testing.T) {
	h := newHarness(t, &mockReviewer{decision: buyDecision()})
	h.service.runCycle(context.Background())

	require.Len(t, h.executor.orders, 3)
	entry := h.executor.orders[0]
	assert.Equal(t, "market", entry.kind)
	assert.Equal(t, domain.Buy, entry.side)
	assert.False(t, entry.reduce)
	// 10000 * 0.10 / 100 at the medium size factor.
	assert.InDelta(t, 10.0, entry.quantity, 1e-9)

	stop := h.executor.orders[1]
	assert.Equal(t, "stop", stop.kind)
	assert.Equal(t, domain.Sell, stop.side)
	assert.InDelta(t, 94.0, stop.price, 1e-9) // 100 - 4*1.5

	takeProfit := h.executor.orders[2]
	assert.Equal(t, "take_profit", takeProfit.kind)
	assert.InDelta(t, 112.0, takeProfit.price, 1e-9) // 100 + 4*3

	pos, ok := h.ledger.Find("ETHUSDT", domain.SideLong, domain.ModePaper)
	require.True(t, ok)
	require.NotNil(t, pos.StopLoss)
	assert.InDelta(t, 94.0, *pos.StopLoss, 1e-9)
	require.NotNil(t, pos.StopLossOrderID)
	assert.Equal(t, domain.HorizonMedium, pos.Horizon)
}

func TestService_SuggestedSizeCapsEntry(t *testing.T) {
	dec := buyDecision()
	dec.PositionSizePct = 0.02
	h := newHarness(t, &mockReviewer{decision: dec})
	h.service.runCycle(context.Background())

	require.NotEmpty(t, h.executor.orders)
	assert.InDelta(t, 2.0, h.executor.orders[0].quantity, 1e-9)
}

func TestService_ReviewFailureResolvesToHold(t *testing.T) {
	h := newHarness(t, &mockReviewer{err: fmt.Errorf("review of ETHUSDT: %w", ports.ErrReviewTimeout)})
	h.service.runCycle(context.Background())

	assert.Empty(t, h.executor.orders, "no order may follow a failed review")
	assert.Equal(t, 0, h.ledger.Count(domain.ModePaper))
	assert.Equal(t, 1, h.reviewer.calls)
}

func TestService_HoldDecisionDoesNothing(t *testing.T) {
	h := newHarness(t, &mockReviewer{decision: &domain.ReviewDecision{Action: domain.ActionHold, Confidence: 0.6}})
	h.service.runCycle(context.Background())

	assert.Empty(t, h.executor.orders)
	assert.Equal(t, 0, h.ledger.Count(domain.ModePaper))
}

func TestService_RecheckPrecedesEntry(t *testing.T) {
	h := newHarness(t, &mockReviewer{decision: buyDecision()})
	h.openLong(t, 100.0, 94.0, 112.0)
	h.market.price = 93.0 // through the stored stop

	h.service.runCycle(context.Background())

	// The protective exit runs and the instrument is done for the cycle:
	// the reviewer is never consulted and no entry follows.
	assert.Equal(t, 0, h.reviewer.calls)
	assert.Equal(t, 0, h.ledger.Count(domain.ModePaper))

	// Two cancels for the resting protective orders would appear here if
	// order IDs had been stored; with none stored the close is the only call.
	require.Len(t, h.executor.orders, 1)
	closeOrder := h.executor.orders[0]
	assert.Equal(t, "market", closeOrder.kind)
	assert.Equal(t, domain.Sell, closeOrder.side)
	assert.True(t, closeOrder.reduce)
	assert.InDelta(t, 2.0, closeOrder.quantity, 1e-9)

	// Realized loss lands in the daily tracker: (93-100) * 2.
	assert.InDelta(t, -14.0, h.daily.Realized(time.Now()), 1e-9)
}

func TestService_TakeProfitTrigger(t *testing.T) {
	h := newHarness(t, &mockReviewer{decision: buyDecision()})
	h.openLong(t, 100.0, 94.0, 112.0)
	h.market.price = 113.0

	h.service.runCycle(context.Background())

	assert.Equal(t, 0, h.ledger.Count(domain.ModePaper))
	assert.InDelta(t, 26.0, h.daily.Realized(time.Now()), 1e-9) // (113-100) * 2
}

func TestService_SignalExit(t *testing.T) {
	h := newHarness(t, &mockReviewer{decision: &domain.ReviewDecision{
		Action:     domain.ActionSell,
		Confidence: 0.8,
		Horizon:    domain.HorizonMedium,
	}})
	h.openLong(t, 100.0, 94.0, 112.0)
	h.market.price = 105.0 // between the levels, no protective trigger

	h.service.runCycle(context.Background())

	assert.Equal(t, 1, h.reviewer.calls)
	assert.Equal(t, 0, h.ledger.Count(domain.ModePaper))
	require.Len(t, h.executor.orders, 1)
	assert.True(t, h.executor.orders[0].reduce)
	assert.InDelta(t, 10.0, h.daily.Realized(time.Now()), 1e-9) // (105-100) * 2
}

func TestService_DailyLossBlocksEntryButNotExit(t *testing.T) {
	t.Run("entry blocked", func(t *testing.T) {
		h := newHarness(t, &mockReviewer{decision: buyDecision()})
		h.daily.AddRealized(time.Now(), -600.0) // past 5% of 10000

		h.service.runCycle(context.Background())

		assert.Empty(t, h.executor.orders)
		assert.Equal(t, 0, h.ledger.Count(domain.ModePaper))
	})

	t.Run("exit still allowed", func(t *testing.T) {
		h := newHarness(t, &mockReviewer{decision: &domain.ReviewDecision{
			Action: domain.ActionSell, Confidence: 0.8, Horizon: domain.HorizonMedium,
		}})
		h.openLong(t, 100.0, 94.0, 112.0)
		h.market.price = 105.0
		h.daily.AddRealized(time.Now(), -600.0)

		h.service.runCycle(context.Background())

		assert.Equal(t, 0, h.ledger.Count(domain.ModePaper))
		require.Len(t, h.executor.orders, 1)
		assert.True(t, h.executor.orders[0].reduce)
	})
}

func TestService_DuplicateEntryRejected(t *testing.T) {
	h := newHarness(t, &mockReviewer{decision: buyDecision()})
	h.openLong(t, 100.0, 94.0, 112.0)
	h.market.price = 100.0

	h.service.runCycle(context.Background())

	// The translator sees the open long and refuses a second one; no order
	// reaches the executor and the original position is untouched.
	assert.Empty(t, h.executor.orders)
	assert.Equal(t, 1, h.ledger.Count(domain.ModePaper))
}

func TestService_OverrideHalvesQuantity(t *testing.T) {
	// The reviewer decides buy while every strategy holds: the entry has no
	// supporting consensus and carries half size. The override is derived
	// from the verdicts, never trusted from the review payload.
	h := newHarness(t, &mockReviewer{decision: buyDecision()})
	h.service.strategies = []ports.Strategy{mockStrategy{signal: domain.SignalHold}}

	h.service.runCycle(context.Background())

	require.NotEmpty(t, h.executor.orders)
	assert.InDelta(t, 5.0, h.executor.orders[0].quantity, 1e-9)
}

func TestService_LevelHintsShapeFallbackLevels(t *testing.T) {
	// Flat klines carry no range, so the ATR is zero and the percentage
	// fallback applies; the review's hints replace the policy percentages.
	dec := buyDecision()
	dec.StopLossPct = 0.01
	dec.TakeProfitPct = 0.03
	h := newHarness(t, &mockReviewer{decision: dec})
	for _, k := range h.market.klines {
		k.High, k.Low = 100.0, 100.0
	}

	h.service.runCycle(context.Background())

	require.Len(t, h.executor.orders, 3)
	assert.InDelta(t, 99.0, h.executor.orders[1].price, 1e-9)  // 100 * (1 - 0.01)
	assert.InDelta(t, 103.0, h.executor.orders[2].price, 1e-9) // 100 * (1 + 0.03)
}

func TestService_PaperBalanceReflectsRealizedPNL(t *testing.T) {
	h := newHarness(t, &mockReviewer{decision: buyDecision()})
	exec, err := paper.New(paper.Config{QuoteAsset: "USDT", Market: h.market, Logger: noopLogger{}})
	require.NoError(t, err)
	h.service.executor = exec

	h.openLong(t, 100.0, 94.0, 112.0)
	h.market.price = 113.0 // through the take-profit

	h.service.runCycle(context.Background())

	balance, err := exec.GetAccountBalance(context.Background(), "USDT")
	require.NoError(t, err)
	assert.InDelta(t, 10026.0, balance, 1e-9) // 10000 + (113-100)*2
}
