package risk

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
)

// --- Test Fakes ---

type noopLogger struct{}

func (noopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (noopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (noopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (noopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type fakeLedger struct {
	open map[string]*domain.Position // keyed instrument/side
}

func newFakeLedger(positions ...*domain.Position) *fakeLedger {
	l := &fakeLedger{open: make(map[string]*domain.Position)}
	for _, p := range positions {
		l.open[p.Instrument+"/"+string(p.Side)] = p
	}
	return l
}

func (l *fakeLedger) Count(mode domain.Mode) int {
	n := 0
	for _, p := range l.open {
		if p.Mode == mode {
			n++
		}
	}
	return n
}

func (l *fakeLedger) Find(instrument string, side domain.Side, mode domain.Mode) (*domain.Position, bool) {
	p, ok := l.open[instrument+"/"+string(side)]
	if !ok || p.Mode != mode {
		return nil, false
	}
	return p, true
}

func testEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	ev, err := NewEvaluator(Config{
		MaxPositionPct:   0.10,
		MaxOpenPositions: 3,
		MaxDailyLossPct:  0.05,
		MaxLeverage:      5,
		AdaptiveStops:    true,
		OverrideHalving:  true,
	}, DefaultTable(), noopLogger{})
	require.NoError(t, err)
	return ev
}

func entryRequest() Request {
	return Request{
		Instrument: "ETHUSDT",
		Mode:       domain.ModePaper,
		Market:     domain.MarketFutures,
		Side:       domain.SideLong,
		Price:      100.0,
		Balance:    10000.0,
		ATR:        4.0,
		Horizon:    domain.HorizonMedium,
		Leverage:   2,
	}
}

// --- Tests ---

func TestEvaluate_ExitBypassesGuardrails(t *testing.T) {
	ev := testEvaluator(t)
	ledger := newFakeLedger(&domain.Position{
		Instrument: "ETHUSDT", Side: domain.SideLong, Mode: domain.ModePaper, Quantity: 10.0,
	})

	req := entryRequest()
	req.Exit = true
	// Daily loss far past the cap must not block the exit.
	req.DailyPNL = -2000.0

	dec := ev.Evaluate(req, ledger)
	require.True(t, dec.Approved)
	assert.Equal(t, 10.0, dec.Quantity)
}

func TestEvaluate_ExitWithoutPositionRejected(t *testing.T) {
	ev := testEvaluator(t)
	req := entryRequest()
	req.Exit = true

	dec := ev.Evaluate(req, newFakeLedger())
	require.False(t, dec.Approved)
	assert.Equal(t, ReasonNoPosition, dec.Reason)
	assert.True(t, errors.Is(dec.Err, ports.ErrPositionNotFound))
}

func TestEvaluate_EntrySizing(t *testing.T) {
	ev := testEvaluator(t)

	t.Run("risk-computed base size", func(t *testing.T) {
		// 10000 * 0.10 / 100 * 1.0 (medium size factor) = 10.
		dec := ev.Evaluate(entryRequest(), newFakeLedger())
		require.True(t, dec.Approved, "rejected: %v", dec.Err)
		assert.InDelta(t, 10.0, dec.Quantity, 1e-9)
		assert.InDelta(t, 94.0, dec.StopLoss, 1e-9)
		assert.InDelta(t, 112.0, dec.TakeProfit, 1e-9)
		assert.InDelta(t, 2.0, dec.RiskReward, 1e-9)
	})

	t.Run("suggestion only ever sizes down", func(t *testing.T) {
		req := entryRequest()
		req.SuggestedSizePct = 0.02 // 10000 * 0.02 / 100 = 2.0, below the base 10.
		dec := ev.Evaluate(req, newFakeLedger())
		require.True(t, dec.Approved)
		assert.InDelta(t, 2.0, dec.Quantity, 1e-9)
	})

	t.Run("suggestion above base is ignored", func(t *testing.T) {
		req := entryRequest()
		req.SuggestedSizePct = 0.50
		dec := ev.Evaluate(req, newFakeLedger())
		require.True(t, dec.Approved)
		assert.InDelta(t, 10.0, dec.Quantity, 1e-9)
	})

	t.Run("short horizon halves the base", func(t *testing.T) {
		req := entryRequest()
		req.Horizon = domain.HorizonShort
		dec := ev.Evaluate(req, newFakeLedger())
		require.True(t, dec.Approved)
		assert.InDelta(t, 5.0, dec.Quantity, 1e-9)
	})
}

func TestEvaluate_OverrideHalving(t *testing.T) {
	ev := testEvaluator(t)

	req := entryRequest()
	req.Override = true
	dec := ev.Evaluate(req, newFakeLedger())
	require.True(t, dec.Approved)
	assert.InDelta(t, 5.0, dec.Quantity, 1e-9)

	// Halving is uniform across market types.
	req.Market = domain.MarketSpot
	req.Leverage = 1
	dec = ev.Evaluate(req, newFakeLedger())
	require.True(t, dec.Approved)
	assert.InDelta(t, 5.0, dec.Quantity, 1e-9)
}

func TestEvaluate_DailyLossBlocksEntriesOnly(t *testing.T) {
	ev := testEvaluator(t)

	t.Run("small loss admits entry", func(t *testing.T) {
		// Loss 400 plus the entry's stop risk of 60 (qty 10, stop 6 away)
		// stays under 5% of 10000.
		req := entryRequest()
		req.DailyPNL = -400.0
		dec := ev.Evaluate(req, newFakeLedger())
		assert.True(t, dec.Approved)
	})

	t.Run("loss near cap blocks entry via projected stop risk", func(t *testing.T) {
		// Loss 450 is 4.5% of balance, below the 5% cap on its own, but the
		// candidate's stop risk of 60 carries the worst case to 510.
		req := entryRequest()
		req.DailyPNL = -450.0
		dec := ev.Evaluate(req, newFakeLedger())
		require.False(t, dec.Approved)
		assert.Equal(t, ReasonDailyLossLimit, dec.Reason)
		assert.True(t, errors.Is(dec.Err, ports.ErrGuardrailBreached))
	})

	t.Run("loss at cap blocks entry", func(t *testing.T) {
		req := entryRequest()
		req.DailyPNL = -500.0
		dec := ev.Evaluate(req, newFakeLedger())
		require.False(t, dec.Approved)
		assert.Equal(t, ReasonDailyLossLimit, dec.Reason)
		assert.True(t, errors.Is(dec.Err, ports.ErrGuardrailBreached))
	})

	t.Run("profit never blocks", func(t *testing.T) {
		req := entryRequest()
		req.DailyPNL = 800.0
		dec := ev.Evaluate(req, newFakeLedger())
		assert.True(t, dec.Approved)
	})
}

func TestEvaluate_MaxOpenPositions(t *testing.T) {
	ev := testEvaluator(t)
	ledger := newFakeLedger(
		&domain.Position{Instrument: "BTCUSDT", Side: domain.SideLong, Mode: domain.ModePaper},
		&domain.Position{Instrument: "SOLUSDT", Side: domain.SideLong, Mode: domain.ModePaper},
		&domain.Position{Instrument: "BNBUSDT", Side: domain.SideShort, Mode: domain.ModePaper},
	)

	dec := ev.Evaluate(entryRequest(), ledger)
	require.False(t, dec.Approved)
	assert.Equal(t, ReasonMaxPositions, dec.Reason)
}

func TestEvaluate_DuplicatePositionRejected(t *testing.T) {
	ev := testEvaluator(t)
	ledger := newFakeLedger(&domain.Position{
		Instrument: "ETHUSDT", Side: domain.SideLong, Mode: domain.ModePaper, Quantity: 1.0,
	})

	dec := ev.Evaluate(entryRequest(), ledger)
	require.False(t, dec.Approved)
	assert.Equal(t, ReasonDuplicate, dec.Reason)
	assert.True(t, errors.Is(dec.Err, ports.ErrDuplicatePosition))

	// The opposite side on the same instrument is a distinct key.
	req := entryRequest()
	req.Side = domain.SideShort
	dec = ev.Evaluate(req, ledger)
	assert.True(t, dec.Approved)
}

func TestEvaluate_LeverageLimit(t *testing.T) {
	ev := testEvaluator(t)

	req := entryRequest()
	req.Leverage = 10
	dec := ev.Evaluate(req, newFakeLedger())
	require.False(t, dec.Approved)
	assert.Equal(t, ReasonLeverageLimit, dec.Reason)

	// Spot entries ignore the leverage limit.
	req.Market = domain.MarketSpot
	req.Leverage = 1
	dec = ev.Evaluate(req, newFakeLedger())
	assert.True(t, dec.Approved)
}

func TestEvaluate_RiskRewardGate(t *testing.T) {
	// A table whose medium row demands more reward than its multipliers
	// produce: RR is 2.0, minimum is 2.5.
	rows := map[domain.Horizon]HorizonParams{
		domain.HorizonShort:  DefaultTable().Get(domain.HorizonShort),
		domain.HorizonMedium: {SLMultiplier: 1.5, TPMultiplier: 3.0, SLPct: 0.02, TPPct: 0.04, SizeFactor: 1.0, MinRiskReward: 2.5},
		domain.HorizonLong:   DefaultTable().Get(domain.HorizonLong),
	}
	table, err := NewTable(rows)
	require.NoError(t, err)

	ev, err := NewEvaluator(Config{
		MaxPositionPct: 0.10, MaxOpenPositions: 3, MaxDailyLossPct: 0.05, MaxLeverage: 5, AdaptiveStops: true,
	}, table, noopLogger{})
	require.NoError(t, err)

	dec := ev.Evaluate(entryRequest(), newFakeLedger())
	require.False(t, dec.Approved)
	assert.Equal(t, ReasonRiskReward, dec.Reason)
	assert.True(t, errors.Is(dec.Err, ports.ErrInsufficientRiskReward))
	assert.InDelta(t, 2.0, dec.RiskReward, 1e-9)
}

func TestEvaluate_UnknownHorizonUsesMediumRow(t *testing.T) {
	ev := testEvaluator(t)
	req := entryRequest()
	req.Horizon = domain.Horizon("intraday")

	dec := ev.Evaluate(req, newFakeLedger())
	require.True(t, dec.Approved)
	assert.InDelta(t, 10.0, dec.Quantity, 1e-9) // medium size factor
	assert.InDelta(t, 94.0, dec.StopLoss, 1e-9)
}

func TestEvaluate_ReviewPctHintsNarrowFallback(t *testing.T) {
	ev := testEvaluator(t)

	// No ATR forces the percentage fallback; the review hints replace the
	// medium row's 2%/4% defaults.
	req := entryRequest()
	req.Price = 200.0
	req.ATR = 0
	req.StopLossPct = 0.01
	req.TakeProfitPct = 0.03

	dec := ev.Evaluate(req, newFakeLedger())
	require.True(t, dec.Approved, "rejected: %v", dec.Err)
	assert.InDelta(t, 198.0, dec.StopLoss, 1e-9)
	assert.InDelta(t, 206.0, dec.TakeProfit, 1e-9)
	assert.InDelta(t, 3.0, dec.RiskReward, 1e-9)

	// With adaptive stops and an ATR available the hints are ignored.
	req.ATR = 4.0
	dec = ev.Evaluate(req, newFakeLedger())
	require.True(t, dec.Approved)
	assert.InDelta(t, 194.0, dec.StopLoss, 1e-9) // 200 - 4*1.5
}

func TestEvaluate_ZeroQuantityRejected(t *testing.T) {
	ev := testEvaluator(t)
	req := entryRequest()
	req.Balance = 0

	dec := ev.Evaluate(req, newFakeLedger())
	require.False(t, dec.Approved)
	assert.Equal(t, ReasonZeroQuantity, dec.Reason)
}
