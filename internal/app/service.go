// Package app wires the risk engine together and runs the fixed-interval
// decision cycle: protective recheck first, then signal evaluation, policy
// review, translation and guardrail-checked execution, per instrument.
package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"

	"tradePilot/config"
	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
	"tradePilot/internal/position"
	"tradePilot/internal/risk"
	"tradePilot/internal/strategy"
	"tradePilot/internal/telemetry"
	"tradePilot/internal/translator"
)

// Deps holds every collaborator the service needs. All fields except Metrics
// are required.
type Deps struct {
	Config     *config.Config
	Policy     *config.Policy
	Ledger     *position.Ledger
	Evaluator  *risk.Evaluator
	Daily      *risk.DailyTracker
	Strategies []ports.Strategy
	Metrics    *strategy.MetricsBuilder
	Market     ports.MarketDataProvider
	Executor   ports.OrderExecutor
	Reviewer   ports.Reviewer
	Logger     ports.Logger
	Telemetry  *telemetry.Metrics // Optional
}

// Service runs the decision cycle. One instance owns the whole engine; it is
// not safe to run two services against the same ledger.
type Service struct {
	cfg        *config.Config
	policy     *config.Policy
	ledger     *position.Ledger
	evaluator  *risk.Evaluator
	daily      *risk.DailyTracker
	strategies []ports.Strategy
	metrics    *strategy.MetricsBuilder
	market     ports.MarketDataProvider
	executor   ports.OrderExecutor
	reviewer   ports.Reviewer
	logger     ports.Logger
	telemetry  *telemetry.Metrics
}

// cycleState carries values that live exactly one cycle. A fresh one is built
// at the top of every cycle so nothing derived can leak across cycles.
type cycleState struct {
	prices map[string]float64
}

// NewService creates the cycle engine.
func NewService(deps Deps) (*Service, error) {
	if deps.Config == nil || deps.Policy == nil || deps.Ledger == nil || deps.Evaluator == nil ||
		deps.Daily == nil || deps.Metrics == nil || deps.Market == nil || deps.Executor == nil ||
		deps.Reviewer == nil || deps.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for service")
	}
	if len(deps.Strategies) == 0 {
		return nil, fmt.Errorf("at least one strategy is required")
	}
	return &Service{
		cfg:        deps.Config,
		policy:     deps.Policy,
		ledger:     deps.Ledger,
		evaluator:  deps.Evaluator,
		daily:      deps.Daily,
		strategies: deps.Strategies,
		metrics:    deps.Metrics,
		market:     deps.Market,
		executor:   deps.Executor,
		reviewer:   deps.Reviewer,
		logger:     deps.Logger,
		telemetry:  deps.Telemetry,
	}, nil
}

// Start runs the cycle loop until the context is cancelled. The first cycle
// runs immediately; subsequent cycles follow the configured interval.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Cycle engine starting", map[string]interface{}{
		"mode":        s.cfg.Mode,
		"market":      s.cfg.Market,
		"instruments": s.cfg.Instruments,
		"interval":    s.cfg.CycleInterval.String(),
	})

	ticker := time.NewTicker(s.cfg.CycleInterval)
	defer ticker.Stop()

	s.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Cycle engine stopping")
			return ctx.Err()
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// runCycle processes every configured instrument once. A failure on one
// instrument is logged and never halts the rest of the cycle.
func (s *Service) runCycle(ctx context.Context) {
	started := time.Now()
	s.reloadPolicy(ctx)

	state := &cycleState{prices: make(map[string]float64)}
	for _, instrument := range s.cfg.Instruments {
		if ctx.Err() != nil {
			return
		}
		if err := s.processInstrument(ctx, instrument, state); err != nil {
			s.logger.Error(ctx, err, "Instrument cycle failed", map[string]interface{}{"instrument": instrument})
		}
	}

	if s.telemetry != nil {
		s.telemetry.CyclesTotal.Inc()
		s.telemetry.CycleDuration.Observe(time.Since(started).Seconds())
		s.telemetry.OpenPositions.WithLabelValues(string(s.cfg.Mode)).Set(float64(s.ledger.Count(s.cfg.Mode)))
		s.telemetry.DailyRealizedPNL.WithLabelValues(string(s.cfg.Mode)).Set(s.daily.Realized(time.Now()))
	}
}

// reloadPolicy re-reads the risk policy file between cycles. A broken file
// keeps the previous policy in force.
func (s *Service) reloadPolicy(ctx context.Context) {
	policy, err := config.LoadPolicy(s.cfg.PolicyPath)
	if err != nil {
		s.logger.Error(ctx, err, "Policy reload failed, keeping previous policy", map[string]interface{}{"path": s.cfg.PolicyPath})
		return
	}
	table, err := policy.HorizonTable()
	if err != nil {
		s.logger.Error(ctx, err, "Policy reload failed, keeping previous policy", map[string]interface{}{"path": s.cfg.PolicyPath})
		return
	}
	s.policy = policy
	s.evaluator.Reconfigure(policy.EvaluatorConfig(), table)
}

func (s *Service) processInstrument(ctx context.Context, instrument string, state *cycleState) error {
	op := "processInstrument"

	price, err := s.market.GetTickerPrice(ctx, instrument)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	state.prices[instrument] = price

	klines, err := s.market.GetKlines(ctx, instrument, s.cfg.KlineInterval, s.cfg.KlineLimit)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	metrics, err := s.metrics.Build(ctx, instrument, klines, price)
	if err != nil {
		return fmt.Errorf("%s: metrics: %w", op, err)
	}

	// Protective recheck always precedes any entry decision on the
	// instrument. A triggered level ends the instrument's cycle: the exit
	// executes and no new entry is considered until next cycle.
	if stopped := s.recheckProtective(ctx, instrument, price, metrics.ATR); stopped {
		return nil
	}

	verdicts := s.collectVerdicts(ctx, instrument, klines, price)

	balance, err := s.executor.GetAccountBalance(ctx, s.cfg.QuoteAsset)
	if err != nil {
		return fmt.Errorf("%s: balance: %w", op, err)
	}

	decision, err := s.review(ctx, instrument, metrics, verdicts, balance)
	if err != nil {
		// Fail closed: a failed or timed-out review resolves to hold.
		s.logger.Warn(ctx, "Policy review unavailable, holding", map[string]interface{}{
			"instrument": instrument, "cause": err.Error(),
		})
		return nil
	}

	if s.telemetry != nil {
		s.telemetry.DecisionsTotal.WithLabelValues(instrument, string(decision.Action)).Inc()
	}
	if decision.Action == domain.ActionHold {
		s.logger.Debug(ctx, "Review decided hold", map[string]interface{}{"instrument": instrument})
		return nil
	}

	plan, err := translator.Resolve(decision.Action, s.cfg.Market, s.ledger, instrument, s.cfg.Mode)
	if err != nil {
		// Stale or conflicting exposure is a structured rejection, not a
		// cycle failure.
		s.logger.Warn(ctx, "Decision not executable against current exposure", map[string]interface{}{
			"instrument": instrument, "action": string(decision.Action), "reason": err.Error(),
		})
		return nil
	}

	// An entry no strategy voted for is an override and carries half size.
	// Derived here from the verdicts, never taken from the review payload.
	override := !plan.Exit && !consensusFor(plan.Side, verdicts)

	dailyPNL := s.daily.Realized(time.Now()) + s.ledger.UnrealizedPNL(s.cfg.Mode, state.prices)
	verdict := s.evaluator.Evaluate(risk.Request{
		Instrument:       instrument,
		Mode:             s.cfg.Mode,
		Market:           s.cfg.Market,
		Side:             plan.Side,
		Exit:             plan.Exit,
		Price:            price,
		Balance:          balance,
		ATR:              metrics.ATR,
		Horizon:          decision.Horizon,
		Leverage:         s.cfg.Leverage,
		StopLossPct:      decision.StopLossPct,
		TakeProfitPct:    decision.TakeProfitPct,
		SuggestedSizePct: decision.PositionSizePct,
		Override:         override,
		DailyPNL:         dailyPNL,
	}, s.ledger)
	if !verdict.Approved {
		s.logger.Info(ctx, "Entry rejected by guardrails", map[string]interface{}{
			"instrument": instrument, "reason": verdict.Reason, "error": verdict.Err.Error(),
		})
		if s.telemetry != nil {
			s.telemetry.RejectionsTotal.WithLabelValues(instrument, verdict.Reason).Inc()
		}
		return nil
	}

	if plan.Exit {
		return s.executeClose(ctx, instrument, plan.Side, price, domain.CloseReasonSignal)
	}
	return s.executeEntry(ctx, instrument, plan.Side, price, decision.Horizon, verdict)
}

// recheckProtective closes any position whose stored stop-loss or take-profit
// is breached by the current price. Returns true when a trigger fired, which
// ends the instrument's cycle.
func (s *Service) recheckProtective(ctx context.Context, instrument string, price, atr float64) bool {
	triggered := false
	for _, trig := range s.ledger.CheckProtective(ctx, instrument, s.cfg.Mode, price, atr) {
		var reason domain.CloseReason
		var label string
		switch trig.Result {
		case position.TriggerStopLoss:
			reason, label = domain.CloseReasonStopLoss, "stop_loss"
		case position.TriggerTakeProfit:
			reason, label = domain.CloseReasonTakeProfit, "take_profit"
		default:
			continue
		}
		triggered = true
		s.logger.Info(ctx, "Protective level triggered", map[string]interface{}{
			"instrument": instrument, "side": trig.Position.Side, "trigger": label, "price": price,
		})
		if s.telemetry != nil {
			s.telemetry.ProtectiveExits.WithLabelValues(instrument, label).Inc()
		}
		if err := s.executeClose(ctx, instrument, trig.Position.Side, price, reason); err != nil {
			s.logger.Error(ctx, err, "Protective exit failed, position remains open", map[string]interface{}{
				"instrument": instrument, "side": trig.Position.Side,
			})
		}
	}
	return triggered
}

// collectVerdicts gathers one verdict per strategy. A failing strategy is
// logged and skipped; its absence is visible in the verdict summary.
func (s *Service) collectVerdicts(ctx context.Context, instrument string, klines []*domain.Kline, price float64) []domain.Verdict {
	var verdicts []domain.Verdict
	for _, strat := range s.strategies {
		if len(klines) < strat.RequiredDataPoints() {
			s.logger.Debug(ctx, "Not enough data for strategy", map[string]interface{}{
				"instrument": instrument, "strategy": strat.Name(), "have": len(klines), "need": strat.RequiredDataPoints(),
			})
			continue
		}
		v, err := strat.Evaluate(ctx, klines, price)
		if err != nil {
			s.logger.Error(ctx, err, "Strategy evaluation failed", map[string]interface{}{
				"instrument": instrument, "strategy": strat.Name(),
			})
			continue
		}
		verdicts = append(verdicts, v)
	}
	return verdicts
}

func (s *Service) review(ctx context.Context, instrument string, metrics domain.RiskMetrics, verdicts []domain.Verdict, balance float64) (*domain.ReviewDecision, error) {
	started := time.Now()
	decision, err := s.reviewer.Review(ctx, ports.ReviewRequest{
		Instrument: instrument,
		Mode:       s.cfg.Mode,
		Metrics:    metrics,
		Verdicts:   verdicts,
		Exposure:   s.ledger.InstrumentPositions(instrument, s.cfg.Mode),
		Balance:    balance,
	})
	if s.telemetry != nil {
		s.telemetry.ReviewDuration.Observe(time.Since(started).Seconds())
		if err != nil {
			cause := "failure"
			if errors.Is(err, ports.ErrReviewTimeout) {
				cause = "timeout"
			}
			s.telemetry.ReviewFailures.WithLabelValues(instrument, cause).Inc()
		}
	}
	return decision, err
}

// executeEntry opens a position: market order, ledger registration, then
// protective orders on the exchange.
func (s *Service) executeEntry(ctx context.Context, instrument string, side domain.Side, price float64, horizon domain.Horizon, verdict risk.Decision) error {
	req := domain.ExecutionRequest{
		DecisionID:      ulid.Make().String(),
		Instrument:      instrument,
		Side:            side,
		Quantity:        verdict.Quantity,
		StopLossPrice:   verdict.StopLoss,
		TakeProfitPrice: verdict.TakeProfit,
		Leverage:        s.cfg.Leverage,
		Mode:            s.cfg.Mode,
	}

	if s.cfg.Market == domain.MarketFutures {
		if err := s.executor.SetLeverage(ctx, instrument, req.Leverage); err != nil {
			return fmt.Errorf("set leverage: %w", err)
		}
	}

	order, err := s.executor.PlaceMarketOrder(ctx, instrument, entrySide(side), req.Quantity, false)
	if err != nil {
		return fmt.Errorf("entry order: %w", err)
	}
	entryPrice := order.AvgPrice
	if entryPrice == 0 {
		entryPrice = price
	}

	sl, tp := verdict.StopLoss, verdict.TakeProfit
	pos := &domain.Position{
		Instrument: instrument,
		Side:       side,
		Mode:       s.cfg.Mode,
		Quantity:   req.Quantity,
		EntryPrice: entryPrice,
		Leverage:   req.Leverage,
		Horizon:    horizon,
		EntryTime:  order.Timestamp,
		StopLoss:   &sl,
		TakeProfit: &tp,
	}
	if err := s.ledger.Add(ctx, pos); err != nil {
		return fmt.Errorf("ledger add after fill (decision %s): %w", req.DecisionID, err)
	}

	s.placeProtectiveOrders(ctx, pos, req)
	return nil
}

// placeProtectiveOrders places exchange-side stop and take-profit orders and
// records their IDs. Failure here is not fatal: the per-cycle recheck still
// protects the position.
func (s *Service) placeProtectiveOrders(ctx context.Context, pos *domain.Position, req domain.ExecutionRequest) {
	closeSide := exitSide(pos.Side)

	var slID, tpID *string
	if slOrder, err := s.executor.PlaceStopMarketOrder(ctx, pos.Instrument, closeSide, pos.Quantity, req.StopLossPrice); err != nil {
		s.logger.Error(ctx, err, "Failed to place stop-loss order, recheck will cover", map[string]interface{}{"positionID": pos.ID})
	} else {
		id := strconv.FormatInt(slOrder.OrderID, 10)
		slID = &id
	}
	if tpOrder, err := s.executor.PlaceTakeProfitMarketOrder(ctx, pos.Instrument, closeSide, pos.Quantity, req.TakeProfitPrice); err != nil {
		s.logger.Error(ctx, err, "Failed to place take-profit order, recheck will cover", map[string]interface{}{"positionID": pos.ID})
	} else {
		id := strconv.FormatInt(tpOrder.OrderID, 10)
		tpID = &id
	}

	if err := s.ledger.UpdateLevels(ctx, pos.Instrument, pos.Side, pos.Mode, pos.StopLoss, pos.TakeProfit, slID, tpID); err != nil {
		s.logger.Error(ctx, err, "Failed to record protective order IDs", map[string]interface{}{"positionID": pos.ID})
	}
}

// executeClose reduces existing exposure: cancel resting protective orders,
// fill a reduce-only market order, then settle the ledger and daily tracker.
func (s *Service) executeClose(ctx context.Context, instrument string, side domain.Side, price float64, reason domain.CloseReason) error {
	pos, ok := s.ledger.Find(instrument, side, s.cfg.Mode)
	if !ok {
		return fmt.Errorf("%s/%s/%s: %w", instrument, side, s.cfg.Mode, ports.ErrPositionNotFound)
	}

	s.cancelProtectiveOrder(ctx, instrument, pos.StopLossOrderID)
	s.cancelProtectiveOrder(ctx, instrument, pos.TakeProfitOrderID)

	order, err := s.executor.PlaceMarketOrder(ctx, instrument, exitSide(side), pos.Quantity, true)
	if err != nil {
		return fmt.Errorf("close order: %w", err)
	}
	exitPrice := order.AvgPrice
	if exitPrice == 0 {
		exitPrice = price
	}

	pnl, err := s.ledger.Close(ctx, instrument, side, s.cfg.Mode, exitPrice, reason)
	if err != nil {
		// The exchange position is flat but the ledger still shows it open.
		// Next cycle's recheck sees stored levels against a flat book; this
		// needs operator attention.
		return fmt.Errorf("ledger close after fill: %w", err)
	}
	s.daily.AddRealized(time.Now(), pnl)
	if adj, ok := s.executor.(ports.BalanceAdjuster); ok {
		adj.AdjustBalance(pnl)
	}
	return nil
}

func (s *Service) cancelProtectiveOrder(ctx context.Context, instrument string, orderID *string) {
	if orderID == nil {
		return
	}
	id, err := strconv.ParseInt(*orderID, 10, 64)
	if err != nil {
		s.logger.Warn(ctx, "Unparseable protective order ID", map[string]interface{}{"orderID": *orderID})
		return
	}
	if _, err := s.executor.CancelOrder(ctx, instrument, id); err != nil && !errors.Is(err, ports.ErrOrderNotFound) {
		s.logger.Error(ctx, err, "Failed to cancel protective order", map[string]interface{}{"orderID": *orderID})
	}
}

// consensusFor reports whether any strategy verdict backs an entry in the
// given direction.
func consensusFor(side domain.Side, verdicts []domain.Verdict) bool {
	want := domain.SignalBuy
	if side == domain.SideShort {
		want = domain.SignalSell
	}
	for _, v := range verdicts {
		if v.Signal == want {
			return true
		}
	}
	return false
}

func entrySide(side domain.Side) domain.OrderSide {
	if side == domain.SideShort {
		return domain.Sell
	}
	return domain.Buy
}

func exitSide(side domain.Side) domain.OrderSide {
	if side == domain.SideShort {
		return domain.Buy
	}
	return domain.Sell
}
