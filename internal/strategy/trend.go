// Package strategy holds the built-in verdict providers. Each provider gives
// an independent directional opinion; the risk engine consumes the aggregated
// summary alongside the external review's final decision and never acts on a
// raw verdict directly.
package strategy

import (
	"context"
	"fmt"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
	"tradePilot/internal/strategy/indicators"
)

// TrendFollowConfig holds parameters for the trend-following provider.
type TrendFollowConfig struct {
	ShortMAPeriod int     // e.g., 20
	LongMAPeriod  int     // e.g., 50
	EMAPeriod     int     // e.g., 20
	RSIPeriod     int     // e.g., 14
	RSIOverbought float64 // e.g., 70.0
	RSIOversold   float64 // e.g., 30.0
}

// TrendFollow signals buy when the short MA is above the long MA with price
// above its EMA, and sell on the mirrored conditions. RSI extremes veto
// entries into exhausted moves.
type TrendFollow struct {
	cfg     TrendFollowConfig
	shortMA *indicators.MovingAverage
	longMA  *indicators.MovingAverage
	ema     *indicators.MovingAverage
	rsi     *indicators.RSI
	logger  ports.Logger
}

// NewTrendFollow creates a trend-following verdict provider.
func NewTrendFollow(cfg TrendFollowConfig, logger ports.Logger) (*TrendFollow, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for strategy")
	}
	if cfg.ShortMAPeriod <= 0 || cfg.LongMAPeriod <= 0 || cfg.EMAPeriod <= 0 || cfg.RSIPeriod <= 0 {
		return nil, fmt.Errorf("strategy periods must be positive")
	}
	if cfg.ShortMAPeriod >= cfg.LongMAPeriod {
		return nil, fmt.Errorf("short MA period must be less than long MA period")
	}
	if cfg.RSIOverbought <= cfg.RSIOversold || cfg.RSIOverbought > 100 || cfg.RSIOversold < 0 {
		return nil, fmt.Errorf("invalid RSI thresholds")
	}
	return &TrendFollow{
		cfg: cfg,
		shortMA: indicators.NewMovingAverage(indicators.MovingAverageConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: cfg.ShortMAPeriod},
			Type:            indicators.SimpleMovingAverage,
		}),
		longMA: indicators.NewMovingAverage(indicators.MovingAverageConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: cfg.LongMAPeriod},
			Type:            indicators.SimpleMovingAverage,
		}),
		ema: indicators.NewMovingAverage(indicators.MovingAverageConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: cfg.EMAPeriod},
			Type:            indicators.ExponentialMovingAverage,
		}),
		rsi: indicators.NewRSI(indicators.RSIConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: cfg.RSIPeriod},
			Overbought:      cfg.RSIOverbought,
			Oversold:        cfg.RSIOversold,
		}),
		logger: logger,
	}, nil
}

// Name identifies the strategy in verdict summaries and logs.
func (s *TrendFollow) Name() string { return "trend_follow" }

// RequiredDataPoints returns the minimum number of klines needed.
func (s *TrendFollow) RequiredDataPoints() int {
	max := s.cfg.LongMAPeriod
	if s.cfg.EMAPeriod > max {
		max = s.cfg.EMAPeriod
	}
	if s.cfg.RSIPeriod > max {
		max = s.cfg.RSIPeriod
	}
	// RSI looks one step further back than its period
	return max + 1
}

// Evaluate returns the trend verdict for the given candle history.
func (s *TrendFollow) Evaluate(ctx context.Context, klines []*domain.Kline, currentPrice float64) (domain.Verdict, error) {
	hold := domain.Verdict{Strategy: s.Name(), Signal: domain.SignalHold}
	if len(klines) < s.RequiredDataPoints() {
		return hold, fmt.Errorf("not enough kline data: have %d, need %d", len(klines), s.RequiredDataPoints())
	}

	shortMA, err := s.shortMA.Calculate(ctx, klines)
	if err != nil {
		return hold, fmt.Errorf("short MA: %w", err)
	}
	longMA, err := s.longMA.Calculate(ctx, klines)
	if err != nil {
		return hold, fmt.Errorf("long MA: %w", err)
	}
	ema, err := s.ema.Calculate(ctx, klines)
	if err != nil {
		return hold, fmt.Errorf("EMA: %w", err)
	}
	rsi, err := s.rsi.Calculate(ctx, klines)
	if err != nil {
		return hold, fmt.Errorf("RSI: %w", err)
	}

	trendingUp := currentPrice > shortMA && currentPrice > longMA && shortMA > longMA
	trendingDown := currentPrice < shortMA && currentPrice < longMA && shortMA < longMA

	switch {
	case trendingUp && currentPrice > ema && rsi < s.cfg.RSIOverbought:
		conf := confidenceFromSpread(shortMA, longMA)
		s.logger.Debug(ctx, "Trend entry conditions met", map[string]interface{}{
			"shortMA": shortMA, "longMA": longMA, "ema": ema, "rsi": rsi, "confidence": conf,
		})
		return domain.Verdict{Strategy: s.Name(), Signal: domain.SignalBuy, Confidence: conf}, nil
	case trendingDown && currentPrice < ema && rsi > s.cfg.RSIOversold:
		conf := confidenceFromSpread(longMA, shortMA)
		return domain.Verdict{Strategy: s.Name(), Signal: domain.SignalSell, Confidence: conf}, nil
	}
	return hold, nil
}

// confidenceFromSpread maps the relative MA spread onto [0.5, 1.0]: a wider
// spread means a more established trend.
func confidenceFromSpread(leading, lagging float64) float64 {
	if lagging == 0 {
		return 0.5
	}
	spread := (leading - lagging) / lagging
	conf := 0.5 + spread*25 // 2% spread saturates confidence
	if conf > 1 {
		conf = 1
	}
	if conf < 0.5 {
		conf = 0.5
	}
	return conf
}
