package strategy

import (
	"context"
	"fmt"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
	"tradePilot/internal/strategy/indicators"
)

// MeanReversionConfig holds parameters for the RSI mean-reversion provider.
type MeanReversionConfig struct {
	RSIPeriod     int     // e.g., 14
	RSIOverbought float64 // e.g., 70.0
	RSIOversold   float64 // e.g., 30.0
	BBPeriod      int     // e.g., 20
	BBStdDev      float64 // e.g., 2.0
}

// MeanReversion signals buy when RSI is oversold near the lower Bollinger
// band and sell when overbought near the upper band. It deliberately
// disagrees with trend-following in stretched markets; arbitration is the
// policy review's job.
type MeanReversion struct {
	cfg       MeanReversionConfig
	rsi       *indicators.RSI
	bollinger *indicators.Bollinger
	logger    ports.Logger
}

// NewMeanReversion creates an RSI mean-reversion verdict provider.
func NewMeanReversion(cfg MeanReversionConfig, logger ports.Logger) (*MeanReversion, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for strategy")
	}
	if cfg.RSIPeriod <= 0 || cfg.BBPeriod <= 0 {
		return nil, fmt.Errorf("strategy periods must be positive")
	}
	if cfg.RSIOverbought <= cfg.RSIOversold {
		return nil, fmt.Errorf("RSI overbought must be above oversold")
	}
	return &MeanReversion{
		cfg: cfg,
		rsi: indicators.NewRSI(indicators.RSIConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: cfg.RSIPeriod},
			Overbought:      cfg.RSIOverbought,
			Oversold:        cfg.RSIOversold,
		}),
		bollinger: indicators.NewBollinger(indicators.BollingerConfig{
			IndicatorConfig:  indicators.IndicatorConfig{Period: cfg.BBPeriod},
			StdDevMultiplier: cfg.BBStdDev,
		}),
		logger: logger,
	}, nil
}

// Name identifies the strategy in verdict summaries and logs.
func (s *MeanReversion) Name() string { return "mean_reversion" }

// RequiredDataPoints returns the minimum number of klines needed.
func (s *MeanReversion) RequiredDataPoints() int {
	if s.cfg.BBPeriod > s.cfg.RSIPeriod {
		return s.cfg.BBPeriod + 1
	}
	return s.cfg.RSIPeriod + 1
}

// Evaluate returns the mean-reversion verdict for the given candle history.
func (s *MeanReversion) Evaluate(ctx context.Context, klines []*domain.Kline, currentPrice float64) (domain.Verdict, error) {
	hold := domain.Verdict{Strategy: s.Name(), Signal: domain.SignalHold}
	if len(klines) < s.RequiredDataPoints() {
		return hold, fmt.Errorf("not enough kline data: have %d, need %d", len(klines), s.RequiredDataPoints())
	}

	rsi, err := s.rsi.Calculate(ctx, klines)
	if err != nil {
		return hold, fmt.Errorf("RSI: %w", err)
	}
	bandPos, err := s.bollinger.Calculate(ctx, klines)
	if err != nil {
		return hold, fmt.Errorf("Bollinger: %w", err)
	}

	switch {
	case rsi <= s.cfg.RSIOversold && bandPos <= 0.2:
		conf := 0.5 + (s.cfg.RSIOversold-rsi)/s.cfg.RSIOversold
		if conf > 1 {
			conf = 1
		}
		s.logger.Debug(ctx, "Oversold reversion setup", map[string]interface{}{"rsi": rsi, "bandPosition": bandPos})
		return domain.Verdict{Strategy: s.Name(), Signal: domain.SignalBuy, Confidence: conf}, nil
	case rsi >= s.cfg.RSIOverbought && bandPos >= 0.8:
		conf := 0.5 + (rsi-s.cfg.RSIOverbought)/(100-s.cfg.RSIOverbought)
		if conf > 1 {
			conf = 1
		}
		return domain.Verdict{Strategy: s.Name(), Signal: domain.SignalSell, Confidence: conf}, nil
	}
	return hold, nil
}
