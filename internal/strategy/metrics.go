package strategy

import (
	"context"
	"fmt"

	"tradePilot/internal/domain"
	"tradePilot/internal/strategy/indicators"
)

// MetricsConfig holds the lookback settings for per-cycle risk metrics.
type MetricsConfig struct {
	ATRPeriod       int     // e.g., 14
	BBPeriod        int     // e.g., 20
	BBStdDev        float64 // e.g., 2.0
	SupportLookback int     // Candles scanned for recent support/resistance, e.g., 50
}

// MetricsBuilder computes the per-instrument, per-cycle RiskMetrics bundle.
// The bundle is ephemeral: it feeds the protective-level calculator and the
// policy-review request, and is recomputed from scratch every cycle.
type MetricsBuilder struct {
	cfg       MetricsConfig
	atr       *indicators.ATR
	bollinger *indicators.Bollinger
}

// NewMetricsBuilder creates a metrics builder.
func NewMetricsBuilder(cfg MetricsConfig) (*MetricsBuilder, error) {
	if cfg.ATRPeriod <= 0 || cfg.BBPeriod <= 0 || cfg.SupportLookback <= 0 {
		return nil, fmt.Errorf("metrics periods must be positive")
	}
	return &MetricsBuilder{
		cfg: cfg,
		atr: indicators.NewATR(indicators.ATRConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: cfg.ATRPeriod},
		}),
		bollinger: indicators.NewBollinger(indicators.BollingerConfig{
			IndicatorConfig:  indicators.IndicatorConfig{Period: cfg.BBPeriod},
			StdDevMultiplier: cfg.BBStdDev,
		}),
	}, nil
}

// RequiredDataPoints returns the minimum number of klines needed.
func (b *MetricsBuilder) RequiredDataPoints() int {
	max := b.cfg.ATRPeriod + 1
	if b.cfg.BBPeriod > max {
		max = b.cfg.BBPeriod
	}
	if b.cfg.SupportLookback > max {
		max = b.cfg.SupportLookback
	}
	return max
}

// Build computes the metrics bundle for one instrument. ATR is mandatory;
// band position and support/resistance degrade to zero values when the
// history is too short for their lookbacks.
func (b *MetricsBuilder) Build(ctx context.Context, instrument string, klines []*domain.Kline, currentPrice float64) (domain.RiskMetrics, error) {
	m := domain.RiskMetrics{Instrument: instrument, Price: currentPrice, BandPosition: 0.5}

	atr, err := b.atr.Calculate(ctx, klines)
	if err != nil {
		return m, fmt.Errorf("ATR: %w", err)
	}
	m.ATR = atr

	if bandPos, err := b.bollinger.Calculate(ctx, klines); err == nil {
		m.BandPosition = bandPos
	}

	if len(klines) >= b.cfg.SupportLookback {
		window := klines[len(klines)-b.cfg.SupportLookback:]
		support, resistance := window[0].Low, window[0].High
		for _, k := range window {
			if k.Low < support {
				support = k.Low
			}
			if k.High > resistance {
				resistance = k.High
			}
		}
		m.Support = support
		m.Resistance = resistance
	}
	return m, nil
}
