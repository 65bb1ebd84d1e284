package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradePilot/internal/domain"
)

type noopLogger struct{}

func (noopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (noopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (noopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (noopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func klinesFromCloses(values ...float64) []*domain.Kline {
	base := time.Now().UTC().Add(-time.Duration(len(values)) * time.Minute)
	klines := make([]*domain.Kline, len(values))
	for i, v := range values {
		klines[i] = &domain.Kline{
			OpenTime: base.Add(time.Duration(i) * time.Minute),
			Open:     v, High: v + 1, Low: v - 1, Close: v,
		}
	}
	return klines
}

func newTrendFollow(t *testing.T) *TrendFollow {
	t.Helper()
	s, err := NewTrendFollow(TrendFollowConfig{
		ShortMAPeriod: 2,
		LongMAPeriod:  4,
		EMAPeriod:     2,
		RSIPeriod:     2,
		RSIOverbought: 95.0,
		RSIOversold:   5.0,
	}, noopLogger{})
	require.NoError(t, err)
	return s
}

func TestTrendFollow_Evaluate(t *testing.T) {
	s := newTrendFollow(t)

	t.Run("uptrend above averages signals buy", func(t *testing.T) {
		v, err := s.Evaluate(context.Background(), klinesFromCloses(100, 102, 101, 103, 102, 104), 105.0)
		require.NoError(t, err)
		assert.Equal(t, domain.SignalBuy, v.Signal)
		assert.Equal(t, "trend_follow", v.Strategy)
		assert.GreaterOrEqual(t, v.Confidence, 0.5)
		assert.LessOrEqual(t, v.Confidence, 1.0)
	})

	t.Run("downtrend below averages signals sell", func(t *testing.T) {
		v, err := s.Evaluate(context.Background(), klinesFromCloses(104, 102, 103, 101, 102, 100), 99.0)
		require.NoError(t, err)
		assert.Equal(t, domain.SignalSell, v.Signal)
	})

	t.Run("choppy market holds", func(t *testing.T) {
		v, err := s.Evaluate(context.Background(), klinesFromCloses(100, 101, 100, 101, 100, 101), 100.5)
		require.NoError(t, err)
		assert.Equal(t, domain.SignalHold, v.Signal)
	})

	t.Run("insufficient data is an error", func(t *testing.T) {
		v, err := s.Evaluate(context.Background(), klinesFromCloses(100, 101, 102), 103.0)
		require.Error(t, err)
		assert.Equal(t, domain.SignalHold, v.Signal)
	})
}

func TestTrendFollow_ConfigValidation(t *testing.T) {
	base := TrendFollowConfig{
		ShortMAPeriod: 2, LongMAPeriod: 4, EMAPeriod: 2, RSIPeriod: 2,
		RSIOverbought: 70, RSIOversold: 30,
	}

	t.Run("short MA must be below long MA", func(t *testing.T) {
		cfg := base
		cfg.ShortMAPeriod = 4
		_, err := NewTrendFollow(cfg, noopLogger{})
		assert.Error(t, err)
	})

	t.Run("RSI thresholds must be ordered", func(t *testing.T) {
		cfg := base
		cfg.RSIOverbought = 20
		_, err := NewTrendFollow(cfg, noopLogger{})
		assert.Error(t, err)
	})

	t.Run("logger required", func(t *testing.T) {
		_, err := NewTrendFollow(base, nil)
		assert.Error(t, err)
	})
}

func TestConfidenceFromSpread(t *testing.T) {
	// 2% spread saturates.
	assert.Equal(t, 1.0, confidenceFromSpread(102.0, 100.0))
	// No spread floors at 0.5.
	assert.Equal(t, 0.5, confidenceFromSpread(100.0, 100.0))
	// Mid-range spread interpolates.
	assert.InDelta(t, 0.75, confidenceFromSpread(101.0, 100.0), 1e-9)
}
