package risk

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
)

func TestComputeLevels(t *testing.T) {
	medium := DefaultTable().Get(domain.HorizonMedium)

	tests := []struct {
		name       string
		side       domain.Side
		entryPrice float64
		atr        float64
		params     HorizonParams
		adaptive   bool
		wantSL     float64
		wantTP     float64
		wantErr    error
	}{
		{
			name:       "long adaptive medium",
			side:       domain.SideLong,
			entryPrice: 100.0,
			atr:        4.0,
			params:     medium,
			adaptive:   true,
			wantSL:     94.0,  // 100 - 4*1.5
			wantTP:     112.0, // 100 + 4*3.0
		},
		{
			name:       "short adaptive medium mirrors long",
			side:       domain.SideShort,
			entryPrice: 100.0,
			atr:        4.0,
			params:     medium,
			adaptive:   true,
			wantSL:     106.0,
			wantTP:     88.0,
		},
		{
			name:       "percentage fallback when adaptive disabled",
			side:       domain.SideLong,
			entryPrice: 200.0,
			atr:        4.0,
			params:     medium,
			adaptive:   false,
			wantSL:     196.0, // 200 * (1 - 0.02)
			wantTP:     208.0, // 200 * (1 + 0.04)
		},
		{
			name:       "percentage fallback when ATR unavailable",
			side:       domain.SideLong,
			entryPrice: 200.0,
			atr:        0,
			params:     medium,
			adaptive:   true,
			wantSL:     196.0,
			wantTP:     208.0,
		},
		{
			name:       "stop crossing zero is an inversion",
			side:       domain.SideLong,
			entryPrice: 5.0,
			atr:        10.0,
			params:     medium,
			adaptive:   true,
			wantErr:    ports.ErrLevelInversion,
		},
		{
			name:       "short take-profit crossing zero is an inversion",
			side:       domain.SideShort,
			entryPrice: 5.0,
			atr:        10.0,
			params:     medium,
			adaptive:   true,
			wantErr:    ports.ErrLevelInversion,
		},
		{
			name:       "non-positive entry price rejected",
			side:       domain.SideLong,
			entryPrice: 0,
			atr:        4.0,
			params:     medium,
			adaptive:   true,
			wantErr:    ports.ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sl, tp, err := ComputeLevels(tt.side, tt.entryPrice, tt.atr, tt.params, tt.adaptive)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "expected %v, got %v", tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.wantSL, sl, 1e-9)
			assert.InDelta(t, tt.wantTP, tp, 1e-9)
		})
	}
}

func TestComputeLevels_Deterministic(t *testing.T) {
	medium := DefaultTable().Get(domain.HorizonMedium)
	sl1, tp1, err1 := ComputeLevels(domain.SideLong, 100.0, 4.0, medium, true)
	sl2, tp2, err2 := ComputeLevels(domain.SideLong, 100.0, 4.0, medium, true)
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, sl1, sl2)
	assert.Equal(t, tp1, tp2)
}

func TestRiskReward(t *testing.T) {
	// 12 of reward over 6 of risk.
	assert.InDelta(t, 2.0, RiskReward(100.0, 94.0, 112.0), 1e-9)
	// Same ratio from the short side.
	assert.InDelta(t, 2.0, RiskReward(100.0, 106.0, 88.0), 1e-9)
	// Degenerate stop distance.
	assert.Equal(t, 0.0, RiskReward(100.0, 100.0, 112.0))
}
