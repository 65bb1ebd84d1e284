package indicators

import (
	"context"
	"math"
	"testing"
)

func TestMovingAverage_Calculate(t *testing.T) {
	history := closes(100, 102, 101, 103, 104)

	tests := []struct {
		name          string
		maType        MovingAverageType
		period        int
		expectedValue float64
		expectError   bool
	}{
		{
			name:          "SMA over the last three closes",
			maType:        SimpleMovingAverage,
			period:        3,
			expectedValue: (101.0 + 103.0 + 104.0) / 3.0,
		},
		{
			// Seed SMA (100+102+101)/3 = 101, then fold 103 and 104 at
			// weight 0.5: 102, then 103.
			name:          "EMA seeds from SMA then folds later closes",
			maType:        ExponentialMovingAverage,
			period:        3,
			expectedValue: 103.0,
		},
		{
			name:        "insufficient data",
			maType:      SimpleMovingAverage,
			period:      6,
			expectError: true,
		},
		{
			name:        "unknown type",
			maType:      "WEIGHTED",
			period:      3,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ma := NewMovingAverage(MovingAverageConfig{
				IndicatorConfig: IndicatorConfig{Period: tt.period},
				Type:            tt.maType,
			})
			got, err := ma.Calculate(context.Background(), history)
			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error, got value %f", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tt.expectedValue) > 1e-9 {
				t.Errorf("expected %f, got %f", tt.expectedValue, got)
			}
		})
	}
}

func TestMovingAverage_Name(t *testing.T) {
	if name := NewMovingAverage(MovingAverageConfig{Type: SimpleMovingAverage}).Name(); name != "SMA" {
		t.Errorf("expected SMA, got %s", name)
	}
	if name := NewMovingAverage(MovingAverageConfig{Type: ExponentialMovingAverage}).Name(); name != "EMA" {
		t.Errorf("expected EMA, got %s", name)
	}
}
