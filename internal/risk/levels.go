package risk

import (
	"fmt"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
)

// ComputeLevels derives stop-loss and take-profit prices for an entry.
//
// When adaptive is enabled and an ATR value is available the distances scale
// with recent volatility; otherwise the horizon's fixed percentages apply.
// The function is pure and deterministic given its inputs.
//
// Levels that would not bracket the entry price on the correct sides are a
// fatal computation error for the candidate, never silently inverted or
// clamped.
func ComputeLevels(side domain.Side, entryPrice, atr float64, params HorizonParams, adaptive bool) (stopLoss, takeProfit float64, err error) {
	if entryPrice <= 0 {
		return 0, 0, fmt.Errorf("entry price must be positive, got %f: %w", entryPrice, ports.ErrInvalidRequest)
	}

	var slDist, tpDist float64
	if adaptive && atr > 0 {
		slDist = atr * params.SLMultiplier
		tpDist = atr * params.TPMultiplier
	} else {
		slDist = entryPrice * params.SLPct
		tpDist = entryPrice * params.TPPct
	}

	switch side {
	case domain.SideLong:
		stopLoss = entryPrice - slDist
		takeProfit = entryPrice + tpDist
		if stopLoss <= 0 || stopLoss >= entryPrice || takeProfit <= entryPrice {
			return 0, 0, fmt.Errorf("long levels sl=%f tp=%f around entry %f: %w",
				stopLoss, takeProfit, entryPrice, ports.ErrLevelInversion)
		}
	case domain.SideShort:
		stopLoss = entryPrice + slDist
		takeProfit = entryPrice - tpDist
		if takeProfit <= 0 || takeProfit >= entryPrice || stopLoss <= entryPrice {
			return 0, 0, fmt.Errorf("short levels sl=%f tp=%f around entry %f: %w",
				stopLoss, takeProfit, entryPrice, ports.ErrLevelInversion)
		}
	default:
		return 0, 0, fmt.Errorf("unknown side %q: %w", side, ports.ErrInvalidRequest)
	}

	return stopLoss, takeProfit, nil
}

// RiskReward returns the take-profit distance over the stop-loss distance
// from the entry price. Returns 0 when the stop distance is zero.
func RiskReward(entryPrice, stopLoss, takeProfit float64) float64 {
	slDist := abs(entryPrice - stopLoss)
	tpDist := abs(takeProfit - entryPrice)
	if slDist == 0 {
		return 0
	}
	return tpDist / slDist
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
