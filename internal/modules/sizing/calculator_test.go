package sizing

import (
	"testing"

	"ballast/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetQuantities_FloorsShares(t *testing.T) {
	calc := NewCalculator(zerolog.Nop())

	quantities, err := calc.TargetQuantities(
		100000,
		map[string]float64{"EQ-A": 0.35, "EQ-B": 0.333},
		map[string]float64{"EQ-A": 400, "EQ-B": 97},
	)
	require.NoError(t, err)

	// 100000 * 0.35 / 400 = 87.5 -> 87
	assert.Equal(t, int64(87), quantities["EQ-A"])
	// 100000 * 0.333 / 97 = 343.29... -> 343
	assert.Equal(t, int64(343), quantities["EQ-B"])
}

func TestTargetQuantities_ZeroWeightNeedsNoPrice(t *testing.T) {
	calc := NewCalculator(zerolog.Nop())

	quantities, err := calc.TargetQuantities(
		100000,
		map[string]float64{"EQ-A": 0},
		map[string]float64{},
	)
	require.NoError(t, err)
	assert.Equal(t, int64(0), quantities["EQ-A"])
}

func TestTargetQuantities_MissingPriceFails(t *testing.T) {
	calc := NewCalculator(zerolog.Nop())

	_, err := calc.TargetQuantities(
		100000,
		map[string]float64{"EQ-A": 0.5},
		map[string]float64{},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing price")

	_, err = calc.TargetQuantities(
		100000,
		map[string]float64{"EQ-A": 0.5},
		map[string]float64{"EQ-A": -1},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid price")
}

func TestTargetQuantities_Deterministic(t *testing.T) {
	calc := NewCalculator(zerolog.Nop())

	weights := map[string]float64{"EQ-A": 0.35, "EQ-B": 0.333, "BD-A": 0.25}
	prices := map[string]float64{"EQ-A": 400, "EQ-B": 97, "BD-A": 101.5}

	first, err := calc.TargetQuantities(100000, weights, prices)
	require.NoError(t, err)
	second, err := calc.TargetQuantities(100000, weights, prices)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestNetTrades_Basic(t *testing.T) {
	calc := NewCalculator(zerolog.Nop())

	current := map[string]int64{"EQ-A": 100, "EQ-B": 20, "EQ-C": 50}
	target := map[string]int64{"EQ-A": 100, "EQ-B": 60, "EQ-C": 10}
	prices := map[string]float64{"EQ-A": 10, "EQ-B": 25, "EQ-C": 40}

	trades, err := calc.NetTrades(current, target, prices)
	require.NoError(t, err)
	require.Len(t, trades, 2) // zero delta for EQ-A dropped

	assert.Equal(t, domain.NetTrade{
		InstrumentID: "EQ-B", Side: domain.SideBuy, Quantity: 40, EstimatedAmount: 1000,
	}, trades[0])
	assert.Equal(t, domain.NetTrade{
		InstrumentID: "EQ-C", Side: domain.SideSell, Quantity: 40, EstimatedAmount: 1600,
	}, trades[1])
}

func TestNetTrades_SellOutUntargetedHolding(t *testing.T) {
	calc := NewCalculator(zerolog.Nop())

	// Held but absent from target: full liquidation
	trades, err := calc.NetTrades(
		map[string]int64{"OLD-1": 30},
		map[string]int64{},
		map[string]float64{"OLD-1": 12},
	)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, domain.SideSell, trades[0].Side)
	assert.Equal(t, int64(30), trades[0].Quantity)
}

func TestNetTrades_ClampsSellToHeldPosition(t *testing.T) {
	calc := NewCalculator(zerolog.Nop())

	// Target quantity far below a stale holding count must not short
	trades, err := calc.NetTrades(
		map[string]int64{"EQ-A": 10},
		map[string]int64{"EQ-A": -5},
		map[string]float64{"EQ-A": 100},
	)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, int64(10), trades[0].Quantity)
}

func TestNetTrades_MissingPriceFails(t *testing.T) {
	calc := NewCalculator(zerolog.Nop())

	_, err := calc.NetTrades(
		map[string]int64{"EQ-A": 10},
		map[string]int64{"EQ-A": 20},
		map[string]float64{},
	)
	assert.Error(t, err)
}

func TestNetTrades_IdempotentAtTarget(t *testing.T) {
	calc := NewCalculator(zerolog.Nop())

	target := map[string]int64{"EQ-A": 87, "EQ-B": 343}
	prices := map[string]float64{"EQ-A": 400, "EQ-B": 97}

	trades, err := calc.NetTrades(target, target, prices)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestNetTrades_DeltasReachTarget(t *testing.T) {
	calc := NewCalculator(zerolog.Nop())

	current := map[string]int64{"EQ-A": 100, "EQ-B": 20, "EQ-C": 50, "OLD-1": 7}
	target := map[string]int64{"EQ-A": 150, "EQ-B": 20, "EQ-C": 0}
	prices := map[string]float64{"EQ-A": 10, "EQ-B": 25, "EQ-C": 40, "OLD-1": 3}

	trades, err := calc.NetTrades(current, target, prices)
	require.NoError(t, err)

	applied := make(map[string]int64, len(current))
	for id, qty := range current {
		applied[id] = qty
	}
	for _, tr := range trades {
		switch tr.Side {
		case domain.SideBuy:
			applied[tr.InstrumentID] += tr.Quantity
		case domain.SideSell:
			applied[tr.InstrumentID] -= tr.Quantity
		}
	}

	for id := range applied {
		assert.Equal(t, target[id], applied[id], "instrument %s", id)
	}
}

func TestFilterMinimumTrade(t *testing.T) {
	calc := NewCalculator(zerolog.Nop())

	prices := map[string]float64{"EQ-A": 10, "EQ-B": 100}
	trades := []domain.NetTrade{
		{InstrumentID: "EQ-A", Side: domain.SideBuy, Quantity: 5},   // notional 50
		{InstrumentID: "EQ-B", Side: domain.SideSell, Quantity: 10}, // notional 1000
	}

	kept := calc.FilterMinimumTrade(trades, prices, 100)
	require.Len(t, kept, 1)
	assert.Equal(t, "EQ-B", kept[0].InstrumentID)

	// Zero disables filtering
	kept = calc.FilterMinimumTrade(trades, prices, 0)
	assert.Len(t, kept, 2)
}
