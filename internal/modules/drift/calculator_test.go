package drift

import (
	"testing"

	"ballast/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() *domain.Snapshot {
	return &domain.Snapshot{
		AccountID:  "acc-1",
		Cash:       10000,
		TotalValue: 100000,
		Holdings: []domain.Holding{
			{InstrumentID: "EQ-A", Quantity: 100, Valuation: 40000, AssetClass: "equity"},
			{InstrumentID: "EQ-B", Quantity: 50, Valuation: 20000, AssetClass: "equity"},
			{InstrumentID: "BD-A", Quantity: 300, Valuation: 30000, AssetClass: "bonds"},
		},
	}
}

func testTarget() domain.TargetAllocation {
	return domain.TargetAllocation{
		"equity": {
			WeightPct: 70,
			Instruments: []domain.InstrumentWeight{
				{InstrumentID: "EQ-A", WeightFraction: 0.5},
				{InstrumentID: "EQ-B", WeightFraction: 0.5},
			},
		},
		"bonds": {
			WeightPct: 30,
			Instruments: []domain.InstrumentWeight{
				{InstrumentID: "BD-A", WeightFraction: 1.0},
			},
		},
	}
}

func TestCalculate_ClassDrift(t *testing.T) {
	calc := NewCalculator(zerolog.Nop())

	report, err := calc.Calculate(testSnapshot(), testTarget())
	require.NoError(t, err)

	// equity: target 70%, actual 60% -> +10 (underweight)
	assert.InDelta(t, 10.0, report.ClassDrift["equity"], 1e-9)
	// bonds: target 30%, actual 30% -> 0
	assert.InDelta(t, 0.0, report.ClassDrift["bonds"], 1e-9)
}

func TestCalculate_InstrumentDriftUsesGlobalWeights(t *testing.T) {
	calc := NewCalculator(zerolog.Nop())

	report, err := calc.Calculate(testSnapshot(), testTarget())
	require.NoError(t, err)

	equity := report.Instruments["equity"]
	require.Len(t, equity, 2)

	// EQ-A: global target 70 * 0.5 = 35%, actual 40% -> -5
	assert.Equal(t, "EQ-A", equity[0].InstrumentID)
	assert.InDelta(t, 35.0, equity[0].TargetPct, 1e-9)
	assert.InDelta(t, 40.0, equity[0].ActualPct, 1e-9)
	assert.InDelta(t, -5.0, equity[0].DriftPct, 1e-9)

	// EQ-B: global target 35%, actual 20% -> +15
	assert.Equal(t, "EQ-B", equity[1].InstrumentID)
	assert.InDelta(t, 15.0, equity[1].DriftPct, 1e-9)
}

func TestCalculate_HeldClassWithoutTarget(t *testing.T) {
	calc := NewCalculator(zerolog.Nop())

	snapshot := &domain.Snapshot{
		AccountID:  "acc-1",
		TotalValue: 100000,
		Holdings: []domain.Holding{
			{InstrumentID: "GOLD-1", Quantity: 10, Valuation: 100000, AssetClass: "commodities"},
		},
	}
	target := domain.TargetAllocation{
		"equity": {WeightPct: 100, Instruments: []domain.InstrumentWeight{
			{InstrumentID: "EQ-A", WeightFraction: 1.0},
		}},
	}

	report, err := calc.Calculate(snapshot, target)
	require.NoError(t, err)

	// Held class absent from target is pure overweight
	assert.InDelta(t, -100.0, report.ClassDrift["commodities"], 1e-9)
	assert.InDelta(t, 100.0, report.ClassDrift["equity"], 1e-9)

	// The held instrument has no target weight anywhere: fully negative drift
	commodities := report.Instruments["commodities"]
	require.Len(t, commodities, 1)
	assert.Equal(t, "GOLD-1", commodities[0].InstrumentID)
	assert.InDelta(t, -100.0, commodities[0].DriftPct, 1e-9)
}

func TestCalculate_CashCountsTowardNoClass(t *testing.T) {
	calc := NewCalculator(zerolog.Nop())

	// Half the equity is cash: every held class's actual weight shrinks
	snapshot := &domain.Snapshot{
		AccountID:  "acc-1",
		Cash:       50000,
		TotalValue: 100000,
		Holdings: []domain.Holding{
			{InstrumentID: "EQ-A", Quantity: 100, Valuation: 50000, AssetClass: "equity"},
		},
	}
	target := domain.TargetAllocation{
		"equity": {WeightPct: 100},
	}

	report, err := calc.Calculate(snapshot, target)
	require.NoError(t, err)

	// Actual class weights sum to 50%, never above 100%
	assert.InDelta(t, 50.0, report.ClassDrift["equity"], 1e-9)
}

func TestCalculate_InvalidInputs(t *testing.T) {
	calc := NewCalculator(zerolog.Nop())

	_, err := calc.Calculate(nil, testTarget())
	assert.Error(t, err)

	_, err = calc.Calculate(&domain.Snapshot{TotalValue: 0}, testTarget())
	assert.Error(t, err)
}

func TestExceedsThreshold(t *testing.T) {
	calc := NewCalculator(zerolog.Nop())

	report := &domain.DriftReport{
		ClassDrift: map[string]float64{
			"equity": 4.0,
			"bonds":  -2.0,
		},
		Instruments: map[string][]domain.InstrumentDrift{
			"equity": {
				{InstrumentID: "EQ-A", DriftPct: 3.0},
				{InstrumentID: "EQ-B", DriftPct: -6.0},
			},
		},
	}

	tests := []struct {
		name          string
		classPct      float64
		instrumentPct float64
		expectTripped bool
		expectReasons int
	}{
		{name: "all below thresholds", classPct: 5.0, instrumentPct: 7.0, expectTripped: false},
		{name: "instrument magnitude trips", classPct: 5.0, instrumentPct: 5.0, expectTripped: true, expectReasons: 1},
		{name: "class boundary is inclusive", classPct: 4.0, instrumentPct: 100.0, expectTripped: true, expectReasons: 1},
		{name: "both levels trip", classPct: 2.0, instrumentPct: 3.0, expectTripped: true, expectReasons: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tripped, reasons := calc.ExceedsThreshold(report, tt.classPct, tt.instrumentPct)
			assert.Equal(t, tt.expectTripped, tripped)
			assert.Len(t, reasons, tt.expectReasons)
		})
	}
}

func TestExceedsThreshold_NilReport(t *testing.T) {
	calc := NewCalculator(zerolog.Nop())

	tripped, reasons := calc.ExceedsThreshold(nil, 1.0, 1.0)
	assert.False(t, tripped)
	assert.Empty(t, reasons)
}
