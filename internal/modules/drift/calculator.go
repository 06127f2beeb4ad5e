// Package drift measures the distance between current portfolio weights and
// the target allocation, at asset-class and instrument level.
package drift

import (
	"fmt"
	"math"
	"sort"

	"ballast/internal/domain"

	"github.com/rs/zerolog"
)

// Calculator computes drift reports. Pure, no I/O.
type Calculator struct {
	log zerolog.Logger
}

// NewCalculator creates a new drift calculator
func NewCalculator(log zerolog.Logger) *Calculator {
	return &Calculator{
		log: log.With().Str("service", "drift").Logger(),
	}
}

// Calculate derives class-level and instrument-level drift from a snapshot
// and a target allocation.
//
// Class drift = target weight - actual weight (positive means underweight,
// a buy candidate). Instrument drift is measured against the instrument's
// global weight (class weight x intra-class fraction), not its class-local
// weight, so hierarchical targets do not compound rounding error.
func (c *Calculator) Calculate(snapshot *domain.Snapshot, target domain.TargetAllocation) (*domain.DriftReport, error) {
	if snapshot == nil {
		return nil, fmt.Errorf("snapshot is required")
	}
	if snapshot.TotalValue <= 0 {
		return nil, fmt.Errorf("snapshot total value must be positive, got %.2f", snapshot.TotalValue)
	}

	classValuation := make(map[string]float64)
	instrumentValuation := make(map[string]float64)
	for _, h := range snapshot.Holdings {
		classValuation[h.AssetClass] += h.Valuation
		instrumentValuation[h.InstrumentID] += h.Valuation
	}

	report := &domain.DriftReport{
		ClassDrift:  make(map[string]float64),
		Instruments: make(map[string][]domain.InstrumentDrift),
		TotalValue:  snapshot.TotalValue,
	}

	// Union of classes present in the target and classes actually held:
	// a held class absent from the target is pure overweight.
	classes := make(map[string]bool)
	for class := range target {
		classes[class] = true
	}
	for class := range classValuation {
		classes[class] = true
	}

	for class := range classes {
		targetPct := target[class].WeightPct
		actualPct := classValuation[class] / snapshot.TotalValue * 100.0
		report.ClassDrift[class] = targetPct - actualPct

		instruments := target[class].Instruments
		drifts := make([]domain.InstrumentDrift, 0, len(instruments))
		seen := make(map[string]bool, len(instruments))
		for _, iw := range instruments {
			globalTarget := targetPct * iw.WeightFraction
			globalActual := instrumentValuation[iw.InstrumentID] / snapshot.TotalValue * 100.0
			drifts = append(drifts, domain.InstrumentDrift{
				InstrumentID: iw.InstrumentID,
				TargetPct:    globalTarget,
				ActualPct:    globalActual,
				DriftPct:     globalTarget - globalActual,
			})
			seen[iw.InstrumentID] = true
		}

		// Held instruments with no target weight in this class drift fully negative
		for _, h := range snapshot.Holdings {
			if h.AssetClass != class || seen[h.InstrumentID] {
				continue
			}
			seen[h.InstrumentID] = true
			globalActual := instrumentValuation[h.InstrumentID] / snapshot.TotalValue * 100.0
			drifts = append(drifts, domain.InstrumentDrift{
				InstrumentID: h.InstrumentID,
				TargetPct:    0,
				ActualPct:    globalActual,
				DriftPct:     -globalActual,
			})
		}

		sort.Slice(drifts, func(i, j int) bool {
			return drifts[i].InstrumentID < drifts[j].InstrumentID
		})
		report.Instruments[class] = drifts
	}

	c.log.Debug().
		Int("classes", len(report.ClassDrift)).
		Float64("total_value", snapshot.TotalValue).
		Msg("Calculated drift report")

	return report, nil
}

// ExceedsThreshold is the sole gate deciding whether the rest of the pipeline
// runs. It trips when any class drift magnitude reaches classThresholdPct or
// any instrument drift magnitude reaches instrumentThresholdPct.
func (c *Calculator) ExceedsThreshold(report *domain.DriftReport, classThresholdPct, instrumentThresholdPct float64) (bool, []string) {
	if report == nil {
		return false, nil
	}

	var reasons []string

	classes := make([]string, 0, len(report.ClassDrift))
	for class := range report.ClassDrift {
		classes = append(classes, class)
	}
	sort.Strings(classes)

	for _, class := range classes {
		d := report.ClassDrift[class]
		if math.Abs(d) >= classThresholdPct {
			reasons = append(reasons, fmt.Sprintf("asset class %s drift %.2f%% exceeds threshold %.2f%%", class, d, classThresholdPct))
		}
	}

	for _, class := range classes {
		for _, inst := range report.Instruments[class] {
			if math.Abs(inst.DriftPct) >= instrumentThresholdPct {
				reasons = append(reasons, fmt.Sprintf("instrument %s drift %.2f%% exceeds threshold %.2f%%", inst.InstrumentID, inst.DriftPct, instrumentThresholdPct))
			}
		}
	}

	return len(reasons) > 0, reasons
}
