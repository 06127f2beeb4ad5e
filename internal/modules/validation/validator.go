// Package validation simulates a plan against the account's cash ledger and
// rejects plans that would overdraw cash or contain an anomalously large
// single trade. Pure, no I/O; ledger sums use decimals.
package validation

import (
	"fmt"

	"ballast/internal/domain"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Validator checks execution plans before they may reach the executor
type Validator struct {
	sellHaircut       decimal.Decimal // conservative discount on sell proceeds
	buyMarkup         decimal.Decimal // conservative markup on buy cost
	maxEquityFraction decimal.Decimal // single-instruction anomaly limit
	log               zerolog.Logger
}

// NewValidator creates a strategy validator. Haircut and markup model fees
// and slippage conservatively (defaults 1%/1% at the config layer);
// maxEquityFraction is the anomaly circuit breaker (default 50%).
func NewValidator(sellHaircut, buyMarkup, maxEquityFraction float64, log zerolog.Logger) *Validator {
	return &Validator{
		sellHaircut:       decimal.NewFromFloat(sellHaircut),
		buyMarkup:         decimal.NewFromFloat(buyMarkup),
		maxEquityFraction: decimal.NewFromFloat(maxEquityFraction),
		log:               log.With().Str("service", "validation").Logger(),
	}
}

// Validate simulates the cash ledger:
//
//	available_after_sell = cash + sum(sell amounts) * (1 - haircut)
//	required_for_buy     = sum(buy amounts) * (1 + markup)
//
// The plan is invalid if required exceeds available, or if any single
// instruction's estimated amount exceeds the anomaly fraction of total
// equity (a circuit breaker against a clearly wrong computed quantity).
// ProjectedCashAfter is surfaced even on rejection to aid diagnosis.
func (v *Validator) Validate(snapshot *domain.Snapshot, plan []domain.ExecutionInstruction) domain.ValidationResult {
	cash := decimal.NewFromFloat(snapshot.Cash)
	totalEquity := decimal.NewFromFloat(snapshot.TotalValue)
	one := decimal.NewFromInt(1)

	sellProceeds := decimal.Zero
	buyRequired := decimal.Zero
	var reasons []string

	anomalyLimit := totalEquity.Mul(v.maxEquityFraction)
	for _, instr := range plan {
		amount := decimal.NewFromFloat(instr.Trade.EstimatedAmount)

		if totalEquity.IsPositive() && amount.GreaterThan(anomalyLimit) {
			reasons = append(reasons, fmt.Sprintf(
				"anomalous instruction: %s %s estimated amount %s exceeds %s%% of total equity",
				instr.Trade.Side, instr.Trade.InstrumentID,
				amount.StringFixed(2),
				v.maxEquityFraction.Mul(decimal.NewFromInt(100)).StringFixed(0),
			))
		}

		switch instr.Trade.Side {
		case domain.SideSell:
			sellProceeds = sellProceeds.Add(amount)
		case domain.SideBuy:
			buyRequired = buyRequired.Add(amount)
		}
	}

	availableAfterSell := cash.Add(sellProceeds.Mul(one.Sub(v.sellHaircut)))
	requiredForBuy := buyRequired.Mul(one.Add(v.buyMarkup))
	projected := availableAfterSell.Sub(requiredForBuy)

	if availableAfterSell.LessThan(requiredForBuy) {
		shortfall := requiredForBuy.Sub(availableAfterSell)
		reasons = append(reasons, fmt.Sprintf(
			"insufficient cash: available %s after sells, required %s for buys (shortfall %s)",
			availableAfterSell.StringFixed(2), requiredForBuy.StringFixed(2), shortfall.StringFixed(2),
		))
	}

	projectedCash, _ := projected.Float64()
	result := domain.ValidationResult{
		IsValid:            len(reasons) == 0,
		Reasons:            reasons,
		ProjectedCashAfter: projectedCash,
	}

	v.log.Info().
		Bool("is_valid", result.IsValid).
		Int("instructions", len(plan)).
		Float64("projected_cash_after", projectedCash).
		Strs("reasons", reasons).
		Msg("Validated execution plan")

	return result
}
