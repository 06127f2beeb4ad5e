// Package strategy assigns an order style and price policy to every net
// trade. An external advisory oracle is consulted once per run; any gap in
// its output is closed by a deterministic MARKET fallback so the plan is
// always complete and executable without live advisory access.
package strategy

import (
	"context"

	"ballast/internal/domain"

	"github.com/rs/zerolog"
)

// Planner builds execution instructions from net trades
type Planner struct {
	oracle     domain.AdvisoryOracle // optional; nil routes everything to the fallback
	priceModel *LimitPriceBuilder
	log        zerolog.Logger
}

// NewPlanner creates a new execution strategy planner
func NewPlanner(oracle domain.AdvisoryOracle, priceModel *LimitPriceBuilder, log zerolog.Logger) *Planner {
	return &Planner{
		oracle:     oracle,
		priceModel: priceModel,
		log:        log.With().Str("service", "strategy").Logger(),
	}
}

// Plan classifies every trade as MARKET or LIMIT execution. The oracle is
// called exactly once with no retry - retrying a slow oracle would perturb
// the timing assumptions behind the sell/buy phase gate. Oracle failure,
// malformed hints and incomplete coverage all degrade per-trade to the
// MARKET fallback, never into a run failure.
func (p *Planner) Plan(ctx context.Context, trades []domain.NetTrade, mctx domain.MarketContext) []domain.ExecutionInstruction {
	if len(trades) == 0 {
		return nil
	}

	hints := p.fetchHints(ctx, trades, mctx)

	plan := make([]domain.ExecutionInstruction, 0, len(trades))
	fallbacks := 0
	for _, trade := range trades {
		hint, ok := hints[trade.InstrumentID]
		if !ok {
			plan = append(plan, p.fallbackInstruction(trade))
			fallbacks++
			continue
		}

		instr, ok := p.instructionFromHint(trade, hint, mctx)
		if !ok {
			plan = append(plan, p.fallbackInstruction(trade))
			fallbacks++
			continue
		}
		plan = append(plan, instr)
	}

	p.log.Info().
		Int("trades", len(trades)).
		Int("fallbacks", fallbacks).
		Msg("Built execution plan")

	return plan
}

// fetchHints calls the oracle and indexes its hints by instrument.
// Duplicate hints for the same instrument keep the first occurrence.
func (p *Planner) fetchHints(ctx context.Context, trades []domain.NetTrade, mctx domain.MarketContext) map[string]domain.ExecutionHint {
	hints := make(map[string]domain.ExecutionHint)
	if p.oracle == nil {
		p.log.Debug().Msg("No advisory oracle configured, planning with fallback only")
		return hints
	}

	suggestions, err := p.oracle.SuggestExecution(ctx, trades, mctx)
	if err != nil {
		p.log.Warn().Err(err).Msg("Advisory oracle unavailable, planning with fallback only")
		return hints
	}

	for _, hint := range suggestions {
		if hint.InstrumentID == "" {
			continue
		}
		if _, exists := hints[hint.InstrumentID]; exists {
			continue
		}
		hints[hint.InstrumentID] = hint
	}
	return hints
}

// instructionFromHint validates a raw oracle hint field by field and turns it
// into a strongly typed instruction. Any field failing validation routes this
// single trade to the fallback rather than invalidating the whole plan.
func (p *Planner) instructionFromHint(trade domain.NetTrade, hint domain.ExecutionHint, mctx domain.MarketContext) (domain.ExecutionInstruction, bool) {
	switch domain.OrderStyle(hint.OrderStyle) {
	case domain.StyleMarket:
		if hint.PricePolicy != domain.PolicyMarket {
			p.log.Debug().
				Str("instrument", trade.InstrumentID).
				Str("price_policy", hint.PricePolicy).
				Msg("Oracle hint has invalid price policy for MARKET style")
			return domain.ExecutionInstruction{}, false
		}
		return domain.ExecutionInstruction{
			Trade:       trade,
			Style:       domain.StyleMarket,
			PricePolicy: domain.PolicyMarket,
			Source:      domain.SourceOracle,
		}, true

	case domain.StyleLimit:
		if hint.PricePolicy != domain.PolicyAggressiveLimit {
			p.log.Debug().
				Str("instrument", trade.InstrumentID).
				Str("price_policy", hint.PricePolicy).
				Msg("Oracle hint has invalid price policy for LIMIT style")
			return domain.ExecutionInstruction{}, false
		}
		quote, ok := mctx.Prices[trade.InstrumentID]
		if !ok || quote <= 0 {
			// No quote to anchor a limit price on; MARKET is the safe degradation
			return domain.ExecutionInstruction{}, false
		}
		return domain.ExecutionInstruction{
			Trade:       trade,
			Style:       domain.StyleLimit,
			PricePolicy: domain.PolicyAggressiveLimit,
			LimitPrice:  p.priceModel.Price(trade.Side, quote),
			Source:      domain.SourceOracle,
		}, true

	default:
		p.log.Debug().
			Str("instrument", trade.InstrumentID).
			Str("order_style", hint.OrderStyle).
			Msg("Oracle hint has unknown order style")
		return domain.ExecutionInstruction{}, false
	}
}

// fallbackInstruction is the deterministic MARKET instruction used whenever
// the oracle cannot cover a trade.
func (p *Planner) fallbackInstruction(trade domain.NetTrade) domain.ExecutionInstruction {
	return domain.ExecutionInstruction{
		Trade:       trade,
		Style:       domain.StyleMarket,
		PricePolicy: domain.PolicyMarket,
		Source:      domain.SourceFallback,
	}
}
