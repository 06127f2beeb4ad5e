// Package sizing converts target weights and live prices into whole-share
// trade deltas: target quantities, netting against current holdings, and
// minimum-trade filtering.
package sizing

import (
	"fmt"
	"math"
	"sort"

	"ballast/internal/domain"

	"github.com/rs/zerolog"
)

// Calculator produces net trades from targets and prices. Pure, no I/O.
type Calculator struct {
	log zerolog.Logger
}

// NewCalculator creates a new portfolio calculator
func NewCalculator(log zerolog.Logger) *Calculator {
	return &Calculator{
		log: log.With().Str("service", "sizing").Logger(),
	}
}

// TargetQuantities converts global instrument weight fractions into target
// share counts: floor(totalEquity * weight / price). Floor, never round -
// the computed buy must not exceed available capital at the quoted price.
//
// A missing or non-positive price for any instrument with a nonzero weight
// fails the whole computation. A missing price masquerading as "no position
// wanted" is the most dangerous latent bug in this pipeline.
func (c *Calculator) TargetQuantities(totalEquity float64, weights map[string]float64, prices map[string]float64) (map[string]int64, error) {
	if totalEquity < 0 {
		return nil, fmt.Errorf("total equity must not be negative, got %.2f", totalEquity)
	}

	quantities := make(map[string]int64, len(weights))
	for instrumentID, weight := range weights {
		if weight == 0 {
			quantities[instrumentID] = 0
			continue
		}
		price, ok := prices[instrumentID]
		if !ok {
			return nil, fmt.Errorf("missing price for instrument %s with target weight %.4f", instrumentID, weight)
		}
		if price <= 0 {
			return nil, fmt.Errorf("invalid price %.4f for instrument %s", price, instrumentID)
		}
		quantities[instrumentID] = int64(math.Floor(totalEquity * weight / price))
	}

	return quantities, nil
}

// NetTrades nets target quantities against current holdings over the union
// of instruments. A zero delta is dropped; a positive delta becomes a BUY, a
// negative delta a SELL of the absolute amount. SELL quantity is clamped to
// the currently held quantity - the executor must never be asked to short.
func (c *Calculator) NetTrades(current, target map[string]int64, prices map[string]float64) ([]domain.NetTrade, error) {
	instruments := make(map[string]bool, len(current)+len(target))
	for id := range current {
		instruments[id] = true
	}
	for id := range target {
		instruments[id] = true
	}

	ids := make([]string, 0, len(instruments))
	for id := range instruments {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	trades := make([]domain.NetTrade, 0, len(ids))
	for _, id := range ids {
		delta := target[id] - current[id]
		if delta == 0 {
			continue
		}

		price, ok := prices[id]
		if !ok || price <= 0 {
			return nil, fmt.Errorf("missing price for instrument %s required to size trade", id)
		}

		if delta > 0 {
			trades = append(trades, domain.NetTrade{
				InstrumentID:    id,
				Side:            domain.SideBuy,
				Quantity:        delta,
				EstimatedAmount: float64(delta) * price,
			})
			continue
		}

		qty := -delta
		if held := current[id]; qty > held {
			c.log.Warn().
				Str("instrument", id).
				Int64("requested", qty).
				Int64("held", held).
				Msg("Clamping sell quantity to held position")
			qty = held
		}
		if qty == 0 {
			continue
		}
		trades = append(trades, domain.NetTrade{
			InstrumentID:    id,
			Side:            domain.SideSell,
			Quantity:        qty,
			EstimatedAmount: float64(qty) * price,
		})
	}

	c.log.Debug().Int("trades", len(trades)).Msg("Netted trades against current holdings")
	return trades, nil
}

// FilterMinimumTrade drops trades whose notional (quantity x price) is below
// minAmount - execution cost and slippage make them not worth placing.
// minAmount = 0 disables filtering.
func (c *Calculator) FilterMinimumTrade(trades []domain.NetTrade, prices map[string]float64, minAmount float64) []domain.NetTrade {
	if minAmount <= 0 {
		return trades
	}

	kept := make([]domain.NetTrade, 0, len(trades))
	for _, trade := range trades {
		notional := float64(trade.Quantity) * prices[trade.InstrumentID]
		if notional < minAmount {
			c.log.Debug().
				Str("instrument", trade.InstrumentID).
				Float64("notional", notional).
				Float64("min_amount", minAmount).
				Msg("Dropping sub-minimum trade")
			continue
		}
		kept = append(kept, trade)
	}
	return kept
}
