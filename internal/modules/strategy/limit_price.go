package strategy

import (
	"ballast/internal/domain"

	"github.com/shopspring/decimal"
)

// LimitPriceBuilder computes bounded aggressive limit prices from the latest
// quote: price - k ticks for SELL, price + k ticks for BUY. Tick arithmetic
// uses decimals so a 0.01 tick stays exactly 0.01.
type LimitPriceBuilder struct {
	ticks    int64
	tickSize decimal.Decimal
}

// NewLimitPriceBuilder creates a limit price builder. ticks below 1 is
// treated as 1; tickSize must be positive (defaults to 0.01 otherwise).
func NewLimitPriceBuilder(ticks int, tickSize float64) *LimitPriceBuilder {
	if ticks < 1 {
		ticks = 1
	}
	if tickSize <= 0 {
		tickSize = 0.01
	}
	return &LimitPriceBuilder{
		ticks:    int64(ticks),
		tickSize: decimal.NewFromFloat(tickSize),
	}
}

// Price returns the aggressive limit price for the given side and quote.
// The result never drops below one tick.
func (b *LimitPriceBuilder) Price(side domain.TradeSide, quote float64) float64 {
	offset := b.tickSize.Mul(decimal.NewFromInt(b.ticks))
	price := decimal.NewFromFloat(quote)

	if side == domain.SideBuy {
		price = price.Add(offset)
	} else {
		price = price.Sub(offset)
	}

	if price.LessThan(b.tickSize) {
		price = b.tickSize
	}

	out, _ := price.Float64()
	return out
}
