package service

import (
	"github.com/shopspring/decimal"

	"wordpot/internal/ruleset"
)

// PackQuote is a pack purchase priced against the round's live guess
// counter. The quote is computed inside the purchase transaction while the
// round row is locked, so it can never go stale before the debit commits.
type PackQuote struct {
	PricePerPack decimal.Decimal
	Total        decimal.Decimal
	CreatorFee   decimal.Decimal
	NetToPool    decimal.Decimal
	Credits      int
}

// QuotePack prices packCount packs in the ramp phase the guess count falls
// into, and splits the revenue between the creator fee and the prize pool.
func QuotePack(rules ruleset.Ruleset, guessCount int64, packCount int) PackQuote {
	price := rules.PackPrice(guessCount)
	total := price.Mul(decimal.NewFromInt(int64(packCount)))
	fee := share(total, rules.CreatorFeeBps)
	return PackQuote{
		PricePerPack: price,
		Total:        total,
		CreatorFee:   fee,
		NetToPool:    total.Sub(fee),
		Credits:      packCount * rules.PackSize,
	}
}
