package market

import "github.com/shopspring/decimal"

// Market is the immutable descriptor of a tradable instrument.
// Markets are loaded once at startup and treated as read-only afterwards.
type Market struct {
	// ID is the instrument id in exchange notation, e.g. "BTC-USDT".
	ID         string
	BaseUnit   string
	QuoteUnit  string
	LotSize    decimal.Decimal
	TickSize   decimal.Decimal
	PriceScale int32

	Fees FeeSchedule
}

// FeeSchedule holds the taker fee rate per member tier.
type FeeSchedule struct {
	Default decimal.Decimal
	VIP     decimal.Decimal
	Hero    decimal.Decimal
}

// FeeForTier returns the fee rate for a member tier, falling back to the
// default rate for unknown tiers.
func (f FeeSchedule) FeeForTier(tier string) decimal.Decimal {
	switch tier {
	case TierVIP:
		return f.VIP
	case TierHero:
		return f.Hero
	default:
		return f.Default
	}
}

// Member fee tiers.
const (
	TierDefault = ""
	TierVIP     = "vip"
	TierHero    = "hero"
)
