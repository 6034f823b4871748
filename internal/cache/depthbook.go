package cache

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Altanb21/TideBitEx-sub000/internal/domain/order"
	"github.com/Altanb21/TideBitEx-sub000/pkg/logger"
)

const depthBookLevelsPerSide = 50

// PriceLevel is one aggregated row of the depth ladder. Cumulative and
// Percent are derived fields recomputed on every trim; upstream feeds only
// supply side, price and size.
type PriceLevel struct {
	Side       order.Side
	Price      decimal.Decimal
	Size       decimal.Decimal
	Cumulative decimal.Decimal
	Percent    decimal.Decimal
}

// DepthBook caches the aggregated depth ladder per market.
type DepthBook = Book[PriceLevel]

// NewDepthBook creates a depth cache keyed by market id. Each side is
// bounded to the best 50 levels; cumulative sums restart per side while the
// percentage denominator spans both sides.
func NewDepthBook(log logger.Interface) *DepthBook {
	return NewBook("depthbook", Strategy[PriceLevel]{
		ID: func(l PriceLevel) string {
			return string(l.Side) + ":" + l.Price.String()
		},
		Equal: func(a, b PriceLevel) bool {
			return a.Size.Equal(b.Size)
		},
		Trim:   trimDepth,
		Policy: Policy{Add: true, Remove: true, Update: true},
	}, log)
}

func trimDepth(levels []PriceLevel) []PriceLevel {
	var asks, bids []PriceLevel
	for _, l := range levels {
		if l.Size.IsZero() {
			continue
		}
		if l.Side == order.SideAsk {
			asks = append(asks, l)
		} else {
			bids = append(bids, l)
		}
	}

	// best price first on both sides: lowest ask, highest bid
	sort.SliceStable(asks, func(i, j int) bool { return asks[i].Price.LessThan(asks[j].Price) })
	sort.SliceStable(bids, func(i, j int) bool { return bids[i].Price.GreaterThan(bids[j].Price) })

	if len(asks) > depthBookLevelsPerSide {
		asks = asks[:depthBookLevelsPerSide]
	}
	if len(bids) > depthBookLevelsPerSide {
		bids = bids[:depthBookLevelsPerSide]
	}

	accumulate := func(side []PriceLevel) decimal.Decimal {
		running := decimal.Zero
		for i := range side {
			running = running.Add(side[i].Size)
			side[i].Cumulative = running
		}
		return running
	}
	total := accumulate(asks).Add(accumulate(bids))

	out := append(asks, bids...)
	if total.IsPositive() {
		for i := range out {
			out[i].Percent = out[i].Cumulative.Div(total)
		}
	}
	return out
}
