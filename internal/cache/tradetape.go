package cache

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Altanb21/TideBitEx-sub000/pkg/logger"
)

const tradeTapeLimit = 500

// TapeEntry is one public trade on the tape. Trend is "up" or "down"; when a
// feed delivers trades without a directional tag, Trim back-fills it from the
// neighbouring price.
type TapeEntry struct {
	ID     string
	Price  decimal.Decimal
	Volume decimal.Decimal
	Trend  string
	At     time.Time
}

// TradeTape caches the recent public trades per market.
type TradeTape = Book[TapeEntry]

// NewTradeTape creates a trade tape keyed by market id. Trades never mutate,
// so only additions are tracked.
func NewTradeTape(log logger.Interface) *TradeTape {
	return NewBook("tradetape", Strategy[TapeEntry]{
		ID: func(t TapeEntry) string {
			return t.ID
		},
		Equal: func(a, b TapeEntry) bool {
			return true
		},
		Trim:   trimTape,
		Policy: Policy{Add: true},
	}, log)
}

func trimTape(tape []TapeEntry) []TapeEntry {
	sort.SliceStable(tape, func(i, j int) bool {
		if !tape[i].At.Equal(tape[j].At) {
			return tape[i].At.After(tape[j].At)
		}
		return tape[i].ID > tape[j].ID
	})
	if len(tape) > tradeTapeLimit {
		tape = tape[:tradeTapeLimit]
	}

	// back-fill missing trends against the next-older trade, oldest first so
	// a filled trend feeds the one above it; a tie counts as up
	for i := len(tape) - 1; i >= 0; i-- {
		if tape[i].Trend != "" {
			continue
		}
		if i == len(tape)-1 {
			tape[i].Trend = TrendUp
			continue
		}
		if tape[i].Price.GreaterThanOrEqual(tape[i+1].Price) {
			tape[i].Trend = TrendUp
		} else {
			tape[i].Trend = TrendDown
		}
	}
	return tape
}

// Trend values carried on tape entries and trades.
const (
	TrendUp   = "up"
	TrendDown = "down"
)
