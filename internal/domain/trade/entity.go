package trade

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is an internal execution record, created exactly once per external
// fill. TradeFK carries the external trade id; its unique constraint is the
// de-duplication invariant of the reconciliation pipeline.
type Trade struct {
	ID       int64
	MarketID string

	Price  decimal.Decimal
	Volume decimal.Decimal
	// Funds is price * volume in the quote unit.
	Funds decimal.Decimal

	AskOrderID  int64
	BidOrderID  int64
	AskMemberID int64
	BidMemberID int64

	// Trend is the taker side, "up" when the taker bought.
	Trend string

	TradeFK   string
	CreatedAt time.Time
}
