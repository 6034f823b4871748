package voucher

import (
	"time"

	"github.com/shopspring/decimal"
)

// Voucher is the per-order-per-trade execution record used for fee
// accounting. Exactly one voucher exists per (order, trade) pair.
type Voucher struct {
	ID       int64
	MemberID int64
	OrderID  int64
	TradeID  int64
	MarketID string

	// Trend is the side of the owning order, "ask" or "bid".
	Trend string

	Price  decimal.Decimal
	Volume decimal.Decimal
	// Value is price * volume in the quote unit.
	Value decimal.Decimal

	AskFee decimal.Decimal
	BidFee decimal.Decimal

	CreatedAt time.Time
}
