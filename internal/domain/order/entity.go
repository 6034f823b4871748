package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the side of an order.
type Side string

// State is the lifecycle state of an order.
type State string

// Type is the execution type of an order.
type Type string

const (
	// SideAsk sells the base unit.
	SideAsk Side = "ask"
	// SideBid buys the base unit.
	SideBid Side = "bid"

	// StateWait marks an order resting on the external exchange.
	StateWait State = "wait"
	// StateDone marks a fully filled order. Terminal.
	StateDone State = "done"
	// StateCancel marks a cancelled order. Terminal.
	StateCancel State = "cancel"

	// TypeLimit is a limit order.
	TypeLimit Type = "limit"
	// TypeMarket is a market order; Price is nil.
	TypeMarket Type = "market"
)

// Order mirrors an order placed on the external exchange. It is created on
// placement and mutated only by the reconciliation engine as fills arrive.
type Order struct {
	ID       int64
	MemberID int64
	MarketID string
	Side     Side
	Type     Type

	// Price is nil for market orders.
	Price *decimal.Decimal

	// Volume is the remaining unfilled volume; OriginVolume the placed volume.
	Volume       decimal.Decimal
	OriginVolume decimal.Decimal

	// Locked is the amount of funds still reserved against this order;
	// OriginLocked the amount reserved at placement.
	Locked       decimal.Decimal
	OriginLocked decimal.Decimal

	// FundsReceived accumulates the counter-asset received from fills.
	FundsReceived decimal.Decimal
	TradesCount   int

	State     State
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Closed reports whether the order reached a terminal state.
func (o *Order) Closed() bool {
	return o.State == StateDone || o.State == StateCancel
}

// AskCurrency returns the currency the member gives away on this order.
func (o *Order) AskCurrency(base, quote string) string {
	if o.Side == SideAsk {
		return base
	}
	return quote
}

// BidCurrency returns the currency the member receives on this order.
func (o *Order) BidCurrency(base, quote string) string {
	if o.Side == SideAsk {
		return quote
	}
	return base
}
