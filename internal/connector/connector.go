// Package connector defines the surface the gateway uses to talk to external
// exchanges. One Connector exists per exchange account; the Registry routes
// staged fills back to the connector that produced them.
package connector

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Fill is one execution pulled from an exchange's fills history. The JSON
// tags define the normalized staging format written to outer_trades.
type Fill struct {
	TradeID string `json:"tradeId"`
	OrderID string `json:"ordId"`
	// ClOrdID is the client order id the gateway attached at placement.
	ClOrdID string `json:"clOrdId"`
	InstID  string `json:"instId"`
	// Side is the taker side, "buy" or "sell".
	Side string `json:"side"`

	Price decimal.Decimal `json:"px"`
	Size  decimal.Decimal `json:"sz"`

	Fee         decimal.Decimal `json:"fee"`
	FeeCurrency string          `json:"feeCcy"`

	Timestamp time.Time `json:"ts"`
	// Raw is the fill payload exactly as the exchange sent it. Not staged.
	Raw []byte `json:"-"`
}

// OrderState is the live state of an order on the exchange.
type OrderState struct {
	OrderID    string
	ClOrdID    string
	InstID     string
	State      string
	FilledSize decimal.Decimal
	AvgPrice   decimal.Decimal
}

// Order states reported by exchanges, normalized.
const (
	OrderStateLive            = "live"
	OrderStatePartiallyFilled = "partially_filled"
	OrderStateFilled          = "filled"
	OrderStateCanceled        = "canceled"
)

// PlaceOrderRequest places an order on the exchange on behalf of a member.
type PlaceOrderRequest struct {
	InstID  string
	ClOrdID string
	// Side is "buy" or "sell".
	Side string
	// Type is "limit" or "market".
	Type  string
	Price decimal.Decimal
	Size  decimal.Decimal
}

//go:generate mockgen -source=connector.go -destination=mock/connector_mock.go -package=mock

// Connector is the private REST surface of one exchange account.
type Connector interface {
	// Name returns the exchange code, e.g. "okx".
	Name() string
	// FillsHistory returns the account's executions since the given time,
	// oldest first.
	FillsHistory(ctx context.Context, since time.Time) ([]Fill, error)
	// OrderState fetches the live state of one order by exchange order id or
	// client order id.
	OrderState(ctx context.Context, instID, orderID, clOrdID string) (*OrderState, error)
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (orderID string, err error)
	CancelOrder(ctx context.Context, instID, orderID string) error
}

// BookLevel is one depth level in a stream event. SideAsk levels carry
// "sell" liquidity.
type BookLevel struct {
	Side  string // "ask" or "bid"
	Price decimal.Decimal
	Size  decimal.Decimal
}

// StreamEventType discriminates StreamEvent payloads.
type StreamEventType int

const (
	StreamEventBook StreamEventType = iota + 1
	StreamEventTrade
	StreamEventTicker
	StreamEventCandle
)

// StreamEvent is one market-data notification from a public stream.
type StreamEvent struct {
	Type     StreamEventType
	MarketID string

	// BookSnapshot is true when Levels replace the ladder instead of
	// patching it.
	BookSnapshot bool
	Levels       []BookLevel

	TradeID    string
	Price      decimal.Decimal
	Size       decimal.Decimal
	Side       string
	Last       decimal.Decimal
	Open24h    decimal.Decimal
	High24h    decimal.Decimal
	Low24h     decimal.Decimal
	Volume24h  decimal.Decimal
	CandleBar  string
	CandleOpen decimal.Decimal
	CandleHigh decimal.Decimal
	CandleLow  decimal.Decimal
	CandleVol  decimal.Decimal
	Timestamp  time.Time
}

// PrivateEvent is one own-order ack from an exchange's authenticated stream.
// FillSize is positive when the ack carries an execution.
type PrivateEvent struct {
	OrderID   string
	ClOrdID   string
	InstID    string
	State     string
	FillID    string
	FillPrice decimal.Decimal
	FillSize  decimal.Decimal
	Timestamp time.Time
}

// PrivateStream is the authenticated order/fill ack surface of one exchange.
// Acks are advisory: the reconciliation engine stays the source of truth and
// uses them only to pull fills sooner than the periodic cycle would.
type PrivateStream interface {
	Run(ctx context.Context) error
	Events() <-chan PrivateEvent
}

// Stream is the public market-data surface of one exchange.
type Stream interface {
	// Run connects and pumps events until ctx is done, reconnecting on
	// failures.
	Run(ctx context.Context) error
	Events() <-chan StreamEvent
	// Subscribe attaches the market's public channels; Unsubscribe detaches
	// them when the last listener left.
	Subscribe(ctx context.Context, marketID string) error
	Unsubscribe(ctx context.Context, marketID string) error
}
