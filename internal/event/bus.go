package event

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Altanb21/TideBitEx-sub000/pkg/logger"
)

// Type identifies one class of event flowing through the Bus.
type Type string

const (
	// TypeTradesUpdated fires after the trade tape of a market changed.
	TypeTradesUpdated Type = "trades.updated"
	// TypeBookUpdated fires after the depth ladder of a market changed.
	TypeBookUpdated Type = "book.updated"
	// TypeCandleUpdated fires after a candle of a market changed.
	TypeCandleUpdated Type = "candle.updated"
	// TypeTickerUpdated fires after one or more tickers changed.
	TypeTickerUpdated Type = "ticker.updated"
	// TypeAccountUpdated fires after a member's balances changed.
	TypeAccountUpdated Type = "account.updated"
	// TypeOrderUpdated fires after a member's orders changed.
	TypeOrderUpdated Type = "order.updated"
	// TypeInstrumentsUpdated fires after the market list was refreshed.
	TypeInstrumentsUpdated Type = "instruments.updated"
	// TypeStreamControl asks the upstream feed to start or stop a market
	// stream; it flows from the distribution hub back to the feed.
	TypeStreamControl Type = "stream.control"
	// TypeLedgerTradeCommitted fires after a reconciled fill committed to
	// the ledger. Consumed by the market-data layer, which refreshes the
	// member caches and emits the client-facing events above.
	TypeLedgerTradeCommitted Type = "ledger.trade_committed"
)

// Event is one notification on the Bus. MarketID is set for market-scoped
// events, MemberID for member-scoped ones; Payload carries the event body.
type Event struct {
	Type     Type
	MarketID string
	MemberID int64
	Payload  any
}

// StreamControl is the payload of TypeStreamControl.
type StreamControl struct {
	MarketID string
	// Resume starts the upstream stream when true, stops it when false.
	Resume bool
}

// CandleUpdate is the payload of TypeCandleUpdated: one bar of one market.
type CandleUpdate struct {
	MarketID string
	Bar      string
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   decimal.Decimal
	At       time.Time
}

const subscriberBuffer = 256

// Bus is an in-process typed publish/subscribe fan-out. Publishing never
// blocks: a subscriber that cannot keep up loses events instead of stalling
// the producer.
type Bus struct {
	logger logger.Interface

	mu   sync.RWMutex
	subs map[Type][]*subscriber
}

type subscriber struct {
	ch     chan Event
	closed bool
}

// NewBus creates an event bus.
func NewBus(log logger.Interface) *Bus {
	return &Bus{
		logger: log,
		subs:   make(map[Type][]*subscriber),
	}
}

// Subscribe registers interest in the given event types. The returned cancel
// function detaches the subscription and closes the channel.
func (b *Bus) Subscribe(types ...Type) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}

	b.mu.Lock()
	for _, t := range types {
		b.subs[t] = append(b.subs[t], sub)
	}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub.closed {
			return
		}
		sub.closed = true
		for _, t := range types {
			b.subs[t] = removeSubscriber(b.subs[t], sub)
		}
		close(sub.ch)
	}

	return sub.ch, cancel
}

// Publish delivers the event to every subscriber of its type.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs[evt.Type] {
		select {
		case sub.ch <- evt:
		default:
			if b.logger != nil {
				b.logger.Warn("Dropped event for slow subscriber",
					logger.Field{Key: "type", Value: string(evt.Type)},
					logger.Field{Key: "marketID", Value: evt.MarketID},
				)
			}
		}
	}
}

func removeSubscriber(subs []*subscriber, target *subscriber) []*subscriber {
	out := subs[:0]
	for _, s := range subs {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}
