// Package hub fans cached market and member data out to WebSocket clients.
// It reads the cache store, never writes it; listener counts drive the
// upstream stream start/stop signals.
package hub

import (
	"context"
	"sync"

	"github.com/goccy/go-json"

	"github.com/Altanb21/TideBitEx-sub000/internal/cache"
	"github.com/Altanb21/TideBitEx-sub000/internal/domain/market"
	"github.com/Altanb21/TideBitEx-sub000/internal/event"
	"github.com/Altanb21/TideBitEx-sub000/internal/session"
	"github.com/Altanb21/TideBitEx-sub000/pkg/errors"
	"github.com/Altanb21/TideBitEx-sub000/pkg/logger"
)

// MemberSeeder loads a member's orders and balances into the cache store the
// first time the member attaches.
type MemberSeeder interface {
	RefreshMemberOrders(ctx context.Context, memberID int64, marketID string) error
	RefreshMemberAccounts(ctx context.Context, memberID int64) error
}

// InstrumentLister serves the market descriptors pushed on connect and on
// instrument refreshes.
type InstrumentLister interface {
	Markets() []*market.Market
}

// Hub is the distribution hub. All registry mutations happen under mu; the
// broadcast loop runs on a single goroutine.
type Hub struct {
	store    *cache.Store
	bus      *event.Bus
	sessions session.Resolver
	seeder   MemberSeeder
	logger   logger.Interface

	instruments InstrumentLister

	mu       sync.Mutex
	clients  map[*Client]struct{}
	byMarket map[string]map[*Client]struct{}
	byMember map[int64]map[*Client]struct{}
}

// NewHub creates the hub.
func NewHub(
	store *cache.Store,
	bus *event.Bus,
	sessions session.Resolver,
	seeder MemberSeeder,
	instruments InstrumentLister,
	log logger.Interface,
) *Hub {
	return &Hub{
		store:       store,
		bus:         bus,
		sessions:    sessions,
		seeder:      seeder,
		instruments: instruments,
		logger:      log,
		clients:     make(map[*Client]struct{}),
		byMarket:    make(map[string]map[*Client]struct{}),
		byMember:    make(map[int64]map[*Client]struct{}),
	}
}

// Run pumps bus events into client broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	events, cancel := h.bus.Subscribe(
		event.TypeTradesUpdated,
		event.TypeBookUpdated,
		event.TypeCandleUpdated,
		event.TypeTickerUpdated,
		event.TypeOrderUpdated,
		event.TypeAccountUpdated,
		event.TypeInstrumentsUpdated,
	)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt := <-events:
			h.broadcast(evt)
		}
	}
}

func (h *Hub) broadcast(evt event.Event) {
	switch evt.Type {
	case event.TypeBookUpdated:
		h.pushToMarket(evt.MarketID, serverMessage{
			Type:   MsgBook,
			Market: evt.MarketID,
			Data:   buildBookPayload(h.store.Depth.Snapshot(evt.MarketID)),
		})
	case event.TypeTradesUpdated:
		diff := h.store.Tape.Difference(evt.MarketID)
		if len(diff.Added) == 0 {
			return
		}
		h.pushToMarket(evt.MarketID, serverMessage{
			Type:   MsgTrades,
			Market: evt.MarketID,
			Data:   buildTradePayloads(diff.Added),
		})
	case event.TypeCandleUpdated:
		bar, ok := evt.Payload.(event.CandleUpdate)
		if !ok {
			return
		}
		h.pushToMarket(evt.MarketID, serverMessage{
			Type:   MsgCandle,
			Market: evt.MarketID,
			Data:   buildCandlePayload(bar),
		})
	case event.TypeTickerUpdated:
		h.pushToAll(serverMessage{
			Type: MsgTicker,
			Data: buildTickerPayloads(h.store.Tickers.Snapshot(cache.TickerBookKey)),
		})
	case event.TypeOrderUpdated:
		h.pushToMember(evt.MemberID, serverMessage{
			Type:   MsgOrders,
			Market: evt.MarketID,
			Data: buildOrderPayloads(
				h.store.Orders.Snapshot(cache.OrderBookKey(evt.MemberID, evt.MarketID)),
			),
		})
	case event.TypeAccountUpdated:
		h.pushToMember(evt.MemberID, serverMessage{
			Type: MsgAccounts,
			Data: buildAccountPayloads(h.store.Accounts.Snapshot(cache.AccountBookKey(evt.MemberID))),
		})
	case event.TypeInstrumentsUpdated:
		h.pushToAll(serverMessage{
			Type: MsgInstruments,
			Data: buildInstrumentPayloads(h.instruments.Markets()),
		})
	}
}

// Register attaches a new connection and sends the instrument list.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	c.enqueue(serverMessage{Type: MsgInstruments, Data: buildInstrumentPayloads(h.instruments.Markets())})
}

// Unregister detaches a connection, releasing both its market and member
// subscriptions.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	stopped := h.leaveMarketLocked(c)
	h.leaveMemberLocked(c)
	h.mu.Unlock()

	if stopped != "" {
		h.publishStreamControl(stopped, false)
	}
}

// handle dispatches one client message.
func (h *Hub) handle(ctx context.Context, c *Client, raw []byte) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.enqueue(errorMessage(errors.HubMalformedMessageError, "malformed message"))
		return
	}

	switch msg.Op {
	case OpSubscribeMarket:
		if msg.Args.Market == "" {
			c.enqueue(errorMessage(errors.HubMalformedMessageError, "missing market"))
			return
		}
		h.subscribeMarket(c, msg.Args.Market)
	case OpSubscribeMember:
		h.subscribeMember(ctx, c, msg.Args.Token)
	default:
		c.enqueue(errorMessage(errors.HubUnknownOperationError, "unknown operation"))
	}
}

// subscribeMarket moves the connection onto a market channel. Joining a new
// market implicitly leaves the previous one; the first listener starts the
// upstream stream, the last one leaving stops it.
func (h *Hub) subscribeMarket(c *Client, marketID string) {
	h.mu.Lock()
	if c.marketID == marketID {
		h.mu.Unlock()
		return
	}
	stopped := h.leaveMarketLocked(c)

	set, ok := h.byMarket[marketID]
	if !ok {
		set = make(map[*Client]struct{})
		h.byMarket[marketID] = set
	}
	set[c] = struct{}{}
	c.marketID = marketID
	started := len(set) == 1
	h.mu.Unlock()

	if stopped != "" {
		h.publishStreamControl(stopped, false)
	}
	if started {
		h.publishStreamControl(marketID, true)
	}

	c.enqueue(serverMessage{Type: MsgSubscribed, Market: marketID})
	h.sendMarketSnapshot(c, marketID)
}

// subscribeMember authenticates the connection. A failed resolution leaves
// the connection open and unauthenticated.
func (h *Hub) subscribeMember(ctx context.Context, c *Client, token string) {
	memberID, err := h.sessions.ResolveMemberID(ctx, token)
	if err != nil {
		c.enqueue(errorMessage(errors.SessionResolveError, "authentication failed"))
		return
	}

	h.mu.Lock()
	h.leaveMemberLocked(c)
	set, ok := h.byMember[memberID]
	if !ok {
		set = make(map[*Client]struct{})
		h.byMember[memberID] = set
	}
	set[c] = struct{}{}
	c.memberID = memberID
	marketID := c.marketID
	h.mu.Unlock()

	if err := h.seeder.RefreshMemberAccounts(ctx, memberID); err != nil {
		h.logger.ErrorContext(ctx, err, logger.Field{Key: "memberID", Value: memberID})
	}
	if marketID != "" {
		if err := h.seeder.RefreshMemberOrders(ctx, memberID, marketID); err != nil {
			h.logger.ErrorContext(ctx, err, logger.Field{Key: "memberID", Value: memberID})
		}
	}

	c.enqueue(serverMessage{Type: MsgSubscribed})
	c.enqueue(serverMessage{
		Type: MsgAccounts,
		Data: buildAccountPayloads(h.store.Accounts.Snapshot(cache.AccountBookKey(memberID))),
	})
	if marketID != "" {
		c.enqueue(serverMessage{
			Type:   MsgOrders,
			Market: marketID,
			Data: buildOrderPayloads(
				h.store.Orders.Snapshot(cache.OrderBookKey(memberID, marketID)),
			),
		})
	}
}

// sendMarketSnapshot pushes the current book, tape and tickers to one client.
func (h *Hub) sendMarketSnapshot(c *Client, marketID string) {
	c.enqueue(serverMessage{
		Type:   MsgBook,
		Market: marketID,
		Data:   buildBookPayload(h.store.Depth.Snapshot(marketID)),
	})
	c.enqueue(serverMessage{
		Type:   MsgTrades,
		Market: marketID,
		Data:   buildTradePayloads(h.store.Tape.Snapshot(marketID)),
	})
	c.enqueue(serverMessage{
		Type: MsgTicker,
		Data: buildTickerPayloads(h.store.Tickers.Snapshot(cache.TickerBookKey)),
	})
	if c.memberID != 0 {
		c.enqueue(serverMessage{
			Type:   MsgOrders,
			Market: marketID,
			Data: buildOrderPayloads(
				h.store.Orders.Snapshot(cache.OrderBookKey(c.memberID, marketID)),
			),
		})
	}
}

// leaveMarketLocked detaches c from its market and returns the market id
// whose stream must stop, or "". Caller holds mu.
func (h *Hub) leaveMarketLocked(c *Client) string {
	if c.marketID == "" {
		return ""
	}
	marketID := c.marketID
	c.marketID = ""

	set, ok := h.byMarket[marketID]
	if !ok {
		return ""
	}
	delete(set, c)
	if len(set) > 0 {
		return ""
	}
	delete(h.byMarket, marketID)
	return marketID
}

func (h *Hub) leaveMemberLocked(c *Client) {
	if c.memberID == 0 {
		return
	}
	set, ok := h.byMember[c.memberID]
	if ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byMember, c.memberID)
		}
	}
	c.memberID = 0
}

func (h *Hub) publishStreamControl(marketID string, resume bool) {
	h.bus.Publish(event.Event{
		Type:     event.TypeStreamControl,
		MarketID: marketID,
		Payload:  event.StreamControl{MarketID: marketID, Resume: resume},
	})
	h.logger.Info("stream control",
		logger.Field{Key: "marketID", Value: marketID},
		logger.Field{Key: "resume", Value: resume},
	)
}

// listenerCount reports the live listener count for a market.
func (h *Hub) listenerCount(marketID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.byMarket[marketID])
}

func (h *Hub) pushToMarket(marketID string, msg serverMessage) {
	h.mu.Lock()
	targets := make([]*Client, 0, len(h.byMarket[marketID]))
	for c := range h.byMarket[marketID] {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	h.push(targets, msg)
}

func (h *Hub) pushToMember(memberID int64, msg serverMessage) {
	h.mu.Lock()
	targets := make([]*Client, 0, len(h.byMember[memberID]))
	for c := range h.byMember[memberID] {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	h.push(targets, msg)
}

func (h *Hub) pushToAll(msg serverMessage) {
	h.mu.Lock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	h.push(targets, msg)
}

// push marshals once and enqueues to every target. A full send buffer drops
// the message for that client only.
func (h *Hub) push(targets []*Client, msg serverMessage) {
	if len(targets) == 0 {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error(err, logger.Field{Key: "type", Value: msg.Type})
		return
	}
	for _, c := range targets {
		c.enqueueRaw(payload)
	}
}

func errorMessage(code errors.ErrorCode, message string) serverMessage {
	return serverMessage{Type: MsgError, Code: string(code), Message: message}
}
