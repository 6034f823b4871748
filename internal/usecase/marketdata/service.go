// Package marketdata bridges the exchange stream and the ledger to the
// in-memory caches. It is the single writer of the cache store: stream
// events and committed fills flow in, cache differences and client-facing
// bus events flow out.
package marketdata

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/Altanb21/TideBitEx-sub000/internal/cache"
	"github.com/Altanb21/TideBitEx-sub000/internal/connector"
	"github.com/Altanb21/TideBitEx-sub000/internal/domain/account"
	"github.com/Altanb21/TideBitEx-sub000/internal/domain/market"
	"github.com/Altanb21/TideBitEx-sub000/internal/domain/order"
	"github.com/Altanb21/TideBitEx-sub000/internal/event"
	"github.com/Altanb21/TideBitEx-sub000/pkg/logger"
)

const memberOrderFetchLimit = 200

// Service consumes the public stream and ledger events, keeps the cache
// store current and publishes difference notifications on the bus.
type Service struct {
	stream connector.Stream
	bus    *event.Bus
	store  *cache.Store

	markets  market.Repository
	orders   order.Repository
	accounts account.Repository

	logger logger.Interface

	// pinned markets stay subscribed regardless of hub listener counts
	pinned map[string]struct{}

	mu          sync.RWMutex
	marketsByID map[string]*market.Market
}

// NewService creates the market-data service. pinnedMarkets are subscribed
// at startup and kept warm even with no hub listeners.
func NewService(
	stream connector.Stream,
	bus *event.Bus,
	store *cache.Store,
	markets market.Repository,
	orders order.Repository,
	accounts account.Repository,
	pinnedMarkets []string,
	log logger.Interface,
) *Service {
	pinned := make(map[string]struct{}, len(pinnedMarkets))
	for _, m := range pinnedMarkets {
		pinned[m] = struct{}{}
	}

	return &Service{
		stream:      stream,
		bus:         bus,
		store:       store,
		markets:     markets,
		orders:      orders,
		accounts:    accounts,
		logger:      log,
		pinned:      pinned,
		marketsByID: make(map[string]*market.Market),
	}
}

// Store exposes the cache store for readers.
func (s *Service) Store() *cache.Store {
	return s.store
}

// Run loads the instrument list and pumps stream and bus events until ctx is
// done.
func (s *Service) Run(ctx context.Context) error {
	if err := s.loadMarkets(ctx); err != nil {
		return err
	}
	s.subscribePinned(ctx)

	busCh, cancel := s.bus.Subscribe(
		event.TypeStreamControl,
		event.TypeLedgerTradeCommitted,
	)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-s.stream.Events():
			if !ok {
				return nil
			}
			s.handleStreamEvent(evt)
		case evt := <-busCh:
			s.handleBusEvent(ctx, evt)
		}
	}
}

// Markets returns the loaded instrument descriptors.
func (s *Service) Markets() []*market.Market {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*market.Market, 0, len(s.marketsByID))
	for _, m := range s.marketsByID {
		out = append(out, m)
	}
	return out
}

func (s *Service) loadMarkets(ctx context.Context) error {
	list, err := s.markets.List(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.marketsByID = make(map[string]*market.Market, len(list))
	for _, m := range list {
		s.marketsByID[m.ID] = m
	}
	s.mu.Unlock()

	s.bus.Publish(event.Event{Type: event.TypeInstrumentsUpdated})
	return nil
}

func (s *Service) marketByID(id string) (*market.Market, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.marketsByID[id]
	return m, ok
}

func (s *Service) handleStreamEvent(evt connector.StreamEvent) {
	switch evt.Type {
	case connector.StreamEventBook:
		s.applyBook(evt)
	case connector.StreamEventTrade:
		s.applyTrade(evt)
	case connector.StreamEventTicker:
		s.applyTicker(evt)
	case connector.StreamEventCandle:
		s.bus.Publish(event.Event{
			Type:     event.TypeCandleUpdated,
			MarketID: evt.MarketID,
			Payload: event.CandleUpdate{
				MarketID: evt.MarketID,
				Bar:      evt.CandleBar,
				Open:     evt.CandleOpen,
				High:     evt.CandleHigh,
				Low:      evt.CandleLow,
				Close:    evt.Last,
				Volume:   evt.CandleVol,
				At:       evt.Timestamp,
			},
		})
	}
}

// applyBook folds a depth event into the ladder. Levels below the market's
// lot size are dust and never reach the cache.
func (s *Service) applyBook(evt connector.StreamEvent) {
	lotSize := decimal.Zero
	if m, ok := s.marketByID(evt.MarketID); ok {
		lotSize = m.LotSize
	}

	toLevel := func(l connector.BookLevel) cache.PriceLevel {
		side := order.SideBid
		if l.Side == "ask" {
			side = order.SideAsk
		}
		return cache.PriceLevel{Side: side, Price: l.Price, Size: l.Size}
	}

	if evt.BookSnapshot {
		levels := make([]cache.PriceLevel, 0, len(evt.Levels))
		for _, l := range evt.Levels {
			if l.Size.IsPositive() && l.Size.LessThan(lotSize) {
				continue
			}
			levels = append(levels, toLevel(l))
		}
		if !s.store.Depth.UpdateAll(evt.MarketID, levels) {
			return
		}
	} else {
		var diff cache.Difference[cache.PriceLevel]
		for _, l := range evt.Levels {
			level := toLevel(l)
			switch {
			case l.Size.IsZero(), l.Size.LessThan(lotSize):
				diff.Removed = append(diff.Removed, level)
			default:
				diff.Updated = append(diff.Updated, level)
			}
		}
		if !s.store.Depth.UpdateByDifference(evt.MarketID, diff) {
			return
		}
	}

	s.bus.Publish(event.Event{Type: event.TypeBookUpdated, MarketID: evt.MarketID})
}

func (s *Service) applyTrade(evt connector.StreamEvent) {
	entry := cache.TapeEntry{
		ID:     evt.TradeID,
		Price:  evt.Price,
		Volume: evt.Size,
		At:     evt.Timestamp,
	}
	if evt.Side == "buy" {
		entry.Trend = cache.TrendUp
	} else if evt.Side == "sell" {
		entry.Trend = cache.TrendDown
	}

	if !s.store.Tape.UpdateByDifference(evt.MarketID, cache.Difference[cache.TapeEntry]{
		Added: []cache.TapeEntry{entry},
	}) {
		return
	}

	s.bus.Publish(event.Event{Type: event.TypeTradesUpdated, MarketID: evt.MarketID})
}

func (s *Service) applyTicker(evt connector.StreamEvent) {
	tick := cache.Ticker{
		MarketID:  evt.MarketID,
		Last:      evt.Last,
		Open24h:   evt.Open24h,
		High24h:   evt.High24h,
		Low24h:    evt.Low24h,
		Volume24h: evt.Volume24h,
	}

	if !s.store.Tickers.UpdateByDifference(cache.TickerBookKey, cache.Difference[cache.Ticker]{
		Updated: []cache.Ticker{tick},
	}) {
		return
	}
	// a re-sent ticker that matches the held row leaves an empty difference
	if s.store.Tickers.Difference(cache.TickerBookKey).Empty() {
		return
	}

	s.bus.Publish(event.Event{Type: event.TypeTickerUpdated, MarketID: evt.MarketID})
}

func (s *Service) handleBusEvent(ctx context.Context, evt event.Event) {
	switch evt.Type {
	case event.TypeStreamControl:
		ctrl, ok := evt.Payload.(event.StreamControl)
		if !ok {
			return
		}
		s.applyStreamControl(ctx, ctrl)
	case event.TypeLedgerTradeCommitted:
		s.refreshMember(ctx, evt.MemberID, evt.MarketID)
	}
}

// subscribePinned attaches the configured always-on markets so their caches
// fill before the first client connects.
func (s *Service) subscribePinned(ctx context.Context) {
	for m := range s.pinned {
		if err := s.stream.Subscribe(ctx, m); err != nil {
			s.logger.ErrorContext(ctx, err,
				logger.Field{Key: "marketID", Value: m},
			)
		}
	}
}

func (s *Service) applyStreamControl(ctx context.Context, ctrl event.StreamControl) {
	var err error
	if ctrl.Resume {
		err = s.stream.Subscribe(ctx, ctrl.MarketID)
	} else {
		if _, keep := s.pinned[ctrl.MarketID]; keep {
			return
		}
		err = s.stream.Unsubscribe(ctx, ctrl.MarketID)
		s.store.Depth.Drop(ctrl.MarketID)
		s.store.Tape.Drop(ctrl.MarketID)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, err,
			logger.Field{Key: "marketID", Value: ctrl.MarketID},
		)
	}
}

// refreshMember reloads a member's orders and balances from the ledger and
// publishes the member-scoped difference events.
func (s *Service) refreshMember(ctx context.Context, memberID int64, marketID string) {
	if memberID == 0 {
		return
	}

	if marketID != "" {
		if err := s.RefreshMemberOrders(ctx, memberID, marketID); err != nil {
			s.logger.ErrorContext(ctx, err,
				logger.Field{Key: "memberID", Value: memberID},
			)
		} else {
			s.bus.Publish(event.Event{
				Type:     event.TypeOrderUpdated,
				MemberID: memberID,
				MarketID: marketID,
			})
		}
	}

	if err := s.RefreshMemberAccounts(ctx, memberID); err != nil {
		s.logger.ErrorContext(ctx, err,
			logger.Field{Key: "memberID", Value: memberID},
		)
		return
	}
	s.bus.Publish(event.Event{Type: event.TypeAccountUpdated, MemberID: memberID})
}

// RefreshMemberOrders loads a member's orders on one market into the order
// cache. Also used to seed the cache when a member subscribes.
func (s *Service) RefreshMemberOrders(ctx context.Context, memberID int64, marketID string) error {
	list, err := s.orders.ListByMemberMarket(ctx, memberID, marketID, memberOrderFetchLimit)
	if err != nil {
		return err
	}

	orders := make([]order.Order, 0, len(list))
	for _, o := range list {
		orders = append(orders, *o)
	}
	s.store.Orders.UpdateAll(cache.OrderBookKey(memberID, marketID), orders)
	return nil
}

// RefreshMemberAccounts loads a member's balances into the account cache.
func (s *Service) RefreshMemberAccounts(ctx context.Context, memberID int64) error {
	list, err := s.accounts.ListByMember(ctx, memberID)
	if err != nil {
		return err
	}

	rows := make([]cache.BalanceRow, 0, len(list))
	for _, a := range list {
		rows = append(rows, cache.BalanceRow{
			Currency: a.Currency,
			Balance:  a.Balance,
			Locked:   a.Locked,
		})
	}
	s.store.Accounts.UpdateAll(cache.AccountBookKey(memberID), rows)
	return nil
}
