package cache

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/Altanb21/TideBitEx-sub000/internal/domain/order"
	"github.com/Altanb21/TideBitEx-sub000/pkg/logger"
)

const (
	orderBookPendingLimit = 100
	orderBookClosedLimit  = 100
)

// OrderBook caches a member's orders per market. Keys are composed with
// OrderBookKey so one book serves every (member, market) pair.
type OrderBook = Book[order.Order]

// OrderBookKey builds the snapshot key for a member's orders in one market.
func OrderBookKey(memberID int64, marketID string) string {
	return fmt.Sprintf("%d:%s", memberID, marketID)
}

// NewOrderBook creates an order cache. Pending orders are kept ahead of
// closed ones, newest first, and each group is bounded independently so a
// burst of fills cannot evict open orders.
func NewOrderBook(log logger.Interface) *OrderBook {
	return NewBook("orderbook", Strategy[order.Order]{
		ID: func(o order.Order) string {
			return strconv.FormatInt(o.ID, 10)
		},
		Equal: func(a, b order.Order) bool {
			return a.State == b.State &&
				a.Volume.Equal(b.Volume) &&
				a.Locked.Equal(b.Locked) &&
				a.FundsReceived.Equal(b.FundsReceived) &&
				a.TradesCount == b.TradesCount
		},
		Trim:   trimOrders,
		Policy: Policy{Add: true, Remove: true, Update: true},
	}, log)
}

func trimOrders(orders []order.Order) []order.Order {
	var pending, closed []order.Order
	for _, o := range orders {
		if o.Closed() {
			closed = append(closed, o)
		} else {
			pending = append(pending, o)
		}
	}

	newestFirst := func(group []order.Order) {
		sort.SliceStable(group, func(i, j int) bool {
			if !group[i].CreatedAt.Equal(group[j].CreatedAt) {
				return group[i].CreatedAt.After(group[j].CreatedAt)
			}
			return group[i].ID > group[j].ID
		})
	}
	newestFirst(pending)
	newestFirst(closed)

	if len(pending) > orderBookPendingLimit {
		pending = pending[:orderBookPendingLimit]
	}
	if len(closed) > orderBookClosedLimit {
		closed = closed[:orderBookClosedLimit]
	}

	return append(pending, closed...)
}
