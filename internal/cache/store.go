package cache

import (
	"github.com/Altanb21/TideBitEx-sub000/pkg/logger"
)

// Store aggregates the five books of the gateway. The market-data service is
// the only writer; readers receive copies through Snapshot and Difference.
type Store struct {
	Depth    *DepthBook
	Tape     *TradeTape
	Tickers  *TickerBook
	Orders   *OrderBook
	Accounts *AccountBook
}

// NewStore creates all books.
func NewStore(log logger.Interface) *Store {
	return &Store{
		Depth:    NewDepthBook(log),
		Tape:     NewTradeTape(log),
		Tickers:  NewTickerBook(log),
		Orders:   NewOrderBook(log),
		Accounts: NewAccountBook(log),
	}
}
