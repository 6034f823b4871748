package cache

import (
	"github.com/shopspring/decimal"

	"github.com/Altanb21/TideBitEx-sub000/pkg/logger"
)

// Ticker is the rolling 24h statistics row for one market.
type Ticker struct {
	MarketID  string
	Last      decimal.Decimal
	Open24h   decimal.Decimal
	High24h   decimal.Decimal
	Low24h    decimal.Decimal
	Volume24h decimal.Decimal
}

// Change returns the absolute 24h price change.
func (t Ticker) Change() decimal.Decimal {
	return t.Last.Sub(t.Open24h)
}

// ChangePercent returns the relative 24h price change, zero when there is no
// open price to compare against.
func (t Ticker) ChangePercent() decimal.Decimal {
	if t.Open24h.IsZero() {
		return decimal.Zero
	}
	return t.Change().Div(t.Open24h)
}

// TickerBook caches the latest ticker of every market under one shared key.
type TickerBook = Book[Ticker]

// TickerBookKey is the single snapshot key of the ticker book; tickers for
// all markets live in one snapshot so a full refresh is one update.
const TickerBookKey = "tickers"

// NewTickerBook creates the ticker cache. Markets are never removed by a
// ticker push; delisting happens through a full UpdateAll.
func NewTickerBook(log logger.Interface) *TickerBook {
	return NewBook("tickerbook", Strategy[Ticker]{
		ID: func(t Ticker) string {
			return t.MarketID
		},
		Equal: func(a, b Ticker) bool {
			return a.Last.Equal(b.Last) &&
				a.Open24h.Equal(b.Open24h) &&
				a.High24h.Equal(b.High24h) &&
				a.Low24h.Equal(b.Low24h) &&
				a.Volume24h.Equal(b.Volume24h)
		},
		Policy: Policy{Add: true, Update: true},
	}, log)
}
