package hub

import (
	"github.com/Altanb21/TideBitEx-sub000/internal/cache"
	"github.com/Altanb21/TideBitEx-sub000/internal/domain/market"
	"github.com/Altanb21/TideBitEx-sub000/internal/domain/order"
	"github.com/Altanb21/TideBitEx-sub000/internal/event"
)

// Client operations.
const (
	OpSubscribeMarket = "subscribeMarket"
	OpSubscribeMember = "subscribeMember"
)

// Server message types.
const (
	MsgSubscribed  = "subscribed"
	MsgBook        = "book"
	MsgTrades      = "trades"
	MsgTicker      = "ticker"
	MsgCandle      = "candle"
	MsgOrders      = "orders"
	MsgAccounts    = "accounts"
	MsgInstruments = "instruments"
	MsgError       = "error"
)

// clientMessage is what clients send over the wire.
type clientMessage struct {
	Op   string `json:"op"`
	Args struct {
		Market string `json:"market,omitempty"`
		Token  string `json:"token,omitempty"`
	} `json:"args"`
}

// serverMessage is what the hub pushes to clients.
type serverMessage struct {
	Type   string `json:"type"`
	Market string `json:"market,omitempty"`
	Data   any    `json:"data,omitempty"`

	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// bookPayload groups depth levels by side; each level is
// [price, size, cumulativeSize, cumulativePercent].
type bookPayload struct {
	Asks [][4]string `json:"asks"`
	Bids [][4]string `json:"bids"`
}

func buildBookPayload(levels []cache.PriceLevel) bookPayload {
	p := bookPayload{Asks: [][4]string{}, Bids: [][4]string{}}
	for _, l := range levels {
		row := [4]string{
			l.Price.String(),
			l.Size.String(),
			l.Cumulative.String(),
			l.Percent.String(),
		}
		if l.Side == order.SideAsk {
			p.Asks = append(p.Asks, row)
		} else {
			p.Bids = append(p.Bids, row)
		}
	}
	return p
}

type tradePayload struct {
	ID     string `json:"id"`
	Price  string `json:"price"`
	Volume string `json:"volume"`
	Trend  string `json:"trend"`
	At     int64  `json:"at"`
}

func buildTradePayloads(entries []cache.TapeEntry) []tradePayload {
	out := make([]tradePayload, 0, len(entries))
	for _, e := range entries {
		out = append(out, tradePayload{
			ID:     e.ID,
			Price:  e.Price.String(),
			Volume: e.Volume.String(),
			Trend:  e.Trend,
			At:     e.At.UnixMilli(),
		})
	}
	return out
}

type tickerPayload struct {
	Market        string `json:"market"`
	Last          string `json:"last"`
	Open24h       string `json:"open24h"`
	High24h       string `json:"high24h"`
	Low24h        string `json:"low24h"`
	Volume24h     string `json:"volume24h"`
	Change        string `json:"change"`
	ChangePercent string `json:"changePercent"`
}

func buildTickerPayloads(tickers []cache.Ticker) []tickerPayload {
	out := make([]tickerPayload, 0, len(tickers))
	for _, t := range tickers {
		out = append(out, tickerPayload{
			Market:        t.MarketID,
			Last:          t.Last.String(),
			Open24h:       t.Open24h.String(),
			High24h:       t.High24h.String(),
			Low24h:        t.Low24h.String(),
			Volume24h:     t.Volume24h.String(),
			Change:        t.Change().String(),
			ChangePercent: t.ChangePercent().String(),
		})
	}
	return out
}

type candlePayload struct {
	Bar    string `json:"bar"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Volume string `json:"volume"`
	At     int64  `json:"at"`
}

func buildCandlePayload(c event.CandleUpdate) candlePayload {
	return candlePayload{
		Bar:    c.Bar,
		Open:   c.Open.String(),
		High:   c.High.String(),
		Low:    c.Low.String(),
		Close:  c.Close.String(),
		Volume: c.Volume.String(),
		At:     c.At.UnixMilli(),
	}
}

type orderPayload struct {
	ID            int64  `json:"id"`
	Market        string `json:"market"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Price         string `json:"price,omitempty"`
	Volume        string `json:"volume"`
	OriginVolume  string `json:"originVolume"`
	Locked        string `json:"locked"`
	FundsReceived string `json:"fundsReceived"`
	TradesCount   int    `json:"tradesCount"`
	State         string `json:"state"`
	At            int64  `json:"at"`
}

func buildOrderPayloads(orders []order.Order) []orderPayload {
	out := make([]orderPayload, 0, len(orders))
	for _, o := range orders {
		p := orderPayload{
			ID:            o.ID,
			Market:        o.MarketID,
			Side:          string(o.Side),
			Type:          string(o.Type),
			Volume:        o.Volume.String(),
			OriginVolume:  o.OriginVolume.String(),
			Locked:        o.Locked.String(),
			FundsReceived: o.FundsReceived.String(),
			TradesCount:   o.TradesCount,
			State:         string(o.State),
			At:            o.CreatedAt.UnixMilli(),
		}
		if o.Price != nil {
			p.Price = o.Price.String()
		}
		out = append(out, p)
	}
	return out
}

type accountPayload struct {
	Currency string `json:"currency"`
	Balance  string `json:"balance"`
	Locked   string `json:"locked"`
	Total    string `json:"total"`
}

func buildAccountPayloads(rows []cache.BalanceRow) []accountPayload {
	out := make([]accountPayload, 0, len(rows))
	for _, r := range rows {
		out = append(out, accountPayload{
			Currency: r.Currency,
			Balance:  r.Balance.String(),
			Locked:   r.Locked.String(),
			Total:    r.Balance.Add(r.Locked).String(),
		})
	}
	return out
}

type instrumentPayload struct {
	Market     string `json:"market"`
	BaseUnit   string `json:"baseUnit"`
	QuoteUnit  string `json:"quoteUnit"`
	LotSize    string `json:"lotSize"`
	TickSize   string `json:"tickSize"`
	PriceScale int32  `json:"priceScale"`
}

func buildInstrumentPayloads(markets []*market.Market) []instrumentPayload {
	out := make([]instrumentPayload, 0, len(markets))
	for _, m := range markets {
		out = append(out, instrumentPayload{
			Market:     m.ID,
			BaseUnit:   m.BaseUnit,
			QuoteUnit:  m.QuoteUnit,
			LotSize:    m.LotSize.String(),
			TickSize:   m.TickSize.String(),
			PriceScale: m.PriceScale,
		})
	}
	return out
}
