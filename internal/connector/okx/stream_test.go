package okx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Altanb21/TideBitEx-sub000/internal/connector"
	"github.com/Altanb21/TideBitEx-sub000/pkg/config"
	"github.com/Altanb21/TideBitEx-sub000/pkg/logger"
)

func placeReq() connector.PlaceOrderRequest {
	return connector.PlaceOrderRequest{
		InstID:  "BTC-USDT",
		ClOrdID: "c1",
		Side:    "sell",
		Type:    "market",
	}
}

func newTestStream() *StreamClient {
	return NewStreamClient(config.OKXConfig{}, logger.NewNop())
}

func collectEvents(s *StreamClient) []connector.StreamEvent {
	var events []connector.StreamEvent
	for {
		select {
		case evt := <-s.events:
			events = append(events, evt)
		default:
			return events
		}
	}
}

func TestHandleBooksSnapshot(t *testing.T) {
	s := newTestStream()

	s.handleMessage(context.Background(), []byte(`{
		"arg":{"channel":"books","instId":"BTC-USDT"},
		"action":"snapshot",
		"data":[{"asks":[["20050","1","0","1"],["20100","2","0","1"]],"bids":[["19950","1","0","1"]],"ts":"1767225600000"}]
	}`))

	events := collectEvents(s)
	require.Len(t, events, 1)

	evt := events[0]
	assert.Equal(t, connector.StreamEventBook, evt.Type)
	assert.True(t, evt.BookSnapshot)
	assert.Equal(t, "BTC-USDT", evt.MarketID)
	require.Len(t, evt.Levels, 3)
	assert.Equal(t, "ask", evt.Levels[0].Side)
	assert.Equal(t, "20050", evt.Levels[0].Price.String())
	assert.Equal(t, "bid", evt.Levels[2].Side)
}

func TestHandleBooksUpdate(t *testing.T) {
	s := newTestStream()

	s.handleMessage(context.Background(), []byte(`{
		"arg":{"channel":"books","instId":"BTC-USDT"},
		"action":"update",
		"data":[{"asks":[["20050","0","0","0"]],"bids":[],"ts":"1767225600000"}]
	}`))

	events := collectEvents(s)
	require.Len(t, events, 1)
	assert.False(t, events[0].BookSnapshot)
	// zero size rows pass through; the cache drops the level
	require.Len(t, events[0].Levels, 1)
	assert.True(t, events[0].Levels[0].Size.IsZero())
}

func TestHandleTrades(t *testing.T) {
	s := newTestStream()

	s.handleMessage(context.Background(), []byte(`{
		"arg":{"channel":"trades","instId":"BTC-USDT"},
		"data":[
			{"instId":"BTC-USDT","tradeId":"101","px":"20000","sz":"0.5","side":"buy","ts":"1767225600000"},
			{"instId":"BTC-USDT","tradeId":"102","px":"19990","sz":"0.1","side":"sell","ts":"1767225601000"}
		]
	}`))

	events := collectEvents(s)
	require.Len(t, events, 2)
	assert.Equal(t, "101", events[0].TradeID)
	assert.Equal(t, "buy", events[0].Side)
	assert.Equal(t, "0.5", events[0].Size.String())
}

func TestHandleTickers(t *testing.T) {
	s := newTestStream()

	s.handleMessage(context.Background(), []byte(`{
		"arg":{"channel":"tickers","instId":"BTC-USDT"},
		"data":[{"instId":"BTC-USDT","last":"21000","open24h":"20000","high24h":"21500","low24h":"19800","vol24h":"1234","ts":"1767225600000"}]
	}`))

	events := collectEvents(s)
	require.Len(t, events, 1)
	assert.Equal(t, connector.StreamEventTicker, events[0].Type)
	assert.Equal(t, "21000", events[0].Last.String())
	assert.Equal(t, "20000", events[0].Open24h.String())
}

func TestHandleCandles(t *testing.T) {
	s := newTestStream()

	s.handleMessage(context.Background(), []byte(`{
		"arg":{"channel":"candle1m","instId":"BTC-USDT"},
		"data":[["1767225600000","20000","20100","19900","20050","15","0","0","1"]]
	}`))

	events := collectEvents(s)
	require.Len(t, events, 1)
	assert.Equal(t, connector.StreamEventCandle, events[0].Type)
	assert.Equal(t, "1m", events[0].CandleBar)
	assert.Equal(t, "20050", events[0].Last.String())
	assert.Equal(t, "15", events[0].CandleVol.String())
}

func TestHandleMessageIgnoresAcksAndGarbage(t *testing.T) {
	s := newTestStream()

	s.handleMessage(context.Background(), []byte(`{"event":"subscribe","arg":{"channel":"trades","instId":"BTC-USDT"}}`))
	s.handleMessage(context.Background(), []byte(`{"event":"error","msg":"bad channel"}`))
	s.handleMessage(context.Background(), []byte(`not json`))
	s.handleMessage(context.Background(), []byte(`{"arg":{"channel":"trades","instId":"BTC-USDT"},"data":[{"tradeId":""}]}`))

	assert.Empty(t, collectEvents(s))
}

func TestSubscribeTracksSubscriptionsWhileDisconnected(t *testing.T) {
	s := newTestStream()

	require.NoError(t, s.Subscribe(context.Background(), "BTC-USDT"))
	require.NoError(t, s.Subscribe(context.Background(), "BTC-USDT"))
	require.NoError(t, s.Unsubscribe(context.Background(), "BTC-USDT"))
	require.NoError(t, s.Unsubscribe(context.Background(), "BTC-USDT"))

	assert.Empty(t, s.subs)
}
