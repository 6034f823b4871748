package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Altanb21/TideBitEx-sub000/internal/domain/order"
	"github.com/Altanb21/TideBitEx-sub000/pkg/logger"
)

func TestOrderBookTrim(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	makeOrder := func(id int64, state order.State, age time.Duration) order.Order {
		return order.Order{
			ID:        id,
			State:     state,
			CreatedAt: base.Add(-age),
		}
	}

	t.Run("pending orders precede closed, newest first", func(t *testing.T) {
		book := NewOrderBook(logger.NewNop())
		key := OrderBookKey(501, "BTC-USDT")

		require.True(t, book.UpdateAll(key, []order.Order{
			makeOrder(1, order.StateDone, time.Hour),
			makeOrder(2, order.StateWait, 2*time.Hour),
			makeOrder(3, order.StateWait, time.Minute),
			makeOrder(4, order.StateCancel, time.Minute),
		}))

		snap := book.Snapshot(key)
		require.Len(t, snap, 4)
		assert.Equal(t, []int64{3, 2, 4, 1}, []int64{snap[0].ID, snap[1].ID, snap[2].ID, snap[3].ID})
	})

	t.Run("each group is bounded independently", func(t *testing.T) {
		book := NewOrderBook(logger.NewNop())
		key := OrderBookKey(501, "BTC-USDT")

		var orders []order.Order
		for i := int64(0); i < 150; i++ {
			orders = append(orders, makeOrder(i, order.StateWait, time.Duration(i)*time.Second))
			orders = append(orders, makeOrder(1000+i, order.StateDone, time.Duration(i)*time.Second))
		}
		require.True(t, book.UpdateAll(key, orders))

		snap := book.Snapshot(key)
		require.Len(t, snap, orderBookPendingLimit+orderBookClosedLimit)

		var pending, closed int
		for _, o := range snap {
			if o.Closed() {
				closed++
			} else {
				pending++
			}
		}
		assert.Equal(t, orderBookPendingLimit, pending)
		assert.Equal(t, orderBookClosedLimit, closed)
	})

	t.Run("volume change is reported as update", func(t *testing.T) {
		book := NewOrderBook(logger.NewNop())
		key := OrderBookKey(501, "BTC-USDT")

		o := makeOrder(7, order.StateWait, time.Hour)
		o.Volume = decimal.NewFromInt(10)
		require.True(t, book.UpdateAll(key, []order.Order{o}))

		o.Volume = decimal.NewFromInt(4)
		require.True(t, book.UpdateAll(key, []order.Order{o}))

		diff := book.Difference(key)
		require.Len(t, diff.Updated, 1)
		assert.True(t, diff.Updated[0].Volume.Equal(decimal.NewFromInt(4)))
	})
}

func TestDepthBookTrim(t *testing.T) {
	book := NewDepthBook(logger.NewNop())

	level := func(side order.Side, price, size string) PriceLevel {
		return PriceLevel{
			Side:  side,
			Price: decimal.RequireFromString(price),
			Size:  decimal.RequireFromString(size),
		}
	}

	t.Run("orders sides and restarts cumulative per side", func(t *testing.T) {
		require.True(t, book.UpdateAll("BTC-USDT", []PriceLevel{
			level(order.SideAsk, "20100", "2"),
			level(order.SideAsk, "20050", "1"),
			level(order.SideBid, "19900", "3"),
			level(order.SideBid, "19950", "1"),
		}))

		snap := book.Snapshot("BTC-USDT")
		require.Len(t, snap, 4)

		// asks ascending then bids descending
		assert.Equal(t, "20050", snap[0].Price.String())
		assert.Equal(t, "20100", snap[1].Price.String())
		assert.Equal(t, "19950", snap[2].Price.String())
		assert.Equal(t, "19900", snap[3].Price.String())

		assert.Equal(t, "1", snap[0].Cumulative.String())
		assert.Equal(t, "3", snap[1].Cumulative.String())
		assert.Equal(t, "1", snap[2].Cumulative.String())
		assert.Equal(t, "4", snap[3].Cumulative.String())

		// denominator is the grand total of both sides (7)
		assert.True(t, snap[1].Percent.Equal(decimal.RequireFromString("3").Div(decimal.RequireFromString("7"))))
		assert.True(t, snap[3].Percent.Equal(decimal.RequireFromString("4").Div(decimal.RequireFromString("7"))))
	})

	t.Run("keeps only the best 50 levels per side", func(t *testing.T) {
		var levels []PriceLevel
		for i := 0; i < 80; i++ {
			levels = append(levels, level(order.SideAsk, fmt.Sprintf("%d", 20000+i), "1"))
			levels = append(levels, level(order.SideBid, fmt.Sprintf("%d", 19999-i), "1"))
		}
		require.True(t, book.UpdateAll("ETH-USDT", levels))

		snap := book.Snapshot("ETH-USDT")
		require.Len(t, snap, 2*depthBookLevelsPerSide)
		assert.Equal(t, "20000", snap[0].Price.String())
		assert.Equal(t, "20049", snap[depthBookLevelsPerSide-1].Price.String())
		assert.Equal(t, "19999", snap[depthBookLevelsPerSide].Price.String())
	})

	t.Run("zero size level is dropped", func(t *testing.T) {
		require.True(t, book.UpdateAll("LTC-USDT", []PriceLevel{
			level(order.SideAsk, "100", "1"),
			level(order.SideAsk, "101", "0"),
		}))
		assert.Len(t, book.Snapshot("LTC-USDT"), 1)
	})
}

func TestTradeTapeTrim(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	entry := func(id, price, trend string, age time.Duration) TapeEntry {
		return TapeEntry{
			ID:    id,
			Price: decimal.RequireFromString(price),
			Trend: trend,
			At:    base.Add(-age),
		}
	}

	t.Run("backfills trend from next-older trade", func(t *testing.T) {
		book := NewTradeTape(logger.NewNop())
		require.True(t, book.UpdateAll("BTC-USDT", []TapeEntry{
			entry("t3", "20010", "", time.Minute),
			entry("t2", "20020", "", 2*time.Minute),
			entry("t1", "20020", "", 3*time.Minute),
		}))

		snap := book.Snapshot("BTC-USDT")
		require.Len(t, snap, 3)
		// newest first: t3 (dropped vs t2), t2 (tied with t1 -> up), t1 (oldest -> up)
		assert.Equal(t, "t3", snap[0].ID)
		assert.Equal(t, TrendDown, snap[0].Trend)
		assert.Equal(t, TrendUp, snap[1].Trend)
		assert.Equal(t, TrendUp, snap[2].Trend)
	})

	t.Run("keeps an explicit trend untouched", func(t *testing.T) {
		book := NewTradeTape(logger.NewNop())
		require.True(t, book.UpdateAll("BTC-USDT", []TapeEntry{
			entry("t2", "19000", TrendUp, time.Minute),
			entry("t1", "20000", "", 2*time.Minute),
		}))

		snap := book.Snapshot("BTC-USDT")
		assert.Equal(t, TrendUp, snap[0].Trend)
	})

	t.Run("bounds the tape to the newest 500", func(t *testing.T) {
		book := NewTradeTape(logger.NewNop())
		var tape []TapeEntry
		for i := 0; i < 700; i++ {
			tape = append(tape, entry(fmt.Sprintf("t%04d", i), "100", TrendUp, time.Duration(i)*time.Second))
		}
		require.True(t, book.UpdateAll("BTC-USDT", tape))

		snap := book.Snapshot("BTC-USDT")
		require.Len(t, snap, tradeTapeLimit)
		assert.Equal(t, "t0000", snap[0].ID)
	})
}

func TestTickerBookChange(t *testing.T) {
	tick := Ticker{
		MarketID: "BTC-USDT",
		Last:     decimal.RequireFromString("21000"),
		Open24h:  decimal.RequireFromString("20000"),
	}
	assert.Equal(t, "1000", tick.Change().String())
	assert.True(t, tick.ChangePercent().Equal(decimal.RequireFromString("0.05")))

	tick.Open24h = decimal.Zero
	assert.True(t, tick.ChangePercent().IsZero())
}

func TestAccountBookIncrementalPush(t *testing.T) {
	book := NewAccountBook(logger.NewNop())
	key := AccountBookKey(501)

	require.True(t, book.UpdateAll(key, []BalanceRow{
		{Currency: "btc", Balance: decimal.NewFromInt(1)},
		{Currency: "usdt", Balance: decimal.NewFromInt(1000)},
	}))

	// zeroed balance stays visible after an incremental update
	ok := book.UpdateByDifference(key, Difference[BalanceRow]{
		Updated: []BalanceRow{{Currency: "btc", Balance: decimal.Zero}},
	})
	require.True(t, ok)

	snap := book.Snapshot(key)
	require.Len(t, snap, 2)

	diff := book.Difference(key)
	require.Len(t, diff.Updated, 1)
	assert.Equal(t, "btc", diff.Updated[0].Currency)
	assert.Empty(t, diff.Removed)
}
