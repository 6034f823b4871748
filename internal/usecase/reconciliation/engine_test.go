package reconciliation

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	json "github.com/goccy/go-json"

	"github.com/Altanb21/TideBitEx-sub000/internal/connector"
	"github.com/Altanb21/TideBitEx-sub000/internal/connector/mock"
	"github.com/Altanb21/TideBitEx-sub000/internal/domain/account"
	"github.com/Altanb21/TideBitEx-sub000/internal/domain/market"
	"github.com/Altanb21/TideBitEx-sub000/internal/domain/member"
	"github.com/Altanb21/TideBitEx-sub000/internal/domain/order"
	"github.com/Altanb21/TideBitEx-sub000/internal/domain/outertrade"
	"github.com/Altanb21/TideBitEx-sub000/internal/event"
	"github.com/Altanb21/TideBitEx-sub000/pkg/config"
	"github.com/Altanb21/TideBitEx-sub000/pkg/logger"
)

func sumVersions(versions []*account.Version, accountID int64) (decimal.Decimal, decimal.Decimal) {
	balance, locked := decimal.Zero, decimal.Zero
	for _, v := range versions {
		if v.AccountID == accountID {
			balance = balance.Add(v.Balance)
			locked = locked.Add(v.Locked)
		}
	}
	return balance, locked
}

type engineFixture struct {
	engine      *Engine
	conn        *mock.MockConnector
	outerTrades *fakeOuterTrades
	orders      *fakeOrders
	trades      *fakeTrades
	vouchers    *fakeVouchers
	accounts    *fakeAccounts
	members     *fakeMembers
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	conn := mock.NewMockConnector(ctrl)
	conn.EXPECT().Name().Return("okx").AnyTimes()

	price := d("20000")
	fx := &engineFixture{
		conn:        conn,
		outerTrades: newFakeOuterTrades(),
		orders: newFakeOrders(&order.Order{
			ID:           77,
			MemberID:     501,
			MarketID:     "BTC-USDT",
			Side:         order.SideAsk,
			Type:         order.TypeLimit,
			Price:        &price,
			Volume:       d("0.02"),
			OriginVolume: d("0.02"),
			Locked:       d("0.02"),
			OriginLocked: d("0.02"),
			State:        order.StateWait,
			CreatedAt:    time.Now().UTC(),
		}),
		trades:   newFakeTrades(),
		vouchers: &fakeVouchers{},
		accounts: newFakeAccounts(
			&account.Account{ID: 1, MemberID: 501, Currency: "btc", Balance: d("0.5"), Locked: d("0.02")},
			&account.Account{ID: 2, MemberID: 501, Currency: "usdt", Balance: d("1000"), Locked: d("0")},
		),
	}

	fx.members = newFakeMembers(&member.Member{ID: 501, Email: "m@example.com", Tier: market.TierDefault})
	markets := newFakeMarkets(&market.Market{
		ID:        "BTC-USDT",
		BaseUnit:  "btc",
		QuoteUnit: "usdt",
		LotSize:   d("0.0001"),
		Fees: market.FeeSchedule{
			Default: d("0.001"),
			VIP:     d("0.0008"),
			Hero:    d("0"),
		},
	})

	fx.engine = NewEngine(
		config.ReconciliationConfig{
			Interval:            10 * time.Minute,
			InitialLookbackDays: 180,
			OverlapDays:         1,
			RetentionDays:       180,
		},
		testBrokerID,
		nil,
		connector.NewRegistry(conn),
		fx.outerTrades,
		fx.orders,
		fx.trades,
		fx.vouchers,
		fx.accounts,
		fx.members,
		markets,
		event.NewBus(logger.NewNop()),
		nil,
		logger.NewNop(),
	)
	fx.engine.runInTx = func(ctx context.Context, fn func(ctx context.Context) error) error {
		return fn(ctx)
	}

	return fx
}

func (fx *engineFixture) stage(t *testing.T, fill connector.Fill) *outertrade.OuterTrade {
	t.Helper()
	data, err := json.Marshal(fill)
	require.NoError(t, err)

	row := &outertrade.OuterTrade{
		ID:           fill.TradeID,
		ExchangeCode: "okx",
		Data:         data,
		Status:       outertrade.StatusUnprocessed,
		CreatedAt:    fill.Timestamp,
	}
	inserted, err := fx.outerTrades.InsertIgnore(context.Background(), row)
	require.NoError(t, err)
	require.True(t, inserted)
	return row
}

func sellFill(tradeID, size string) connector.Fill {
	return connector.Fill{
		TradeID:     tradeID,
		OrderID:     "ext-1",
		ClOrdID:     testBrokerID + "m501o77",
		InstID:      "BTC-USDT",
		Side:        "sell",
		Price:       d("20000"),
		Size:        d(size),
		Fee:         d("-0.2"),
		FeeCurrency: "USDT",
		Timestamp:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestProcessRowAppliesSellFill(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	// the fill does not complete the order, so the engine mirrors the live
	// external state before opening the transaction
	fx.conn.EXPECT().
		OrderState(gomock.Any(), "BTC-USDT", "ext-1", testBrokerID+"m501o77").
		Return(&connector.OrderState{State: connector.OrderStateLive}, nil)

	row := fx.stage(t, sellFill("t1", "0.01"))
	require.NoError(t, fx.engine.processRow(ctx, row))

	assert.Equal(t, outertrade.StatusDone, fx.outerTrades.rows["t1"].Status)

	o, err := fx.orders.GetByID(ctx, 77)
	require.NoError(t, err)
	assert.True(t, o.Volume.Equal(d("0.01")))
	assert.True(t, o.Locked.Equal(d("0.01")))
	assert.Equal(t, order.StateWait, o.State)
	assert.Equal(t, 1, o.TradesCount)
	assert.True(t, o.FundsReceived.Equal(d("199.8")))

	// one trade row, trend down for a sell taker
	require.Len(t, fx.trades.rows, 1)
	tr := fx.trades.rows[1]
	assert.Equal(t, "t1", tr.TradeFK)
	assert.Equal(t, "down", tr.Trend)
	assert.Equal(t, int64(77), tr.AskOrderID)
	assert.Equal(t, int64(501), tr.AskMemberID)
	assert.True(t, tr.Funds.Equal(d("200")))

	// one voucher on the ask side carrying the fee
	require.Len(t, fx.vouchers.rows, 1)
	v := fx.vouchers.rows[0]
	assert.Equal(t, "ask", v.Trend)
	assert.True(t, v.AskFee.Equal(d("0.2")))
	assert.True(t, v.BidFee.IsZero())

	// BTC locked released by the filled size, USDT credited net of fee
	btc, err := fx.accounts.Get(ctx, 501, "btc")
	require.NoError(t, err)
	assert.True(t, btc.Locked.Equal(d("0.01")))
	assert.True(t, btc.Balance.Equal(d("0.5")))

	usdt, err := fx.accounts.Get(ctx, 501, "usdt")
	require.NoError(t, err)
	assert.True(t, usdt.Balance.Equal(d("1199.8")))

	// every mutation carries a version row
	require.Len(t, fx.accounts.versions, 2)
}

func TestProcessRowCompletesOrder(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	fx.conn.EXPECT().
		OrderState(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&connector.OrderState{State: connector.OrderStateLive}, nil)

	require.NoError(t, fx.engine.processRow(ctx, fx.stage(t, sellFill("t1", "0.01"))))
	// second fill consumes the remaining volume; no external state fetch
	require.NoError(t, fx.engine.processRow(ctx, fx.stage(t, sellFill("t2", "0.01"))))

	o, err := fx.orders.GetByID(ctx, 77)
	require.NoError(t, err)
	assert.Equal(t, order.StateDone, o.State)
	assert.True(t, o.Volume.IsZero())
	assert.True(t, o.Locked.IsZero())
	assert.Equal(t, 2, o.TradesCount)

	btc, err := fx.accounts.Get(ctx, 501, "btc")
	require.NoError(t, err)
	assert.True(t, btc.Locked.IsZero())

	usdt, err := fx.accounts.Get(ctx, 501, "usdt")
	require.NoError(t, err)
	assert.True(t, usdt.Balance.Equal(d("1399.6")))
}

func TestProcessRowIsIdempotent(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	fx.conn.EXPECT().
		OrderState(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&connector.OrderState{State: connector.OrderStateLive}, nil)

	row := fx.stage(t, sellFill("t1", "0.01"))
	require.NoError(t, fx.engine.processRow(ctx, row))

	trades := len(fx.trades.rows)
	versions := len(fx.accounts.versions)

	// replaying the same row must not double-apply the ledger
	fx.outerTrades.rows["t1"].Status = outertrade.StatusUnprocessed
	fx.conn.EXPECT().
		OrderState(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&connector.OrderState{State: connector.OrderStateLive}, nil)
	require.NoError(t, fx.engine.processRow(ctx, fx.outerTrades.rows["t1"]))

	assert.Equal(t, outertrade.StatusDone, fx.outerTrades.rows["t1"].Status)
	assert.Len(t, fx.trades.rows, trades)
	assert.Len(t, fx.accounts.versions, versions)
}

func TestProcessRowClientOrderIDError(t *testing.T) {
	fx := newEngineFixture(t)

	fill := sellFill("t1", "0.01")
	fill.ClOrdID = testBrokerID + "garbage"
	row := fx.stage(t, fill)

	require.NoError(t, fx.engine.processRow(context.Background(), row))

	assert.Equal(t, outertrade.StatusClientOrderIDError, fx.outerTrades.rows["t1"].Status)
	assert.Empty(t, fx.trades.rows)
	assert.Empty(t, fx.accounts.versions)
}

func TestProcessRowOtherSystemTrade(t *testing.T) {
	tests := []struct {
		name    string
		clOrdID string
	}{
		{name: "foreign broker prefix", clOrdID: "other00000000000m501o77"},
		{name: "market order without order id", clOrdID: testBrokerID + "m501"},
		{name: "unknown order", clOrdID: testBrokerID + "m501o999"},
		{name: "member mismatch", clOrdID: testBrokerID + "m666o77"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fx := newEngineFixture(t)

			fill := sellFill("t1", "0.01")
			fill.ClOrdID = tc.clOrdID
			row := fx.stage(t, fill)

			require.NoError(t, fx.engine.processRow(context.Background(), row))

			assert.Equal(t, outertrade.StatusOtherSystemTrade, fx.outerTrades.rows["t1"].Status)
			assert.Empty(t, fx.trades.rows)
			assert.Empty(t, fx.accounts.versions)
		})
	}
}

func TestProcessRowUnknownMemberIsOtherSystemTrade(t *testing.T) {
	fx := newEngineFixture(t)

	// the order survives but its member was purged
	delete(fx.members.rows, 501)

	row := fx.stage(t, sellFill("t1", "0.01"))
	require.NoError(t, fx.engine.processRow(context.Background(), row))

	assert.Equal(t, outertrade.StatusOtherSystemTrade, fx.outerTrades.rows["t1"].Status)
	assert.Empty(t, fx.trades.rows)
}

func TestProcessRowNegativeBalanceIsSystemError(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	// locked pool smaller than the filled size
	btc, err := fx.accounts.Get(ctx, 501, "btc")
	require.NoError(t, err)
	btc.Locked = d("0.005")
	require.NoError(t, fx.accounts.Save(ctx, btc))

	fx.conn.EXPECT().
		OrderState(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&connector.OrderState{State: connector.OrderStateLive}, nil)

	row := fx.stage(t, sellFill("t1", "0.01"))
	require.NoError(t, fx.engine.processRow(ctx, row))

	assert.Equal(t, outertrade.StatusSystemError, fx.outerTrades.rows["t1"].Status)
}

func TestProcessRowMirrorsExternalCancel(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	fx.conn.EXPECT().
		OrderState(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&connector.OrderState{State: connector.OrderStateCanceled}, nil)

	row := fx.stage(t, sellFill("t1", "0.01"))
	require.NoError(t, fx.engine.processRow(ctx, row))

	o, err := fx.orders.GetByID(ctx, 77)
	require.NoError(t, err)
	assert.Equal(t, order.StateCancel, o.State)
	// cancelled with leftover locked: the remainder is released to balance
	assert.True(t, o.Locked.IsZero())

	btc, err := fx.accounts.Get(ctx, 501, "btc")
	require.NoError(t, err)
	assert.True(t, btc.Locked.IsZero())
	assert.True(t, btc.Balance.Equal(d("0.51")))
}

func TestLedgerBalanceProperty(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	fx.conn.EXPECT().
		OrderState(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&connector.OrderState{State: connector.OrderStateLive}, nil)

	initial := map[int64][2]decimal.Decimal{
		1: {d("0.5"), d("0.02")},
		2: {d("1000"), d("0")},
	}

	require.NoError(t, fx.engine.processRow(ctx, fx.stage(t, sellFill("t1", "0.01"))))
	require.NoError(t, fx.engine.processRow(ctx, fx.stage(t, sellFill("t2", "0.01"))))

	// every balance movement is mirrored by version rows, account by account
	for _, acc := range fx.accounts.rows {
		dBalance, dLocked := sumVersions(fx.accounts.versions, acc.ID)
		assert.True(t, acc.Balance.Equal(initial[acc.ID][0].Add(dBalance)),
			"balance drift on account %d", acc.ID)
		assert.True(t, acc.Locked.Equal(initial[acc.ID][1].Add(dLocked)),
			"locked drift on account %d", acc.ID)
	}
}

func TestFetchAndStage(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	fills := []connector.Fill{sellFill("t1", "0.01"), sellFill("t2", "0.01")}
	fx.conn.EXPECT().FillsHistory(gomock.Any(), gomock.Any()).Return(fills, nil)

	require.NoError(t, fx.engine.fetchAndStage(ctx, fx.conn))
	assert.Len(t, fx.outerTrades.rows, 2)

	// restaging the same fills is a no-op
	fx.conn.EXPECT().FillsHistory(gomock.Any(), gomock.Any()).Return(fills, nil)
	require.NoError(t, fx.engine.fetchAndStage(ctx, fx.conn))
	assert.Len(t, fx.outerTrades.rows, 2)
}

func TestFetchCursor(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	// nothing staged: initial lookback window
	since, err := fx.engine.fetchCursor(ctx, "okx")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC().AddDate(0, 0, -180), since, time.Minute)

	// staged rows: newest fill minus the overlap window
	fx.stage(t, sellFill("t1", "0.01"))
	since, err = fx.engine.fetchCursor(ctx, "okx")
	require.NoError(t, err)
	latest := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, latest.AddDate(0, 0, -1), since)
}

func TestFetchCursorIsPerExchange(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	fx.stage(t, sellFill("t1", "0.01"))

	// another venue's newer fills must not advance this venue's cursor
	other := sellFill("t2", "0.01")
	other.Timestamp = time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	data, err := json.Marshal(other)
	require.NoError(t, err)
	inserted, err := fx.outerTrades.InsertIgnore(ctx, &outertrade.OuterTrade{
		ID:           other.TradeID,
		ExchangeCode: "binance",
		Data:         data,
		Status:       outertrade.StatusUnprocessed,
		CreatedAt:    other.Timestamp,
	})
	require.NoError(t, err)
	require.True(t, inserted)

	since, err := fx.engine.fetchCursor(ctx, "okx")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC).AddDate(0, 0, -1), since)

	since, err = fx.engine.fetchCursor(ctx, "binance")
	require.NoError(t, err)
	assert.Equal(t, other.Timestamp.AddDate(0, 0, -1), since)
}

func TestWatchAcksSchedulesSyncForOwnOrders(t *testing.T) {
	fx := newEngineFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	acks := make(chan connector.PrivateEvent, 4)
	done := make(chan error, 1)
	go func() { done <- fx.engine.WatchAcks(ctx, acks) }()

	acks <- connector.PrivateEvent{OrderID: "1", ClOrdID: "anotherbroker000m9o9"}
	select {
	case <-fx.engine.force:
		t.Fatal("foreign ack scheduled a sync")
	case <-time.After(50 * time.Millisecond):
	}

	acks <- connector.PrivateEvent{
		OrderID: "812",
		ClOrdID: testBrokerID + "m501o77",
		State:   connector.OrderStatePartiallyFilled,
	}
	select {
	case <-fx.engine.force:
	case <-time.After(time.Second):
		t.Fatal("own-order ack did not schedule a sync")
	}

	close(acks)
	require.NoError(t, <-done)
}

func TestWatchAcksStopsWithContext(t *testing.T) {
	fx := newEngineFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := fx.engine.WatchAcks(ctx, make(chan connector.PrivateEvent))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCollectGarbage(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	old := sellFill("old", "0.01")
	old.Timestamp = time.Now().UTC().AddDate(0, 0, -200)
	fx.stage(t, old)
	fx.outerTrades.rows["old"].Status = outertrade.StatusDone

	recent := sellFill("recent", "0.01")
	recent.Timestamp = time.Now().UTC()
	fx.stage(t, recent)
	fx.outerTrades.rows["recent"].Status = outertrade.StatusDone

	fx.engine.collectGarbage(ctx)

	assert.NotContains(t, fx.outerTrades.rows, "old")
	assert.Contains(t, fx.outerTrades.rows, "recent")
}
