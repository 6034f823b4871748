package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Altanb21/TideBitEx-sub000/internal/domain/account"
	"github.com/Altanb21/TideBitEx-sub000/internal/domain/market"
	"github.com/Altanb21/TideBitEx-sub000/internal/domain/member"
	"github.com/Altanb21/TideBitEx-sub000/internal/domain/order"
	"github.com/Altanb21/TideBitEx-sub000/internal/domain/outertrade"
	"github.com/Altanb21/TideBitEx-sub000/internal/domain/trade"
	"github.com/Altanb21/TideBitEx-sub000/internal/domain/voucher"
	"github.com/Altanb21/TideBitEx-sub000/pkg/errors"
)

// in-memory repositories backing the engine tests

type fakeOuterTrades struct {
	rows map[string]*outertrade.OuterTrade
}

func newFakeOuterTrades() *fakeOuterTrades {
	return &fakeOuterTrades{rows: make(map[string]*outertrade.OuterTrade)}
}

func (f *fakeOuterTrades) InsertIgnore(_ context.Context, ot *outertrade.OuterTrade) (bool, error) {
	if _, ok := f.rows[ot.ID]; ok {
		return false, nil
	}
	cp := *ot
	f.rows[ot.ID] = &cp
	return true, nil
}

func (f *fakeOuterTrades) ListUnprocessed(_ context.Context, limit int) ([]*outertrade.OuterTrade, error) {
	var out []*outertrade.OuterTrade
	for _, row := range f.rows {
		if row.Status == outertrade.StatusUnprocessed && len(out) < limit {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeOuterTrades) UpdateStatus(_ context.Context, id string, status outertrade.Status) error {
	row, ok := f.rows[id]
	if !ok {
		return errors.TracerFromError(pgx.ErrNoRows)
	}
	row.Status = status
	return nil
}

func (f *fakeOuterTrades) LatestFillTime(_ context.Context, exchangeCode string) (time.Time, error) {
	var latest time.Time
	for _, row := range f.rows {
		if row.ExchangeCode == exchangeCode && row.CreatedAt.After(latest) {
			latest = row.CreatedAt
		}
	}
	return latest, nil
}

func (f *fakeOuterTrades) ArchiveAndDelete(_ context.Context, olderThan time.Time) (int64, error) {
	var n int64
	for id, row := range f.rows {
		if row.Status == outertrade.StatusDone && row.CreatedAt.Before(olderThan) {
			delete(f.rows, id)
			n++
		}
	}
	return n, nil
}

type fakeOrders struct {
	rows map[int64]*order.Order
}

func newFakeOrders(orders ...*order.Order) *fakeOrders {
	f := &fakeOrders{rows: make(map[int64]*order.Order)}
	for _, o := range orders {
		cp := *o
		f.rows[o.ID] = &cp
	}
	return f
}

func (f *fakeOrders) GetByID(_ context.Context, id int64) (*order.Order, error) {
	o, ok := f.rows[id]
	if !ok {
		return nil, errors.TracerFromError(pgx.ErrNoRows)
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) GetForUpdate(ctx context.Context, id int64) (*order.Order, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeOrders) Update(_ context.Context, o *order.Order) error {
	cp := *o
	f.rows[o.ID] = &cp
	return nil
}

func (f *fakeOrders) ListByMemberMarket(_ context.Context, memberID int64, marketID string, limit int) ([]*order.Order, error) {
	var out []*order.Order
	for _, o := range f.rows {
		if o.MemberID == memberID && o.MarketID == marketID && len(out) < limit {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeTrades struct {
	nextID int64
	rows   map[int64]*trade.Trade
	byFK   map[string]int64
}

func newFakeTrades() *fakeTrades {
	return &fakeTrades{nextID: 1, rows: make(map[int64]*trade.Trade), byFK: make(map[string]int64)}
}

func (f *fakeTrades) Insert(_ context.Context, t *trade.Trade) (int64, error) {
	if _, ok := f.byFK[t.TradeFK]; ok {
		return 0, nil
	}
	id := f.nextID
	f.nextID++
	cp := *t
	cp.ID = id
	f.rows[id] = &cp
	f.byFK[t.TradeFK] = id
	return id, nil
}

func (f *fakeTrades) ExistsByTradeFK(_ context.Context, tradeFK string) (bool, error) {
	_, ok := f.byFK[tradeFK]
	return ok, nil
}

func (f *fakeTrades) ListRecentByMarket(_ context.Context, marketID string, limit int) ([]*trade.Trade, error) {
	var out []*trade.Trade
	for _, t := range f.rows {
		if t.MarketID == marketID && len(out) < limit {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeVouchers struct {
	rows []*voucher.Voucher
}

func (f *fakeVouchers) Insert(_ context.Context, v *voucher.Voucher) (int64, error) {
	cp := *v
	cp.ID = int64(len(f.rows) + 1)
	f.rows = append(f.rows, &cp)
	return cp.ID, nil
}

func (f *fakeVouchers) ListByOrder(_ context.Context, orderID int64) ([]*voucher.Voucher, error) {
	var out []*voucher.Voucher
	for _, v := range f.rows {
		if v.OrderID == orderID {
			out = append(out, v)
		}
	}
	return out, nil
}

type fakeAccounts struct {
	rows     map[string]*account.Account
	versions []*account.Version
}

func accountKey(memberID int64, currency string) string {
	return fmt.Sprintf("%d/%s", memberID, currency)
}

func newFakeAccounts(accounts ...*account.Account) *fakeAccounts {
	f := &fakeAccounts{rows: make(map[string]*account.Account)}
	for _, a := range accounts {
		cp := *a
		f.rows[accountKey(a.MemberID, a.Currency)] = &cp
	}
	return f
}

func (f *fakeAccounts) Get(_ context.Context, memberID int64, currency string) (*account.Account, error) {
	a, ok := f.rows[accountKey(memberID, currency)]
	if !ok {
		return nil, errors.TracerFromError(pgx.ErrNoRows)
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAccounts) GetForUpdate(ctx context.Context, memberID int64, currency string) (*account.Account, error) {
	return f.Get(ctx, memberID, currency)
}

func (f *fakeAccounts) Save(_ context.Context, a *account.Account) error {
	for key, row := range f.rows {
		if row.ID == a.ID {
			cp := *a
			f.rows[key] = &cp
			return nil
		}
	}
	return errors.TracerFromError(pgx.ErrNoRows)
}

func (f *fakeAccounts) ListByMember(_ context.Context, memberID int64) ([]*account.Account, error) {
	var out []*account.Account
	for _, a := range f.rows {
		if a.MemberID == memberID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeAccounts) InsertVersion(_ context.Context, v *account.Version) error {
	cp := *v
	f.versions = append(f.versions, &cp)
	return nil
}

func (f *fakeAccounts) SumVersionDeltas(_ context.Context, accountID int64) (string, string, error) {
	balance, locked := sumVersions(f.versions, accountID)
	return balance.String(), locked.String(), nil
}

type fakeMembers struct {
	rows map[int64]*member.Member
}

func newFakeMembers(members ...*member.Member) *fakeMembers {
	f := &fakeMembers{rows: make(map[int64]*member.Member)}
	for _, m := range members {
		cp := *m
		f.rows[m.ID] = &cp
	}
	return f
}

func (f *fakeMembers) GetByID(_ context.Context, id int64) (*member.Member, error) {
	m, ok := f.rows[id]
	if !ok {
		return nil, errors.TracerFromError(pgx.ErrNoRows)
	}
	cp := *m
	return &cp, nil
}

type fakeMarkets struct {
	rows map[string]*market.Market
}

func newFakeMarkets(markets ...*market.Market) *fakeMarkets {
	f := &fakeMarkets{rows: make(map[string]*market.Market)}
	for _, m := range markets {
		cp := *m
		f.rows[m.ID] = &cp
	}
	return f
}

func (f *fakeMarkets) List(_ context.Context) ([]*market.Market, error) {
	var out []*market.Market
	for _, m := range f.rows {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeMarkets) GetByID(_ context.Context, id string) (*market.Market, error) {
	m, ok := f.rows[id]
	if !ok {
		return nil, errors.TracerFromError(pgx.ErrNoRows)
	}
	cp := *m
	return &cp, nil
}
