// Package reconciliation folds external fills into the local ledger. Fills
// are staged into outer_trades, then each staged row is applied in its own
// transaction: order update, trade insert, voucher insert and both account
// legs commit atomically or not at all.
package reconciliation

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	json "github.com/goccy/go-json"

	"github.com/Altanb21/TideBitEx-sub000/internal/connector"
	"github.com/Altanb21/TideBitEx-sub000/internal/domain/account"
	"github.com/Altanb21/TideBitEx-sub000/internal/domain/market"
	"github.com/Altanb21/TideBitEx-sub000/internal/domain/member"
	"github.com/Altanb21/TideBitEx-sub000/internal/domain/order"
	"github.com/Altanb21/TideBitEx-sub000/internal/domain/outertrade"
	"github.com/Altanb21/TideBitEx-sub000/internal/domain/trade"
	"github.com/Altanb21/TideBitEx-sub000/internal/domain/voucher"
	"github.com/Altanb21/TideBitEx-sub000/internal/event"
	"github.com/Altanb21/TideBitEx-sub000/pkg/config"
	"github.com/Altanb21/TideBitEx-sub000/pkg/errors"
	"github.com/Altanb21/TideBitEx-sub000/pkg/logger"
	"github.com/Altanb21/TideBitEx-sub000/pkg/postgresql"
)

const processBatchSize = 500

// TradePublisher announces committed trades to the downstream feed.
type TradePublisher interface {
	PublishTrade(ctx context.Context, t *trade.Trade) error
}

// Engine is the reconciliation loop. One instance runs per process; rows are
// processed sequentially so ledger updates stay serializable.
type Engine struct {
	cfg      config.ReconciliationConfig
	brokerID string

	registry    *connector.Registry
	outerTrades outertrade.Repository
	orders      order.Repository
	trades      trade.Repository
	vouchers    voucher.Repository
	members     member.Repository
	markets     market.Repository
	ledger      *ledger

	bus    *event.Bus
	feed   TradePublisher
	logger logger.Interface

	force chan struct{}

	// runInTx wraps one row's processing in a database transaction.
	runInTx func(ctx context.Context, fn func(ctx context.Context) error) error
}

// NewEngine creates a reconciliation engine.
func NewEngine(
	cfg config.ReconciliationConfig,
	brokerID string,
	db postgresql.PostgreSQLClient,
	registry *connector.Registry,
	outerTrades outertrade.Repository,
	orders order.Repository,
	trades trade.Repository,
	vouchers voucher.Repository,
	accounts account.Repository,
	members member.Repository,
	markets market.Repository,
	bus *event.Bus,
	feed TradePublisher,
	log logger.Interface,
) *Engine {
	return &Engine{
		cfg:         cfg,
		brokerID:    brokerID,
		registry:    registry,
		outerTrades: outerTrades,
		orders:      orders,
		trades:      trades,
		vouchers:    vouchers,
		members:     members,
		markets:     markets,
		ledger:      &ledger{accounts: accounts, logger: log},
		bus:         bus,
		feed:        feed,
		logger:      log,
		force:       make(chan struct{}, 1),
		runInTx: func(ctx context.Context, fn func(ctx context.Context) error) error {
			return postgresql.WithTx(ctx, db, fn)
		},
	}
}

// Run executes sync cycles on the configured interval until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	e.syncOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.syncOnce(ctx)
		case <-e.force:
			e.syncOnce(ctx)
		}
	}
}

// ForceSync schedules an immediate sync cycle. Non-blocking; a cycle already
// scheduled absorbs the request.
func (e *Engine) ForceSync() {
	select {
	case e.force <- struct{}{}:
	default:
	}
}

// WatchAcks consumes the exchange's private order acks and schedules an
// immediate sync for every ack carrying one of our client order ids. Acks
// only shorten the latency; the periodic cycle stays the source of truth.
func (e *Engine) WatchAcks(ctx context.Context, acks <-chan connector.PrivateEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ack, ok := <-acks:
			if !ok {
				return nil
			}
			if _, err := DecodeClOrdID(e.brokerID, ack.ClOrdID); err != nil {
				continue
			}
			e.logger.DebugContext(ctx, "Order ack received, scheduling sync",
				logger.Field{Key: "ordId", Value: ack.OrderID},
				logger.Field{Key: "state", Value: ack.State},
			)
			e.ForceSync()
		}
	}
}

func (e *Engine) syncOnce(ctx context.Context) {
	for _, conn := range e.registry.All() {
		if err := e.fetchAndStage(ctx, conn); err != nil {
			// upstream unavailable, the next cycle retries
			e.logger.ErrorContext(ctx, err,
				logger.Field{Key: "exchange", Value: conn.Name()},
			)
		}
	}

	e.processPending(ctx)
	e.collectGarbage(ctx)
}

func (e *Engine) fetchAndStage(ctx context.Context, conn connector.Connector) error {
	since, err := e.fetchCursor(ctx, conn.Name())
	if err != nil {
		return err
	}

	fills, err := conn.FillsHistory(ctx, since)
	if err != nil {
		return err
	}

	var staged int
	for _, fill := range fills {
		data, err := json.Marshal(fill)
		if err != nil {
			return errors.TracerFromError(err)
		}

		inserted, err := e.outerTrades.InsertIgnore(ctx, &outertrade.OuterTrade{
			ID:           fill.TradeID,
			ExchangeCode: conn.Name(),
			Data:         data,
			Status:       outertrade.StatusUnprocessed,
			CreatedAt:    fill.Timestamp,
			UpdatedAt:    time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		if inserted {
			staged++
		}
	}

	if staged > 0 {
		e.logger.InfoContext(ctx, "Staged external fills",
			logger.Field{Key: "exchange", Value: conn.Name()},
			logger.Field{Key: "staged", Value: staged},
			logger.Field{Key: "fetched", Value: len(fills)},
		)
	}

	return nil
}

// fetchCursor returns the point to pull one exchange's fills from: its
// newest staged fill minus the overlap window, or the initial lookback when
// nothing is staged for it yet.
func (e *Engine) fetchCursor(ctx context.Context, exchangeCode string) (time.Time, error) {
	latest, err := e.outerTrades.LatestFillTime(ctx, exchangeCode)
	if err != nil {
		return time.Time{}, err
	}
	if latest.IsZero() {
		return time.Now().UTC().AddDate(0, 0, -e.cfg.InitialLookbackDays), nil
	}
	return latest.AddDate(0, 0, -e.cfg.OverlapDays), nil
}

func (e *Engine) processPending(ctx context.Context) {
	rows, err := e.outerTrades.ListUnprocessed(ctx, processBatchSize)
	if err != nil {
		e.logger.ErrorContext(ctx, err)
		return
	}

	for _, row := range rows {
		if ctx.Err() != nil {
			return
		}
		if err := e.processRow(ctx, row); err != nil {
			// row stays unprocessed and is retried next cycle
			e.logger.ErrorContext(ctx, err,
				logger.Field{Key: "outerTradeID", Value: row.ID},
			)
		}
	}
}

func (e *Engine) collectGarbage(ctx context.Context) {
	cutoff := time.Now().UTC().AddDate(0, 0, -e.cfg.RetentionDays)
	if _, err := e.outerTrades.ArchiveAndDelete(ctx, cutoff); err != nil {
		e.logger.ErrorContext(ctx, err)
	}
}

// processRow applies one staged fill. Terminal classification failures
// commit a status change only; ledger failures roll the row back entirely.
func (e *Engine) processRow(ctx context.Context, row *outertrade.OuterTrade) error {
	var fill connector.Fill
	if err := json.Unmarshal(row.Data, &fill); err != nil {
		e.logger.WarnContext(ctx, "Unparseable staged fill",
			logger.Field{Key: "outerTradeID", Value: row.ID},
		)
		return e.outerTrades.UpdateStatus(ctx, row.ID, outertrade.StatusSystemError)
	}

	decoded, err := DecodeClOrdID(e.brokerID, fill.ClOrdID)
	if err != nil {
		if errors.ErrorCodeEquals(err, string(errors.LedgerForeignBrokerError)) {
			return e.outerTrades.UpdateStatus(ctx, row.ID, outertrade.StatusOtherSystemTrade)
		}
		e.logger.WarnContext(ctx, "Undecodable client order id",
			logger.Field{Key: "outerTradeID", Value: row.ID},
			logger.Field{Key: "clOrdId", Value: fill.ClOrdID},
		)
		return e.outerTrades.UpdateStatus(ctx, row.ID, outertrade.StatusClientOrderIDError)
	}

	// market-order fills encode only the member and cannot be attributed to
	// a local order
	if decoded.OrderID == 0 {
		return e.outerTrades.UpdateStatus(ctx, row.ID, outertrade.StatusOtherSystemTrade)
	}

	o, err := e.orders.GetByID(ctx, decoded.OrderID)
	if err != nil {
		if isNotFound(err) {
			return e.classifyOther(ctx, row, errors.NewErrorDetailsWithObject(
				"fill references an order this ledger never held",
				string(errors.LedgerOrderNotFoundError),
				"orderID",
				decoded.OrderID,
			))
		}
		return err
	}
	if o.MemberID != decoded.MemberID {
		return e.outerTrades.UpdateStatus(ctx, row.ID, outertrade.StatusOtherSystemTrade)
	}

	mem, err := e.members.GetByID(ctx, decoded.MemberID)
	if err != nil {
		if isNotFound(err) {
			return e.classifyOther(ctx, row, errors.NewErrorDetailsWithObject(
				"fill references a member this ledger never held",
				string(errors.LedgerMemberNotFoundError),
				"memberID",
				decoded.MemberID,
			))
		}
		return err
	}

	mkt, err := e.markets.GetByID(ctx, fill.InstID)
	if err != nil {
		if isNotFound(err) {
			e.logger.WarnContext(ctx, "Fill references an unknown market",
				logger.Field{Key: "outerTradeID", Value: row.ID},
				logger.Field{Key: "instId", Value: fill.InstID},
			)
			return e.outerTrades.UpdateStatus(ctx, row.ID, outertrade.StatusSystemError)
		}
		return err
	}

	// fetch the live order state before opening the transaction so a slow
	// external call never extends row locks
	var external *connector.OrderState
	if o.Volume.GreaterThan(fill.Size) {
		conn, err := e.registry.Get(row.ExchangeCode)
		if err != nil {
			return err
		}
		if external, err = conn.OrderState(ctx, fill.InstID, fill.OrderID, fill.ClOrdID); err != nil {
			return err
		}
	}

	applied := false
	var committed *trade.Trade
	err = e.runInTx(ctx, func(ctx context.Context) error {
		committed, applied, err = e.applyFill(ctx, row, fill, decoded.OrderID, mem, mkt, external)
		return err
	})
	if err != nil {
		if errors.ErrorCodeEquals(err, string(errors.LedgerNegativeBalanceError)) {
			e.logger.ErrorContext(ctx, err,
				logger.Field{Key: "outerTradeID", Value: row.ID},
				logger.Field{Key: "severity", Value: string(errors.SeverityCritical)},
				logger.Field{Key: "category", Value: string(errors.CategoryLedgerIntegrity)},
			)
			return e.outerTrades.UpdateStatus(ctx, row.ID, outertrade.StatusSystemError)
		}
		return err
	}

	if applied {
		e.announce(ctx, o.MemberID, committed)
	}

	return nil
}

// classifyOther marks a staged fill as another system's trade and records the
// coded reason so the rows can be counted per cause.
func (e *Engine) classifyOther(ctx context.Context, row *outertrade.OuterTrade, reason *errors.ErrorDetails) error {
	e.logger.InfoContext(ctx, "Fill classified as another system's trade",
		logger.Field{Key: "outerTradeID", Value: row.ID},
		logger.Field{Key: "code", Value: reason.Code},
		logger.Field{Key: "reason", Value: reason.Message},
	)
	return e.outerTrades.UpdateStatus(ctx, row.ID, outertrade.StatusOtherSystemTrade)
}

// applyFill runs inside one transaction. It returns the inserted trade and
// whether the ledger actually changed (false when the fill was already
// folded in).
func (e *Engine) applyFill(
	ctx context.Context,
	row *outertrade.OuterTrade,
	fill connector.Fill,
	orderID int64,
	mem *member.Member,
	mkt *market.Market,
	external *connector.OrderState,
) (*trade.Trade, bool, error) {
	o, err := e.orders.GetForUpdate(ctx, orderID)
	if err != nil {
		return nil, false, err
	}

	exists, err := e.trades.ExistsByTradeFK(ctx, row.ID)
	if err != nil {
		return nil, false, err
	}
	if exists {
		return nil, false, e.outerTrades.UpdateStatus(ctx, row.ID, outertrade.StatusDone)
	}

	size := fill.Size
	if size.GreaterThan(o.Volume) {
		size = o.Volume
	}
	if size.IsZero() {
		// nothing left to fill and no trade row: the fill cannot be applied
		// without driving the order negative
		e.logger.WarnContext(ctx, "Fill against a fully consumed order",
			logger.Field{Key: "outerTradeID", Value: row.ID},
			logger.Field{Key: "orderID", Value: o.ID},
		)
		return nil, false, e.outerTrades.UpdateStatus(ctx, row.ID, outertrade.StatusSystemError)
	}

	funds := fill.Price.Mul(size)
	feeRate := mkt.Fees.FeeForTier(mem.Tier)

	// side-specific legs: the out leg leaves the locked pool, the in leg
	// credits available balance net of fee
	var outCurrency, inCurrency string
	var outAmount, income, fee decimal.Decimal
	if o.Side == order.SideAsk {
		outCurrency, outAmount = mkt.BaseUnit, size
		fee = funds.Mul(feeRate)
		inCurrency, income = mkt.QuoteUnit, funds.Sub(fee)
	} else {
		outCurrency, outAmount = mkt.QuoteUnit, funds
		fee = size.Mul(feeRate)
		inCurrency, income = mkt.BaseUnit, size.Sub(fee)
	}

	t := &trade.Trade{
		MarketID:  mkt.ID,
		Price:     fill.Price,
		Volume:    size,
		Funds:     funds,
		Trend:     tapeTrend(fill.Side),
		TradeFK:   row.ID,
		CreatedAt: fill.Timestamp,
	}
	if o.Side == order.SideAsk {
		t.AskOrderID, t.AskMemberID = o.ID, o.MemberID
	} else {
		t.BidOrderID, t.BidMemberID = o.ID, o.MemberID
	}

	tradeID, err := e.trades.Insert(ctx, t)
	if err != nil {
		return nil, false, err
	}
	if tradeID == 0 {
		// lost the race against a concurrent insert of the same external id
		dup := errors.NewErrorDetailsWithObject(
			"external trade id already committed",
			string(errors.LedgerDuplicateTradeError),
			"tradeFk",
			row.ID,
		)
		e.logger.DebugContext(ctx, "Duplicate fill folded in",
			logger.Field{Key: "outerTradeID", Value: row.ID},
			logger.Field{Key: "code", Value: dup.Code},
		)
		return nil, false, e.outerTrades.UpdateStatus(ctx, row.ID, outertrade.StatusDone)
	}
	t.ID = tradeID

	v := &voucher.Voucher{
		MemberID:  o.MemberID,
		OrderID:   o.ID,
		TradeID:   tradeID,
		MarketID:  mkt.ID,
		Trend:     string(o.Side),
		Price:     fill.Price,
		Volume:    size,
		Value:     funds,
		CreatedAt: fill.Timestamp,
	}
	if o.Side == order.SideAsk {
		v.AskFee = fee
	} else {
		v.BidFee = fee
	}
	if _, err := e.vouchers.Insert(ctx, v); err != nil {
		return nil, false, err
	}

	if err := e.ledger.subLocked(ctx, o.MemberID, outCurrency, outAmount, tradeID, fill.Timestamp); err != nil {
		return nil, false, err
	}
	if err := e.ledger.plusFunds(ctx, o.MemberID, inCurrency, income, fee, tradeID, fill.Timestamp); err != nil {
		return nil, false, err
	}

	o.Volume = o.Volume.Sub(size)
	o.Locked = o.Locked.Sub(outAmount)
	o.FundsReceived = o.FundsReceived.Add(income)
	o.TradesCount++
	o.UpdatedAt = fill.Timestamp

	switch {
	case o.Volume.IsZero():
		o.State = order.StateDone
	case external != nil && external.State == connector.OrderStateCanceled:
		o.State = order.StateCancel
	}

	// an order closing with leftover locked funds releases them back to
	// available balance
	if o.Closed() && o.Locked.IsPositive() {
		if err := e.ledger.unlockFunds(ctx, o.MemberID, outCurrency, o.Locked, o.ID, fill.Timestamp); err != nil {
			return nil, false, err
		}
		o.Locked = decimal.Zero
	}

	if err := e.orders.Update(ctx, o); err != nil {
		return nil, false, err
	}

	return t, true, e.outerTrades.UpdateStatus(ctx, row.ID, outertrade.StatusDone)
}

// announce publishes post-commit notifications: a ledger event for the
// market-data layer and the Kafka trade feed.
func (e *Engine) announce(ctx context.Context, memberID int64, t *trade.Trade) {
	e.bus.Publish(event.Event{
		Type:     event.TypeLedgerTradeCommitted,
		MarketID: t.MarketID,
		MemberID: memberID,
		Payload:  t,
	})

	if e.feed != nil {
		if err := e.feed.PublishTrade(ctx, t); err != nil {
			e.logger.WarnContext(ctx, "Trade feed publish failed",
				logger.Field{Key: "tradeID", Value: t.ID},
				logger.Field{Key: "error", Value: err.Error()},
			)
		}
	}
}

func tapeTrend(takerSide string) string {
	if takerSide == "buy" {
		return "up"
	}
	return "down"
}

func isNotFound(err error) bool {
	return stderrors.Is(err, pgx.ErrNoRows)
}
