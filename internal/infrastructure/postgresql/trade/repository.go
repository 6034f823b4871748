package trade

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/Altanb21/TideBitEx-sub000/internal/domain/trade"
	"github.com/Altanb21/TideBitEx-sub000/pkg/errors"
	"github.com/Altanb21/TideBitEx-sub000/pkg/logger"
	"github.com/Altanb21/TideBitEx-sub000/pkg/postgresql"
)

type repository struct {
	db     postgresql.PostgreSQLClient
	logger logger.Interface
}

// NewRepository creates a new repository.
func NewRepository(db postgresql.PostgreSQLClient, logger logger.Interface) *repository {
	return &repository{
		db:     db,
		logger: logger,
	}
}

// Insert stores the trade and returns its id. The unique index on trade_fk
// makes re-insertion of the same external fill a no-op; (0, nil) signals the
// caller that the fill was already folded in.
func (r *repository) Insert(ctx context.Context, t *trade.Trade) (int64, error) {
	query := `INSERT INTO trades
		(market_id, price, volume, funds, ask_order_id, bid_order_id, ask_member_id, bid_member_id, trend, trade_fk, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (trade_fk) DO NOTHING
		RETURNING id`

	var id int64
	err := r.db.QueryRow(ctx, query,
		t.MarketID,
		t.Price,
		t.Volume,
		t.Funds,
		t.AskOrderID,
		t.BidOrderID,
		t.AskMemberID,
		t.BidMemberID,
		t.Trend,
		t.TradeFK,
		t.CreatedAt,
	).Scan(&id)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.TracerFromError(err)
	}

	r.logger.DebugContext(ctx, "Inserted trade", logger.Field{
		Key:   "tradeID",
		Value: id,
	})

	return id, nil
}

// ExistsByTradeFK reports whether a trade with the external id exists.
func (r *repository) ExistsByTradeFK(ctx context.Context, tradeFK string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM trades WHERE trade_fk = $1)`

	var exists bool
	err := r.db.QueryRow(ctx, query, tradeFK).Scan(&exists)
	if err != nil {
		return false, errors.TracerFromError(err)
	}

	return exists, nil
}

// ListRecentByMarket lists the newest trades of a market, newest first.
func (r *repository) ListRecentByMarket(ctx context.Context, marketID string, limit int) ([]*trade.Trade, error) {
	query := `SELECT id, market_id, price, volume, funds, ask_order_id, bid_order_id,
		ask_member_id, bid_member_id, trend, trade_fk, created_at
		FROM trades WHERE market_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`

	rows, err := r.db.Query(ctx, query, marketID, limit)
	if err != nil {
		return nil, errors.TracerFromError(err)
	}
	defer rows.Close()

	trades := []*trade.Trade{}
	for rows.Next() {
		t := &trade.Trade{}
		err := rows.Scan(
			&t.ID,
			&t.MarketID,
			&t.Price,
			&t.Volume,
			&t.Funds,
			&t.AskOrderID,
			&t.BidOrderID,
			&t.AskMemberID,
			&t.BidMemberID,
			&t.Trend,
			&t.TradeFK,
			&t.CreatedAt,
		)
		if err != nil {
			return nil, errors.TracerFromError(err)
		}
		trades = append(trades, t)
	}

	return trades, nil
}
