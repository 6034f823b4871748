package voucher

import (
	"context"

	"github.com/Altanb21/TideBitEx-sub000/internal/domain/voucher"
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

// Insert stores a voucher and returns its id.
func (r *repository) Insert(ctx context.Context, v *voucher.Voucher) (int64, error) {
	query := `INSERT INTO vouchers
		(member_id, order_id, trade_id, market_id, trend, price, volume, value, ask_fee, bid_fee, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	var id int64
	err := r.db.QueryRow(ctx, query,
		v.MemberID,
		v.OrderID,
		v.TradeID,
		v.MarketID,
		v.Trend,
		v.Price,
		v.Volume,
		v.Value,
		v.AskFee,
		v.BidFee,
		v.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, errors.TracerFromError(err)
	}

	return id, nil
}

// ListByOrder lists the vouchers of an order, oldest first.
func (r *repository) ListByOrder(ctx context.Context, orderID int64) ([]*voucher.Voucher, error) {
	query := `SELECT id, member_id, order_id, trade_id, market_id, trend, price, volume, value, ask_fee, bid_fee, created_at
		FROM vouchers WHERE order_id = $1 ORDER BY id`

	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, errors.TracerFromError(err)
	}
	defer rows.Close()

	vouchers := []*voucher.Voucher{}
	for rows.Next() {
		v := &voucher.Voucher{}
		err := rows.Scan(
			&v.ID,
			&v.MemberID,
			&v.OrderID,
			&v.TradeID,
			&v.MarketID,
			&v.Trend,
			&v.Price,
			&v.Volume,
			&v.Value,
			&v.AskFee,
			&v.BidFee,
			&v.CreatedAt,
		)
		if err != nil {
			return nil, errors.TracerFromError(err)
		}
		vouchers = append(vouchers, v)
	}

	return vouchers, nil
}
