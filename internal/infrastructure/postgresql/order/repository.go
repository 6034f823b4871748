package order

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Altanb21/TideBitEx-sub000/internal/domain/order"
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

const orderColumns = `id, member_id, market_id, side, type, price, volume, origin_volume,
	locked, origin_locked, funds_received, trades_count, state, created_at, updated_at`

// GetByID gets an order by id.
func (r *repository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	return r.scanOrder(r.db.QueryRow(ctx, query, id))
}

// GetForUpdate locks the order row inside the surrounding transaction.
func (r *repository) GetForUpdate(ctx context.Context, id int64) (*order.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	return r.scanOrder(r.db.QueryRow(ctx, query, id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *repository) scanOrder(row rowScanner) (*order.Order, error) {
	o := &order.Order{}
	var price decimal.NullDecimal

	err := row.Scan(
		&o.ID,
		&o.MemberID,
		&o.MarketID,
		&o.Side,
		&o.Type,
		&price,
		&o.Volume,
		&o.OriginVolume,
		&o.Locked,
		&o.OriginLocked,
		&o.FundsReceived,
		&o.TradesCount,
		&o.State,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, errors.TracerFromError(err)
	}

	if price.Valid {
		o.Price = &price.Decimal
	}

	return o, nil
}

// Update persists the mutable fields of an order.
func (r *repository) Update(ctx context.Context, o *order.Order) error {
	query := `UPDATE orders SET volume = $1, locked = $2, funds_received = $3,
		trades_count = $4, state = $5, updated_at = $6 WHERE id = $7`

	cmd, err := r.db.Exec(ctx, query,
		o.Volume,
		o.Locked,
		o.FundsReceived,
		o.TradesCount,
		o.State,
		o.UpdatedAt,
		o.ID,
	)
	if err != nil {
		return errors.TracerFromError(err)
	}

	r.logger.DebugContext(ctx, "Updated order", logger.Field{
		Key:   "commandTag",
		Value: cmd.String(),
	})

	return nil
}

// ListByMemberMarket lists a member's orders on a market, pending states
// first, newest first within each group.
func (r *repository) ListByMemberMarket(ctx context.Context, memberID int64, marketID string, limit int) ([]*order.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE member_id = $1 AND market_id = $2
		ORDER BY (state = 'wait') DESC, created_at DESC, id DESC
		LIMIT $3`

	rows, err := r.db.Query(ctx, query, memberID, marketID, limit)
	if err != nil {
		return nil, errors.TracerFromError(err)
	}
	defer rows.Close()

	orders := []*order.Order{}
	for rows.Next() {
		o, err := r.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}

	return orders, nil
}
