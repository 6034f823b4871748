package market

import (
	"context"

	"github.com/Altanb21/TideBitEx-sub000/internal/domain/market"
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

const marketColumns = `id, base_unit, quote_unit, lot_size, tick_size, price_scale,
	fee_default, fee_vip, fee_hero`

// List lists every market descriptor.
func (r *repository) List(ctx context.Context) ([]*market.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets ORDER BY id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, errors.TracerFromError(err)
	}
	defer rows.Close()

	markets := []*market.Market{}
	for rows.Next() {
		m := &market.Market{}
		err := rows.Scan(
			&m.ID,
			&m.BaseUnit,
			&m.QuoteUnit,
			&m.LotSize,
			&m.TickSize,
			&m.PriceScale,
			&m.Fees.Default,
			&m.Fees.VIP,
			&m.Fees.Hero,
		)
		if err != nil {
			return nil, errors.TracerFromError(err)
		}
		markets = append(markets, m)
	}

	return markets, nil
}

// GetByID gets a market descriptor by instrument id.
func (r *repository) GetByID(ctx context.Context, id string) (*market.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE id = $1`

	m := &market.Market{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&m.ID,
		&m.BaseUnit,
		&m.QuoteUnit,
		&m.LotSize,
		&m.TickSize,
		&m.PriceScale,
		&m.Fees.Default,
		&m.Fees.VIP,
		&m.Fees.Hero,
	)
	if err != nil {
		return nil, errors.TracerFromError(err)
	}

	return m, nil
}
