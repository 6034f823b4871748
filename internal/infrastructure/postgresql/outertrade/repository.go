package outertrade

import (
	"context"
	"time"

	"github.com/Altanb21/TideBitEx-sub000/internal/domain/outertrade"
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

// InsertIgnore stages a fill, skipping external trade ids already present.
// Returns true when a new row was inserted.
func (r *repository) InsertIgnore(ctx context.Context, ot *outertrade.OuterTrade) (bool, error) {
	query := `INSERT INTO outer_trades (id, exchange_code, data, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`

	cmd, err := r.db.Exec(ctx, query,
		ot.ID,
		ot.ExchangeCode,
		ot.Data,
		ot.Status,
		ot.CreatedAt,
		ot.UpdatedAt,
	)
	if err != nil {
		return false, errors.TracerFromError(err)
	}

	return cmd.RowsAffected() > 0, nil
}

// ListUnprocessed lists staged fills awaiting processing, oldest first so
// fills fold into orders in arrival order.
func (r *repository) ListUnprocessed(ctx context.Context, limit int) ([]*outertrade.OuterTrade, error) {
	query := `SELECT id, exchange_code, data, status, created_at, updated_at
		FROM outer_trades WHERE status = $1 ORDER BY created_at, id LIMIT $2`

	rows, err := r.db.Query(ctx, query, outertrade.StatusUnprocessed, limit)
	if err != nil {
		return nil, errors.TracerFromError(err)
	}
	defer rows.Close()

	trades := []*outertrade.OuterTrade{}
	for rows.Next() {
		ot := &outertrade.OuterTrade{}
		err := rows.Scan(
			&ot.ID,
			&ot.ExchangeCode,
			&ot.Data,
			&ot.Status,
			&ot.CreatedAt,
			&ot.UpdatedAt,
		)
		if err != nil {
			return nil, errors.TracerFromError(err)
		}
		trades = append(trades, ot)
	}

	return trades, nil
}

// UpdateStatus moves a staged fill to a terminal status.
func (r *repository) UpdateStatus(ctx context.Context, id string, status outertrade.Status) error {
	query := `UPDATE outer_trades SET status = $1, updated_at = $2 WHERE id = $3`

	_, err := r.db.Exec(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return errors.TracerFromError(err)
	}

	return nil
}

// LatestFillTime returns the creation time of the newest fill staged for one
// exchange. The zero time means nothing is staged for that exchange and the
// caller should use its initial lookback window.
func (r *repository) LatestFillTime(ctx context.Context, exchangeCode string) (time.Time, error) {
	query := `SELECT COALESCE(MAX(created_at), 'epoch'::timestamptz) FROM outer_trades
		WHERE exchange_code = $1`

	var latest time.Time
	err := r.db.QueryRow(ctx, query, exchangeCode).Scan(&latest)
	if err != nil {
		return time.Time{}, errors.TracerFromError(err)
	}

	if latest.Unix() <= 0 {
		return time.Time{}, nil
	}
	return latest, nil
}

// ArchiveAndDelete copies the fee fields of processed rows older than the
// cutoff into outer_trade_fees, then deletes the rows, in one transaction.
func (r *repository) ArchiveAndDelete(ctx context.Context, olderThan time.Time) (int64, error) {
	var archived int64

	err := postgresql.WithTx(ctx, r.db, func(ctx context.Context) error {
		archiveQuery := `INSERT INTO outer_trade_fees (outer_trade_id, exchange_code, fee, fee_currency, created_at)
			SELECT id, exchange_code,
				COALESCE(NULLIF(data->>'fee', ''), '0')::numeric,
				COALESCE(data->>'feeCcy', ''),
				created_at
			FROM outer_trades
			WHERE status = $1 AND created_at < $2
			ON CONFLICT (outer_trade_id) DO NOTHING`

		cmd, err := r.db.Exec(ctx, archiveQuery, outertrade.StatusDone, olderThan)
		if err != nil {
			return errors.TracerFromError(err)
		}
		archived = cmd.RowsAffected()

		deleteQuery := `DELETE FROM outer_trades WHERE status = $1 AND created_at < $2`
		if _, err := r.db.Exec(ctx, deleteQuery, outertrade.StatusDone, olderThan); err != nil {
			return errors.TracerFromError(err)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	if archived > 0 {
		r.logger.InfoContext(ctx, "Archived processed outer trades", logger.Field{
			Key:   "archived",
			Value: archived,
		})
	}

	return archived, nil
}
