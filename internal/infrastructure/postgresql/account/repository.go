package account

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Altanb21/TideBitEx-sub000/internal/domain/account"
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

const accountColumns = `id, member_id, currency, balance, locked`

// Get gets a member's account in one currency.
func (r *repository) Get(ctx context.Context, memberID int64, currency string) (*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE member_id = $1 AND currency = $2`

	return r.scanAccount(ctx, query, memberID, currency)
}

// GetForUpdate locks the account row inside the surrounding transaction.
func (r *repository) GetForUpdate(ctx context.Context, memberID int64, currency string) (*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE member_id = $1 AND currency = $2 FOR UPDATE`

	return r.scanAccount(ctx, query, memberID, currency)
}

func (r *repository) scanAccount(ctx context.Context, query string, args ...any) (*account.Account, error) {
	a := &account.Account{}
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&a.ID,
		&a.MemberID,
		&a.Currency,
		&a.Balance,
		&a.Locked,
	)
	if err != nil {
		return nil, errors.TracerFromError(err)
	}

	return a, nil
}

// Save persists the balance and locked amounts of an account.
func (r *repository) Save(ctx context.Context, a *account.Account) error {
	query := `UPDATE accounts SET balance = $1, locked = $2 WHERE id = $3`

	cmd, err := r.db.Exec(ctx, query, a.Balance, a.Locked, a.ID)
	if err != nil {
		return errors.TracerFromError(err)
	}

	r.logger.DebugContext(ctx, "Updated account", logger.Field{
		Key:   "commandTag",
		Value: cmd.String(),
	})

	return nil
}

// ListByMember lists all accounts of a member ordered by currency.
func (r *repository) ListByMember(ctx context.Context, memberID int64) ([]*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE member_id = $1 ORDER BY currency`

	rows, err := r.db.Query(ctx, query, memberID)
	if err != nil {
		return nil, errors.TracerFromError(err)
	}
	defer rows.Close()

	accounts := []*account.Account{}
	for rows.Next() {
		a := &account.Account{}
		err := rows.Scan(
			&a.ID,
			&a.MemberID,
			&a.Currency,
			&a.Balance,
			&a.Locked,
		)
		if err != nil {
			return nil, errors.TracerFromError(err)
		}
		accounts = append(accounts, a)
	}

	return accounts, nil
}

// InsertVersion appends an audit version row.
func (r *repository) InsertVersion(ctx context.Context, v *account.Version) error {
	query := `INSERT INTO account_versions
		(member_id, account_id, reason, balance, locked, fee, modifiable_id, modifiable_type, currency, fun, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.Exec(ctx, query,
		v.MemberID,
		v.AccountID,
		v.Reason,
		v.Balance,
		v.Locked,
		v.Fee,
		v.ModifiableID,
		v.ModifiableType,
		v.Currency,
		v.Fun,
		v.CreatedAt,
	)
	if err != nil {
		return errors.TracerFromError(err)
	}

	return nil
}

// SumVersionDeltas sums the balance and locked deltas recorded for an
// account across all of its version rows.
func (r *repository) SumVersionDeltas(ctx context.Context, accountID int64) (string, string, error) {
	query := `SELECT COALESCE(SUM(balance), 0), COALESCE(SUM(locked), 0) FROM account_versions WHERE account_id = $1`

	var balance, locked decimal.Decimal
	err := r.db.QueryRow(ctx, query, accountID).Scan(&balance, &locked)
	if err != nil {
		return "", "", errors.TracerFromError(err)
	}

	return balance.String(), locked.String(), nil
}
