package account

import "context"

// Repository is the store for accounts and their audit versions.
type Repository interface {
	Get(ctx context.Context, memberID int64, currency string) (*Account, error)
	// GetForUpdate locks the account row for the lifetime of the surrounding
	// transaction.
	GetForUpdate(ctx context.Context, memberID int64, currency string) (*Account, error)
	Save(ctx context.Context, a *Account) error
	ListByMember(ctx context.Context, memberID int64) ([]*Account, error)

	InsertVersion(ctx context.Context, v *Version) error
	// SumVersionDeltas returns the sums of balance and locked deltas recorded
	// for an account, used to audit that no mutation skipped its version row.
	SumVersionDeltas(ctx context.Context, accountID int64) (balance, locked string, err error)
}
