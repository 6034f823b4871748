package outertrade

import (
	"context"
	"time"
)

// Repository is the staging store for external fills.
type Repository interface {
	// InsertIgnore stages a fill, skipping ids already present. Returns true
	// when a new row was inserted.
	InsertIgnore(ctx context.Context, ot *OuterTrade) (bool, error)
	ListUnprocessed(ctx context.Context, limit int) ([]*OuterTrade, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
	// LatestFillTime returns the creation time of the newest fill staged for
	// one exchange, or the zero time when none exists. The cursor is tracked
	// per exchange so a lagging venue never has history skipped because
	// another venue staged newer fills.
	LatestFillTime(ctx context.Context, exchangeCode string) (time.Time, error)
	// ArchiveAndDelete copies the fee data of Done rows older than the cutoff
	// into the archive table and deletes them, in one transaction. Returns
	// the number of rows collected.
	ArchiveAndDelete(ctx context.Context, olderThan time.Time) (int64, error)
}
