package market

import "context"

// Repository is the read-only store for market descriptors.
type Repository interface {
	List(ctx context.Context) ([]*Market, error)
	GetByID(ctx context.Context, id string) (*Market, error)
}
