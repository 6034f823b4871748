package order

import "context"

// Repository is the store for orders.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Order, error)
	// GetForUpdate locks the order row for the lifetime of the surrounding
	// transaction.
	GetForUpdate(ctx context.Context, id int64) (*Order, error)
	Update(ctx context.Context, o *Order) error
	// ListByMemberMarket returns the member's orders on a market, newest
	// first, pending states before closed states.
	ListByMemberMarket(ctx context.Context, memberID int64, marketID string, limit int) ([]*Order, error)
}
