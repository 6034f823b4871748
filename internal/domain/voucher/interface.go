package voucher

import "context"

// Repository is the store for vouchers.
type Repository interface {
	Insert(ctx context.Context, v *Voucher) (int64, error)
	ListByOrder(ctx context.Context, orderID int64) ([]*Voucher, error)
}
