package member

import "context"

// Repository is the store for members.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Member, error)
}
