package member

import (
	"context"

	"github.com/Altanb21/TideBitEx-sub000/internal/domain/member"
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

// GetByID gets a member by id.
func (r *repository) GetByID(ctx context.Context, id int64) (*member.Member, error) {
	query := `SELECT id, email, tier, state, created_at FROM members WHERE id = $1`

	m := &member.Member{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&m.ID,
		&m.Email,
		&m.Tier,
		&m.State,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, errors.TracerFromError(err)
	}

	return m, nil
}
