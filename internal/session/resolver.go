// Package session maps client session tokens to member ids. Tokens are
// written by the account system; the gateway only reads them.
package session

import (
	"context"
	"strconv"

	"github.com/Altanb21/TideBitEx-sub000/pkg/errors"
	"github.com/Altanb21/TideBitEx-sub000/pkg/logger"
	"github.com/Altanb21/TideBitEx-sub000/pkg/redis"
)

const sessionKeyPrefix = "session:"

//go:generate mockgen -source=resolver.go -destination=mock/resolver_mock.go -package=mock

// Resolver turns a session token into a member id.
type Resolver interface {
	ResolveMemberID(ctx context.Context, token string) (int64, error)
}

type resolver struct {
	redis  redis.Client
	logger logger.Interface
}

// NewResolver creates a redis-backed session resolver.
func NewResolver(rc redis.Client, log logger.Interface) Resolver {
	return &resolver{redis: rc, logger: log}
}

// ResolveMemberID reads session:<token>. A missing, expired or unreadable
// session is an authentication failure, never a fatal error.
func (r *resolver) ResolveMemberID(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, errors.NewErrorDetails(
			"empty session token",
			string(errors.SessionResolveError),
			"token",
		)
	}

	val, err := r.redis.Get(ctx, sessionKeyPrefix+token)
	if err != nil {
		if err != redis.Nil {
			r.logger.WarnContext(ctx, "session lookup failed",
				logger.Field{Key: "error", Value: err.Error()},
			)
		}
		return 0, errors.NewErrorDetails(
			"session not found",
			string(errors.SessionResolveError),
			"token",
		)
	}

	memberID, err := strconv.ParseInt(val, 10, 64)
	if err != nil || memberID <= 0 {
		return 0, errors.NewErrorDetails(
			"malformed session value",
			string(errors.SessionResolveError),
			"token",
		)
	}
	return memberID, nil
}
