package redis

import (
	"context"
	"time"
)

// Client defines the Redis operations used across the gateway.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Ping(ctx context.Context) error

	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}
