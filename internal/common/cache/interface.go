package cache

import (
	"context"
	"time"
)

// Cache defines the key-value operations the run service needs from a cache backend.
type Cache interface {
	// Get returns "" with a nil error when the key does not exist
	Get(ctx context.Context, key string) (string, error)

	// Set stores a key-value pair; a zero ttl never expires
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Del deletes one or more keys
	Del(ctx context.Context, keys ...string) error

	// TTL returns the remaining time to live of a key
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Incr increments the integer value of a key by 1
	Incr(ctx context.Context, key string) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}
