package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("storage: key not found")

// Store is the narrow set of shared-store primitives the governance layer
// needs: TTL'd values, conditional create, atomic counters and pattern scan.
// RedisStore implements it for production; MemoryStore implements it for
// tests and storeless development.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX creates the key only if it does not exist. Returns true if the
	// key was created by this call.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	Del(ctx context.Context, keys ...string) (int64, error)

	// CompareAndDel deletes the key only if its current value equals value,
	// atomically. Returns true if the key was deleted.
	CompareAndDel(ctx context.Context, key, value string) (bool, error)

	// Keys returns all keys matching a glob pattern. O(keyspace) - admin
	// and invalidation paths only.
	Keys(ctx context.Context, pattern string) ([]string, error)

	Incr(ctx context.Context, key string) (int64, error)
	IncrBy(ctx context.Context, key string, n int64) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// TTL returns the remaining lifetime of a key, or ErrNotFound if the
	// key does not exist or has no expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)

	MGet(ctx context.Context, keys ...string) ([]*string, error)
	MSet(ctx context.Context, entries map[string]string, ttl time.Duration) error

	Ping(ctx context.Context) error
	Close() error
}
