package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/cuisinezen/governor/internal/storage"
	"github.com/google/uuid"
)

// ErrLockWaitTimeout is returned when a caller spent the whole backoff budget
// waiting for another holder's computation. Callers may compute locally
// without caching as a degraded response.
var ErrLockWaitTimeout = errors.New("cache: timed out waiting for in-flight computation")

// StampedeGuard serializes cold-cache recomputation per key: under N
// concurrent misses, one caller acquires a distributed lock and computes,
// the rest wait on backoff and pick the value up from the cache.
//
// Exclusivity holds modulo lock-TTL expiry: a compute running longer than
// its lock TTL lets a second caller in, so computations must tolerate rare
// double execution. Size the lock TTL well above worst-case compute latency.
type StampedeGuard struct {
	cache *DistributedCache
	store storage.Store

	initialBackoff time.Duration
	maxBackoff     time.Duration
	maxWait        time.Duration
}

type GuardConfig struct {
	InitialBackoff time.Duration // Default: 100ms
	MaxBackoff     time.Duration // Default: 2s
	MaxWait        time.Duration // Default: 10s; total wait before ErrLockWaitTimeout
}

func NewStampedeGuard(cache *DistributedCache, store storage.Store, cfg GuardConfig) *StampedeGuard {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 2 * time.Second
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 10 * time.Second
	}

	return &StampedeGuard{
		cache:          cache,
		store:          store,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		maxWait:        cfg.MaxWait,
	}
}

// GetOrCompute returns the cached value for key into dest, or runs compute
// under a per-key distributed lock, caches its result for ttl, and returns
// it. A compute error propagates uncached; the lock is still released.
func (g *StampedeGuard) GetOrCompute(ctx context.Context, key string, ttl, lockTTL time.Duration, dest any, compute func(context.Context) (any, error)) error {
	deadline := time.Now().Add(g.maxWait)
	backoff := g.initialBackoff

	for {
		if g.cache.Get(ctx, key, dest) {
			return nil
		}

		token := uuid.NewString()
		acquired, err := g.store.SetNX(ctx, g.lockKey(key), token, lockTTL)
		if err != nil {
			// Store down: no cache and no coordination. Compute locally
			// without caching so the request still succeeds.
			log.Printf("cache: lock store unavailable for %s, computing uncoordinated: %v", key, err)
			value, cerr := compute(ctx)
			if cerr != nil {
				return cerr
			}
			return assign(value, dest)
		}

		if acquired {
			return g.computeLocked(ctx, key, token, ttl, dest, compute)
		}

		// Another caller is computing. Back off and retry from the cache
		// check; exponential with jitter, bounded by the wait budget.
		wait := backoff + time.Duration(rand.Int63n(int64(backoff/2)+1))
		if remaining := time.Until(deadline); wait > remaining {
			if remaining <= 0 {
				return ErrLockWaitTimeout
			}
			wait = remaining
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if !time.Now().Before(deadline) {
			// One last cache check before giving up; the holder may have
			// just published.
			if g.cache.Get(ctx, key, dest) {
				return nil
			}
			return ErrLockWaitTimeout
		}

		backoff *= 2
		if backoff > g.maxBackoff {
			backoff = g.maxBackoff
		}
	}
}

func (g *StampedeGuard) computeLocked(ctx context.Context, key, token string, ttl time.Duration, dest any, compute func(context.Context) (any, error)) error {
	defer g.release(ctx, key, token)

	// Double-checked: the previous holder may have populated the cache
	// between our miss and our lock acquisition.
	if g.cache.Get(ctx, key, dest) {
		return nil
	}

	value, err := compute(ctx)
	if err != nil {
		// Never cache a failure.
		return err
	}

	g.cache.Set(ctx, key, value, ttl)
	return assign(value, dest)
}

// release deletes the lock only if this caller still holds it, atomically, so
// an expired-and-reacquired lock is never deleted out from under its new
// holder. Best effort; the lock TTL is the backstop if the delete is lost or
// the holder crashed.
func (g *StampedeGuard) release(ctx context.Context, key, token string) {
	if _, err := g.store.CompareAndDel(ctx, g.lockKey(key), token); err != nil {
		log.Printf("cache: lock release for %s failed, expiring by TTL: %v", key, err)
	}
}

func (g *StampedeGuard) lockKey(key string) string {
	return "lock:cache:" + key
}

// assign copies a freshly computed value into the caller's destination
// through the same serialization the cache uses, so hot and cold paths
// yield identical shapes.
func assign(value, dest any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: computed value is not serializable: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("cache: cannot assign computed value: %w", err)
	}
	return nil
}
