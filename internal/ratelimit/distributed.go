package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/cuisinezen/governor/internal/storage"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// DistributedRateLimiter enforces one operation class's policy against the
// shared store, so the count for an identifier is consistent across every
// backend instance. Counting is INCR on a window-indexed key; the increment
// is atomic but the surrounding check is not, which is tolerated - the limit
// is a cost control, not an exact invariant.
type DistributedRateLimiter struct {
	store  storage.Store
	class  OperationClass
	policy Policy
	now    func() time.Time
}

func NewDistributedRateLimiter(store storage.Store, class OperationClass, policy Policy, now func() time.Time) *DistributedRateLimiter {
	if now == nil {
		now = time.Now
	}
	return &DistributedRateLimiter{
		store:  store,
		class:  class,
		policy: policy,
		now:    now,
	}
}

func (d *DistributedRateLimiter) Policy() Policy {
	return d.policy
}

// Allow consumes one point for identifier against the configured budget.
func (d *DistributedRateLimiter) Allow(ctx context.Context, identifier string) (Decision, error) {
	return d.AllowN(ctx, identifier, 1, d.policy.Points)
}

// AllowN consumes cost points against an explicit budget. An error means the
// shared store could not be reached; the caller decides whether to fall back.
func (d *DistributedRateLimiter) AllowN(ctx context.Context, identifier string, cost, budget int) (Decision, error) {
	now := d.now()

	// A live penalty block denies regardless of the counter state.
	if d.policy.BlockDuration > 0 {
		ttl, err := d.store.TTL(ctx, d.blockKey(identifier))
		if err == nil {
			return Decision{
				Limit:      budget,
				ResetAt:    now.Add(ttl),
				RetryAfter: ttl,
			}, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return Decision{}, err
		}
	}

	windowSecs := int64(d.policy.Window.Seconds())
	windowIndex := now.Unix() / windowSecs
	resetAt := time.Unix((windowIndex+1)*windowSecs, 0)

	countKey := d.countKey(identifier, windowIndex)
	count, err := d.store.IncrBy(ctx, countKey, int64(cost))
	if err != nil {
		return Decision{}, err
	}
	if count == int64(cost) {
		// First hit in this window; the extra second covers clock skew
		// between instances so the key outlives the logical window.
		if err := d.store.Expire(ctx, countKey, d.policy.Window+time.Second); err != nil {
			return Decision{}, err
		}
	}

	if count > int64(budget) {
		// Denials do not consume: give back what the increment took, so
		// a rejected expensive request leaves the window as it found it.
		// The refund is a separate command, so another instance may read
		// the inflated count in between; the soft overcount is tolerated
		// like the check-then-increment race above.
		if _, rerr := d.store.IncrBy(ctx, countKey, -int64(cost)); rerr != nil {
			return Decision{}, rerr
		}

		remaining := budget - int(count-int64(cost))
		if remaining < 0 {
			remaining = 0
		}

		retryAfter := resetAt.Sub(now)
		if d.policy.BlockDuration > 0 {
			// Record the penalty expiry so denial persists past the
			// window reset. NX keeps the first denial's expiry.
			if _, err := d.store.SetNX(ctx, d.blockKey(identifier), "1", d.policy.BlockDuration); err != nil {
				return Decision{}, err
			}
			if d.policy.BlockDuration > retryAfter {
				retryAfter = d.policy.BlockDuration
				resetAt = now.Add(retryAfter)
			}
		}
		return Decision{
			Limit:      budget,
			Remaining:  remaining,
			ResetAt:    resetAt,
			RetryAfter: retryAfter,
		}, nil
	}

	return Decision{
		Allowed:   true,
		Limit:     budget,
		Remaining: budget - int(count),
		ResetAt:   resetAt,
	}, nil
}

// Status reports the identifier's current window without consuming points.
func (d *DistributedRateLimiter) Status(ctx context.Context, identifier string) (WindowInfo, error) {
	now := d.now()

	if d.policy.BlockDuration > 0 {
		ttl, err := d.store.TTL(ctx, d.blockKey(identifier))
		if err == nil {
			return WindowInfo{Limit: d.policy.Points, Remaining: 0, ResetAt: now.Add(ttl)}, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return WindowInfo{}, err
		}
	}

	windowSecs := int64(d.policy.Window.Seconds())
	windowIndex := now.Unix() / windowSecs
	resetAt := time.Unix((windowIndex+1)*windowSecs, 0)

	val, err := d.store.Get(ctx, d.countKey(identifier, windowIndex))
	if errors.Is(err, storage.ErrNotFound) {
		return WindowInfo{Limit: d.policy.Points, Remaining: d.policy.Points, ResetAt: resetAt}, nil
	}
	if err != nil {
		return WindowInfo{}, err
	}

	count, convErr := strconv.Atoi(val)
	if convErr != nil {
		log.Printf("rate limiter: corrupt counter for %s/%s, reporting an empty window: %v", d.class, identifier, convErr)
		count = 0
	}

	remaining := d.policy.Points - count
	if remaining < 0 {
		remaining = 0
	}
	return WindowInfo{Limit: d.policy.Points, Remaining: remaining, ResetAt: resetAt}, nil
}

// Reset clears every window and penalty record for the identifier.
func (d *DistributedRateLimiter) Reset(ctx context.Context, identifier string) error {
	keys, err := d.store.Keys(ctx, fmt.Sprintf("ratelimit:%s:%s:*", d.class, identifier))
	if err != nil {
		return err
	}
	keys = append(keys, d.blockKey(identifier))
	_, err = d.store.Del(ctx, keys...)
	return err
}

func (d *DistributedRateLimiter) countKey(identifier string, windowIndex int64) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", d.class, identifier, windowIndex)
}

func (d *DistributedRateLimiter) blockKey(identifier string) string {
	return fmt.Sprintf("ratelimit:block:%s:%s", d.class, identifier)
}
