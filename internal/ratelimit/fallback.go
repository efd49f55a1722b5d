package ratelimit

import (
	"sync"
	"time"
)

// InProcessFallbackLimiter enforces a policy from process memory alone. It is
// the degraded path used when the shared store is unreachable: limits hold
// per instance rather than globally, so under scale-out the effective global
// budget is instanceCount x points. Weaker than the distributed limiter, but
// it never fails - a down redis must not turn into a full outage.
type InProcessFallbackLimiter struct {
	counter *KeyedWindowCounter
	policy  Policy
	now     func() time.Time

	mu      sync.Mutex
	blocked map[string]time.Time
}

func NewInProcessFallbackLimiter(policy Policy, maxIdentifiers int, now func() time.Time) *InProcessFallbackLimiter {
	if now == nil {
		now = time.Now
	}
	return &InProcessFallbackLimiter{
		counter: NewKeyedWindowCounter(policy.Points, policy.Window, maxIdentifiers, now),
		policy:  policy,
		now:     now,
		blocked: make(map[string]time.Time),
	}
}

// Allow consumes one point for identifier.
func (f *InProcessFallbackLimiter) Allow(identifier string) Decision {
	return f.AllowN(identifier, 1, f.policy.Points)
}

// AllowN consumes cost points against an explicit budget.
func (f *InProcessFallbackLimiter) AllowN(identifier string, cost, budget int) Decision {
	now := f.now()

	if until, ok := f.blockExpiry(identifier); ok {
		return Decision{
			Limit:      budget,
			ResetAt:    until,
			RetryAfter: until.Sub(now),
		}
	}

	allowed, remaining, resetAt := f.counter.ConsumeN(identifier, cost, budget)
	decision := Decision{
		Allowed:   allowed,
		Limit:     budget,
		Remaining: remaining,
		ResetAt:   resetAt,
	}

	if !allowed {
		decision.RetryAfter = resetAt.Sub(now)
		if f.policy.BlockDuration > 0 {
			until := now.Add(f.policy.BlockDuration)
			f.mu.Lock()
			if _, exists := f.blocked[identifier]; !exists {
				f.blocked[identifier] = until
			} else {
				until = f.blocked[identifier]
			}
			f.mu.Unlock()

			if until.After(decision.ResetAt) {
				decision.ResetAt = until
				decision.RetryAfter = until.Sub(now)
			}
		}
	}

	return decision
}

// Status reports the identifier's window without consuming points.
func (f *InProcessFallbackLimiter) Status(identifier string) WindowInfo {
	if until, ok := f.blockExpiry(identifier); ok {
		return WindowInfo{Limit: f.policy.Points, Remaining: 0, ResetAt: until}
	}
	return f.counter.Info(identifier)
}

// Reset clears the identifier's window and any penalty block.
func (f *InProcessFallbackLimiter) Reset(identifier string) {
	f.mu.Lock()
	delete(f.blocked, identifier)
	f.mu.Unlock()
	f.counter.Reset(identifier)
}

func (f *InProcessFallbackLimiter) Close() {
	f.counter.Close()
}

func (f *InProcessFallbackLimiter) blockExpiry(identifier string) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	until, ok := f.blocked[identifier]
	if !ok {
		return time.Time{}, false
	}
	if f.now().After(until) {
		delete(f.blocked, identifier)
		return time.Time{}, false
	}
	return until, true
}
