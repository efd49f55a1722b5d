package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cuisinezen/governor/internal/circuitbreaker"
	"github.com/cuisinezen/governor/internal/storage"
	"golang.org/x/time/rate"
)

// Facade routes every admission check to the right per-class limiter. Each
// check is composed of a user-level and an IP-level decision, both of which
// must admit. The distributed limiter is the primary path; when the shared
// store is unreachable (or the circuit breaker is open) checks degrade to the
// in-process fallback rather than rejecting traffic.
type Facade struct {
	policies    map[OperationClass]Policy
	distributed map[OperationClass]*DistributedRateLimiter
	fallback    map[OperationClass]*InProcessFallbackLimiter
	breaker     *circuitbreaker.CircuitBreaker
	global      *rate.Limiter
	now         func() time.Time
}

type FacadeConfig struct {
	// Policies per operation class; every class in Classes must be present.
	Policies map[OperationClass]Policy

	// GlobalRPS caps this instance's total admission rate across all
	// identifiers. Zero or negative disables the ceiling.
	GlobalRPS   float64
	GlobalBurst int

	// MaxIdentifiers bounds each fallback limiter's window store.
	MaxIdentifiers int

	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

func NewFacade(store storage.Store, cfg FacadeConfig) (*Facade, error) {
	if cfg.Policies == nil {
		cfg.Policies = DefaultPolicies()
	}
	if err := ValidatePolicies(cfg.Policies); err != nil {
		return nil, fmt.Errorf("rate limit policies: %w", err)
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	f := &Facade{
		policies:    cfg.Policies,
		distributed: make(map[OperationClass]*DistributedRateLimiter),
		fallback:    make(map[OperationClass]*InProcessFallbackLimiter),
		breaker:     circuitbreaker.New(circuitbreaker.Config{}),
		now:         now,
	}

	for class, policy := range cfg.Policies {
		f.distributed[class] = NewDistributedRateLimiter(store, class, policy, now)
		f.fallback[class] = NewInProcessFallbackLimiter(policy, cfg.MaxIdentifiers, now)
	}

	if cfg.GlobalRPS > 0 {
		burst := cfg.GlobalBurst
		if burst <= 0 {
			burst = int(cfg.GlobalRPS)
		}
		f.global = rate.NewLimiter(rate.Limit(cfg.GlobalRPS), burst)
	}

	return f, nil
}

// CheckLimit admits or denies one request from (userID, ip) in the given
// operation class. It returns a *RateLimitedError on exhaustion and nil in
// every other case: infrastructure failures degrade, they never reject.
func (f *Facade) CheckLimit(ctx context.Context, userID, ip string, class OperationClass) error {
	class = f.resolve(class)
	policy := f.policies[class]
	return f.checkIdentifiers(ctx, class, userID, ip, 1, policy.Points)
}

func (f *Facade) CheckMutationLimit(ctx context.Context, userID, ip string) error {
	return f.CheckLimit(ctx, userID, ip, ClassMutation)
}

func (f *Facade) CheckAuthLimit(ctx context.Context, userID, ip string) error {
	return f.CheckLimit(ctx, userID, ip, ClassAuth)
}

func (f *Facade) CheckUploadLimit(ctx context.Context, userID, ip string) error {
	return f.CheckLimit(ctx, userID, ip, ClassUpload)
}

func (f *Facade) CheckAnalyticsLimit(ctx context.Context, userID, ip string) error {
	return f.CheckLimit(ctx, userID, ip, ClassAnalytics)
}

func (f *Facade) CheckSearchLimit(ctx context.Context, userID, ip string) error {
	return f.CheckLimit(ctx, userID, ip, ClassSearch)
}

// CheckAdaptiveLimit shrinks the general API budget as the caller-observed
// system load rises: effective = max(floor(points * (1 - 0.5*load)), floor).
// Coarse admission control - it sheds load ahead of hard failure, it is not
// backpressure.
func (f *Facade) CheckAdaptiveLimit(ctx context.Context, userID, ip string, systemLoad float64) error {
	if systemLoad < 0 {
		systemLoad = 0
	}
	if systemLoad > 1 {
		systemLoad = 1
	}

	policy := f.policies[ClassAPI]
	effective := int(float64(policy.Points) * (1 - 0.5*systemLoad))

	floor := policy.Points / 10
	if floor < 1 {
		floor = 1
	}
	if effective < floor {
		effective = floor
	}

	return f.checkIdentifiers(ctx, ClassAPI, userID, ip, 1, effective)
}

// CheckCostBasedLimit consumes pointCost points from the user's cost budget.
// Endpoints whose resource cost varies per request (AI extraction, report
// generation) spend points proportional to their weight.
func (f *Facade) CheckCostBasedLimit(ctx context.Context, userID string, pointCost int) error {
	if pointCost < 1 {
		pointCost = 1
	}
	policy := f.policies[ClassCost]
	return f.checkIdentifiers(ctx, ClassCost, userID, "", pointCost, policy.Points)
}

// GetLimitStatus reports the user's current window for a class without
// consuming anything.
func (f *Facade) GetLimitStatus(ctx context.Context, userID string, class OperationClass) WindowInfo {
	return f.status(ctx, f.userKey(userID), class)
}

// GetIPLimitStatus is GetLimitStatus for the IP level, used for anonymous
// requests.
func (f *Facade) GetIPLimitStatus(ctx context.Context, ip string, class OperationClass) WindowInfo {
	return f.status(ctx, "ip:"+ip, class)
}

func (f *Facade) status(ctx context.Context, identifier string, class OperationClass) WindowInfo {
	class = f.resolve(class)

	var info WindowInfo
	err := f.breaker.Call(func() error {
		var err error
		info, err = f.distributed[class].Status(ctx, identifier)
		return err
	})
	if err != nil {
		return f.fallback[class].Status(identifier)
	}
	return info
}

// ResetLimits clears all per-class windows and penalty blocks for a user.
// Administrative override; best effort against the shared store.
func (f *Facade) ResetLimits(ctx context.Context, userID string) error {
	var lastErr error
	for _, class := range Classes {
		if err := f.distributed[class].Reset(ctx, f.userKey(userID)); err != nil {
			lastErr = err
		}
		f.fallback[class].Reset(f.userKey(userID))
	}
	return lastErr
}

// Close stops the fallback limiters' janitors.
func (f *Facade) Close() {
	for _, fb := range f.fallback {
		fb.Close()
	}
}

func (f *Facade) checkIdentifiers(ctx context.Context, class OperationClass, userID, ip string, cost, budget int) error {
	if f.global != nil && !f.global.Allow() {
		return &RateLimitedError{Class: class, RetryAfter: time.Second}
	}

	identifiers := make([]string, 0, 2)
	if userID != "" {
		identifiers = append(identifiers, f.userKey(userID))
	}
	if ip != "" {
		identifiers = append(identifiers, "ip:"+ip)
	}

	// Evaluate every level without short-circuiting so each consumes its
	// point even when another denies.
	var denied *Decision
	for _, identifier := range identifiers {
		decision := f.check(ctx, class, identifier, cost, budget)
		if !decision.Allowed && (denied == nil || decision.RetryAfter > denied.RetryAfter) {
			d := decision
			denied = &d
		}
	}

	if denied != nil {
		return &RateLimitedError{Class: class, RetryAfter: denied.RetryAfter}
	}
	return nil
}

func (f *Facade) check(ctx context.Context, class OperationClass, identifier string, cost, budget int) Decision {
	var decision Decision
	err := f.breaker.Call(func() error {
		var err error
		decision, err = f.distributed[class].AllowN(ctx, identifier, cost, budget)
		return err
	})
	if err == nil {
		return decision
	}

	if !errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		log.Printf("rate limiter: shared store unavailable for %s/%s, using in-process fallback: %v", class, identifier, err)
	}

	return f.fallback[class].AllowN(identifier, cost, budget)
}

func (f *Facade) resolve(class OperationClass) OperationClass {
	if _, ok := f.policies[class]; !ok {
		return ClassAPI
	}
	return class
}

func (f *Facade) userKey(userID string) string {
	return "u:" + userID
}
