package ratelimit

import (
	"fmt"
	"time"
)

// OperationClass is a closed set of request categories, each with its own
// rate limit policy. Unknown classes resolve to ClassAPI.
type OperationClass string

const (
	ClassAPI       OperationClass = "api"
	ClassMutation  OperationClass = "mutation"
	ClassAuth      OperationClass = "auth"
	ClassUpload    OperationClass = "upload"
	ClassAnalytics OperationClass = "analytics"
	ClassSearch    OperationClass = "search"
	ClassCost      OperationClass = "cost"
)

// Classes lists every known operation class, in policy-validation order.
var Classes = []OperationClass{
	ClassAPI,
	ClassMutation,
	ClassAuth,
	ClassUpload,
	ClassAnalytics,
	ClassSearch,
	ClassCost,
}

// Policy configures one operation class. BlockDuration of zero means
// exhaustion only denies until the window resets; a positive BlockDuration
// adds a penalty window that outlives the count window.
type Policy struct {
	Points        int           `json:"points"`
	Window        time.Duration `json:"window"`
	BlockDuration time.Duration `json:"block_duration"`
}

func (p Policy) Validate() error {
	if p.Points <= 0 {
		return fmt.Errorf("policy points must be positive, got %d", p.Points)
	}
	if p.Window < time.Second {
		return fmt.Errorf("policy window must be at least 1s, got %v", p.Window)
	}
	if p.BlockDuration < 0 {
		return fmt.Errorf("policy block duration must not be negative, got %v", p.BlockDuration)
	}
	return nil
}

// DefaultPolicies returns the product's stock limits per operation class.
// ClassCost is consumed in variable point increments (see CheckCostBasedLimit),
// the rest one point per request.
func DefaultPolicies() map[OperationClass]Policy {
	return map[OperationClass]Policy{
		ClassAPI:       {Points: 100, Window: time.Minute},
		ClassMutation:  {Points: 20, Window: time.Minute, BlockDuration: 2 * time.Minute},
		ClassAuth:      {Points: 5, Window: 5 * time.Minute, BlockDuration: 15 * time.Minute},
		ClassUpload:    {Points: 10, Window: time.Minute},
		ClassAnalytics: {Points: 5, Window: time.Minute},
		ClassSearch:    {Points: 30, Window: time.Minute},
		ClassCost:      {Points: 500, Window: time.Minute},
	}
}

// ValidatePolicies checks a policy set at startup. Every known class must be
// present and well formed.
func ValidatePolicies(policies map[OperationClass]Policy) error {
	for _, class := range Classes {
		policy, ok := policies[class]
		if !ok {
			return fmt.Errorf("missing policy for operation class %q", class)
		}
		if err := policy.Validate(); err != nil {
			return fmt.Errorf("policy for %q: %w", class, err)
		}
	}
	return nil
}
