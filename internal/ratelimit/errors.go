package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitedError is the caller-facing denial. It is the only limiter
// failure a request handler should surface; everything else degrades
// toward admitting the request.
type RateLimitedError struct {
	Class      OperationClass
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Class, e.RetryAfter.Round(time.Second))
}

// RetryAfterSeconds rounds up so a client waiting the advertised time is
// never denied again for the same window.
func (e *RateLimitedError) RetryAfterSeconds() int {
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// AsRateLimited unwraps err into a RateLimitedError if it is one.
func AsRateLimited(err error) (*RateLimitedError, bool) {
	var limited *RateLimitedError
	if errors.As(err, &limited) {
		return limited, true
	}
	return nil, false
}
