package middleware

import (
	"fmt"
	"log"
	"net/http"

	"github.com/cuisinezen/governor/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

// RateLimit guards a route group with the facade under one operation class.
// Exhaustion answers 429 with Retry-After; any other limiter failure is
// logged and the request proceeds - an outage inside the limiter must not
// become an outage of the product.
func RateLimit(facade *ratelimit.Facade, class ratelimit.OperationClass) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		userID := UserID(c)
		ip := c.ClientIP()

		err := facade.CheckLimit(ctx, userID, ip, class)

		// Anonymous requests are limited by IP, so report that window.
		var info ratelimit.WindowInfo
		if userID != "" {
			info = facade.GetLimitStatus(ctx, userID, class)
		} else {
			info = facade.GetIPLimitStatus(ctx, ip, class)
		}
		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetAt.Unix()))

		if err == nil {
			c.Next()
			return
		}

		if limited, ok := ratelimit.AsRateLimited(err); ok {
			c.Header("Retry-After", fmt.Sprintf("%d", limited.RetryAfterSeconds()))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"class":       string(limited.Class),
				"retry_after": limited.RetryAfterSeconds(),
			})
			c.Abort()
			return
		}

		log.Printf("rate limit check failed unexpectedly, admitting request: %v", err)
		c.Next()
	}
}

// AdaptiveRateLimit guards a group with a budget that shrinks under load.
// loadFn supplies the caller-observed load signal in [0, 1].
func AdaptiveRateLimit(facade *ratelimit.Facade, loadFn func() float64) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := facade.CheckAdaptiveLimit(c.Request.Context(), UserID(c), c.ClientIP(), loadFn())
		if err == nil {
			c.Next()
			return
		}

		if limited, ok := ratelimit.AsRateLimited(err); ok {
			c.Header("Retry-After", fmt.Sprintf("%d", limited.RetryAfterSeconds()))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": limited.RetryAfterSeconds(),
			})
			c.Abort()
			return
		}

		log.Printf("adaptive limit check failed unexpectedly, admitting request: %v", err)
		c.Next()
	}
}
