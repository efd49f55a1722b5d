package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuisinezen/governor/internal/ratelimit"
	"github.com/cuisinezen/governor/internal/storage"
	"github.com/gin-gonic/gin"
)

func newLimitedRouter(t *testing.T, points int) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	policies := ratelimit.DefaultPolicies()
	policies[ratelimit.ClassAPI] = ratelimit.Policy{Points: points, Window: time.Minute}

	facade, err := ratelimit.NewFacade(storage.NewMemoryStore(nil), ratelimit.FacadeConfig{
		Policies: policies,
	})
	if err != nil {
		t.Fatalf("NewFacade: %v", err)
	}
	t.Cleanup(facade.Close)

	router := gin.New()
	router.GET("/ping", RateLimit(facade, ratelimit.ClassAPI), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	return router
}

func TestRateLimitMiddleware_AllowsWithinBudget(t *testing.T) {
	router := newLimitedRouter(t, 3)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i+1, w.Code)
		}
		if w.Header().Get("X-RateLimit-Limit") != "3" {
			t.Errorf("X-RateLimit-Limit %q, want 3", w.Header().Get("X-RateLimit-Limit"))
		}
	}
}

func TestRateLimitMiddleware_RejectsPastBudget(t *testing.T) {
	router := newLimitedRouter(t, 2)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("429 response missing Retry-After")
	}
	if w.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("X-RateLimit-Remaining %q, want 0", w.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimitMiddleware_AuthenticatedUsersCountSeparately(t *testing.T) {
	gin.SetMode(gin.TestMode)

	policies := ratelimit.DefaultPolicies()
	policies[ratelimit.ClassAPI] = ratelimit.Policy{Points: 1, Window: time.Minute}

	facade, err := ratelimit.NewFacade(storage.NewMemoryStore(nil), ratelimit.FacadeConfig{
		Policies: policies,
	})
	if err != nil {
		t.Fatalf("NewFacade: %v", err)
	}
	defer facade.Close()

	router := gin.New()
	router.GET("/ping", func(c *gin.Context) {
		// Stand-in for the JWT middleware.
		c.Set("user_id", c.Query("as"))
	}, RateLimit(facade, ratelimit.ClassAPI), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	do := func(user, ip string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping?as="+user, nil)
		req.RemoteAddr = ip + ":1234"
		router.ServeHTTP(w, req)
		return w.Code
	}

	if code := do("alice", "10.0.0.1"); code != http.StatusOK {
		t.Fatalf("alice first request: %d", code)
	}
	// Same user, fresh address: the user-level budget is already spent.
	if code := do("alice", "10.0.0.2"); code != http.StatusTooManyRequests {
		t.Errorf("alice from a new address: %d, want 429", code)
	}
	// Different user, fresh address: admitted.
	if code := do("bob", "10.0.0.3"); code != http.StatusOK {
		t.Errorf("bob first request: %d, want 200", code)
	}
}
