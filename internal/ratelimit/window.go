package ratelimit

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// WindowInfo is a read-only snapshot of one identifier's current window.
type WindowInfo struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// KeyedWindowCounter is an in-process fixed-window request counter keyed by
// an arbitrary identifier. Windows live in a bounded LRU so memory is capped
// by the number of distinct recently-active identifiers; a janitor sweeps
// expired windows between requests.
//
// Fixed windows admit up to 2x the budget across a window edge. That burst
// is a known approximation, accepted for the cheap bookkeeping.
type KeyedWindowCounter struct {
	mu      sync.Mutex
	windows *lru.Cache[string, *countWindow]
	limit   int
	window  time.Duration
	now     func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

type countWindow struct {
	count   int
	resetAt time.Time
}

// NewKeyedWindowCounter creates a counter admitting limit requests per window
// per identifier, remembering at most maxIdentifiers windows. A nil now uses
// the wall clock.
func NewKeyedWindowCounter(limit int, window time.Duration, maxIdentifiers int, now func() time.Time) *KeyedWindowCounter {
	if now == nil {
		now = time.Now
	}
	if maxIdentifiers <= 0 {
		maxIdentifiers = 10000
	}

	// Only fails for a non-positive size, which is guarded above.
	windows, _ := lru.New[string, *countWindow](maxIdentifiers)

	c := &KeyedWindowCounter{
		windows: windows,
		limit:   limit,
		window:  window,
		now:     now,
		stop:    make(chan struct{}),
	}

	go c.sweep()

	return c
}

// TryConsume admits and counts one request for identifier, or denies without
// counting once the window budget is spent.
func (c *KeyedWindowCounter) TryConsume(identifier string) bool {
	ok, _, _ := c.ConsumeN(identifier, 1, c.limit)
	return ok
}

// ConsumeN consumes cost points against an explicit budget. The adaptive and
// cost-weighted checks use this to shrink or stretch the effective budget
// without touching the window bookkeeping.
func (c *KeyedWindowCounter) ConsumeN(identifier string, cost, budget int) (allowed bool, remaining int, resetAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	w, ok := c.windows.Get(identifier)
	if !ok || now.After(w.resetAt) {
		w = &countWindow{resetAt: now.Add(c.window)}
		c.windows.Add(identifier, w)
	}

	if w.count+cost > budget {
		remaining = budget - w.count
		if remaining < 0 {
			remaining = 0
		}
		return false, remaining, w.resetAt
	}

	w.count += cost
	return true, budget - w.count, w.resetAt
}

// Info reports the identifier's current window without consuming anything.
func (c *KeyedWindowCounter) Info(identifier string) WindowInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	w, ok := c.windows.Peek(identifier)
	if !ok || now.After(w.resetAt) {
		return WindowInfo{Limit: c.limit, Remaining: c.limit, ResetAt: now.Add(c.window)}
	}

	remaining := c.limit - w.count
	if remaining < 0 {
		remaining = 0
	}
	return WindowInfo{Limit: c.limit, Remaining: remaining, ResetAt: w.resetAt}
}

// Reset force-clears one identifier's window.
func (c *KeyedWindowCounter) Reset(identifier string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.windows.Remove(identifier)
}

// Close stops the janitor.
func (c *KeyedWindowCounter) Close() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *KeyedWindowCounter) sweep() {
	interval := c.window
	if interval > time.Minute {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *KeyedWindowCounter) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for _, key := range c.windows.Keys() {
		if w, ok := c.windows.Peek(key); ok && now.After(w.resetAt) {
			c.windows.Remove(key)
		}
	}
}
