package cache

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/cuisinezen/governor/internal/storage"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{t: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testPayload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestDistributedCache_RoundTrip(t *testing.T) {
	store := storage.NewMemoryStore(nil)
	c := NewDistributedCache(store, time.Minute)
	ctx := context.Background()

	want := testPayload{Name: "tomates", Count: 24}
	if !c.Set(ctx, "products:1", want, 0) {
		t.Fatal("Set failed")
	}

	var got testPayload
	if !c.Get(ctx, "products:1", &got) {
		t.Fatal("Get missed a freshly written key")
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestDistributedCache_MissOnAbsentKey(t *testing.T) {
	c := NewDistributedCache(storage.NewMemoryStore(nil), time.Minute)

	var got testPayload
	if c.Get(context.Background(), "nope", &got) {
		t.Error("Get reported a hit for an absent key")
	}
}

func TestDistributedCache_TTLExpiry(t *testing.T) {
	clock := newFakeClock(time.Unix(1_700_000_100, 0))
	store := storage.NewMemoryStore(clock.Now)
	c := NewDistributedCache(store, time.Minute)
	ctx := context.Background()

	c.Set(ctx, "products:1", testPayload{Name: "crème"}, 30*time.Second)

	var got testPayload
	if !c.Get(ctx, "products:1", &got) {
		t.Fatal("entry should be live before its TTL")
	}

	clock.Advance(31 * time.Second)

	if c.Get(ctx, "products:1", &got) {
		t.Error("entry should have expired")
	}
}

func TestDistributedCache_DefaultTTL(t *testing.T) {
	clock := newFakeClock(time.Unix(1_700_000_100, 0))
	store := storage.NewMemoryStore(clock.Now)
	c := NewDistributedCache(store, time.Minute)
	ctx := context.Background()

	// ttl <= 0 falls back to the configured default.
	c.Set(ctx, "products:1", testPayload{Name: "saumon"}, 0)

	clock.Advance(59 * time.Second)
	var got testPayload
	if !c.Get(ctx, "products:1", &got) {
		t.Fatal("entry should still be live under the default TTL")
	}

	clock.Advance(2 * time.Second)
	if c.Get(ctx, "products:1", &got) {
		t.Error("entry should have expired at the default TTL")
	}
}

func TestDistributedCache_Delete(t *testing.T) {
	c := NewDistributedCache(storage.NewMemoryStore(nil), time.Minute)
	ctx := context.Background()

	c.Set(ctx, "products:1", testPayload{}, 0)

	if !c.Delete(ctx, "products:1") {
		t.Error("Delete should report removing an existing key")
	}
	if c.Delete(ctx, "products:1") {
		t.Error("Delete should report false for an absent key")
	}

	var got testPayload
	if c.Get(ctx, "products:1", &got) {
		t.Error("deleted key should miss")
	}
}

func TestDistributedCache_InvalidatePattern(t *testing.T) {
	c := NewDistributedCache(storage.NewMemoryStore(nil), time.Minute)
	ctx := context.Background()

	c.Set(ctx, "products:list", testPayload{}, 0)
	c.Set(ctx, "products:search:tomate", testPayload{}, 0)
	c.Set(ctx, "users:alice", testPayload{}, 0)

	if removed := c.InvalidatePattern(ctx, "products:*"); removed != 2 {
		t.Errorf("removed %d entries, want 2", removed)
	}

	var got testPayload
	if c.Get(ctx, "products:list", &got) {
		t.Error("matched entry survived invalidation")
	}
	if !c.Get(ctx, "users:alice", &got) {
		t.Error("unrelated entry was invalidated")
	}
}

func TestDistributedCache_StoreDownDegradesToMiss(t *testing.T) {
	store := storage.NewMemoryStore(nil)
	c := NewDistributedCache(store, time.Minute)
	ctx := context.Background()

	c.Set(ctx, "products:1", testPayload{Name: "live"}, 0)
	store.SetUnavailable(true)

	var got testPayload
	if c.Get(ctx, "products:1", &got) {
		t.Error("Get against a down store should miss, not fail")
	}
	if c.Set(ctx, "products:2", testPayload{}, 0) {
		t.Error("Set against a down store should report failure")
	}
	if c.InvalidatePattern(ctx, "products:*") != 0 {
		t.Error("invalidation against a down store should remove nothing")
	}
}

func TestDistributedCache_MGetMSet(t *testing.T) {
	c := NewDistributedCache(storage.NewMemoryStore(nil), time.Minute)
	ctx := context.Background()

	ok := c.MSet(ctx, map[string]any{
		"products:1": testPayload{Name: "a"},
		"products:2": testPayload{Name: "b"},
	}, 0)
	if !ok {
		t.Fatal("MSet failed")
	}

	got := c.MGet(ctx, "products:1", "products:2", "products:3")
	if len(got) != 2 {
		t.Fatalf("MGet returned %d entries, want 2", len(got))
	}
	if _, ok := got["products:3"]; ok {
		t.Error("absent key should be missing from the MGet result")
	}

	var p testPayload
	if err := json.Unmarshal(got["products:1"], &p); err != nil || p.Name != "a" {
		t.Errorf("products:1 decoded to %+v (err %v)", p, err)
	}
}
