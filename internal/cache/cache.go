package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/cuisinezen/governor/internal/storage"
)

// DistributedCache is a JSON-serializing cache over the shared store. It is
// purely an optimization layer: a store failure is reported as a miss (Get)
// or an unsuccessful best-effort write (Set/Delete), never as a request
// failure.
type DistributedCache struct {
	store      storage.Store
	defaultTTL time.Duration
}

func NewDistributedCache(store storage.Store, defaultTTL time.Duration) *DistributedCache {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &DistributedCache{
		store:      store,
		defaultTTL: defaultTTL,
	}
}

// Get unmarshals the cached value for key into dest. Returns false on a
// miss, an unreachable store, or a corrupt entry.
func (c *DistributedCache) Get(ctx context.Context, key string, dest any) bool {
	val, err := c.store.Get(ctx, c.cacheKey(key))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("cache: get %s failed, treating as miss: %v", key, err)
		}
		return false
	}

	if err := json.Unmarshal([]byte(val), dest); err != nil {
		log.Printf("cache: corrupt entry for %s, treating as miss: %v", key, err)
		return false
	}
	return true
}

// Set stores value under key for ttl (the default TTL when ttl <= 0).
// Returns whether the write succeeded.
func (c *DistributedCache) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	data, err := json.Marshal(value)
	if err != nil {
		log.Printf("cache: cannot serialize value for %s: %v", key, err)
		return false
	}

	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	if err := c.store.Set(ctx, c.cacheKey(key), string(data), ttl); err != nil {
		log.Printf("cache: set %s failed: %v", key, err)
		return false
	}
	return true
}

// Delete removes key. Returns whether an entry was actually removed.
func (c *DistributedCache) Delete(ctx context.Context, key string) bool {
	removed, err := c.store.Del(ctx, c.cacheKey(key))
	if err != nil {
		log.Printf("cache: delete %s failed: %v", key, err)
		return false
	}
	return removed > 0
}

// InvalidatePattern deletes every key matching the glob pattern and returns
// how many were removed. O(matching keys) - not for hot paths.
func (c *DistributedCache) InvalidatePattern(ctx context.Context, pattern string) int {
	keys, err := c.store.Keys(ctx, c.cacheKey(pattern))
	if err != nil {
		log.Printf("cache: pattern scan %s failed: %v", pattern, err)
		return 0
	}
	if len(keys) == 0 {
		return 0
	}

	removed, err := c.store.Del(ctx, keys...)
	if err != nil {
		log.Printf("cache: pattern delete %s failed: %v", pattern, err)
		return 0
	}
	return int(removed)
}

// MGet fetches many keys at once. Absent or unreadable keys are simply
// missing from the result.
func (c *DistributedCache) MGet(ctx context.Context, keys ...string) map[string]json.RawMessage {
	if len(keys) == 0 {
		return nil
	}

	storeKeys := make([]string, len(keys))
	for i, key := range keys {
		storeKeys[i] = c.cacheKey(key)
	}

	vals, err := c.store.MGet(ctx, storeKeys...)
	if err != nil {
		log.Printf("cache: mget failed, treating all as misses: %v", err)
		return nil
	}

	out := make(map[string]json.RawMessage, len(keys))
	for i, val := range vals {
		if val != nil {
			out[keys[i]] = json.RawMessage(*val)
		}
	}
	return out
}

// MSet stores many entries in one batched write, all with the same ttl.
func (c *DistributedCache) MSet(ctx context.Context, entries map[string]any, ttl time.Duration) bool {
	if len(entries) == 0 {
		return true
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	serialized := make(map[string]string, len(entries))
	for key, value := range entries {
		data, err := json.Marshal(value)
		if err != nil {
			log.Printf("cache: cannot serialize value for %s: %v", key, err)
			return false
		}
		serialized[c.cacheKey(key)] = string(data)
	}

	if err := c.store.MSet(ctx, serialized, ttl); err != nil {
		log.Printf("cache: mset failed: %v", err)
		return false
	}
	return true
}

func (c *DistributedCache) cacheKey(key string) string {
	return "cache:" + key
}
