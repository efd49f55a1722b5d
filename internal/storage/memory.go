package storage

import (
	"context"
	"errors"
	"path"
	"strconv"
	"sync"
	"time"
)

// ErrUnavailable simulates a lost connection to the shared store.
var ErrUnavailable = errors.New("storage: store unavailable")

// MemoryStore implements Store in process memory. Used by tests (with an
// injectable clock and a fault switch) and as a last-resort store for local
// development without redis. Counts held here are per-instance only.
type MemoryStore struct {
	mu          sync.Mutex
	entries     map[string]memoryEntry
	now         func() time.Time
	unavailable bool
}

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     now,
	}
}

// SetUnavailable makes every subsequent call fail with ErrUnavailable,
// simulating a redis outage.
func (m *MemoryStore) SetUnavailable(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = down
}

func (m *MemoryStore) expired(e memoryEntry) bool {
	return !e.expiresAt.IsZero() && m.now().After(e.expiresAt)
}

// get returns a live entry, lazily dropping it if expired. Callers hold mu.
func (m *MemoryStore) get(key string) (memoryEntry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if m.expired(e) {
		delete(m.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (m *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return "", ErrUnavailable
	}

	e, ok := m.get(key)
	if !ok {
		return "", ErrNotFound
	}
	return e.value, nil
}

func (m *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return ErrUnavailable
	}

	m.entries[key] = m.entry(value, ttl)
	return nil
}

func (m *MemoryStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return false, ErrUnavailable
	}

	if _, ok := m.get(key); ok {
		return false, nil
	}
	m.entries[key] = m.entry(value, ttl)
	return true, nil
}

func (m *MemoryStore) Del(ctx context.Context, keys ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return 0, ErrUnavailable
	}

	var removed int64
	for _, key := range keys {
		if _, ok := m.get(key); ok {
			delete(m.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryStore) CompareAndDel(ctx context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return false, ErrUnavailable
	}

	e, ok := m.get(key)
	if !ok || e.value != value {
		return false, nil
	}
	delete(m.entries, key)
	return true, nil
}

func (m *MemoryStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return nil, ErrUnavailable
	}

	var keys []string
	for key, e := range m.entries {
		if m.expired(e) {
			delete(m.entries, key)
			continue
		}
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (m *MemoryStore) Incr(ctx context.Context, key string) (int64, error) {
	return m.IncrBy(ctx, key, 1)
}

func (m *MemoryStore) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return 0, ErrUnavailable
	}

	var count int64
	e, ok := m.get(key)
	if ok {
		parsed, err := strconv.ParseInt(e.value, 10, 64)
		if err != nil {
			return 0, errors.New("storage: value is not an integer")
		}
		count = parsed
	}

	count += n
	// Incrementing keeps the existing expiry, same as redis INCR.
	m.entries[key] = memoryEntry{value: strconv.FormatInt(count, 10), expiresAt: e.expiresAt}
	return count, nil
}

func (m *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return ErrUnavailable
	}

	e, ok := m.get(key)
	if !ok {
		return nil
	}
	e.expiresAt = m.now().Add(ttl)
	m.entries[key] = e
	return nil
}

func (m *MemoryStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return 0, ErrUnavailable
	}

	e, ok := m.get(key)
	if !ok || e.expiresAt.IsZero() {
		return 0, ErrNotFound
	}
	return e.expiresAt.Sub(m.now()), nil
}

func (m *MemoryStore) MGet(ctx context.Context, keys ...string) ([]*string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return nil, ErrUnavailable
	}

	out := make([]*string, len(keys))
	for i, key := range keys {
		if e, ok := m.get(key); ok {
			val := e.value
			out[i] = &val
		}
	}
	return out, nil
}

func (m *MemoryStore) MSet(ctx context.Context, entries map[string]string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return ErrUnavailable
	}

	for key, value := range entries {
		m.entries[key] = m.entry(value, ttl)
	}
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return ErrUnavailable
	}
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) entry(value string, ttl time.Duration) memoryEntry {
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	return e
}
