package cache

import (
	"context"
	"sync"
	"time"
)

// Logical cache keys.
const (
	KeyWorkers          = "WORKERS"
	keyWorkersByService = "WORKERS_service_"
	keyAddresses        = "ADDRESSES_"
)

func WorkersByServiceKey(serviceKey string) string { return keyWorkersByService + serviceKey }

func AddressesKey(userID string) string { return keyAddresses + userID }

// Cache is a two-tier key/value store. Get serves only unexpired entries and
// evicts expired ones; Stale serves the last value written for a key whatever
// its age. Values are replaced whole on every Set. Invalidate drops both
// tiers; Expire drops only the fresh one so Stale can still answer.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Stale(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
	Expire(ctx context.Context, key string) error
}

type entry struct {
	v         []byte
	expiresAt time.Time
}

// Memory is an in-process Cache.
type Memory struct {
	mu       sync.RWMutex
	fresh    map[string]entry
	lastGood map[string][]byte
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{fresh: make(map[string]entry), lastGood: make(map[string][]byte), now: time.Now}
}

// WithClock replaces the time source; tests use it to step past TTLs.
func (c *Memory) WithClock(now func() time.Time) *Memory {
	c.now = now
	return c
}

func (c *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	e, ok := c.fresh[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		// a Set may have landed since the read lock was released
		if cur, ok := c.fresh[key]; ok && !c.now().Before(cur.expiresAt) {
			delete(c.fresh, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.v, true
}

func (c *Memory) Stale(_ context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.lastGood[key]
	return v, ok
}

func (c *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	v := append([]byte(nil), value...)
	c.mu.Lock()
	c.fresh[key] = entry{v: v, expiresAt: c.now().Add(ttl)}
	c.lastGood[key] = v
	c.mu.Unlock()
	return nil
}

func (c *Memory) Invalidate(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.fresh, key)
	delete(c.lastGood, key)
	c.mu.Unlock()
	return nil
}

func (c *Memory) Expire(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.fresh, key)
	c.mu.Unlock()
	return nil
}
