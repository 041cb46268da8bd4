package cache

import (
	"context"
	"sync"
	"time"
)

// SessionStore caches serialized packing-session snapshots by box
// barcode value. It is strictly a cache: callers must tolerate misses
// and rebuild from the barcode registry.
type SessionStore interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Put(ctx context.Context, key string, snapshot []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
}

type memoryEntry struct {
	snapshot  []byte
	expiresAt time.Time
}

// MemorySessionStore keeps snapshots in process memory.
type MemorySessionStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{entries: make(map[string]memoryEntry)}
}

func (c *MemorySessionStore) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		c.Delete(context.Background(), key)
		return nil, false
	}
	return e.snapshot, true
}

func (c *MemorySessionStore) Put(_ context.Context, key string, snapshot []byte, ttl time.Duration) {
	e := memoryEntry{snapshot: snapshot}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

func (c *MemorySessionStore) Delete(_ context.Context, key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}
