// Package cache stores small string lists with a TTL, in redis when one is
// configured and in process memory otherwise.
package cache

import (
	"context"
	"sync"
	"time"
)

// StringListCache caches string lists by key.
type StringListCache interface {
	// Get returns the cached list and whether it was found.
	Get(ctx context.Context, key string) ([]string, bool, error)
	Set(ctx context.Context, key string, vals []string, ttl time.Duration) error
	Ping(ctx context.Context) error
}

type memoryEntry struct {
	vals    []string
	expires time.Time
}

// MemoryCache is an in-process StringListCache.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]memoryEntry
	now   func() time.Time
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]string, bool, error) {
	m.mu.RLock()
	e, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		m.mu.Lock()
		delete(m.items, key)
		m.mu.Unlock()
		return nil, false, nil
	}
	return append([]string(nil), e.vals...), true, nil
}

// Set stores vals. A ttl <= 0 never expires.
func (m *MemoryCache) Set(_ context.Context, key string, vals []string, ttl time.Duration) error {
	e := memoryEntry{vals: append([]string(nil), vals...)}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.items[key] = e
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Ping(context.Context) error { return nil }

// Observed wraps a StringListCache and reports each successful Get as a hit
// or miss.
type Observed struct {
	StringListCache
	observe func(hit bool)
}

// WithObserver returns c wrapped so observe runs after every Get that does
// not fail.
func WithObserver(c StringListCache, observe func(hit bool)) *Observed {
	return &Observed{StringListCache: c, observe: observe}
}

func (o *Observed) Get(ctx context.Context, key string) ([]string, bool, error) {
	vals, ok, err := o.StringListCache.Get(ctx, key)
	if err == nil && o.observe != nil {
		o.observe(ok)
	}
	return vals, ok, err
}
