// Package cache provides the shared TTL cache used by the token
// resolver and wallet validator: ristretto storage with a
// single-flight loader so concurrent misses trigger one lookup.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
)

// Loader fetches the value for a key on cache miss.
type Loader func(ctx context.Context) (any, error)

// TTLCache is a read-mostly cache with per-entry TTL and stampede
// protection.
type TTLCache struct {
	c   *ristretto.Cache
	ttl time.Duration

	mu     sync.Mutex
	flight map[string]*call
}

type call struct {
	done chan struct{}
	val  any
	err  error
}

// New creates a TTLCache holding up to maxCost unit-cost entries.
func New(maxCost int64, ttl time.Duration) (*TTLCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &TTLCache{c: c, ttl: ttl, flight: make(map[string]*call)}, nil
}

// Get returns the cached value for key.
func (t *TTLCache) Get(key string) (any, bool) {
	return t.c.Get(key)
}

// Set stores val under key with the cache's default TTL.
func (t *TTLCache) Set(key string, val any) {
	t.c.SetWithTTL(key, val, 1, t.ttl)
}

// SetTTL stores val under key with an explicit TTL. Used for negative
// lookups that expire faster than positive ones.
func (t *TTLCache) SetTTL(key string, val any, ttl time.Duration) {
	t.c.SetWithTTL(key, val, 1, ttl)
}

// Del drops the entry for key.
func (t *TTLCache) Del(key string) {
	t.c.Del(key)
}

// GetOrLoad returns the cached value for key, or runs loader exactly
// once across concurrent callers and caches its result. Errors are not
// cached; every caller of a failed flight sees the error.
func (t *TTLCache) GetOrLoad(ctx context.Context, key string, loader Loader) (any, error) {
	if v, ok := t.c.Get(key); ok {
		return v, nil
	}

	t.mu.Lock()
	if cl, ok := t.flight[key]; ok {
		t.mu.Unlock()
		select {
		case <-cl.done:
			return cl.val, cl.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	cl := &call{done: make(chan struct{})}
	t.flight[key] = cl
	t.mu.Unlock()

	cl.val, cl.err = loader(ctx)
	if cl.err == nil {
		t.Set(key, cl.val)
	}

	t.mu.Lock()
	delete(t.flight, key)
	t.mu.Unlock()
	close(cl.done)

	return cl.val, cl.err
}

// Wait blocks until pending writes are visible. Ristretto applies sets
// asynchronously; tests call this before asserting on Get.
func (t *TTLCache) Wait() {
	t.c.Wait()
}
