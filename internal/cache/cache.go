// Package cache provides a small TTL cache for upstream lookups. Entries are
// replaced whole on refresh, failed fetches leave the cache untouched, and
// concurrent misses on one key share a single fetch.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Recorder receives hit and miss events. *telemetry.Metrics implements it.
type Recorder interface {
	RecordCacheLookup(cache string, hit bool)
}

// Config holds cache settings.
type Config struct {
	// Name identifies the cache in metrics and stats.
	Name string

	// TTL is how long an entry is served after it was fetched.
	TTL time.Duration

	// CleanupInterval is how often expired entries are swept on write.
	// Default: 10 minutes
	CleanupInterval time.Duration

	// Recorder is optional.
	Recorder Recorder

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Cache is a keyed TTL cache safe for concurrent use.
type Cache[K comparable, V any] struct {
	name            string
	ttl             time.Duration
	cleanupInterval time.Duration
	recorder        Recorder
	now             func() time.Time

	mu          sync.RWMutex
	entries     map[K]entry[V]
	lastCleanup time.Time

	group singleflight.Group
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Stats is a snapshot of cache occupancy.
type Stats struct {
	Name    string        `json:"name"`
	Entries int           `json:"entries"`
	TTL     time.Duration `json:"ttl"`
}

// New creates a cache.
func New[K comparable, V any](cfg Config) *Cache[K, V] {
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = 10 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Cache[K, V]{
		name:            cfg.Name,
		ttl:             cfg.TTL,
		cleanupInterval: cfg.CleanupInterval,
		recorder:        cfg.Recorder,
		now:             cfg.Now,
		entries:         make(map[K]entry[V]),
		lastCleanup:     cfg.Now(),
	}
}

// Get returns the cached value for key, calling fetch on a miss or after expiry.
// Only successful fetches are stored. Waiting callers give up when ctx is done;
// the shared fetch itself runs on a context detached from any single caller.
func (c *Cache[K, V]) Get(ctx context.Context, key K, fetch func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.Peek(key); ok {
		c.record(true)
		return v, nil
	}
	c.record(false)

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(fmt.Sprintf("%v", key), func() (any, error) {
		// Another flight may have filled the entry while this one queued.
		if v, ok := c.Peek(key); ok {
			return v, nil
		}
		v, err := fetch(fetchCtx)
		if err != nil {
			return v, err
		}
		c.store(key, v)
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Peek returns a live entry without fetching.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Invalidate drops one entry.
func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear drops every entry.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]entry[V])
}

// Stats returns the current occupancy.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Name: c.name, Entries: len(c.entries), TTL: c.ttl}
}

func (c *Cache[K, V]) store(key K, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[key] = entry[V]{value: v, expiresAt: now.Add(c.ttl)}

	if now.Sub(c.lastCleanup) < c.cleanupInterval {
		return
	}
	c.lastCleanup = now
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}

func (c *Cache[K, V]) record(hit bool) {
	if c.recorder != nil {
		c.recorder.RecordCacheLookup(c.name, hit)
	}
}
