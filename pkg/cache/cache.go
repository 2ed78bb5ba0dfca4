// Package cache provides a read-through in-process cache with
// stale-while-revalidate semantics, used for hot lookups on the query
// surface such as latest attention scores.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Options controls entry lifetime and capacity.
type Options struct {
	TTL                  time.Duration
	StaleWhileRevalidate time.Duration
	NegativeTTL          time.Duration
	MaxEntries           int
}

// MetricsHooks lets the owner observe cache behavior without this package
// depending on a metrics library.
type MetricsHooks struct {
	OnHit   func(labels map[string]string)
	OnMiss  func(labels map[string]string)
	OnStale func(labels map[string]string)
	OnStore func(labels map[string]string)
	OnError func(labels map[string]string)
}

type entry struct {
	value     interface{}
	err       error
	expiresAt time.Time
	staleAt   time.Time
	negative  bool
	lastUsed  time.Time
	seq       uint64
}

// Cache is a bounded in-memory cache. Loads for the same key are collapsed
// through singleflight so a cold or expired key triggers one loader call.
type Cache struct {
	mu      sync.RWMutex
	items   map[string]*entry
	nextSeq uint64
	opts    Options
	metrics MetricsHooks
	sf      singleflight.Group
}

// SnapshotEntry is a point-in-time view of one cache entry, for inspection.
type SnapshotEntry struct {
	Key       string
	Value     interface{}
	Err       error
	ExpiresAt time.Time
	StaleAt   time.Time
	LastUsed  time.Time
	Negative  bool
}

func New(opts Options, hooks MetricsHooks) *Cache {
	return &Cache{
		items:   make(map[string]*entry),
		opts:    opts,
		metrics: hooks,
	}
}

// Loader fetches the value for a key on miss. ok=false means the value does
// not exist; err is then cached only when NegativeTTL is set.
type Loader func(ctx context.Context, key string) (interface{}, bool, error)

type loaded struct {
	value interface{}
	ok    bool
	err   error
}

// Get returns the cached value for key, loading it on miss. Within the
// stale window the previous value is served and a single background refresh
// is kicked off.
func (c *Cache) Get(ctx context.Context, key string, loader Loader) (interface{}, bool, error) {
	now := time.Now()

	c.mu.RLock()
	e, found := c.items[key]
	if found && now.Before(e.expiresAt) {
		e.lastUsed = now
		negative, value, err := e.negative, e.value, e.err
		c.mu.RUnlock()
		c.emit(c.metrics.OnHit, key)
		if negative {
			return nil, false, err
		}
		return value, true, nil
	}
	if found && now.Before(e.staleAt) {
		negative, value, err := e.negative, e.value, e.err
		c.mu.RUnlock()
		c.emit(c.metrics.OnStale, key)
		go func() {
			_, _, _ = c.sf.Do("refresh:"+key, func() (interface{}, error) {
				v, ok, loadErr := loader(ctx, key)
				c.store(key, v, ok, loadErr)
				return nil, nil
			})
		}()
		if negative {
			return nil, false, err
		}
		return value, true, nil
	}
	c.mu.RUnlock()

	if found {
		// Past the stale window: the entry is dead, drop it before reloading.
		c.Delete(key)
	}

	c.emit(c.metrics.OnMiss, key)
	result, _, _ := c.sf.Do(key, func() (interface{}, error) {
		value, ok, err := loader(ctx, key)
		c.store(key, value, ok, err)
		return loaded{value: value, ok: ok, err: err}, nil
	})
	res := result.(loaded)
	if !res.ok {
		return nil, false, res.err
	}
	return res.value, true, nil
}

func (c *Cache) store(key string, value interface{}, ok bool, err error) {
	now := time.Now()
	e := &entry{lastUsed: now}
	switch {
	case ok:
		e.value = value
		e.expiresAt = now.Add(c.opts.TTL)
		e.staleAt = e.expiresAt.Add(c.opts.StaleWhileRevalidate)
	case c.opts.NegativeTTL > 0:
		e.err = err
		e.negative = true
		e.expiresAt = now.Add(c.opts.NegativeTTL)
		e.staleAt = e.expiresAt
	default:
		c.emit(c.metrics.OnError, key)
		return
	}

	c.mu.Lock()
	c.insertLocked(key, e)
	c.mu.Unlock()

	if c.metrics.OnStore != nil {
		c.metrics.OnStore(map[string]string{"key": key, "ok": boolStr(ok)})
	}
}

// Set inserts a value directly, bypassing the loader path.
func (c *Cache) Set(key string, value interface{}, ttl time.Duration) {
	now := time.Now()
	e := &entry{
		value:     value,
		expiresAt: now.Add(ttl),
		staleAt:   now.Add(ttl).Add(c.opts.StaleWhileRevalidate),
		lastUsed:  now,
	}
	c.mu.Lock()
	c.insertLocked(key, e)
	c.mu.Unlock()
}

// insertLocked stores the entry and evicts the oldest insertions when the
// cache is over capacity. Caller holds c.mu.
func (c *Cache) insertLocked(key string, e *entry) {
	if prev, exists := c.items[key]; exists {
		e.seq = prev.seq
	} else {
		c.nextSeq++
		e.seq = c.nextSeq
	}
	c.items[key] = e

	if c.opts.MaxEntries <= 0 {
		return
	}
	for len(c.items) > c.opts.MaxEntries {
		victim := ""
		var lowest uint64
		for k, item := range c.items {
			if victim == "" || item.seq < lowest {
				victim, lowest = k, item.seq
			}
		}
		delete(c.items, victim)
	}
}

// Peek returns a cached value without triggering a load. Stale entries count.
func (c *Cache) Peek(key string) (interface{}, bool) {
	now := time.Now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.items[key]
	if !ok || e.negative || now.After(e.staleAt) {
		return nil, false
	}
	return e.value, true
}

// Snapshot copies the current entries for inspection.
func (c *Cache) Snapshot() []SnapshotEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]SnapshotEntry, 0, len(c.items))
	for k, e := range c.items {
		out = append(out, SnapshotEntry{
			Key:       k,
			Value:     e.value,
			Err:       e.err,
			ExpiresAt: e.expiresAt,
			StaleAt:   e.staleAt,
			LastUsed:  e.lastUsed,
			Negative:  e.negative,
		})
	}
	return out
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

func (c *Cache) emit(hook func(labels map[string]string), key string) {
	if hook != nil {
		hook(map[string]string{"key": key})
	}
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
