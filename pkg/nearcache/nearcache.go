// Package nearcache implements the single-flight loading near-cache of
// spec §3.6/§4.3: a local, TTL-bounded cache consulted before the read
// orchestrator's underlying load, with at-most-one concurrent load per
// key.
package nearcache

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// notFound is stored explicitly so a negative lookup does not
// re-trigger a load within the entry's TTL (spec §3.6).
type notFound struct{}

// NotFound is the sentinel a Loader returns to record a confirmed miss.
var NotFound = notFound{}

type entry struct {
	value     any
	expiresAt time.Time
}

// Cache is a TTL-bounded, single-flight loading cache keyed by the
// wire form of a NormalisedKey (its DerivedKey(false)). It is
// orthogonal to zone fallback: whatever the read orchestrator does to
// satisfy a load is invisible to Cache.
type Cache struct {
	ttl   time.Duration
	group singleflight.Group

	mu      sync.Mutex
	entries map[string]entry
}

// New constructs a Cache whose entries live for ttl before they are
// eligible for reload.
func New(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]entry),
	}
}

// Loader loads the value for key on a cache miss. Returning
// nearcache.NotFound records a confirmed miss; returning any other
// error is not cached and is returned to every waiting caller.
type Loader func() (any, error)

// Get returns the cached value for key, loading it via load on a miss.
// Concurrent Get calls for the same key share a single load (singleflight).
// The second return value is false when the loaded/cached value is the
// NotFound sentinel or when load returns an error.
func (c *Cache) Get(key string, load Loader) (any, bool, error) {
	if v, ok := c.lookup(key); ok {
		if v == NotFound {
			return nil, false, nil
		}
		return v, true, nil
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		v, loadErr := load()
		if loadErr != nil {
			return nil, loadErr
		}
		c.store(key, v)
		return v, nil
	})
	if err != nil {
		return nil, false, err
	}
	if result == NotFound {
		return nil, false, nil
	}
	return result, true, nil
}

// Peek returns the cached value for key without triggering a load.
// The second return value is false both for an absent/expired entry
// and for a cached NotFound sentinel.
func (c *Cache) Peek(key string) (any, bool) {
	v, ok := c.lookup(key)
	if !ok || v == NotFound {
		return nil, false
	}
	return v, true
}

// Invalidate removes key from the cache, if present.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *Cache) lookup(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *Cache) store(key string, value any) {
	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}
