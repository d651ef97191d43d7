// Package cache implements the unified weighted LRU described in spec
// §5: a single cache type shared by the chunk manager (C5), sparse
// index (C6), and metadata index manager (C7), each storing different
// value types under a shared byte-weight budget. Eviction is weighted
// LRU, not count-based: adding an entry may evict several lighter ones,
// or none, depending on the weight budget.
package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// unboundedCount is the golang-lru count capacity backing a Cache. It is
// set far above any realistic entry count so that eviction is driven
// entirely by Cache's own weight accounting rather than by golang-lru's
// native count-based policy.
const unboundedCount = 1 << 24

// Validator reports whether a cached value is still servable from cache.
// Per spec §5, an entry whose vector is empty or whose id is missing is
// invalid: it must be treated as a miss and deleted, not served stale.
// A nil Validator accepts every value.
type Validator[V any] func(V) bool

type entry[V any] struct {
	value  V
	weight int64
}

// Cache is a weighted-LRU cache keyed by K holding values of type V.
type Cache[K comparable, V any] struct {
	mu        sync.Mutex
	inner     *lru.Cache[K, *entry[V]]
	maxWeight int64
	curWeight int64
	validate  Validator[V]
}

// New creates a Cache with the given total weight budget. validate may
// be nil, in which case every cached value is considered valid.
func New[K comparable, V any](maxWeight int64, validate Validator[V]) *Cache[K, V] {
	c := &Cache[K, V]{maxWeight: maxWeight, validate: validate}
	inner, err := lru.NewWithEvict[K, *entry[V]](unboundedCount, c.onEvict)
	if err != nil {
		// Only returned by golang-lru for a non-positive size, which
		// unboundedCount never is.
		panic(err)
	}
	c.inner = inner
	return c
}

func (c *Cache[K, V]) onEvict(_ K, e *entry[V]) {
	c.curWeight -= e.weight
}

// Get returns the cached value for key. A value failing Validate is
// evicted and reported as a miss.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.inner.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	if c.validate != nil && !c.validate(e.value) {
		c.inner.Remove(key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Add inserts value under key with the given weight, evicting the
// least-recently-used entries (oldest first) until the cache fits
// within its weight budget. A single entry heavier than the entire
// budget is still inserted — callers choosing weights sanely avoid
// this, but it is not an error condition.
func (c *Cache[K, V]) Add(key K, value V, weight int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Remove fires onEvict, which subtracts the old entry's weight.
	c.inner.Remove(key)

	c.inner.Add(key, &entry[V]{value: value, weight: weight})
	c.curWeight += weight

	for c.curWeight > c.maxWeight {
		_, _, evicted := c.inner.RemoveOldest()
		if !evicted {
			break
		}
	}
}

// Remove deletes key from the cache, if present.
func (c *Cache[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Remove(key)
}

// Len reports the number of entries currently cached.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Len()
}

// Weight reports the total weight of entries currently cached.
func (c *Cache[K, V]) Weight() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.curWeight
}

// Purge empties the cache.
func (c *Cache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Purge()
	c.curWeight = 0
}
