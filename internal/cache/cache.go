// Package cache provides the time-bounded result cache shared by all
// source adapters. Keys are opaque strings; values carry their own TTL.
// When the store exceeds its soft bound it evicts the least-recently-used
// tenth of its entries in one sweep.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/fairyhunter13/jobharvest/internal/adapter/observability"
)

// DefaultMaxEntries is the soft bound on the number of live entries.
const DefaultMaxEntries = 10000

type entry struct {
	key        string
	value      any
	insertedAt time.Time
	ttl        time.Duration
}

// Cache is a concurrent TTL+LRU store. Misses may race: two adapters can
// both miss the same key and compute the value twice, which is tolerated.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List // front = most recently used
	maxEntries int

	hits, misses int64

	now func() time.Time
}

// New constructs a Cache with the given soft bound (<=0 means default).
func New(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns the value for key iff it was inserted within its TTL.
// Expired entries are removed lazily on lookup.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		c.misses++
		observability.CacheOpsTotal.WithLabelValues("miss").Inc()
		return nil, false
	}
	e := el.Value.(*entry)
	if c.now().Sub(e.insertedAt) >= e.ttl {
		c.removeLocked(el)
		c.misses++
		observability.CacheOpsTotal.WithLabelValues("expired").Inc()
		return nil, false
	}
	c.order.MoveToFront(el)
	c.hits++
	observability.CacheOpsTotal.WithLabelValues("hit").Inc()
	return e.value, true
}

// Put stores value under key with the given TTL, replacing any previous
// entry. Crossing the soft bound triggers a 10% LRU eviction sweep.
func (c *Cache) Put(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry)
		e.value = value
		e.insertedAt = c.now()
		e.ttl = ttl
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&entry{key: key, value: value, insertedAt: c.now(), ttl: ttl})
	c.entries[key] = el
	if c.order.Len() > c.maxEntries {
		c.evictLocked()
	}
}

// evictLocked drops the least-recently-used 10% of entries (at least one).
func (c *Cache) evictLocked() {
	n := c.maxEntries / 10
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		el := c.order.Back()
		if el == nil {
			return
		}
		c.removeLocked(el)
	}
}

func (c *Cache) removeLocked(el *list.Element) {
	e := el.Value.(*entry)
	c.order.Remove(el)
	delete(c.entries, e.key)
}

// Len reports the number of live entries (expired ones included until their
// lazy removal).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns cumulative hit and miss counts.
func (c *Cache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
