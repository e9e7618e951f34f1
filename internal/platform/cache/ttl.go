// Package cache provides a small TTL cache owned by the service that uses it.
// The clock is injected so expiry can be driven from tests.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Clock returns the current time.
type Clock func() time.Time

type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// TTL is a size-bounded, least-recently-used cache whose entries expire after a
// fixed time-to-live.
type TTL[K comparable, V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	now     Clock
	order   *list.List
	items   map[K]*list.Element
}

// NewTTL creates a cache. A nil clock means time.Now; maxSize <= 0 means unbounded.
func NewTTL[K comparable, V any](ttl time.Duration, maxSize int, clock Clock) *TTL[K, V] {
	if clock == nil {
		clock = time.Now
	}

	return &TTL[K, V]{
		ttl:     ttl,
		maxSize: maxSize,
		now:     clock,
		order:   list.New(),
		items:   make(map[K]*list.Element),
	}
}

// Get returns the cached value if present and not expired.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V

	el, ok := c.items[key]
	if !ok {
		return zero, false
	}

	e := el.Value.(*entry[K, V]) //nolint:forcetypeassert // list only holds *entry

	if !c.now().Before(e.expiresAt) {
		c.removeElement(el)
		return zero, false
	}

	c.order.MoveToFront(el)

	return e.value, true
}

// Set stores value under key, evicting the least recently used entry when full.
func (c *TTL[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(c.ttl)

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[K, V]) //nolint:forcetypeassert // list only holds *entry
		e.value = value
		e.expiresAt = expiresAt
		c.order.MoveToFront(el)

		return
	}

	c.items[key] = c.order.PushFront(&entry[K, V]{key: key, value: value, expiresAt: expiresAt})

	if c.maxSize > 0 && c.order.Len() > c.maxSize {
		c.removeElement(c.order.Back())
	}
}

// Len returns the number of entries, expired or not.
func (c *TTL[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.order.Len()
}

// Purge drops every expired entry.
func (c *TTL[K, V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0

	for el := c.order.Back(); el != nil; {
		prev := el.Prev()

		if e := el.Value.(*entry[K, V]); !now.Before(e.expiresAt) { //nolint:forcetypeassert // list only holds *entry
			c.removeElement(el)
			removed++
		}

		el = prev
	}

	return removed
}

func (c *TTL[K, V]) removeElement(el *list.Element) {
	e := el.Value.(*entry[K, V]) //nolint:forcetypeassert // list only holds *entry
	delete(c.items, e.key)
	c.order.Remove(el)
}
