package cache

import (
	"container/list"
	"sync"
	"time"
)

// Cache is a typed in-process cache. The gateway keeps one for remote system
// prompts and one for the backend model list.
type Cache[V any] interface {
	Get(key string) (V, bool)
	Set(key string, value V, ttl time.Duration)
}

type item[V any] struct {
	key     string
	value   V
	expires time.Time
}

type lru[V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	elems    map[string]*list.Element
	order    *list.List
}

// NewLRU creates an LRU cache with the given capacity and default TTL. A
// per-entry TTL of zero on Set falls back to the default.
func NewLRU[V any](capacity int, ttl time.Duration) Cache[V] {
	if capacity <= 0 {
		capacity = 512
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &lru[V]{
		capacity: capacity,
		ttl:      ttl,
		elems:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

func (c *lru[V]) Get(key string) (V, bool) {
	var zero V
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.elems[key]
	if !ok {
		return zero, false
	}
	it := el.Value.(*item[V])
	if !it.expires.IsZero() && !time.Now().Before(it.expires) {
		c.order.Remove(el)
		delete(c.elems, key)
		return zero, false
	}
	c.order.MoveToFront(el)
	return it.value, true
}

func (c *lru[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.elems[key]; ok {
		it := el.Value.(*item[V])
		it.value = value
		it.expires = c.expiry(ttl)
		c.order.MoveToFront(el)
		return
	}

	if len(c.elems) >= c.capacity {
		if back := c.order.Back(); back != nil {
			c.order.Remove(back)
			delete(c.elems, back.Value.(*item[V]).key)
		}
	}
	c.elems[key] = c.order.PushFront(&item[V]{key: key, value: value, expires: c.expiry(ttl)})
}

func (c *lru[V]) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		ttl = c.ttl
	}
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}
