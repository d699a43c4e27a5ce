package cache

import (
	"container/list"
	"sync"
)

type lruEntry[K comparable, V any] struct {
	key   K
	value V
}

// LRUCache evicts the least recently used entry once capacity is exceeded.
type LRUCache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	items    map[K]*list.Element
	order    *list.List // front is most recently used
	onEvict  func(key K, value V)
}

// NewLRUCache creates a cache holding up to capacity entries. It panics on a
// non-positive capacity.
func NewLRUCache[K comparable, V any](capacity int) *LRUCache[K, V] {
	if capacity <= 0 {
		panic("cache: LRU capacity must be positive")
	}
	return &LRUCache[K, V]{
		capacity: capacity,
		items:    make(map[K]*list.Element),
		order:    list.New(),
	}
}

// SetEvictCallback sets the function called for every evicted, removed or
// cleared entry.
func (c *LRUCache[K, V]) SetEvictCallback(fn func(key K, value V)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvict = fn
}

// Get returns the value for key and marks it recently used.
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		return elem.Value.(*lruEntry[K, V]).value, true
	}
	var zero V
	return zero, false
}

// Put adds or replaces the value for key. It returns the previous value, if any.
func (c *LRUCache[K, V]) Put(key K, value V) (V, bool) {
	c.mu.Lock()
	var zero V
	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		entry := elem.Value.(*lruEntry[K, V])
		old := entry.value
		entry.value = value
		c.mu.Unlock()
		return old, true
	}
	evicted := c.insert(key, value)
	cb := c.onEvict
	c.mu.Unlock()

	notify(cb, evicted)
	return zero, false
}

// GetOrPut returns the value for key, creating it with create when absent.
// create runs under the cache lock and must not call back into the cache.
func (c *LRUCache[K, V]) GetOrPut(key K, create func() V) V {
	c.mu.Lock()
	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		v := elem.Value.(*lruEntry[K, V]).value
		c.mu.Unlock()
		return v
	}
	v := create()
	evicted := c.insert(key, v)
	cb := c.onEvict
	c.mu.Unlock()

	notify(cb, evicted)
	return v
}

// Remove deletes key and reports whether it was present.
func (c *LRUCache[K, V]) Remove(key K) (V, bool) {
	c.mu.Lock()
	elem, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	entry := c.unlink(elem)
	cb := c.onEvict
	c.mu.Unlock()

	notify(cb, []*lruEntry[K, V]{entry})
	return entry.value, true
}

// Len returns the number of entries.
func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear removes every entry, calling the evict callback for each.
func (c *LRUCache[K, V]) Clear() {
	c.mu.Lock()
	entries := make([]*lruEntry[K, V], 0, c.order.Len())
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		entries = append(entries, elem.Value.(*lruEntry[K, V]))
	}
	c.items = make(map[K]*list.Element)
	c.order.Init()
	cb := c.onEvict
	c.mu.Unlock()

	notify(cb, entries)
}

// insert must be called with the lock held. It returns the entries pushed out.
func (c *LRUCache[K, V]) insert(key K, value V) []*lruEntry[K, V] {
	c.items[key] = c.order.PushFront(&lruEntry[K, V]{key: key, value: value})
	var evicted []*lruEntry[K, V]
	for c.order.Len() > c.capacity {
		evicted = append(evicted, c.unlink(c.order.Back()))
	}
	return evicted
}

// unlink must be called with the lock held.
func (c *LRUCache[K, V]) unlink(elem *list.Element) *lruEntry[K, V] {
	c.order.Remove(elem)
	entry := elem.Value.(*lruEntry[K, V])
	delete(c.items, entry.key)
	return entry
}

func notify[K comparable, V any](cb func(K, V), entries []*lruEntry[K, V]) {
	if cb == nil {
		return
	}
	for _, e := range entries {
		cb(e.key, e.value)
	}
}
