package cache

import (
	"container/list"
	"sync"
	"time"
)

// lruEntry is a cached item with expiration
type lruEntry struct {
	key       string
	value     interface{}
	expiresAt time.Time
}

// LRU is a thread-safe fixed-capacity cache with TTL support. It backs
// the in-memory result store, the document lookup cache and the
// dispatcher's completed-job retention.
type LRU struct {
	mu           sync.RWMutex
	capacity     int
	ttl          time.Duration
	items        map[string]*list.Element
	evictionList *list.List
}

// NewLRU creates a new LRU cache
func NewLRU(capacity int, ttl time.Duration) *LRU {
	return &LRU{
		capacity:     capacity,
		ttl:          ttl,
		items:        make(map[string]*list.Element, capacity),
		evictionList: list.New(),
	}
}

// Get retrieves an item from the cache
func (c *LRU) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, found := c.items[key]; found {
		entry := elem.Value.(*lruEntry)

		if time.Now().After(entry.expiresAt) {
			c.removeElement(elem)
			return nil, false
		}

		c.evictionList.MoveToFront(elem)
		return entry.value, true
	}

	return nil, false
}

// Set adds or updates an item in the cache
func (c *LRU) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := time.Now().Add(c.ttl)

	if elem, found := c.items[key]; found {
		c.evictionList.MoveToFront(elem)
		entry := elem.Value.(*lruEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		return
	}

	elem := c.evictionList.PushFront(&lruEntry{
		key:       key,
		value:     value,
		expiresAt: expiresAt,
	})
	c.items[key] = elem

	if c.evictionList.Len() > c.capacity {
		c.removeOldest()
	}
}

// Delete removes an item from the cache
func (c *LRU) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, found := c.items[key]; found {
		c.removeElement(elem)
	}
}

// Len returns the current number of items in the cache
func (c *LRU) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.evictionList.Len()
}

// removeOldest removes the oldest item from the cache
func (c *LRU) removeOldest() {
	if elem := c.evictionList.Back(); elem != nil {
		c.removeElement(elem)
	}
}

// removeElement removes a specific element from the cache
func (c *LRU) removeElement(elem *list.Element) {
	c.evictionList.Remove(elem)
	entry := elem.Value.(*lruEntry)
	delete(c.items, entry.key)
}
