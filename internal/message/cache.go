package message

import (
	"container/list"
	"sync"
	"time"
)

// staticCache is a bounded LRU cache for rendered static parts, combining
// TTL expiry (checked on read) with count-based eviction (checked on
// insert).
type staticCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]*list.Element
	order      *list.List
	now        func() time.Time
}

type staticCacheEntry struct {
	key       string
	value     StaticParts
	expiresAt time.Time
}

func newStaticCache(ttl time.Duration, maxEntries int, now func() time.Time) *staticCache {
	if now == nil {
		now = time.Now
	}
	return &staticCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		now:        now,
	}
}

// get returns the cached value for key if present and unexpired. A hit
// moves the entry to the front of the recency list.
func (c *staticCache) get(key string) (StaticParts, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return StaticParts{}, false
	}
	entry := elem.Value.(*staticCacheEntry)
	if c.now().After(entry.expiresAt) {
		c.order.Remove(elem)
		delete(c.entries, key)
		return StaticParts{}, false
	}
	c.order.MoveToFront(elem)
	return entry.value, true
}

// put inserts or refreshes key, evicting the least-recently-used entry if
// the cache is at capacity.
func (c *staticCache) put(key string, value StaticParts) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*staticCacheEntry)
		entry.value = value
		entry.expiresAt = c.now().Add(c.ttl)
		c.order.MoveToFront(elem)
		return
	}

	entry := &staticCacheEntry{key: key, value: value, expiresAt: c.now().Add(c.ttl)}
	elem := c.order.PushFront(entry)
	c.entries[key] = elem

	if c.maxEntries > 0 && c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*staticCacheEntry).key)
		}
	}
}
