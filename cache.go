package discourse

import (
	"container/list"
	"sync"
	"time"
)

// CacheEntry is a memoized read response.
type CacheEntry struct {
	Body       []byte
	StatusCode int
	StoredAt   time.Time
}

// ResponseCache is a TTL + LRU bounded memo of prior successful read
// responses. It knows nothing about HTTP semantics; callers decide what is
// cacheable. Safe for concurrent use.
type ResponseCache struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	ll         *list.List
	entries    map[string]*list.Element
	now        func() time.Time
}

type cacheItem struct {
	key   string
	entry CacheEntry
}

// NewResponseCache creates a cache holding at most maxEntries entries, each
// visible for ttl after being stored.
func NewResponseCache(maxEntries int, ttl time.Duration) *ResponseCache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &ResponseCache{
		maxEntries: maxEntries,
		ttl:        ttl,
		ll:         list.New(),
		entries:    make(map[string]*list.Element),
		now:        time.Now,
	}
}

// Get returns the entry for key if present and fresh. An expired entry is
// evicted lazily and reported as a miss. A hit bumps recency.
func (c *ResponseCache) Get(key string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return CacheEntry{}, false
	}

	item := el.Value.(*cacheItem)
	if c.now().Sub(item.entry.StoredAt) >= c.ttl {
		c.removeElementLocked(el)
		return CacheEntry{}, false
	}

	c.ll.MoveToFront(el)
	return item.entry, true
}

// Set stores an entry for key, evicting the least-recently-used entry when
// the cache is full. A write bumps recency.
func (c *ResponseCache) Set(key string, body []byte, statusCode int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := CacheEntry{Body: body, StatusCode: statusCode, StoredAt: c.now()}

	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheItem).entry = entry
		c.ll.MoveToFront(el)
		return
	}

	if c.ll.Len() >= c.maxEntries {
		if back := c.ll.Back(); back != nil {
			c.removeElementLocked(back)
		}
	}
	c.entries[key] = c.ll.PushFront(&cacheItem{key: key, entry: entry})
}

// Delete removes key if present.
func (c *ResponseCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.removeElementLocked(el)
	}
}

// Clear drops all entries.
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.entries = make(map[string]*list.Element)
}

// Len returns the current number of live entries.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *ResponseCache) removeElementLocked(el *list.Element) {
	c.ll.Remove(el)
	delete(c.entries, el.Value.(*cacheItem).key)
}
