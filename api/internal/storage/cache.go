package storage

import (
	"container/list"
	"sync"
	"time"
)

// URLCache maps storage paths to signed URLs with an explicit expiry and an
// LRU bound. Safe for concurrent use.
type URLCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	max   int
	ll    *list.List
	items map[string]*list.Element
	now   func() time.Time
}

type cacheEntry struct {
	path    string
	url     string
	expires time.Time
}

// NewURLCache keeps at most max entries (max <= 0 means 1) for ttl each.
func NewURLCache(max int, ttl time.Duration) *URLCache {
	if max <= 0 {
		max = 1
	}
	return &URLCache{
		ttl:   ttl,
		max:   max,
		ll:    list.New(),
		items: make(map[string]*list.Element),
		now:   time.Now,
	}
}

// Get returns a URL that has not expired yet. Expired entries are dropped.
func (c *URLCache) Get(path string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[path]
	if !ok {
		return "", false
	}
	e := el.Value.(*cacheEntry)
	if !c.now().Before(e.expires) {
		c.removeElement(el)
		return "", false
	}
	c.ll.MoveToFront(el)
	return e.url, true
}

// Set stores url for path and always refreshes the expiry.
func (c *URLCache) Set(path, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	exp := c.now().Add(c.ttl)
	if el, ok := c.items[path]; ok {
		e := el.Value.(*cacheEntry)
		e.url, e.expires = url, exp
		c.ll.MoveToFront(el)
		return
	}
	c.items[path] = c.ll.PushFront(&cacheEntry{path: path, url: url, expires: exp})
	for c.ll.Len() > c.max {
		c.removeElement(c.ll.Back())
	}
}

// IsExpired reports true for unknown paths too.
func (c *URLCache) IsExpired(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[path]
	if !ok {
		return true
	}
	return !c.now().Before(el.Value.(*cacheEntry).expires)
}

func (c *URLCache) Delete(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[path]; ok {
		c.removeElement(el)
	}
}

func (c *URLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *URLCache) removeElement(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*cacheEntry).path)
}
