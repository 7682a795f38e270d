package scraper

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

type cacheEntry struct {
	url string
	ok  bool
}

// Cache memoizes scrape outcomes by video id, failures included, so each
// video is scraped at most once per cache lifetime.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	group   singleflight.Group
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]cacheEntry)}
}

// Get reports the cached outcome for videoID; found is false on a miss.
func (c *Cache) Get(videoID string) (url string, ok, found bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, found := c.entries[videoID]
	return e.url, e.ok, found
}

func (c *Cache) Put(videoID, url string, ok bool) {
	c.mu.Lock()
	c.entries[videoID] = cacheEntry{url: url, ok: ok}
	c.mu.Unlock()
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
