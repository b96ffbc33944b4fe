package store

import (
	"os"
	"sync"
	"time"

	"github.com/techdengue/analytics/internal/frame"
)

type cacheEntry struct {
	frame    *frame.Frame
	loadedAt time.Time
	modTime  time.Time
	remote   bool
}

// FileCache keeps decoded artifacts in memory. Local entries are also dropped
// when the file's modification time changes; remote entries expire by TTL only.
// Every hit returns a deep copy.
type FileCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
	hits    int64
	misses  int64
}

func NewFileCache(ttl time.Duration, now func() time.Time) *FileCache {
	if now == nil {
		now = time.Now
	}
	return &FileCache{ttl: ttl, now: now, entries: make(map[string]cacheEntry)}
}

// FileCacheStats is a point-in-time view of the cache counters.
type FileCacheStats struct {
	Entries int      `json:"entries"`
	Hits    int64    `json:"hits"`
	Misses  int64    `json:"misses"`
	Keys    []string `json:"keys"`
}

func (c *FileCache) Stats() FileCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return FileCacheStats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses, Keys: keys}
}

// Clear drops every entry and returns how many were held.
func (c *FileCache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[string]cacheEntry)
	return n
}

func (c *FileCache) expired(e cacheEntry) bool {
	return c.ttl > 0 && c.now().Sub(e.loadedAt) >= c.ttl
}

func (c *FileCache) lookup(key string, valid func(cacheEntry) bool) (*frame.Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if ok && !c.expired(e) && valid(e) {
		c.hits++
		return e.frame, true
	}
	if ok {
		delete(c.entries, key)
	}
	c.misses++
	return nil, false
}

func (c *FileCache) store(key string, e cacheEntry) {
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// GetLocal returns the cached frame for path, calling load on a miss or when
// the file changed since it was cached. Concurrent misses may both load.
func (c *FileCache) GetLocal(path string, load func() (*frame.Frame, error)) (*frame.Frame, error) {
	var mod time.Time
	if st, err := os.Stat(path); err == nil {
		mod = st.ModTime()
	}
	if f, ok := c.lookup(path, func(e cacheEntry) bool { return e.modTime.Equal(mod) }); ok {
		return f.Copy(), nil
	}
	f, err := load()
	if err != nil {
		return nil, err
	}
	c.store(path, cacheEntry{frame: f, loadedAt: c.now(), modTime: mod})
	return f.Copy(), nil
}

// GetRemote returns the cached frame for key, calling load on a miss or after the TTL.
func (c *FileCache) GetRemote(key string, load func() (*frame.Frame, error)) (*frame.Frame, error) {
	if f, ok := c.lookup(key, func(e cacheEntry) bool { return e.remote }); ok {
		return f.Copy(), nil
	}
	f, err := load()
	if err != nil {
		return nil, err
	}
	c.store(key, cacheEntry{frame: f, loadedAt: c.now(), remote: true})
	return f.Copy(), nil
}
