// Package cache is the serving-side response cache. Entries are JSON blobs
// keyed by a hash of the operation name and its arguments, stored in Redis
// when reachable and in process memory otherwise.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"sync/atomic"
	"time"
)

// Backend stores raw values with a TTL.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Clear drops every entry and reports how many were removed.
	Clear(ctx context.Context) (int, error)
	Name() string
}

// Cache counts hits and misses over a Backend. Backend errors are logged and
// treated as misses so callers always fall through to the real read.
type Cache struct {
	backend Backend
	ttl     time.Duration
	hits    atomic.Int64
	misses  atomic.Int64
	errors  atomic.Int64
}

func New(backend Backend, ttl time.Duration) *Cache {
	return &Cache{backend: backend, ttl: ttl}
}

// Open selects the Redis backend when redisURL is set and answers a ping, and
// falls back to memory otherwise.
func Open(ctx context.Context, redisURL string, ttl time.Duration) *Cache {
	if redisURL != "" {
		client, err := OpenRedis(ctx, redisURL)
		if err == nil {
			log.Printf("[cache] using redis backend")
			return New(NewRedis(client, DefaultPrefix), ttl)
		}
		log.Printf("[cache] redis unavailable, falling back to in-memory cache: %v", err)
	}
	return New(NewMemory(nil), ttl)
}

func (c *Cache) Backend() string { return c.backend.Name() }

func (c *Cache) TTL() time.Duration { return c.ttl }

// Key derives the cache key of an operation call.
func Key(op string, args any) string {
	data, err := json.Marshal(args)
	if err != nil {
		data = []byte(err.Error())
	}
	sum := sha256.Sum256(append([]byte(op+"\x00"), data...))
	return op + ":" + hex.EncodeToString(sum[:16])
}

// GetJSON decodes the entry at key into dst and reports whether it was found.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) bool {
	data, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.errors.Add(1)
		log.Printf("[cache] get %s: %v", key, err)
	}
	if err != nil || !ok {
		c.misses.Add(1)
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		c.misses.Add(1)
		return false
	}
	c.hits.Add(1)
	return true
}

// SetJSON stores v at key. ttl <= 0 uses the cache default.
func (c *Cache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[cache] encode %s: %v", key, err)
		return
	}
	if err := c.backend.Set(ctx, key, data, ttl); err != nil {
		c.errors.Add(1)
		log.Printf("[cache] set %s: %v", key, err)
	}
}

func (c *Cache) Delete(ctx context.Context, key string) {
	if err := c.backend.Delete(ctx, key); err != nil {
		c.errors.Add(1)
		log.Printf("[cache] delete %s: %v", key, err)
	}
}

// Clear empties the backend and resets the counters.
func (c *Cache) Clear(ctx context.Context) (int, error) {
	n, err := c.backend.Clear(ctx)
	if err != nil {
		return n, err
	}
	c.hits.Store(0)
	c.misses.Store(0)
	return n, nil
}

// Stats is a point-in-time view of the counters.
type Stats struct {
	Backend string  `json:"backend"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Errors  int64   `json:"errors"`
	HitRate float64 `json:"hit_rate"`
	TTL     int     `json:"ttl_seconds"`
}

func (c *Cache) Stats() Stats {
	s := Stats{
		Backend: c.backend.Name(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Errors:  c.errors.Load(),
		TTL:     int(c.ttl / time.Second),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

// Remember returns the cached result of op(args), computing and storing it on a miss.
// Errors from fn are returned and never cached.
func Remember[T any](ctx context.Context, c *Cache, op string, args any, ttl time.Duration, fn func() (T, error)) (T, error) {
	if c == nil {
		return fn()
	}
	key := Key(op, args)
	var out T
	if c.GetJSON(ctx, key, &out) {
		return out, nil
	}
	out, err := fn()
	if err != nil {
		return out, err
	}
	c.SetJSON(ctx, key, out, ttl)
	return out, nil
}
