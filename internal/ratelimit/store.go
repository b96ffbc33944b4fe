package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store counts hits in fixed windows. Incr returns the count after the
// increment and the time left in the current window.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Name() string
}

type memoryWindow struct {
	count int64
	reset time.Time
}

// MemoryStore keeps windows in process memory.
type MemoryStore struct {
	now func() time.Time

	mu      sync.Mutex
	windows map[string]*memoryWindow
	calls   int
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{now: now, windows: map[string]*memoryWindow{}}
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.calls%1024 == 0 {
		for k, w := range m.windows {
			if !now.Before(w.reset) {
				delete(m.windows, k)
			}
		}
	}

	w, ok := m.windows[key]
	if !ok || !now.Before(w.reset) {
		w = &memoryWindow{reset: now.Add(window)}
		m.windows[key] = w
	}
	w.count++
	return w.count, w.reset.Sub(now), nil
}

// RedisStore shares windows across processes.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "techdengue:ratelimit:"}
}

func (r *RedisStore) Name() string { return "redis" }

func (r *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	k := r.prefix + key
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, window)
	ttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}
	left := ttl.Val()
	if left < 0 {
		left = window
	}
	return incr.Val(), left, nil
}
