package cache_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techdengue/analytics/internal/cache"
)

type payload struct {
	Name  string `json:"name"`
	Total int    `json:"total"`
}

// TestMemory_SetGetDelete checks read-after-set, expiry and read-after-delete.
func TestMemory_SetGetDelete(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := cache.NewMemory(func() time.Time { return now })
	c := cache.New(m, time.Minute)
	ctx := context.Background()

	c.SetJSON(ctx, "k", payload{Name: "a", Total: 3}, 0)
	var got payload
	require.True(t, c.GetJSON(ctx, "k", &got))
	assert.Equal(t, payload{Name: "a", Total: 3}, got)

	now = now.Add(2 * time.Minute)
	assert.False(t, c.GetJSON(ctx, "k", &got))

	c.SetJSON(ctx, "k", payload{Name: "b"}, time.Hour)
	c.Delete(ctx, "k")
	assert.False(t, c.GetJSON(ctx, "k", &got))

	s := c.Stats()
	assert.Equal(t, "memory", s.Backend)
	assert.Equal(t, int64(1), s.Hits)
	assert.Equal(t, int64(2), s.Misses)
	assert.InDelta(t, 1.0/3.0, s.HitRate, 1e-9)
}

func TestKey_StableAndDistinct(t *testing.T) {
	a := cache.Key("facts", map[string]any{"limit": 5, "codigo_ibge": "3100104"})
	b := cache.Key("facts", map[string]any{"codigo_ibge": "3100104", "limit": 5})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, cache.Key("gold", map[string]any{"limit": 5, "codigo_ibge": "3100104"}))
	assert.NotEqual(t, a, cache.Key("facts", map[string]any{"limit": 6, "codigo_ibge": "3100104"}))
}

// TestRemember computes once, then serves from cache; errors are not cached.
func TestRemember(t *testing.T) {
	c := cache.New(cache.NewMemory(nil), time.Minute)
	ctx := context.Background()
	calls := 0
	fn := func() (payload, error) {
		calls++
		return payload{Total: calls}, nil
	}
	first, err := cache.Remember(ctx, c, "op", 1, 0, fn)
	require.NoError(t, err)
	second, err := cache.Remember(ctx, c, "op", 1, 0, fn)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)

	boom := errors.New("boom")
	_, err = cache.Remember(ctx, c, "fail", 1, 0, func() (payload, error) { return payload{}, boom })
	assert.ErrorIs(t, err, boom)
	_, err = cache.Remember(ctx, c, "fail", 1, 0, func() (payload, error) { return payload{Total: 9}, nil })
	require.NoError(t, err)
}

type brokenBackend struct{ *cache.Memory }

func (brokenBackend) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}

func (brokenBackend) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}

// TestCache_SwallowsBackendErrors ensures a failing backend degrades to misses.
func TestCache_SwallowsBackendErrors(t *testing.T) {
	c := cache.New(brokenBackend{cache.NewMemory(nil)}, time.Minute)
	got, err := cache.Remember(context.Background(), c, "op", nil, 0, func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, got)
	assert.Equal(t, int64(2), c.Stats().Errors)
}

func TestOpen_FallsBackToMemory(t *testing.T) {
	c := cache.Open(context.Background(), "redis://127.0.0.1:1/0", time.Minute)
	assert.Equal(t, "memory", c.Backend())
	assert.Equal(t, "memory", cache.Open(context.Background(), "", time.Minute).Backend())
}

// TestRedis_Live exercises the redis backend when REDIS_URL is set.
func TestRedis_Live(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	client, err := cache.OpenRedis(context.Background(), url)
	require.NoError(t, err)
	defer client.Close()

	c := cache.New(cache.NewRedis(client, "techdengue:test:"), time.Minute)
	ctx := context.Background()
	c.SetJSON(ctx, "k", payload{Name: "x"}, 0)
	var got payload
	require.True(t, c.GetJSON(ctx, "k", &got))
	assert.Equal(t, "x", got.Name)
	n, err := c.Clear(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)
}
