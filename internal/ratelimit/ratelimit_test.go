package ratelimit_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techdengue/analytics/internal/auth"
	"github.com/techdengue/analytics/internal/cache"
	"github.com/techdengue/analytics/internal/middleware"
	"github.com/techdengue/analytics/internal/ratelimit"
)

// TestMiddleware_FreeTierExhausts sends 61 anonymous requests: the first 60
// pass and the last is rejected with Retry-After and the tier in the body.
func TestMiddleware_FreeTierExhausts(t *testing.T) {
	l := ratelimit.New(ratelimit.NewMemoryStore(nil), nil)
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var rec *httptest.ResponseRecorder
	for i := 0; i < 61; i++ {
		req := httptest.NewRequest(http.MethodGet, "/facts", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if i < 60 {
			require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
		}
	}
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "free", body["tier"])
	assert.Equal(t, float64(60), body["limit"])
	assert.Equal(t, "rate_limit_exceeded", body["error"])

	other := httptest.NewRequest(http.MethodGet, "/facts", nil)
	other.RemoteAddr = "10.0.0.2:5000"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusOK, rec.Code, "other clients have their own window")
}

// TestMiddleware_KeyedByTier gives a premium key the premium budget.
func TestMiddleware_KeyedByTier(t *testing.T) {
	reg := auth.NewRegistry()
	raw, _, err := reg.Create("ops", auth.TierPremium, nil)
	require.NoError(t, err)

	l := ratelimit.New(ratelimit.NewMemoryStore(nil), nil)
	h := middleware.APIKeyMiddleware(reg)(l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(auth.HeaderAPIKey, raw)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "1000", rec.Header().Get("X-RateLimit-Limit"))
}

func TestWindowResets(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := ratelimit.New(ratelimit.NewMemoryStore(func() time.Time { return now }), map[string]ratelimit.Policy{
		ratelimit.BucketFree: {PerMinute: 2},
	})
	ctx := context.Background()
	assert.True(t, l.Allow(ctx, "c", ratelimit.BucketFree).Allowed)
	assert.True(t, l.Allow(ctx, "c", ratelimit.BucketFree).Allowed)
	d := l.Allow(ctx, "c", ratelimit.BucketFree)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Minute, d.RetryAfter)

	now = now.Add(time.Minute)
	assert.True(t, l.Allow(ctx, "c", ratelimit.BucketFree).Allowed)
}

// TestDailyCap rejects once the day budget is spent even with minute budget left.
func TestDailyCap(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := ratelimit.New(ratelimit.NewMemoryStore(func() time.Time { return now }), map[string]ratelimit.Policy{
		ratelimit.BucketFree: {PerMinute: 10, PerDay: 3},
	})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(ctx, "c", ratelimit.BucketFree).Allowed)
		now = now.Add(2 * time.Minute)
	}
	d := l.Allow(ctx, "c", ratelimit.BucketFree)
	assert.False(t, d.Allowed)
	assert.Equal(t, "day", d.Window)
	assert.Equal(t, int64(3), d.Limit)
}

func TestBucketFor(t *testing.T) {
	assert.Equal(t, ratelimit.BucketUnlimited, ratelimit.BucketFor(auth.TierAdmin))
	assert.Equal(t, ratelimit.BucketFree, ratelimit.BucketFor(""))
	assert.Equal(t, ratelimit.BucketStandard, ratelimit.BucketFor(auth.TierStandard))
}

// TestRedisStore_Live checks the shared window when REDIS_URL is set.
func TestRedisStore_Live(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	client, err := cache.OpenRedis(context.Background(), url)
	require.NoError(t, err)
	defer client.Close()

	s := ratelimit.NewRedisStore(client)
	key := "test:" + time.Now().Format(time.RFC3339Nano)
	n, ttl, err := s.Incr(context.Background(), key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Greater(t, ttl, time.Duration(0))
	n, _, err = s.Incr(context.Background(), key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
