// Package ratelimit enforces per-minute and per-day request budgets keyed by
// API key prefix, or client IP for anonymous callers.
package ratelimit

import (
	"context"
	"fmt"
	"log"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/techdengue/analytics/internal/auth"
	"github.com/techdengue/analytics/internal/utils"
)

// Policy is the budget of one rate bucket.
type Policy struct {
	PerMinute int64 `json:"per_minute"`
	PerDay    int64 `json:"per_day"`
}

// Rate buckets.
const (
	BucketFree      = "free"
	BucketStandard  = "standard"
	BucketPremium   = "premium"
	BucketUnlimited = "unlimited"
)

// DefaultPolicies are the budgets per bucket.
var DefaultPolicies = map[string]Policy{
	BucketFree:      {PerMinute: 60, PerDay: 1_000},
	BucketStandard:  {PerMinute: 300, PerDay: 10_000},
	BucketPremium:   {PerMinute: 1_000, PerDay: 50_000},
	BucketUnlimited: {PerMinute: 10_000, PerDay: 1_000_000},
}

// BucketFor maps an API tier to its rate bucket; admin keys use the unlimited bucket.
func BucketFor(t auth.Tier) string {
	switch t {
	case auth.TierStandard:
		return BucketStandard
	case auth.TierPremium:
		return BucketPremium
	case auth.TierAdmin:
		return BucketUnlimited
	}
	return BucketFree
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Bucket     string
	Limit      int64
	Remaining  int64
	RetryAfter time.Duration
	// Window names the exhausted window: "minute" or "day".
	Window string
}

type Limiter struct {
	store    Store
	policies map[string]Policy
}

func New(store Store, policies map[string]Policy) *Limiter {
	if policies == nil {
		policies = DefaultPolicies
	}
	return &Limiter{store: store, policies: policies}
}

func (l *Limiter) Backend() string { return l.store.Name() }

func (l *Limiter) Policies() map[string]Policy { return l.policies }

// Allow counts one request for id in bucket. Store failures fail open.
func (l *Limiter) Allow(ctx context.Context, id, bucket string) Decision {
	p, ok := l.policies[bucket]
	if !ok {
		bucket = BucketFree
		p = l.policies[bucket]
	}
	d := Decision{Allowed: true, Bucket: bucket, Limit: p.PerMinute, Remaining: p.PerMinute}

	n, left, err := l.store.Incr(ctx, fmt.Sprintf("%s:%s:minute", bucket, id), time.Minute)
	if err != nil {
		log.Printf("[ratelimit] %s store error, allowing request: %v", l.store.Name(), err)
		return d
	}
	d.Remaining = max(p.PerMinute-n, 0)
	if n > p.PerMinute {
		d.Allowed, d.RetryAfter, d.Window = false, left, "minute"
		return d
	}

	if p.PerDay > 0 {
		dn, dleft, err := l.store.Incr(ctx, fmt.Sprintf("%s:%s:day", bucket, id), 24*time.Hour)
		if err != nil {
			log.Printf("[ratelimit] %s store error, allowing request: %v", l.store.Name(), err)
			return d
		}
		if dn > p.PerDay {
			d.Allowed, d.RetryAfter, d.Window, d.Limit, d.Remaining = false, dleft, "day", p.PerDay, 0
		}
	}
	return d
}

// ClientID identifies the caller: the API key prefix when authenticated,
// otherwise the client IP.
func ClientID(r *http.Request) string {
	if info, ok := auth.FromContext(r.Context()); ok {
		return "key:" + info.Prefix
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// Middleware rejects requests over budget with 429, Retry-After and an
// explanatory body. It runs after API key resolution.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tier := auth.TierFree
		if info, ok := auth.FromContext(r.Context()); ok {
			tier = info.Tier
		}
		d := l.Allow(r.Context(), ClientID(r), BucketFor(tier))

		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
		if d.Allowed {
			next.ServeHTTP(w, r)
			return
		}
		retry := int(math.Ceil(d.RetryAfter.Seconds()))
		if retry < 1 {
			retry = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		utils.WriteError(w, r, http.StatusTooManyRequests, "rate_limit_exceeded",
			fmt.Sprintf("Rate limit of %d requests per %s exceeded", d.Limit, d.Window),
			utils.ErrorBody{"retry_after": retry, "tier": string(tier), "limit": d.Limit, "window": d.Window})
	})
}
