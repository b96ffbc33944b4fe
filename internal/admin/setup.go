// Package admin serves the operator endpoints: cache control, audit
// inspection and API key management.
package admin

import (
	"log"
	"time"

	"github.com/techdengue/analytics/internal/audit"
	"github.com/techdengue/analytics/internal/auth"
	"github.com/techdengue/analytics/internal/cache"
	"github.com/techdengue/analytics/internal/ratelimit"
	"github.com/techdengue/analytics/internal/store"
)

// Service holds the shared state the admin routes inspect. Nil members are
// reported as absent.
type Service struct {
	Cache   *cache.Cache
	Files   *store.FileCache
	Audit   *audit.Log
	Keys    auth.KeyStore
	Limiter *ratelimit.Limiter
	Now     func() time.Time
}

func Init(c *cache.Cache, files *store.FileCache, a *audit.Log, keys auth.KeyStore, l *ratelimit.Limiter) *Service {
	log.Println("Admin module initialized")
	return &Service{Cache: c, Files: files, Audit: a, Keys: keys, Limiter: l, Now: time.Now}
}
