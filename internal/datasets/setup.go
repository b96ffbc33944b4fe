// Package datasets serves the analytical artifacts: activity facts, dengue
// history, the municipal dimension and the gold aggregate.
package datasets

import (
	"context"
	"log"
	"time"

	"github.com/techdengue/analytics/internal/cache"
	"github.com/techdengue/analytics/internal/frame"
)

// Loader reads an artifact. *store.Store satisfies it.
type Loader interface {
	Load(ctx context.Context, name string) (*frame.Frame, error)
}

// Service holds the dependencies of the dataset routes.
type Service struct {
	Store Loader
	// Cache, when set, memoizes summaries and single-municipality lookups.
	Cache    *cache.Cache
	CacheTTL time.Duration
}

func Init(store Loader, c *cache.Cache) *Service {
	s := &Service{Store: store, Cache: c, CacheTTL: time.Hour}
	log.Println("Datasets module initialized")
	return s
}
