// Package health exposes liveness, status, monitoring, data quality and the
// dataset catalog.
package health

import (
	"context"
	"time"

	"github.com/techdengue/analytics/internal/audit"
	"github.com/techdengue/analytics/internal/cache"
	"github.com/techdengue/analytics/internal/store"
)

// Version is the API version, overridable at link time.
var Version = "2.0.0"

// Pinger reports whether a database answers.
type Pinger func(ctx context.Context) error

// Service holds the dependencies of the health routes.
type Service struct {
	Store     *store.Store
	Cache     *cache.Cache
	Audit     *audit.Log
	PingGIS   Pinger
	RateStore string
	Features  Features
	StartedAt time.Time
	Now       func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
