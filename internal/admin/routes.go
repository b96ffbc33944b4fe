package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/techdengue/analytics/internal/auth"
	"github.com/techdengue/analytics/internal/middleware"
)

// SetupRoutes mounts /cache, /audit and /keys. Every route needs an admin key.
func SetupRoutes(s *Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequireTier(auth.TierAdmin))

	r.Route("/cache", func(r chi.Router) {
		r.Get("/stats", s.CacheStats)
		r.Post("/clear", s.CacheClear)
		r.Delete("/", s.CacheClear)
	})
	r.Route("/audit", func(r chi.Router) {
		r.Get("/stats", s.AuditStats)
		r.Get("/logs", s.AuditLogs)
	})
	r.Get("/ratelimit", s.RateLimits)
	if s.Keys != nil {
		r.Mount("/keys", auth.SetupRoutes(s.Keys))
	}

	return r
}
