package health

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Paths are the top-level paths SetupRoutes serves, for callers that share
// the root with another mounted router.
var Paths = []string{"/health", "/status", "/monitor", "/quality", "/datasets"}

func SetupRoutes(s *Service) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.Health)
	r.Get("/status", s.Status)
	r.Get("/monitor", s.Monitor)
	r.Get("/quality", s.Quality)
	r.Get("/datasets", s.Catalog)

	return r
}
