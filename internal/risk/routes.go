package risk

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func SetupRoutes(s *Service) http.Handler {
	r := chi.NewRouter()

	r.Post("/analyze", s.AnalyzeHandler)
	r.Get("/municipio/{ibge}", s.MunicipioHandler)
	r.Get("/dashboard", s.DashboardHandler)

	return r
}
