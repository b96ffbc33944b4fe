package datasets

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SetupRoutes mounts the list endpoints at the router root.
func SetupRoutes(s *Service) http.Handler {
	r := chi.NewRouter()

	r.Get("/facts", s.ListFacts)
	r.Get("/facts/summary", s.FactsSummary)
	r.Get("/dengue", s.ListDengue)
	r.Get("/municipios", s.ListMunicipios)
	r.Get("/municipios/{ibge}", s.GetMunicipio)
	r.Get("/gold/analise", s.ListGold)

	return r
}
