package gis

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func SetupRoutes(s *Service) http.Handler {
	r := chi.NewRouter()
	r.Get("/banco", s.Banco)
	r.Get("/pois", s.POIs)
	return r
}
