package weather

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func SetupRoutes(s *Service) http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.ListAll)
	r.Get("/cities", s.ListCities)
	r.Get("/{city}", s.CityWeather)
	r.Get("/{city}/risk", s.CityRisk)

	return r
}
