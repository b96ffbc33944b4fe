package weather

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/techdengue/analytics/internal/utils"
)

func (s *Service) writeLookupError(w http.ResponseWriter, r *http.Request, city string, err error) {
	if errors.Is(err, ErrUnknownCity) {
		utils.WriteError(w, r, http.StatusNotFound, "city_not_found",
			"Cidade não encontrada no dicionário", utils.ErrorBody{
				"cidade":      city,
				"disponiveis": CityKeys(),
			})
		return
	}
	utils.WriteError(w, r, http.StatusInternalServerError, "weather_error", err.Error(), nil)
}

// ListAll handles GET /api/v1/weather.
func (s *Service) ListAll(w http.ResponseWriter, r *http.Request) {
	items := s.All(r.Context())
	utils.WriteJSON(w, map[string]any{
		"total":   len(items),
		"live":    s.Live(),
		"cidades": items,
	})
}

// CityWeather handles GET /api/v1/weather/{city}.
func (s *Service) CityWeather(w http.ResponseWriter, r *http.Request) {
	city := chi.URLParam(r, "city")
	cur, err := s.Current(r.Context(), city)
	if err != nil {
		s.writeLookupError(w, r, city, err)
		return
	}
	utils.WriteJSON(w, cur)
}

// CityRisk handles GET /api/v1/weather/{city}/risk.
func (s *Service) CityRisk(w http.ResponseWriter, r *http.Request) {
	city := chi.URLParam(r, "city")
	risk, err := s.Risk(r.Context(), city)
	if err != nil {
		s.writeLookupError(w, r, city, err)
		return
	}
	utils.WriteJSON(w, risk)
}

// ListCities handles GET /api/v1/weather/cities.
func (s *Service) ListCities(w http.ResponseWriter, r *http.Request) {
	out := make([]City, 0, len(Cities))
	for _, k := range CityKeys() {
		out = append(out, Cities[k])
	}
	utils.WriteJSON(w, map[string]any{"total": len(out), "items": out})
}
