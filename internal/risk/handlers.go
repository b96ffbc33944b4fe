package risk

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/techdengue/analytics/internal/listing"
	"github.com/techdengue/analytics/internal/sources"
	"github.com/techdengue/analytics/internal/store"
	"github.com/techdengue/analytics/internal/utils"
)

func validate(req Request) *listing.ParamError {
	switch {
	case strings.TrimSpace(req.Municipio) == "":
		return &listing.ParamError{Param: "municipio", Message: "is required"}
	case req.CasosRecentes < 0:
		return &listing.ParamError{Param: "casos_recentes", Message: "must not be negative"}
	case req.CasosAnoAnterior < 0:
		return &listing.ParamError{Param: "casos_ano_anterior", Message: "must not be negative"}
	case req.Populacao != nil && *req.Populacao < 0:
		return &listing.ParamError{Param: "populacao", Message: "must not be negative"}
	case req.UmidadeMedia != nil && (*req.UmidadeMedia < 0 || *req.UmidadeMedia > 100):
		return &listing.ParamError{Param: "umidade_media", Message: "must be between 0 and 100"}
	case req.CoberturaSaneamento != nil && (*req.CoberturaSaneamento < 0 || *req.CoberturaSaneamento > 100):
		return &listing.ParamError{Param: "cobertura_saneamento", Message: "must be between 0 and 100"}
	}
	return nil
}

// AnalyzeHandler handles POST /api/v1/risk/analyze.
func (s *Service) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		utils.WriteError(w, r, http.StatusBadRequest, "invalid_json", "Invalid JSON body", nil)
		return
	}
	req.CodigoIBGE = sources.CleanIBGE(req.CodigoIBGE)
	if perr := validate(req); perr != nil {
		listing.BadParam(w, r, perr)
		return
	}
	resp, err := s.Analyze(r.Context(), req)
	if err != nil {
		utils.WriteError(w, r, http.StatusInternalServerError, "analysis_failed", err.Error(), nil)
		return
	}
	utils.WriteJSON(w, resp)
}

// MunicipioHandler handles GET /api/v1/risk/municipio/{ibge}.
func (s *Service) MunicipioHandler(w http.ResponseWriter, r *http.Request) {
	code := sources.CleanIBGE(chi.URLParam(r, "ibge"))
	if len(code) != 6 && len(code) != 7 {
		listing.BadParam(w, r, &listing.ParamError{Param: "ibge", Message: "must be a 6 or 7 digit IBGE code"})
		return
	}
	resp, err := s.Municipio(r.Context(), code)
	switch {
	case errors.Is(err, ErrUnknownMunicipio):
		utils.WriteError(w, r, http.StatusNotFound, "not_found", "No municipality with IBGE code "+code, nil)
	case err != nil:
		listing.LoadError(w, r, store.DimMunicipios, err)
	default:
		utils.WriteJSON(w, resp)
	}
}

// DashboardHandler handles GET /api/v1/risk/dashboard.
func (s *Service) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	n, ok, err := listing.IntParam(r, "limit")
	if err != nil {
		listing.BadParam(w, r, err)
		return
	}
	if !ok || n <= 0 {
		n = DefaultDashboardSize
	}
	if n > MaxDashboardSize {
		n = MaxDashboardSize
	}
	out, err := s.Dashboard(r.Context(), n)
	if err != nil {
		listing.LoadError(w, r, store.DimMunicipios, err)
		return
	}
	utils.WriteJSON(w, out)
}
