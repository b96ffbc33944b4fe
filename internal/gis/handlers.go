package gis

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/techdengue/analytics/internal/frame"
	"github.com/techdengue/analytics/internal/listing"
	"github.com/techdengue/analytics/internal/utils"
)

// Provenance headers.
const (
	HeaderDataAvailable = "X-TechDengue-Data-Available"
	HeaderDataSource    = "X-TechDengue-Data-Source"
	HeaderReason        = "X-TechDengue-Reason"
)

// Service holds the fallback chain and the failure policy.
type Service struct {
	Chain *Chain
	// Strict answers 503 instead of an empty 200 when no source is available.
	Strict bool
}

func (s *Service) strict(r *http.Request) bool {
	raw := strings.TrimSpace(r.URL.Query().Get("strict"))
	if raw == "" {
		return s.Strict
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return s.Strict
	}
	return v
}

func (s *Service) serve(w http.ResponseWriter, r *http.Request, t Table, ids []string) {
	p, err := listing.Parse(r)
	if err != nil {
		listing.BadParam(w, r, err)
		return
	}
	// Sources are asked for enough rows to serve the requested page.
	res := s.Chain.Fetch(r.Context(), t, Query{Limit: p.Offset + p.Limit, ActivityIDs: ids})

	w.Header().Set(HeaderDataSource, res.Source)
	if res.Reason != "" {
		w.Header().Set(HeaderReason, sanitizeHeader(res.Reason))
	}
	if !res.Available() {
		w.Header().Set(HeaderDataAvailable, "false")
		if s.strict(r) {
			utils.WriteError(w, r, http.StatusServiceUnavailable, "gis_unavailable",
				"GIS data is unavailable", utils.ErrorBody{"reason": res.Reason})
			return
		}
		listing.Respond(w, r, frame.New(), p, t.Artifact())
		return
	}
	w.Header().Set(HeaderDataAvailable, "true")
	listing.Respond(w, r, res.Frame, p, t.Artifact())
}

// Banco handles GET /gis/banco.
func (s *Service) Banco(w http.ResponseWriter, r *http.Request) {
	s.serve(w, r, TableBanco, nil)
}

// POIs handles GET /gis/pois, optionally restricted by id_atividade=a,b.
func (s *Service) POIs(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for _, id := range strings.Split(r.URL.Query().Get("id_atividade"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	s.serve(w, r, TablePOIs, ids)
}

func sanitizeHeader(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e {
			return ' '
		}
		return r
	}, s)
	if len(s) > 512 {
		s = s[:512]
	}
	return s
}
