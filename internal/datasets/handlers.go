package datasets

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/techdengue/analytics/internal/cache"
	"github.com/techdengue/analytics/internal/frame"
	"github.com/techdengue/analytics/internal/listing"
	"github.com/techdengue/analytics/internal/pipeline"
	"github.com/techdengue/analytics/internal/sources"
	"github.com/techdengue/analytics/internal/store"
	"github.com/techdengue/analytics/internal/utils"
)

var errUnknownMunicipio = errors.New("municipality not found")

func contains(haystack, needle string) bool {
	return strings.Contains(sources.FoldASCII(haystack), sources.FoldASCII(needle))
}

// activityFilter collects the /facts filters.
type activityFilter struct {
	CodigoIBGE string      `json:"codigo_ibge,omitempty"`
	Atividade  string      `json:"atividade,omitempty"`
	Municipio  string      `json:"municipio,omitempty"`
	Start      *frame.Date `json:"start,omitempty"`
	End        *frame.Date `json:"end,omitempty"`
}

func parseActivityFilter(r *http.Request) (activityFilter, error) {
	q := r.URL.Query()
	f := activityFilter{
		CodigoIBGE: sources.CleanIBGE(q.Get("codigo_ibge")),
		Atividade:  strings.TrimSpace(q.Get("nomenclatura_atividade")),
		Municipio:  strings.TrimSpace(q.Get("municipio")),
	}
	var err error
	if f.Start, err = listing.DateParam(r, "start_date"); err != nil {
		return f, err
	}
	if f.End, err = listing.DateParam(r, "end_date"); err != nil {
		return f, err
	}
	return f, nil
}

// apply filters in declared order: code, activity name, municipality, date range.
func (af activityFilter) apply(f *frame.Frame) *frame.Frame {
	return f.Filter(func(r frame.Row) bool {
		if af.CodigoIBGE != "" && !matchIBGE(r.String(pipeline.ColCodigoIBGE), af.CodigoIBGE) {
			return false
		}
		if af.Atividade != "" && !contains(r.String(pipeline.ColAtividade), af.Atividade) {
			return false
		}
		if af.Municipio != "" && !contains(r.String(pipeline.ColMunicipio), af.Municipio) {
			return false
		}
		if af.Start != nil || af.End != nil {
			d, ok := r.Date(pipeline.ColDataMap)
			if !ok || !listing.InRange(d, af.Start, af.End) {
				return false
			}
		}
		return true
	})
}

// matchIBGE compares a stored 7-digit code against a 6- or 7-digit query.
func matchIBGE(stored, query string) bool {
	if len(query) == 6 {
		return sources.IBGE6(stored) == query
	}
	return stored == query
}

// ListFacts handles GET /facts.
func (s *Service) ListFacts(w http.ResponseWriter, r *http.Request) {
	p, err := listing.Parse(r)
	if err != nil {
		listing.BadParam(w, r, err)
		return
	}
	af, err := parseActivityFilter(r)
	if err != nil {
		listing.BadParam(w, r, err)
		return
	}
	f, err := s.Store.Load(r.Context(), store.FactActivities)
	if err != nil {
		listing.LoadError(w, r, store.FactActivities, err)
		return
	}
	listing.Respond(w, r, af.apply(f), p, store.FactActivities)
}

func summarize(f *frame.Frame, keyCol string) (SummaryRow, []SummaryRow) {
	groups := map[string]*SummaryRow{}
	munis := map[string]map[string]bool{}
	var first, last frame.Date
	var seenDate bool
	total := SummaryRow{Key: "total"}
	allMunis := map[string]bool{}

	for i := 0; i < f.Len(); i++ {
		row := f.Row(i)
		key := row.String(keyCol)
		if key == "" {
			continue
		}
		g, ok := groups[key]
		if !ok {
			g = &SummaryRow{Key: key}
			groups[key] = g
			munis[key] = map[string]bool{}
		}
		pois, dev, ha := row.Float(pipeline.ColPOIs), row.Float(pipeline.ColDevolutivas), row.Float(pipeline.ColHectares)
		code := row.String(pipeline.ColCodigoIBGE)
		for _, acc := range []*SummaryRow{g, &total} {
			acc.Atividades++
			acc.POIs += pois
			acc.Devolutivas += dev
			acc.Hectares += ha
		}
		munis[key][code] = true
		allMunis[code] = true
		if d, ok := row.Date(pipeline.ColDataMap); ok {
			ds := d.String()
			if g.PrimeiraAtividade == "" || ds < g.PrimeiraAtividade {
				g.PrimeiraAtividade = ds
			}
			if ds > g.UltimaAtividade {
				g.UltimaAtividade = ds
			}
			if !seenDate || d.Before(first) {
				first = d
			}
			if !seenDate || d.After(last) {
				last = d
			}
			seenDate = true
		}
	}

	items := make([]SummaryRow, 0, len(groups))
	for k, g := range groups {
		g.Municipios = len(munis[k])
		items = append(items, *g)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Hectares != items[j].Hectares {
			return items[i].Hectares > items[j].Hectares
		}
		return items[i].Key < items[j].Key
	})
	total.Municipios = len(allMunis)
	if seenDate {
		total.PrimeiraAtividade, total.UltimaAtividade = first.String(), last.String()
	}
	return total, items
}

// FactsSummary handles GET /facts/summary.
func (s *Service) FactsSummary(w http.ResponseWriter, r *http.Request) {
	groupBy := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("group_by")))
	if groupBy == "" {
		groupBy = GroupMunicipio
	}
	keyCol := map[string]string{
		GroupMunicipio:  pipeline.ColMunicipio,
		GroupCodigoIBGE: pipeline.ColCodigoIBGE,
		GroupAtividade:  pipeline.ColAtividade,
	}[groupBy]
	if keyCol == "" {
		listing.BadParam(w, r, &listing.ParamError{Param: "group_by", Message: "must be municipio, codigo_ibge or atividade"})
		return
	}
	p, err := listing.Parse(r)
	if err != nil {
		listing.BadParam(w, r, err)
		return
	}
	af, err := parseActivityFilter(r)
	if err != nil {
		listing.BadParam(w, r, err)
		return
	}

	args := map[string]any{"group_by": groupBy, "filter": af}
	resp, err := cache.Remember(r.Context(), s.Cache, "facts_summary", args, s.CacheTTL, func() (SummaryResponse, error) {
		f, err := s.Store.Load(r.Context(), store.FactActivities)
		if err != nil {
			return SummaryResponse{}, err
		}
		totals, items := summarize(af.apply(f), keyCol)
		return SummaryResponse{GroupBy: groupBy, Totals: totals, Groups: len(items), Items: items}, nil
	})
	if err != nil {
		listing.LoadError(w, r, store.FactActivities, err)
		return
	}
	if p.Offset >= len(resp.Items) {
		resp.Items = []SummaryRow{}
	} else {
		resp.Items = resp.Items[p.Offset:min(p.Offset+p.Limit, len(resp.Items))]
	}
	utils.WriteJSON(w, resp)
}

// ListDengue handles GET /dengue.
func (s *Service) ListDengue(w http.ResponseWriter, r *http.Request) {
	p, err := listing.Parse(r)
	if err != nil {
		listing.BadParam(w, r, err)
		return
	}
	ano, hasAno, err := listing.IntParam(r, "ano")
	if err != nil {
		listing.BadParam(w, r, err)
		return
	}
	code := sources.IBGE6(sources.CleanIBGE(r.URL.Query().Get("codigo_ibge")))
	muni := strings.TrimSpace(r.URL.Query().Get("municipio"))

	f, err := s.Store.Load(r.Context(), store.FactDengue)
	if err != nil {
		listing.LoadError(w, r, store.FactDengue, err)
		return
	}
	f = f.Filter(func(row frame.Row) bool {
		if code != "" && row.String(pipeline.ColCodigoIBGE6) != code {
			return false
		}
		if hasAno && int(row.Float(pipeline.ColAno)) != ano {
			return false
		}
		if muni != "" && !contains(row.String(pipeline.ColMunicipio), muni) {
			return false
		}
		return true
	})
	if p.SortBy == "" {
		p.SortBy = pipeline.ColAno
	}
	listing.Respond(w, r, f, p, store.FactDengue)
}

// ListMunicipios handles GET /municipios with an optional q substring search.
func (s *Service) ListMunicipios(w http.ResponseWriter, r *http.Request) {
	p, err := listing.Parse(r)
	if err != nil {
		listing.BadParam(w, r, err)
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	meso := strings.TrimSpace(r.URL.Query().Get("mesorregiao"))

	f, err := s.Store.Load(r.Context(), store.DimMunicipios)
	if err != nil {
		listing.LoadError(w, r, store.DimMunicipios, err)
		return
	}
	f = f.Filter(func(row frame.Row) bool {
		if q != "" && !contains(row.String(pipeline.ColMunicipio), q) {
			return false
		}
		if meso != "" && !contains(row.String(pipeline.ColMesorregiao), meso) {
			return false
		}
		return true
	})
	if r.URL.Query().Get("sort_by") == "" {
		p.SortBy, p.Desc = pipeline.ColMunicipio, false
	}
	listing.Respond(w, r, f, p, store.DimMunicipios)
}

// GetMunicipio handles GET /municipios/{ibge}, accepting 6- or 7-digit codes.
func (s *Service) GetMunicipio(w http.ResponseWriter, r *http.Request) {
	code := sources.CleanIBGE(chi.URLParam(r, "ibge"))
	if len(code) != 6 && len(code) != 7 {
		listing.BadParam(w, r, &listing.ParamError{Param: "ibge", Message: "must be a 6 or 7 digit IBGE code"})
		return
	}

	out, err := cache.Remember(r.Context(), s.Cache, "municipio", code, s.CacheTTL, func() (Municipio, error) {
		return s.municipio(r, code)
	})
	switch {
	case errors.Is(err, errUnknownMunicipio):
		utils.WriteError(w, r, http.StatusNotFound, "not_found", "No municipality with IBGE code "+code, nil)
	case err != nil:
		listing.LoadError(w, r, store.DimMunicipios, err)
	default:
		utils.WriteJSON(w, out)
	}
}

func (s *Service) municipio(r *http.Request, code string) (Municipio, error) {
	dim, err := s.Store.Load(r.Context(), store.DimMunicipios)
	if err != nil {
		return Municipio{}, err
	}
	match := dim.Filter(func(row frame.Row) bool { return matchIBGE(row.String(pipeline.ColCodigoIBGE), code) })
	if match.Len() == 0 {
		return Municipio{}, errUnknownMunicipio
	}
	out := Municipio{Dimension: listing.Items(match.Slice(0, 1))[0], Dengue: []map[string]any{}}
	code6 := sources.IBGE6(match.Row(0).String(pipeline.ColCodigoIBGE))

	if dengue, err := s.Store.Load(r.Context(), store.FactDengue); err == nil {
		rows := dengue.Filter(func(row frame.Row) bool { return row.String(pipeline.ColCodigoIBGE6) == code6 })
		out.Dengue = listing.Items(rows.SortBy(pipeline.ColAno, false))
	}
	if facts, err := s.Store.Load(r.Context(), store.FactActivities); err == nil {
		rows := facts.Filter(func(row frame.Row) bool { return sources.IBGE6(row.String(pipeline.ColCodigoIBGE)) == code6 })
		if rows.Len() > 0 {
			total, _ := summarize(rows, pipeline.ColCodigoIBGE)
			total.Key = match.Row(0).String(pipeline.ColCodigoIBGE)
			out.Atividade = &total
		}
	}
	return out, nil
}

// ListGold handles GET /gold/analise.
func (s *Service) ListGold(w http.ResponseWriter, r *http.Request) {
	p, err := listing.Parse(r)
	if err != nil {
		listing.BadParam(w, r, err)
		return
	}
	af, err := parseActivityFilter(r)
	if err != nil {
		listing.BadParam(w, r, err)
		return
	}
	f, err := s.Store.Load(r.Context(), store.GoldAnalise)
	if err != nil {
		listing.LoadError(w, r, store.GoldAnalise, err)
		return
	}
	f = f.Filter(func(row frame.Row) bool {
		if af.CodigoIBGE != "" && !matchIBGE(row.String(pipeline.ColCodigoIBGE), af.CodigoIBGE) {
			return false
		}
		if af.Municipio != "" && !contains(row.String(pipeline.ColMunicipio), af.Municipio) {
			return false
		}
		if af.Start != nil || af.End != nil {
			d, ok := row.Date(pipeline.ColCompetencia)
			if !ok || !listing.InRange(d, af.Start, af.End) {
				return false
			}
		}
		return true
	})
	if p.SortBy == "" {
		p.SortBy = pipeline.ColCompetencia
	}
	listing.Respond(w, r, f, p, store.GoldAnalise)
}
