// Package risk classifies the dengue risk of a municipality from
// epidemiological, climatic and demographic inputs.
package risk

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"github.com/techdengue/analytics/internal/cache"
	"github.com/techdengue/analytics/internal/frame"
	"github.com/techdengue/analytics/internal/pipeline"
	"github.com/techdengue/analytics/internal/provider"
	"github.com/techdengue/analytics/internal/sources"
	"github.com/techdengue/analytics/internal/store"
	"github.com/techdengue/analytics/internal/weather"
)

const (
	CacheTTL = time.Hour

	DefaultDashboardSize = 10
	MaxDashboardSize     = 50
)

var ErrUnknownMunicipio = errors.New("municipality not found")

// Loader reads an artifact. *store.Store satisfies it.
type Loader interface {
	Load(ctx context.Context, name string) (*frame.Frame, error)
}

// Service runs analyses for the HTTP routes.
type Service struct {
	// Analyzer serves POST /analyze and /municipio. The dashboard always
	// uses Rules so a page of municipalities costs no provider calls.
	Analyzer Analyzer
	Rules    Analyzer
	Store    Loader
	// Weather, when set, supplies temperature and humidity for dictionary cities.
	Weather  *weather.Service
	Cache    *cache.Cache
	CacheTTL time.Duration
}

func Init(cfg provider.Config, st Loader, w *weather.Service, c *cache.Cache) *Service {
	s := &Service{Analyzer: Rules{}, Rules: Rules{}, Store: st, Weather: w, Cache: c, CacheTTL: CacheTTL}
	if cfg.GroqKey != "" {
		s.Analyzer = NewLLM(cfg.GroqKey, cfg.GroqModel)
	} else {
		log.Printf("[risk] %v", provider.ErrMissingGroqKey)
	}
	log.Printf("Risk module initialized (%s)", s.Analyzer.Name())
	return s
}

type cacheKey struct {
	Municipio  string `json:"municipio"`
	CodigoIBGE string `json:"codigo_ibge"`
}

// Analyze runs the configured analyzer, cached per (municipality, code).
func (s *Service) Analyze(ctx context.Context, req Request) (Response, error) {
	return s.analyzeWith(ctx, s.Analyzer, req)
}

func (s *Service) analyzeWith(ctx context.Context, a Analyzer, req Request) (Response, error) {
	key := cacheKey{Municipio: sources.FoldASCII(req.Municipio), CodigoIBGE: req.CodigoIBGE}
	return cache.Remember(ctx, s.Cache, "risk:"+a.Name(), key, s.CacheTTL, func() (Response, error) {
		return a.Analyze(ctx, req)
	})
}

// history holds the yearly totals of one municipality.
type history struct {
	name       string
	code       string
	population *float64
	recent     int
	previous   int
}

// histories builds one entry per dimension row from the dengue history,
// comparing the latest year with the one before it.
func (s *Service) histories(ctx context.Context) ([]history, int, error) {
	dim, err := s.Store.Load(ctx, store.DimMunicipios)
	if err != nil {
		return nil, 0, err
	}
	byYear := map[string]map[int]int{}
	latest := 0
	if dengue, err := s.Store.Load(ctx, store.FactDengue); err == nil {
		for i := 0; i < dengue.Len(); i++ {
			row := dengue.Row(i)
			code6 := row.String(pipeline.ColCodigoIBGE6)
			year := int(row.Float(pipeline.ColAno))
			if code6 == "" || year == 0 {
				continue
			}
			if byYear[code6] == nil {
				byYear[code6] = map[int]int{}
			}
			byYear[code6][year] += int(row.Float(pipeline.ColTotalCasos))
			if year > latest {
				latest = year
			}
		}
	}

	out := make([]history, 0, dim.Len())
	for i := 0; i < dim.Len(); i++ {
		row := dim.Row(i)
		code := row.String(pipeline.ColCodigoIBGE)
		h := history{name: row.String(pipeline.ColMunicipio), code: code}
		if pop := row.Float(pipeline.ColPopulacao); pop > 0 {
			h.population = &pop
		}
		if years := byYear[sources.IBGE6(code)]; years != nil {
			h.recent, h.previous = years[latest], years[latest-1]
		}
		out = append(out, h)
	}
	return out, latest, nil
}

// request turns a history entry into an analysis request, adding current
// weather when the city is in the dictionary.
func (s *Service) request(ctx context.Context, h history) Request {
	req := Request{
		Municipio:        h.name,
		CodigoIBGE:       h.code,
		CasosRecentes:    h.recent,
		CasosAnoAnterior: h.previous,
		Populacao:        h.population,
	}
	if s.Weather != nil {
		if cur, err := s.Weather.Current(ctx, h.name); err == nil {
			t, u := cur.Temperatura, cur.Umidade
			req.TemperaturaMedia, req.UmidadeMedia = &t, &u
		}
	}
	return req
}

// Municipio analyzes one municipality from the stored datasets.
func (s *Service) Municipio(ctx context.Context, code string) (Response, error) {
	hs, _, err := s.histories(ctx)
	if err != nil {
		return Response{}, err
	}
	for _, h := range hs {
		if h.code == code || (len(code) == 6 && sources.IBGE6(h.code) == code) {
			return s.Analyze(ctx, s.request(ctx, h))
		}
	}
	return Response{}, ErrUnknownMunicipio
}

// Dashboard analyzes the n municipalities with the most cases in the latest year.
func (s *Service) Dashboard(ctx context.Context, n int) (Dashboard, error) {
	hs, _, err := s.histories(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	sort.SliceStable(hs, func(i, j int) bool {
		if hs[i].recent != hs[j].recent {
			return hs[i].recent > hs[j].recent
		}
		return hs[i].code < hs[j].code
	})
	if n > len(hs) {
		n = len(hs)
	}

	out := Dashboard{PorNivel: map[string]int{}, Items: make([]Response, 0, n)}
	for _, lvl := range []string{weather.LevelLow, weather.LevelMedium, weather.LevelHigh, weather.LevelCritical} {
		out.PorNivel[lvl] = 0
	}
	for _, h := range hs[:n] {
		resp, err := s.analyzeWith(ctx, s.Rules, s.request(ctx, h))
		if err != nil {
			log.Printf("[risk] dashboard %s: %v", h.code, err)
			continue
		}
		out.PorNivel[resp.NivelRisco]++
		out.Items = append(out.Items, resp)
	}
	out.Total = len(out.Items)
	out.Alerta = EpidemicAlert(out.Items)
	return out, nil
}
