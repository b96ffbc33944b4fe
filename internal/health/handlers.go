package health

import (
	"context"
	"fmt"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/techdengue/analytics/internal/pipeline"
	"github.com/techdengue/analytics/internal/store"
	"github.com/techdengue/analytics/internal/utils"
)

// Quality penalties.
const (
	penaltyIntegrity   = 15
	penaltySchema      = 10
	penaltyMissing     = 10
	penaltyDuplicates  = 20
	penaltyReconciling = 20
)

func (s *Service) datasets(ctx context.Context) (map[string]DatasetState, int) {
	journal, err := s.Store.Journal()
	if err != nil {
		log.Printf("[health] read journal: %v", err)
	}
	available := map[string]bool{}
	for _, name := range s.Store.Available(ctx) {
		available[name] = true
	}
	out := make(map[string]DatasetState, len(store.Artifacts))
	for _, name := range store.Artifacts {
		st := DatasetState{Available: available[name]}
		if m, ok := journal[name]; ok {
			last := m.LastSync
			st.Rows, st.LastSync = m.RowCount, &last
			st.Fresh = s.Store.IsFresh(name)
		}
		out[name] = st
	}
	return out, len(available)
}

// Health handles GET /health: 200 when at least one dataset can be served.
func (s *Service) Health(w http.ResponseWriter, r *http.Request) {
	ds, n := s.datasets(r.Context())
	resp := HealthResponse{
		Version:           Version,
		Datasets:          ds,
		DatasetsAvailable: n,
		Cache:             "disabled",
	}
	if s.Cache != nil {
		resp.Cache = s.Cache.Backend()
	}
	if s.PingGIS != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		err := s.PingGIS(ctx)
		cancel()
		resp.DBConnected = err == nil
		if err != nil {
			resp.Issues = append(resp.Issues, "GIS database unreachable: "+err.Error())
		}
	}
	for _, name := range pipeline.Artifacts {
		if !ds[name].Available {
			resp.Issues = append(resp.Issues, "dataset "+name+" is not available")
		}
	}
	resp.OK = n > 0
	status := http.StatusOK
	if !resp.OK {
		status = http.StatusServiceUnavailable
	}
	utils.WriteJSONStatus(w, status, resp)
}

// Status handles GET /status.
func (s *Service) Status(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	resp := StatusResponse{
		Version:        Version,
		StartedAt:      s.StartedAt.UTC(),
		UptimeSeconds:  int64(now.Sub(s.StartedAt) / time.Second),
		DatasetSource:  "local:" + s.Store.Dir(),
		CacheBackend:   "disabled",
		RateLimitStore: s.RateStore,
		Features:       s.Features,
	}
	if remote := s.Store.Remote(); remote != "" {
		resp.DatasetSource = "remote:" + remote
	}
	if s.Cache != nil {
		resp.CacheBackend = s.Cache.Backend()
		resp.Cache = s.Cache.Stats()
	}
	utils.WriteJSON(w, resp)
}

// Monitor handles GET /monitor, the operations dashboard payload.
func (s *Service) Monitor(w http.ResponseWriter, r *http.Request) {
	ds, _ := s.datasets(r.Context())
	resp := MonitorResponse{
		GeneratedAt: s.now().UTC(),
		Datasets:    ds,
		FileCache:   s.Store.Cache().Stats(),
		Quality:     s.quality(r.Context()).Score,
	}
	if s.Audit != nil {
		resp.Requests = s.Audit.Stats(s.now(), time.Hour, 10)
	}
	if s.Cache != nil {
		resp.Cache = s.Cache.Stats()
	}
	utils.WriteJSON(w, resp)
}

// Quality handles GET /quality.
func (s *Service) Quality(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, s.quality(r.Context()))
}

func closeEnough(a, b float64) bool {
	return math.Abs(a-b) <= 1e-6*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

func (s *Service) quality(ctx context.Context) QualityReport {
	rep := QualityReport{Score: 100, Checks: []Check{}, Integrity: []store.Integrity{}}
	add := func(c Check) {
		if !c.Passed {
			rep.Score -= c.Penalty
		}
		rep.Checks = append(rep.Checks, c)
	}

	if s.Store.Remote() == "" {
		journal, _ := s.Store.Journal()
		for _, name := range store.Artifacts {
			if _, ok := journal[name]; !ok {
				continue
			}
			in := s.Store.Verify(name)
			rep.Integrity = append(rep.Integrity, in)
			add(Check{
				Name: "integrity:" + name, Passed: in.OK(), Penalty: penaltyIntegrity,
				Detail: fmt.Sprintf("rows %d/%d, hash match %t", in.FileRows, in.JournalRows, in.HashOK),
			})
			if !in.SchemaOK {
				add(Check{Name: "schema:" + name, Passed: false, Penalty: penaltySchema, Detail: "schema version differs; rebuild the store"})
			}
		}
	}

	facts, ferr := s.Store.Load(ctx, store.FactActivities)
	gold, gerr := s.Store.Load(ctx, store.GoldAnalise)
	for _, c := range []struct {
		name string
		err  error
	}{{store.FactActivities, ferr}, {store.GoldAnalise, gerr}} {
		if c.err != nil {
			add(Check{Name: "available:" + c.name, Passed: false, Penalty: penaltyMissing, Detail: c.err.Error()})
		}
	}
	if ferr == nil {
		dups := facts.DuplicateKeys(pipeline.CanonicalKey...)
		add(Check{Name: "canonical_key_unique", Passed: dups == 0, Penalty: penaltyDuplicates, Detail: fmt.Sprintf("%d duplicate keys", dups)})
	}
	if ferr == nil && gerr == nil {
		pairs := []struct{ fact, gold string }{
			{pipeline.ColPOIs, pipeline.ColTotalPOIs},
			{pipeline.ColDevolutivas, pipeline.ColTotalDevolutivas},
			{pipeline.ColHectares, pipeline.ColTotalHectares},
		}
		passed := closeEnough(float64(facts.Len()), gold.SumColumn(pipeline.ColTotalAtividades))
		detail := fmt.Sprintf("activities %d vs %.0f", facts.Len(), gold.SumColumn(pipeline.ColTotalAtividades))
		for _, p := range pairs {
			a, b := facts.SumColumn(p.fact), gold.SumColumn(p.gold)
			if !closeEnough(a, b) {
				passed = false
				detail += fmt.Sprintf("; %s %.2f vs %.2f", p.fact, a, b)
			}
		}
		add(Check{Name: "gold_reconciles_with_facts", Passed: passed, Penalty: penaltyReconciling, Detail: detail})
	}
	rep.Score = max(rep.Score, 0)
	return rep
}

// Catalog handles GET /datasets.
func (s *Service) Catalog(w http.ResponseWriter, r *http.Request) {
	ds, _ := s.datasets(r.Context())
	journal, _ := s.Store.Journal()
	items := make([]CatalogEntry, 0, len(store.Artifacts))
	for _, name := range store.Artifacts {
		e := CatalogEntry{
			Name:        name,
			Description: descriptions[name].text,
			Endpoint:    descriptions[name].endpoint,
			Available:   ds[name].Available,
			Fresh:       ds[name].Fresh,
		}
		if m, ok := journal[name]; ok {
			last := m.LastSync
			e.Rows, e.Columns, e.LastSync, e.Hash, e.SchemaVersion = m.RowCount, m.Columns, &last, m.Hash, m.SchemaVersion
		}
		items = append(items, e)
	}
	utils.WriteJSON(w, map[string]any{"total": len(items), "items": items})
}
