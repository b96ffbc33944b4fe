package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techdengue/analytics/internal/audit"
	"github.com/techdengue/analytics/internal/cache"
	"github.com/techdengue/analytics/internal/frame"
	"github.com/techdengue/analytics/internal/health"
	"github.com/techdengue/analytics/internal/pipeline"
	"github.com/techdengue/analytics/internal/store"
)

func writeStore(t *testing.T, st *store.Store) (facts *frame.Frame) {
	t.Helper()
	facts = frame.FromRecords([]string{pipeline.ColCodigoIBGE, pipeline.ColMunicipio, pipeline.ColDataMap, pipeline.ColAtividade, pipeline.ColPOIs, pipeline.ColDevolutivas, pipeline.ColHectares},
		[]map[string]any{
			{pipeline.ColCodigoIBGE: "3100104", pipeline.ColMunicipio: "A", pipeline.ColDataMap: frame.NewDate(2024, 3, 1), pipeline.ColAtividade: "Vistoria", pipeline.ColPOIs: 10.0, pipeline.ColDevolutivas: 2.0, pipeline.ColHectares: 10.0},
			{pipeline.ColCodigoIBGE: "3100104", pipeline.ColMunicipio: "A", pipeline.ColDataMap: frame.NewDate(2024, 3, 9), pipeline.ColAtividade: "Vistoria", pipeline.ColPOIs: 3.0, pipeline.ColDevolutivas: 1.0, pipeline.ColHectares: 4.0},
		})
	_, err := st.Write(store.FactActivities, facts)
	require.NoError(t, err)
	_, err = st.Write(store.GoldAnalise, pipeline.Gold(facts, nil, nil))
	require.NoError(t, err)
	return facts
}

func serve(t *testing.T, svc *health.Service, path string, dst any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	health.SetupRoutes(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if dst != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
	}
	return rec.Code
}

// TestHealth_EmptyStoreIs503 reports unavailable when nothing was built.
func TestHealth_EmptyStoreIs503(t *testing.T) {
	svc := &health.Service{Store: store.New(store.Options{Dir: t.TempDir()})}
	var resp health.HealthResponse
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, svc, "/health", &resp))
	assert.False(t, resp.OK)
	assert.Equal(t, 0, resp.DatasetsAvailable)
	assert.NotEmpty(t, resp.Issues)
	assert.Equal(t, "disabled", resp.Cache)
}

func TestHealth_OK(t *testing.T) {
	st := store.New(store.Options{Dir: t.TempDir(), FreshTTL: time.Hour})
	writeStore(t, st)
	svc := &health.Service{
		Store:   st,
		Cache:   cache.New(cache.NewMemory(nil), time.Minute),
		PingGIS: func(context.Context) error { return errors.New("connection refused") },
	}
	var resp health.HealthResponse
	assert.Equal(t, http.StatusOK, serve(t, svc, "/health", &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, 2, resp.DatasetsAvailable)
	assert.False(t, resp.DBConnected)
	assert.Equal(t, "memory", resp.Cache)
	assert.True(t, resp.Datasets[store.GoldAnalise].Fresh)
	assert.Equal(t, 2, resp.Datasets[store.FactActivities].Rows)
}

// TestQuality_DetectsDrift lowers the score when a file no longer matches its journal.
func TestQuality_DetectsDrift(t *testing.T) {
	st := store.New(store.Options{Dir: t.TempDir()})
	facts := writeStore(t, st)

	var rep health.QualityReport
	serve(t, &health.Service{Store: st}, "/quality", &rep)
	assert.Equal(t, 100, rep.Score)
	assert.Len(t, rep.Integrity, 2)

	data, err := frame.EncodeParquet(facts.Slice(0, 1))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(st.Path(store.FactActivities), data, 0o644))

	serve(t, &health.Service{Store: st}, "/quality", &rep)
	assert.Less(t, rep.Score, 100)
	failed := map[string]bool{}
	for _, c := range rep.Checks {
		if !c.Passed {
			failed[c.Name] = true
		}
	}
	assert.True(t, failed["integrity:"+store.FactActivities])
	assert.True(t, failed["gold_reconciles_with_facts"])
}

func TestStatusAndMonitor(t *testing.T) {
	st := store.New(store.Options{Dir: t.TempDir()})
	writeStore(t, st)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	log := audit.NewLog(10)
	log.Append(audit.Entry{Timestamp: start.Add(90 * time.Second), Path: "/facts", StatusCode: 200})
	svc := &health.Service{
		Store:     st,
		Audit:     log,
		RateStore: "memory",
		Features:  health.Features{GISOptional: true},
		StartedAt: start,
		Now:       func() time.Time { return start.Add(2 * time.Minute) },
	}

	var status health.StatusResponse
	serve(t, svc, "/status", &status)
	assert.Equal(t, int64(120), status.UptimeSeconds)
	assert.Equal(t, "memory", status.RateLimitStore)
	assert.True(t, status.Features.GISOptional)
	assert.Contains(t, status.DatasetSource, "local:")

	var mon health.MonitorResponse
	serve(t, svc, "/monitor", &mon)
	assert.Equal(t, 1, mon.Requests.TotalRequests)
	assert.Equal(t, 100, mon.Quality)
}

func TestCatalog(t *testing.T) {
	st := store.New(store.Options{Dir: t.TempDir(), SchemaVersion: "2.0.0"})
	writeStore(t, st)
	var body struct {
		Total int                   `json:"total"`
		Items []health.CatalogEntry `json:"items"`
	}
	serve(t, &health.Service{Store: st}, "/datasets", &body)
	assert.Equal(t, len(store.Artifacts), body.Total)
	assert.Equal(t, store.FactActivities, body.Items[0].Name)
	assert.True(t, body.Items[0].Available)
	assert.Equal(t, "2.0.0", body.Items[0].SchemaVersion)
	assert.Equal(t, "/facts", body.Items[0].Endpoint)
	assert.False(t, body.Items[2].Available)
}
