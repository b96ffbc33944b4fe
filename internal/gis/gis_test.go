package gis_test

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

	"github.com/techdengue/analytics/internal/config"
	"github.com/techdengue/analytics/internal/db"
	"github.com/techdengue/analytics/internal/frame"
	"github.com/techdengue/analytics/internal/gis"
	"github.com/techdengue/analytics/internal/listing"
	"github.com/techdengue/analytics/internal/sources"
	"github.com/techdengue/analytics/internal/store"
)

type failing struct{ name string }

func (f failing) Name() string { return f.name }

func (f failing) Fetch(context.Context, gis.Table, gis.Query) (*frame.Frame, error) {
	return nil, errors.New("connection refused")
}

func snapshotStore(t *testing.T) *store.Store {
	t.Helper()
	st := store.New(store.Options{Dir: t.TempDir(), CacheTTL: time.Minute})
	pois := frame.New(sources.DefaultActivityColumn, "categoria")
	require.NoError(t, pois.Append("a1", "pneu"))
	require.NoError(t, pois.Append("a1", "caixa d'agua"))
	require.NoError(t, pois.Append("a2", "piscina"))
	_, err := st.Write(store.GISPOIs, pois)
	require.NoError(t, err)
	return st
}

func get(t *testing.T, svc *gis.Service, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	gis.SetupRoutes(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

// TestChain_FallsBackToSnapshot serves the snapshot when the database fails
// and tags the response with its provenance.
func TestChain_FallsBackToSnapshot(t *testing.T) {
	st := snapshotStore(t)
	svc := &gis.Service{Chain: &gis.Chain{Sources: []gis.Source{
		failing{"database"},
		gis.StoreSource{Label: "snapshot", Load: st.Load},
	}}}

	rec := get(t, svc, "/pois?id_atividade=a1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Header().Get(gis.HeaderDataAvailable))
	assert.Equal(t, "snapshot", rec.Header().Get(gis.HeaderDataSource))
	assert.Contains(t, rec.Header().Get(gis.HeaderReason), "database")

	var env listing.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, 2, env.Total)
}

// TestChain_SoftFailAndStrict returns an empty 200 by default and 503 in strict mode.
func TestChain_SoftFailAndStrict(t *testing.T) {
	svc := &gis.Service{Chain: &gis.Chain{Sources: []gis.Source{failing{"database"}}}}

	rec := get(t, svc, "/banco")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "false", rec.Header().Get(gis.HeaderDataAvailable))
	assert.Equal(t, "none", rec.Header().Get(gis.HeaderDataSource))
	assert.NotEmpty(t, rec.Header().Get(gis.HeaderReason))
	var env listing.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, 0, env.Total)
	assert.Empty(t, env.Items)

	assert.Equal(t, http.StatusServiceUnavailable, get(t, svc, "/banco?strict=true").Code)

	svc.Strict = true
	assert.Equal(t, http.StatusServiceUnavailable, get(t, svc, "/banco").Code)
	assert.Equal(t, http.StatusOK, get(t, svc, "/banco?strict=false").Code)
}

func TestInit_SnapshotOnly(t *testing.T) {
	st := snapshotStore(t)
	svc := gis.Init(nil, st, false)
	require.Len(t, svc.Chain.Sources, 1)
	rec := get(t, svc, "/pois?limit=1")
	assert.Equal(t, "snapshot", rec.Header().Get(gis.HeaderDataSource))
	var env listing.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Len(t, env.Items, 1)
}

// TestDBSource_Live reads the banco table when a GIS database is configured.
func TestDBSource_Live(t *testing.T) {
	if os.Getenv("GIS_DB_HOST") == "" {
		t.Skip("GIS_DB_HOST not set; skipping live GIS test")
	}
	cfg, err := config.Load()
	require.NoError(t, err)
	gdb, err := db.Connect(context.Background(), cfg.GIS.DB, db.DefaultOptions())
	require.NoError(t, err)
	defer db.Close(gdb)

	src := gis.DBSource{Adapter: &sources.GISAdapter{DB: gdb, Retry: db.Retrier{Attempts: 1}, BancoTable: cfg.GIS.BancoTable, POIsTable: cfg.GIS.POIsTable}}
	f, err := src.Fetch(context.Background(), gis.TableBanco, gis.Query{Limit: 5})
	require.NoError(t, err)
	assert.LessOrEqual(t, f.Len(), 5)
}
