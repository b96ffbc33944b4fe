package datasets_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techdengue/analytics/internal/cache"
	"github.com/techdengue/analytics/internal/datasets"
	"github.com/techdengue/analytics/internal/frame"
	"github.com/techdengue/analytics/internal/listing"
	"github.com/techdengue/analytics/internal/pipeline"
	"github.com/techdengue/analytics/internal/store"
)

func activity(code, muni string, d frame.Date, name string, pois, ha float64) map[string]any {
	return map[string]any{
		pipeline.ColCodigoIBGE: code, pipeline.ColMunicipio: muni, pipeline.ColDataMap: d,
		pipeline.ColAtividade: name, pipeline.ColPOIs: pois, pipeline.ColDevolutivas: 1.0, pipeline.ColHectares: ha,
	}
}

// newServer writes a small store and mounts the dataset routes over it.
func newServer(t *testing.T, withGold bool) *httptest.Server {
	t.Helper()
	st := store.New(store.Options{Dir: t.TempDir(), CacheTTL: time.Minute, FreshTTL: time.Hour})

	cols := []string{pipeline.ColCodigoIBGE, pipeline.ColMunicipio, pipeline.ColDataMap, pipeline.ColAtividade,
		pipeline.ColPOIs, pipeline.ColDevolutivas, pipeline.ColHectares}
	facts := frame.FromRecords(cols, []map[string]any{
		activity("3100104", "ABADIA DOS DOURADOS", frame.NewDate(2024, 3, 1), "Vistoria", 10, 10),
		activity("3100104", "ABADIA DOS DOURADOS", frame.NewDate(2024, 3, 15), "Mapeamento", 4, 6.5),
		activity("3100104", "ABADIA DOS DOURADOS", frame.NewDate(2024, 4, 2), "Vistoria Drone", 2, 3),
		activity("3100203", "ABAETÉ", frame.NewDate(2024, 3, 1), "Vistoria", 7, 12),
	})
	_, err := st.Write(store.FactActivities, facts)
	require.NoError(t, err)

	dim := frame.FromRecords(pipeline.DimColumns, []map[string]any{
		{pipeline.ColCodigoIBGE: "3100104", pipeline.ColCodigoIBGE6: "310010", pipeline.ColMunicipio: "ABADIA DOS DOURADOS", pipeline.ColPopulacao: 7000.0, pipeline.ColMesorregiao: "Triângulo"},
		{pipeline.ColCodigoIBGE: "3100203", pipeline.ColCodigoIBGE6: "310020", pipeline.ColMunicipio: "ABAETÉ", pipeline.ColPopulacao: 23000.0, pipeline.ColMesorregiao: "Central"},
	})
	_, err = st.Write(store.DimMunicipios, dim)
	require.NoError(t, err)

	dengue := frame.FromRecords(pipeline.DengueColumns, []map[string]any{
		{pipeline.ColCodigoIBGE6: "310010", pipeline.ColCodigoIBGE: "3100104", pipeline.ColMunicipio: "ABADIA DOS DOURADOS", pipeline.ColAno: int64(2024), pipeline.ColTotalCasos: int64(160)},
		{pipeline.ColCodigoIBGE6: "310010", pipeline.ColCodigoIBGE: "3100104", pipeline.ColMunicipio: "ABADIA DOS DOURADOS", pipeline.ColAno: int64(2025), pipeline.ColTotalCasos: int64(40)},
		{pipeline.ColCodigoIBGE6: "310020", pipeline.ColCodigoIBGE: "3100203", pipeline.ColMunicipio: "ABAETÉ", pipeline.ColAno: int64(2024), pipeline.ColTotalCasos: int64(5)},
	})
	_, err = st.Write(store.FactDengue, dengue)
	require.NoError(t, err)

	if withGold {
		_, err = st.Write(store.GoldAnalise, pipeline.Gold(facts, dim, dengue))
		require.NoError(t, err)
	}

	svc := datasets.Init(st, cache.New(cache.NewMemory(nil), time.Minute))
	r := chi.NewRouter()
	r.Mount("/", datasets.SetupRoutes(svc))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, dst any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if dst != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
	}
	return resp.StatusCode
}

// TestListFacts_FilterByCode returns the three rows of one municipality.
func TestListFacts_FilterByCode(t *testing.T) {
	srv := newServer(t, true)
	var env listing.Envelope
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/facts?codigo_ibge=3100104&limit=5&format=json", &env))
	assert.Equal(t, 3, env.Total)
	assert.Equal(t, 5, env.Limit)
	assert.Equal(t, 0, env.Offset)
	assert.Len(t, env.Items, 3)
}

func TestListFacts_ActivityAndDateFilters(t *testing.T) {
	srv := newServer(t, true)
	var env listing.Envelope
	getJSON(t, srv.URL+"/facts?nomenclatura_atividade=vistoria&start_date=2024-03-01&end_date=2024-03-31", &env)
	assert.Equal(t, 2, env.Total)

	getJSON(t, srv.URL+"/facts?municipio=abaete", &env)
	assert.Equal(t, 1, env.Total, "accent-insensitive municipality match")

	assert.Equal(t, http.StatusUnprocessableEntity, getJSON(t, srv.URL+"/facts?start_date=03/2024", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, getJSON(t, srv.URL+"/facts?limit=ten", nil))
}

func TestFactsSummary(t *testing.T) {
	srv := newServer(t, true)
	var resp datasets.SummaryResponse
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/facts/summary?group_by=codigo_ibge", &resp))
	assert.Equal(t, 2, resp.Groups)
	assert.Equal(t, int64(4), resp.Totals.Atividades)
	assert.InDelta(t, 31.5, resp.Totals.Hectares, 1e-9)
	assert.Equal(t, "2024-03-01", resp.Totals.PrimeiraAtividade)
	assert.Equal(t, "2024-04-02", resp.Totals.UltimaAtividade)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, "3100104", resp.Items[0].Key)
	assert.InDelta(t, 19.5, resp.Items[0].Hectares, 1e-9)

	assert.Equal(t, http.StatusUnprocessableEntity, getJSON(t, srv.URL+"/facts/summary?group_by=year", nil))
}

func TestListDengue(t *testing.T) {
	srv := newServer(t, true)
	var env listing.Envelope
	getJSON(t, srv.URL+"/dengue?codigo_ibge=3100104&order=asc", &env)
	require.Equal(t, 2, env.Total)
	assert.Equal(t, float64(2024), env.Items[0][pipeline.ColAno])

	getJSON(t, srv.URL+"/dengue?ano=2024", &env)
	assert.Equal(t, 2, env.Total)
}

func TestMunicipios(t *testing.T) {
	srv := newServer(t, true)
	var env listing.Envelope
	getJSON(t, srv.URL+"/municipios?q=aba", &env)
	assert.Equal(t, 2, env.Total)
	assert.Equal(t, "ABADIA DOS DOURADOS", env.Items[0][pipeline.ColMunicipio])

	var m datasets.Municipio
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/municipios/310010", &m))
	assert.Equal(t, "3100104", m.Dimension[pipeline.ColCodigoIBGE])
	assert.Len(t, m.Dengue, 2)
	require.NotNil(t, m.Atividade)
	assert.Equal(t, int64(3), m.Atividade.Atividades)

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/municipios/3199999", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, getJSON(t, srv.URL+"/municipios/31", nil))
}

func TestListGold(t *testing.T) {
	srv := newServer(t, true)
	var env listing.Envelope
	getJSON(t, srv.URL+"/gold/analise?codigo_ibge=3100104&start_date=2024-03-01&end_date=2024-03-01", &env)
	require.Equal(t, 1, env.Total)
	assert.Equal(t, float64(14), env.Items[0][pipeline.ColTotalPOIs])
	assert.Equal(t, float64(2), env.Items[0][pipeline.ColTotalAtividades])
}

// TestListGold_MissingArtifact answers 503 when the gold file was never built.
func TestListGold_MissingArtifact(t *testing.T) {
	srv := newServer(t, false)
	var body map[string]any
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, srv.URL+"/gold/analise", &body))
	assert.Equal(t, "dataset_unavailable", body["error"])
}
