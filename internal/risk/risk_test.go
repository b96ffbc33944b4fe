package risk_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techdengue/analytics/internal/cache"
	"github.com/techdengue/analytics/internal/frame"
	"github.com/techdengue/analytics/internal/pipeline"
	"github.com/techdengue/analytics/internal/risk"
	"github.com/techdengue/analytics/internal/store"
	"github.com/techdengue/analytics/internal/weather"
)

func ptr(v float64) *float64 { return &v }

func hasPrefix(list []string, prefix string) bool {
	for _, s := range list {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

// TestRules_CriticalRise covers a doubling of cases in a warm, humid
// municipality with poor sanitation.
func TestRules_CriticalRise(t *testing.T) {
	resp, err := risk.Rules{}.Analyze(context.Background(), risk.Request{
		Municipio:           "X",
		CasosRecentes:       400,
		CasosAnoAnterior:    200,
		Populacao:           ptr(100000),
		TemperaturaMedia:    ptr(27),
		UmidadeMedia:        ptr(80),
		CoberturaSaneamento: ptr(40),
	})
	require.NoError(t, err)
	assert.Equal(t, weather.LevelCritical, resp.NivelRisco)
	assert.Equal(t, risk.TrendUp, resp.Tendencia)
	assert.InDelta(t, 96, resp.Score, 0.01)
	assert.Equal(t, 0.7, resp.Confianca)
	assert.True(t, hasPrefix(resp.Recomendacoes, "Declarar estado de alerta"))
	assert.Len(t, resp.FatoresPrincipais, 5)
}

func TestRules_NoCases(t *testing.T) {
	calm, _ := risk.Rules{}.Analyze(context.Background(), risk.Request{Municipio: "Y"})
	assert.Equal(t, risk.TrendStable, calm.Tendencia)
	assert.Equal(t, weather.LevelLow, calm.NivelRisco)
	assert.NotEmpty(t, calm.FatoresPrincipais)
	assert.Equal(t, "rule-based-v1", calm.ModeloUsado)

	// The climatic and sanitation rules alone top out at 40.
	worst, _ := risk.Rules{}.Analyze(context.Background(), risk.Request{
		Municipio:           "Y",
		TemperaturaMedia:    ptr(28),
		UmidadeMedia:        ptr(90),
		CoberturaSaneamento: ptr(0),
	})
	assert.Equal(t, risk.TrendStable, worst.Tendencia)
	assert.Equal(t, weather.LevelMedium, worst.NivelRisco)
	assert.InDelta(t, 40, worst.Score, 0.01)
}

func TestVariationAndTrend(t *testing.T) {
	assert.Equal(t, 100.0, risk.Variation(5, 0))
	assert.Equal(t, 0.0, risk.Variation(0, 0))
	assert.Equal(t, -50.0, risk.Variation(50, 100))
	assert.Equal(t, risk.TrendStable, risk.Trend(10))
	assert.Equal(t, risk.TrendUp, risk.Trend(10.1))
	assert.Equal(t, risk.TrendDown, risk.Trend(-10.1))
	assert.Equal(t, 0.0, risk.Incidence(10, nil))
}

func TestEpidemicAlert(t *testing.T) {
	mk := func(levels ...string) []risk.Response {
		out := make([]risk.Response, len(levels))
		for i, l := range levels {
			out[i] = risk.Response{Municipio: l + string(rune('a'+i)), NivelRisco: l}
		}
		return out
	}
	c, h, m := weather.LevelCritical, weather.LevelHigh, weather.LevelMedium

	a := risk.EpidemicAlert(mk(c, c, c))
	assert.Equal(t, risk.AlertEpidemic, a.Alerta)
	assert.Equal(t, "critical", a.Nivel)
	assert.Len(t, a.Municipios, 3)

	assert.Equal(t, risk.AlertOutbreak, risk.EpidemicAlert(mk(c, m)).Alerta)
	assert.Equal(t, risk.AlertOutbreak, risk.EpidemicAlert(mk(h, h, h, h, h)).Alerta)
	assert.Equal(t, "high", risk.EpidemicAlert(mk(h, h, h, h, h)).Nivel)
	assert.Equal(t, risk.AlertNone, risk.EpidemicAlert(mk(h, h, h, h, m)).Alerta)
	assert.Equal(t, risk.AlertNone, risk.EpidemicAlert(nil).Alerta)
}

func TestStripFencesAndParse(t *testing.T) {
	assert.Equal(t, `{"a":1}`, risk.StripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, risk.StripFences("  {\"a\":1} "))

	a, err := risk.ParseAnswer("```\n{\"nivel_risco\":\"Alto\",\"score\":61,\"tendencia\":\"aumentando\",\"fatores_principais\":[\"calor\"]}\n```")
	require.NoError(t, err)
	assert.Equal(t, weather.LevelHigh, a.NivelRisco)

	_, err = risk.ParseAnswer(`{"nivel_risco":"extremo","score":99,"tendencia":"estavel","fatores_principais":["x"]}`)
	assert.Error(t, err)
	_, err = risk.ParseAnswer(`{"nivel_risco":"alto","tendencia":"estavel","fatores_principais":["x"]}`)
	assert.Error(t, err, "score is required")
	_, err = risk.ParseAnswer("not json")
	assert.Error(t, err)
}

func llmServer(t *testing.T, status int, content string) *risk.LLM {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
		})
	}))
	t.Cleanup(srv.Close)
	l := risk.NewLLM("key", "")
	l.URL = srv.URL
	return l
}

func TestLLM_ParsesFencedAnswer(t *testing.T) {
	l := llmServer(t, http.StatusOK, "```json\n{\"nivel_risco\":\"alto\",\"score\":70,\"tendencia\":\"aumentando\",\"fatores_principais\":[\"chuvas\"],\"recomendacoes\":[\"vistoriar\"]}\n```")
	resp, err := l.Analyze(context.Background(), risk.Request{Municipio: "Betim", CasosRecentes: 10})
	require.NoError(t, err)
	assert.Equal(t, weather.LevelHigh, resp.NivelRisco)
	assert.Equal(t, 0.85, resp.Confianca)
	assert.Equal(t, "groq:"+risk.DefaultModel, resp.ModeloUsado)
	assert.Equal(t, []string{"vistoriar"}, resp.Recomendacoes)
}

// TestLLM_FallsBackToRules answers with the rule engine when the provider
// fails or returns an unusable answer.
func TestLLM_FallsBackToRules(t *testing.T) {
	req := risk.Request{Municipio: "Betim", CasosRecentes: 10}
	for _, l := range []*risk.LLM{
		llmServer(t, http.StatusInternalServerError, ""),
		llmServer(t, http.StatusOK, "I think the risk is high"),
		llmServer(t, http.StatusOK, `{"nivel_risco":"alto"}`),
	} {
		resp, err := l.Analyze(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, 0.7, resp.Confianca)
		assert.Equal(t, risk.Rules{}.Name(), resp.ModeloUsado)
		assert.Contains(t, resp.ModeloUsado, "rule-based")
	}
}

func riskServer(t *testing.T) *httptest.Server {
	t.Helper()
	st := store.New(store.Options{Dir: t.TempDir(), CacheTTL: time.Minute})
	dim := frame.FromRecords(pipeline.DimColumns, []map[string]any{
		{pipeline.ColCodigoIBGE: "3106200", pipeline.ColCodigoIBGE6: "310620", pipeline.ColMunicipio: "Belo Horizonte", pipeline.ColPopulacao: 2300000.0},
		{pipeline.ColCodigoIBGE: "3100104", pipeline.ColCodigoIBGE6: "310010", pipeline.ColMunicipio: "ABADIA DOS DOURADOS", pipeline.ColPopulacao: 7000.0},
	})
	_, err := st.Write(store.DimMunicipios, dim)
	require.NoError(t, err)
	dengue := frame.FromRecords(pipeline.DengueColumns, []map[string]any{
		{pipeline.ColCodigoIBGE6: "310620", pipeline.ColAno: int64(2024), pipeline.ColTotalCasos: int64(4000)},
		{pipeline.ColCodigoIBGE6: "310620", pipeline.ColAno: int64(2025), pipeline.ColTotalCasos: int64(12000)},
		{pipeline.ColCodigoIBGE6: "310010", pipeline.ColAno: int64(2024), pipeline.ColTotalCasos: int64(160)},
		{pipeline.ColCodigoIBGE6: "310010", pipeline.ColAno: int64(2025), pipeline.ColTotalCasos: int64(40)},
	})
	_, err = st.Write(store.FactDengue, dengue)
	require.NoError(t, err)

	svc := &risk.Service{
		Analyzer: risk.Rules{},
		Rules:    risk.Rules{},
		Store:    st,
		Cache:    cache.New(cache.NewMemory(nil), time.Minute),
		CacheTTL: time.Minute,
	}
	srv := httptest.NewServer(risk.SetupRoutes(svc))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnalyzeHandler(t *testing.T) {
	srv := riskServer(t)
	body := `{"municipio":"X","casos_recentes":400,"casos_ano_anterior":200,"populacao":100000,"temperatura_media":27,"umidade_media":80,"cobertura_saneamento":40}`
	resp, err := http.Post(srv.URL+"/analyze", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out risk.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, weather.LevelCritical, out.NivelRisco)
	assert.Equal(t, risk.TrendUp, out.Tendencia)
	assert.True(t, hasPrefix(out.Recomendacoes, "Declarar estado de alerta"))
}

func TestAnalyzeHandler_Rejects(t *testing.T) {
	srv := riskServer(t)
	for body, want := range map[string]int{
		`{"casos_recentes":1}`:                        http.StatusUnprocessableEntity,
		`{"municipio":"X","casos_recentes":-1}`:       http.StatusUnprocessableEntity,
		`{"municipio":"X","umidade_media":140}`:       http.StatusUnprocessableEntity,
		`{"municipio":"X","cobertura_saneamento":-5}`: http.StatusUnprocessableEntity,
		`{"municipio":`:                               http.StatusBadRequest,
	} {
		resp, err := http.Post(srv.URL+"/analyze", "application/json", bytes.NewBufferString(body))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, want, resp.StatusCode, body)
	}
}

func TestMunicipioHandler(t *testing.T) {
	srv := riskServer(t)

	resp, err := http.Get(srv.URL + "/municipio/310620")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out risk.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "Belo Horizonte", out.Municipio)
	assert.Equal(t, "3106200", out.CodigoIBGE)
	assert.Equal(t, risk.TrendUp, out.Tendencia)
	assert.Equal(t, weather.LevelHigh, out.NivelRisco)

	for path, want := range map[string]int{
		"/municipio/3199999": http.StatusNotFound,
		"/municipio/31":      http.StatusUnprocessableEntity,
	} {
		r, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		r.Body.Close()
		assert.Equal(t, want, r.StatusCode, path)
	}
}

func TestDashboardHandler(t *testing.T) {
	srv := riskServer(t)
	resp, err := http.Get(srv.URL + "/dashboard?limit=5")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out risk.Dashboard
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, 2, out.Total)
	assert.Equal(t, "Belo Horizonte", out.Items[0].Municipio, "ordered by latest-year cases")
	assert.Equal(t, risk.TrendDown, out.Items[1].Tendencia)
	assert.Equal(t, 1, out.PorNivel[weather.LevelHigh])
	assert.Equal(t, 1, out.PorNivel[weather.LevelMedium])
	assert.Equal(t, risk.AlertNone, out.Alerta.Alerta)
}

func TestDashboard_DatasetMissing(t *testing.T) {
	svc := &risk.Service{Analyzer: risk.Rules{}, Rules: risk.Rules{}, Store: store.New(store.Options{Dir: t.TempDir()})}
	rec := httptest.NewRecorder()
	risk.SetupRoutes(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
