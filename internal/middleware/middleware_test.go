package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techdengue/analytics/internal/auth"
	"github.com/techdengue/analytics/internal/middleware"
	"github.com/techdengue/analytics/internal/utils"
)

// call wraps a simple 200-OK inner handler in the provided middleware chain,
// optionally setting an API key, and returns the recorded response.
func call(t *testing.T, reg *auth.Registry, key string, mws ...func(http.Handler) http.Handler) *httptest.ResponseRecorder {
	t.Helper()

	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	h = middleware.APIKeyMiddleware(reg)(h)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if key != "" {
		req.Header.Set(auth.HeaderAPIKey, key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// TestRequireAPIKey_Missing verifies that a request without a key receives 401.
func TestRequireAPIKey_Missing(t *testing.T) {
	rec := call(t, auth.NewRegistry(), "", middleware.RequireAPIKey)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decode(t, rec)["error"])
}

// TestRequireAPIKey_Revoked verifies a revoked key no longer authenticates.
func TestRequireAPIKey_Revoked(t *testing.T) {
	reg := auth.NewRegistry()
	raw, info, err := reg.Create("ops", auth.TierStandard, nil)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, call(t, reg, raw, middleware.RequireAPIKey).Code)
	require.NoError(t, reg.Revoke(info.ID))
	rec := call(t, reg, raw, middleware.RequireAPIKey)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, decode(t, rec)["message"], "revoked")
}

// TestRequireTier_Insufficient verifies the 403 body names both tiers.
func TestRequireTier_Insufficient(t *testing.T) {
	reg := auth.NewRegistry()
	raw, _, err := reg.Create("ops", auth.TierFree, nil)
	require.NoError(t, err)

	rec := call(t, reg, raw, middleware.RequireTier(auth.TierPremium))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "free", body["current_tier"])
	assert.Equal(t, "premium", body["required_tier"])

	assert.Equal(t, http.StatusUnauthorized, call(t, reg, "", middleware.RequireTier(auth.TierFree)).Code)
}

func TestRequireTier_Admin(t *testing.T) {
	reg := auth.Init("td_bootstrap_admin_key")
	rec := call(t, reg, "td_bootstrap_admin_key", middleware.RequireTier(auth.TierAdmin), middleware.RequireScope("read:anything"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireScope(t *testing.T) {
	reg := auth.NewRegistry()
	raw, _, err := reg.Create("ops", auth.TierFree, []string{"read:facts"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, call(t, reg, raw, middleware.RequireScope("read:facts")).Code)
	assert.Equal(t, http.StatusForbidden, call(t, reg, raw, middleware.RequireScope("read:gold")).Code)
}

// TestCORSMiddleware_AllowList echoes listed origins only.
func TestCORSMiddleware_AllowList(t *testing.T) {
	h := middleware.CORSMiddleware([]string{"https://painel.techdengue.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://painel.techdengue.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://painel.techdengue.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	pre := httptest.NewRequest(http.MethodOptions, "/", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, pre)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

// TestRecoverer returns a JSON 500 with the request id.
func TestRecoverer(t *testing.T) {
	h := middleware.Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(utils.WithRequestID(req.Context(), "req-1"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "req-1", body["request_id"])
	assert.Equal(t, "internal_error", body["error"])
}

// TestReportServerErrors_NoClient passes responses through untouched when
// Sentry is not configured.
func TestReportServerErrors_NoClient(t *testing.T) {
	h := middleware.ReportServerErrors(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/facts", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "boom")
}
