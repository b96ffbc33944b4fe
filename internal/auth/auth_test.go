package auth_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techdengue/analytics/internal/auth"
)

// TestRegistry_CreateValidateRevoke covers the key lifecycle.
func TestRegistry_CreateValidateRevoke(t *testing.T) {
	reg := auth.NewRegistry()
	raw, info, err := reg.Create("secretaria", auth.TierPremium, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, auth.KeyPrefix))
	assert.Equal(t, raw[:10], info.Prefix)
	assert.Nil(t, info.LastUsedAt)

	got, ok := reg.Validate(raw)
	require.True(t, ok)
	assert.Equal(t, info.ID, got.ID)
	assert.NotNil(t, got.LastUsedAt)

	_, ok = reg.Validate(raw + "x")
	assert.False(t, ok)

	require.NoError(t, reg.Revoke(info.ID))
	_, ok = reg.Validate(raw)
	assert.False(t, ok)
	assert.ErrorIs(t, reg.Revoke("missing"), auth.ErrKeyNotFound)
}

// TestRegistry_RawKeyNotStored checks listings never carry the raw key.
func TestRegistry_RawKeyNotStored(t *testing.T) {
	reg := auth.NewRegistry()
	raw, _, err := reg.Create("a", auth.TierFree, nil)
	require.NoError(t, err)
	data, err := json.Marshal(reg.List())
	require.NoError(t, err)
	assert.NotContains(t, string(data), raw)
	assert.NotContains(t, string(data), auth.HashKey(raw))
}

func TestRegistry_Errors(t *testing.T) {
	reg := auth.NewRegistry()
	_, _, err := reg.Create("", auth.TierFree, nil)
	assert.ErrorIs(t, err, auth.ErrEmptyOwner)
	_, err = reg.Register("k", "o", auth.Tier("gold"), nil)
	assert.Error(t, err)
	_, err = reg.Register("k", "o", auth.TierFree, nil)
	require.NoError(t, err)
	_, err = reg.Register("k", "o2", auth.TierFree, nil)
	assert.ErrorIs(t, err, auth.ErrDuplicate)
}

func TestTierOrdering(t *testing.T) {
	assert.True(t, auth.TierAdmin.AtLeast(auth.TierPremium))
	assert.True(t, auth.TierStandard.AtLeast(auth.TierStandard))
	assert.False(t, auth.TierFree.AtLeast(auth.TierStandard))
	_, err := auth.ParseTier("enterprise")
	assert.Error(t, err)
	tier, err := auth.ParseTier(" Premium ")
	require.NoError(t, err)
	assert.Equal(t, auth.TierPremium, tier)
}

func TestHasScope(t *testing.T) {
	admin := auth.KeyInfo{Scopes: []string{auth.ScopeAdminAll}}
	reader := auth.KeyInfo{Scopes: []string{auth.ScopeReadAll}}
	narrow := auth.KeyInfo{Scopes: []string{"read:facts"}}

	assert.True(t, admin.HasScope("write:cache"))
	assert.True(t, reader.HasScope("read:gold"))
	assert.False(t, reader.HasScope("write:cache"))
	assert.True(t, narrow.HasScope("read:facts"))
	assert.False(t, narrow.HasScope("read:gold"))
}

// TestRoutes_CreateListRevoke drives the key management routes end to end.
func TestRoutes_CreateListRevoke(t *testing.T) {
	reg := auth.NewRegistry()
	r := chi.NewRouter()
	r.Mount("/keys", auth.SetupRoutes(reg))
	srv := httptest.NewServer(r)
	defer srv.Close()

	body, _ := json.Marshal(auth.CreateKeyRequest{Owner: "painel", Tier: "standard"})
	resp, err := http.Post(srv.URL+"/keys/", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created auth.CreateKeyResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, auth.TierStandard, created.Key.Tier)
	_, ok := reg.Validate(created.APIKey)
	assert.True(t, ok)

	bad, _ := json.Marshal(auth.CreateKeyRequest{Owner: "x", Tier: "gold"})
	resp2, err := http.Post(srv.URL+"/keys/", "application/json", bytes.NewReader(bad))
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp2.StatusCode)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/keys/"+created.Key.ID, nil)
	resp3, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp3.Body.Close()
	assert.Equal(t, http.StatusOK, resp3.StatusCode)

	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/keys/nope", nil)
	resp4, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp4.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp4.StatusCode)
}
