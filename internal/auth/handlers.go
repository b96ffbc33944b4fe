package auth

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/techdengue/analytics/internal/utils"
)

type handlers struct {
	keys KeyStore
}

func (h handlers) create(w http.ResponseWriter, r *http.Request) {
	var req CreateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, r, http.StatusBadRequest, "invalid_request", "Invalid request body", nil)
		return
	}
	if req.Tier == "" {
		req.Tier = string(TierFree)
	}
	tier, err := ParseTier(req.Tier)
	if err != nil {
		utils.WriteError(w, r, http.StatusUnprocessableEntity, "invalid_tier", err.Error(), nil)
		return
	}
	raw, info, err := h.keys.Create(req.Owner, tier, req.Scopes)
	if errors.Is(err, ErrEmptyOwner) {
		utils.WriteError(w, r, http.StatusUnprocessableEntity, "invalid_owner", err.Error(), nil)
		return
	}
	if err != nil {
		log.Printf("[auth] create key: %v", err)
		utils.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to create key", nil)
		return
	}
	log.Printf("[auth] created key %s for %s (tier %s)", info.ID, info.Owner, info.Tier)
	utils.WriteJSONStatus(w, http.StatusCreated, CreateKeyResponse{
		APIKey:  raw,
		Key:     info,
		Warning: "Store this key now; it cannot be shown again.",
	})
}

func (h handlers) list(w http.ResponseWriter, r *http.Request) {
	keys := h.keys.List()
	utils.WriteJSON(w, map[string]any{"total": len(keys), "items": keys})
}

func (h handlers) revoke(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.keys.Revoke(id); err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			utils.WriteError(w, r, http.StatusNotFound, "not_found", "API key not found", nil)
			return
		}
		utils.WriteError(w, r, http.StatusInternalServerError, "internal_error", err.Error(), nil)
		return
	}
	log.Printf("[auth] revoked key %s", id)
	utils.WriteJSON(w, map[string]any{"key_id": id, "revoked": true})
}
