package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SetupRoutes serves key management. Callers gate it by tier.
func SetupRoutes(keys KeyStore) http.Handler {
	h := handlers{keys: keys}
	r := chi.NewRouter()

	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Delete("/{id}", h.revoke)

	return r
}
