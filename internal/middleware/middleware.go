package middleware

import (
	"fmt"
	"log"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/getsentry/sentry-go"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/techdengue/analytics/internal/auth"
	"github.com/techdengue/analytics/internal/utils"
)

const docsURL = "/docs#authentication"

// KeyValidator resolves a raw API key.
type KeyValidator interface {
	Validate(raw string) (auth.KeyInfo, bool)
}

// APIKeyMiddleware attaches the key info of a valid X-API-Key header to the
// request context. Missing or unknown keys pass through anonymously.
func APIKeyMiddleware(keys KeyValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(auth.HeaderAPIKey)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			info, ok := keys.Validate(raw)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithKey(r.Context(), info)))
		})
	}
}

// RequireAPIKey rejects requests without a valid key with 401.
func RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.FromContext(r.Context()); !ok {
			unauthorized(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	msg := "A valid API key is required in the X-API-Key header"
	if r.Header.Get(auth.HeaderAPIKey) != "" {
		msg = "Invalid or revoked API key"
	}
	w.Header().Set("WWW-Authenticate", "ApiKey")
	utils.WriteError(w, r, http.StatusUnauthorized, "unauthorized", msg, utils.ErrorBody{"docs": docsURL})
}

// RequireTier admits keys whose tier ranks at or above min.
func RequireTier(min auth.Tier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, ok := auth.FromContext(r.Context())
			if !ok {
				unauthorized(w, r)
				return
			}
			if !info.Tier.AtLeast(min) {
				utils.WriteError(w, r, http.StatusForbidden, "insufficient_tier",
					fmt.Sprintf("This endpoint requires the %s tier", min),
					utils.ErrorBody{"current_tier": info.Tier, "required_tier": min, "docs": docsURL})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireScope admits keys granting scope.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, ok := auth.FromContext(r.Context())
			if !ok {
				unauthorized(w, r)
				return
			}
			if !info.HasScope(scope) {
				utils.WriteError(w, r, http.StatusForbidden, "insufficient_scope",
					fmt.Sprintf("This endpoint requires the %s scope", scope),
					utils.ErrorBody{"required_scope": scope, "docs": docsURL})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORSMiddleware echoes allowed origins. A "*" entry allows any origin.
func CORSMiddleware(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(origins))
	wildcard := false
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "*" {
			wildcard = true
		}
		if o != "" {
			allowed[o] = struct{}{}
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			_, listed := allowed[origin]
			if origin != "" && (wildcard || listed) {
				if wildcard {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Vary", "Origin") // important for caches
				}
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
			}

			w.Header().Set("Access-Control-Expose-Headers",
				"X-Request-ID, Retry-After, X-RateLimit-Limit, X-RateLimit-Remaining, X-TechDengue-Data-Available, X-TechDengue-Data-Source, X-TechDengue-Reason")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Recoverer turns panics into a JSON 500 carrying the request id and reports
// them to Sentry when a client is configured.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			log.Printf("[api] panic serving %s %s: %v\n%s", r.Method, r.URL.Path, rec, debug.Stack())
			if hub := sentry.CurrentHub().Clone(); hub.Client() != nil {
				hub.Scope().SetRequest(r)
				if id, ok := utils.GetRequestIDFromContext(r.Context()); ok {
					hub.Scope().SetTag("request_id", id)
				}
				hub.Recover(rec)
			}
			utils.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Unexpected server error", nil)
		}()
		next.ServeHTTP(w, r)
	})
}

// ReportServerErrors sends a Sentry event for every 5xx response when a
// client is configured.
func ReportServerErrors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub := sentry.CurrentHub()
		if hub.Client() == nil {
			next.ServeHTTP(w, r)
			return
		}
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if ww.Status() < http.StatusInternalServerError {
			return
		}
		hub = hub.Clone()
		hub.Scope().SetRequest(r)
		if id, ok := utils.GetRequestIDFromContext(r.Context()); ok {
			hub.Scope().SetTag("request_id", id)
		}
		hub.CaptureMessage(fmt.Sprintf("%s %s answered %d", r.Method, r.URL.Path, ww.Status()))
	})
}
