package admin

import (
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/techdengue/analytics/internal/audit"
	"github.com/techdengue/analytics/internal/cache"
	"github.com/techdengue/analytics/internal/listing"
	"github.com/techdengue/analytics/internal/store"
	"github.com/techdengue/analytics/internal/utils"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 1000
	maxStatsHours   = 168
)

// CacheStatsResponse reports both cache layers.
type CacheStatsResponse struct {
	Response *cache.Stats          `json:"response_cache"`
	Files    *store.FileCacheStats `json:"file_cache"`
}

// CacheStats handles GET /cache/stats.
func (s *Service) CacheStats(w http.ResponseWriter, r *http.Request) {
	var out CacheStatsResponse
	if s.Cache != nil {
		st := s.Cache.Stats()
		out.Response = &st
	}
	if s.Files != nil {
		fs := s.Files.Stats()
		out.Files = &fs
	}
	utils.WriteJSON(w, out)
}

// CacheClear handles POST /cache/clear and DELETE /cache.
func (s *Service) CacheClear(w http.ResponseWriter, r *http.Request) {
	out := map[string]int{"response_cache": 0, "file_cache": 0}
	if s.Cache != nil {
		n, err := s.Cache.Clear(r.Context())
		if err != nil {
			log.Printf("[admin] clear response cache: %v", err)
			utils.WriteError(w, r, http.StatusInternalServerError, "cache_error", "Failed to clear response cache", nil)
			return
		}
		out["response_cache"] = n
	}
	if s.Files != nil {
		out["file_cache"] = s.Files.Clear()
	}
	log.Printf("[admin] caches cleared: %v", out)
	utils.WriteJSON(w, map[string]any{"cleared": out})
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) auditUnavailable(w http.ResponseWriter, r *http.Request) bool {
	if s.Audit != nil {
		return false
	}
	utils.WriteError(w, r, http.StatusServiceUnavailable, "audit_disabled", "Audit log is not enabled", nil)
	return true
}

// AuditStats handles GET /audit/stats?hours=N.
func (s *Service) AuditStats(w http.ResponseWriter, r *http.Request) {
	if s.auditUnavailable(w, r) {
		return
	}
	hours, ok, err := listing.IntParam(r, "hours")
	if err != nil {
		listing.BadParam(w, r, err)
		return
	}
	if !ok || hours <= 0 {
		hours = 24
	}
	if hours > maxStatsHours {
		hours = maxStatsHours
	}
	utils.WriteJSON(w, s.Audit.Stats(s.now(), time.Duration(hours)*time.Hour, 10))
}

// AuditLogs handles GET /audit/logs with optional limit, status,
// api_key_id and path filters. Entries are newest first.
func (s *Service) AuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.auditUnavailable(w, r) {
		return
	}
	limit, ok, err := listing.IntParam(r, "limit")
	if err != nil {
		listing.BadParam(w, r, err)
		return
	}
	if !ok || limit <= 0 {
		limit = defaultLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}

	q := r.URL.Query()
	status := 0
	if v := q.Get("status"); v != "" {
		if status, err = strconv.Atoi(v); err != nil {
			listing.BadParam(w, r, &listing.ParamError{Param: "status", Message: "must be an integer"})
			return
		}
	}
	keyID, path := q.Get("api_key_id"), q.Get("path")

	items := make([]audit.Entry, 0, limit)
	for _, e := range s.Audit.Recent(s.Audit.Len()) {
		if status != 0 && e.StatusCode != status {
			continue
		}
		if keyID != "" && e.APIKeyID != keyID {
			continue
		}
		if path != "" && !strings.HasPrefix(e.Path, path) {
			continue
		}
		items = append(items, e)
		if len(items) == limit {
			break
		}
	}
	utils.WriteJSON(w, map[string]any{
		"total":    len(items),
		"buffered": s.Audit.Len(),
		"recorded": s.Audit.Total(),
		"items":    items,
	})
}

// RateLimits handles GET /ratelimit.
func (s *Service) RateLimits(w http.ResponseWriter, r *http.Request) {
	if s.Limiter == nil {
		utils.WriteJSON(w, map[string]any{"enabled": false})
		return
	}
	utils.WriteJSON(w, map[string]any{
		"enabled":  true,
		"backend":  s.Limiter.Backend(),
		"policies": s.Limiter.Policies(),
	})
}
