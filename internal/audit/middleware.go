package audit

import (
	"context"
	"net"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/techdengue/analytics/internal/auth"
	"github.com/techdengue/analytics/internal/utils"
)

// HeaderRequestID carries the request id on responses.
const HeaderRequestID = "X-Request-ID"

// Middleware assigns a request id, sets X-Request-ID and appends one entry per
// request once the inner handler returns. It must wrap the API key middleware;
// Track, placed after it, reports the resolved key back to the entry.
func (l *Log) Middleware(next http.Handler) http.Handler {
	return l.middleware(next, time.Now)
}

func (l *Log) middleware(next http.Handler, now func() time.Time) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := now()
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)

		holder := &keyHolder{}
		ctx := utils.WithRequestID(r.Context(), id)
		ctx = withHolder(ctx, holder)
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			e := Entry{
				RequestID:      id,
				Timestamp:      start.UTC(),
				Method:         r.Method,
				Path:           r.URL.Path,
				Query:          r.URL.RawQuery,
				StatusCode:     status,
				ResponseTimeMS: max(float64(now().Sub(start).Microseconds())/1000, 0),
				ClientIP:       clientIP(r),
				UserAgent:      r.UserAgent(),
				Bytes:          ww.BytesWritten(),
			}
			if holder.info != nil {
				e.APIKeyID = holder.info.ID
				e.Tier = string(holder.info.Tier)
			}
			l.Append(e)
		}()
		next.ServeHTTP(ww, r.WithContext(ctx))
	})
}

// Track records the authenticated key of the current request on its audit
// entry. It runs after API key resolution.
func Track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h := holderFrom(r.Context()); h != nil {
			if info, ok := auth.FromContext(r.Context()); ok {
				h.info = &info
			}
		}
		next.ServeHTTP(w, r)
	})
}

type keyHolder struct {
	info *auth.KeyInfo
}

type holderKey struct{}

func withHolder(ctx context.Context, h *keyHolder) context.Context {
	return context.WithValue(ctx, holderKey{}, h)
}

func holderFrom(ctx context.Context) *keyHolder {
	h, _ := ctx.Value(holderKey{}).(*keyHolder)
	return h
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
