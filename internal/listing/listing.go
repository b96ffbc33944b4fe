// Package listing implements the query contract shared by every list
// endpoint: pagination, sorting, projection and json/csv/parquet rendering.
package listing

import (
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/techdengue/analytics/internal/frame"
	"github.com/techdengue/analytics/internal/store"
	"github.com/techdengue/analytics/internal/utils"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Output formats.
const (
	FormatJSON    = "json"
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

// Params are the common list query parameters.
type Params struct {
	Limit  int
	Offset int
	SortBy string
	Desc   bool
	Fields []string
	Format string
}

// ParamError is an invalid query parameter value, answered with 422.
type ParamError struct {
	Param   string
	Message string
}

func (e *ParamError) Error() string { return fmt.Sprintf("%s: %s", e.Param, e.Message) }

// Envelope is the json list response.
type Envelope struct {
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
	Items  []map[string]any `json:"items"`
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ParamError{Param: name, Message: "must be an integer"}
	}
	return n, nil
}

// Parse reads limit, offset, sort_by, order, fields and format. Limit is
// clamped to [1, MaxLimit] and offset to [0, ∞).
func Parse(r *http.Request) (Params, error) {
	q := r.URL.Query()
	p := Params{Desc: true, Format: FormatJSON}

	var err error
	if p.Limit, err = intParam(r, "limit", DefaultLimit); err != nil {
		return p, err
	}
	p.Limit = min(max(p.Limit, 1), MaxLimit)
	if p.Offset, err = intParam(r, "offset", 0); err != nil {
		return p, err
	}
	p.Offset = max(p.Offset, 0)

	p.SortBy = strings.TrimSpace(q.Get("sort_by"))
	switch o := strings.ToLower(strings.TrimSpace(q.Get("order"))); o {
	case "", "desc":
	case "asc":
		p.Desc = false
	default:
		return p, &ParamError{Param: "order", Message: "must be asc or desc"}
	}

	for _, f := range strings.Split(q.Get("fields"), ",") {
		if f = strings.TrimSpace(f); f != "" {
			p.Fields = append(p.Fields, f)
		}
	}

	switch f := strings.ToLower(strings.TrimSpace(q.Get("format"))); f {
	case "", FormatJSON:
	case FormatCSV, FormatParquet:
		p.Format = f
	default:
		return p, &ParamError{Param: "format", Message: "must be json, csv or parquet"}
	}
	return p, nil
}

// Apply sorts, paginates and projects f. It returns the page and the total
// row count before pagination. Unknown fields are dropped; when none of the
// requested fields exist the page keeps every column, the same as an
// unknown sort_by leaves the order untouched.
func Apply(f *frame.Frame, p Params) (*frame.Frame, int) {
	total := f.Len()
	if p.SortBy != "" && f.Has(p.SortBy) {
		f = f.SortBy(p.SortBy, p.Desc)
	}
	page := f.Slice(p.Offset, p.Limit)
	if len(p.Fields) > 0 {
		if projected := page.Select(p.Fields...); len(projected.Columns()) > 0 {
			page = projected
		}
	}
	return page, total
}

// Items renders rows for JSON. NaN becomes null.
func Items(f *frame.Frame) []map[string]any {
	items := f.Records()
	for _, rec := range items {
		for k, v := range rec {
			if x, ok := v.(float64); ok && (math.IsNaN(x) || math.IsInf(x, 0)) {
				rec[k] = nil
			}
		}
	}
	return items
}

// Respond applies p to f and writes it in the requested format. name is used
// for the download file name of csv and parquet payloads.
func Respond(w http.ResponseWriter, r *http.Request, f *frame.Frame, p Params, name string) {
	page, total := Apply(f, p)
	switch p.Format {
	case FormatCSV:
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".csv"))
		w.Header().Set("X-Total-Count", strconv.Itoa(total))
		if err := frame.WriteCSV(w, page); err != nil {
			log.Printf("[listing] write csv %s: %v", name, err)
		}
	case FormatParquet:
		data, err := frame.EncodeParquet(page)
		if err != nil {
			utils.WriteError(w, r, http.StatusInternalServerError, "encode_failed", err.Error(), nil)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.apache.parquet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".parquet"))
		w.Header().Set("X-Total-Count", strconv.Itoa(total))
		_, _ = w.Write(data)
	default:
		utils.WriteJSON(w, Envelope{Total: total, Limit: p.Limit, Offset: p.Offset, Items: Items(page)})
	}
}

// BadParam writes a 422 for a parameter error, or 500 for anything else.
func BadParam(w http.ResponseWriter, r *http.Request, err error) {
	var pe *ParamError
	if errors.As(err, &pe) {
		utils.WriteError(w, r, http.StatusUnprocessableEntity, "invalid_parameter", pe.Error(), utils.ErrorBody{"param": pe.Param})
		return
	}
	utils.WriteError(w, r, http.StatusInternalServerError, "internal_error", err.Error(), nil)
}

// LoadError answers a failed artifact load: 503 when the artifact is missing
// or unreachable.
func LoadError(w http.ResponseWriter, r *http.Request, artifact string, err error) {
	log.Printf("[listing] load %s: %v", artifact, err)
	msg := fmt.Sprintf("Dataset %s is not available. Run the sync pipeline to build it.", artifact)
	if !errors.Is(err, store.ErrNotFound) {
		msg = fmt.Sprintf("Dataset %s could not be read: %v", artifact, err)
	}
	utils.WriteError(w, r, http.StatusServiceUnavailable, "dataset_unavailable", msg, utils.ErrorBody{"dataset": artifact})
}

// DateParam parses an optional YYYY-MM-DD parameter.
func DateParam(r *http.Request, name string) (*frame.Date, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	d, err := frame.ParseDate(raw)
	if err != nil {
		return nil, &ParamError{Param: name, Message: "must be a date in YYYY-MM-DD format"}
	}
	return &d, nil
}

// IntParam parses an optional integer parameter; ok is false when absent.
func IntParam(r *http.Request, name string) (n int, ok bool, err error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, false, nil
	}
	n, err = strconv.Atoi(raw)
	if err != nil {
		return 0, false, &ParamError{Param: name, Message: "must be an integer"}
	}
	return n, true, nil
}

// InRange reports whether d lies within the optional inclusive bounds.
func InRange(d frame.Date, start, end *frame.Date) bool {
	if start != nil && d.Before(*start) {
		return false
	}
	if end != nil && d.After(*end) {
		return false
	}
	return true
}
