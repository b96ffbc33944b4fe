// Package validate checks a raw mega-planilha sheet before any transformation
// is accepted. It never mutates its input.
package validate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/techdengue/analytics/internal/frame"
	"github.com/techdengue/analytics/internal/sources"
)

type Severity string

const (
	Info  Severity = "INFO"
	Warn  Severity = "WARN"
	Error Severity = "ERROR"
)

// Issue codes.
const (
	CodeEmpty       = "empty_input"
	CodeMissing     = "missing_columns"
	CodeIBGEPattern = "invalid_ibge"
	CodeDuplicates  = "duplicate_keys"
	CodeBadDates    = "unparseable_dates"
	CodeCoercion    = "numeric_coercion"
	CodePOIOverlap  = "poi_category_overlap"
)

// RequiredColumns must be present after header normalization.
var RequiredColumns = []string{sources.ColCodigoIBGE, sources.ColMunicipio, sources.ColDataMap, sources.ColAtividade}

// CanonicalKey is the grain at which activities are unique after deduplication.
var CanonicalKey = []string{sources.ColCodigoIBGE, sources.ColDataMap, sources.ColAtividade}

var mgIBGE = regexp.MustCompile(`^31\d{5}$`)

type Issue struct {
	Severity Severity `json:"severity" yaml:"severity"`
	Code     string   `json:"code" yaml:"code"`
	Message  string   `json:"message" yaml:"message"`
	Count    int      `json:"count,omitempty" yaml:"count,omitempty"`
}

type Summary struct {
	HectaresTotal float64 `json:"hectares_total" yaml:"hectares_total"`
	HectaresDedup float64 `json:"hectares_dedup" yaml:"hectares_dedup"`
	POIsTotal     float64 `json:"pois_total" yaml:"pois_total"`
	Source        string  `json:"source" yaml:"source"`
	Sheet         string  `json:"sheet" yaml:"sheet"`
}

// Report is the outcome of Validate. OK is false when any issue is an ERROR.
type Report struct {
	OK      bool    `json:"ok" yaml:"ok"`
	Rows    int     `json:"rows" yaml:"rows"`
	Columns int     `json:"columns" yaml:"columns"`
	Issues  []Issue `json:"issues" yaml:"issues"`
	Summary Summary `json:"summary" yaml:"summary"`
}

func (r *Report) add(sev Severity, code, msg string, count int) {
	r.Issues = append(r.Issues, Issue{Severity: sev, Code: code, Message: msg, Count: count})
	if sev == Error {
		r.OK = false
	}
}

// Has reports whether an issue with code was raised.
func (r *Report) Has(code string) bool {
	for _, i := range r.Issues {
		if i.Code == code {
			return true
		}
	}
	return false
}

// Errors returns the ERROR issues.
func (r *Report) Errors() []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Severity == Error {
			out = append(out, i)
		}
	}
	return out
}

// Validate runs every rule over sheet. It is idempotent.
func Validate(sheet *sources.Sheet) Report {
	f := sheet.Frame
	if f == nil {
		f = frame.New()
	}
	rep := Report{
		OK:      true,
		Rows:    f.Len(),
		Columns: len(f.Columns()),
		Issues:  []Issue{},
		Summary: Summary{Source: sheet.Source, Sheet: sheet.Name},
	}

	if f.Len() == 0 {
		rep.add(Error, CodeEmpty, "sheet has no data rows", 0)
	}

	var missing []string
	for _, c := range RequiredColumns {
		if !f.Has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		rep.add(Error, CodeMissing, "missing required columns: "+strings.Join(missing, ", "), len(missing))
	}

	if f.Has(sources.ColCodigoIBGE) {
		bad := 0
		for _, v := range f.Column(sources.ColCodigoIBGE) {
			s, _ := v.(string)
			if !mgIBGE.MatchString(s) {
				bad++
			}
		}
		if bad > 0 {
			rep.add(Warn, CodeIBGEPattern, fmt.Sprintf("%d row(s) with IBGE code outside the 31XXXXX pattern", bad), bad)
		}
	}

	if len(missing) == 0 {
		if dups := f.DuplicateKeys(CanonicalKey...); dups > 0 {
			rep.add(Warn, CodeDuplicates, fmt.Sprintf("%d row(s) share a canonical key and will be merged as sub-activities", dups), dups)
		}
	}

	if sheet.BadDates > 0 {
		rep.add(Warn, CodeBadDates, fmt.Sprintf("%d %s value(s) could not be parsed", sheet.BadDates, sources.ColDataMap), sheet.BadDates)
	}

	if n := sheet.CoercedTotal(); n > 0 {
		cols := make([]string, 0, len(sheet.Coerced))
		for c := range sheet.Coerced {
			cols = append(cols, c)
		}
		sort.Strings(cols)
		rep.add(Info, CodeCoercion, fmt.Sprintf("%d non-numeric value(s) became null in %s", n, strings.Join(cols, ", ")), n)
	}

	agg, det := sources.POICategoryColumns(f.Columns())
	if len(agg) > 0 && len(det) > 0 {
		rep.add(Warn, CodePOIOverlap, fmt.Sprintf("both aggregated (%d) and detailed (%d) POI category columns present; analytics use the aggregated set", len(agg), len(det)), len(det))
	}

	rep.Summary.HectaresTotal = f.SumColumn(sources.ColHectares)
	rep.Summary.POIsTotal = f.SumColumn(sources.ColPOIs)
	if len(missing) == 0 && f.Has(sources.ColHectares) {
		rep.Summary.HectaresDedup = f.GroupBy(CanonicalKey, frame.Agg{Column: sources.ColHectares, Op: frame.Max}).SumColumn(sources.ColHectares)
	}
	return rep
}
