// Package sources isolates raw input formats: the mega-planilha workbook,
// the yearly dengue PRN files, the IBGE sheet and the read-only GIS database.
// Adapters only coerce types; they never reshape data.
package sources

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/techdengue/analytics/internal/frame"
)

var (
	nonAlnum = regexp.MustCompile(`[^A-Z0-9]+`)
	spaces   = regexp.MustCompile(`\s+`)
)

// columnAliases maps known header variants, already in key form, to canonical names.
var columnAliases = map[string]string{
	"COD_IBGE":           "CODIGO_IBGE",
	"CODIGO_DO_IBGE":     "CODIGO_IBGE",
	"IBGE":               "CODIGO_IBGE",
	"CODIGO_MUNICIPIO":   "CODIGO_IBGE",
	"NOME_MUNICIPIO":     "MUNICIPIO",
	"MUNICIPIO_NOME":     "MUNICIPIO",
	"NOME":               "MUNICIPIO",
	"HECTARES":           "HECTARES_MAPEADOS",
	"HECTARE_MAPEADOS":   "HECTARES_MAPEADOS",
	"AREA_KM":            "AREA_KM2",
	"AREA":               "AREA_KM2",
	"POPULACAO_ESTIMADA": "POPULACAO",
	"LAT":                "LATITUDE",
	"LON":                "LONGITUDE",
	"LONG":               "LONGITUDE",
	"LNG":                "LONGITUDE",
}

// FoldASCII strips diacritics, upper-cases and collapses whitespace.
func FoldASCII(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.ToUpper(strings.TrimSpace(out))
	return spaces.ReplaceAllString(out, " ")
}

// NormalizeColumn maps a header to its canonical key form: accents removed,
// upper case, runs of spaces and punctuation collapsed to one underscore.
// "CODIGO IBGE" becomes CODIGO_IBGE and "Município" becomes MUNICIPIO.
func NormalizeColumn(name string) string {
	key := strings.Trim(nonAlnum.ReplaceAllString(FoldASCII(name), "_"), "_")
	if alias, ok := columnAliases[key]; ok {
		return alias
	}
	return key
}

// NormalizeColumns applies NormalizeColumn to every header. Later duplicates
// get a numeric suffix so no column is silently lost.
func NormalizeColumns(headers []string) []string {
	out := make([]string, len(headers))
	seen := make(map[string]int, len(headers))
	for i, h := range headers {
		n := NormalizeColumn(h)
		if n == "" {
			n = "COLUNA_" + strconv.Itoa(i+1)
		}
		if c := seen[n]; c > 0 {
			seen[n] = c + 1
			n = n + "_" + strconv.Itoa(c+1)
		} else {
			seen[n] = 1
		}
		out[i] = n
	}
	return out
}

func isNullToken(s string) bool {
	switch strings.ToLower(s) {
	case "", "-", "nan", "null", "none", "n/a", "na", "#n/d", "#n/a":
		return true
	}
	return false
}

// ParseNumber parses spreadsheet numbers: comma decimals, pt-BR thousand
// separators and trailing ".0" all occur. ok is false for unparseable input
// and for infinities.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if isNullToken(s) {
		return 0, false
	}
	s = strings.ReplaceAll(s, " ", "")
	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")
	switch {
	case hasComma && hasDot:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case hasComma:
		s = strings.ReplaceAll(s, ",", ".")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// CleanIBGE turns "3100104", "3100104.0" or " 3100104 " into "3100104".
// Returns "" when no digits remain.
func CleanIBGE(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, ".,"); i >= 0 && strings.Trim(s[i+1:], "0") == "" {
		s = s[:i]
	}
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IBGE6 drops the check digit of a 7-digit code.
func IBGE6(code string) string {
	if len(code) == 7 {
		return code[:6]
	}
	return code
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"02/01/2006",
	"02/01/2006 15:04:05",
	"2/1/2006",
	"02-01-2006",
	"2006/01/02",
}

// ParseDateCell accepts ISO and dd/mm/yyyy dates as well as Excel serial day numbers.
func ParseDateCell(s string) (frame.Date, bool) {
	s = strings.TrimSpace(s)
	if isNullToken(s) {
		return frame.Date{}, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if f < 1 || f > 2958465 {
			return frame.Date{}, false
		}
		t, err := excelize.ExcelDateToTime(f, false)
		if err != nil {
			return frame.Date{}, false
		}
		return frame.DateOf(t), true
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return frame.DateOf(t), true
		}
	}
	return frame.Date{}, false
}
