package sources

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var (
	weekHeader = regexp.MustCompile(`(?i)^semana\s*0*(\d{1,2})$`)
	yearInName = regexp.MustCompile(`(20\d{2})`)
	code6      = regexp.MustCompile(`^\d{6}$`)
)

// DengueRow is one municipality line of a yearly file. Cases is aligned with
// DengueFile.Weeks.
type DengueRow struct {
	Code6 string
	Name  string
	Cases []int
	Total int
}

// DengueFile is a parsed yearly PRN file.
type DengueFile struct {
	Path     string
	Year     int
	Encoding string
	Weeks    []int
	Rows     []DengueRow
}

// CasesThrough sums a row's weekly counts for weeks <= limit. limit <= 0 means every week.
func (f *DengueFile) CasesThrough(row DengueRow, limit int) int {
	total := 0
	for i, w := range f.Weeks {
		if limit > 0 && w > limit {
			continue
		}
		total += row.Cases[i]
	}
	return total
}

// cp1252 leaves these bytes undefined; a file containing them is not cp1252.
var cp1252Undefined = []byte{0x81, 0x8d, 0x8f, 0x90, 0x9d}

// DecodeText converts raw bytes to UTF-8, trying utf-8-sig, then cp1252, then
// latin-1. latin-1 maps every byte, so it is the last resort and never fails.
// It reports which decoder was used.
func DecodeText(data []byte) (string, string) {
	if utf8.Valid(data) {
		return strings.TrimPrefix(string(data), "\ufeff"), "utf-8-sig"
	}
	if !containsAnyByte(data, cp1252Undefined) {
		if s, err := charmap.Windows1252.NewDecoder().Bytes(data); err == nil {
			return string(s), "cp1252"
		}
	}
	s, _ := charmap.ISO8859_1.NewDecoder().Bytes(data)
	return string(s), "latin-1"
}

// YearFromPath extracts the four-digit year embedded in a dengue file name.
func YearFromPath(path string) (int, bool) {
	m := yearInName.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return 0, false
	}
	y, err := strconv.Atoi(m[1])
	return y, err == nil
}

// SplitCodeName splits "<ibge6> <name>" on the first space. When the first
// token is not a 6-digit code the whole field is the name.
func SplitCodeName(field string) (string, string) {
	field = strings.TrimSpace(field)
	head, rest, found := strings.Cut(field, " ")
	if found && code6.MatchString(head) {
		return head, strings.TrimSpace(rest)
	}
	if code6.MatchString(field) {
		return field, ""
	}
	return "", field
}

func containsAnyByte(data, set []byte) bool {
	for _, c := range set {
		if bytes.IndexByte(data, c) >= 0 {
			return true
		}
	}
	return false
}

func parseCount(s string) int {
	n, ok := ParseNumber(s)
	if !ok || n < 0 {
		return 0
	}
	return int(n)
}

// ReadDengueFile parses a yearly PRN file from disk.
func ReadDengueFile(path string) (*DengueFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dengue file %s: %w", path, err)
	}
	year, ok := YearFromPath(path)
	if !ok {
		return nil, fmt.Errorf("dengue file %s: no year in file name", path)
	}
	f, err := ParseDengue(data, year)
	if err != nil {
		return nil, fmt.Errorf("dengue file %s: %w", path, err)
	}
	f.Path = path
	return f, nil
}

// ParseDengue parses PRN content: a header of identifier, "Semana NN" columns
// and "Total", followed by one row per municipality. Integer failures count as 0.
func ParseDengue(data []byte, year int) (*DengueFile, error) {
	text, enc := DecodeText(data)
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New("empty file")
	}

	header := records[0]
	out := &DengueFile{Year: year, Encoding: enc}
	var weekCols []int
	totalCol := -1
	for i, h := range header {
		h = strings.TrimSpace(h)
		if m := weekHeader.FindStringSubmatch(h); m != nil {
			w, _ := strconv.Atoi(m[1])
			if w < 1 || w > 53 {
				continue
			}
			out.Weeks = append(out.Weeks, w)
			weekCols = append(weekCols, i)
		} else if strings.EqualFold(h, "Total") {
			totalCol = i
		}
	}
	if len(weekCols) == 0 {
		return nil, fmt.Errorf("no 'Semana NN' columns in header %q", strings.Join(header, ","))
	}

	for _, rec := range records[1:] {
		if len(rec) == 0 || strings.TrimSpace(rec[0]) == "" {
			continue
		}
		code, name := SplitCodeName(rec[0])
		if code == "" && (strings.EqualFold(name, "Total") || strings.HasPrefix(strings.ToLower(name), "fonte")) {
			continue
		}
		row := DengueRow{Code6: code, Name: name, Cases: make([]int, len(weekCols))}
		sum := 0
		for j, ci := range weekCols {
			if ci < len(rec) {
				row.Cases[j] = parseCount(rec[ci])
				sum += row.Cases[j]
			}
		}
		row.Total = sum
		if totalCol >= 0 && totalCol < len(rec) {
			if t := parseCount(rec[totalCol]); t > 0 {
				row.Total = t
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// DengueFiles lists the PRN/CSV files in dir that carry a year in their name,
// ordered by year.
func DengueFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("dengue dir %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".prn" && ext != ".csv" {
			continue
		}
		if _, ok := YearFromPath(e.Name()); ok {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Slice(paths, func(i, j int) bool {
		yi, _ := YearFromPath(paths[i])
		yj, _ := YearFromPath(paths[j])
		if yi != yj {
			return yi < yj
		}
		return paths[i] < paths[j]
	})
	return paths, nil
}
