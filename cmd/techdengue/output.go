package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/goccy/go-yaml"

	"github.com/techdengue/analytics/internal/frame"
)

// Output formats accepted by --output.
const (
	outputTable = "table"
	outputJSON  = "json"
	outputCSV   = "csv"
	outputYAML  = "yaml"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
)

func printSuccess(w io.Writer, format string, args ...any) {
	successColor.Fprintf(w, "✓ %s\n", fmt.Sprintf(format, args...))
}

func printError(w io.Writer, format string, args ...any) {
	errorColor.Fprintf(w, "✗ %s\n", fmt.Sprintf(format, args...))
}

func printWarning(w io.Writer, format string, args ...any) {
	warningColor.Fprintf(w, "! %s\n", fmt.Sprintf(format, args...))
}

func checkOutput(format string) error {
	switch format {
	case outputTable, outputJSON, outputCSV, outputYAML:
		return nil
	}
	return fmt.Errorf("unknown output format %q (table, json, csv or yaml)", format)
}

// render writes a frame in the requested format.
func render(w io.Writer, format string, f *frame.Frame) error {
	switch format {
	case outputCSV:
		return frame.WriteCSV(w, f)
	case outputJSON:
		return renderValue(w, format, f.Records())
	case outputYAML:
		return renderValue(w, format, plainRecords(f))
	default:
		return renderTable(w, f)
	}
}

// renderValue writes a non-tabular value. Table and csv fall back to a
// key/value listing.
func renderValue(w io.Writer, format string, v any) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		out, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		_, err = w.Write(out)
		return err
	default:
		return renderKV(w, v)
	}
}

// plainRecords renders dates and timestamps as text, the way the CSV codec does.
func plainRecords(f *frame.Frame) []map[string]any {
	recs := f.Records()
	for _, rec := range recs {
		for k, v := range rec {
			switch v.(type) {
			case frame.Date, time.Time:
				rec[k] = frame.Format(v)
			}
		}
	}
	return recs
}

func renderTable(w io.Writer, f *frame.Frame) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	cols := f.Columns()
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(cols, "\t")))
	for i := 0; i < f.Len(); i++ {
		row := f.Row(i)
		cells := make([]string, len(cols))
		for j, c := range cols {
			cells[j] = truncate(row.String(c), 60)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "(%d rows)\n", f.Len())
	return nil
}

func renderKV(w io.Writer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		_, err = fmt.Fprintln(w, string(raw))
		return err
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, k := range keys {
		val := m[k]
		s, ok := val.(string)
		if !ok {
			b, _ := json.Marshal(val)
			s = string(b)
		}
		fmt.Fprintf(tw, "%s\t%s\n", k, truncate(s, 100))
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
