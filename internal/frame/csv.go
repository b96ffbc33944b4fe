package frame

import (
	"encoding/csv"
	"fmt"
	"io"
)

// WriteCSV writes a header row followed by every row, formatted with Format.
func WriteCSV(w io.Writer, f *Frame) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.columns); err != nil {
		return err
	}
	rec := make([]string, len(f.columns))
	for _, row := range f.rows {
		for i, v := range row {
			rec[i] = Format(v)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses CSV written by WriteCSV. Columns listed in kinds are parsed to
// that kind; others stay strings.
func ReadCSV(r io.Reader, kinds map[string]Kind) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	f := New(header...)
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line+1, err)
		}
		line++
		row := make([]any, len(header))
		for i, c := range header {
			if i >= len(rec) {
				continue
			}
			kind, ok := kinds[c]
			if !ok {
				kind = KindString
			}
			v, err := ParseAs(kind, rec[i])
			if err != nil {
				return nil, fmt.Errorf("csv line %d column %s: %w", line, c, err)
			}
			row[i] = v
		}
		f.rows = append(f.rows, row)
	}
	return f, nil
}
