// Package frame holds the in-memory tabular representation shared by the
// pipeline, the store and the serving API. Columns are ordered; each cell is one
// of nil, string, float64, int64, bool, Date or time.Time.
package frame

import (
	"fmt"
)

// Frame is an ordered set of named columns over row-major values.
type Frame struct {
	columns []string
	index   map[string]int
	rows    [][]any
}

// New returns an empty frame with the given columns.
func New(columns ...string) *Frame {
	f := &Frame{
		columns: append([]string(nil), columns...),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range f.columns {
		f.index[c] = i
	}
	return f
}

// FromRecords builds a frame from maps keyed by column name. Missing keys become null.
func FromRecords(columns []string, records []map[string]any) *Frame {
	f := New(columns...)
	for _, rec := range records {
		row := make([]any, len(columns))
		for i, c := range columns {
			row[i] = Normalize(rec[c])
		}
		f.rows = append(f.rows, row)
	}
	return f
}

func (f *Frame) Columns() []string { return append([]string(nil), f.columns...) }

func (f *Frame) Len() int { return len(f.rows) }

// Index returns the position of col, or -1.
func (f *Frame) Index(col string) int {
	if i, ok := f.index[col]; ok {
		return i
	}
	return -1
}

func (f *Frame) Has(col string) bool {
	_, ok := f.index[col]
	return ok
}

// Append adds a row. The number of values must match the number of columns.
func (f *Frame) Append(values ...any) error {
	if len(values) != len(f.columns) {
		return fmt.Errorf("frame: row has %d values, want %d", len(values), len(f.columns))
	}
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = Normalize(v)
	}
	f.rows = append(f.rows, row)
	return nil
}

// AppendRecord adds a row from a map; unknown keys are ignored.
func (f *Frame) AppendRecord(rec map[string]any) {
	row := make([]any, len(f.columns))
	for i, c := range f.columns {
		row[i] = Normalize(rec[c])
	}
	f.rows = append(f.rows, row)
}

// Value returns the cell at (row, col), or nil when the column does not exist.
func (f *Frame) Value(row int, col string) any {
	i, ok := f.index[col]
	if !ok {
		return nil
	}
	return f.rows[row][i]
}

// Set replaces the cell at (row, col). Unknown columns are ignored.
func (f *Frame) Set(row int, col string, v any) {
	if i, ok := f.index[col]; ok {
		f.rows[row][i] = Normalize(v)
	}
}

// Row returns a read accessor for the i-th row.
func (f *Frame) Row(i int) Row { return Row{f: f, values: f.rows[i]} }

// Column returns a copy of the values of col.
func (f *Frame) Column(col string) []any {
	i, ok := f.index[col]
	if !ok {
		return nil
	}
	out := make([]any, len(f.rows))
	for r, row := range f.rows {
		out[r] = row[i]
	}
	return out
}

// Copy returns a deep copy: callers may mutate the result without affecting f.
func (f *Frame) Copy() *Frame {
	out := New(f.columns...)
	out.rows = make([][]any, len(f.rows))
	for i, row := range f.rows {
		out.rows[i] = append([]any(nil), row...)
	}
	return out
}

// Rename returns a frame whose columns are renamed by mapping. Unmapped columns keep their name.
func (f *Frame) Rename(mapping map[string]string) *Frame {
	cols := make([]string, len(f.columns))
	for i, c := range f.columns {
		if n, ok := mapping[c]; ok {
			cols[i] = n
		} else {
			cols[i] = c
		}
	}
	out := New(cols...)
	out.rows = f.rows
	return out.Copy()
}

// WithColumn returns a frame with col set to fn(row) for every row; col is appended if new.
func (f *Frame) WithColumn(col string, fn func(Row) any) *Frame {
	cols := f.columns
	pos, exists := f.index[col]
	if !exists {
		cols = append(append([]string(nil), f.columns...), col)
		pos = len(cols) - 1
	}
	out := New(cols...)
	out.rows = make([][]any, len(f.rows))
	for i, row := range f.rows {
		nr := make([]any, len(cols))
		copy(nr, row)
		nr[pos] = Normalize(fn(Row{f: f, values: row}))
		out.rows[i] = nr
	}
	return out
}

// Records renders rows as maps keyed by column name.
func (f *Frame) Records() []map[string]any {
	out := make([]map[string]any, len(f.rows))
	for r, row := range f.rows {
		rec := make(map[string]any, len(f.columns))
		for i, c := range f.columns {
			rec[c] = row[i]
		}
		out[r] = rec
	}
	return out
}

// Kinds infers the kind of each column from all of its non-null values.
// Mixed int and float columns widen to float; any other mix is a string
// column. Columns with only nulls are reported as strings.
func (f *Frame) Kinds() map[string]Kind {
	kinds := make(map[string]Kind, len(f.columns))
	for i, c := range f.columns {
		k := KindNull
		for _, row := range f.rows {
			if row[i] == nil {
				continue
			}
			k = widen(k, KindOf(row[i]))
			if k == KindString {
				break
			}
		}
		if k == KindNull {
			k = KindString
		}
		kinds[c] = k
	}
	return kinds
}

func widen(a, b Kind) Kind {
	switch {
	case a == KindNull || a == b:
		return b
	case (a == KindInt && b == KindFloat) || (a == KindFloat && b == KindInt):
		return KindFloat
	}
	return KindString
}

// Row is a read-only view over one frame row.
type Row struct {
	f      *Frame
	values []any
}

func (r Row) Get(col string) any {
	i, ok := r.f.index[col]
	if !ok {
		return nil
	}
	return r.values[i]
}

// String returns the value of col as a string, or "" when null.
func (r Row) String(col string) string {
	v := r.Get(col)
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return Format(v)
}

// Float returns the numeric value of col, or 0 when null or non-numeric.
func (r Row) Float(col string) float64 {
	f, _ := AsFloat(r.Get(col))
	return f
}

// Date returns the value of col as a Date when it is one.
func (r Row) Date(col string) (Date, bool) {
	d, ok := r.Get(col).(Date)
	return d, ok
}
