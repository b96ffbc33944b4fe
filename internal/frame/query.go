package frame

import "sort"

// Filter returns the rows for which keep returns true.
func (f *Frame) Filter(keep func(Row) bool) *Frame {
	out := New(f.columns...)
	for _, row := range f.rows {
		if keep(Row{f: f, values: row}) {
			out.rows = append(out.rows, append([]any(nil), row...))
		}
	}
	return out
}

// SortBy stable-sorts by col. Nulls always sort last. Unknown columns leave the order unchanged.
func (f *Frame) SortBy(col string, desc bool) *Frame {
	out := f.Copy()
	i := out.Index(col)
	if i < 0 {
		return out
	}
	sort.SliceStable(out.rows, func(a, b int) bool {
		va, vb := out.rows[a][i], out.rows[b][i]
		switch {
		case va == nil && vb == nil:
			return false
		case va == nil:
			return false
		case vb == nil:
			return true
		}
		c := Compare(va, vb)
		if desc {
			return c > 0
		}
		return c < 0
	})
	return out
}

// Select projects onto cols, in the given order. Unknown columns are dropped silently.
func (f *Frame) Select(cols ...string) *Frame {
	var keep []string
	var idx []int
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		if i, ok := f.index[c]; ok && !seen[c] {
			keep = append(keep, c)
			idx = append(idx, i)
			seen[c] = true
		}
	}
	out := New(keep...)
	out.rows = make([][]any, len(f.rows))
	for r, row := range f.rows {
		nr := make([]any, len(idx))
		for j, i := range idx {
			nr[j] = row[i]
		}
		out.rows[r] = nr
	}
	return out
}

// Slice returns up to limit rows starting at offset. An offset past the end yields an empty frame.
func (f *Frame) Slice(offset, limit int) *Frame {
	out := New(f.columns...)
	if offset < 0 {
		offset = 0
	}
	if offset >= len(f.rows) || limit <= 0 {
		return out
	}
	end := offset + limit
	if end > len(f.rows) {
		end = len(f.rows)
	}
	for _, row := range f.rows[offset:end] {
		out.rows = append(out.rows, append([]any(nil), row...))
	}
	return out
}
