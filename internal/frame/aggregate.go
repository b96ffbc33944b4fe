package frame

import (
	"sort"
	"strings"
)

// Reducer folds the values of one column within a group.
type Reducer int

const (
	// Sum adds numeric values; nulls are skipped and an all-null group sums to 0.
	Sum Reducer = iota
	// Max keeps the largest non-null value.
	Max
	// First keeps the first non-null value in input order.
	First
	// Count counts non-null values.
	Count
)

func (r Reducer) String() string {
	switch r {
	case Sum:
		return "sum"
	case Max:
		return "max"
	case First:
		return "first"
	case Count:
		return "count"
	}
	return "unknown"
}

// Agg declares one output column of a GroupBy. As defaults to Column.
type Agg struct {
	Column string
	Op     Reducer
	As     string
}

func (a Agg) name() string {
	if a.As != "" {
		return a.As
	}
	return a.Column
}

type accumulator struct {
	sumF   float64
	sumI   int64
	intSum bool
	seen   bool
	value  any
	count  int64
}

func (acc *accumulator) add(op Reducer, v any) {
	if v == nil {
		return
	}
	switch op {
	case Sum:
		switch x := v.(type) {
		case int64:
			if !acc.seen {
				acc.intSum = true
			}
			acc.sumI += x
			acc.sumF += float64(x)
		case float64:
			acc.intSum = false
			acc.sumF += x
		default:
			return
		}
		acc.seen = true
	case Max:
		if !acc.seen || Compare(v, acc.value) > 0 {
			acc.value = v
		}
		acc.seen = true
	case First:
		if !acc.seen {
			acc.value = v
			acc.seen = true
		}
	case Count:
		acc.count++
	}
}

func (acc *accumulator) result(op Reducer) any {
	switch op {
	case Sum:
		if acc.seen && acc.intSum {
			return acc.sumI
		}
		return acc.sumF
	case Count:
		return acc.count
	default:
		if !acc.seen {
			return nil
		}
		return acc.value
	}
}

type group struct {
	key  []any
	accs []accumulator
}

// GroupBy groups rows by the key columns and applies one reducer per output
// column. Rows with a null in any key column are dropped. Output rows are
// ordered by key; output columns are the keys followed by the aggregations.
func (f *Frame) GroupBy(keys []string, aggs ...Agg) *Frame {
	keyIdx := make([]int, len(keys))
	for i, k := range keys {
		keyIdx[i] = f.Index(k)
	}
	aggIdx := make([]int, len(aggs))
	for i, a := range aggs {
		aggIdx[i] = f.Index(a.Column)
	}

	groups := make(map[string]*group)
	var order []*group
	var sb strings.Builder
rows:
	for _, row := range f.rows {
		sb.Reset()
		key := make([]any, len(keys))
		for i, idx := range keyIdx {
			if idx < 0 || row[idx] == nil {
				continue rows
			}
			key[i] = row[idx]
			sb.WriteString(KindOf(row[idx]).String())
			sb.WriteByte(':')
			sb.WriteString(Format(row[idx]))
			sb.WriteByte(0x1f)
		}
		g, ok := groups[sb.String()]
		if !ok {
			g = &group{key: key, accs: make([]accumulator, len(aggs))}
			groups[sb.String()] = g
			order = append(order, g)
		}
		for i, idx := range aggIdx {
			if idx < 0 {
				continue
			}
			g.accs[i].add(aggs[i].Op, row[idx])
		}
	}

	sort.SliceStable(order, func(a, b int) bool {
		for i := range keys {
			if c := Compare(order[a].key[i], order[b].key[i]); c != 0 {
				return c < 0
			}
		}
		return false
	})

	cols := append([]string(nil), keys...)
	for _, a := range aggs {
		cols = append(cols, a.name())
	}
	out := New(cols...)
	out.rows = make([][]any, 0, len(order))
	for _, g := range order {
		row := make([]any, 0, len(cols))
		row = append(row, g.key...)
		for i, a := range aggs {
			row = append(row, g.accs[i].result(a.Op))
		}
		out.rows = append(out.rows, row)
	}
	return out
}

// SumColumn adds every numeric value of col.
func (f *Frame) SumColumn(col string) float64 {
	i := f.Index(col)
	if i < 0 {
		return 0
	}
	var total float64
	for _, row := range f.rows {
		if v, ok := AsFloat(row[i]); ok {
			total += v
		}
	}
	return total
}

// DuplicateKeys counts rows whose key tuple was already seen earlier in the frame.
func (f *Frame) DuplicateKeys(keys ...string) int {
	idx := make([]int, len(keys))
	for i, k := range keys {
		idx[i] = f.Index(k)
	}
	seen := make(map[string]struct{}, len(f.rows))
	dups := 0
	var sb strings.Builder
	for _, row := range f.rows {
		sb.Reset()
		for _, i := range idx {
			if i >= 0 {
				sb.WriteString(Format(row[i]))
			}
			sb.WriteByte(0x1f)
		}
		k := sb.String()
		if _, ok := seen[k]; ok {
			dups++
			continue
		}
		seen[k] = struct{}{}
	}
	return dups
}
