package warehouse

import (
	"context"
	"fmt"

	"github.com/techdengue/analytics/internal/frame"
)

// Target is what Check needs from a warehouse. *Warehouse satisfies it.
type Target interface {
	Count(ctx context.Context, table string) (int64, error)
	HasKey(ctx context.Context, table string, key map[string]any) (bool, error)
}

// TableCheck compares one artifact with its warehouse table.
type TableCheck struct {
	Table         string `json:"table" yaml:"table"`
	StoreRows     int    `json:"store_rows" yaml:"store_rows"`
	WarehouseRows int64  `json:"warehouse_rows" yaml:"warehouse_rows"`
	SampledKeys   int    `json:"sampled_keys,omitempty" yaml:"sampled_keys,omitempty"`
	MissingKeys   int    `json:"missing_keys,omitempty" yaml:"missing_keys,omitempty"`
	Error         string `json:"error,omitempty" yaml:"error,omitempty"`
}

// OK reports whether counts match and no sampled key is missing.
func (c TableCheck) OK() bool {
	return c.Error == "" && int64(c.StoreRows) == c.WarehouseRows && c.MissingKeys == 0
}

// SampleRows picks n rows spread evenly over the frame, always including the
// first. The choice is deterministic so reruns check the same keys.
func SampleRows(f *frame.Frame, n int) []int {
	total := f.Len()
	if n <= 0 || total == 0 {
		return nil
	}
	if n >= total {
		out := make([]int, total)
		for i := range out {
			out[i] = i
		}
		return out
	}
	out := make([]int, n)
	step := float64(total) / float64(n)
	for i := range out {
		out[i] = int(float64(i) * step)
	}
	return out
}

// Check compares one artifact. When sample > 0 and keys are given, that many
// key tuples are looked up in the warehouse.
func Check(ctx context.Context, t Target, table string, f *frame.Frame, keys []string, sample int) TableCheck {
	c := TableCheck{Table: table, StoreRows: f.Len()}
	n, err := t.Count(ctx, table)
	if err != nil {
		c.Error = err.Error()
		return c
	}
	c.WarehouseRows = n
	if n < 0 {
		c.Error = "table missing in warehouse"
		return c
	}
	if sample <= 0 || len(keys) == 0 {
		return c
	}
	for _, i := range SampleRows(f, sample) {
		row := f.Row(i)
		key := make(map[string]any, len(keys))
		for _, k := range keys {
			key[k] = row.Get(k)
		}
		ok, err := t.HasKey(ctx, table, key)
		if err != nil {
			c.Error = fmt.Sprintf("sample lookup: %v", err)
			return c
		}
		c.SampledKeys++
		if !ok {
			c.MissingKeys++
		}
	}
	return c
}
