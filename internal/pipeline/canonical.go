// Package pipeline turns raw source sheets into the four analytical artifacts:
// the canonical activity fact, the dengue history fact, the municipal
// dimension and the integrated gold aggregate.
package pipeline

import (
	"math"
	"strings"
	"time"

	"github.com/techdengue/analytics/internal/frame"
	"github.com/techdengue/analytics/internal/sources"
)

// Canonical activity columns, in storage order.
const (
	ColCodigoIBGE  = "codigo_ibge"
	ColMunicipio   = "municipio"
	ColDataMap     = "data_map"
	ColAtividade   = "nomenclatura_atividade"
	ColPOIs        = "pois"
	ColDevolutivas = "devolutivas"
	ColHectares    = "hectares_mapeados"
	ColContratante = "contratante"
	ColLinkGIS     = "link_gis"
	ColSub         = "sub_atividade"
	ColDataCarga   = "data_carga"
	ColVersao      = "versao"
)

// CanonicalKey is the primary key of the canonical activity fact.
var CanonicalKey = []string{ColCodigoIBGE, ColDataMap, ColAtividade}

// CanonicalColumns lists the canonical activity columns in storage order.
var CanonicalColumns = func() []string {
	cols := []string{ColCodigoIBGE, ColMunicipio, ColDataMap, ColAtividade, ColPOIs, ColDevolutivas}
	for _, c := range sources.TreatmentCounters {
		cols = append(cols, strings.ToLower(c))
	}
	return append(cols, ColHectares, ColContratante, ColLinkGIS, ColSub, ColDataCarga, ColVersao)
}()

var rawKey = []string{sources.ColCodigoIBGE, sources.ColDataMap, sources.ColAtividade}

// activityAggs is the reduction applied per canonical key. Sub-activities
// inherit the parent's hectares, so hectares take the group maximum; summing
// them double counts.
func activityAggs() []frame.Agg {
	aggs := []frame.Agg{
		{Column: sources.ColMunicipio, Op: frame.First},
		{Column: sources.ColPOIs, Op: frame.Sum},
		{Column: sources.ColDevolutivas, Op: frame.Sum},
	}
	for _, c := range sources.TreatmentCounters {
		aggs = append(aggs, frame.Agg{Column: c, Op: frame.Sum})
	}
	return append(aggs,
		frame.Agg{Column: sources.ColHectares, Op: frame.Max},
		frame.Agg{Column: sources.ColContratante, Op: frame.First},
		frame.Agg{Column: sources.ColLinkGIS, Op: frame.First},
		frame.Agg{Column: sources.ColSubAtividade, Op: frame.First},
	)
}

// Canonical builds the canonical activity fact from the raw activity sheet:
// one row per (codigo_ibge, data_map, nomenclatura_atividade).
func Canonical(raw *frame.Frame, loadedAt time.Time, version string) *frame.Frame {
	f := raw
	for _, c := range []string{
		sources.ColCodigoIBGE, sources.ColMunicipio, sources.ColDataMap, sources.ColAtividade,
		sources.ColSubAtividade, sources.ColContratante, sources.ColLinkGIS,
		sources.ColPOIs, sources.ColDevolutivas, sources.ColHectares,
	} {
		f = ensureColumn(f, c)
	}
	for _, c := range sources.TreatmentCounters {
		col := c
		f = f.WithColumn(col, func(r frame.Row) any { return counter(r.Get(col)) })
	}

	out := f.GroupBy(rawKey, activityAggs()...)

	rename := make(map[string]string, len(out.Columns()))
	for _, c := range out.Columns() {
		rename[c] = strings.ToLower(c)
	}
	out = out.Rename(rename)
	out = out.WithColumn(ColDataCarga, func(frame.Row) any { return loadedAt.UTC() })
	out = out.WithColumn(ColVersao, func(frame.Row) any { return version })
	return out.Select(CanonicalColumns...)
}

func ensureColumn(f *frame.Frame, col string) *frame.Frame {
	if f.Has(col) {
		return f
	}
	return f.WithColumn(col, func(frame.Row) any { return nil })
}

// counter coerces boolean-ish treatment counters to integers, null meaning zero.
func counter(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case float64:
		if math.IsNaN(x) {
			return 0
		}
		return int64(math.Round(x))
	case bool:
		if x {
			return 1
		}
	case string:
		switch sources.FoldASCII(x) {
		case "SIM", "S", "TRUE", "X":
			return 1
		}
		if n, ok := sources.ParseNumber(x); ok {
			return int64(math.Round(n))
		}
	}
	return 0
}
