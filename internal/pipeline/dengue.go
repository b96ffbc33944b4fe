package pipeline

import (
	"log"

	"github.com/techdengue/analytics/internal/frame"
	"github.com/techdengue/analytics/internal/sources"
)

// Dengue history columns.
const (
	ColMunicipioNorm = "municipio_normalizado"
	ColAno           = "ano"
	ColSemanaLimite  = "semana_limite"
	ColTotalCasos    = "total_casos"
)

// DengueColumns lists the dengue history columns in storage order.
var DengueColumns = []string{
	ColCodigoIBGE6, ColCodigoIBGE, ColMunicipio, ColMunicipioNorm, ColAno, ColSemanaLimite, ColTotalCasos,
}

// DengueResult is the outcome of building the dengue history fact.
type DengueResult struct {
	Frame *frame.Frame
	// Unresolved counts rows whose municipality could be matched neither by
	// code nor by normalized name.
	Unresolved int
}

// BuildDengue merges yearly files into a long table keyed by
// (codigo_ibge_6, ano). Weekly counts are summed up to weekLimit; weekLimit
// <= 0 keeps every week. Rows lacking a 6-digit code are resolved through
// the normalized name seen in the other files or the dimension.
func BuildDengue(files []*sources.DengueFile, dim *frame.Frame, weekLimit int) DengueResult {
	idx := indexDimension(dim)
	names := make(map[string]string, len(idx.byName))
	for n, c := range idx.byName {
		names[n] = c
	}
	for _, f := range files {
		for _, row := range f.Rows {
			if row.Code6 != "" && row.Name != "" {
				names[sources.FoldASCII(row.Name)] = row.Code6
			}
		}
	}

	out := frame.New(DengueColumns...)
	res := DengueResult{}
	for _, f := range files {
		limit := weekLimit
		if limit <= 0 {
			for _, w := range f.Weeks {
				limit = max(limit, w)
			}
		}
		for _, row := range f.Rows {
			norm := sources.FoldASCII(row.Name)
			code6 := row.Code6
			if code6 == "" {
				code6 = names[norm]
			}
			if code6 == "" {
				res.Unresolved++
				continue
			}
			name := idx.name6[code6]
			if name == "" {
				name = row.Name
			}
			var code7 any
			if c, ok := idx.code7[code6]; ok {
				code7 = c
			}
			out.AppendRecord(map[string]any{
				ColCodigoIBGE6:   code6,
				ColCodigoIBGE:    code7,
				ColMunicipio:     name,
				ColMunicipioNorm: sources.FoldASCII(name),
				ColAno:           int64(f.Year),
				ColSemanaLimite:  int64(limit),
				ColTotalCasos:    int64(f.CasesThrough(row, weekLimit)),
			})
		}
	}
	if res.Unresolved > 0 {
		log.Printf("[pipeline] dengue: %d rows without a resolvable municipality were dropped", res.Unresolved)
	}

	res.Frame = out.GroupBy([]string{ColCodigoIBGE6, ColAno},
		frame.Agg{Column: ColCodigoIBGE, Op: frame.First},
		frame.Agg{Column: ColMunicipio, Op: frame.First},
		frame.Agg{Column: ColMunicipioNorm, Op: frame.First},
		frame.Agg{Column: ColSemanaLimite, Op: frame.Max},
		frame.Agg{Column: ColTotalCasos, Op: frame.Sum},
	).Select(DengueColumns...)
	return res
}

// casesIndex maps (code6, year) to the case total.
func casesIndex(dengue *frame.Frame) map[string]map[int64]int64 {
	out := map[string]map[int64]int64{}
	if dengue == nil {
		return out
	}
	for i := 0; i < dengue.Len(); i++ {
		r := dengue.Row(i)
		code := r.String(ColCodigoIBGE6)
		year, _ := r.Get(ColAno).(int64)
		total, ok := r.Get(ColTotalCasos).(int64)
		if !ok {
			total = int64(r.Float(ColTotalCasos))
		}
		if out[code] == nil {
			out[code] = map[int64]int64{}
		}
		out[code][year] += total
	}
	return out
}
