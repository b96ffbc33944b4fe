package pipeline

import (
	"strings"

	"github.com/techdengue/analytics/internal/frame"
	"github.com/techdengue/analytics/internal/sources"
)

// Gold aggregate columns.
const (
	ColCompetencia      = "competencia"
	ColTotalPOIs        = "total_pois"
	ColTotalDevolutivas = "total_devolutivas"
	ColTotalHectares    = "total_hectares"
	ColTotalAtividades  = "total_atividades"
	ColCasosDengueAno   = "casos_dengue_ano"
	ColTaxaIncidencia   = "taxa_incidencia_100k"
)

// GoldColumns lists the gold aggregate columns in storage order.
var GoldColumns = []string{
	ColCodigoIBGE, ColMunicipio, ColCompetencia,
	ColTotalPOIs, ColTotalDevolutivas, ColTotalHectares, ColTotalAtividades,
	ColPopulacao, ColCasosDengueAno, ColTaxaIncidencia, ColDataCarga,
}

// Gold aggregates the canonical fact per (codigo_ibge, competencia), where
// competencia is the first day of the activity month. municipio is taken from
// the dimension when the code is known there, else from the first non-empty
// name in the bucket. dim and dengue are optional; without them the
// enrichment columns stay null.
func Gold(canonical, dim, dengue *frame.Frame) *frame.Frame {
	idx := indexDimension(dim)
	cases := casesIndex(dengue)

	f := canonical.WithColumn(ColCompetencia, func(r frame.Row) any {
		d, ok := r.Date(ColDataMap)
		if !ok {
			return nil
		}
		return d.MonthStart()
	})
	f = f.WithColumn(ColMunicipio, func(r frame.Row) any {
		if name := strings.TrimSpace(r.String(ColMunicipio)); name != "" {
			return name
		}
		return nil
	})

	out := f.GroupBy([]string{ColCodigoIBGE, ColCompetencia},
		frame.Agg{Column: ColMunicipio, Op: frame.First},
		frame.Agg{Column: ColPOIs, Op: frame.Sum, As: ColTotalPOIs},
		frame.Agg{Column: ColDevolutivas, Op: frame.Sum, As: ColTotalDevolutivas},
		frame.Agg{Column: ColHectares, Op: frame.Sum, As: ColTotalHectares},
		frame.Agg{Column: ColAtividade, Op: frame.Count, As: ColTotalAtividades},
		frame.Agg{Column: ColDataCarga, Op: frame.Max},
	)

	out = out.WithColumn(ColMunicipio, func(r frame.Row) any {
		if name := idx.byCode7[r.String(ColCodigoIBGE)]; name != "" {
			return name
		}
		return r.Get(ColMunicipio)
	})
	out = out.WithColumn(ColPopulacao, func(r frame.Row) any {
		if p, ok := idx.pop7[r.String(ColCodigoIBGE)]; ok {
			return p
		}
		return nil
	})
	out = out.WithColumn(ColCasosDengueAno, func(r frame.Row) any {
		d, ok := r.Date(ColCompetencia)
		if !ok {
			return nil
		}
		byYear, ok := cases[sources.IBGE6(r.String(ColCodigoIBGE))]
		if !ok {
			return nil
		}
		n, ok := byYear[int64(d.Time().Year())]
		if !ok {
			return nil
		}
		return n
	})
	out = out.WithColumn(ColTaxaIncidencia, func(r frame.Row) any {
		n, ok := r.Get(ColCasosDengueAno).(int64)
		pop := r.Float(ColPopulacao)
		if !ok || pop <= 0 {
			return nil
		}
		return float64(n) / pop * 100000
	})
	return out.Select(GoldColumns...)
}
