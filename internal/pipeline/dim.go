package pipeline

import (
	"strings"

	"github.com/techdengue/analytics/internal/frame"
	"github.com/techdengue/analytics/internal/sources"
)

// Municipal dimension columns.
const (
	ColCodigoIBGE6  = "codigo_ibge_6"
	ColMesorregiao  = "mesorregiao"
	ColMicrorregiao = "microrregiao"
	ColPopulacao    = "populacao"
	ColAreaKm2      = "area_km2"
	ColLatitude     = "latitude"
	ColLongitude    = "longitude"
)

// DimColumns lists the dimension columns in storage order.
var DimColumns = []string{
	ColCodigoIBGE, ColCodigoIBGE6, ColMunicipio, ColMesorregiao, ColMicrorregiao,
	ColPopulacao, ColAreaKm2, ColLatitude, ColLongitude,
}

// Dimension builds dim_municipios from the IBGE sheet: one row per 7-digit
// code, first occurrence wins, rows without a code dropped.
func Dimension(raw *frame.Frame) *frame.Frame {
	f := raw
	for _, c := range []string{"CODIGO_IBGE", "MUNICIPIO", "MESORREGIAO", "MICRORREGIAO", "POPULACAO", "AREA_KM2", "LATITUDE", "LONGITUDE"} {
		f = ensureColumn(f, c)
	}
	out := f.GroupBy([]string{"CODIGO_IBGE"},
		frame.Agg{Column: "MUNICIPIO", Op: frame.First},
		frame.Agg{Column: "MESORREGIAO", Op: frame.First},
		frame.Agg{Column: "MICRORREGIAO", Op: frame.First},
		frame.Agg{Column: "POPULACAO", Op: frame.First},
		frame.Agg{Column: "AREA_KM2", Op: frame.First},
		frame.Agg{Column: "LATITUDE", Op: frame.First},
		frame.Agg{Column: "LONGITUDE", Op: frame.First},
	)
	rename := make(map[string]string)
	for _, c := range out.Columns() {
		rename[c] = strings.ToLower(c)
	}
	out = out.Rename(rename)
	out = out.WithColumn(ColCodigoIBGE6, func(r frame.Row) any {
		return sources.IBGE6(r.String(ColCodigoIBGE))
	})
	return out.Select(DimColumns...)
}

// municipalityIndex answers lookups against the dimension by code or name.
type municipalityIndex struct {
	name6   map[string]string // code6 -> display name
	code7   map[string]string // code6 -> code7
	byName  map[string]string // folded name -> code6
	pop7    map[string]float64
	byCode7 map[string]string // code7 -> display name
}

func indexDimension(dim *frame.Frame) *municipalityIndex {
	idx := &municipalityIndex{
		name6:   map[string]string{},
		code7:   map[string]string{},
		byName:  map[string]string{},
		pop7:    map[string]float64{},
		byCode7: map[string]string{},
	}
	if dim == nil {
		return idx
	}
	for i := 0; i < dim.Len(); i++ {
		r := dim.Row(i)
		c7 := r.String(ColCodigoIBGE)
		c6 := sources.IBGE6(c7)
		name := r.String(ColMunicipio)
		idx.code7[c6] = c7
		idx.name6[c6] = name
		idx.byCode7[c7] = name
		if name != "" {
			idx.byName[sources.FoldASCII(name)] = c6
		}
		if p, ok := frame.AsFloat(r.Get(ColPopulacao)); ok {
			idx.pop7[c7] = p
		}
	}
	return idx
}
