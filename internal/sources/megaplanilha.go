package sources

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/techdengue/analytics/internal/frame"
)

const (
	ActivitiesSheet = "Atividades (com sub)"
	IBGESheet       = "IBGE"
)

// Canonical raw column names, as produced by NormalizeColumn.
const (
	ColCodigoIBGE   = "CODIGO_IBGE"
	ColMunicipio    = "MUNICIPIO"
	ColDataMap      = "DATA_MAP"
	ColAtividade    = "NOMENCLATURA_ATIVIDADE"
	ColSubAtividade = "SUB_ATIVIDADE"
	ColPOIs         = "POIS"
	ColDevolutivas  = "DEVOLUTIVAS"
	ColHectares     = "HECTARES_MAPEADOS"
	ColContratante  = "CONTRATANTE"
	ColLinkGIS      = "LINK_GIS"
)

// TreatmentCounters are the per-visit outcome counters. They behave as integers
// downstream, with null meaning zero.
var TreatmentCounters = []string{
	"REMOVIDO_SOLUCIONADO",
	"DESCARACTERIZADO",
	"TRATADO",
	"MORADOR_AUSENTE",
	"NAO_AUTORIZADO",
	"TRATAMENTO_VIA_DRONES",
	"MONITORADO",
}

// NumericColumns lists every declared numeric column of the activity sheet.
var NumericColumns = append([]string{ColPOIs, ColDevolutivas, ColHectares}, TreatmentCounters...)

var (
	aggregatedCategory = regexp.MustCompile(`^[A-Z]_[A-Z]`)
	detailedCategory   = regexp.MustCompile(`^[A-Z][0-9]+_[A-Z]`)
)

// POICategoryColumns splits POI category columns into the aggregated set
// ("A – Armazenamento de água") and the detailed set ("A1 – Caixa d'água elevada").
func POICategoryColumns(cols []string) (aggregated, detailed []string) {
	for _, c := range cols {
		switch {
		case detailedCategory.MatchString(c):
			detailed = append(detailed, c)
		case aggregatedCategory.MatchString(c):
			aggregated = append(aggregated, c)
		}
	}
	return aggregated, detailed
}

// Sheet is one worksheet after normalization and type coercion.
type Sheet struct {
	Frame  *frame.Frame
	Source string
	Name   string
	// Coerced counts non-empty cells per numeric column that failed to parse
	// and became null.
	Coerced map[string]int
	// BadDates counts non-empty DATA_MAP cells that could not be parsed.
	BadDates int
}

// CoercedTotal sums Coerced over all columns.
func (s *Sheet) CoercedTotal() int {
	n := 0
	for _, c := range s.Coerced {
		n += c
	}
	return n
}

func openWorkbook(path string) (*excelize.File, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("workbook %s: %w", path, err)
	}
	wb, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	return wb, nil
}

func sheetRows(wb *excelize.File, sheet string) ([][]string, error) {
	idx, err := wb.GetSheetIndex(sheet)
	if err != nil || idx < 0 {
		return nil, fmt.Errorf("sheet %q not found (available: %s)", sheet, strings.Join(wb.GetSheetList(), ", "))
	}
	rows, err := wb.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return rows, nil
}

// ReadMegaPlanilha reads the activity sheet of the workbook at path.
func ReadMegaPlanilha(path string) (*Sheet, error) {
	wb, err := openWorkbook(path)
	if err != nil {
		return nil, err
	}
	defer wb.Close()
	return activitiesFrom(wb, path)
}

// ReadMegaPlanilhaReader is ReadMegaPlanilha over an in-memory workbook.
func ReadMegaPlanilhaReader(r io.Reader, source string) (*Sheet, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", source, err)
	}
	defer wb.Close()
	return activitiesFrom(wb, source)
}

func activitiesFrom(wb *excelize.File, source string) (*Sheet, error) {
	rows, err := sheetRows(wb, ActivitiesSheet)
	if err != nil {
		return nil, err
	}
	numeric := make(map[string]bool, len(NumericColumns))
	for _, c := range NumericColumns {
		numeric[c] = true
	}
	return coerceSheet(rows, source, ActivitiesSheet, func(col string) cellKind {
		switch {
		case col == ColCodigoIBGE:
			return cellIBGE
		case col == ColDataMap:
			return cellDate
		case numeric[col]:
			return cellNumber
		case aggregatedCategory.MatchString(col), detailedCategory.MatchString(col):
			return cellNumber
		}
		return cellText
	})
}

type cellKind int

const (
	cellText cellKind = iota
	cellNumber
	cellDate
	cellIBGE
)

// coerceSheet turns raw string rows into a typed frame. The first non-empty
// row is the header.
func coerceSheet(rows [][]string, source, name string, kindOf func(string) cellKind) (*Sheet, error) {
	start := 0
	for start < len(rows) && blank(rows[start]) {
		start++
	}
	sheet := &Sheet{Source: source, Name: name, Coerced: map[string]int{}}
	if start == len(rows) {
		sheet.Frame = frame.New()
		return sheet, nil
	}
	cols := NormalizeColumns(rows[start])
	kinds := make([]cellKind, len(cols))
	for i, c := range cols {
		kinds[i] = kindOf(c)
	}
	f := frame.New(cols...)
	for _, raw := range rows[start+1:] {
		if blank(raw) {
			continue
		}
		vals := make([]any, len(cols))
		for i := range cols {
			if i >= len(raw) {
				continue
			}
			cell := strings.TrimSpace(raw[i])
			switch kinds[i] {
			case cellNumber:
				if n, ok := ParseNumber(cell); ok {
					vals[i] = n
				} else if !isNullToken(cell) {
					sheet.Coerced[cols[i]]++
				}
			case cellDate:
				if d, ok := ParseDateCell(cell); ok {
					vals[i] = d
				} else if !isNullToken(cell) {
					sheet.BadDates++
				}
			case cellIBGE:
				if code := CleanIBGE(cell); code != "" {
					vals[i] = code
				}
			default:
				if cell != "" {
					vals[i] = cell
				}
			}
		}
		if err := f.Append(vals...); err != nil {
			return nil, err
		}
	}
	sheet.Frame = f
	return sheet, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
