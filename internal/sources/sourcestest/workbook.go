// Package sourcestest builds in-memory mega-planilha workbooks for tests.
package sourcestest

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ActivityHeader is the header row of the activity sheet as found in the field.
var ActivityHeader = []any{
	"CODIGO IBGE", "Município", "DATA_MAP", "NOMENCLATURA_ATIVIDADE", "SUB_ATIVIDADE",
	"POIS", "devolutivas", "removido_solucionado", "descaracterizado", "Tratado",
	"morador_ausente", "nao_Autorizado", "tratamento_via_drones", "monitorado",
	"HECTARES_MAPEADOS", "CONTRATANTE", "LINK_GIS",
}

// Activity is one activity row in ActivityHeader order.
type Activity struct {
	IBGE, Municipio, Date, Atividade, Sub string
	POIs, Devolutivas, Tratado            any
	Hectares                              any
	Contratante                           string
}

func (a Activity) cells() []any {
	return []any{
		a.IBGE, a.Municipio, a.Date, a.Atividade, a.Sub,
		a.POIs, a.Devolutivas, nil, nil, a.Tratado,
		nil, nil, nil, nil,
		a.Hectares, a.Contratante, "",
	}
}

// Municipio is one row of the IBGE sheet.
type Municipio struct {
	IBGE, Nome, Meso, Micro string
	Populacao, Area         float64
	Lat, Lon                float64
}

// IBGEHeader is the header row of the IBGE sheet.
var IBGEHeader = []any{"CODIGO_IBGE", "MUNICIPIO", "Mesorregião", "Microrregião", "População", "AREA_KM2", "LATITUDE", "LONGITUDE"}

// Workbook renders a workbook with the activity and IBGE sheets.
func Workbook(acts []Activity, munis []Municipio) ([]byte, error) {
	return WorkbookRows(ActivityHeader, rowsOf(acts), munis)
}

func rowsOf(acts []Activity) [][]any {
	out := make([][]any, len(acts))
	for i, a := range acts {
		out[i] = a.cells()
	}
	return out
}

// WorkbookRows renders a workbook with a custom activity header and rows.
func WorkbookRows(header []any, rows [][]any, munis []Municipio) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const acts = "Atividades (com sub)"
	if _, err := f.NewSheet(acts); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(acts, "A1", &header); err != nil {
		return nil, err
	}
	for i, r := range rows {
		row := r
		if err := f.SetSheetRow(acts, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return nil, err
		}
	}

	if _, err := f.NewSheet("IBGE"); err != nil {
		return nil, err
	}
	ih := IBGEHeader
	if err := f.SetSheetRow("IBGE", "A1", &ih); err != nil {
		return nil, err
	}
	for i, m := range munis {
		row := []any{m.IBGE, m.Nome, m.Meso, m.Micro, m.Populacao, m.Area, m.Lat, m.Lon}
		if err := f.SetSheetRow("IBGE", fmt.Sprintf("A%d", i+2), &row); err != nil {
			return nil, err
		}
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
