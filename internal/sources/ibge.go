package sources

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

var ibgeNumeric = map[string]bool{
	"POPULACAO": true,
	"AREA_KM2":  true,
	"LATITUDE":  true,
	"LONGITUDE": true,
}

// ReadIBGE reads the municipal reference sheet of the mega-planilha workbook.
func ReadIBGE(path string) (*Sheet, error) {
	wb, err := openWorkbook(path)
	if err != nil {
		return nil, err
	}
	defer wb.Close()
	return ibgeFrom(wb, path)
}

// ReadIBGEReader is ReadIBGE over an in-memory workbook.
func ReadIBGEReader(r io.Reader, source string) (*Sheet, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", source, err)
	}
	defer wb.Close()
	return ibgeFrom(wb, source)
}

func ibgeFrom(wb *excelize.File, source string) (*Sheet, error) {
	rows, err := sheetRows(wb, IBGESheet)
	if err != nil {
		return nil, err
	}
	return coerceSheet(rows, source, IBGESheet, func(col string) cellKind {
		switch {
		case col == ColCodigoIBGE:
			return cellIBGE
		case ibgeNumeric[col]:
			return cellNumber
		}
		return cellText
	})
}
