package validate_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techdengue/analytics/internal/frame"
	"github.com/techdengue/analytics/internal/sources"
	"github.com/techdengue/analytics/internal/sources/sourcestest"
	"github.com/techdengue/analytics/internal/validate"
)

func scenarioSheet(t *testing.T) *sources.Sheet {
	t.Helper()
	row := func(sub string, pois float64) sourcestest.Activity {
		return sourcestest.Activity{IBGE: "3100104", Municipio: "Abadia dos Dourados", Date: "2024-03-01", Atividade: "Vistoria", Sub: sub, POIs: pois, Hectares: 10.0}
	}
	data, err := sourcestest.Workbook([]sourcestest.Activity{
		row("", 5), row("A", 2), row("B", 2), row("C", 1),
		{IBGE: "3500105", Municipio: "Fora de MG", Date: "2024-03-02", Atividade: "Vistoria", POIs: 1.0, Hectares: 2.0},
	}, nil)
	require.NoError(t, err)
	sheet, err := sources.ReadMegaPlanilhaReader(bytes.NewReader(data), "mega.xlsx")
	require.NoError(t, err)
	return sheet
}

// TestValidate_Scenario checks duplicates and out-of-state codes are warnings
// and that the summary exposes both raw and deduplicated hectares.
func TestValidate_Scenario(t *testing.T) {
	rep := validate.Validate(scenarioSheet(t))

	assert.True(t, rep.OK)
	assert.Equal(t, 5, rep.Rows)
	assert.True(t, rep.Has(validate.CodeDuplicates))
	assert.True(t, rep.Has(validate.CodeIBGEPattern))
	assert.Empty(t, rep.Errors())

	for _, i := range rep.Issues {
		if i.Code == validate.CodeDuplicates {
			assert.Equal(t, 3, i.Count)
			assert.Equal(t, validate.Warn, i.Severity)
		}
	}
	assert.Equal(t, 42.0, rep.Summary.HectaresTotal)
	assert.Equal(t, 12.0, rep.Summary.HectaresDedup)
	assert.Equal(t, 11.0, rep.Summary.POIsTotal)
	assert.Equal(t, "mega.xlsx", rep.Summary.Source)
	assert.Equal(t, sources.ActivitiesSheet, rep.Summary.Sheet)
}

func TestValidate_Idempotent(t *testing.T) {
	sheet := scenarioSheet(t)
	assert.Equal(t, validate.Validate(sheet), validate.Validate(sheet))
}

// TestValidate_MissingColumns marks the report as failed.
func TestValidate_MissingColumns(t *testing.T) {
	f := frame.New("CODIGO_IBGE", "POIS")
	require.NoError(t, f.Append("3100104", 1.0))
	rep := validate.Validate(&sources.Sheet{Frame: f, Coerced: map[string]int{}})

	assert.False(t, rep.OK)
	require.Len(t, rep.Errors(), 1)
	assert.Equal(t, validate.CodeMissing, rep.Errors()[0].Code)
	assert.Contains(t, rep.Errors()[0].Message, "DATA_MAP")
}

func TestValidate_Empty(t *testing.T) {
	rep := validate.Validate(&sources.Sheet{Frame: frame.New(validate.RequiredColumns...), Coerced: map[string]int{}})
	assert.False(t, rep.OK)
	assert.True(t, rep.Has(validate.CodeEmpty))
}

// TestValidate_CoercionAndDates covers the informational and date rules.
func TestValidate_CoercionAndDates(t *testing.T) {
	f := frame.New(validate.RequiredColumns...)
	require.NoError(t, f.Append("3100104", "X", nil, "Vistoria"))
	rep := validate.Validate(&sources.Sheet{Frame: f, Coerced: map[string]int{"POIS": 2}, BadDates: 1})

	assert.True(t, rep.OK)
	assert.True(t, rep.Has(validate.CodeCoercion))
	assert.True(t, rep.Has(validate.CodeBadDates))
}

func TestValidate_POICategoryOverlap(t *testing.T) {
	cols := append(append([]string{}, validate.RequiredColumns...), "A_ARMAZENAMENTO", "A1_CAIXA_DAGUA")
	f := frame.New(cols...)
	require.NoError(t, f.Append("3100104", "X", frame.NewDate(2024, 1, 1), "Vistoria", 1.0, 1.0))
	rep := validate.Validate(&sources.Sheet{Frame: f, Coerced: map[string]int{}})
	assert.True(t, rep.Has(validate.CodePOIOverlap))
}
