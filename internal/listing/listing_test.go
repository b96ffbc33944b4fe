package listing_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techdengue/analytics/internal/frame"
	"github.com/techdengue/analytics/internal/listing"
	"github.com/techdengue/analytics/internal/store"
)

func sample() *frame.Frame {
	f := frame.New("codigo_ibge", "municipio", "pois")
	_ = f.Append("3100104", "ABADIA DOS DOURADOS", int64(10))
	_ = f.Append("3100203", "ABAETE", int64(30))
	_ = f.Append("3100302", "ABRE CAMPO", nil)
	return f
}

func parse(t *testing.T, query string) (listing.Params, error) {
	t.Helper()
	return listing.Parse(httptest.NewRequest(http.MethodGet, "/x?"+query, nil))
}

func TestParse_Clamps(t *testing.T) {
	p, err := parse(t, "limit=0&offset=-4")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Limit)
	assert.Equal(t, 0, p.Offset)
	assert.True(t, p.Desc)
	assert.Equal(t, listing.FormatJSON, p.Format)

	p, err = parse(t, "limit=10000")
	require.NoError(t, err)
	assert.Equal(t, listing.MaxLimit, p.Limit)
}

func TestParse_Rejects(t *testing.T) {
	for _, q := range []string{"limit=abc", "offset=1.5", "order=up", "format=xml"} {
		_, err := parse(t, q)
		var pe *listing.ParamError
		assert.ErrorAs(t, err, &pe, q)
	}
}

// TestApply_SortPageProject covers sort with nulls last, pagination and projection.
func TestApply_SortPageProject(t *testing.T) {
	p, err := parse(t, "sort_by=pois&order=asc&limit=2&fields=municipio,nope")
	require.NoError(t, err)
	page, total := listing.Apply(sample(), p)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{"municipio"}, page.Columns())
	assert.Equal(t, "ABADIA DOS DOURADOS", page.Value(0, "municipio"))
	assert.Equal(t, "ABAETE", page.Value(1, "municipio"))

	p, _ = parse(t, "sort_by=missing&fields=nope")
	page, _ = listing.Apply(sample(), p)
	assert.Equal(t, sample().Columns(), page.Columns(), "unknown sort and fields leave the frame as is")
}

func TestRespond_JSONEnvelope(t *testing.T) {
	p, _ := parse(t, "limit=5")
	rec := httptest.NewRecorder()
	listing.Respond(rec, httptest.NewRequest(http.MethodGet, "/", nil), sample(), p, "facts")

	var env listing.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, 3, env.Total)
	assert.Equal(t, 5, env.Limit)
	assert.Len(t, env.Items, 3)

	p, _ = parse(t, "offset=10")
	rec = httptest.NewRecorder()
	listing.Respond(rec, httptest.NewRequest(http.MethodGet, "/", nil), sample(), p, "facts")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, 3, env.Total)
	assert.Empty(t, env.Items)
}

// TestRespond_CSVMatchesJSON re-parses the csv payload and compares it to the json items.
func TestRespond_CSVMatchesJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	p, _ := parse(t, "format=csv&sort_by=codigo_ibge&order=asc")
	rec := httptest.NewRecorder()
	listing.Respond(rec, req, sample(), p, "facts")
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Equal(t, "3", rec.Header().Get("X-Total-Count"))

	parsed, err := frame.ReadCSV(strings.NewReader(rec.Body.String()), map[string]frame.Kind{"pois": frame.KindInt})
	require.NoError(t, err)

	p.Format = listing.FormatJSON
	rec = httptest.NewRecorder()
	listing.Respond(rec, req, sample(), p, "facts")
	var env listing.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))

	require.Equal(t, len(env.Items), parsed.Len())
	for i, item := range env.Items {
		assert.Equal(t, item["codigo_ibge"], parsed.Value(i, "codigo_ibge"))
		assert.Equal(t, fmt.Sprint(item["pois"]), fmt.Sprint(parsed.Value(i, "pois")))
	}
}

func TestRespond_Parquet(t *testing.T) {
	p, _ := parse(t, "format=parquet")
	rec := httptest.NewRecorder()
	listing.Respond(rec, httptest.NewRequest(http.MethodGet, "/", nil), sample(), p, "facts")
	back, err := frame.ReadParquet(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 3, back.Len())
}

func TestLoadError_503(t *testing.T) {
	rec := httptest.NewRecorder()
	listing.LoadError(rec, httptest.NewRequest(http.MethodGet, "/", nil), store.GoldAnalise, fmt.Errorf("x: %w", store.ErrNotFound))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), store.GoldAnalise)
}

func TestDateParam(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?start_date=2024-03-01&end_date=bad", nil)
	d, err := listing.DateParam(r, "start_date")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", d.String())
	_, err = listing.DateParam(r, "end_date")
	assert.Error(t, err)
	d, err = listing.DateParam(r, "absent")
	assert.NoError(t, err)
	assert.Nil(t, d)

	start := frame.NewDate(2024, 3, 1)
	assert.True(t, listing.InRange(frame.NewDate(2024, 3, 1), &start, nil))
	assert.False(t, listing.InRange(frame.NewDate(2024, 2, 28), &start, nil))
}
