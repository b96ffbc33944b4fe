package store_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techdengue/analytics/internal/frame"
	"github.com/techdengue/analytics/internal/store"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func sample(t *testing.T, loaded time.Time) *frame.Frame {
	t.Helper()
	f := frame.New("codigo_ibge", "pois", "data_carga")
	require.NoError(t, f.Append("3100104", 10.0, loaded))
	require.NoError(t, f.Append("3100203", 4.0, loaded))
	return f
}

func newStore(t *testing.T, c *clock) *store.Store {
	return store.New(store.Options{
		Dir:           t.TempDir(),
		SchemaVersion: "2.0.0",
		FreshTTL:      time.Hour,
		CacheTTL:      time.Minute,
		Now:           c.now,
	})
}

// TestWriteLoad_RoundTrip verifies the journal entry and that a load returns the written rows.
func TestWriteLoad_RoundTrip(t *testing.T) {
	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	s := newStore(t, c)

	meta, err := s.Write(store.FactActivities, sample(t, c.t))
	require.NoError(t, err)
	assert.Equal(t, 2, meta.RowCount)
	assert.Equal(t, []string{"codigo_ibge", "pois", "data_carga"}, meta.Columns)
	assert.Equal(t, "2.0.0", meta.SchemaVersion)

	got, ok, err := s.Metadata(store.FactActivities)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, meta.Hash, got.Hash)
	assert.True(t, got.LastSync.Equal(c.t))

	f, err := s.Load(context.Background(), store.FactActivities)
	require.NoError(t, err)
	assert.Equal(t, 2, f.Len())
	assert.Equal(t, "3100104", f.Value(0, "codigo_ibge"))
	assert.Equal(t, []string{store.FactActivities}, s.Available(context.Background()))
}

// TestHashIgnoresLoadTimestamp checks reruns over the same content hash identically.
func TestHashIgnoresLoadTimestamp(t *testing.T) {
	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	s := newStore(t, c)
	first, err := s.Write(store.GoldAnalise, sample(t, c.t))
	require.NoError(t, err)
	second, err := s.Write(store.GoldAnalise, sample(t, c.t.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, first.Hash, second.Hash)
}

func TestLoadMissing(t *testing.T) {
	s := newStore(t, &clock{t: time.Now()})
	_, err := s.Load(context.Background(), store.DimMunicipios)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

// TestLoadReturnsCopy ensures callers cannot mutate the cached frame.
func TestLoadReturnsCopy(t *testing.T) {
	c := &clock{t: time.Now()}
	s := newStore(t, c)
	_, err := s.Write(store.FactActivities, sample(t, c.t))
	require.NoError(t, err)

	a, err := s.Load(context.Background(), store.FactActivities)
	require.NoError(t, err)
	a.Set(0, "pois", 999.0)

	b, err := s.Load(context.Background(), store.FactActivities)
	require.NoError(t, err)
	assert.Equal(t, 10.0, b.Value(0, "pois"))
	assert.Equal(t, int64(1), s.Cache().Stats().Hits)
}

// TestCacheInvalidatesOnModTime rewrites the file and expects the new content.
func TestCacheInvalidatesOnModTime(t *testing.T) {
	c := &clock{t: time.Now()}
	s := newStore(t, c)
	_, err := s.Write(store.FactActivities, sample(t, c.t))
	require.NoError(t, err)
	_, err = s.Load(context.Background(), store.FactActivities)
	require.NoError(t, err)

	f := frame.New("codigo_ibge", "pois", "data_carga")
	require.NoError(t, f.Append("3100104", 1.0, c.t))
	_, err = s.Write(store.FactActivities, f)
	require.NoError(t, err)
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(s.Path(store.FactActivities), future, future))

	got, err := s.Load(context.Background(), store.FactActivities)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Len())
}

func TestIsFresh(t *testing.T) {
	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	s := newStore(t, c)
	_, err := s.Write(store.FactDengue, sample(t, c.t))
	require.NoError(t, err)

	assert.True(t, s.IsFresh(store.FactDengue))
	c.t = c.t.Add(2 * time.Hour)
	assert.False(t, s.IsFresh(store.FactDengue))
	assert.False(t, s.IsFresh(store.GISPOIs))
}

// TestVerify_DetectsDrift overwrites the file behind the journal's back.
func TestVerify_DetectsDrift(t *testing.T) {
	c := &clock{t: time.Now()}
	s := newStore(t, c)
	_, err := s.Write(store.FactActivities, sample(t, c.t))
	require.NoError(t, err)
	assert.True(t, s.Verify(store.FactActivities).OK())

	f := frame.New("codigo_ibge", "pois", "data_carga")
	require.NoError(t, f.Append("x", 1.0, c.t))
	data, err := frame.EncodeParquet(f)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.Path(store.FactActivities), data, 0o644))

	v := s.Verify(store.FactActivities)
	assert.False(t, v.OK())
	assert.False(t, v.RowCountOK)
	assert.False(t, v.HashOK)
}

// TestHTTPRemote serves a parquet artifact over HTTP and reads it through the store.
func TestHTTPRemote(t *testing.T) {
	data, err := frame.EncodeParquet(sample(t, time.Now()))
	require.NoError(t, err)
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path != "/gold/"+store.FactActivities+".parquet" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	s := store.New(store.Options{Dir: t.TempDir(), CacheTTL: time.Minute, Remote: store.NewHTTPFetcher(srv.URL + "/gold/")})
	f, err := s.Load(context.Background(), store.FactActivities)
	require.NoError(t, err)
	assert.Equal(t, 2, f.Len())

	_, err = s.Load(context.Background(), store.FactActivities)
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "second load is served from cache")

	_, err = s.Load(context.Background(), store.DimMunicipios)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestParseS3URI(t *testing.T) {
	b, p, err := store.ParseS3URI("s3://techdengue-data/gold/v2")
	require.NoError(t, err)
	assert.Equal(t, "techdengue-data", b)
	assert.Equal(t, "gold/v2", p)

	_, _, err = store.ParseS3URI("https://example.com")
	assert.Error(t, err)
}
