package store

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techdengue/analytics/internal/frame"
)

type fakeS3 struct {
	objects map[string][]byte
	keys    []string
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	f.keys = append(f.keys, aws.StringValue(in.Key))
	data, ok := f.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "missing", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

// TestS3Fetcher reads an artifact through a fake S3 client and maps NoSuchKey to ErrNotFound.
func TestS3Fetcher(t *testing.T) {
	src := frame.New("codigo_ibge")
	require.NoError(t, src.Append("3100104"))
	data, err := frame.EncodeParquet(src)
	require.NoError(t, err)

	fake := &fakeS3{objects: map[string][]byte{"gold/dim_municipios.parquet": data}}
	s := New(Options{Dir: t.TempDir(), CacheTTL: time.Minute, Remote: newS3FetcherWithClient("bucket", "gold", fake)})

	f, err := s.Load(context.Background(), DimMunicipios)
	require.NoError(t, err)
	assert.Equal(t, 1, f.Len())
	assert.Equal(t, "s3://bucket/gold/dim_municipios.parquet", s.remote.Describe(DimMunicipios))

	_, err = s.Load(context.Background(), GoldAnalise)
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestRemoteEntriesExpireByTTL checks remote entries are refetched after the TTL.
func TestRemoteEntriesExpireByTTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFileCache(time.Minute, func() time.Time { return now })
	loads := 0
	load := func() (*frame.Frame, error) {
		loads++
		return frame.New("x"), nil
	}
	_, _ = c.GetRemote("k", load)
	_, _ = c.GetRemote("k", load)
	now = now.Add(2 * time.Minute)
	_, _ = c.GetRemote("k", load)
	assert.Equal(t, 2, loads)
}
