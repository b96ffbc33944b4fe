package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// Fetcher reads artifact bytes from a remote dataset location.
type Fetcher interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
	// Describe returns the resource identifier of name; "" describes the source itself.
	Describe(name string) string
}

// HTTPFetcher reads <BaseURL>/<name>.parquet.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPFetcher(baseURL string) *HTTPFetcher {
	return &HTTPFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (h *HTTPFetcher) Describe(name string) string {
	if name == "" {
		return h.BaseURL
	}
	return h.BaseURL + "/" + url.PathEscape(name) + ".parquet"
}

func (h *HTTPFetcher) Fetch(ctx context.Context, name string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.Describe(name), nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: HTTP %d", name, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

type s3GetObjectAPI interface {
	GetObjectWithContext(aws.Context, *s3.GetObjectInput, ...request.Option) (*s3.GetObjectOutput, error)
}

// S3Fetcher reads s3://<bucket>/<prefix>/<name>.parquet.
type S3Fetcher struct {
	bucket string
	prefix string
	s3     s3GetObjectAPI
}

// ParseS3URI splits s3://bucket/prefix.
func ParseS3URI(uri string) (bucket, prefix string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("invalid S3 URI %q", uri)
	}
	return u.Host, strings.Trim(u.Path, "/"), nil
}

// NewS3Fetcher builds a fetcher using the default AWS credential chain.
func NewS3Fetcher(uri string) (*S3Fetcher, error) {
	bucket, prefix, err := ParseS3URI(uri)
	if err != nil {
		return nil, err
	}
	sess, err := session.NewSessionWithOptions(session.Options{SharedConfigState: session.SharedConfigEnable})
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	return &S3Fetcher{bucket: bucket, prefix: prefix, s3: s3.New(sess)}, nil
}

func newS3FetcherWithClient(bucket, prefix string, client s3GetObjectAPI) *S3Fetcher {
	return &S3Fetcher{bucket: bucket, prefix: prefix, s3: client}
}

func (f *S3Fetcher) key(name string) string {
	if f.prefix == "" {
		return name + ".parquet"
	}
	return f.prefix + "/" + name + ".parquet"
}

func (f *S3Fetcher) Describe(name string) string {
	if name == "" {
		return "s3://" + f.bucket + "/" + f.prefix
	}
	return "s3://" + f.bucket + "/" + f.key(name)
}

func (f *S3Fetcher) Fetch(ctx context.Context, name string) ([]byte, error) {
	out, err := f.s3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(f.key(name)),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound") {
			return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("fetch %s from s3: bucket=%s key=%s: %w", name, f.bucket, f.key(name), err)
	}
	defer out.Body.Close()
	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3 object body: bucket=%s key=%s: %w", f.bucket, f.key(name), err)
	}
	return body, nil
}

// RemoteFromConfig returns the remote fetcher implied by the dataset settings,
// preferring an explicit URL over S3. It returns nil when neither is set.
func RemoteFromConfig(remoteURL, s3URI string) (Fetcher, error) {
	switch {
	case remoteURL != "":
		return NewHTTPFetcher(remoteURL), nil
	case s3URI != "":
		f, err := NewS3Fetcher(s3URI)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	return nil, nil
}
