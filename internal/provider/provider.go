// Package provider holds what the external enrichment clients share: their
// configuration, common errors, request logging and HTTP plumbing.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Common errors
var (
	ErrMissingOpenWeatherKey = errors.New("OPENWEATHER_API_KEY is not set; weather is simulated")
	ErrMissingGroqKey        = errors.New("GROQ_API_KEY is not set; risk analysis is rule-based")
)

// StatusError is a non-2xx answer from a provider.
type StatusError struct {
	Provider string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.Status, e.Body)
}

// Config holds the credentials of the enrichment providers.
type Config struct {
	OpenWeatherKey string
	GroqKey        string
	GroqModel      string
}

// Validate reports the first missing credential. A missing key is not
// fatal: callers degrade to their deterministic path.
func (c Config) Validate() error {
	if c.OpenWeatherKey == "" {
		return ErrMissingOpenWeatherKey
	}
	if c.GroqKey == "" {
		return ErrMissingGroqKey
	}
	return nil
}

// HTTP is a throttled JSON client with a fixed timeout.
type HTTP struct {
	Name    string
	Client  *http.Client
	Limiter *rate.Limiter
}

// NewHTTP returns a client allowing perMinute calls with the given burst.
func NewHTTP(name string, timeout time.Duration, perMinute, burst int) *HTTP {
	return &HTTP{
		Name:    name,
		Client:  &http.Client{Timeout: timeout},
		Limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60), burst),
	}
}

// Do waits for the call budget, sends req and returns the body of a 2xx response.
func (h *HTTP) Do(ctx context.Context, req *http.Request) ([]byte, error) {
	if h.Limiter != nil {
		if err := h.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s rate limit: %w", h.Name, err)
		}
	}
	start := time.Now()
	LogRequest(h.Name, req.Method, req.URL.Scheme+"://"+req.URL.Host+req.URL.Path, nil)
	resp, err := h.Client.Do(req.WithContext(ctx))
	if err != nil {
		LogError(h.Name, "request", err)
		return nil, fmt.Errorf("%s request: %w", h.Name, err)
	}
	defer resp.Body.Close()
	LogResponse(h.Name, resp.StatusCode, time.Since(start))

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%s read body: %w", h.Name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, &StatusError{Provider: h.Name, Status: resp.StatusCode, Body: snippet}
	}
	return body, nil
}
