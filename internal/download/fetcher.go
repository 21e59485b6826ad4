// Package download opens streamed reads of generated assets over HTTP.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/gemini-video-bot/internal/pipeline"
)

// DefaultKeyHost is the only host that receives the Gemini API key.
const DefaultKeyHost = "generativelanguage.googleapis.com"

const apiKeyHeader = "x-goog-api-key"

// StatusError is returned for a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("unexpected status %s: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("unexpected status %s", e.Status)
}

// Fetcher implements pipeline.AssetSource over HTTP.
type Fetcher struct {
	client  *http.Client
	keyHost string
}

// Compile-time interface check.
var _ pipeline.AssetSource = (*Fetcher)(nil)

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithKeyHost changes which host receives the API key header.
func WithKeyHost(host string) Option {
	return func(f *Fetcher) { f.keyHost = host }
}

// NewFetcher creates a Fetcher. The default client sets no overall timeout
// because videos can take minutes to stream; only the response header wait is bounded.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: 60 * time.Second,
			},
		},
		keyHost: DefaultKeyHost,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Open starts a GET for uri. The caller owns the returned body. The size is
// -1 when the server does not send a Content-Length.
func (f *Fetcher) Open(ctx context.Context, uri, credential string) (io.ReadCloser, int64, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, 0, fmt.Errorf("parse asset URI: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, 0, fmt.Errorf("unsupported asset URI scheme %q", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	if credential != "" && strings.EqualFold(u.Hostname(), f.keyHost) {
		req.Header.Set(apiKeyHeader, credential)
	}

	log.Debug().Str("host", u.Host).Msg("Fetching generated asset")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("GET asset: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, 0, &StatusError{
			URL:        u.Redacted(),
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	return resp.Body, resp.ContentLength, nil
}
