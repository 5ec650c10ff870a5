package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultFetchTimeout = 30 * time.Second
	DefaultMaxMediaSize = 5 * 1024 * 1024 // 5MB
)

// FetchError wraps a per-attachment download failure. One failed fetch skips
// that attachment only; the rest of the event is still processed.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch media %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Credentials authenticate against the gateway's media host.
type Credentials struct {
	Username string
	Password string
}

// Fetcher downloads attachment bytes. Implementations must honor the
// context deadline.
type Fetcher interface {
	Fetch(ctx context.Context, ref MediaRef) ([]byte, error)
}

// HTTPFetcher downloads media over HTTP with a bounded timeout and a maximum
// body size. Oversized bodies are a FetchError, not a truncation.
type HTTPFetcher struct {
	client   *http.Client
	creds    Credentials
	maxBytes int64
	logger   zerolog.Logger
}

// NewHTTPFetcher creates an HTTPFetcher. Zero timeout and maxBytes fall back
// to DefaultFetchTimeout and DefaultMaxMediaSize.
func NewHTTPFetcher(timeout time.Duration, maxBytes int64, creds Credentials, logger zerolog.Logger) *HTTPFetcher {
	if timeout == 0 {
		timeout = DefaultFetchTimeout
	}
	if maxBytes == 0 {
		maxBytes = DefaultMaxMediaSize
	}
	return &HTTPFetcher{
		client:   &http.Client{Timeout: timeout},
		creds:    creds,
		maxBytes: maxBytes,
		logger:   logger.With().Str("module", "fetcher").Logger(),
	}
}

// Fetch downloads one media item.
func (f *HTTPFetcher) Fetch(ctx context.Context, ref MediaRef) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.URL, nil)
	if err != nil {
		return nil, &FetchError{URL: ref.URL, Err: err}
	}
	if f.creds.Username != "" {
		req.SetBasicAuth(f.creds.Username, f.creds.Password)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: ref.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{URL: ref.URL, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, &FetchError{URL: ref.URL, Err: err}
	}
	if int64(len(data)) > f.maxBytes {
		return nil, &FetchError{URL: ref.URL, Err: fmt.Errorf("media exceeds maximum size %d", f.maxBytes)}
	}

	f.logger.Debug().
		Str("url", ref.URL).
		Str("content_type", ref.ContentType).
		Int("size", len(data)).
		Msg("Media fetched")

	return data, nil
}
