package fetcher

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ragle/driver-recon/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	Username  string // basic auth when set
	Password  string
}

// HTTPFetcher downloads exports published over HTTP(S). It makes one attempt
// per call; retryable statuses come back as *resilience.TransientError so
// the caller's retry loop can decide.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "driver-recon/1.0"
	}
	return &HTTPFetcher{
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
	}
}

// Download fetches the URL and returns the response body. A 404 or 410
// yields a *NotFoundError.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "http: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	if f.opts.Username != "" {
		req.SetBasicAuth(f.opts.Username, f.opts.Password)
	}

	zap.L().Debug("http: requesting", zap.String("url", req.URL.Redacted()))

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "http: get")
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return resp.Body, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		_ = resp.Body.Close()
		return nil, &NotFoundError{Path: req.URL.Path}
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		_ = resp.Body.Close()
		return nil, resilience.NewTransientError(
			eris.Errorf("http: status %d from %s", resp.StatusCode, req.URL.Redacted()), resp.StatusCode)
	default:
		_ = resp.Body.Close()
		return nil, eris.Errorf("http: unexpected status %d from %s", resp.StatusCode, req.URL.Redacted())
	}
}

// DownloadToFile fetches the URL into dest through a temporary file that is
// renamed on success.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL string, dest string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	return writeAtomic(dest, body)
}
