package fetcher

import (
	"context"
	"errors"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ragle/driver-recon/internal/resilience"
)

// Fetcher defines the interface for downloading remote exports.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// Options configures a Fetcher built by New.
type Options struct {
	Timeout  time.Duration
	Username string
	Password string
}

// New returns the Fetcher for the scheme of baseURL: ftp, http or https.
func New(baseURL string, opts Options) (Fetcher, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: parse url")
	}
	switch u.Scheme {
	case "ftp":
		return NewFTPFetcher(FTPOptions{
			Timeout:  opts.Timeout,
			Username: opts.Username,
			Password: opts.Password,
		}), nil
	case "http", "https":
		return NewHTTPFetcher(HTTPOptions{
			Timeout:  opts.Timeout,
			Username: opts.Username,
			Password: opts.Password,
		}), nil
	default:
		return nil, eris.Errorf("fetch: unsupported scheme %q", u.Scheme)
	}
}

// NotFoundError reports a file the server does not have.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return "fetch: remote file not found: " + e.Path
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// JoinURL appends a file name to a directory URL.
func JoinURL(dirURL, name string) (string, error) {
	u, err := url.Parse(dirURL)
	if err != nil {
		return "", eris.Wrap(err, "fetch: parse url")
	}
	u.Path = path.Join("/", u.Path, name)
	return u.String(), nil
}

// PullRequest describes a ranged pull of dated exports.
type PullRequest struct {
	BaseURL  string    // remote directory URL
	Dir      string    // local destination directory
	Patterns []string  // file-name patterns, each with one %s date slot
	From, To time.Time // inclusive
	Force    bool      // re-download files already present locally
	Retry    resilience.RetryConfig
}

// PullResult counts what a pull did.
type PullResult struct {
	Downloaded int
	Skipped    int
	Missing    []string
	Bytes      int64
}

// Pull downloads every pattern for every date in [From, To], waiting on
// limiter before each transfer. Transient failures are retried per
// req.Retry. Files the server does not have are recorded in Missing rather
// than failing the pull.
func Pull(ctx context.Context, f Fetcher, limiter *rate.Limiter, req PullRequest) (*PullResult, error) {
	if req.To.Before(req.From) {
		return nil, eris.Errorf("pull: range end %s before start %s",
			req.To.Format(time.DateOnly), req.From.Format(time.DateOnly))
	}
	if err := os.MkdirAll(req.Dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "pull: create dir %s", req.Dir)
	}

	res := &PullResult{}
	for day := req.From; !day.After(req.To); day = day.AddDate(0, 0, 1) {
		for _, pattern := range req.Patterns {
			name := DatedName(pattern, day)
			dest := filepath.Join(req.Dir, name)

			if !req.Force {
				if _, err := os.Stat(dest); err == nil {
					res.Skipped++
					continue
				}
			}

			src, err := JoinURL(req.BaseURL, name)
			if err != nil {
				return res, err
			}

			retry := req.Retry
			retry.OnRetry = resilience.RetryLogger(name)
			n, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (int64, error) {
				if limiter != nil {
					if err := limiter.Wait(ctx); err != nil {
						return 0, eris.Wrap(err, "rate limit wait")
					}
				}
				return f.DownloadToFile(ctx, src, dest)
			})
			if IsNotFound(err) {
				zap.L().Warn("pull: remote export missing", zap.String("file", name))
				res.Missing = append(res.Missing, name)
				continue
			}
			if err != nil {
				return res, eris.Wrapf(err, "pull: %s", name)
			}

			zap.L().Info("pull: downloaded",
				zap.String("file", name),
				zap.Int64("bytes", n),
			)
			res.Downloaded++
			res.Bytes += n
		}
	}
	return res, nil
}
