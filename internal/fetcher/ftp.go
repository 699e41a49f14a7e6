package fetcher

import (
	"context"
	"errors"
	"io"
	"net"
	"net/textproto"
	"net/url"
	"os"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	defaultFTPPort     = "21"
	anonymousUser      = "anonymous"
	anonymousPassword  = "anonymous@"
	defaultDialTimeout = 30 * time.Second
)

// FTPOptions configures the FTP fetcher. An empty Username logs in
// anonymously.
type FTPOptions struct {
	Timeout  time.Duration
	Username string
	Password string
}

// FTPFetcher downloads telematics exports from an FTP drop. Each download
// uses its own control connection.
type FTPFetcher struct {
	opts FTPOptions
}

// NewFTPFetcher creates an FTPFetcher.
func NewFTPFetcher(opts FTPOptions) *FTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = defaultDialTimeout
	}
	if opts.Username == "" {
		opts.Username = anonymousUser
		if opts.Password == "" {
			opts.Password = anonymousPassword
		}
	}
	return &FTPFetcher{opts: opts}
}

// ftpTarget is a parsed ftp:// file URL.
type ftpTarget struct {
	addr string // host:port
	file string // absolute remote path
}

func parseFTPURL(rawURL string) (ftpTarget, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ftpTarget{}, eris.Wrap(err, "ftp: parse url")
	}
	if u.Scheme != "ftp" {
		return ftpTarget{}, eris.Errorf("ftp: unsupported scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		return ftpTarget{}, eris.Errorf("ftp: no file in %s", u.Redacted())
	}

	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), defaultFTPPort)
	}
	return ftpTarget{addr: addr, file: u.Path}, nil
}

// login dials the drop and authenticates. The caller owns the connection.
func (f *FTPFetcher) login(ctx context.Context, addr string) (*ftp.ServerConn, error) {
	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(f.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "ftp dial")
	}
	if err := conn.Login(f.opts.Username, f.opts.Password); err != nil {
		conn.Quit() //nolint:errcheck
		return nil, eris.Wrap(err, "ftp login")
	}
	return conn, nil
}

// retrieval streams one RETR; Close ends the transfer and the session.
type retrieval struct {
	*ftp.Response
	conn *ftp.ServerConn
}

func (r *retrieval) Close() error {
	if err := r.Response.Close(); err != nil {
		r.conn.Quit() //nolint:errcheck
		return eris.Wrap(err, "ftp: finish transfer")
	}
	return eris.Wrap(r.conn.Quit(), "ftp: quit")
}

// Download retrieves the file at ftpURL. A 550 reply yields a
// *NotFoundError; other failures keep the server's *textproto.Error in the
// chain so retry logic can inspect the reply code.
func (f *FTPFetcher) Download(ctx context.Context, ftpURL string) (io.ReadCloser, error) {
	target, err := parseFTPURL(ftpURL)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("ftp: retrieving", zap.String("addr", target.addr), zap.String("file", target.file))

	conn, err := f.login(ctx, target.addr)
	if err != nil {
		return nil, err
	}

	resp, err := conn.Retr(target.file)
	if err != nil {
		conn.Quit() //nolint:errcheck
		var reply *textproto.Error
		if errors.As(err, &reply) && reply.Code == ftp.StatusFileUnavailable {
			return nil, &NotFoundError{Path: target.file}
		}
		return nil, eris.Wrap(err, "ftp retrieve")
	}
	return &retrieval{Response: resp, conn: conn}, nil
}

// DownloadToFile retrieves ftpURL into dest through a temporary file that is
// renamed on success.
func (f *FTPFetcher) DownloadToFile(ctx context.Context, ftpURL string, dest string) (int64, error) {
	rc, err := f.Download(ctx, ftpURL)
	if err != nil {
		return 0, err
	}
	n, err := writeAtomic(dest, rc)
	if closeErr := rc.Close(); err == nil && closeErr != nil {
		return n, closeErr
	}
	return n, err
}

// writeAtomic copies r into dest via dest+".part".
func writeAtomic(dest string, r io.Reader) (int64, error) {
	tmp := dest + ".part"
	file, err := os.Create(tmp)
	if err != nil {
		return 0, eris.Wrap(err, "create file")
	}

	n, err := io.Copy(file, r)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp) //nolint:errcheck
		return n, eris.Wrap(err, "write file")
	}
	if err := os.Rename(tmp, dest); err != nil {
		return n, eris.Wrap(err, "rename file")
	}
	return n, nil
}
