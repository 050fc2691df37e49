package backends

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"net/url"
	"path"
	"time"

	"github.com/dmitrijs2005/extmedia/internal/common"
	"github.com/dmitrijs2005/extmedia/internal/timex"
	"github.com/jlaffaye/ftp"
)

const defaultFTPTimeout = 30 * time.Second

// FTPConfig addresses an FTP server directory.
type FTPConfig struct {
	// Host is host or host:port.
	Host     string         `json:"host"`
	Username string         `json:"username,omitempty"`
	Password string         `json:"password,omitempty"`
	Root     string         `json:"root,omitempty"`
	Timeout  timex.Duration `json:"timeout,omitempty"`
}

func (c *FTPConfig) Validate() error {
	if c.Host == "" {
		return errors.New("host is required")
	}
	return nil
}

func (c *FTPConfig) addr() string {
	if _, _, err := net.SplitHostPort(c.Host); err == nil {
		return c.Host
	}
	return net.JoinHostPort(c.Host, "21")
}

// ftpConn is the subset of the FTP control connection used here.
type ftpConn interface {
	Login(user, password string) error
	List(path string) ([]*ftp.Entry, error)
	Retrieve(path string) (io.ReadCloser, error)
	Stor(path string, r io.Reader) error
	Delete(path string) error
	MakeDir(path string) error
	Quit() error
}

// serverConn adapts *ftp.ServerConn, whose Retr returns a concrete type.
type serverConn struct {
	*ftp.ServerConn
}

func (c serverConn) Retrieve(p string) (io.ReadCloser, error) {
	return c.Retr(p)
}

var dialFTP = func(ctx context.Context, addr string, timeout time.Duration) (ftpConn, error) {
	c, err := ftp.Dial(addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(timeout))
	if err != nil {
		return nil, err
	}
	return serverConn{c}, nil
}

// FTP is a back-end over one logged-in control connection. The connection
// serves one command at a time: close a reader from Open before the next call.
type FTP struct {
	conn ftpConn
	host string
	root string
}

// NewFTP dials and logs in. Anonymous login is used without a username.
func NewFTP(ctx context.Context, cfg FTPConfig) (*FTP, error) {
	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = defaultFTPTimeout
	}

	conn, err := dialFTP(ctx, cfg.addr(), timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Host, err)
	}

	user, pass := cfg.Username, cfg.Password
	if user == "" {
		user, pass = "anonymous", "anonymous"
	}
	if err := conn.Login(user, pass); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("login %s: %w", cfg.Host, err)
	}

	return &FTP{conn: conn, host: cfg.Host, root: "/" + cleanPath(cfg.Root)}, nil
}

func (f *FTP) Kind() string { return KindFTP }

func (f *FTP) abs(p string) string {
	return path.Join(f.root, cleanPath(p))
}

func isFTPNotFound(err error) bool {
	var te *textproto.Error
	return errors.As(err, &te) && te.Code == ftp.StatusFileUnavailable
}

func ftpEntry(p string, e *ftp.Entry) Entry {
	return Entry{
		Path:       cleanPath(p),
		Name:       e.Name,
		Size:       int64(e.Size),
		ModifiedAt: e.Time,
		IsDir:      e.Type == ftp.EntryTypeFolder,
	}
}

// Stat looks the name up in its parent directory listing; servers disagree
// on what LIST of a single file returns.
func (f *FTP) Stat(_ context.Context, p string) (*Entry, error) {
	rel := cleanPath(p)
	if rel == "" {
		return &Entry{Path: "", Name: "/", IsDir: true}, nil
	}

	entries, err := f.conn.List(path.Dir(f.abs(rel)))
	if isFTPNotFound(err) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path.Dir(rel), err)
	}

	name := path.Base(rel)
	for _, e := range entries {
		if e.Name == name {
			out := ftpEntry(rel, e)
			return &out, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *FTP) List(ctx context.Context, dir string, recursive bool) ([]Entry, error) {
	var out []Entry
	if err := f.walk(ctx, cleanPath(dir), recursive, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (f *FTP) walk(ctx context.Context, dir string, recursive bool, out *[]Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := f.conn.List(f.abs(dir))
	if isFTPNotFound(err) {
		return common.ErrorNotFound
	}
	if err != nil {
		return fmt.Errorf("list %s: %w", dir, err)
	}

	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		rel := path.Join(dir, e.Name)
		switch e.Type {
		case ftp.EntryTypeFile:
			*out = append(*out, ftpEntry(rel, e))
		case ftp.EntryTypeFolder:
			if recursive {
				if err := f.walk(ctx, rel, true, out); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (f *FTP) Open(_ context.Context, p string) (io.ReadCloser, error) {
	rc, err := f.conn.Retrieve(f.abs(p))
	if isFTPNotFound(err) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("retr %s: %w", p, err)
	}
	return rc, nil
}

// Put creates missing parent directories; MKD failures for existing
// directories are ignored.
func (f *FTP) Put(_ context.Context, p string, r io.Reader, _ int64) error {
	target := f.abs(p)

	dir := path.Dir(target)
	var parts []string
	for d := dir; d != "/" && d != "."; d = path.Dir(d) {
		parts = append([]string{d}, parts...)
	}
	for _, d := range parts {
		_ = f.conn.MakeDir(d)
	}

	if err := f.conn.Stor(target, r); err != nil {
		return fmt.Errorf("stor %s: %w", p, err)
	}
	return nil
}

func (f *FTP) Delete(_ context.Context, p string) error {
	err := f.conn.Delete(f.abs(p))
	if isFTPNotFound(err) {
		return common.ErrorNotFound
	}
	if err != nil {
		return fmt.Errorf("dele %s: %w", p, err)
	}
	return nil
}

// URL returns ftp://host/path without credentials.
func (f *FTP) URL(p string) string {
	u := url.URL{Scheme: "ftp", Host: f.host, Path: f.abs(p)}
	return u.String()
}

func (f *FTP) Close() error {
	return f.conn.Quit()
}
