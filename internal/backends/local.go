package backends

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/dmitrijs2005/extmedia/internal/common"
	"github.com/spf13/afero"
)

// LocalConfig points at a directory on the host filesystem.
type LocalConfig struct {
	Root string `json:"root"`
}

func (c *LocalConfig) Validate() error {
	if c.Root == "" {
		return errors.New("root is required")
	}
	return nil
}

// Local is a back-end over a directory of an afero filesystem.
type Local struct {
	fs   afero.Fs
	root string
}

// NewLocal serves cfg.Root from the host filesystem.
func NewLocal(cfg LocalConfig) *Local {
	return NewLocalWithFS(afero.NewOsFs(), cfg.Root)
}

// NewLocalWithFS serves root from fs.
func NewLocalWithFS(fs afero.Fs, root string) *Local {
	return &Local{fs: fs, root: filepath.Clean(root)}
}

func (l *Local) Kind() string { return KindLocal }

func (l *Local) abs(p string) string {
	return filepath.Join(l.root, filepath.FromSlash(cleanPath(p)))
}

func (l *Local) entry(p string, fi os.FileInfo) *Entry {
	return &Entry{
		Path:       cleanPath(p),
		Name:       fi.Name(),
		Size:       fi.Size(),
		ModifiedAt: fi.ModTime(),
		IsDir:      fi.IsDir(),
	}
}

func (l *Local) Stat(_ context.Context, p string) (*Entry, error) {
	fi, err := l.fs.Stat(l.abs(p))
	if errors.Is(err, os.ErrNotExist) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, err
	}
	return l.entry(p, fi), nil
}

func (l *Local) List(ctx context.Context, dir string, recursive bool) ([]Entry, error) {
	base := l.abs(dir)
	fi, err := l.fs.Stat(base)
	if errors.Is(err, os.ErrNotExist) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	var out []Entry
	err = afero.Walk(l.fs, base, func(name string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if name == base {
			return nil
		}
		if fi.IsDir() {
			if recursive {
				return nil
			}
			return filepath.SkipDir
		}
		rel, err := filepath.Rel(l.root, name)
		if err != nil {
			return err
		}
		out = append(out, *l.entry(filepath.ToSlash(rel), fi))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Local) Open(_ context.Context, p string) (io.ReadCloser, error) {
	f, err := l.fs.Open(l.abs(p))
	if errors.Is(err, os.ErrNotExist) {
		return nil, common.ErrorNotFound
	}
	return f, err
}

// Put refuses to replace an existing file.
func (l *Local) Put(_ context.Context, p string, r io.Reader, _ int64) error {
	name := l.abs(p)
	if err := l.fs.MkdirAll(filepath.Dir(name), 0o750); err != nil {
		return err
	}

	f, err := l.fs.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if errors.Is(err, os.ErrExist) {
		return common.ErrTargetExists
	}
	if err != nil {
		return err
	}

	_, err = io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = l.fs.Remove(name)
	}
	return err
}

func (l *Local) Delete(_ context.Context, p string) error {
	err := l.fs.Remove(l.abs(p))
	if errors.Is(err, os.ErrNotExist) {
		return common.ErrorNotFound
	}
	return err
}

func (l *Local) URL(p string) string {
	u := url.URL{Scheme: "file", Path: path.Join(filepath.ToSlash(l.root), cleanPath(p))}
	return u.String()
}

func (l *Local) Close() error { return nil }
