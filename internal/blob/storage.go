// Package blob is the local content store for cached media and export staging.
package blob

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/extmedia/internal/common"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// Storage keeps blobs under slash-separated relative paths on an afero.Fs.
type Storage struct {
	fs afero.Fs
}

// New wraps fs. Paths are interpreted relative to the root of fs.
func New(fs afero.Fs) *Storage {
	return &Storage{fs: fs}
}

// NewOS stores blobs below root on the host filesystem.
func NewOS(root string) *Storage {
	return New(afero.NewBasePathFs(afero.NewOsFs(), root))
}

// Fs exposes the underlying filesystem for components that stream content.
func (s *Storage) Fs() afero.Fs {
	return s.fs
}

func clean(p string) string {
	return filepath.FromSlash(path.Clean("/" + p))
}

// Exists reports whether a regular file is stored at p.
func (s *Storage) Exists(p string) (bool, error) {
	fi, err := s.fs.Stat(clean(p))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !fi.IsDir(), nil
}

// Read returns the whole blob.
func (s *Storage) Read(p string) ([]byte, error) {
	b, err := afero.ReadFile(s.fs, clean(p))
	if errors.Is(err, os.ErrNotExist) {
		return nil, common.ErrorNotFound
	}
	return b, err
}

// Open returns a reader over the blob.
func (s *Storage) Open(p string) (io.ReadCloser, error) {
	f, err := s.fs.Open(clean(p))
	if errors.Is(err, os.ErrNotExist) {
		return nil, common.ErrorNotFound
	}
	return f, err
}

// Write stores data at p, creating parent directories.
func (s *Storage) Write(p string, data []byte) error {
	name := clean(p)
	if err := s.fs.MkdirAll(filepath.Dir(name), 0o750); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	return afero.WriteFile(s.fs, name, data, 0o640)
}

// WriteFrom copies r into p. When limit > 0 at most limit bytes are copied.
// A failed copy removes the partial blob.
func (s *Storage) WriteFrom(p string, r io.Reader, limit int64) (int64, error) {
	name := clean(p)
	if err := s.fs.MkdirAll(filepath.Dir(name), 0o750); err != nil {
		return 0, fmt.Errorf("mkdir: %w", err)
	}

	f, err := s.fs.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return 0, err
	}

	if limit > 0 {
		r = io.LimitReader(r, limit)
	}

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = s.fs.Remove(name)
		return 0, err
	}
	return n, nil
}

// Delete removes p. Deleting a missing blob is not an error.
func (s *Storage) Delete(p string) error {
	err := s.fs.Remove(clean(p))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Size returns the blob size in bytes.
func (s *Storage) Size(p string) (int64, error) {
	fi, err := s.fs.Stat(clean(p))
	if errors.Is(err, os.ErrNotExist) {
		return 0, common.ErrorNotFound
	}
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// Rename moves a blob, creating the destination's parent directories.
func (s *Storage) Rename(from, to string) error {
	dst := clean(to)
	if err := s.fs.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	return s.fs.Rename(clean(from), dst)
}

// MediaPath returns media/YYYY/MM/<uuid>-<name> for a new cached file.
func MediaPath(now time.Time, name string) string {
	return path.Join("media", now.Format("2006"), now.Format("01"), uuid.NewString()+"-"+safeName(name))
}

// TempPath returns a fresh staging path under tmp/.
func TempPath() string {
	return path.Join("tmp", uuid.NewString())
}

func safeName(name string) string {
	name = path.Base(filepath.ToSlash(name))
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	return name
}
