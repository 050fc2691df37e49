package protocols

import (
	"bytes"
	"context"
	"io"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/dmitrijs2005/extmedia/internal/backends"
	"github.com/dmitrijs2005/extmedia/internal/common"
	"github.com/dmitrijs2005/extmedia/internal/credentials"
	"github.com/dmitrijs2005/extmedia/internal/models"
)

type recordingJournal struct {
	mu       sync.Mutex
	warnings []string
	infos    []string
}

func (j *recordingJournal) Warning(_ context.Context, _ int, msg, url string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.warnings = append(j.warnings, msg+" "+url)
}

func (j *recordingJournal) Info(_ context.Context, _ int, msg, url string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.infos = append(j.infos, msg+" "+url)
}

type urlSet map[string]bool

func (s urlSet) ExistsURL(_ context.Context, url string) (bool, error) {
	return s[url], nil
}

// memBackend is a flat in-memory store keyed by clean path.
type memBackend struct {
	kind   string
	prefix string
	files  map[string][]byte
	types  map[string]string
	closed int
}

func (m *memBackend) Kind() string { return m.kind }

func (m *memBackend) Stat(_ context.Context, p string) (*backends.Entry, error) {
	p = strings.Trim(p, "/")
	if b, ok := m.files[p]; ok {
		return &backends.Entry{Path: p, Name: path.Base(p), Size: int64(len(b)), ContentType: m.types[p]}, nil
	}
	for k := range m.files {
		if strings.HasPrefix(k, p+"/") {
			return &backends.Entry{Path: p, Name: path.Base(p), IsDir: true}, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (m *memBackend) List(_ context.Context, dir string, recursive bool) ([]backends.Entry, error) {
	dir = strings.Trim(dir, "/")
	prefix := dir + "/"
	if dir == "" {
		prefix = ""
	}
	var out []backends.Entry
	for k, b := range m.files {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if !recursive && strings.Contains(strings.TrimPrefix(k, prefix), "/") {
			continue
		}
		out = append(out, backends.Entry{Path: k, Name: path.Base(k), Size: int64(len(b)), ContentType: m.types[k]})
	}
	if len(out) == 0 {
		if _, err := m.Stat(context.Background(), dir); err != nil && dir != "" {
			return nil, err
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *memBackend) Open(_ context.Context, p string) (io.ReadCloser, error) {
	b, ok := m.files[strings.Trim(p, "/")]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBackend) Put(_ context.Context, p string, r io.Reader, _ int64) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.files[strings.Trim(p, "/")] = b
	return nil
}

func (m *memBackend) Delete(_ context.Context, p string) error {
	p = strings.Trim(p, "/")
	if _, ok := m.files[p]; !ok {
		return common.ErrorNotFound
	}
	delete(m.files, p)
	return nil
}

func (m *memBackend) URL(p string) string {
	return m.prefix + strings.Trim(p, "/")
}

func (m *memBackend) Close() error {
	m.closed++
	return nil
}

type fixedServices map[string]*credentials.Service

func (f fixedServices) Match(kind, host string) (*credentials.Service, bool) {
	svc, ok := f[kind+"|"+host]
	return svc, ok
}

func loginPtr(u, p string) *models.Login {
	return &models.Login{Username: u, Password: p}
}
