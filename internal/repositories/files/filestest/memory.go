// Package filestest provides an in-memory files.Repository for tests of the
// components built on top of it.
package filestest

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/extmedia/internal/common"
	"github.com/dmitrijs2005/extmedia/internal/models"
	"github.com/dmitrijs2005/extmedia/internal/repositories/files"
	"github.com/google/uuid"
)

var _ files.Repository = (*Memory)(nil)

// Memory keeps files and metadata in maps. Err, when set, is returned by
// every call.
type Memory struct {
	mu    sync.Mutex
	files map[string]models.File
	meta  map[string]map[string]string

	Err error
}

func New(fs ...*models.File) *Memory {
	m := &Memory{files: map[string]models.File{}, meta: map[string]map[string]string{}}
	for _, f := range fs {
		_ = m.Create(context.Background(), f)
	}
	return m
}

func (m *Memory) Create(_ context.Context, f *models.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if f.URL == "" {
		return common.ErrInvalidURL
	}
	for _, x := range m.files {
		if x.URL == f.URL {
			return common.ErrDuplicate
		}
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	m.files[f.ID] = *f
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*models.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	f, ok := m.files[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &f, nil
}

func (m *Memory) GetByURL(_ context.Context, url string) (*models.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for _, f := range m.files {
		if f.URL == url {
			return &f, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (m *Memory) ExistsURL(ctx context.Context, url string) (bool, error) {
	_, err := m.GetByURL(ctx, url)
	if errors.Is(err, common.ErrorNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (m *Memory) Update(_ context.Context, f *models.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.files[f.ID]; !ok {
		return common.ErrorNotFound
	}
	m.files[f.ID] = *f
	return nil
}

func (m *Memory) SetAvailability(_ context.Context, id string, available bool, checkedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	f, ok := m.files[id]
	if !ok {
		return common.ErrorNotFound
	}
	f.Available = available
	f.CheckedAt = checkedAt
	m.files[id] = f
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.files[id]; !ok {
		return common.ErrorNotFound
	}
	delete(m.files, id)
	delete(m.meta, id)
	return nil
}

func (m *Memory) ListByTerm(_ context.Context, termID string) ([]*models.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []*models.File
	for _, f := range m.sorted() {
		if f.TermID == termID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *Memory) ListPage(_ context.Context, afterID string, limit int) ([]*models.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []*models.File
	for _, f := range m.sorted() {
		if f.ID > afterID && len(out) < limit {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *Memory) sorted() []*models.File {
	out := make([]*models.File, 0, len(m.files))
	for _, f := range m.files {
		f := f
		out = append(out, &f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) SetMeta(_ context.Context, id, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.files[id]; !ok {
		return common.ErrorNotFound
	}
	if m.meta[id] == nil {
		m.meta[id] = map[string]string{}
	}
	m.meta[id][key] = value
	return nil
}

func (m *Memory) GetMeta(_ context.Context, id, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	v, ok := m.meta[id][key]
	if !ok {
		return "", common.ErrorNotFound
	}
	return v, nil
}

func (m *Memory) ListMeta(_ context.Context, id, prefix string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := map[string]string{}
	for k, v := range m.meta[id] {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out, nil
}

func (m *Memory) DeleteMeta(_ context.Context, id, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	delete(m.meta[id], key)
	return nil
}

// All returns every stored file ordered by ID.
func (m *Memory) All() []*models.File {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted()
}
