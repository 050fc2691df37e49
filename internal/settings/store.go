// Package settings is the key-value store for runtime configuration: key
// material, encrypted service configurations and job intervals.
package settings

import (
	"strconv"
	"strings"
	"sync"
)

// Store is a namespaced string key-value store.
type Store interface {
	// Get returns the value for key, or def when the key is absent.
	Get(key, def string) (string, error)
	// Set stores value under key.
	Set(key, value string) error
}

// Bool reads key as a boolean, falling back to def when absent or unparsable.
func Bool(s Store, key string, def bool) bool {
	v, err := s.Get(key, "")
	if err != nil || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// Int reads key as an integer, falling back to def.
func Int(s Store, key string, def int) int {
	v, err := s.Get(key, "")
	if err != nil || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// List reads a comma separated list, falling back to def.
func List(s Store, key string, def []string) []string {
	v, err := s.Get(key, "")
	if err != nil || strings.TrimSpace(v) == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Memory is an in-process Store.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(key, def string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return def, nil
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}
