// Package credentials keeps back-end service configurations in the settings
// store, encrypted, and opens back-ends from them on demand.
package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/dmitrijs2005/extmedia/internal/backends"
	"github.com/dmitrijs2005/extmedia/internal/common"
	"github.com/dmitrijs2005/extmedia/internal/settings"
)

// indexKey lists the stored service names, comma separated.
const indexKey = common.SettingServicePrefix + "index"

// Cipher protects the stored envelopes.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

type envelope struct {
	Kind   string          `json:"kind"`
	Config json.RawMessage `json:"config"`
}

// Service is one decoded service configuration.
type Service struct {
	Name   string
	Kind   string
	Config backends.Config
}

// Store saves and loads service configurations.
type Store struct {
	settings settings.Store
	cipher   Cipher
	open     func(ctx context.Context, cfg backends.Config) (backends.Backend, error)

	mu sync.Mutex
}

func New(s settings.Store, c Cipher) *Store {
	return &Store{settings: s, cipher: c, open: backends.OpenConfig}
}

func key(name string) string {
	return common.SettingServicePrefix + name
}

// Save validates cfg and stores it encrypted under name.
func (s *Store) Save(name, kind string, cfg backends.Config) error {
	if name == "" || name == "index" || strings.Contains(name, ",") {
		return fmt.Errorf("invalid service name %q", name)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid %s config: %w", kind, err)
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(raw)
	plain, err := json.Marshal(envelope{Kind: kind, Config: raw})
	if err != nil {
		return err
	}
	defer common.WipeByteArray(plain)
	ct, err := s.cipher.Encrypt(string(plain))
	if err != nil {
		return fmt.Errorf("encrypt service %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.settings.Set(key(name), ct); err != nil {
		return err
	}
	return s.addToIndex(name)
}

func (s *Store) addToIndex(name string) error {
	names := s.Names()
	for _, n := range names {
		if n == name {
			return nil
		}
	}
	names = append(names, name)
	sort.Strings(names)
	return s.settings.Set(indexKey, strings.Join(names, ","))
}

// Names returns the stored service names.
func (s *Store) Names() []string {
	return settings.List(s.settings, indexKey, nil)
}

// Load decrypts and decodes the named configuration. A missing name is
// common.ErrUnknownService; an undecryptable one is common.ErrDecrypt.
func (s *Store) Load(name string) (*Service, error) {
	ct, err := s.settings.Get(key(name), "")
	if err != nil {
		return nil, err
	}
	if ct == "" {
		return nil, fmt.Errorf("%w: %s", common.ErrUnknownService, name)
	}

	plain, err := s.cipher.Decrypt(ct)
	if err != nil {
		return nil, fmt.Errorf("service %s: %w", name, common.ErrDecrypt)
	}

	raw := []byte(plain)
	defer common.WipeByteArray(raw)

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("service %s: %w", name, common.ErrDecrypt)
	}

	cfg, err := backends.DecodeConfig(env.Kind, env.Config)
	if err != nil {
		return nil, err
	}
	return &Service{Name: name, Kind: env.Kind, Config: cfg}, nil
}

// Backend opens the named service just in time.
func (s *Store) Backend(ctx context.Context, name string) (backends.Backend, error) {
	svc, err := s.Load(name)
	if err != nil {
		return nil, err
	}
	return s.open(ctx, svc.Config)
}

// Match finds a stored service of kind that serves host: the bucket for s3,
// the server for ftp and webdav. Unusable entries are skipped.
func (s *Store) Match(kind, host string) (*Service, bool) {
	for _, name := range s.Names() {
		svc, err := s.Load(name)
		if err != nil || svc.Kind != kind {
			continue
		}
		if serves(svc.Config, host) {
			return svc, true
		}
	}
	return nil, false
}

func serves(cfg backends.Config, host string) bool {
	switch c := cfg.(type) {
	case *backends.S3Config:
		return c.Bucket == host
	case *backends.FTPConfig:
		return sameHost(c.Host, host)
	case *backends.WebDAVConfig:
		u, err := url.Parse(c.BaseURL)
		return err == nil && sameHost(u.Host, host)
	}
	return false
}

func sameHost(a, b string) bool {
	strip := func(h string) string {
		if hh, _, err := net.SplitHostPort(h); err == nil {
			return hh
		}
		return h
	}
	return strings.EqualFold(strip(a), strip(b))
}
