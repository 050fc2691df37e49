// Package cryptox protects stored credentials with a process-wide symmetric
// key kept in the settings store.
package cryptox

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/extmedia/internal/common"
	"github.com/dmitrijs2005/extmedia/internal/logging"
	"github.com/dmitrijs2005/extmedia/internal/settings"
)

// KeySize is the width of the symmetric key in bytes.
const KeySize = 32

// Strategy names accepted by New.
const (
	StrategyCBCHMAC = "cbc-hmac"
	StrategyAEAD    = "aead"
)

// ErrUnknownStrategy is returned by New for an unsupported strategy name.
var ErrUnknownStrategy = errors.New("unknown crypt strategy")

// strategy seals and opens raw bytes with a fixed-width key.
type strategy interface {
	seal(key, plaintext []byte) ([]byte, error)
	open(key, sealed []byte) ([]byte, error)
}

// Crypt encrypts and decrypts short strings such as service credentials.
//
// The key is generated on first use and persisted under common.SettingCryptKey;
// later calls, and later processes sharing the settings store, reuse it.
type Crypt struct {
	settings settings.Store
	strategy strategy
	log      logging.Logger

	mu  sync.Mutex
	key []byte
}

// New builds a Crypt using the named strategy.
func New(store settings.Store, name string, log logging.Logger) (*Crypt, error) {
	var s strategy
	switch name {
	case StrategyCBCHMAC, "":
		s = cbcHMAC{}
	case StrategyAEAD:
		s = aead{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Crypt{settings: store, strategy: s, log: log}, nil
}

// loadKey returns the persisted key, generating and storing one if absent.
func (c *Crypt) loadKey() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.key != nil {
		return c.key, nil
	}

	stored, err := c.settings.Get(common.SettingCryptKey, "")
	if err != nil {
		return nil, err
	}

	if stored != "" {
		key, err := hex.DecodeString(stored)
		if err != nil || len(key) != KeySize {
			return nil, fmt.Errorf("stored key is malformed: %w", common.ErrDecrypt)
		}
		c.key = key
		return key, nil
	}

	encoded, err := common.MakeRandHexString(KeySize)
	if err != nil {
		return nil, err
	}
	key, err := hex.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	if err := c.settings.Set(common.SettingCryptKey, encoded); err != nil {
		common.WipeByteArray(key)
		return nil, err
	}
	c.key = key
	return key, nil
}

// Encrypt seals plaintext and returns it base64-encoded.
func (c *Crypt) Encrypt(plaintext string) (string, error) {
	key, err := c.loadKey()
	if err != nil {
		return "", err
	}
	plain := []byte(plaintext)
	defer common.WipeByteArray(plain)

	sealed, err := c.strategy.seal(key, plain)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any malformed, tampered or foreign ciphertext
// yields common.ErrDecrypt.
func (c *Crypt) Decrypt(ciphertext string) (string, error) {
	key, err := c.loadKey()
	if err != nil {
		return "", err
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode: %w", common.ErrDecrypt)
	}
	plain, err := c.strategy.open(key, raw)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(plain)
	return string(plain), nil
}

// DecryptOrEmpty returns "" when ciphertext cannot be decrypted. The failure
// is logged, never returned.
func (c *Crypt) DecryptOrEmpty(ctx context.Context, ciphertext string) string {
	plain, err := c.Decrypt(ciphertext)
	if err != nil {
		c.log.Warn(ctx, "decrypt failed", "error", err)
		return ""
	}
	return plain
}
