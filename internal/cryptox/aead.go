package cryptox

import (
	"fmt"

	"github.com/dmitrijs2005/extmedia/internal/common"
	"golang.org/x/crypto/chacha20poly1305"
)

// aead is XChaCha20-Poly1305. Layout: nonce || sealed.
type aead struct{}

func (aead) seal(key, plaintext []byte) ([]byte, error) {
	a, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := common.GenerateRandByteArray(a.NonceSize())
	return a.Seal(nonce, nonce, plaintext, nil), nil
}

func (aead) open(key, sealed []byte) ([]byte, error) {
	a, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < a.NonceSize()+a.Overhead() {
		return nil, fmt.Errorf("ciphertext too short: %w", common.ErrDecrypt)
	}
	nonce, ct := sealed[:a.NonceSize()], sealed[a.NonceSize():]
	plain, err := a.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("open: %w", common.ErrDecrypt)
	}
	return plain, nil
}
