package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"

	"github.com/dmitrijs2005/extmedia/internal/common"
)

// cbcHMAC is AES-256-CBC with PKCS#7 padding and an HMAC-SHA256 over
// iv||ciphertext. Layout: iv || mac || ciphertext.
type cbcHMAC struct{}

func (cbcHMAC) seal(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	iv := common.GenerateRandByteArray(aes.BlockSize)
	padded := pad(plaintext, aes.BlockSize)

	ct := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)

	out := make([]byte, 0, len(iv)+sha256.Size+len(ct))
	out = append(out, iv...)
	out = append(out, mac(key, iv, ct)...)
	out = append(out, ct...)
	return out, nil
}

func (cbcHMAC) open(key, sealed []byte) ([]byte, error) {
	if len(sealed) < aes.BlockSize+sha256.Size+aes.BlockSize {
		return nil, fmt.Errorf("ciphertext too short: %w", common.ErrDecrypt)
	}

	iv := sealed[:aes.BlockSize]
	sum := sealed[aes.BlockSize : aes.BlockSize+sha256.Size]
	ct := sealed[aes.BlockSize+sha256.Size:]

	if len(ct)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext not block aligned: %w", common.ErrDecrypt)
	}
	if !hmac.Equal(sum, mac(key, iv, ct)) {
		return nil, fmt.Errorf("mac mismatch: %w", common.ErrDecrypt)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ct)
	return unpad(plain, aes.BlockSize)
}

func mac(key, iv, ct []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(iv)
	h.Write(ct)
	return h.Sum(nil)
}

func pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(append([]byte{}, b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("empty plaintext: %w", common.ErrDecrypt)
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, fmt.Errorf("bad padding: %w", common.ErrDecrypt)
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, fmt.Errorf("bad padding: %w", common.ErrDecrypt)
		}
	}
	return b[:len(b)-n], nil
}
