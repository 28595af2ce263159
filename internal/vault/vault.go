// Package vault seals platform session credentials at rest.
package vault

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// CryptoError signals that a sealed blob is unusable: empty, corrupt, or
// sealed under a different key. It is terminal and must not be retried;
// the user has to re-authenticate.
type CryptoError struct {
	Reason string
	Err    error
}

func (e *CryptoError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("credential vault: %s: %v", e.Reason, e.Err)
	}
	return "credential vault: " + e.Reason
}

func (e *CryptoError) Unwrap() error { return e.Err }

// IsCryptoError reports whether err is terminal credential corruption.
func IsCryptoError(err error) bool {
	var ce *CryptoError
	return errors.As(err, &ce)
}

// Vault encrypts and decrypts session blobs with a process-wide key.
type Vault struct {
	aead cipher.AEAD
}

// New builds a vault from a 32-byte hex-encoded key. A missing or
// malformed key is a startup failure; the vault never operates unsealed.
func New(hexKey string) (*Vault, error) {
	if hexKey == "" {
		return nil, errors.New("credential vault: key is required")
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("credential vault: key is not valid hex: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("credential vault: key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("credential vault: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// Seal encrypts plaintext and returns nonce||ciphertext.
func (v *Vault) Seal(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, &CryptoError{Reason: "refusing to seal empty credential"}
	}
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("credential vault: nonce: %w", err)
	}
	return v.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a blob produced by Seal. Any failure is a CryptoError.
func (v *Vault) Open(blob []byte) ([]byte, error) {
	if len(blob) == 0 {
		return nil, &CryptoError{Reason: "empty credential blob"}
	}
	if len(blob) <= v.aead.NonceSize() {
		return nil, &CryptoError{Reason: "credential blob too short"}
	}
	nonce, ciphertext := blob[:v.aead.NonceSize()], blob[v.aead.NonceSize():]
	plaintext, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, &CryptoError{Reason: "decryption failed", Err: err}
	}
	return plaintext, nil
}
