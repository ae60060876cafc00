// Package secret seals credential fields at rest. Keys are derived from an
// operator passphrase with Argon2id; values are sealed with AES-256-GCM and
// stored as "v1:" followed by base64(nonce || ciphertext).
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	keyLen       = 32 // AES-256
	argonTime    = 1
	argonMem     = 64 * 1024 // 64 MB
	argonThreads = 4

	prefix = "v1:"
)

var (
	// ErrNoPassphrase is returned by New for an empty passphrase.
	ErrNoPassphrase = errors.New("secret: empty passphrase")
	// ErrMalformed marks a sealed value that cannot be decoded.
	ErrMalformed = errors.New("secret: malformed sealed value")
)

// Box seals and opens strings with one derived key. It is safe for
// concurrent use.
type Box struct {
	aead cipher.AEAD
}

// DeriveKey derives a 32-byte encryption key from a passphrase and salt
// using Argon2id.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argonTime, argonMem, argonThreads, keyLen)
}

// New derives the key for passphrase and salt and returns a Box using it.
func New(passphrase, salt string) (*Box, error) {
	if passphrase == "" {
		return nil, ErrNoPassphrase
	}
	return NewWithKey(DeriveKey([]byte(passphrase), []byte(salt)))
}

// NewWithKey returns a Box for a raw 32-byte key.
func NewWithKey(key []byte) (*Box, error) {
	if len(key) != keyLen {
		return nil, fmt.Errorf("secret: key is %d bytes, want %d", len(key), keyLen)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secret: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secret: %w", err)
	}
	return &Box{aead: gcm}, nil
}

// Seal encrypts plain. The empty string seals to the empty string.
func (b *Box) Seal(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("secret: nonce: %w", err)
	}
	data := b.aead.Seal(nonce, nonce, []byte(plain), nil)
	return prefix + base64.StdEncoding.EncodeToString(data), nil
}

// Open decrypts a value produced by Seal with the same key.
func (b *Box) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	if !strings.HasPrefix(sealed, prefix) {
		return "", ErrMalformed
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, prefix))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	n := b.aead.NonceSize()
	if len(data) < n {
		return "", fmt.Errorf("%w: ciphertext too short", ErrMalformed)
	}
	plain, err := b.aead.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", fmt.Errorf("secret: open: %w", err)
	}
	return string(plain), nil
}

// IsSealed reports whether s looks like a Seal output.
func IsSealed(s string) bool { return strings.HasPrefix(s, prefix) }
