package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// NonceSize is the secretbox nonce length carried ahead of each ciphertext
const NonceSize = 24

// KeySize is the symmetric key length used by every cipher in this package
const KeySize = 32

var (
	ErrCiphertextTooShort = errors.New("ciphertext shorter than nonce and tag")
	ErrAuthentication     = errors.New("decryption failed: message authentication failed")
)

// SecretBox provides an encrypt/decrypt hook pair using NaCl secretbox.
// Each ciphertext is laid out as [24-byte random nonce][sealed box].
type SecretBox struct {
	key [KeySize]byte
}

// NewSecretBox creates a hook pair around key
func NewSecretBox(key [KeySize]byte) *SecretBox {
	return &SecretBox{key: key}
}

// Encrypt seals plaintext under a fresh random nonce
func (s *SecretBox) Encrypt(plaintext []byte) ([]byte, error) {
	var nonce [NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	out := make([]byte, NonceSize, NonceSize+len(plaintext)+secretbox.Overhead)
	copy(out, nonce[:])
	return secretbox.Seal(out, plaintext, &nonce, &s.key), nil
}

// Decrypt opens a ciphertext produced by Encrypt
func (s *SecretBox) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < NonceSize+secretbox.Overhead {
		return nil, ErrCiphertextTooShort
	}
	var nonce [NonceSize]byte
	copy(nonce[:], ciphertext[:NonceSize])

	out, ok := secretbox.Open(nil, ciphertext[NonceSize:], &nonce, &s.key)
	if !ok {
		return nil, ErrAuthentication
	}
	if out == nil {
		out = []byte{}
	}
	return out, nil
}
