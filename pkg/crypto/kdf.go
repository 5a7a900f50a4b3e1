package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

var ErrEmptySecret = errors.New("shared secret is empty")

// DeriveKey expands a shared secret into a cipher key with HKDF-SHA256
func DeriveKey(secret, salt []byte, info string) ([KeySize]byte, error) {
	var key [KeySize]byte
	if len(secret) == 0 {
		return key, ErrEmptySecret
	}
	r := hkdf.New(sha256.New, secret, salt, []byte(info))
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return key, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}
