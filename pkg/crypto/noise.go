package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/flynn/noise"
)

const (
	// SenderIDSize is the random per-instance id carried ahead of each ciphertext
	SenderIDSize = 16
	// noiseHeaderSize is the sender id plus the 64-bit counter
	noiseHeaderSize = SenderIDSize + 8
	noiseTagSize    = 16

	noiseSenderInfo = "objectnet noise sender"
	// maxReceiveKeys bounds the cache of keys derived for remote senders
	maxReceiveKeys = 1024
)

var ErrUnknownCipher = errors.New("unknown noise cipher")

// NoiseCipher provides an encrypt/decrypt hook pair on top of a noise AEAD
// cipher function. Each instance draws a random sender id and seals under a
// key derived from the shared key and that id, so instances sharing one key
// never reuse a (key, nonce) pair. Each ciphertext is laid out as
// [16-byte sender id][uint64 counter][sealed].
type NoiseCipher struct {
	fn       noise.CipherFunc
	key      [KeySize]byte
	senderID [SenderIDSize]byte
	send     noise.Cipher
	counter  atomic.Uint64

	mu   sync.Mutex
	recv map[[SenderIDSize]byte]noise.Cipher
}

// NewNoiseCipher creates a hook pair. name is "ChaChaPoly" or "AESGCM".
func NewNoiseCipher(name string, key [KeySize]byte) (*NoiseCipher, error) {
	var fn noise.CipherFunc
	switch name {
	case "", noise.CipherChaChaPoly.CipherName():
		fn = noise.CipherChaChaPoly
	case noise.CipherAESGCM.CipherName():
		fn = noise.CipherAESGCM
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCipher, name)
	}

	c := &NoiseCipher{
		fn:   fn,
		key:  key,
		recv: make(map[[SenderIDSize]byte]noise.Cipher),
	}
	if _, err := rand.Read(c.senderID[:]); err != nil {
		return nil, fmt.Errorf("generate sender id: %w", err)
	}
	send, err := c.senderCipher(c.senderID)
	if err != nil {
		return nil, err
	}
	c.send = send
	return c, nil
}

func (c *NoiseCipher) senderCipher(id [SenderIDSize]byte) (noise.Cipher, error) {
	subkey, err := DeriveKey(c.key[:], id[:], noiseSenderInfo)
	if err != nil {
		return nil, err
	}
	return c.fn.Cipher(subkey), nil
}

// Name returns the cipher function name
func (c *NoiseCipher) Name() string {
	return c.fn.CipherName()
}

// SenderID returns the id this instance seals under
func (c *NoiseCipher) SenderID() [SenderIDSize]byte {
	return c.senderID
}

// Encrypt seals plaintext under the next counter value
func (c *NoiseCipher) Encrypt(plaintext []byte) ([]byte, error) {
	n := c.counter.Add(1)
	out := make([]byte, noiseHeaderSize, noiseHeaderSize+len(plaintext)+noiseTagSize)
	copy(out, c.senderID[:])
	binary.LittleEndian.PutUint64(out[SenderIDSize:], n)
	return c.send.Encrypt(out, n, nil, plaintext), nil
}

// Decrypt opens a ciphertext produced by Encrypt on any instance holding the
// same key
func (c *NoiseCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < noiseHeaderSize+noiseTagSize {
		return nil, ErrCiphertextTooShort
	}
	var id [SenderIDSize]byte
	copy(id[:], ciphertext[:SenderIDSize])
	n := binary.LittleEndian.Uint64(ciphertext[SenderIDSize:noiseHeaderSize])

	recv, err := c.receiver(id)
	if err != nil {
		return nil, err
	}
	out, err := recv.Decrypt(nil, n, nil, ciphertext[noiseHeaderSize:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	if out == nil {
		out = []byte{}
	}
	return out, nil
}

// receiver returns the cached cipher of a remote sender
func (c *NoiseCipher) receiver(id [SenderIDSize]byte) (noise.Cipher, error) {
	if id == c.senderID {
		return c.send, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if recv, ok := c.recv[id]; ok {
		return recv, nil
	}
	recv, err := c.senderCipher(id)
	if err != nil {
		return nil, err
	}
	if len(c.recv) >= maxReceiveKeys {
		clear(c.recv)
	}
	c.recv[id] = recv
	return recv, nil
}
