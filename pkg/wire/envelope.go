package wire

import (
	"encoding/binary"
	"fmt"

	"objectnet/objectnet-go/pkg/types"
)

// HeaderSize is the size of the connection id that prefixes every envelope
const HeaderSize = 4

// CipherFunc transforms a payload in one direction (encrypt or decrypt)
type CipherFunc func(data []byte) ([]byte, error)

// Codec composes and decomposes the envelope wrapped around every payload:
//
//	[int32 connection id, little endian][payload, encrypted when enabled]
type Codec struct {
	Encryption bool
	Encrypt    CipherFunc
	Decrypt    CipherFunc
}

// Compose frames payload. The header carries targetID when it is positive,
// ownID otherwise.
func (c *Codec) Compose(payload []byte, targetID, ownID int32) ([]byte, error) {
	body := payload
	if c.Encryption {
		if c.Encrypt == nil {
			return nil, types.ConfigurationError("compose", types.ErrEncryptHookMissing)
		}
		encrypted, err := c.Encrypt(payload)
		if err != nil {
			return nil, fmt.Errorf("encrypt payload: %w", err)
		}
		body = encrypted
	}

	id := ownID
	if targetID > 0 {
		id = targetID
	}

	frame := make([]byte, HeaderSize+len(body))
	binary.LittleEndian.PutUint32(frame[:HeaderSize], uint32(id))
	copy(frame[HeaderSize:], body)
	return frame, nil
}

// Decompose splits raw into its connection id and payload, decrypting the
// payload when encryption is enabled.
func (c *Codec) Decompose(raw []byte) ([]byte, int32, error) {
	id, err := PeekConnectionID(raw)
	if err != nil {
		return nil, 0, err
	}

	payload := raw[HeaderSize:]
	if c.Encryption {
		if c.Decrypt == nil {
			return nil, id, types.ConfigurationError("decompose", types.ErrDecryptHookMissing)
		}
		decrypted, err := c.Decrypt(payload)
		if err != nil {
			return nil, id, types.InvalidPacketError("decompose", err)
		}
		payload = decrypted
	}
	return payload, id, nil
}

// PeekConnectionID reads the header of raw without touching the payload
func PeekConnectionID(raw []byte) (int32, error) {
	if len(raw) < HeaderSize {
		return 0, types.InvalidPacketError("decompose", types.ErrUndersizedPacket)
	}
	return int32(binary.LittleEndian.Uint32(raw[:HeaderSize])), nil
}
