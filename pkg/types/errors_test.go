package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"configuration", ConfigurationError("send", ErrNotConnected), KindConfiguration},
		{"connection", ConnectionError("connect", ErrConnectionFailed), KindConnection},
		{"invalid packet", InvalidPacketError("decompose", ErrUndersizedPacket), KindInvalidPacket},
		{"unsupported", UnsupportedError("GetPeer"), KindUnsupported},
		{"wrapped", fmt.Errorf("outer: %w", ConfigurationError("compose", ErrEncryptHookMissing)), KindConfiguration},
		{"plain", errors.New("plain"), KindUnknown},
		{"nil", nil, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	err := ConfigurationError("send", ErrNotConnected)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, "send: configuration error: not connected yet", err.Error())

	err = UnsupportedError("")
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.Equal(t, "unsupported operation: operation not supported in this mode", err.Error())
}

func TestDeliveryMode_String(t *testing.T) {
	assert.Equal(t, "Reliable", DeliveryReliable.String())
	assert.Equal(t, "Unreliable", DeliveryUnreliable.String())
	assert.Equal(t, "Relay", ServerModeRelay.String())
}
