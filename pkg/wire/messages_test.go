package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"objectnet/objectnet-go/pkg/types"
)

func TestPrependEventCode(t *testing.T) {
	stream := []byte{0xAA, 0xBB}
	out := PrependEventCode(EventCode(5), stream)

	assert.Equal(t, []byte{5, 0, 0, 0, 0xAA, 0xBB}, out)
	assert.Equal(t, []byte{0xAA, 0xBB}, stream, "input must not be modified")

	code, body, err := SplitEventCode(out)
	require.NoError(t, err)
	assert.Equal(t, EventCode(5), code)
	assert.Equal(t, stream, body)
}

func TestSplitEventCode_Short(t *testing.T) {
	_, _, err := SplitEventCode([]byte{1, 2})
	assert.ErrorIs(t, err, ErrInsufficientData)
	assert.Equal(t, types.KindInvalidPacket, types.KindOf(err))
}

func TestEventEnvelopeLayout(t *testing.T) {
	codec := &Codec{}
	frame, err := codec.Compose(PrependEventCode(EventCode(0x10), []byte{0x77}), 2, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 0, 0, 0, 0x10, 0, 0, 0, 0x77}, frame)
}

func TestClientConnected_RelayLayout(t *testing.T) {
	msg := ClientConnected{
		Relay:             true,
		ConnectionID:      3,
		SessionInstanceID: 0x0A0B0C0D,
		PlayerID:          0x0102,
		PlayerName:        "Player 1",
		IsMaster:          true,
		LobbyMode:         false,
		ServerMode:        types.ServerModeRelay,
	}

	data := msg.Encode()
	want := []byte{
		3, 0, 0, 0,
		0x0D, 0x0C, 0x0B, 0x0A,
		0x02, 0x01,
		8, 'P', 'l', 'a', 'y', 'e', 'r', ' ', '1',
		1,
		0,
		byte(types.ServerModeRelay),
	}
	assert.Equal(t, want, data)

	got, err := DecodeClientConnected(data, true)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestClientConnected_PlainLayout(t *testing.T) {
	msg := ClientConnected{ConnectionID: 9, SessionInstanceID: 77, PlayerName: "ignored"}
	data := msg.Encode()
	assert.Len(t, data, 8)

	got, err := DecodeClientConnected(data, false)
	require.NoError(t, err)
	assert.Equal(t, int32(9), got.ConnectionID)
	assert.Equal(t, int32(77), got.SessionInstanceID)
	assert.Empty(t, got.PlayerName)
}

func TestClientConnected_Truncated(t *testing.T) {
	data := ClientConnected{Relay: true, ConnectionID: 1, PlayerName: "abc"}.Encode()
	for i := 0; i < len(data); i++ {
		_, err := DecodeClientConnected(data[:i], true)
		assert.Error(t, err, "prefix of %d bytes", i)
	}
}

func TestCreateNetworkPeer(t *testing.T) {
	msg := CreateNetworkPeer{PlayerID: 4, IP: "10.0.0.5", Port: 27001, Available: true}
	got, err := DecodeCreateNetworkPeer(msg.Encode())
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestInitializePeerToPeer(t *testing.T) {
	msg := InitializePeerToPeer{PlayerID: 12, Port: 27012}
	data := msg.Encode()
	assert.Equal(t, []byte{12, 0, 0x84, 0x69, 0, 0}, data)

	got, err := DecodeInitializePeerToPeer(data)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestReader_StringErrors(t *testing.T) {
	_, err := NewReader([]byte{5, 'a'}).ReadString()
	assert.ErrorIs(t, err, ErrStringTooLong)

	_, err = NewReader([]byte{2, 0xFF, 0xFE}).ReadString()
	assert.ErrorIs(t, err, ErrInvalidString)

	_, err = NewReader(nil).ReadString()
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestEventCode_String(t *testing.T) {
	assert.Equal(t, "ClientConnected", EventClientConnected.String())
	assert.True(t, EventInitializePeerToPeer.IsInternal())
	assert.False(t, EventCode(1).IsInternal())
	assert.Equal(t, "Event(1)", EventCode(1).String())
}
