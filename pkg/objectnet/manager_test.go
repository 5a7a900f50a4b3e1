package objectnet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"objectnet/objectnet-go/pkg/channel"
	"objectnet/objectnet-go/pkg/crypto"
	"objectnet/objectnet-go/pkg/internal/logger"
	"objectnet/objectnet-go/pkg/relay"
	"objectnet/objectnet-go/pkg/transport"
	"objectnet/objectnet-go/pkg/types"
)

func memoryConfigs(network *transport.MemoryNetwork) (server, client channel.Config) {
	server = ServerConfig("server", transport.TypeMemory, "game", 2300, 0)
	server.TransportOptions.Network = network
	client = ClientConfig("client", transport.TypeMemory, "game", 2300, 0)
	client.TransportOptions.Network = network
	return server, client
}

func TestManager_Channels(t *testing.T) {
	m := NewManagerWithLogger(nil)
	serverCfg, clientCfg := memoryConfigs(transport.NewMemoryNetwork())

	server, err := m.AddChannel(serverCfg)
	require.NoError(t, err)
	assert.True(t, server.IsConnected())

	_, err = m.AddChannel(serverCfg)
	assert.ErrorIs(t, err, ErrChannelExists)

	client, err := m.AddChannel(clientCfg)
	require.NoError(t, err)
	assert.Equal(t, 2, m.ChannelCount())

	got, ok := m.GetChannel("client")
	require.True(t, ok)
	assert.Same(t, client, got)
	_, ok = m.GetChannel("missing")
	assert.False(t, ok)

	channels := m.Channels()
	require.Len(t, channels, 2)
	assert.Equal(t, "client", channels[0].ID())
	assert.Equal(t, "server", channels[1].ID())

	require.NoError(t, m.RemoveChannel("client"))
	assert.ErrorIs(t, m.RemoveChannel("client"), ErrChannelNotFound)
	assert.Equal(t, channel.StateStopped, client.State())

	require.NoError(t, m.Shutdown())
	assert.Equal(t, 0, m.ChannelCount())
	assert.Equal(t, channel.StateStopped, server.State())
}

func TestManager_AddChannelFailures(t *testing.T) {
	m := NewManagerWithLogger(nil)

	cfg := ClientConfig("bad", "", "127.0.0.1", 1, 0)
	_, err := m.AddChannel(cfg)
	assert.Equal(t, types.KindConfiguration, types.KindOf(err))

	cfg = ClientConfig("bad", "nope", "127.0.0.1", 1, 0)
	_, err = m.AddChannel(cfg)
	assert.ErrorIs(t, err, transport.ErrUnknownTransport)
	assert.Equal(t, 0, m.ChannelCount())
}

func TestManager_ProcessPumpsEveryChannel(t *testing.T) {
	m := NewManagerWithLogger(logger.NewNoOpLogger())
	defer m.Shutdown()
	serverCfg, clientCfg := memoryConfigs(transport.NewMemoryNetwork())

	var received [][]byte
	serverCfg.Callbacks.OnMessageReceived = func(_ *channel.Client, stream []byte) {
		received = append(received, stream)
	}
	_, err := m.AddChannel(serverCfg)
	require.NoError(t, err)
	client, err := m.AddChannel(clientCfg)
	require.NoError(t, err)

	require.True(t, client.Connect())
	m.Process()
	m.Process()
	assert.Equal(t, int32(1), client.ConnectionID())

	require.NoError(t, client.Send([]byte("tick"), types.DeliveryReliable))
	m.Process()
	assert.Equal(t, [][]byte{[]byte("tick")}, received)
}

func TestManager_Run(t *testing.T) {
	m := NewManagerWithLogger(nil)
	defer m.Shutdown()
	serverCfg, clientCfg := memoryConfigs(transport.NewMemoryNetwork())

	connected := make(chan struct{}, 1)
	serverCfg.Callbacks.OnClientConnected = func(*channel.Client) { connected <- struct{}{} }
	_, err := m.AddChannel(serverCfg)
	require.NoError(t, err)
	client, err := m.AddChannel(clientCfg)
	require.NoError(t, err)
	require.True(t, client.Connect())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, time.Millisecond) }()

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("client never connected")
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRelayServerConfig(t *testing.T) {
	m := NewManagerWithLogger(nil)
	defer m.Shutdown()
	network := transport.NewMemoryNetwork()

	session, err := relay.NewSession(relay.DefaultConfig())
	require.NoError(t, err)
	defer session.Close()

	cfg, fwd := RelayServerConfig("relay", transport.TypeMemory, "relay", 2300, 0, session, types.DeliveryReliable)
	cfg.TransportOptions.Network = network
	_, err = m.AddChannel(cfg)
	require.NoError(t, err)

	var got [][]byte
	clients := make([]*channel.Channel, 2)
	for i := range clients {
		c := ClientConfig("player"+string(rune('a'+i)), transport.TypeMemory, "relay", 2300, 0)
		c.TransportOptions.Network = network
		if i == 1 {
			c.Callbacks.OnMessageReceived = func(_ *channel.Client, stream []byte) {
				got = append(got, stream)
			}
		}
		clients[i], err = m.AddChannel(c)
		require.NoError(t, err)
		require.True(t, clients[i].Connect())
		m.Process()
		m.Process()
	}

	got = nil
	require.NoError(t, clients[0].Send([]byte("state"), types.DeliveryReliable))
	m.Process()
	m.Process()
	assert.Equal(t, [][]byte{[]byte("state")}, got)
	assert.Equal(t, uint64(1), fwd.Forwarded())
}

func TestUseEncryption(t *testing.T) {
	for _, cipher := range []string{CipherSecretBox, CipherChaChaPoly, CipherAESGCM} {
		t.Run(cipher, func(t *testing.T) {
			m := NewManagerWithLogger(nil)
			defer m.Shutdown()
			serverCfg, clientCfg := memoryConfigs(transport.NewMemoryNetwork())
			require.NoError(t, UseEncryption(&serverCfg, cipher, []byte("shared secret"), []byte("salt")))
			require.NoError(t, UseEncryption(&clientCfg, cipher, []byte("shared secret"), []byte("salt")))

			var received [][]byte
			serverCfg.Callbacks.OnMessageReceived = func(_ *channel.Client, stream []byte) {
				received = append(received, stream)
			}
			_, err := m.AddChannel(serverCfg)
			require.NoError(t, err)
			client, err := m.AddChannel(clientCfg)
			require.NoError(t, err)

			require.True(t, client.Connect())
			m.Process()
			m.Process()
			assert.Equal(t, int32(1), client.ConnectionID())

			require.NoError(t, client.Send([]byte("secret move"), types.DeliveryReliable))
			m.Process()
			assert.Equal(t, [][]byte{[]byte("secret move")}, received)
		})
	}

	cfg := channel.DefaultConfig()
	assert.ErrorIs(t, UseEncryption(&cfg, "rot13", []byte("k"), nil), crypto.ErrUnknownCipher)
	assert.False(t, cfg.Encryption)
	assert.Equal(t, types.KindConfiguration, types.KindOf(UseEncryption(&cfg, CipherSecretBox, nil, nil)))
}

func TestLogging(t *testing.T) {
	prev := logger.GetDefault()
	defer logger.SetDefault(prev)

	SetLogLevel(LevelDebug)
	assert.NotSame(t, prev, DefaultLogger())

	EnableFrameDebug(true)
	assert.True(t, logger.FrameDebugEnabled())
	EnableFrameDebug(false)
	assert.False(t, logger.FrameDebugEnabled())

	assert.NotNil(t, NewLogger(LevelWarn))
	assert.NotNil(t, NewLogrusLogger(nil))
}
