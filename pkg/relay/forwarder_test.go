package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"objectnet/objectnet-go/pkg/channel"
	"objectnet/objectnet-go/pkg/transport"
	"objectnet/objectnet-go/pkg/types"
	"objectnet/objectnet-go/pkg/wire"
)

// relayHarness is a relay server channel and its players on one memory
// network
type relayHarness struct {
	t         *testing.T
	network   *transport.MemoryNetwork
	session   *Session
	forwarder *Forwarder
	server    *channel.Channel
	clients   []*player
}

type player struct {
	ch       *channel.Channel
	messages [][]byte
}

func newRelayHarness(t *testing.T, mutate ...func(*Config)) *relayHarness {
	t.Helper()

	cfg := DefaultConfig()
	cfg.PeerToPeer = true
	cfg.LobbyMode = true
	for _, m := range mutate {
		m(&cfg)
	}
	session, err := NewSession(cfg)
	require.NoError(t, err)

	h := &relayHarness{
		t:         t,
		network:   transport.NewMemoryNetwork(),
		session:   session,
		forwarder: NewForwarder(session, types.DeliveryReliable, nil),
	}

	serverCfg := channel.DefaultConfig()
	serverCfg.Direction = channel.DirectionServer
	serverCfg.TransportType = transport.TypeMemory
	serverCfg.TransportOptions.Network = h.network
	serverCfg.Address = channel.Address{Host: "relay", TCPPort: 2300}
	serverCfg.Session = session
	serverCfg.Callbacks.OnMessageReceived = h.forwarder.OnMessage

	h.server, err = channel.New(serverCfg)
	require.NoError(t, err)
	require.NoError(t, h.server.Start())

	t.Cleanup(func() {
		for _, c := range h.clients {
			c.ch.Stop()
		}
		h.server.Stop()
		session.Close()
	})
	return h
}

// join connects a new client channel and pumps until it is bootstrapped
func (h *relayHarness) join() *player {
	h.t.Helper()

	p := &player{}
	cfg := channel.DefaultConfig()
	cfg.TransportType = transport.TypeMemory
	cfg.TransportOptions.Network = h.network
	cfg.Address = channel.Address{Host: "relay", TCPPort: 2300}
	cfg.Callbacks.OnMessageReceived = func(_ *channel.Client, stream []byte) {
		p.messages = append(p.messages, append([]byte(nil), stream...))
	}

	ch, err := channel.New(cfg)
	require.NoError(h.t, err)
	require.NoError(h.t, ch.Start())
	require.True(h.t, ch.Connect())
	p.ch = ch
	h.clients = append(h.clients, p)

	h.pump()
	_, ok := ch.Welcome()
	require.True(h.t, ok)
	return p
}

// pump processes the server, then every client
func (h *relayHarness) pump() {
	h.server.Process()
	for _, c := range h.clients {
		c.ch.Process()
	}
}

// events returns the internal event codes p received, in order
func (p *player) events(t *testing.T) []wire.EventCode {
	var out []wire.EventCode
	for _, msg := range p.messages {
		code, _, err := wire.SplitEventCode(msg)
		require.NoError(t, err)
		if code.IsInternal() {
			out = append(out, code)
		}
	}
	return out
}

// appMessages returns the non-internal messages p received
func (p *player) appMessages() [][]byte {
	var out [][]byte
	for _, msg := range p.messages {
		code, _, err := wire.SplitEventCode(msg)
		if err == nil && code.IsInternal() {
			continue
		}
		out = append(out, msg)
	}
	return out
}

func TestRelay_FirstPlayerBootstrap(t *testing.T) {
	h := newRelayHarness(t)
	a := h.join()

	assert.Equal(t, 1, h.server.ClientCount())
	welcome, _ := a.ch.Welcome()
	assert.True(t, welcome.Relay)
	assert.True(t, welcome.IsMaster)
	assert.True(t, welcome.LobbyMode)
	assert.Equal(t, h.session.SessionInstanceID(), welcome.SessionInstanceID)
	assert.Equal(t, types.ServerModeRelay, welcome.ServerMode)
	assert.Greater(t, a.ch.ConnectionID(), int32(0))

	assert.Equal(t, []wire.EventCode{wire.EventClientConnected, wire.EventInitializePeerToPeer}, a.events(t))
	assert.Equal(t, 27000, a.ch.Transport().(*transport.MemoryTransport).PeerToPeerPort())
}

func TestRelay_SecondPlayerLearnsFirst(t *testing.T) {
	h := newRelayHarness(t)
	a := h.join()
	before := len(a.messages)

	b := h.join()
	assert.Len(t, a.messages, before)

	welcome, _ := b.ch.Welcome()
	assert.False(t, welcome.IsMaster)
	assert.Equal(t, []wire.EventCode{
		wire.EventClientConnected,
		wire.EventCreateNetworkPeer,
		wire.EventInitializePeerToPeer,
	}, b.events(t))

	peers := b.ch.Transport().(*transport.MemoryTransport).Peers()
	require.Len(t, peers, 1)
	first, ok := h.session.Player(a.ch.ConnectionID())
	require.True(t, ok)
	assert.Equal(t, first.ID, peers[0].ID)
	assert.Equal(t, 27000, peers[0].Port)
	assert.True(t, peers[0].Available)
}

func TestRelay_BroadcastToLobby(t *testing.T) {
	h := newRelayHarness(t)
	a, b, c := h.join(), h.join(), h.join()

	require.NoError(t, a.ch.Send([]byte("hello"), types.DeliveryReliable))
	h.pump()

	assert.Empty(t, a.appMessages())
	assert.Equal(t, [][]byte{[]byte("hello")}, b.appMessages())
	assert.Equal(t, [][]byte{[]byte("hello")}, c.appMessages())
	assert.Equal(t, uint64(2), h.forwarder.Forwarded())

	// Lobbies scope the broadcast
	require.NoError(t, h.session.MoveToLobby(c.ch.ConnectionID(), "arena"))
	require.NoError(t, a.ch.Send([]byte("again"), types.DeliveryReliable))
	h.pump()
	assert.Len(t, b.appMessages(), 2)
	assert.Len(t, c.appMessages(), 1)
}

func TestRelay_TargetedSend(t *testing.T) {
	h := newRelayHarness(t)
	a, b, c := h.join(), h.join(), h.join()

	peer, err := a.ch.AddRelayPeer(b.ch.ConnectionID(), "127.0.0.1", 0)
	require.NoError(t, err)
	require.NoError(t, peer.Send([]byte("psst"), types.DeliveryReliable))
	h.pump()

	assert.Equal(t, [][]byte{[]byte("psst")}, b.appMessages())
	assert.Empty(t, c.appMessages())

	// Unknown and cross-lobby targets are dropped
	ghost, err := a.ch.AddRelayPeer(99, "127.0.0.1", 0)
	require.NoError(t, err)
	require.NoError(t, ghost.Send([]byte("boo"), types.DeliveryReliable))
	require.NoError(t, h.session.MoveToLobby(b.ch.ConnectionID(), "arena"))
	require.NoError(t, peer.Send([]byte("psst"), types.DeliveryReliable))
	h.pump()

	assert.Len(t, b.appMessages(), 1)
	assert.Equal(t, uint64(2), h.forwarder.Dropped())
}

func TestRelay_MasterPromotedOnLeave(t *testing.T) {
	h := newRelayHarness(t)
	a, b := h.join(), h.join()

	require.NoError(t, a.ch.Stop())
	h.pump()

	assert.Equal(t, 1, h.server.ClientCount())
	master, ok := h.session.Master("default")
	require.True(t, ok)
	assert.Equal(t, b.ch.ConnectionID(), master.ConnectionID)

	// The port of the departed player is reused
	c := h.join()
	p, ok := h.session.Player(c.ch.ConnectionID())
	require.True(t, ok)
	assert.Equal(t, 27000, p.PeerToPeerPort)
}

func TestForwarder_Errors(t *testing.T) {
	h := newRelayHarness(t)

	_, err := h.forwarder.Forward(nil, []byte{1, 0, 0, 0})
	assert.ErrorIs(t, err, channel.ErrNilClient)

	a := h.join()
	origin := h.server.GetConnectedClient(a.ch.ConnectionID())
	require.NotNil(t, origin)
	_, err = h.forwarder.Forward(origin, []byte{1})
	assert.ErrorIs(t, err, types.ErrUndersizedPacket)

	n, err := h.forwarder.Forward(origin, []byte{0, 0, 0, 0, 'x'})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
