package channel

import (
	"context"
	"fmt"
	"testing"
	"time"

	"objectnet/objectnet-go/pkg/transport"
	"objectnet/objectnet-go/pkg/types"
)

type sentFrame struct {
	data []byte
	mode types.DeliveryMode
}

// fakeHandle is a remote endpoint recording everything sent to it
type fakeHandle struct {
	ip      string
	port    int
	sent    []sentFrame
	fail    error
	closed  bool
	peers   map[uint16]*transport.Peer
	p2pPort int
}

func newFakeHandle(ip string, port int) *fakeHandle {
	return &fakeHandle{ip: ip, port: port, peers: make(map[uint16]*transport.Peer)}
}

func (h *fakeHandle) Send(data []byte, mode types.DeliveryMode) error {
	if h.fail != nil {
		return h.fail
	}
	h.sent = append(h.sent, sentFrame{data: append([]byte(nil), data...), mode: mode})
	return nil
}

func (h *fakeHandle) IsConnected() bool { return !h.closed }
func (h *fakeHandle) RemoteIP() string  { return h.ip }
func (h *fakeHandle) RemotePort() int   { return h.port }

func (h *fakeHandle) Close() error {
	h.closed = true
	return nil
}

func (h *fakeHandle) RegisterPeer(p *transport.Peer) error {
	h.peers[p.ID] = p
	return nil
}

func (h *fakeHandle) UnregisterPeer(p *transport.Peer) error { return h.UnregisterPeerByID(p.ID) }

func (h *fakeHandle) UnregisterPeerByID(id uint16) error {
	delete(h.peers, id)
	return nil
}

func (h *fakeHandle) GetPeer(id uint16) (*transport.Peer, error) {
	p, ok := h.peers[id]
	if !ok {
		return nil, transport.ErrPeerNotFound
	}
	return p, nil
}

func (h *fakeHandle) InitializePeerToPeerServer(port int) error {
	h.p2pPort = port
	return nil
}

// fakeTransport lets tests raise transport callbacks by hand. Callbacks
// queued by Connect are delivered on Process like a real transport.
type fakeTransport struct {
	*fakeHandle

	idleTimeout   time.Duration
	autoReconnect bool
	tcpPort       int
	udpPort       int

	onConnected    transport.ConnectHandler
	onDisconnected transport.DisconnectHandler
	onMessage      transport.MessageHandler

	mode        transport.Mode
	initialized bool
	connected   bool
	connectErr  error
	initErr     error
	pending     []func()
	processed   int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{fakeHandle: newFakeHandle("", 0)}
}

// useFake registers f under a name unique to the test
func useFake(t *testing.T, f *fakeTransport) transport.Type {
	typ := transport.Type(fmt.Sprintf("fake-%s", t.Name()))
	transport.Register(typ, func(transport.Options) (transport.Transport, error) { return f, nil })
	t.Cleanup(func() { transport.Unregister(typ) })
	return typ
}

func (f *fakeTransport) SetIP(ip string)                { f.ip = ip }
func (f *fakeTransport) SetTCPPort(port int)            { f.tcpPort = port }
func (f *fakeTransport) SetUDPPort(port int)            { f.udpPort = port }
func (f *fakeTransport) SetIdleTimeout(d time.Duration) { f.idleTimeout = d }
func (f *fakeTransport) SetAutoReconnect(enabled bool)  { f.autoReconnect = enabled }

func (f *fakeTransport) Configure(onConnected transport.ConnectHandler, onDisconnected transport.DisconnectHandler, onMessage transport.MessageHandler) {
	f.onConnected = onConnected
	f.onDisconnected = onDisconnected
	f.onMessage = onMessage
}

func (f *fakeTransport) Initialize(mode transport.Mode) error {
	if f.initErr != nil {
		return f.initErr
	}
	f.mode = mode
	f.initialized = true
	f.closed = false
	return nil
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	f.pending = append(f.pending, func() { f.onConnected(f) })
	return nil
}

func (f *fakeTransport) IsConnected() bool {
	if f.closed {
		return false
	}
	if f.mode == transport.ModeServer {
		return f.initialized
	}
	return f.connected
}

func (f *fakeTransport) Process() {
	f.processed++
	pending := f.pending
	f.pending = nil
	for _, fn := range pending {
		fn()
	}
}

func (f *fakeTransport) Statistics() transport.Stats { return transport.Stats{} }

// connect raises the connect callback for h
func (f *fakeTransport) connect(h transport.Client) { f.onConnected(h) }

// disconnect raises the disconnect callback for h
func (f *fakeTransport) disconnect(h transport.Client) { f.onDisconnected(h) }

// deliver raises the message callback for data from h
func (f *fakeTransport) deliver(h transport.Client, data []byte) { f.onMessage(h, data) }

// dropLink simulates a client transport losing the server
func (f *fakeTransport) dropLink() {
	f.connected = false
	f.onDisconnected(f)
}

// testSession is a minimal relay session
type testSession struct {
	relay, p2p, lobby, master bool
	instanceID                int32
	players                   []*Player
	nextPort                  int
	unregistered              []int32
	registerErr               error
}

func (s *testSession) RelayMode() bool              { return s.relay }
func (s *testSession) PeerToPeerEnabled() bool      { return s.p2p }
func (s *testSession) LobbyModeEnabled() bool       { return s.lobby }
func (s *testSession) IsRelayMaster() bool          { return s.master }
func (s *testSession) SessionInstanceID() int32     { return s.instanceID }
func (s *testSession) ServerMode() types.ServerMode { return types.ServerModeRelay }

func (s *testSession) RegisterPlayer(connectionID int32, ip string, port int) (*Player, error) {
	if s.registerErr != nil {
		return nil, s.registerErr
	}
	p := &Player{
		ID:           uint16(len(s.players) + 1),
		Name:         fmt.Sprintf("Player %d", len(s.players)+1),
		ConnectionID: connectionID,
		IP:           ip,
		Port:         port,
		IsMaster:     len(s.players) == 0,
	}
	s.players = append(s.players, p)
	return p, nil
}

func (s *testSession) UnregisterPlayer(connectionID int32) {
	s.unregistered = append(s.unregistered, connectionID)
}

func (s *testSession) AvailablePeers(player *Player) []*Player {
	var out []*Player
	for _, p := range s.players {
		if p != player {
			out = append(out, p)
		}
	}
	return out
}

func (s *testSession) AllocatePeerToPeerPort(player *Player) (int, error) {
	port := 27000 + s.nextPort
	s.nextPort++
	player.PeerToPeerPort = port
	player.PeerAvailable = true
	return port, nil
}
