package channel

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"objectnet/objectnet-go/pkg/internal/logger"
	"objectnet/objectnet-go/pkg/transport"
	"objectnet/objectnet-go/pkg/types"
	"objectnet/objectnet-go/pkg/wire"
)

var (
	ErrWrongDirection = errors.New("operation not valid for this channel direction")
	ErrNilClient      = errors.New("client or its transport handle is nil")
)

// Channel owns one transport and the registry of clients connected through
// it. The public API and all callbacks are meant to be driven from one
// goroutine calling Process; Stop may be called from any goroutine.
type Channel struct {
	id        string
	cfg       Config
	codec     wire.Codec
	session   Session
	callbacks Callbacks
	registry  *registry
	stats     *Statistics
	logger    logger.Logger

	// State
	mu               sync.RWMutex
	transport        transport.Transport
	started          bool
	terminated       bool
	connectionID     int32
	nextConnectionID int32
	local            *Client

	wasConnected atomic.Bool
	welcome      atomic.Pointer[wire.ClientConnected]
}

// New creates a new channel. The transport is created by Start.
func New(cfg Config) (*Channel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, types.ConfigurationError("new channel", err)
	}

	log := logger.OrNoOp(cfg.Logger).WithField("channel", cfg.ID)
	session := cfg.Session
	if session == nil {
		session = NewStandaloneSession()
	}

	c := &Channel{
		id:  cfg.ID,
		cfg: cfg,
		codec: wire.Codec{
			Encryption: cfg.Encryption,
			Encrypt:    cfg.Encrypt,
			Decrypt:    cfg.Decrypt,
		},
		session:   session,
		callbacks: cfg.Callbacks,
		registry:  newRegistry(),
		stats:     NewStatistics(),
		logger:    log,
	}
	c.local = newClient(c, nil, 0)
	return c, nil
}

// ID returns the channel ID
func (c *Channel) ID() string {
	return c.id
}

// Direction returns whether the channel is a server or a client
func (c *Channel) Direction() Direction {
	return c.cfg.Direction
}

// Session returns the session the channel bootstraps clients with
func (c *Channel) Session() Session {
	return c.session
}

// Start creates, configures and initializes the transport. A server starts
// listening; a client is ready for Connect.
func (c *Channel) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return types.ConfigurationError("start", types.ErrAlreadyStarted)
	}

	opts := c.cfg.TransportOptions
	if opts.Logger == nil {
		opts.Logger = c.logger
	}
	tr, err := transport.New(c.cfg.TransportType, opts)
	if err != nil {
		return types.ConfigurationError("start", err)
	}

	c.applyAddress(tr)
	tr.SetIdleTimeout(c.cfg.IdleTimeout)
	tr.SetAutoReconnect(c.cfg.AutoReconnect)

	mode := transport.ModeClient
	if c.cfg.Direction == DirectionServer {
		mode = transport.ModeServer
		tr.Configure(c.serverConnected, c.serverDisconnected, c.messageReceived)
	} else {
		tr.Configure(c.clientConnected, c.clientDisconnected, c.messageReceived)
	}

	if err := tr.Initialize(mode); err != nil {
		tr.Close()
		return types.ConnectionError("start", err)
	}

	c.transport = tr
	c.started = true
	c.terminated = false
	c.nextConnectionID = 0
	c.local = newClient(c, tr, c.connectionID)
	if mode == transport.ModeServer && tr.IsConnected() {
		c.wasConnected.Store(true)
	}

	c.logger.Info("Channel %s started (%s, %s)", c.id, c.cfg.Direction, c.cfg.TransportType)
	return nil
}

func (c *Channel) applyAddress(tr transport.Transport) {
	tr.SetIP(c.cfg.Address.Host)
	tr.SetTCPPort(c.cfg.Address.TCPPort)
	tr.SetUDPPort(c.cfg.Address.UDPPort)
}

// Stop closes the transport and forgets every client. It is idempotent and
// safe to call while Process runs on another goroutine.
func (c *Channel) Stop() error {
	c.mu.Lock()
	if c.terminated || (!c.started && c.transport == nil) {
		c.terminated = true
		c.mu.Unlock()
		return nil
	}
	c.terminated = true
	c.started = false
	tr := c.transport
	c.transport = nil
	c.mu.Unlock()

	c.logger.Info("Channel %s stopping", c.id)

	var err error
	if tr != nil {
		if err = tr.Close(); err != nil {
			c.logger.Error("Error closing transport: %v", err)
		}
	}
	c.registry.clear()
	c.stats.SetActiveClients(0)

	c.logger.Info("Channel %s stopped", c.id)
	return err
}

// Close is an alias for Stop
func (c *Channel) Close() error {
	return c.Stop()
}

// Process pumps the transport, delivering its queued callbacks on the
// calling goroutine
func (c *Channel) Process() {
	tr := c.currentTransport()
	if tr == nil {
		return
	}
	tr.Process()
}

func (c *Channel) currentTransport() transport.Transport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.transport
}

// Transport returns the bound transport, or nil before Start and after Stop
func (c *Channel) Transport() transport.Transport {
	return c.currentTransport()
}

// Connect dials the configured server. Failures are reported through
// OnError and OnConnectionFailed and yield false.
func (c *Channel) Connect() bool {
	tr := c.currentTransport()
	if tr == nil {
		c.connectFailed(types.ConfigurationError("connect", types.ErrNotStarted))
		return false
	}
	if c.cfg.Direction != DirectionClient {
		c.connectFailed(types.ConfigurationError("connect", ErrWrongDirection))
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.connectTimeout())
	defer cancel()

	if err := tr.Connect(ctx); err != nil {
		c.connectFailed(types.ConnectionError("connect", fmt.Errorf("%w: %w", types.ErrConnectionFailed, err)))
		return false
	}

	c.wasConnected.Store(true)
	c.logger.Info("Channel %s connected to %s", c.id, c.cfg.Address.Host)
	return true
}

// ConnectTo points the channel at a new address and connects
func (c *Channel) ConnectTo(host string, tcpPort, udpPort int, timeout time.Duration) bool {
	c.mu.Lock()
	c.cfg.Address = Address{Host: host, TCPPort: tcpPort, UDPPort: udpPort}
	if timeout > 0 {
		c.cfg.ConnectTimeout = timeout
	}
	if c.transport != nil {
		c.applyAddress(c.transport)
	}
	c.mu.Unlock()

	return c.Connect()
}

func (c *Channel) connectTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.ConnectTimeout
}

func (c *Channel) connectFailed(err error) {
	c.stats.ConnectFailure()
	c.reportError(err)
	if cb := c.callbacks.OnConnectionFailed; cb != nil {
		c.guard("connection failed callback", func() { cb(err) })
	}
}

// reportError hands err to the error callback
func (c *Channel) reportError(err error) {
	c.logger.Warn("Channel %s: %v", c.id, err)
	if cb := c.callbacks.OnError; cb != nil {
		c.guard("error callback", func() { cb(err) })
	}
}

// guard runs fn, discarding any panic it raises
func (c *Channel) guard(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Debug("Channel %s: %s panicked: %v", c.id, name, r)
		}
	}()
	fn()
}

// Send frames data and writes it through the transport: to the server on a
// client channel, to every client on a server channel
func (c *Channel) Send(data []byte, mode types.DeliveryMode) error {
	return c.SendTo(data, mode, nil)
}

// SendTo frames data and writes it to handle (nil = the transport itself).
// The envelope carries the registered connection id of handle, or the
// channel's own id when handle is the transport.
func (c *Channel) SendTo(data []byte, mode types.DeliveryMode, handle transport.Client) error {
	tr := c.currentTransport()
	if tr == nil {
		return types.ConfigurationError("send", types.ErrNotConnected)
	}
	if handle == nil {
		handle = tr
	}

	var target int32
	if handle != transport.Client(tr) {
		if entry := c.registry.get(handle); entry != nil {
			target = entry.ConnectionID()
		}
	}

	frame, err := c.codec.Compose(data, target, c.ConnectionID())
	if err != nil {
		return err
	}
	c.dumpFrame("tx", frame)
	return c.write(handle, frame, mode)
}

// Transmit writes data through the transport without framing
func (c *Channel) Transmit(data []byte, mode types.DeliveryMode) error {
	return c.TransmitTo(data, mode, nil)
}

// TransmitTo writes data to handle without framing (nil = the transport)
func (c *Channel) TransmitTo(data []byte, mode types.DeliveryMode, handle transport.Client) error {
	tr := c.currentTransport()
	if tr == nil {
		return types.ConfigurationError("transmit", types.ErrNotConnected)
	}
	if handle == nil {
		handle = tr
	}
	return c.write(handle, data, mode)
}

func (c *Channel) write(handle transport.Client, frame []byte, mode types.DeliveryMode) error {
	if err := handle.Send(frame, mode); err != nil {
		return types.ConnectionError("send", err)
	}
	c.stats.FrameTx()
	return nil
}

func (c *Channel) dumpFrame(dir string, frame []byte) {
	if logger.FrameDebugEnabled() {
		c.logger.Debug("Channel %s %s %d bytes\n%s", c.id, dir, len(frame), hex.Dump(frame))
	}
}

// RegisterClient adds client to the registry. A client registered under a
// handle that already has an entry replaces it.
func (c *Channel) RegisterClient(client *Client) error {
	if client == nil || client.handle == nil {
		return types.ConfigurationError("register client", ErrNilClient)
	}
	c.registry.add(client)
	c.stats.SetActiveClients(uint64(c.registry.count()))
	return nil
}

// UnregisterClient removes client; unknown clients are ignored
func (c *Channel) UnregisterClient(client *Client) {
	if client == nil {
		return
	}
	c.registry.remove(client.handle)
	c.stats.SetActiveClients(uint64(c.registry.count()))
}

// GetConnectedClient returns the client with connection id, or nil
func (c *Channel) GetConnectedClient(id int32) *Client {
	return c.registry.byConnectionID(id)
}

// Clients returns the registered clients ordered by connection id
func (c *Channel) Clients() []*Client {
	return c.registry.all()
}

// ClientCount returns the number of registered clients
func (c *Channel) ClientCount() int {
	return c.registry.count()
}

// AddRelayPeer registers a player reached through the relay server. Sends
// to the returned client travel over the channel's transport with the
// peer's connection id in the envelope.
func (c *Channel) AddRelayPeer(connectionID int32, ip string, port int) (*Client, error) {
	tr := c.currentTransport()
	if tr == nil {
		return nil, types.ConfigurationError("add relay peer", types.ErrNotStarted)
	}

	peer := newClient(c, transport.NewRelayTransportClient(tr), connectionID)
	peer.ip = ip
	peer.port = port
	if err := c.RegisterClient(peer); err != nil {
		return nil, err
	}
	c.logger.Debug("Channel %s: relay peer %d at %s:%d", c.id, connectionID, ip, port)
	return peer, nil
}

// LocalClient returns the entry representing this channel. It is never nil.
func (c *Channel) LocalClient() *Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.local
}

// ConnectionID returns the channel's own connection id
func (c *Channel) ConnectionID() int32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connectionID
}

// SetConnectionID sets the channel's connection id and mirrors it on the
// local client
func (c *Channel) SetConnectionID(id int32) {
	c.mu.Lock()
	c.connectionID = id
	local := c.local
	c.mu.Unlock()
	local.SetConnectionID(id)
}

// Welcome returns the ClientConnected message received from the server, if
// any
func (c *Channel) Welcome() (wire.ClientConnected, bool) {
	msg := c.welcome.Load()
	if msg == nil {
		return wire.ClientConnected{}, false
	}
	return *msg, true
}

// IsConnected reports whether the transport is connected (client) or
// listening (server)
func (c *Channel) IsConnected() bool {
	tr := c.currentTransport()
	if tr == nil || !tr.IsConnected() {
		return false
	}
	c.wasConnected.Store(true)
	return true
}

// IsConnectionLost reports whether the channel was connected at some point
// and is not connected now
func (c *Channel) IsConnectionLost() bool {
	connected := c.IsConnected()
	return c.wasConnected.Load() && !connected
}

// State returns the current lifecycle state
func (c *Channel) State() State {
	c.mu.RLock()
	started, terminated := c.started, c.terminated
	c.mu.RUnlock()

	switch {
	case terminated:
		return StateStopped
	case !started:
		return StateIdle
	case c.IsConnected():
		return StateConnected
	case c.wasConnected.Load():
		return StateDisconnected
	default:
		return StateStarted
	}
}

// Statistics returns channel statistics
func (c *Channel) Statistics() *Statistics {
	return c.stats
}

// TransportStatistics returns statistics of the bound transport
func (c *Channel) TransportStatistics() transport.Stats {
	tr := c.currentTransport()
	if tr == nil {
		return transport.Stats{}
	}
	return tr.Statistics()
}

// String returns string representation of channel
func (c *Channel) String() string {
	return fmt.Sprintf("Channel{ID=%s, Direction=%s, State=%s, Clients=%d}",
		c.id, c.cfg.Direction, c.State(), c.registry.count())
}
