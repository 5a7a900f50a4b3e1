package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"objectnet/objectnet-go/pkg/internal/logger"
	"objectnet/objectnet-go/pkg/types"
)

var (
	ErrAddressInUse = errors.New("address already in use")
	ErrNoListener   = errors.New("no listener at address")
)

const memoryEphemeralBase = 49152

// MemoryNetwork connects memory transports inside one process. Servers are
// addressed by "host:port" using their TCP port.
type MemoryNetwork struct {
	mu        sync.Mutex
	listeners map[string]*MemoryTransport
	nextPort  int
}

// NewMemoryNetwork creates an empty network
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{
		listeners: make(map[string]*MemoryTransport),
		nextPort:  memoryEphemeralBase,
	}
}

// DefaultMemoryNetwork is used by memory transports created without a network
var DefaultMemoryNetwork = NewMemoryNetwork()

func (n *MemoryNetwork) listen(host string, port int, t *MemoryTransport) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if port == 0 {
		for {
			port = n.nextPort
			n.nextPort++
			if _, taken := n.listeners[memoryAddr(host, port)]; !taken {
				break
			}
		}
	}
	addr := memoryAddr(host, port)
	if _, taken := n.listeners[addr]; taken {
		return 0, fmt.Errorf("%w: %s", ErrAddressInUse, addr)
	}
	n.listeners[addr] = t
	return port, nil
}

func (n *MemoryNetwork) unlisten(addr string, t *MemoryTransport) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.listeners[addr] == t {
		delete(n.listeners, addr)
	}
}

func (n *MemoryNetwork) lookup(addr string) *MemoryTransport {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.listeners[addr]
}

func memoryAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// MemoryTransport is an in-process transport. Messages are copied and
// queued straight into the remote side's dispatcher.
type MemoryTransport struct {
	settings
	*dispatcher
	*peerTable

	opts    Options
	log     logger.Logger
	stats   counters
	network *MemoryNetwork

	mu          sync.RWMutex
	mode        Mode
	initialized bool
	addr        string
	conns       map[*memoryConn]struct{}
	link        *memoryLink

	closed atomic.Bool
}

// memoryLink joins one client transport to the server-side handle
type memoryLink struct {
	server     *MemoryTransport
	client     *MemoryTransport
	serverSide *memoryConn
	closed     atomic.Bool
}

// memoryConn is the server-side handle of a connected client
type memoryConn struct {
	noPeers
	link *memoryLink
}

// NewMemoryTransport creates a new in-process transport
func NewMemoryTransport(opts Options) *MemoryTransport {
	opts = opts.withDefaults()
	network := opts.Network
	if network == nil {
		network = DefaultMemoryNetwork
	}
	return &MemoryTransport{
		dispatcher: newDispatcher(),
		peerTable:  newPeerTable(),
		opts:       opts,
		log:        opts.Logger.WithField("transport", TypeMemory),
		network:    network,
		conns:      make(map[*memoryConn]struct{}),
	}
}

// Initialize registers a server with the network
func (t *MemoryTransport) Initialize(mode Mode) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.mode = mode
	if mode == ModeServer {
		port, err := t.network.listen(t.ip, t.tcpPort, t)
		if err != nil {
			return err
		}
		t.tcpPort = port
		t.addr = memoryAddr(t.ip, port)
		t.log.Info("Listening on %s", t.addr)
	}
	t.initialized = true
	return nil
}

// Connect links to the server listening at the configured address
func (t *MemoryTransport) Connect(ctx context.Context) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.RLock()
	mode, initialized := t.mode, t.initialized
	t.mu.RUnlock()
	if !initialized {
		return ErrNotInitialized
	}
	if mode != ModeClient {
		return ErrWrongMode
	}

	addr := memoryAddr(t.ip, t.tcpPort)
	server := t.network.lookup(addr)
	if server == nil || server.closed.Load() {
		return fmt.Errorf("failed to connect to %s: %w", addr, ErrNoListener)
	}

	link := &memoryLink{server: server, client: t}
	link.serverSide = &memoryConn{link: link}

	t.mu.Lock()
	old := t.link
	t.link = link
	t.mu.Unlock()
	if old != nil {
		old.close()
	}

	server.accept(link.serverSide)

	t.stats.connects.Add(1)
	t.dispatcher.connected(t)
	return nil
}

func (t *MemoryTransport) accept(c *memoryConn) {
	t.mu.Lock()
	t.conns[c] = struct{}{}
	t.mu.Unlock()

	t.stats.connects.Add(1)
	t.dispatcher.connected(c)
}

func (t *MemoryTransport) deliver(handle Client, data []byte) {
	msg := make([]byte, len(data))
	copy(msg, data)
	t.stats.received(len(msg))
	t.dispatcher.message(handle, msg)
}

// close reports the disconnect to both ends exactly once
func (l *memoryLink) close() {
	if !l.closed.CompareAndSwap(false, true) {
		return
	}

	l.server.mu.Lock()
	delete(l.server.conns, l.serverSide)
	l.server.mu.Unlock()
	l.server.stats.disconnects.Add(1)
	l.server.dispatcher.disconnected(l.serverSide)

	l.client.mu.Lock()
	if l.client.link == l {
		l.client.link = nil
	}
	l.client.mu.Unlock()
	l.client.stats.disconnects.Add(1)
	l.client.dispatcher.disconnected(l.client)
}

// Send delivers data to the server (client mode) or to every connected
// client (server mode)
func (t *MemoryTransport) Send(data []byte, mode types.DeliveryMode) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}

	t.mu.RLock()
	if t.mode == ModeClient {
		link := t.link
		t.mu.RUnlock()
		if link == nil || link.closed.Load() {
			return types.ErrNotConnected
		}
		link.server.deliver(link.serverSide, data)
		t.stats.sent(len(data))
		return nil
	}
	targets := make([]*memoryConn, 0, len(t.conns))
	for c := range t.conns {
		targets = append(targets, c)
	}
	t.mu.RUnlock()

	var firstErr error
	for _, c := range targets {
		if err := c.Send(data, mode); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// IsConnected reports whether the client is linked or the server listening
func (t *MemoryTransport) IsConnected() bool {
	if t.closed.Load() {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.mode == ModeClient {
		return t.link != nil && !t.link.closed.Load()
	}
	return t.addr != ""
}

// RemoteIP returns the configured address
func (t *MemoryTransport) RemoteIP() string { return t.ip }

// RemotePort returns the configured TCP port
func (t *MemoryTransport) RemotePort() int { return t.tcpPort }

// Process delivers queued notifications
func (t *MemoryTransport) Process() {
	t.dispatcher.dispatch()
}

// Statistics returns transport-level statistics
func (t *MemoryTransport) Statistics() Stats {
	return t.stats.snapshot(t.pending())
}

// Close unregisters the server and drops every link
func (t *MemoryTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	t.mu.Lock()
	addr := t.addr
	t.addr = ""
	links := make([]*memoryLink, 0, len(t.conns)+1)
	for c := range t.conns {
		links = append(links, c.link)
	}
	if t.link != nil {
		links = append(links, t.link)
	}
	t.mu.Unlock()

	if addr != "" {
		t.network.unlisten(addr, t)
	}
	for _, l := range links {
		l.close()
	}
	return nil
}

// Send delivers data to the linked client
func (c *memoryConn) Send(data []byte, mode types.DeliveryMode) error {
	if c.link.closed.Load() {
		return types.ErrNotConnected
	}
	c.link.client.deliver(c.link.client, data)
	c.link.server.stats.sent(len(data))
	return nil
}

// IsConnected reports whether the link is up
func (c *memoryConn) IsConnected() bool { return !c.link.closed.Load() }

// RemoteIP returns a loopback address
func (c *memoryConn) RemoteIP() string { return "127.0.0.1" }

// RemotePort returns zero; memory links have no client port
func (c *memoryConn) RemotePort() int { return 0 }

// Close drops the link
func (c *memoryConn) Close() error {
	c.link.close()
	return nil
}
