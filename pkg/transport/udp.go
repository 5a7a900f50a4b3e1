package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"objectnet/objectnet-go/pkg/internal/logger"
	"objectnet/objectnet-go/pkg/types"
)

// Datagram kinds, carried in the first byte of every UDP datagram
const (
	udpHello     byte = 0x00
	udpHelloAck  byte = 0x01
	udpData      byte = 0x02
	udpBye       byte = 0x03
	udpKeepalive byte = 0x04
)

const (
	udpMaxDatagram    = 65507
	udpHelloInterval  = 250 * time.Millisecond
	udpReadBufferSize = 65535
)

var ErrDatagramTooLarge = errors.New("message exceeds UDP datagram size")

// UDPTransport carries messages as single datagrams. Both delivery modes are
// best effort; callers needing guaranteed delivery should pick TCP or QUIC.
// An endpoint is connected after a hello/ack exchange and disconnected after
// a bye or after staying silent for longer than the idle timeout.
type UDPTransport struct {
	settings
	*dispatcher
	*peerTable

	opts  Options
	log   logger.Logger
	stats counters

	mu          sync.RWMutex
	mode        Mode
	initialized bool
	sock        *net.UDPConn
	p2pSocks    []*net.UDPConn
	remotes     map[string]*udpEndpoint
	server      *udpEndpoint
	acks        chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// udpEndpoint is one remote address talking to this transport
type udpEndpoint struct {
	noPeers

	owner    *UDPTransport
	sock     *net.UDPConn
	addr     *net.UDPAddr
	lastSeen atomic.Int64
	lastSent atomic.Int64
	closed   atomic.Bool
}

// NewUDPTransport creates a new UDP transport
func NewUDPTransport(opts Options) *UDPTransport {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &UDPTransport{
		dispatcher: newDispatcher(),
		peerTable:  newPeerTable(),
		opts:       opts,
		log:        opts.Logger.WithField("transport", TypeUDP),
		remotes:    make(map[string]*udpEndpoint),
		acks:       make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Initialize binds the server socket, or an ephemeral local socket in
// client mode
func (t *UDPTransport) Initialize(mode Mode) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	bind := t.udpAddress()
	if mode == ModeClient {
		bind = ":0"
	}
	addr, err := net.ResolveUDPAddr("udp", bind)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address %s: %w", bind, err)
	}
	sock, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", bind, err)
	}
	if mode == ModeServer {
		if local, ok := sock.LocalAddr().(*net.UDPAddr); ok {
			t.udpPort = local.Port
		}
	}

	t.mode = mode
	t.sock = sock
	t.initialized = true

	t.wg.Add(1)
	go t.readLoop(sock)

	t.log.Info("Bound %s socket on %s", mode, sock.LocalAddr())
	return nil
}

// InitializePeerToPeerServer binds an extra socket on port; datagrams it
// receives are handled exactly like those on the main socket
func (t *UDPTransport) InitializePeerToPeerServer(port int) error {
	if err := t.peerTable.InitializePeerToPeerServer(port); err != nil {
		return err
	}
	if t.closed.Load() {
		return ErrTransportClosed
	}

	addr := &net.UDPAddr{IP: net.ParseIP(t.ip), Port: port}
	sock, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind peer-to-peer socket on %d: %w", port, err)
	}

	t.mu.Lock()
	t.p2pSocks = append(t.p2pSocks, sock)
	t.mu.Unlock()

	t.wg.Add(1)
	go t.readLoop(sock)
	return nil
}

// Connect performs the hello/ack exchange with the configured server
func (t *UDPTransport) Connect(ctx context.Context) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}

	t.mu.RLock()
	mode, initialized, sock := t.mode, t.initialized, t.sock
	t.mu.RUnlock()
	if !initialized {
		return ErrNotInitialized
	}
	if mode != ModeClient {
		return ErrWrongMode
	}

	addr, err := net.ResolveUDPAddr("udp", t.udpAddress())
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address %s: %w", t.udpAddress(), err)
	}

	server := &udpEndpoint{owner: t, sock: sock, addr: addr}
	t.mu.Lock()
	t.server = server
	t.mu.Unlock()

	// Drop any stale ack from an earlier attempt
	select {
	case <-t.acks:
	default:
	}

	ticker := time.NewTicker(udpHelloInterval)
	defer ticker.Stop()

	for {
		if err := server.write(udpHello, nil); err != nil {
			return err
		}
		select {
		case <-t.acks:
			server.touch()
			t.stats.connects.Add(1)
			t.log.Info("Connected to %s", addr)
			t.dispatcher.connected(t)
			return nil
		case <-ctx.Done():
			t.mu.Lock()
			if t.server == server {
				t.server = nil
			}
			t.mu.Unlock()
			return fmt.Errorf("failed to connect to %s: %w", addr, ctx.Err())
		case <-t.ctx.Done():
			return ErrTransportClosed
		case <-ticker.C:
		}
	}
}

// readLoop receives datagrams from sock until it is closed
func (t *UDPTransport) readLoop(sock *net.UDPConn) {
	defer t.wg.Done()

	buffer := make([]byte, udpReadBufferSize)
	for {
		n, addr, err := sock.ReadFromUDP(buffer)
		if err != nil {
			if t.closed.Load() {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			t.stats.receiveErrors.Add(1)
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		if n == 0 {
			t.stats.receiveErrors.Add(1)
			continue
		}

		datagram := make([]byte, n)
		copy(datagram, buffer[:n])
		t.handleDatagram(sock, addr, datagram)
	}
}

func (t *UDPTransport) handleDatagram(sock *net.UDPConn, addr *net.UDPAddr, datagram []byte) {
	kind, body := datagram[0], datagram[1:]

	t.mu.RLock()
	fromMain := t.mode == ModeClient && sock == t.sock
	t.mu.RUnlock()

	// Peer-to-peer sockets accept endpoints in either mode
	if fromMain {
		t.handleFromServer(addr, kind, body)
		return
	}

	key := addr.String()
	t.mu.RLock()
	remote := t.remotes[key]
	t.mu.RUnlock()

	switch kind {
	case udpHello:
		if remote == nil {
			remote = t.admit(sock, addr, key)
		}
		remote.touch()
		remote.write(udpHelloAck, nil)
	case udpData:
		if remote == nil {
			t.stats.receiveErrors.Add(1)
			return
		}
		remote.touch()
		t.stats.received(len(body))
		t.dispatcher.message(remote, body)
	case udpKeepalive:
		if remote != nil {
			remote.touch()
		}
	case udpBye:
		if remote != nil {
			t.dropRemote(remote)
		}
	default:
		t.stats.receiveErrors.Add(1)
	}
}

// admit publishes a new endpoint for addr. The endpoint is touched first so
// the idle sweep never sees it unseen.
func (t *UDPTransport) admit(sock *net.UDPConn, addr *net.UDPAddr, key string) *udpEndpoint {
	remote := &udpEndpoint{owner: t, sock: sock, addr: addr}
	remote.touch()

	t.mu.Lock()
	if existing, ok := t.remotes[key]; ok {
		t.mu.Unlock()
		return existing
	}
	t.remotes[key] = remote
	t.mu.Unlock()

	t.stats.connects.Add(1)
	t.log.Debug("New endpoint %s", addr)
	t.dispatcher.connected(remote)
	return remote
}

func (t *UDPTransport) handleFromServer(addr *net.UDPAddr, kind byte, body []byte) {
	t.mu.RLock()
	server := t.server
	t.mu.RUnlock()

	if server == nil || server.addr.String() != addr.String() {
		t.stats.receiveErrors.Add(1)
		return
	}

	switch kind {
	case udpHelloAck:
		select {
		case t.acks <- struct{}{}:
		default:
		}
	case udpData:
		server.touch()
		t.stats.received(len(body))
		t.dispatcher.message(t, body)
	case udpKeepalive:
		server.touch()
	case udpBye:
		t.dropServer(server)
	}
}

func (t *UDPTransport) dropRemote(remote *udpEndpoint) {
	if !remote.closed.CompareAndSwap(false, true) {
		return
	}
	t.mu.Lock()
	delete(t.remotes, remote.addr.String())
	t.mu.Unlock()

	t.stats.disconnects.Add(1)
	t.dispatcher.disconnected(remote)
}

func (t *UDPTransport) dropServer(server *udpEndpoint) {
	if !server.closed.CompareAndSwap(false, true) {
		return
	}
	t.mu.Lock()
	if t.server == server {
		t.server = nil
	}
	t.mu.Unlock()

	t.stats.disconnects.Add(1)
	t.dispatcher.disconnected(t)

	if t.autoReconnect && !t.closed.Load() {
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			if err := t.Connect(t.ctx); err != nil {
				t.log.Debug("Reconnect failed: %v", err)
			}
		}()
	}
}

// Send writes data to the server (client mode) or to every endpoint
// (server mode)
func (t *UDPTransport) Send(data []byte, mode types.DeliveryMode) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}

	t.mu.RLock()
	if t.mode == ModeClient {
		server := t.server
		t.mu.RUnlock()
		if server == nil || server.closed.Load() {
			return types.ErrNotConnected
		}
		return server.Send(data, mode)
	}
	targets := make([]*udpEndpoint, 0, len(t.remotes))
	for _, r := range t.remotes {
		targets = append(targets, r)
	}
	t.mu.RUnlock()

	var firstErr error
	for _, r := range targets {
		if err := r.Send(data, mode); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// IsConnected reports whether the client completed its handshake or the
// server socket is bound
func (t *UDPTransport) IsConnected() bool {
	if t.closed.Load() {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.mode == ModeClient {
		return t.server != nil && !t.server.closed.Load() && t.server.lastSeen.Load() > 0
	}
	return t.sock != nil
}

// RemoteIP returns the configured address
func (t *UDPTransport) RemoteIP() string { return t.ip }

// RemotePort returns the configured UDP port
func (t *UDPTransport) RemotePort() int { return t.udpPort }

// Process sends keepalives, expires silent endpoints and delivers queued
// notifications
func (t *UDPTransport) Process() {
	if t.idleTimeout > 0 && !t.closed.Load() {
		t.sweep(time.Now())
	}
	t.dispatcher.dispatch()
}

func (t *UDPTransport) sweep(now time.Time) {
	keepalive := t.idleTimeout / 3

	t.mu.RLock()
	endpoints := make([]*udpEndpoint, 0, len(t.remotes)+1)
	for _, r := range t.remotes {
		endpoints = append(endpoints, r)
	}
	server := t.server
	if server != nil && server.lastSeen.Load() > 0 {
		endpoints = append(endpoints, server)
	}
	t.mu.RUnlock()

	for _, ep := range endpoints {
		if now.Sub(time.Unix(0, ep.lastSeen.Load())) > t.idleTimeout {
			t.log.Debug("Endpoint %s timed out", ep.addr)
			if ep == server {
				t.dropServer(ep)
			} else {
				t.dropRemote(ep)
			}
			continue
		}
		if now.Sub(time.Unix(0, ep.lastSent.Load())) > keepalive {
			ep.write(udpKeepalive, nil)
		}
	}
}

// Statistics returns transport-level statistics
func (t *UDPTransport) Statistics() Stats {
	return t.stats.snapshot(t.pending())
}

// Close says goodbye to every endpoint and closes the sockets
func (t *UDPTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	t.cancel()

	t.mu.Lock()
	endpoints := make([]*udpEndpoint, 0, len(t.remotes)+1)
	for _, r := range t.remotes {
		endpoints = append(endpoints, r)
	}
	if t.server != nil {
		endpoints = append(endpoints, t.server)
	}
	socks := append([]*net.UDPConn{t.sock}, t.p2pSocks...)
	t.mu.Unlock()

	for _, ep := range endpoints {
		ep.write(udpBye, nil)
	}
	for _, s := range socks {
		if s != nil {
			s.Close()
		}
	}

	t.wg.Wait()
	t.log.Debug("Closed")
	return nil
}

// Send writes one data datagram to the endpoint
func (e *udpEndpoint) Send(data []byte, mode types.DeliveryMode) error {
	if e.closed.Load() {
		return types.ErrNotConnected
	}
	if len(data)+1 > udpMaxDatagram {
		e.owner.stats.sendErrors.Add(1)
		return fmt.Errorf("%w: %d bytes", ErrDatagramTooLarge, len(data))
	}
	if err := e.write(udpData, data); err != nil {
		return err
	}
	e.owner.stats.sent(len(data))
	return nil
}

func (e *udpEndpoint) write(kind byte, body []byte) error {
	datagram := make([]byte, 1+len(body))
	datagram[0] = kind
	copy(datagram[1:], body)

	if _, err := e.sock.WriteToUDP(datagram, e.addr); err != nil {
		e.owner.stats.sendErrors.Add(1)
		return fmt.Errorf("write to %s: %w", e.addr, err)
	}
	e.lastSent.Store(time.Now().UnixNano())
	return nil
}

func (e *udpEndpoint) touch() {
	e.lastSeen.Store(time.Now().UnixNano())
}

// IsConnected reports whether the endpoint is still tracked
func (e *udpEndpoint) IsConnected() bool { return !e.closed.Load() }

// RemoteIP returns the endpoint address
func (e *udpEndpoint) RemoteIP() string { return e.addr.IP.String() }

// RemotePort returns the endpoint port
func (e *udpEndpoint) RemotePort() int { return e.addr.Port }

// Close sends a bye and forgets the endpoint
func (e *udpEndpoint) Close() error {
	if e.closed.Load() {
		return nil
	}
	e.write(udpBye, nil)
	e.owner.dropRemote(e)
	return nil
}
