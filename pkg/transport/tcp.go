package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/proxy"

	"objectnet/objectnet-go/pkg/internal/logger"
	"objectnet/objectnet-go/pkg/types"
)

const (
	tcpLengthPrefixSize = 4
	tcpWriteTimeout     = 10 * time.Second
	tcpReconnectDelay   = time.Second
)

var (
	ErrTransportClosed = errors.New("transport is closed")
	ErrWrongMode       = errors.New("operation not valid in this transport mode")
	ErrNotInitialized  = errors.New("transport not initialized")
)

// TCPTransport carries length-prefixed messages over TCP. Every message is
// delivered reliably regardless of the requested mode.
type TCPTransport struct {
	settings
	*dispatcher
	*peerTable

	opts  Options
	log   logger.Logger
	stats counters

	mu          sync.RWMutex
	mode        Mode
	initialized bool
	listener    net.Listener
	conns       map[*tcpConn]struct{}
	conn        *tcpConn
	dialer      proxy.Dialer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// tcpConn is one accepted or dialed connection
type tcpConn struct {
	noPeers

	owner   *TCPTransport
	conn    net.Conn
	ip      string
	port    int
	writeMu sync.Mutex
	closed  atomic.Bool
}

// NewTCPTransport creates a new TCP transport
func NewTCPTransport(opts Options) *TCPTransport {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &TCPTransport{
		dispatcher: newDispatcher(),
		peerTable:  newPeerTable(),
		opts:       opts,
		log:        opts.Logger.WithField("transport", TypeTCP),
		conns:      make(map[*tcpConn]struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Initialize starts listening in server mode or prepares the dialer in
// client mode
func (t *TCPTransport) Initialize(mode Mode) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.mode = mode
	if mode == ModeClient {
		dialer, err := t.newDialer()
		if err != nil {
			return err
		}
		t.dialer = dialer
		t.initialized = true
		return nil
	}

	listener, err := net.Listen("tcp", t.tcpAddress())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", t.tcpAddress(), err)
	}
	t.listener = listener
	if addr, ok := listener.Addr().(*net.TCPAddr); ok {
		t.tcpPort = addr.Port
	}
	t.initialized = true

	t.wg.Add(1)
	go t.acceptLoop(listener)

	t.log.Info("Listening on %s", listener.Addr())
	return nil
}

func (t *TCPTransport) newDialer() (proxy.Dialer, error) {
	direct := &net.Dialer{Timeout: 10 * time.Second}
	if t.opts.ProxyAddress == "" {
		return direct, nil
	}
	dialer, err := proxy.SOCKS5("tcp", t.opts.ProxyAddress, nil, direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer for %s: %w", t.opts.ProxyAddress, err)
	}
	return dialer, nil
}

// acceptLoop accepts incoming connections
func (t *TCPTransport) acceptLoop(listener net.Listener) {
	defer t.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if t.closed.Load() {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			t.log.Warn("Accept error: %v", err)
			return
		}

		ip, port := splitAddr(conn.RemoteAddr())
		c := &tcpConn{owner: t, conn: conn, ip: ip, port: port}
		if !t.track(c) {
			return
		}

		t.stats.connects.Add(1)
		t.log.Debug("Accepted connection from %s", conn.RemoteAddr())
		t.dispatcher.connected(c)

		go t.readLoop(c, c)
	}
}

// track adds an accepted connection and reserves its reader in the wait
// group. A connection accepted while Close runs is closed instead.
func (t *TCPTransport) track(c *tcpConn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed.Load() {
		c.closeConn()
		return false
	}
	t.conns[c] = struct{}{}
	t.wg.Add(1)
	return true
}

// Connect dials the configured address
func (t *TCPTransport) Connect(ctx context.Context) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}

	t.mu.RLock()
	mode, initialized, dialer := t.mode, t.initialized, t.dialer
	t.mu.RUnlock()

	if !initialized {
		return ErrNotInitialized
	}
	if mode != ModeClient {
		return ErrWrongMode
	}

	conn, err := t.dial(ctx, dialer)
	if err != nil {
		return err
	}
	if !t.attach(conn) {
		return ErrTransportClosed
	}
	return nil
}

func (t *TCPTransport) dial(ctx context.Context, dialer proxy.Dialer) (net.Conn, error) {
	address := t.tcpAddress()

	var conn net.Conn
	var err error
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		conn, err = cd.DialContext(ctx, "tcp", address)
	} else {
		conn, err = dialer.Dial("tcp", address)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	return conn, nil
}

// attach installs a dialed connection as the client connection
func (t *TCPTransport) attach(conn net.Conn) bool {
	ip, port := splitAddr(conn.RemoteAddr())
	c := &tcpConn{owner: t, conn: conn, ip: ip, port: port}

	t.mu.Lock()
	if t.closed.Load() {
		t.mu.Unlock()
		c.closeConn()
		return false
	}
	old := t.conn
	t.conn = c
	t.wg.Add(1)
	t.mu.Unlock()

	if old != nil {
		old.closeConn()
	}

	t.stats.connects.Add(1)
	t.log.Info("Connected to %s", conn.RemoteAddr())
	t.dispatcher.connected(t)

	go t.readLoop(c, t)
	return true
}

// readLoop reads frames from c and queues them for handle
func (t *TCPTransport) readLoop(c *tcpConn, handle Client) {
	defer t.wg.Done()
	defer t.drop(c, handle)

	header := make([]byte, tcpLengthPrefixSize)
	for {
		if t.idleTimeout > 0 {
			c.conn.SetReadDeadline(time.Now().Add(t.idleTimeout))
		}

		if _, err := io.ReadFull(c.conn, header); err != nil {
			if !c.closed.Load() && !errors.Is(err, io.EOF) {
				t.stats.receiveErrors.Add(1)
				t.log.Debug("Read error from %s: %v", c.conn.RemoteAddr(), err)
			}
			return
		}

		size := int(binary.BigEndian.Uint32(header))
		if size > t.opts.MaxMessageSize {
			t.stats.receiveErrors.Add(1)
			t.log.Warn("Dropping %s: %v", c.conn.RemoteAddr(), errMessageTooLarge(size, t.opts.MaxMessageSize))
			return
		}

		data := make([]byte, size)
		if _, err := io.ReadFull(c.conn, data); err != nil {
			t.stats.receiveErrors.Add(1)
			return
		}

		t.stats.received(size)
		t.dispatcher.message(handle, data)
	}
}

// drop tears down c and queues the disconnect notification
func (t *TCPTransport) drop(c *tcpConn, handle Client) {
	c.closeConn()

	t.mu.Lock()
	delete(t.conns, c)
	wasCurrent := t.conn == c
	if wasCurrent {
		t.conn = nil
	}
	mode := t.mode
	t.mu.Unlock()

	// A connection replaced by attach is not a disconnect of the handle
	if mode == ModeClient && !wasCurrent {
		return
	}

	t.stats.disconnects.Add(1)
	t.dispatcher.disconnected(handle)

	if mode == ModeClient && t.autoReconnect && !t.closed.Load() {
		t.wg.Add(1)
		go t.reconnectLoop()
	}
}

// reconnectLoop redials until a connection is made or the transport closes
func (t *TCPTransport) reconnectLoop() {
	defer t.wg.Done()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-time.After(tcpReconnectDelay):
		}

		t.mu.RLock()
		dialer, current := t.dialer, t.conn
		t.mu.RUnlock()
		if current != nil {
			return
		}

		conn, err := t.dial(t.ctx, dialer)
		if err != nil {
			t.log.Debug("Reconnect failed: %v", err)
			continue
		}
		t.attach(conn)
		return
	}
}

// Send writes data to the server (client mode) or to every connection
// (server mode)
func (t *TCPTransport) Send(data []byte, mode types.DeliveryMode) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}

	t.mu.RLock()
	if t.mode == ModeClient {
		c := t.conn
		t.mu.RUnlock()
		if c == nil {
			return types.ErrNotConnected
		}
		return c.Send(data, mode)
	}
	targets := make([]*tcpConn, 0, len(t.conns))
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

// IsConnected reports whether the client is connected or the server listening
func (t *TCPTransport) IsConnected() bool {
	if t.closed.Load() {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.mode == ModeClient {
		return t.conn != nil && !t.conn.closed.Load()
	}
	return t.listener != nil
}

// RemoteIP returns the configured address
func (t *TCPTransport) RemoteIP() string { return t.ip }

// RemotePort returns the configured TCP port
func (t *TCPTransport) RemotePort() int { return t.tcpPort }

// Process delivers queued notifications
func (t *TCPTransport) Process() {
	t.dispatcher.dispatch()
}

// Statistics returns transport-level statistics
func (t *TCPTransport) Statistics() Stats {
	return t.stats.snapshot(t.pending())
}

// Close closes the listener and every connection
func (t *TCPTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	t.cancel()

	t.mu.Lock()
	listener := t.listener
	t.listener = nil
	conns := make([]*tcpConn, 0, len(t.conns)+1)
	for c := range t.conns {
		conns = append(conns, c)
	}
	if t.conn != nil {
		conns = append(conns, t.conn)
	}
	t.mu.Unlock()

	if listener != nil {
		listener.Close()
	}
	for _, c := range conns {
		c.closeConn()
	}

	t.wg.Wait()
	t.log.Debug("Closed")
	return nil
}

// Send writes one length-prefixed frame
func (c *tcpConn) Send(data []byte, mode types.DeliveryMode) error {
	if c.closed.Load() {
		return types.ErrNotConnected
	}

	frame := make([]byte, tcpLengthPrefixSize+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[tcpLengthPrefixSize:], data)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(tcpWriteTimeout))
	if _, err := c.conn.Write(frame); err != nil {
		c.owner.stats.sendErrors.Add(1)
		c.closeConn()
		return fmt.Errorf("write to %s: %w", c.conn.RemoteAddr(), err)
	}
	c.owner.stats.sent(len(data))
	return nil
}

// IsConnected reports whether the connection is open
func (c *tcpConn) IsConnected() bool { return !c.closed.Load() }

// RemoteIP returns the remote address
func (c *tcpConn) RemoteIP() string { return c.ip }

// RemotePort returns the remote port
func (c *tcpConn) RemotePort() int { return c.port }

// Close closes the connection; the disconnect is reported through the owner
func (c *tcpConn) Close() error {
	c.closeConn()
	return nil
}

func (c *tcpConn) closeConn() {
	if c.closed.CompareAndSwap(false, true) {
		c.conn.Close()
	}
}
