package transport

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/binary"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"

	"objectnet/objectnet-go/pkg/internal/logger"
	"objectnet/objectnet-go/pkg/types"
)

const quicALPN = "objectnet-quic"

// QUICTransport carries reliable messages on a length-prefixed unidirectional
// stream per direction and unreliable messages as QUIC datagrams.
type QUICTransport struct {
	settings
	*dispatcher
	*peerTable

	opts      Options
	log       logger.Logger
	stats     counters
	tlsConfig *tls.Config

	mu          sync.RWMutex
	mode        Mode
	initialized bool
	listener    *quic.Listener
	conns       map[*quicConn]struct{}
	conn        *quicConn

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// quicConn is one QUIC connection and its outgoing stream
type quicConn struct {
	noPeers

	owner   *QUICTransport
	conn    *quic.Conn
	send    *quic.SendStream
	ip      string
	port    int
	writeMu sync.Mutex
	closed  atomic.Bool
}

// NewQUICTransport creates a new QUIC transport. A self-signed certificate
// is generated when opts carries no TLS configuration.
func NewQUICTransport(opts Options) (*QUICTransport, error) {
	opts = opts.withDefaults()

	tlsConfig := opts.TLSConfig
	if tlsConfig == nil {
		var err error
		tlsConfig, err = generateTLSConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to generate TLS config: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &QUICTransport{
		dispatcher: newDispatcher(),
		peerTable:  newPeerTable(),
		opts:       opts,
		log:        opts.Logger.WithField("transport", TypeQUIC),
		tlsConfig:  tlsConfig,
		conns:      make(map[*quicConn]struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// generateTLSConfig generates a self-signed certificate for QUIC
func generateTLSConfig() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates:       []tls.Certificate{tlsCert},
		NextProtos:         []string{quicALPN},
		InsecureSkipVerify: true, // self-signed
	}, nil
}

func (t *QUICTransport) quicConfig() *quic.Config {
	return &quic.Config{
		EnableDatagrams: true,
		MaxIdleTimeout:  t.idleTimeout,
		KeepAlivePeriod: t.idleTimeout / 3,
	}
}

// Initialize starts listening in server mode; client mode needs no setup
func (t *QUICTransport) Initialize(mode Mode) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.mode = mode
	if mode == ModeClient {
		t.initialized = true
		return nil
	}

	listener, err := quic.ListenAddr(t.udpAddress(), t.tlsConfig, t.quicConfig())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", t.udpAddress(), err)
	}
	t.listener = listener
	_, t.udpPort = splitAddr(listener.Addr())
	t.initialized = true

	t.wg.Add(1)
	go t.acceptLoop(listener)

	t.log.Info("Listening on %s", listener.Addr())
	return nil
}

// acceptLoop accepts incoming QUIC connections
func (t *QUICTransport) acceptLoop(listener *quic.Listener) {
	defer t.wg.Done()

	for {
		conn, err := listener.Accept(t.ctx)
		if err != nil {
			if t.closed.Load() || errors.Is(err, context.Canceled) || errors.Is(err, quic.ErrServerClosed) {
				return
			}
			t.log.Warn("Accept error: %v", err)
			continue
		}

		c, err := t.open(conn)
		if err != nil {
			t.log.Debug("Dropping %s: %v", conn.RemoteAddr(), err)
			continue
		}

		t.mu.Lock()
		if t.closed.Load() {
			t.mu.Unlock()
			c.closeConn("transport closed")
			return
		}
		t.conns[c] = struct{}{}
		t.wg.Add(2)
		t.mu.Unlock()

		t.stats.connects.Add(1)
		t.log.Debug("Accepted connection from %s", conn.RemoteAddr())
		t.dispatcher.connected(c)
		t.serve(c, c)
	}
}

// open wraps conn and opens its outgoing stream
func (t *QUICTransport) open(conn *quic.Conn) (*quicConn, error) {
	send, err := conn.OpenUniStreamSync(t.ctx)
	if err != nil {
		conn.CloseWithError(0, "failed to open stream")
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	ip, port := splitAddr(conn.RemoteAddr())
	return &quicConn{owner: t, conn: conn, send: send, ip: ip, port: port}, nil
}

// serve starts the stream and datagram readers of c. The caller has added
// both to the wait group.
func (t *QUICTransport) serve(c *quicConn, handle Client) {
	go t.streamLoop(c, handle)
	go t.datagramLoop(c, handle)
}

// Connect dials the configured address
func (t *QUICTransport) Connect(ctx context.Context) error {
	if t.closed.Load() {
		return ErrTransportClosed
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

	conn, err := quic.DialAddr(ctx, t.udpAddress(), t.tlsConfig, t.quicConfig())
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", t.udpAddress(), err)
	}
	c, err := t.open(conn)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.closed.Load() {
		t.mu.Unlock()
		c.closeConn("transport closed")
		return ErrTransportClosed
	}
	old := t.conn
	t.conn = c
	t.wg.Add(2)
	t.mu.Unlock()
	if old != nil {
		old.closeConn("replaced")
	}

	t.stats.connects.Add(1)
	t.log.Info("Connected to %s", conn.RemoteAddr())
	t.dispatcher.connected(t)
	t.serve(c, t)
	return nil
}

// streamLoop reads reliable frames sent by the remote side
func (t *QUICTransport) streamLoop(c *quicConn, handle Client) {
	defer t.wg.Done()
	defer t.drop(c, handle)

	recv, err := c.conn.AcceptUniStream(t.ctx)
	if err != nil {
		return
	}

	header := make([]byte, tcpLengthPrefixSize)
	for {
		if _, err := io.ReadFull(recv, header); err != nil {
			if !c.closed.Load() && !errors.Is(err, io.EOF) {
				t.stats.receiveErrors.Add(1)
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
		if _, err := io.ReadFull(recv, data); err != nil {
			t.stats.receiveErrors.Add(1)
			return
		}
		t.stats.received(size)
		t.dispatcher.message(handle, data)
	}
}

// datagramLoop reads unreliable messages until the connection ends
func (t *QUICTransport) datagramLoop(c *quicConn, handle Client) {
	defer t.wg.Done()

	for {
		data, err := c.conn.ReceiveDatagram(t.ctx)
		if err != nil {
			return
		}
		t.stats.received(len(data))
		t.dispatcher.message(handle, data)
	}
}

// drop tears down c and queues the disconnect notification
func (t *QUICTransport) drop(c *quicConn, handle Client) {
	c.closeConn("closed")

	t.mu.Lock()
	delete(t.conns, c)
	wasCurrent := t.conn == c
	if wasCurrent {
		t.conn = nil
	}
	mode := t.mode
	t.mu.Unlock()

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
func (t *QUICTransport) reconnectLoop() {
	defer t.wg.Done()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-time.After(tcpReconnectDelay):
		}
		if err := t.Connect(t.ctx); err != nil {
			t.log.Debug("Reconnect failed: %v", err)
			continue
		}
		return
	}
}

// Send writes data to the server (client mode) or to every connection
// (server mode)
func (t *QUICTransport) Send(data []byte, mode types.DeliveryMode) error {
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
	targets := make([]*quicConn, 0, len(t.conns))
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
func (t *QUICTransport) IsConnected() bool {
	if t.closed.Load() {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.mode == ModeClient {
		return t.conn != nil && t.conn.IsConnected()
	}
	return t.listener != nil
}

// RemoteIP returns the configured address
func (t *QUICTransport) RemoteIP() string { return t.ip }

// RemotePort returns the configured UDP port
func (t *QUICTransport) RemotePort() int { return t.udpPort }

// Process delivers queued notifications
func (t *QUICTransport) Process() {
	t.dispatcher.dispatch()
}

// Statistics returns transport-level statistics
func (t *QUICTransport) Statistics() Stats {
	return t.stats.snapshot(t.pending())
}

// Close closes the listener and every connection
func (t *QUICTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	t.cancel()

	t.mu.Lock()
	listener := t.listener
	t.listener = nil
	conns := make([]*quicConn, 0, len(t.conns)+1)
	for c := range t.conns {
		conns = append(conns, c)
	}
	if t.conn != nil {
		conns = append(conns, t.conn)
	}
	t.mu.Unlock()

	for _, c := range conns {
		c.closeConn("transport closed")
	}
	if listener != nil {
		listener.Close()
	}

	t.wg.Wait()
	t.log.Debug("Closed")
	return nil
}

// Send writes data on the stream, or as a datagram when mode is unreliable.
// Datagrams the connection cannot carry fall back to the stream.
func (c *quicConn) Send(data []byte, mode types.DeliveryMode) error {
	if c.closed.Load() {
		return types.ErrNotConnected
	}

	if mode == types.DeliveryUnreliable {
		if err := c.conn.SendDatagram(data); err == nil {
			c.owner.stats.sent(len(data))
			return nil
		}
	}

	frame := make([]byte, tcpLengthPrefixSize+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[tcpLengthPrefixSize:], data)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.send.SetWriteDeadline(time.Now().Add(tcpWriteTimeout))
	if _, err := c.send.Write(frame); err != nil {
		c.owner.stats.sendErrors.Add(1)
		c.closeConn("write error")
		return fmt.Errorf("write to %s: %w", c.conn.RemoteAddr(), err)
	}
	c.owner.stats.sent(len(data))
	return nil
}

// IsConnected reports whether the connection is alive
func (c *quicConn) IsConnected() bool {
	return !c.closed.Load() && c.conn.Context().Err() == nil
}

// RemoteIP returns the remote address
func (c *quicConn) RemoteIP() string { return c.ip }

// RemotePort returns the remote port
func (c *quicConn) RemotePort() int { return c.port }

// Close closes the connection; the disconnect is reported through the owner
func (c *quicConn) Close() error {
	c.closeConn("closed by application")
	return nil
}

func (c *quicConn) closeConn(reason string) {
	if c.closed.CompareAndSwap(false, true) {
		c.conn.CloseWithError(0, reason)
	}
}
