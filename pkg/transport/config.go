package transport

import (
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"objectnet/objectnet-go/pkg/internal/logger"
)

// DefaultMaxMessageSize bounds a single framed message
const DefaultMaxMessageSize = 1 << 20

// Options carries construction-time settings for any transport
type Options struct {
	// Logger receives transport diagnostics (nil = no logging)
	Logger logger.Logger

	// ProxyAddress routes TCP client dials through a SOCKS5 proxy ("host:port")
	ProxyAddress string

	// TLSConfig is used by QUIC; a self-signed config is generated when nil
	TLSConfig *tls.Config

	// MaxMessageSize bounds inbound messages (0 = DefaultMaxMessageSize)
	MaxMessageSize int

	// Network is the hub used by the memory transport (nil = DefaultMemoryNetwork)
	Network *MemoryNetwork
}

// DefaultOptions returns default transport options
func DefaultOptions() Options {
	return Options{
		MaxMessageSize: DefaultMaxMessageSize,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = DefaultMaxMessageSize
	}
	o.Logger = logger.OrNoOp(o.Logger)
	return o
}

// settings holds the address and timing configuration shared by transports
type settings struct {
	ip            string
	tcpPort       int
	udpPort       int
	idleTimeout   time.Duration
	autoReconnect bool
}

// SetIP sets the address to listen on or dial
func (s *settings) SetIP(ip string) { s.ip = ip }

// SetTCPPort sets the TCP port
func (s *settings) SetTCPPort(port int) { s.tcpPort = port }

// SetUDPPort sets the UDP port
func (s *settings) SetUDPPort(port int) { s.udpPort = port }

// SetIdleTimeout sets how long an endpoint may stay silent (0 = forever)
func (s *settings) SetIdleTimeout(timeout time.Duration) { s.idleTimeout = timeout }

// SetAutoReconnect enables background redialing in client mode
func (s *settings) SetAutoReconnect(enabled bool) { s.autoReconnect = enabled }

func (s *settings) tcpAddress() string {
	return net.JoinHostPort(s.ip, strconv.Itoa(s.tcpPort))
}

func (s *settings) udpAddress() string {
	return net.JoinHostPort(s.ip, strconv.Itoa(s.udpPort))
}

// splitAddr extracts ip and port from a net.Addr
func splitAddr(addr net.Addr) (string, int) {
	if addr == nil {
		return "", 0
	}
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP.String(), a.Port
	case *net.UDPAddr:
		return a.IP.String(), a.Port
	}
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), 0
	}
	p, _ := strconv.Atoi(port)
	return host, p
}

func errMessageTooLarge(size, max int) error {
	return fmt.Errorf("message of %d bytes exceeds limit of %d", size, max)
}
