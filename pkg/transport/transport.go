// Package transport provides the pluggable network transports a channel
// runs on. A transport owns the sockets, reports remote endpoints as Client
// handles, and hands connect, disconnect and message notifications to the
// callbacks registered with Configure. Notifications raised by background I/O
// goroutines are queued and only delivered from Process, on the goroutine
// that calls it.
package transport

import (
	"context"
	"time"

	"objectnet/objectnet-go/pkg/types"
)

// Type names a transport implementation in the factory registry
type Type string

const (
	TypeTCP    Type = "tcp"
	TypeUDP    Type = "udp"
	TypeQUIC   Type = "quic"
	TypeMemory Type = "memory"
)

// Mode selects whether a transport listens or dials
type Mode int

const (
	ModeServer Mode = iota
	ModeClient
)

// String returns string representation of Mode
func (m Mode) String() string {
	switch m {
	case ModeServer:
		return "Server"
	case ModeClient:
		return "Client"
	default:
		return "Unknown"
	}
}

// Peer describes a player reachable directly, bypassing the server
type Peer struct {
	ID        uint16
	IP        string
	Port      int
	Available bool
}

// ConnectHandler is called when a remote endpoint connects
type ConnectHandler func(client Client)

// DisconnectHandler is called when a remote endpoint goes away
type DisconnectHandler func(client Client)

// MessageHandler is called for every message received from client
type MessageHandler func(client Client, data []byte)

// Client is a handle to one endpoint of a transport. Handles are compared by
// identity, so implementations must be pointer types.
type Client interface {
	// Send writes one message to the endpoint
	Send(data []byte, mode types.DeliveryMode) error

	// IsConnected reports whether the endpoint is still reachable
	IsConnected() bool

	// RemoteIP returns the endpoint's address without port
	RemoteIP() string

	// RemotePort returns the endpoint's port
	RemotePort() int

	// Peer-to-peer bookkeeping
	RegisterPeer(peer *Peer) error
	UnregisterPeer(peer *Peer) error
	UnregisterPeerByID(id uint16) error
	GetPeer(id uint16) (*Peer, error)
	InitializePeerToPeerServer(port int) error

	// Close drops the endpoint
	Close() error
}

// Transport is a listening or dialing network transport. In client mode the
// transport itself is the handle reported to the connect callback. In server
// mode Send broadcasts to every connected endpoint.
type Transport interface {
	Client

	SetIP(ip string)
	SetTCPPort(port int)
	SetUDPPort(port int)
	SetIdleTimeout(timeout time.Duration)
	SetAutoReconnect(enabled bool)

	// Configure registers the notification callbacks
	Configure(onConnected ConnectHandler, onDisconnected DisconnectHandler, onMessage MessageHandler)

	// Initialize prepares the transport; a server starts listening
	Initialize(mode Mode) error

	// Connect dials the configured address (client mode only)
	Connect(ctx context.Context) error

	// Process delivers queued notifications on the calling goroutine
	Process()

	// Statistics returns transport-level counters
	Statistics() Stats
}
