package channel

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"objectnet/objectnet-go/pkg/internal/logger"
	"objectnet/objectnet-go/pkg/transport"
	"objectnet/objectnet-go/pkg/wire"
)

var (
	ErrInvalidDirection = errors.New("invalid channel direction")
	ErrNoTransportType  = errors.New("transport type is required")
	ErrInvalidPort      = errors.New("port out of range")
	ErrInvalidTimeout   = errors.New("timeout must not be negative")
)

// Address is where a server listens or a client connects
type Address struct {
	Host    string
	TCPPort int
	UDPPort int
}

// Callbacks are invoked on the goroutine calling Process, except
// OnConnectionFailed and OnError which may also fire from Connect.
type Callbacks struct {
	// OnMessageReceived receives the origin client and the message stream
	OnMessageReceived func(client *Client, stream []byte)

	// Server side
	OnClientConnected    func(client *Client)
	OnClientDisconnected func(client *Client)

	// Client side
	OnConnected    func(client *Client)
	OnDisconnected func(client *Client)

	OnConnectionFailed func(err error)

	// OnError receives recoverable failures. Panics raised inside it are
	// recovered and discarded.
	OnError func(err error)
}

// Config configures a channel
type Config struct {
	ID               string
	Direction        Direction
	TransportType    transport.Type
	TransportOptions transport.Options

	Address        Address
	IdleTimeout    time.Duration // 0 = never
	ConnectTimeout time.Duration // 0 = DefaultConnectTimeout
	AutoReconnect  bool

	// Encryption requires both hooks; a missing hook fails the send or
	// receive that needs it
	Encryption bool
	Encrypt    wire.CipherFunc
	Decrypt    wire.CipherFunc

	// Session supplies relay and player context (nil = standalone)
	Session Session

	Logger    logger.Logger
	Callbacks Callbacks
}

// DefaultConnectTimeout bounds Connect when no timeout is configured
const DefaultConnectTimeout = 10 * time.Second

// DefaultConfig returns a TCP client configuration for localhost
func DefaultConfig() Config {
	return Config{
		Direction:        DirectionClient,
		TransportType:    transport.TypeTCP,
		TransportOptions: transport.DefaultOptions(),
		Address: Address{
			Host:    "127.0.0.1",
			TCPPort: 2300,
			UDPPort: 2301,
		},
		IdleTimeout:    30 * time.Second,
		ConnectTimeout: DefaultConnectTimeout,
	}
}

// Validate checks the configuration, filling in the ID when empty
func (c *Config) Validate() error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Direction != DirectionServer && c.Direction != DirectionClient {
		return fmt.Errorf("%w: %d", ErrInvalidDirection, c.Direction)
	}
	if c.TransportType == "" {
		return ErrNoTransportType
	}
	for _, port := range []int{c.Address.TCPPort, c.Address.UDPPort} {
		if port < 0 || port > 65535 {
			return fmt.Errorf("%w: %d", ErrInvalidPort, port)
		}
	}
	if c.IdleTimeout < 0 || c.ConnectTimeout < 0 {
		return ErrInvalidTimeout
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	return nil
}
