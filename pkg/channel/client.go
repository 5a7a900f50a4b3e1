package channel

import (
	"fmt"
	"sync"

	"objectnet/objectnet-go/pkg/transport"
	"objectnet/objectnet-go/pkg/types"
	"objectnet/objectnet-go/pkg/wire"
)

// Control is a network object owned by a client. Controls are compared by
// identity, so implementations should be pointer types.
type Control interface {
	NetworkID() int32
}

// Client is the channel's registry entry for one endpoint: a remote client
// on a server channel, the server on a client channel, or the channel itself.
type Client struct {
	channel *Channel
	handle  transport.Client

	mu              sync.RWMutex
	connectionID    int32
	ip              string
	port            int
	lastUDPSequence uint32
	networkObjectID int32
	controls        []Control
}

func newClient(ch *Channel, handle transport.Client, connectionID int32) *Client {
	c := &Client{
		channel:      ch,
		handle:       handle,
		connectionID: connectionID,
	}
	if handle != nil {
		c.ip = handle.RemoteIP()
		c.port = handle.RemotePort()
	}
	return c
}

// Send frames buffer and writes it to this client's transport handle
func (c *Client) Send(buffer []byte, mode types.DeliveryMode) error {
	if c.channel == nil {
		return types.ConfigurationError("send", types.ErrNotConnected)
	}
	return c.channel.SendTo(buffer, mode, c.handle)
}

// SendEvent inserts code ahead of stream and sends the result
func (c *Client) SendEvent(code wire.EventCode, stream []byte, mode types.DeliveryMode) error {
	return c.Send(wire.PrependEventCode(code, stream), mode)
}

// RegisterControl adds control to the owned set; registering twice is a no-op
func (c *Client) RegisterControl(control Control) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, owned := range c.controls {
		if owned == control {
			return
		}
	}
	c.controls = append(c.controls, control)
}

// ReleaseControl removes control from the owned set
func (c *Client) ReleaseControl(control Control) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, owned := range c.controls {
		if owned == control {
			c.controls = append(c.controls[:i], c.controls[i+1:]...)
			return
		}
	}
}

// Controls returns the owned controls in registration order
func (c *Client) Controls() []Control {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Control, len(c.controls))
	copy(out, c.controls)
	return out
}

// ConnectionID returns the connection id assigned by the channel
func (c *Client) ConnectionID() int32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connectionID
}

// SetConnectionID replaces the connection id
func (c *Client) SetConnectionID(id int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectionID = id
}

// IP returns the remote address recorded when the client was created
func (c *Client) IP() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ip
}

// Port returns the remote port recorded when the client was created
func (c *Client) Port() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.port
}

// LastUDPSequence returns the last unreliable sequence number seen
func (c *Client) LastUDPSequence() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUDPSequence
}

// SetLastUDPSequence records the last unreliable sequence number seen
func (c *Client) SetLastUDPSequence(seq uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastUDPSequence = seq
}

// NetworkObjectID returns the id of the object representing this client
func (c *Client) NetworkObjectID() int32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.networkObjectID
}

// SetNetworkObjectID associates a network object with this client
func (c *Client) SetNetworkObjectID(id int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.networkObjectID = id
}

// Channel returns the owning channel
func (c *Client) Channel() *Channel { return c.channel }

// Transport returns the transport handle this client is bound to
func (c *Client) Transport() transport.Client { return c.handle }

// String returns string representation of the client
func (c *Client) String() string {
	return fmt.Sprintf("Client{ID=%d, Addr=%s:%d}", c.ConnectionID(), c.IP(), c.Port())
}
