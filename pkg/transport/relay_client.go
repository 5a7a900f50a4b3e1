package transport

import (
	"context"
	"time"

	"objectnet/objectnet-go/pkg/types"
)

// RelayTransportClient presents a relayed connection as a transport. Every
// operation goes to the wrapped transport except the peer operations, which
// always fail: direct peering of a relayed connection is handled elsewhere.
type RelayTransportClient struct {
	noPeers
	inner Transport
}

// NewRelayTransportClient wraps t
func NewRelayTransportClient(t Transport) *RelayTransportClient {
	return &RelayTransportClient{inner: t}
}

// Unwrap returns the wrapped transport
func (r *RelayTransportClient) Unwrap() Transport { return r.inner }

func (r *RelayTransportClient) Send(data []byte, mode types.DeliveryMode) error {
	if r.inner == nil {
		return types.ErrNotConnected
	}
	return r.inner.Send(data, mode)
}

func (r *RelayTransportClient) IsConnected() bool {
	return r.inner != nil && r.inner.IsConnected()
}

func (r *RelayTransportClient) RemoteIP() string {
	if r.inner == nil {
		return ""
	}
	return r.inner.RemoteIP()
}

func (r *RelayTransportClient) RemotePort() int {
	if r.inner == nil {
		return 0
	}
	return r.inner.RemotePort()
}

func (r *RelayTransportClient) Close() error {
	if r.inner == nil {
		return nil
	}
	return r.inner.Close()
}

func (r *RelayTransportClient) SetIP(ip string)                { r.inner.SetIP(ip) }
func (r *RelayTransportClient) SetTCPPort(port int)            { r.inner.SetTCPPort(port) }
func (r *RelayTransportClient) SetUDPPort(port int)            { r.inner.SetUDPPort(port) }
func (r *RelayTransportClient) SetIdleTimeout(d time.Duration) { r.inner.SetIdleTimeout(d) }
func (r *RelayTransportClient) SetAutoReconnect(enabled bool)  { r.inner.SetAutoReconnect(enabled) }

func (r *RelayTransportClient) Configure(onConnected ConnectHandler, onDisconnected DisconnectHandler, onMessage MessageHandler) {
	r.inner.Configure(onConnected, onDisconnected, onMessage)
}

func (r *RelayTransportClient) Initialize(mode Mode) error { return r.inner.Initialize(mode) }

func (r *RelayTransportClient) Connect(ctx context.Context) error { return r.inner.Connect(ctx) }

func (r *RelayTransportClient) Process() { r.inner.Process() }

func (r *RelayTransportClient) Statistics() Stats { return r.inner.Statistics() }
