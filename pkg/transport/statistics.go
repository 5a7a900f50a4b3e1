package transport

import "sync/atomic"

// Stats provides transport-level statistics
type Stats struct {
	BytesSent        uint64 // Total bytes sent
	BytesReceived    uint64 // Total bytes received
	MessagesSent     uint64 // Messages written
	MessagesReceived uint64 // Messages delivered to the receive queue
	SendErrors       uint64 // Number of failed writes
	ReceiveErrors    uint64 // Number of read or framing errors
	Connects         uint64 // Endpoints connected
	Disconnects      uint64 // Endpoints disconnected
	PendingEvents    uint64 // Notifications queued for the next Process
}

// counters is embedded by transports to track Stats
type counters struct {
	bytesSent        atomic.Uint64
	bytesReceived    atomic.Uint64
	messagesSent     atomic.Uint64
	messagesReceived atomic.Uint64
	sendErrors       atomic.Uint64
	receiveErrors    atomic.Uint64
	connects         atomic.Uint64
	disconnects      atomic.Uint64
}

func (c *counters) sent(n int) {
	c.bytesSent.Add(uint64(n))
	c.messagesSent.Add(1)
}

func (c *counters) received(n int) {
	c.bytesReceived.Add(uint64(n))
	c.messagesReceived.Add(1)
}

func (c *counters) snapshot(pending int) Stats {
	return Stats{
		BytesSent:        c.bytesSent.Load(),
		BytesReceived:    c.bytesReceived.Load(),
		MessagesSent:     c.messagesSent.Load(),
		MessagesReceived: c.messagesReceived.Load(),
		SendErrors:       c.sendErrors.Load(),
		ReceiveErrors:    c.receiveErrors.Load(),
		Connects:         c.connects.Load(),
		Disconnects:      c.disconnects.Load(),
		PendingEvents:    uint64(pending),
	}
}
