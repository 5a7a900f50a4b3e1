package wire

import (
	"encoding/binary"
	"fmt"

	"objectnet/objectnet-go/pkg/types"
)

// EventCodeSize is the size of the event code that heads an event payload
const EventCodeSize = 4

// EventCode identifies an event-coded message
type EventCode int32

// InternalEventBase is the first code reserved for the network core.
// Application events must stay below it.
const InternalEventBase EventCode = 0x7F000000

const (
	EventClientConnected EventCode = InternalEventBase + iota + 1
	EventCreateNetworkPeer
	EventInitializePeerToPeer
)

// IsInternal reports whether code belongs to the network core
func (c EventCode) IsInternal() bool {
	return c > InternalEventBase
}

// String returns string representation of EventCode
func (c EventCode) String() string {
	switch c {
	case EventClientConnected:
		return "ClientConnected"
	case EventCreateNetworkPeer:
		return "CreateNetworkPeer"
	case EventInitializePeerToPeer:
		return "InitializePeerToPeer"
	default:
		return fmt.Sprintf("Event(%d)", int32(c))
	}
}

// PrependEventCode inserts code ahead of stream's bytes
func PrependEventCode(code EventCode, stream []byte) []byte {
	out := make([]byte, EventCodeSize+len(stream))
	binary.LittleEndian.PutUint32(out[:EventCodeSize], uint32(code))
	copy(out[EventCodeSize:], stream)
	return out
}

// SplitEventCode reverses PrependEventCode
func SplitEventCode(payload []byte) (EventCode, []byte, error) {
	if len(payload) < EventCodeSize {
		return 0, nil, types.InvalidPacketError("split event", ErrInsufficientData)
	}
	code := EventCode(int32(binary.LittleEndian.Uint32(payload[:EventCodeSize])))
	return code, payload[EventCodeSize:], nil
}
