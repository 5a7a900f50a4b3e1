package types

// DeliveryMode selects the delivery guarantee for a send
type DeliveryMode uint8

const (
	// DeliveryReliable is ordered and guaranteed
	DeliveryReliable DeliveryMode = iota
	// DeliveryUnreliable may drop or reorder
	DeliveryUnreliable
)

// String returns string representation of DeliveryMode
func (m DeliveryMode) String() string {
	switch m {
	case DeliveryReliable:
		return "Reliable"
	case DeliveryUnreliable:
		return "Unreliable"
	default:
		return "Unknown"
	}
}

// ServerMode describes how the server side of a session operates.
// It travels as a single byte in the relay ClientConnected message.
type ServerMode byte

const (
	// ServerModeAuthoritative is a dedicated server owning the simulation
	ServerModeAuthoritative ServerMode = iota
	// ServerModeRelay forwards traffic between players, one of which is master
	ServerModeRelay
	// ServerModeEmbedded is a player hosting the session in-process
	ServerModeEmbedded
)

// String returns string representation of ServerMode
func (m ServerMode) String() string {
	switch m {
	case ServerModeAuthoritative:
		return "Authoritative"
	case ServerModeRelay:
		return "Relay"
	case ServerModeEmbedded:
		return "Embedded"
	default:
		return "Unknown"
	}
}
