package channel

// Direction selects whether a channel accepts clients or connects to a server
type Direction int

const (
	DirectionServer Direction = iota
	DirectionClient
)

// String returns string representation of Direction
func (d Direction) String() string {
	switch d {
	case DirectionServer:
		return "Server"
	case DirectionClient:
		return "Client"
	default:
		return "Unknown"
	}
}

// State represents the lifecycle state of a channel
type State int

const (
	StateIdle State = iota
	StateStarted
	StateConnected
	StateDisconnected
	StateStopped
)

// String returns string representation of State
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateStarted:
		return "Started"
	case StateConnected:
		return "Connected"
	case StateDisconnected:
		return "Disconnected"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}
