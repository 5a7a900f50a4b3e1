package wire

import (
	"fmt"

	"objectnet/objectnet-go/pkg/types"
)

// ClientConnected tells a newly connected client who it is. Relay selects
// the layout and is not itself transmitted.
type ClientConnected struct {
	Relay bool

	ConnectionID      int32
	SessionInstanceID int32

	// Relay layout only
	PlayerID   uint16
	PlayerName string
	IsMaster   bool
	LobbyMode  bool
	ServerMode types.ServerMode
}

// Encode writes the message fields in wire order
func (m ClientConnected) Encode() []byte {
	w := NewWriter()
	w.WriteInt32(m.ConnectionID)
	w.WriteInt32(m.SessionInstanceID)
	if m.Relay {
		w.WriteUint16(m.PlayerID)
		w.WriteString(m.PlayerName)
		w.WriteBool(m.IsMaster)
		w.WriteBool(m.LobbyMode)
		w.WriteByte(byte(m.ServerMode))
	}
	return w.Bytes()
}

// DecodeClientConnected parses either layout of ClientConnected
func DecodeClientConnected(data []byte, relay bool) (ClientConnected, error) {
	m := ClientConnected{Relay: relay}
	r := NewReader(data)

	var err error
	if m.ConnectionID, err = r.ReadInt32(); err != nil {
		return m, fmt.Errorf("connection id: %w", err)
	}
	if m.SessionInstanceID, err = r.ReadInt32(); err != nil {
		return m, fmt.Errorf("session instance id: %w", err)
	}
	if !relay {
		return m, nil
	}
	if m.PlayerID, err = r.ReadUint16(); err != nil {
		return m, fmt.Errorf("player id: %w", err)
	}
	if m.PlayerName, err = r.ReadString(); err != nil {
		return m, fmt.Errorf("player name: %w", err)
	}
	if m.IsMaster, err = r.ReadBool(); err != nil {
		return m, fmt.Errorf("master flag: %w", err)
	}
	if m.LobbyMode, err = r.ReadBool(); err != nil {
		return m, fmt.Errorf("lobby mode: %w", err)
	}
	mode, err := r.ReadByte()
	if err != nil {
		return m, fmt.Errorf("server mode: %w", err)
	}
	m.ServerMode = types.ServerMode(mode)
	return m, nil
}

// CreateNetworkPeer describes one peer already present in the session
type CreateNetworkPeer struct {
	PlayerID  uint16
	IP        string
	Port      int32
	Available bool
}

// Encode writes the message fields in wire order
func (m CreateNetworkPeer) Encode() []byte {
	w := NewWriter()
	w.WriteUint16(m.PlayerID)
	w.WriteString(m.IP)
	w.WriteInt32(m.Port)
	w.WriteBool(m.Available)
	return w.Bytes()
}

// DecodeCreateNetworkPeer parses a CreateNetworkPeer body
func DecodeCreateNetworkPeer(data []byte) (CreateNetworkPeer, error) {
	var m CreateNetworkPeer
	r := NewReader(data)

	var err error
	if m.PlayerID, err = r.ReadUint16(); err != nil {
		return m, fmt.Errorf("player id: %w", err)
	}
	if m.IP, err = r.ReadString(); err != nil {
		return m, fmt.Errorf("peer ip: %w", err)
	}
	if m.Port, err = r.ReadInt32(); err != nil {
		return m, fmt.Errorf("peer port: %w", err)
	}
	if m.Available, err = r.ReadBool(); err != nil {
		return m, fmt.Errorf("peer available: %w", err)
	}
	return m, nil
}

// InitializePeerToPeer hands a player the port for its own peer server
type InitializePeerToPeer struct {
	PlayerID uint16
	Port     int32
}

// Encode writes the message fields in wire order
func (m InitializePeerToPeer) Encode() []byte {
	w := NewWriter()
	w.WriteUint16(m.PlayerID)
	w.WriteInt32(m.Port)
	return w.Bytes()
}

// DecodeInitializePeerToPeer parses an InitializePeerToPeer body
func DecodeInitializePeerToPeer(data []byte) (InitializePeerToPeer, error) {
	var m InitializePeerToPeer
	r := NewReader(data)

	var err error
	if m.PlayerID, err = r.ReadUint16(); err != nil {
		return m, fmt.Errorf("player id: %w", err)
	}
	if m.Port, err = r.ReadInt32(); err != nil {
		return m, fmt.Errorf("peer-to-peer port: %w", err)
	}
	return m, nil
}
