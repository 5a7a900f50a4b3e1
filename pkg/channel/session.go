package channel

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"objectnet/objectnet-go/pkg/types"
)

// Player is the session-level identity of a connected client
type Player struct {
	ID           uint16
	Name         string
	Lobby        string
	IsMaster     bool
	ConnectionID int32

	IP   string
	Port int

	PeerToPeerPort int
	PeerAvailable  bool
}

// Session is the application context a channel consults while bootstrapping
// clients. It is passed in through Config.
type Session interface {
	RelayMode() bool
	PeerToPeerEnabled() bool
	LobbyModeEnabled() bool

	// IsRelayMaster reports whether this process is the master of a relay
	// session, receiving other players' traffic verbatim
	IsRelayMaster() bool

	SessionInstanceID() int32
	ServerMode() types.ServerMode

	RegisterPlayer(connectionID int32, ip string, port int) (*Player, error)
	UnregisterPlayer(connectionID int32)

	// AvailablePeers returns the players player should know about
	AvailablePeers(player *Player) []*Player

	// AllocatePeerToPeerPort reserves the port player's own peer server uses
	AllocatePeerToPeerPort(player *Player) (int, error)
}

// standaloneSession is used when no session is configured: no relay, no
// peer-to-peer, authoritative server.
type standaloneSession struct {
	instanceID int32

	mu      sync.Mutex
	players map[int32]*Player
	nextID  uint16
}

// NewStandaloneSession creates a non-relay session with a random instance id
func NewStandaloneSession() Session {
	id := uuid.New()
	return &standaloneSession{
		instanceID: int32(binary.LittleEndian.Uint32(id[:4]) & 0x7fffffff),
		players:    make(map[int32]*Player),
	}
}

func (s *standaloneSession) RelayMode() bool              { return false }
func (s *standaloneSession) PeerToPeerEnabled() bool      { return false }
func (s *standaloneSession) LobbyModeEnabled() bool       { return false }
func (s *standaloneSession) IsRelayMaster() bool          { return false }
func (s *standaloneSession) SessionInstanceID() int32     { return s.instanceID }
func (s *standaloneSession) ServerMode() types.ServerMode { return types.ServerModeAuthoritative }

func (s *standaloneSession) RegisterPlayer(connectionID int32, ip string, port int) (*Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	p := &Player{
		ID:           s.nextID,
		Name:         fmt.Sprintf("Player %d", s.nextID),
		ConnectionID: connectionID,
		IP:           ip,
		Port:         port,
		IsMaster:     len(s.players) == 0,
	}
	s.players[connectionID] = p
	return p, nil
}

func (s *standaloneSession) UnregisterPlayer(connectionID int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.players, connectionID)
}

func (s *standaloneSession) AvailablePeers(*Player) []*Player { return nil }

func (s *standaloneSession) AllocatePeerToPeerPort(*Player) (int, error) {
	return 0, types.UnsupportedError("AllocatePeerToPeerPort")
}
