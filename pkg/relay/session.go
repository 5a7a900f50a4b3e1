package relay

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"objectnet/objectnet-go/pkg/channel"
	"objectnet/objectnet-go/pkg/internal/logger"
	"objectnet/objectnet-go/pkg/types"
)

// Session is the roster a relay server channel bootstraps players with. It
// implements channel.Session.
type Session struct {
	cfg        Config
	store      Store
	log        logger.Logger
	instanceID int32

	mu        sync.RWMutex
	players   map[int32]*channel.Player // Key: connection id
	nextPort  int
	freePorts []int
}

var _ channel.Session = (*Session)(nil)

// NewSession creates a session. The store, when given, is owned by the
// session and closed by Close.
func NewSession(cfg Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, types.ConfigurationError("new session", err)
	}

	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}

	id := uuid.New()
	s := &Session{
		cfg:        cfg,
		store:      store,
		log:        logger.OrNoOp(cfg.Logger).WithField("component", "relay"),
		instanceID: int32(binary.LittleEndian.Uint32(id[:4]) & 0x7fffffff),
		players:    make(map[int32]*channel.Player),
	}
	if err := s.purgeStale(); err != nil {
		return nil, fmt.Errorf("purge stale roster: %w", err)
	}
	return s, nil
}

// purgeStale deletes roster records left in the store by a previous session
func (s *Session) purgeStale() error {
	stale, err := s.store.Players()
	if err != nil {
		return err
	}
	for _, p := range stale {
		if err := s.store.DeletePlayer(p.ConnectionID); err != nil {
			return err
		}
	}
	if len(stale) > 0 {
		s.log.Info("Purged %d stale players", len(stale))
	}
	return nil
}

// nextPlayerIDLocked returns the lowest player id no online player holds
func (s *Session) nextPlayerIDLocked() (uint16, error) {
	used := make(map[uint16]struct{}, len(s.players))
	for _, p := range s.players {
		used[p.ID] = struct{}{}
	}
	for id := 1; id <= int(^uint16(0)); id++ {
		if _, ok := used[uint16(id)]; !ok {
			return uint16(id), nil
		}
	}
	return 0, ErrPlayerIDsExhausted
}

func (s *Session) RelayMode() bool              { return s.cfg.RelayMode }
func (s *Session) PeerToPeerEnabled() bool      { return s.cfg.PeerToPeer }
func (s *Session) LobbyModeEnabled() bool       { return s.cfg.LobbyMode }
func (s *Session) IsRelayMaster() bool          { return s.cfg.RelayMaster }
func (s *Session) SessionInstanceID() int32     { return s.instanceID }
func (s *Session) ServerMode() types.ServerMode { return s.cfg.ServerMode }

// RegisterPlayer adds a player to the default lobby. Player ids are unique
// among online players; ids of departed players are handed out again. The
// first player of a lobby becomes its master.
func (s *Session) RegisterPlayer(connectionID int32, ip string, port int) (*channel.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.nextPlayerIDLocked()
	if err != nil {
		return nil, err
	}
	p := &channel.Player{
		ID:           id,
		Name:         fmt.Sprintf(s.cfg.PlayerNameFormat, id),
		Lobby:        s.cfg.DefaultLobby,
		ConnectionID: connectionID,
		IP:           ip,
		Port:         port,
	}
	p.IsMaster = s.masterLocked(p.Lobby) == nil

	if err := s.store.SavePlayer(*p); err != nil {
		return nil, fmt.Errorf("save player %d: %w", id, err)
	}
	s.players[connectionID] = p

	s.log.Info("Player %d (%s) joined lobby %q from %s:%d, master=%v",
		p.ID, p.Name, p.Lobby, ip, port, p.IsMaster)

	out := *p
	return &out, nil
}

// UnregisterPlayer removes a player, returns its peer-to-peer port to the
// pool and promotes a new master when needed. Unknown ids are ignored.
func (s *Session) UnregisterPlayer(connectionID int32) {
	s.mu.Lock()
	p, ok := s.players[connectionID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.players, connectionID)
	if p.PeerToPeerPort != 0 {
		s.freePorts = append(s.freePorts, p.PeerToPeerPort)
	}
	var promoted *channel.Player
	if p.IsMaster {
		promoted = s.promoteLocked(p.Lobby)
	}
	s.mu.Unlock()

	if err := s.store.DeletePlayer(connectionID); err != nil {
		s.log.Warn("Failed to delete player %d: %v", p.ID, err)
	}
	s.log.Info("Player %d (%s) left lobby %q", p.ID, p.Name, p.Lobby)

	if p.IsMaster {
		s.masterChanged(p.Lobby, promoted)
	}
}

// promoteLocked makes the lowest player id in lobby its master and returns
// a copy of it, or nil when the lobby is empty
func (s *Session) promoteLocked(lobby string) *channel.Player {
	members := s.membersLocked(lobby)
	if len(members) == 0 {
		return nil
	}
	next := members[0]
	next.IsMaster = true
	if err := s.store.SavePlayer(*next); err != nil {
		s.log.Warn("Failed to save player %d: %v", next.ID, err)
	}
	out := *next
	return &out
}

func (s *Session) masterChanged(lobby string, master *channel.Player) {
	if master != nil {
		s.log.Info("Player %d is now master of lobby %q", master.ID, lobby)
	}
	if cb := s.cfg.OnMasterChanged; cb != nil {
		cb(lobby, master)
	}
}

// membersLocked returns the players of lobby ordered by player id
func (s *Session) membersLocked(lobby string) []*channel.Player {
	var out []*channel.Player
	for _, p := range s.players {
		if p.Lobby == lobby {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Session) masterLocked(lobby string) *channel.Player {
	for _, p := range s.players {
		if p.Lobby == lobby && p.IsMaster {
			return p
		}
	}
	return nil
}

// AvailablePeers returns copies of the other players in player's lobby that
// run a peer server, ordered by player id
func (s *Session) AvailablePeers(player *channel.Player) []*channel.Player {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*channel.Player
	for _, p := range s.membersLocked(player.Lobby) {
		if p.ConnectionID == player.ConnectionID || !p.PeerAvailable {
			continue
		}
		peer := *p
		out = append(out, &peer)
	}
	return out
}

// AllocatePeerToPeerPort reserves a port for player's peer server. Ports of
// departed players are reused first.
func (s *Session) AllocatePeerToPeerPort(player *channel.Player) (int, error) {
	if !s.cfg.PeerToPeer {
		return 0, types.UnsupportedError("AllocatePeerToPeerPort")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[player.ConnectionID]
	if !ok {
		return 0, fmt.Errorf("%w: connection %d", ErrUnknownPlayer, player.ConnectionID)
	}
	if p.PeerToPeerPort != 0 {
		player.PeerToPeerPort, player.PeerAvailable = p.PeerToPeerPort, p.PeerAvailable
		return p.PeerToPeerPort, nil
	}

	var port int
	if n := len(s.freePorts); n > 0 {
		port = s.freePorts[n-1]
		s.freePorts = s.freePorts[:n-1]
	} else {
		port = s.cfg.BasePeerToPeerPort + s.nextPort
		if port > 65535 {
			return 0, ErrPortsExhausted
		}
		s.nextPort++
	}

	p.PeerToPeerPort = port
	p.PeerAvailable = true
	if err := s.store.SavePlayer(*p); err != nil {
		return 0, fmt.Errorf("save player %d: %w", p.ID, err)
	}
	player.PeerToPeerPort, player.PeerAvailable = port, true
	return port, nil
}

// SetPeerAvailable marks whether player's peer server accepts connections
func (s *Session) SetPeerAvailable(connectionID int32, available bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[connectionID]
	if !ok {
		return fmt.Errorf("%w: connection %d", ErrUnknownPlayer, connectionID)
	}
	p.PeerAvailable = available
	return s.store.SavePlayer(*p)
}

// MoveToLobby moves a player to another lobby. The player becomes master of
// the target lobby if it has none, and its old lobby gets a new master if
// the player was master there.
func (s *Session) MoveToLobby(connectionID int32, lobby string) error {
	if !s.cfg.LobbyMode {
		return types.UnsupportedError("MoveToLobby")
	}

	s.mu.Lock()
	p, ok := s.players[connectionID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: connection %d", ErrUnknownPlayer, connectionID)
	}
	if p.Lobby == lobby {
		s.mu.Unlock()
		return nil
	}

	old, wasMaster := p.Lobby, p.IsMaster
	p.IsMaster = false
	p.Lobby = lobby
	var promoted *channel.Player
	if wasMaster {
		promoted = s.promoteLocked(old)
	}
	p.IsMaster = s.masterLocked(lobby) == nil
	err := s.store.SavePlayer(*p)
	s.mu.Unlock()

	if wasMaster {
		s.masterChanged(old, promoted)
	}
	return err
}

// Player returns a copy of the player bound to connectionID
func (s *Session) Player(connectionID int32) (channel.Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.players[connectionID]
	if !ok {
		return channel.Player{}, false
	}
	return *p, true
}

// Master returns a copy of lobby's master
func (s *Session) Master(lobby string) (channel.Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := s.masterLocked(lobby)
	if p == nil {
		return channel.Player{}, false
	}
	return *p, true
}

// Players returns copies of every player ordered by player id
func (s *Session) Players() []channel.Player {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]channel.Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, *p)
	}
	sortPlayers(out)
	return out
}

// Close closes the store
func (s *Session) Close() error {
	return s.store.Close()
}
