package relay

import (
	"sort"
	"sync"

	"objectnet/objectnet-go/pkg/channel"
)

// Store persists the player roster of a session, keyed by connection id
type Store interface {
	SavePlayer(player channel.Player) error
	DeletePlayer(connectionID int32) error
	// Players returns every saved player ordered by player id
	Players() ([]channel.Player, error)
	Close() error
}

// MemoryStore keeps the roster in a map
type MemoryStore struct {
	mu      sync.Mutex
	players map[int32]channel.Player
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{players: make(map[int32]channel.Player)}
}

func (s *MemoryStore) SavePlayer(player channel.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[player.ConnectionID] = player
	return nil
}

func (s *MemoryStore) DeletePlayer(connectionID int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.players, connectionID)
	return nil
}

func (s *MemoryStore) Players() ([]channel.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]channel.Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, p)
	}
	sortPlayers(out)
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

func sortPlayers(players []channel.Player) {
	sort.Slice(players, func(i, j int) bool { return players[i].ID < players[j].ID })
}
