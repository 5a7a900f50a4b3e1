package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"objectnet/objectnet-go/pkg/channel"
	"objectnet/objectnet-go/pkg/types"
)

type masterChange struct {
	lobby  string
	master *channel.Player
}

func newTestSession(t *testing.T, mutate ...func(*Config)) (*Session, *[]masterChange) {
	t.Helper()

	var changes []masterChange
	cfg := DefaultConfig()
	cfg.PeerToPeer = true
	cfg.LobbyMode = true
	cfg.OnMasterChanged = func(lobby string, master *channel.Player) {
		changes = append(changes, masterChange{lobby, master})
	}
	for _, m := range mutate {
		m(&cfg)
	}

	s, err := NewSession(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, &changes
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"defaults", func(*Config) {}, nil},
		{"zero base port", func(c *Config) { c.BasePeerToPeerPort = 0 }, ErrInvalidBasePort},
		{"huge base port", func(c *Config) { c.BasePeerToPeerPort = 70000 }, ErrInvalidBasePort},
		{"no verb", func(c *Config) { c.PlayerNameFormat = "Player" }, ErrInvalidNameFormat},
		{"two verbs", func(c *Config) { c.PlayerNameFormat = "%d-%d" }, ErrInvalidNameFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)

			_, err = NewSession(cfg)
			assert.Equal(t, types.KindConfiguration, types.KindOf(err))
		})
	}
}

func TestSession_Flags(t *testing.T) {
	s, _ := newTestSession(t, func(c *Config) { c.RelayMaster = true })
	assert.True(t, s.RelayMode())
	assert.True(t, s.PeerToPeerEnabled())
	assert.True(t, s.LobbyModeEnabled())
	assert.True(t, s.IsRelayMaster())
	assert.Equal(t, types.ServerModeRelay, s.ServerMode())
	assert.GreaterOrEqual(t, s.SessionInstanceID(), int32(0))
}

func TestSession_RegisterAssignsMaster(t *testing.T) {
	s, _ := newTestSession(t)

	first, err := s.RegisterPlayer(1, "10.0.0.5", 7777)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), first.ID)
	assert.Equal(t, "Player 1", first.Name)
	assert.Equal(t, "default", first.Lobby)
	assert.True(t, first.IsMaster)

	second, err := s.RegisterPlayer(2, "10.0.0.6", 8888)
	require.NoError(t, err)
	assert.Equal(t, uint16(2), second.ID)
	assert.False(t, second.IsMaster)

	master, ok := s.Master("default")
	require.True(t, ok)
	assert.Equal(t, int32(1), master.ConnectionID)
	assert.Len(t, s.Players(), 2)
}

func TestSession_MasterPromotion(t *testing.T) {
	s, changes := newTestSession(t)
	for id := int32(1); id <= 3; id++ {
		_, err := s.RegisterPlayer(id, "10.0.0.1", int(id))
		require.NoError(t, err)
	}

	s.UnregisterPlayer(1)
	master, ok := s.Master("default")
	require.True(t, ok)
	assert.Equal(t, int32(2), master.ConnectionID)
	require.Len(t, *changes, 1)
	assert.Equal(t, uint16(2), (*changes)[0].master.ID)

	// Non-master departures change nothing
	s.UnregisterPlayer(3)
	assert.Len(t, *changes, 1)

	s.UnregisterPlayer(2)
	require.Len(t, *changes, 2)
	assert.Nil(t, (*changes)[1].master)
	_, ok = s.Master("default")
	assert.False(t, ok)

	s.UnregisterPlayer(42)
	assert.Empty(t, s.Players())
}

func TestSession_PeerToPeerPorts(t *testing.T) {
	s, _ := newTestSession(t)

	a, err := s.RegisterPlayer(1, "10.0.0.5", 7777)
	require.NoError(t, err)
	assert.Empty(t, s.AvailablePeers(a))

	port, err := s.AllocatePeerToPeerPort(a)
	require.NoError(t, err)
	assert.Equal(t, 27000, port)
	assert.Equal(t, 27000, a.PeerToPeerPort)
	assert.True(t, a.PeerAvailable)

	again, err := s.AllocatePeerToPeerPort(a)
	require.NoError(t, err)
	assert.Equal(t, port, again)

	b, err := s.RegisterPlayer(2, "10.0.0.6", 8888)
	require.NoError(t, err)
	peers := s.AvailablePeers(b)
	require.Len(t, peers, 1)
	assert.Equal(t, uint16(1), peers[0].ID)
	assert.Equal(t, "10.0.0.5", peers[0].IP)
	assert.Equal(t, 27000, peers[0].PeerToPeerPort)

	port, err = s.AllocatePeerToPeerPort(b)
	require.NoError(t, err)
	assert.Equal(t, 27001, port)

	// Released ports are handed out again
	s.UnregisterPlayer(1)
	c, err := s.RegisterPlayer(3, "10.0.0.7", 9999)
	require.NoError(t, err)
	port, err = s.AllocatePeerToPeerPort(c)
	require.NoError(t, err)
	assert.Equal(t, 27000, port)

	require.NoError(t, s.SetPeerAvailable(2, false))
	assert.Empty(t, s.AvailablePeers(c))

	_, err = s.AllocatePeerToPeerPort(&channel.Player{ConnectionID: 77})
	assert.ErrorIs(t, err, ErrUnknownPlayer)
}

func TestSession_PeerToPeerDisabled(t *testing.T) {
	s, _ := newTestSession(t, func(c *Config) { c.PeerToPeer = false })
	p, err := s.RegisterPlayer(1, "10.0.0.5", 7777)
	require.NoError(t, err)

	_, err = s.AllocatePeerToPeerPort(p)
	assert.ErrorIs(t, err, types.ErrUnsupported)
}

func TestSession_Lobbies(t *testing.T) {
	s, changes := newTestSession(t)
	for id := int32(1); id <= 3; id++ {
		p, err := s.RegisterPlayer(id, "10.0.0.1", int(id))
		require.NoError(t, err)
		_, err = s.AllocatePeerToPeerPort(p)
		require.NoError(t, err)
	}

	require.NoError(t, s.MoveToLobby(1, "arena"))
	arena, ok := s.Master("arena")
	require.True(t, ok)
	assert.Equal(t, int32(1), arena.ConnectionID)
	def, ok := s.Master("default")
	require.True(t, ok)
	assert.Equal(t, int32(2), def.ConnectionID)
	require.Len(t, *changes, 1)
	assert.Equal(t, "default", (*changes)[0].lobby)

	require.NoError(t, s.MoveToLobby(3, "arena"))
	p3, ok := s.Player(3)
	require.True(t, ok)
	assert.False(t, p3.IsMaster)
	assert.Equal(t, "arena", p3.Lobby)

	peers := s.AvailablePeers(&p3)
	require.Len(t, peers, 1)
	assert.Equal(t, int32(1), peers[0].ConnectionID)

	require.NoError(t, s.MoveToLobby(3, "arena"))
	assert.ErrorIs(t, s.MoveToLobby(99, "arena"), ErrUnknownPlayer)
}

func TestSession_LobbyModeDisabled(t *testing.T) {
	s, _ := newTestSession(t, func(c *Config) { c.LobbyMode = false })
	_, err := s.RegisterPlayer(1, "10.0.0.1", 1)
	require.NoError(t, err)
	assert.ErrorIs(t, s.MoveToLobby(1, "arena"), types.ErrUnsupported)
}

func TestSession_PersistsRoster(t *testing.T) {
	store, err := NewInMemoryBadgerStore()
	require.NoError(t, err)
	s, _ := newTestSession(t, func(c *Config) { c.Store = store })

	a, err := s.RegisterPlayer(1, "10.0.0.5", 7777)
	require.NoError(t, err)
	_, err = s.AllocatePeerToPeerPort(a)
	require.NoError(t, err)
	_, err = s.RegisterPlayer(2, "10.0.0.6", 8888)
	require.NoError(t, err)

	saved, err := store.Players()
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, 27000, saved[0].PeerToPeerPort)

	s.UnregisterPlayer(1)
	saved, err = store.Players()
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.True(t, saved[0].IsMaster)
}

func TestSession_ReusesPlayerIDs(t *testing.T) {
	s, _ := newTestSession(t)
	for id := int32(1); id <= 3; id++ {
		_, err := s.RegisterPlayer(id, "10.0.0.1", int(id))
		require.NoError(t, err)
	}

	// The lowest free id is handed out first
	s.UnregisterPlayer(2)
	p, err := s.RegisterPlayer(4, "10.0.0.1", 4)
	require.NoError(t, err)
	assert.Equal(t, uint16(2), p.ID)
	assert.Equal(t, "Player 2", p.Name)

	p, err = s.RegisterPlayer(5, "10.0.0.1", 5)
	require.NoError(t, err)
	assert.Equal(t, uint16(4), p.ID)
}

func TestSession_LongRunningRelayKeepsAdmitting(t *testing.T) {
	s, _ := newTestSession(t, func(c *Config) { c.OnMasterChanged = nil })

	for i := 0; i < int(^uint16(0))+10; i++ {
		conn := int32(i + 1)
		p, err := s.RegisterPlayer(conn, "10.0.0.1", 1)
		require.NoError(t, err)
		require.Equal(t, uint16(1), p.ID)
		s.UnregisterPlayer(conn)
	}
	assert.Empty(t, s.Players())
}

func TestSession_PlayerIDsExhausted(t *testing.T) {
	s, _ := newTestSession(t)
	for id := 1; id <= int(^uint16(0)); id++ {
		s.players[int32(id)] = &channel.Player{ID: uint16(id), ConnectionID: int32(id), Lobby: "full"}
	}

	_, err := s.RegisterPlayer(1<<20, "10.0.0.1", 1)
	assert.ErrorIs(t, err, ErrPlayerIDsExhausted)

	delete(s.players, 300)
	p, err := s.RegisterPlayer(1<<20, "10.0.0.1", 1)
	require.NoError(t, err)
	assert.Equal(t, uint16(300), p.ID)
}

func TestSession_PurgesStaleRoster(t *testing.T) {
	dir := t.TempDir()
	store, err := NewBadgerStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.SavePlayer(channel.Player{ID: 9, Name: "Player 9", ConnectionID: 9}))

	s, _ := newTestSession(t, func(c *Config) { c.Store = store })
	saved, err := store.Players()
	require.NoError(t, err)
	assert.Empty(t, saved)

	p, err := s.RegisterPlayer(1, "10.0.0.1", 1)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), p.ID)
}
