// Package relay implements the server-side session of a relay game: the
// player roster, lobby membership and master election, peer-to-peer port
// allocation, and forwarding of frames between players.
package relay

import (
	"errors"
	"fmt"
	"strings"

	"objectnet/objectnet-go/pkg/channel"
	"objectnet/objectnet-go/pkg/internal/logger"
	"objectnet/objectnet-go/pkg/types"
)

var (
	ErrInvalidBasePort    = errors.New("peer-to-peer base port out of range")
	ErrInvalidNameFormat  = errors.New("player name format must contain one integer verb")
	ErrPortsExhausted     = errors.New("no peer-to-peer port left")
	ErrPlayerIDsExhausted = errors.New("no player id left")
	ErrUnknownPlayer      = errors.New("unknown player")
)

// Config configures a relay session
type Config struct {
	RelayMode   bool
	LobbyMode   bool
	PeerToPeer  bool
	ServerMode  types.ServerMode
	RelayMaster bool

	// DefaultLobby is the lobby new players join
	DefaultLobby string

	// BasePeerToPeerPort is the first port handed out for player peer servers
	BasePeerToPeerPort int

	// PlayerNameFormat builds player names from player ids ("Player %d")
	PlayerNameFormat string

	// Store persists the roster (nil = MemoryStore)
	Store Store

	// OnMasterChanged is called when a lobby's master changes because the
	// previous one left. The argument is nil when the lobby is now empty.
	OnMasterChanged func(lobby string, master *channel.Player)

	Logger logger.Logger
}

// DefaultConfig returns a relay configuration with peer-to-peer disabled
func DefaultConfig() Config {
	return Config{
		RelayMode:          true,
		ServerMode:         types.ServerModeRelay,
		DefaultLobby:       "default",
		BasePeerToPeerPort: 27000,
		PlayerNameFormat:   "Player %d",
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.BasePeerToPeerPort <= 0 || c.BasePeerToPeerPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidBasePort, c.BasePeerToPeerPort)
	}
	if strings.Count(c.PlayerNameFormat, "%d") != 1 {
		return fmt.Errorf("%w: %q", ErrInvalidNameFormat, c.PlayerNameFormat)
	}
	return nil
}
