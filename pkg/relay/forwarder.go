package relay

import (
	"errors"
	"fmt"
	"sync/atomic"

	"objectnet/objectnet-go/pkg/channel"
	"objectnet/objectnet-go/pkg/internal/logger"
	"objectnet/objectnet-go/pkg/types"
	"objectnet/objectnet-go/pkg/wire"
)

var (
	ErrUnknownTarget = errors.New("target connection not registered")
	ErrCrossLobby    = errors.New("target is in another lobby")
)

// Forwarder relays frames received by a relay server channel. A frame whose
// header carries the sender's own connection id is broadcast to the rest of
// the sender's lobby; any other id addresses one player. Frames are written
// verbatim.
type Forwarder struct {
	session *Session
	mode    types.DeliveryMode
	log     logger.Logger

	forwarded atomic.Uint64
	dropped   atomic.Uint64
}

// NewForwarder creates a forwarder that writes with mode
func NewForwarder(session *Session, mode types.DeliveryMode, log logger.Logger) *Forwarder {
	return &Forwarder{
		session: session,
		mode:    mode,
		log:     logger.OrNoOp(log).WithField("component", "forwarder"),
	}
}

// OnMessage has the signature of channel.Callbacks.OnMessageReceived. The
// channel must run in relay mode so stream is the raw frame.
func (f *Forwarder) OnMessage(origin *channel.Client, stream []byte) {
	if _, err := f.Forward(origin, stream); err != nil {
		f.log.Warn("Forward from client %d failed: %v", origin.ConnectionID(), err)
	}
}

// Forward relays frame from origin and returns how many clients it was
// written to
func (f *Forwarder) Forward(origin *channel.Client, frame []byte) (int, error) {
	if origin == nil || origin.Channel() == nil {
		f.dropped.Add(1)
		return 0, types.ConfigurationError("forward", channel.ErrNilClient)
	}
	ch := origin.Channel()

	target, err := wire.PeekConnectionID(frame)
	if err != nil {
		f.dropped.Add(1)
		return 0, err
	}

	lobby := f.lobbyOf(origin.ConnectionID())
	if target > 0 && target != origin.ConnectionID() {
		dest := ch.GetConnectedClient(target)
		if dest == nil {
			f.dropped.Add(1)
			return 0, fmt.Errorf("%w: %d", ErrUnknownTarget, target)
		}
		if f.lobbyOf(target) != lobby {
			f.dropped.Add(1)
			return 0, fmt.Errorf("%w: %d", ErrCrossLobby, target)
		}
		if err := ch.TransmitTo(frame, f.mode, dest.Transport()); err != nil {
			return 0, err
		}
		f.forwarded.Add(1)
		return 1, nil
	}

	sent := 0
	var firstErr error
	for _, client := range ch.Clients() {
		id := client.ConnectionID()
		if id == origin.ConnectionID() || f.lobbyOf(id) != lobby {
			continue
		}
		if err := ch.TransmitTo(frame, f.mode, client.Transport()); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		sent++
	}
	f.forwarded.Add(uint64(sent))
	return sent, firstErr
}

// lobbyOf returns the lobby of a connection; connections without a player
// share the empty lobby
func (f *Forwarder) lobbyOf(connectionID int32) string {
	p, ok := f.session.Player(connectionID)
	if !ok {
		return ""
	}
	return p.Lobby
}

// Forwarded returns the number of frames written to clients
func (f *Forwarder) Forwarded() uint64 { return f.forwarded.Load() }

// Dropped returns the number of frames that could not be routed
func (f *Forwarder) Dropped() uint64 { return f.dropped.Load() }
