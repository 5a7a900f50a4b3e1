package channel

import (
	"fmt"

	"objectnet/objectnet-go/pkg/transport"
	"objectnet/objectnet-go/pkg/types"
	"objectnet/objectnet-go/pkg/wire"
)

// plainWelcomeSize is the body size of a non-relay ClientConnected
const plainWelcomeSize = 8

func (c *Channel) allocateConnectionID() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextConnectionID++
	return c.nextConnectionID
}

// serverConnected registers a newly accepted endpoint and bootstraps it
func (c *Channel) serverConnected(handle transport.Client) {
	entry := newClient(c, handle, c.allocateConnectionID())
	c.registry.add(entry)
	c.stats.ClientConnected()
	c.stats.SetActiveClients(uint64(c.registry.count()))

	c.logger.Info("Channel %s: client %d connected from %s:%d",
		c.id, entry.ConnectionID(), entry.IP(), entry.Port())

	if err := c.bootstrap(entry); err != nil {
		c.reportError(err)
		c.rejectClient(entry)
		return
	}

	if cb := c.callbacks.OnClientConnected; cb != nil {
		cb(entry)
	}
}

// rejectClient drops an entry whose bootstrap failed and closes its handle.
// The disconnect the transport raises afterwards finds no entry.
func (c *Channel) rejectClient(entry *Client) {
	c.registry.remove(entry.Transport())
	if c.session.RelayMode() {
		c.session.UnregisterPlayer(entry.ConnectionID())
	}
	c.stats.ClientDisconnected()
	c.stats.SetActiveClients(uint64(c.registry.count()))

	c.logger.Warn("Channel %s: dropping client %d after failed bootstrap", c.id, entry.ConnectionID())
	if err := entry.Transport().Close(); err != nil {
		c.logger.Debug("Channel %s: close client %d: %v", c.id, entry.ConnectionID(), err)
	}
}

// bootstrap sends a new client its identity and, with peer-to-peer enabled,
// the peers it may connect to directly. Existing clients are not told about
// the newcomer here; it announces itself.
func (c *Channel) bootstrap(entry *Client) error {
	welcome := wire.ClientConnected{
		ConnectionID:      entry.ConnectionID(),
		SessionInstanceID: c.session.SessionInstanceID(),
	}

	if !c.session.RelayMode() {
		return c.sendInternal(entry, wire.EventClientConnected, welcome.Encode())
	}

	player, err := c.session.RegisterPlayer(entry.ConnectionID(), entry.IP(), entry.Port())
	if err != nil {
		return fmt.Errorf("register player for client %d: %w", entry.ConnectionID(), err)
	}

	welcome.Relay = true
	welcome.PlayerID = player.ID
	welcome.PlayerName = player.Name
	welcome.IsMaster = player.IsMaster
	welcome.LobbyMode = c.session.LobbyModeEnabled()
	welcome.ServerMode = c.session.ServerMode()
	if err := c.sendInternal(entry, wire.EventClientConnected, welcome.Encode()); err != nil {
		return err
	}

	if !c.session.PeerToPeerEnabled() {
		return nil
	}

	for _, peer := range c.session.AvailablePeers(player) {
		msg := wire.CreateNetworkPeer{
			PlayerID:  peer.ID,
			IP:        peer.IP,
			Port:      int32(peer.PeerToPeerPort),
			Available: peer.PeerAvailable,
		}
		if err := c.sendInternal(entry, wire.EventCreateNetworkPeer, msg.Encode()); err != nil {
			return err
		}
	}

	port, err := c.session.AllocatePeerToPeerPort(player)
	if err != nil {
		return fmt.Errorf("allocate peer-to-peer port for player %d: %w", player.ID, err)
	}
	assign := wire.InitializePeerToPeer{PlayerID: player.ID, Port: int32(port)}
	return c.sendInternal(entry, wire.EventInitializePeerToPeer, assign.Encode())
}

func (c *Channel) sendInternal(entry *Client, code wire.EventCode, body []byte) error {
	if err := entry.SendEvent(code, body, types.DeliveryReliable); err != nil {
		return fmt.Errorf("send %s to client %d: %w", code, entry.ConnectionID(), err)
	}
	return nil
}

// serverDisconnected removes the entry of a departed endpoint
func (c *Channel) serverDisconnected(handle transport.Client) {
	entry := c.registry.remove(handle)
	if entry != nil {
		if c.session.RelayMode() {
			c.session.UnregisterPlayer(entry.ConnectionID())
		}
		c.stats.ClientDisconnected()
		c.stats.SetActiveClients(uint64(c.registry.count()))
		c.logger.Info("Channel %s: client %d disconnected", c.id, entry.ConnectionID())
	}

	if cb := c.callbacks.OnClientDisconnected; cb != nil {
		cb(entry)
	}
}

// clientConnected registers the server endpoint of a client channel
func (c *Channel) clientConnected(handle transport.Client) {
	entry := newClient(c, handle, c.ConnectionID())
	c.registry.add(entry)
	c.wasConnected.Store(true)
	c.stats.ClientConnected()
	c.stats.SetActiveClients(uint64(c.registry.count()))

	if cb := c.callbacks.OnConnected; cb != nil {
		cb(entry)
	}
}

// clientDisconnected removes the server endpoint of a client channel
func (c *Channel) clientDisconnected(handle transport.Client) {
	entry := c.registry.remove(handle)
	if entry != nil {
		c.stats.ClientDisconnected()
		c.stats.SetActiveClients(uint64(c.registry.count()))
		c.logger.Info("Channel %s: disconnected from server", c.id)
	}

	if cb := c.callbacks.OnDisconnected; cb != nil {
		cb(entry)
	}
}

// messageReceived decomposes data and hands it to the message callback.
// Messages from handles that are not registered are dropped before they are
// decoded.
func (c *Channel) messageReceived(handle transport.Client, data []byte) {
	c.dumpFrame("rx", data)

	sender := c.registry.get(handle)
	if sender == nil {
		c.stats.InvalidFrame()
		return
	}

	payload, id, err := c.codec.Decompose(data)
	if err != nil {
		c.stats.BadFrame()
		c.reportError(err)
		return
	}
	c.stats.FrameRx()

	origin := sender
	relay := c.session.RelayMode()
	if relay && c.session.IsRelayMaster() {
		if byID := c.registry.byConnectionID(id); byID != nil {
			origin = byID
		}
	}

	if c.cfg.Direction == DirectionClient {
		c.applyInternal(payload)
	}

	stream := payload
	if relay {
		stream = data
	}
	if cb := c.callbacks.OnMessageReceived; cb != nil {
		cb(origin, stream)
	}
}

// applyInternal acts on bootstrap messages sent by the server. The message
// is still delivered to the message callback afterwards.
func (c *Channel) applyInternal(payload []byte) {
	code, body, err := wire.SplitEventCode(payload)
	if err != nil || !code.IsInternal() {
		return
	}

	switch code {
	case wire.EventClientConnected:
		msg, err := wire.DecodeClientConnected(body, len(body) > plainWelcomeSize)
		if err != nil {
			c.reportError(types.InvalidPacketError("client connected", err))
			return
		}
		c.SetConnectionID(msg.ConnectionID)
		c.welcome.Store(&msg)
		c.logger.Info("Channel %s: assigned connection id %d (session %d)",
			c.id, msg.ConnectionID, msg.SessionInstanceID)

	case wire.EventCreateNetworkPeer:
		msg, err := wire.DecodeCreateNetworkPeer(body)
		if err != nil {
			c.reportError(types.InvalidPacketError("create network peer", err))
			return
		}
		if tr := c.currentTransport(); tr != nil {
			peer := &transport.Peer{ID: msg.PlayerID, IP: msg.IP, Port: int(msg.Port), Available: msg.Available}
			if err := tr.RegisterPeer(peer); err != nil {
				c.reportError(err)
			}
		}

	case wire.EventInitializePeerToPeer:
		msg, err := wire.DecodeInitializePeerToPeer(body)
		if err != nil {
			c.reportError(types.InvalidPacketError("initialize peer to peer", err))
			return
		}
		if tr := c.currentTransport(); tr != nil {
			if err := tr.InitializePeerToPeerServer(int(msg.Port)); err != nil {
				c.reportError(err)
			}
		}
	}
}
