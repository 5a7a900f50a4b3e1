package transport

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"objectnet/objectnet-go/pkg/types"
)

var (
	ErrPeerNotFound = errors.New("peer not found")
	ErrNilPeer      = errors.New("peer is nil")
	ErrInvalidPort  = errors.New("invalid port")
)

// peerTable tracks peers reachable directly from this transport
type peerTable struct {
	mu      sync.RWMutex
	peers   map[uint16]*Peer
	p2pPort int
}

func newPeerTable() *peerTable {
	return &peerTable{peers: make(map[uint16]*Peer)}
}

// RegisterPeer adds or replaces a peer
func (t *peerTable) RegisterPeer(peer *Peer) error {
	if peer == nil {
		return ErrNilPeer
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers[peer.ID] = peer
	return nil
}

// UnregisterPeer removes peer
func (t *peerTable) UnregisterPeer(peer *Peer) error {
	if peer == nil {
		return ErrNilPeer
	}
	return t.UnregisterPeerByID(peer.ID)
}

// UnregisterPeerByID removes the peer with id
func (t *peerTable) UnregisterPeerByID(id uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.peers[id]; !ok {
		return fmt.Errorf("%w: %d", ErrPeerNotFound, id)
	}
	delete(t.peers, id)
	return nil
}

// GetPeer returns the peer with id
func (t *peerTable) GetPeer(id uint16) (*Peer, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	peer, ok := t.peers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrPeerNotFound, id)
	}
	return peer, nil
}

// InitializePeerToPeerServer records the port direct peers connect to
func (t *peerTable) InitializePeerToPeerServer(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.p2pPort = port
	return nil
}

// PeerToPeerPort returns the port set by InitializePeerToPeerServer
func (t *peerTable) PeerToPeerPort() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.p2pPort
}

// Peers returns the registered peers ordered by id
func (t *peerTable) Peers() []*Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Peer, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// noPeers rejects every peer operation. Remote endpoint handles and relayed
// handles embed it.
type noPeers struct{}

// RegisterPeer is unsupported
func (noPeers) RegisterPeer(*Peer) error { return types.UnsupportedError("RegisterPeer") }

// UnregisterPeer is unsupported
func (noPeers) UnregisterPeer(*Peer) error { return types.UnsupportedError("UnregisterPeer") }

// UnregisterPeerByID is unsupported
func (noPeers) UnregisterPeerByID(uint16) error {
	return types.UnsupportedError("UnregisterPeerByID")
}

// GetPeer is unsupported
func (noPeers) GetPeer(uint16) (*Peer, error) { return nil, types.UnsupportedError("GetPeer") }

// InitializePeerToPeerServer is unsupported
func (noPeers) InitializePeerToPeerServer(int) error {
	return types.UnsupportedError("InitializePeerToPeerServer")
}
