package channel

import (
	"sort"
	"sync"

	"objectnet/objectnet-go/pkg/transport"
)

// registry maps transport handles to client entries
type registry struct {
	clients map[transport.Client]*Client // Key: transport handle
	mu      sync.RWMutex
}

func newRegistry() *registry {
	return &registry{
		clients: make(map[transport.Client]*Client),
	}
}

// add registers client under its handle, replacing any previous entry
func (r *registry) add(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[client.handle] = client
}

// remove deletes the entry for handle and returns it, or nil when absent
func (r *registry) remove(handle transport.Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	client, ok := r.clients[handle]
	if !ok {
		return nil
	}
	delete(r.clients, handle)
	return client
}

// get returns the entry bound to handle
func (r *registry) get(handle transport.Client) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clients[handle]
}

// byConnectionID scans for the entry with id
func (r *registry) byConnectionID(id int32) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, client := range r.clients {
		if client.ConnectionID() == id {
			return client
		}
	}
	return nil
}

// all returns every entry ordered by connection id
func (r *registry) all() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Client, 0, len(r.clients))
	for _, client := range r.clients {
		out = append(out, client)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectionID() < out[j].ConnectionID() })
	return out
}

func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

func (r *registry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients = make(map[transport.Client]*Client)
}
