package transport

import (
	"sync"

	"objectnet/objectnet-go/pkg/internal/queue"
)

type eventKind int

const (
	eventConnected eventKind = iota
	eventDisconnected
	eventMessage
)

type event struct {
	kind   eventKind
	client Client
	data   []byte
}

// dispatcher queues notifications from I/O goroutines and delivers them to
// the configured callbacks when drained.
type dispatcher struct {
	events *queue.Queue[event]

	mu             sync.RWMutex
	onConnected    ConnectHandler
	onDisconnected DisconnectHandler
	onMessage      MessageHandler
}

func newDispatcher() *dispatcher {
	return &dispatcher{events: queue.New[event]()}
}

// Configure registers the notification callbacks
func (d *dispatcher) Configure(onConnected ConnectHandler, onDisconnected DisconnectHandler, onMessage MessageHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onConnected = onConnected
	d.onDisconnected = onDisconnected
	d.onMessage = onMessage
}

func (d *dispatcher) connected(c Client) {
	d.events.Push(event{kind: eventConnected, client: c})
}

func (d *dispatcher) disconnected(c Client) {
	d.events.Push(event{kind: eventDisconnected, client: c})
}

func (d *dispatcher) message(c Client, data []byte) {
	d.events.Push(event{kind: eventMessage, client: c, data: data})
}

// pending returns the number of undelivered notifications
func (d *dispatcher) pending() int {
	return d.events.Len()
}

// dispatch delivers every queued notification in arrival order
func (d *dispatcher) dispatch() {
	batch := d.events.Drain()
	if len(batch) == 0 {
		return
	}

	d.mu.RLock()
	onConnected, onDisconnected, onMessage := d.onConnected, d.onDisconnected, d.onMessage
	d.mu.RUnlock()

	for _, ev := range batch {
		switch ev.kind {
		case eventConnected:
			if onConnected != nil {
				onConnected(ev.client)
			}
		case eventDisconnected:
			if onDisconnected != nil {
				onDisconnected(ev.client)
			}
		case eventMessage:
			if onMessage != nil {
				onMessage(ev.client, ev.data)
			}
		}
	}
}
