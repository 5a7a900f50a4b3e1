// Package objectnet is the entry point of the network core. A Manager owns
// a set of channels and pumps them from one goroutine.
package objectnet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"objectnet/objectnet-go/pkg/channel"
	"objectnet/objectnet-go/pkg/internal/logger"
)

var (
	ErrChannelExists   = errors.New("channel already exists")
	ErrChannelNotFound = errors.New("channel not found")
)

// DefaultProcessInterval is the tick used by Run when none is given
const DefaultProcessInterval = 10 * time.Millisecond

// Manager is the root object for ObjectNet operations
// It manages channels and provides the main API entry point
type Manager struct {
	channels map[string]*channel.Channel
	mu       sync.RWMutex
	logger   logger.Logger
}

// NewManager creates a new manager logging through the default logger
func NewManager() *Manager {
	return NewManagerWithLogger(logger.GetDefault())
}

// NewManagerWithLogger creates a new manager with custom logger
func NewManagerWithLogger(log Logger) *Manager {
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	return &Manager{
		channels: make(map[string]*channel.Channel),
		logger:   log,
	}
}

// AddChannel creates and starts a channel. Channels without a logger log
// through the manager's.
func (m *Manager) AddChannel(cfg channel.Config) (*channel.Channel, error) {
	if cfg.Logger == nil {
		cfg.Logger = m.logger
	}

	ch, err := channel.New(cfg)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.channels[ch.ID()]; exists {
		return nil, fmt.Errorf("%w: %s", ErrChannelExists, ch.ID())
	}

	if err := ch.Start(); err != nil {
		return nil, fmt.Errorf("failed to start channel %s: %w", ch.ID(), err)
	}

	m.channels[ch.ID()] = ch
	m.logger.Info("Manager: Added channel %s", ch.ID())
	return ch, nil
}

// RemoveChannel stops a channel and forgets it
func (m *Manager) RemoveChannel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, exists := m.channels[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrChannelNotFound, id)
	}

	if err := ch.Stop(); err != nil {
		m.logger.Error("Error closing channel %s: %v", id, err)
	}

	delete(m.channels, id)
	m.logger.Info("Manager: Removed channel %s", id)
	return nil
}

// GetChannel returns a channel by ID
func (m *Manager) GetChannel(id string) (*channel.Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ch, exists := m.channels[id]
	return ch, exists
}

// Channels returns every channel ordered by ID
func (m *Manager) Channels() []*channel.Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*channel.Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Process pumps every channel once. Channel callbacks run on the calling
// goroutine and may add or remove channels.
func (m *Manager) Process() {
	for _, ch := range m.Channels() {
		ch.Process()
	}
}

// Run calls Process every interval until ctx is done
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultProcessInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Process()
		}
	}
}

// Shutdown stops every channel
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Info("Manager: Shutting down")

	var errs []error
	for id, ch := range m.channels {
		if err := ch.Stop(); err != nil {
			m.logger.Error("Error closing channel %s: %v", id, err)
			errs = append(errs, fmt.Errorf("channel %s: %w", id, err))
		}
	}

	m.channels = make(map[string]*channel.Channel)
	m.logger.Info("Manager: Shutdown complete")
	return errors.Join(errs...)
}

// ChannelCount returns the number of channels
func (m *Manager) ChannelCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.channels)
}

// SetLogger sets the logger handed to channels added from now on
func (m *Manager) SetLogger(log Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger = logger.OrNoOp(log)
}
