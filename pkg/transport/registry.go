package transport

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrUnknownTransport = errors.New("unknown transport type")

// Factory constructs a transport from options
type Factory func(opts Options) (Transport, error)

var (
	factories   = make(map[Type]Factory)
	factoriesMu sync.RWMutex
)

func init() {
	Register(TypeTCP, func(opts Options) (Transport, error) { return NewTCPTransport(opts), nil })
	Register(TypeUDP, func(opts Options) (Transport, error) { return NewUDPTransport(opts), nil })
	Register(TypeQUIC, func(opts Options) (Transport, error) { return NewQUICTransport(opts) })
	Register(TypeMemory, func(opts Options) (Transport, error) { return NewMemoryTransport(opts), nil })
}

// Register makes a transport constructible by name. Registering an existing
// name replaces the previous factory.
func Register(t Type, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[t] = factory
}

// Unregister removes a factory
func Unregister(t Type) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	delete(factories, t)
}

// New constructs the transport registered under t
func New(t Type, opts Options) (Transport, error) {
	factoriesMu.RLock()
	factory, ok := factories[t]
	factoriesMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, t)
	}
	tr, err := factory(opts)
	if err != nil {
		return nil, fmt.Errorf("create %s transport: %w", t, err)
	}
	return tr, nil
}

// Registered lists the known transport types in sorted order
func Registered() []Type {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	out := make([]Type, 0, len(factories))
	for t := range factories {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
