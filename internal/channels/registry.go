package channels

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the fixed set of channel adapters, keyed by channel id. It
// is populated once at service start and read-only afterwards.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter; registering a duplicate id is a wiring bug.
func (r *Registry) Register(adapter Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := adapter.ID()
	if _, exists := r.adapters[id]; exists {
		return fmt.Errorf("channel adapter %q already registered", id)
	}
	r.adapters[id] = adapter
	return nil
}

// Get returns the adapter for a channel id.
func (r *Registry) Get(id string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[id]
	if !ok {
		return nil, fmt.Errorf("unknown channel %q", id)
	}
	return adapter, nil
}

// IDs lists the registered channel ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
