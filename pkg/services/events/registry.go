package events

import (
	"sync"

	"github.com/google/uuid"
)

// Registry maps subscription ids to their live consumers. It replaces the
// global subscription map with an explicitly owned object whose lifecycle the
// bus controls.
type Registry struct {
	mu        sync.RWMutex
	consumers map[uuid.UUID]*consumer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{consumers: make(map[uuid.UUID]*consumer)}
}

// Register stores a consumer under the id and returns the one it displaced,
// if any. The swap is atomic: no window where both or neither are reachable.
func (r *Registry) Register(id uuid.UUID, c *consumer) *consumer {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.consumers[id]
	r.consumers[id] = c
	return prev
}

// Lookup returns the live consumer for the id, nil if none.
func (r *Registry) Lookup(id uuid.UUID) *consumer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.consumers[id]
}

// Unregister removes and returns the consumer for the id, nil if none.
func (r *Registry) Unregister(id uuid.UUID) *consumer {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.consumers[id]
	delete(r.consumers, id)
	return c
}

// All returns a snapshot of the live consumers.
func (r *Registry) All() []*consumer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]*consumer, 0, len(r.consumers))
	for _, c := range r.consumers {
		all = append(all, c)
	}
	return all
}

// Drain empties the registry and returns what it held.
func (r *Registry) Drain() []*consumer {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]*consumer, 0, len(r.consumers))
	for _, c := range r.consumers {
		all = append(all, c)
	}
	r.consumers = make(map[uuid.UUID]*consumer)
	return all
}
