package loadbalancer

import (
	"errors"
	"sync"
)

// ErrUnknownBackend is returned by pool operations referencing an id that
// isn't registered.
var ErrUnknownBackend = errors.New("loadbalancer: unknown backend")

// ErrDuplicateBackend is returned by Add when the id is already registered.
var ErrDuplicateBackend = errors.New("loadbalancer: backend already registered")

// BackendPool is the id->Backend mapping the LoadBalancer owns. Structural
// mutations (Add/Remove) are serialized against strategy index rebuilds:
// every mutation notifies registered observers before returning, so a
// newly added or removed backend is reflected in strategy state immediately.
type BackendPool struct {
	mu        sync.RWMutex
	backends  map[string]*Backend
	order     []string // registration order, for stable iteration
	observers []func()
}

// NewBackendPool returns an empty pool.
func NewBackendPool() *BackendPool {
	return &BackendPool{backends: make(map[string]*Backend)}
}

// Subscribe registers fn to run after every Add/Remove. Used by strategies
// that cache derived indices (RoundRobin's cursor list, WeightedRoundRobin's
// quotas) to rebuild them on structural change.
func (p *BackendPool) Subscribe(fn func()) {
	p.mu.Lock()
	p.observers = append(p.observers, fn)
	p.mu.Unlock()
}

// Add registers a new backend. Returns ErrDuplicateBackend if the id is
// already present.
func (p *BackendPool) Add(b *Backend) error {
	p.mu.Lock()
	if _, exists := p.backends[b.id]; exists {
		p.mu.Unlock()
		return ErrDuplicateBackend
	}
	p.backends[b.id] = b
	p.order = append(p.order, b.id)
	p.mu.Unlock()

	p.notify()
	return nil
}

// Remove deletes a backend from the pool. No value survives in strategy
// indices after this returns.
func (p *BackendPool) Remove(id string) error {
	p.mu.Lock()
	if _, exists := p.backends[id]; !exists {
		p.mu.Unlock()
		return ErrUnknownBackend
	}
	delete(p.backends, id)
	for i, existing := range p.order {
		if existing == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	p.mu.Unlock()

	p.notify()
	return nil
}

// Get returns the Backend for id, or false if unregistered.
func (p *BackendPool) Get(id string) (*Backend, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, ok := p.backends[id]
	return b, ok
}

// Snapshot returns backends in stable registration order.
func (p *BackendPool) Snapshot() []*Backend {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Backend, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.backends[id])
	}
	return out
}

// Len returns the number of registered backends.
func (p *BackendPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.backends)
}

// notify runs every subscribed observer. Called outside p.mu so an
// observer may itself call back into read-only pool accessors.
func (p *BackendPool) notify() {
	p.mu.RLock()
	observers := append([]func(){}, p.observers...)
	p.mu.RUnlock()
	for _, fn := range observers {
		fn()
	}
}
