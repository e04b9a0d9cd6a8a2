package engine

import (
	"sync"
)

// Registry hands out one Engine per user. Engines live for the life of the
// process unless forgotten.
type Registry struct {
	deps Dependencies
	cfg  Config

	mu      sync.Mutex
	engines map[string]*Engine
}

// NewRegistry creates a registry sharing deps across all engines.
func NewRegistry(deps Dependencies, cfg Config) *Registry {
	deps.withDefaults()
	return &Registry{
		deps:    deps,
		cfg:     cfg,
		engines: make(map[string]*Engine),
	}
}

// For returns the engine of userID, creating it on first use.
func (r *Registry) For(userID string) (*Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.engines[userID]; ok {
		return e, nil
	}
	e, err := New(userID, r.deps, r.cfg)
	if err != nil {
		return nil, err
	}
	r.engines[userID] = e
	return e, nil
}

// Forget drops the cached engine so the next call reloads from storage.
func (r *Registry) Forget(userID string) {
	r.mu.Lock()
	delete(r.engines, userID)
	r.mu.Unlock()
}

// Len returns the number of live engines.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.engines)
}
