package aipostblog

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// AdapterFactory constructs the adapter for one backend. It fails when the
// backend is not configured (e.g. a missing credential).
type AdapterFactory func() (Provider, error)

// Registry maps models to backends and backends to lazily built adapters.
// Adapters are cached for the lifetime of the registry.
type Registry struct {
	catalog   *Catalog
	factories map[string]AdapterFactory

	mu       sync.RWMutex
	adapters map[string]Provider
	group    singleflight.Group
}

// NewRegistry creates a registry. factories is keyed by backend id.
func NewRegistry(catalog *Catalog, factories map[string]AdapterFactory) *Registry {
	f := make(map[string]AdapterFactory, len(factories))
	for k, v := range factories {
		f[k] = v
	}
	return &Registry{
		catalog:   catalog,
		factories: f,
		adapters:  make(map[string]Provider),
	}
}

// NewStaticRegistry creates a registry over already constructed adapters,
// keyed by their Name.
func NewStaticRegistry(catalog *Catalog, providers ...Provider) *Registry {
	factories := make(map[string]AdapterFactory, len(providers))
	for _, p := range providers {
		factories[p.Name()] = func() (Provider, error) { return p, nil }
	}
	return NewRegistry(catalog, factories)
}

// Catalog returns the model catalog.
func (r *Registry) Catalog() *Catalog { return r.catalog }

// Resolve returns the adapter owning a model.
func (r *Registry) Resolve(model string) (Provider, error) {
	desc, ok := r.catalog.Lookup(model)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
	return r.ResolveBackend(desc.Backend)
}

// ResolveBackend returns the adapter for a backend, constructing it on first use.
func (r *Registry) ResolveBackend(backend string) (Provider, error) {
	r.mu.RLock()
	p, ok := r.adapters[backend]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	factory, ok := r.factories[backend]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not configured", ErrUnknownBackend, backend)
	}

	v, err, _ := r.group.Do(backend, func() (any, error) {
		r.mu.RLock()
		cached, ok := r.adapters[backend]
		r.mu.RUnlock()
		if ok {
			return cached, nil
		}

		built, err := factory()
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.adapters[backend] = built
		r.mu.Unlock()
		return built, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrUnknownBackend, backend, err)
	}
	return v.(Provider), nil
}
