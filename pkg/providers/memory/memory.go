// Package memory provides in-memory resource providers and a provider
// registry. The providers hold simulated host state, making them suitable for
// tests and for local dry runs of the convergence engine; the real OS-backed
// providers are external collaborators.
package memory

import (
	"context"
	"sync"

	"github.com/openconverge/openconverge/pkg/engine"
)

// Provider is an in-memory implementation of engine.Provider and
// engine.Refresher for one resource type. It is safe for concurrent use
// across distinct resource identities.
type Provider struct {
	resourceType string

	mu        sync.Mutex
	state     map[engine.Reference]*engine.CurrentState
	applies   map[engine.Reference]int
	refreshes map[engine.Reference]int
	failures  map[engine.Reference]error
}

// NewProvider creates an in-memory provider for a resource type. Resources
// without seeded state read back as absent.
func NewProvider(resourceType string) *Provider {
	return &Provider{
		resourceType: resourceType,
		state:        make(map[engine.Reference]*engine.CurrentState),
		applies:      make(map[engine.Reference]int),
		refreshes:    make(map[engine.Reference]int),
		failures:     make(map[engine.Reference]error),
	}
}

// Type returns the resource type this provider manages.
func (p *Provider) Type() string {
	return p.resourceType
}

// Seed sets the simulated current state for a resource identity.
func (p *Provider) Seed(ref engine.Reference, state *engine.CurrentState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state[ref] = cloneState(state)
}

// SeedSatisfied seeds a resource's state to exactly its declared desired
// state, so a convergence run reports it unchanged.
func (p *Provider) SeedSatisfied(res *engine.Resource) {
	attrs := make(map[string]any, len(res.Attributes))
	for k, v := range res.Attributes {
		attrs[k] = v
	}
	p.Seed(res.Ref(), &engine.CurrentState{Ensure: res.Ensure, Attributes: attrs})
}

// FailWith makes Apply fail for the given identity.
func (p *Provider) FailWith(ref engine.Reference, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[ref] = err
}

// Read returns the simulated current state, or absent when never seeded.
func (p *Provider) Read(_ context.Context, res *engine.Resource) (*engine.CurrentState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if state, ok := p.state[res.Ref()]; ok {
		return cloneState(state), nil
	}
	return &engine.CurrentState{Ensure: engine.EnsureAbsent}, nil
}

// Apply records the resource's desired state as the new current state.
func (p *Provider) Apply(_ context.Context, res *engine.Resource) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ref := res.Ref()
	if err := p.failures[ref]; err != nil {
		return err
	}

	attrs := make(map[string]any, len(res.Attributes))
	for k, v := range res.Attributes {
		attrs[k] = v
	}
	p.state[ref] = &engine.CurrentState{Ensure: res.Ensure, Attributes: attrs}
	p.applies[ref]++
	return nil
}

// Refresh counts refresh deliveries per identity.
func (p *Provider) Refresh(_ context.Context, res *engine.Resource) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshes[res.Ref()]++
	return nil
}

// ApplyCount returns how many times Apply mutated the given identity.
func (p *Provider) ApplyCount(ref engine.Reference) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.applies[ref]
}

// RefreshCount returns how many refreshes the given identity received.
func (p *Provider) RefreshCount(ref engine.Reference) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshes[ref]
}

// TotalApplies returns the number of mutations across all identities.
func (p *Provider) TotalApplies() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, n := range p.applies {
		total += n
	}
	return total
}

func cloneState(state *engine.CurrentState) *engine.CurrentState {
	if state == nil {
		return nil
	}
	attrs := make(map[string]any, len(state.Attributes))
	for k, v := range state.Attributes {
		attrs[k] = v
	}
	return &engine.CurrentState{Ensure: state.Ensure, Attributes: attrs}
}

// Registry is an in-memory provider registry keyed by resource type.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]engine.Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]engine.Provider)}
}

// NewRegistryFor creates a registry with a fresh in-memory provider for each
// given resource type.
func NewRegistryFor(resourceTypes ...string) *Registry {
	r := NewRegistry()
	for _, t := range resourceTypes {
		r.Register(NewProvider(t))
	}
	return r
}

// Register adds a provider, replacing any previous provider of the same type.
func (r *Registry) Register(p engine.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Type()] = p
}

// Provider returns the provider for a resource type, or a
// provider-unavailable error when none is registered.
func (r *Registry) Provider(resourceType string) (engine.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[resourceType]
	if !ok {
		return nil, engine.NewProviderUnavailableError(resourceType)
	}
	return p, nil
}

// Memory returns the registered in-memory provider for a type, for test
// inspection. It returns nil when the type is unregistered or backed by a
// different implementation.
func (r *Registry) Memory(resourceType string) *Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.providers[resourceType].(*Provider); ok {
		return p
	}
	return nil
}
