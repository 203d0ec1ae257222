package engine

import (
	"context"
	"reflect"
)

// CurrentState is the live host state of one resource as observed by its
// provider.
type CurrentState struct {
	// Ensure is the observed state target (present/absent/running/...). A
	// resource that does not exist on the host reports EnsureAbsent.
	Ensure string `json:"ensure"`

	// Attributes are the observed type-specific attributes.
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Provider is the per-resource-type capability the engine converges through.
// Implementations live outside the engine; they are the only components that
// touch the host.
//
// Apply must be idempotent: applying an already-satisfied resource must be a
// no-op with no observable side effects. Providers for different identities
// must be independently safe to invoke concurrently.
type Provider interface {
	// Type returns the resource type this provider manages.
	Type() string

	// Read returns the current host state for the resource identity.
	Read(ctx context.Context, res *Resource) (*CurrentState, error)

	// Apply brings the resource to its desired state.
	Apply(ctx context.Context, res *Resource) error
}

// Refresher is implemented by providers whose resources can react to refresh
// events (e.g. a service restart). Refresh is distinct from Apply and is
// delivered at most once per resource per run.
type Refresher interface {
	Refresh(ctx context.Context, res *Resource) error
}

// Registry resolves the provider for a resource type. A missing provider is
// reported as a provider-unavailable error and fails only the resources of
// that type.
type Registry interface {
	Provider(resourceType string) (Provider, error)
}

// Satisfied reports whether the observed state already meets the declared
// desired state: the ensure targets match and every declared attribute equals
// its observed value. Observed attributes the declaration does not mention are
// ignored.
func Satisfied(res *Resource, current *CurrentState) bool {
	if current == nil {
		return false
	}
	if res.Ensure != current.Ensure {
		return false
	}
	for name, want := range res.Attributes {
		got, ok := current.Attributes[name]
		if !ok || !reflect.DeepEqual(want, got) {
			return false
		}
	}
	return true
}
