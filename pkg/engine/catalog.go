package engine

import "fmt"

// Catalog is the complete compiled set of resources for one convergence run.
// It preserves declaration order and enforces (type, title) uniqueness through
// a compile-scoped identity registry.
//
// A Catalog is built fresh each run and is not safe for concurrent mutation.
type Catalog struct {
	resources []*Resource
	index     map[Reference]int
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		resources: make([]*Resource, 0),
		index:     make(map[Reference]int),
	}
}

// Add declares a resource in the catalog. Re-declaring an already present
// (type, title) identity is a compile error; use AddUnlessDeclared for the
// guarded form.
func (c *Catalog) Add(res *Resource) error {
	if res == nil {
		return NewCompileError("cannot add nil resource", nil).WithCode(ErrCodeValidation)
	}
	if err := res.Validate(); err != nil {
		return err
	}

	ref := res.Ref()
	if _, exists := c.index[ref]; exists {
		return NewCompileError(fmt.Sprintf("duplicate resource declaration: %s", ref), nil).
			WithCode(ErrCodeDuplicateResource).
			WithResource(ref.String())
	}

	c.index[ref] = len(c.resources)
	c.resources = append(c.resources, res)
	return nil
}

// AddUnlessDeclared declares a resource only if its identity is not already
// present, e.g. because a collaborating module declared it first. It returns
// true when the resource was added and false when the existing declaration
// was kept.
func (c *Catalog) AddUnlessDeclared(res *Resource) (bool, error) {
	if res == nil {
		return false, NewCompileError("cannot add nil resource", nil).WithCode(ErrCodeValidation)
	}
	if c.Declared(res.Ref()) {
		return false, nil
	}
	if err := c.Add(res); err != nil {
		return false, err
	}
	return true, nil
}

// Clone returns a deep copy of the catalog. Declaration order and positions
// are preserved and the copied resources share no state with the originals,
// so a compiler can build on the copy without mutating the caller's view.
func (c *Catalog) Clone() *Catalog {
	out := &Catalog{
		resources: make([]*Resource, len(c.resources)),
		index:     make(map[Reference]int, len(c.index)),
	}
	for i, res := range c.resources {
		out.resources[i] = res.Clone()
		out.index[res.Ref()] = i
	}
	return out
}

// Declared reports whether a resource with the given identity is present.
func (c *Catalog) Declared(ref Reference) bool {
	_, ok := c.index[ref]
	return ok
}

// Get returns the resource with the given identity.
func (c *Catalog) Get(ref Reference) (*Resource, bool) {
	i, ok := c.index[ref]
	if !ok {
		return nil, false
	}
	return c.resources[i], true
}

// Position returns the declaration index of a resource. Declaration order is
// the stable tie-break used by the resolver.
func (c *Catalog) Position(ref Reference) (int, bool) {
	i, ok := c.index[ref]
	return i, ok
}

// Resources returns all resources in declaration order.
func (c *Catalog) Resources() []*Resource {
	return c.resources
}

// Len returns the number of declared resources.
func (c *Catalog) Len() int {
	return len(c.resources)
}

// ValidateReferences checks that every requires and notifies edge targets a
// declared resource. An edge to an undeclared identity is a compile error.
func (c *Catalog) ValidateReferences() error {
	for _, res := range c.resources {
		for _, ref := range res.Requires {
			if !c.Declared(ref) {
				return NewCompileError(
					fmt.Sprintf("%s requires undeclared resource %s", res.Ref(), ref), nil).
					WithCode(ErrCodeUnresolvedReference).
					WithResource(res.Ref().String())
			}
		}
		for _, ref := range res.Notifies {
			if !c.Declared(ref) {
				return NewCompileError(
					fmt.Sprintf("%s notifies undeclared resource %s", res.Ref(), ref), nil).
					WithCode(ErrCodeUnresolvedReference).
					WithResource(res.Ref().String())
			}
		}
	}
	return nil
}
