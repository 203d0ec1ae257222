package engine

import "fmt"

// Well-known resource types managed by the convergence engine. Providers are
// registered per type; the engine itself never touches the host directly.
const (
	TypePackage  = "package"
	TypeService  = "service"
	TypeCron     = "cron"
	TypeUser     = "user"
	TypeGroup    = "group"
	TypeFile     = "file"
	TypeSetting  = "ini_setting"
	TypeDefaults = "defaults"
)

// Common ensure targets. A resource may also carry a concrete value such as a
// package version; Ensure is compared as an opaque string.
const (
	EnsurePresent   = "present"
	EnsureAbsent    = "absent"
	EnsureDirectory = "directory"
	EnsureRunning   = "running"
	EnsureStopped   = "stopped"
)

// Reference identifies a resource by its (type, title) pair. The pair is
// unique within a catalog.
type Reference struct {
	// Type is the resource type (e.g. "package", "service").
	Type string `json:"type"`

	// Title is the resource title, unique per type (e.g. a package name).
	Title string `json:"title"`
}

// NewReference creates a reference for the given type and title.
func NewReference(resourceType, title string) Reference {
	return Reference{Type: resourceType, Title: title}
}

// String returns the canonical "type[title]" form used in logs and errors.
func (r Reference) String() string {
	return fmt.Sprintf("%s[%s]", r.Type, r.Title)
}

// IsZero reports whether the reference is empty.
func (r Reference) IsZero() bool {
	return r.Type == "" && r.Title == ""
}

// Resource is a single declared unit of desired host state.
type Resource struct {
	// Type is the resource type; it selects the provider at apply time.
	Type string `json:"type"`

	// Title is the resource title, unique per type within a catalog.
	Title string `json:"title"`

	// Ensure is the desired state target (present/absent/running/stopped/
	// a version string/...).
	Ensure string `json:"ensure"`

	// Attributes are the type-specific desired attributes.
	Attributes map[string]any `json:"attributes,omitempty"`

	// Requires lists resources that must be applied before this one.
	Requires []Reference `json:"requires,omitempty"`

	// Notifies lists resources that receive a refresh event when this
	// resource changes. Notify edges never impose ordering on their own.
	Notifies []Reference `json:"notifies,omitempty"`
}

// Ref returns the identity of the resource.
func (r *Resource) Ref() Reference {
	return Reference{Type: r.Type, Title: r.Title}
}

// Require appends ordering edges to the resource and returns it, allowing
// declaration-site chaining.
func (r *Resource) Require(refs ...Reference) *Resource {
	r.Requires = append(r.Requires, refs...)
	return r
}

// Notify appends refresh edges to the resource and returns it.
func (r *Resource) Notify(refs ...Reference) *Resource {
	r.Notifies = append(r.Notifies, refs...)
	return r
}

// Clone returns a copy of the resource whose attribute map and edge slices
// are independent of the original.
func (r *Resource) Clone() *Resource {
	out := &Resource{Type: r.Type, Title: r.Title, Ensure: r.Ensure}
	if r.Attributes != nil {
		out.Attributes = make(map[string]any, len(r.Attributes))
		for k, v := range r.Attributes {
			out.Attributes[k] = v
		}
	}
	out.Requires = append([]Reference(nil), r.Requires...)
	out.Notifies = append([]Reference(nil), r.Notifies...)
	return out
}

// Attribute returns a single desired attribute and whether it is declared.
func (r *Resource) Attribute(name string) (any, bool) {
	v, ok := r.Attributes[name]
	return v, ok
}

// Validate checks that the resource carries a usable identity and state target.
func (r *Resource) Validate() error {
	if r.Type == "" {
		return NewCompileError("resource has empty type", nil).WithCode(ErrCodeValidation)
	}
	if r.Title == "" {
		return NewCompileError("resource has empty title", nil).
			WithCode(ErrCodeValidation).WithResource(r.Type + "[]")
	}
	if r.Ensure == "" {
		return NewCompileError("resource has empty ensure target", nil).
			WithCode(ErrCodeValidation).WithResource(r.Ref().String())
	}
	return nil
}
