package engine

// Well-known fact names consumed by catalog compilation.
const (
	FactKernel   = "kernel"
	FactOSFamily = "os_family"
	FactFQDN     = "fqdn"
)

// Kernel and OS family values the compiler branches on.
const (
	KernelLinux    = "Linux"
	OSFamilyRedHat = "RedHat"
	OSFamilyDebian = "Debian"
)

// FactSet is an immutable mapping from fact name to string value, supplied
// once per run by an external fact provider.
type FactSet struct {
	facts map[string]string
}

// NewFactSet copies the given facts into an immutable set.
func NewFactSet(facts map[string]string) FactSet {
	copied := make(map[string]string, len(facts))
	for k, v := range facts {
		copied[k] = v
	}
	return FactSet{facts: copied}
}

// Get returns the value of a fact, or the empty string when absent.
func (f FactSet) Get(name string) string {
	return f.facts[name]
}

// Lookup returns the value of a fact and whether it is present.
func (f FactSet) Lookup(name string) (string, bool) {
	v, ok := f.facts[name]
	return v, ok
}

// Kernel returns the host kernel fact.
func (f FactSet) Kernel() string {
	return f.Get(FactKernel)
}

// OSFamily returns the OS family fact.
func (f FactSet) OSFamily() string {
	return f.Get(FactOSFamily)
}

// FQDN returns the host's fully-qualified name fact.
func (f FactSet) FQDN() string {
	return f.Get(FactFQDN)
}

// Len returns the number of facts in the set.
func (f FactSet) Len() int {
	return len(f.facts)
}
