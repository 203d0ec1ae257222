package engine

import (
	"fmt"
	"sort"
	"strings"
)

// OrderedPlan is the resolved execution order for one catalog. Each batch
// contains resources whose requires-predecessors are all in prior batches, so
// resources within a batch may be applied in parallel.
type OrderedPlan struct {
	// Batches are the apply batches in execution order. Within a batch,
	// resources appear in declaration order.
	Batches [][]*Resource

	// NotifyTargets maps each notifying resource to its deduplicated refresh
	// targets, precomputed so the applier never re-walks the graph.
	NotifyTargets map[Reference][]Reference

	positions map[Reference]int
}

// Resources returns all planned resources in apply order.
func (p *OrderedPlan) Resources() []*Resource {
	out := make([]*Resource, 0, len(p.positions))
	for _, batch := range p.Batches {
		out = append(out, batch...)
	}
	return out
}

// Position returns the apply-order index of a resource within the plan.
func (p *OrderedPlan) Position(ref Reference) (int, bool) {
	i, ok := p.positions[ref]
	return i, ok
}

// Len returns the number of planned resources.
func (p *OrderedPlan) Len() int {
	return len(p.positions)
}

// Resolver orders and validates a catalog. It performs a topological sort
// over the requires relation with declaration order as the stable tie-break,
// so output is deterministic for identical input. Notify edges are validated
// but never contribute to ordering.
type Resolver struct{}

// NewResolver creates a resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve validates every edge, detects cycles in the requires relation and
// produces the ordered plan.
func (r *Resolver) Resolve(cat *Catalog) (*OrderedPlan, error) {
	if cat == nil {
		return nil, NewCompileError("catalog is nil", nil).WithCode(ErrCodeValidation)
	}
	if err := cat.ValidateReferences(); err != nil {
		return nil, err
	}

	resources := cat.Resources()

	// Forward adjacency over requires: predecessor -> dependents.
	dependents := make(map[Reference][]Reference, len(resources))
	inDegree := make(map[Reference]int, len(resources))
	for _, res := range resources {
		inDegree[res.Ref()] += 0
		for _, req := range res.Requires {
			dependents[req] = append(dependents[req], res.Ref())
			inDegree[res.Ref()]++
		}
	}

	batches := make([][]*Resource, 0)
	positions := make(map[Reference]int, len(resources))
	processed := 0

	current := make([]Reference, 0)
	for _, res := range resources {
		if inDegree[res.Ref()] == 0 {
			current = append(current, res.Ref())
		}
	}

	for len(current) > 0 {
		r.sortByDeclaration(cat, current)

		batch := make([]*Resource, 0, len(current))
		for _, ref := range current {
			res, _ := cat.Get(ref)
			positions[ref] = processed
			batch = append(batch, res)
			processed++
		}
		batches = append(batches, batch)

		next := make([]Reference, 0)
		for _, ref := range current {
			for _, dep := range dependents[ref] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		current = next
	}

	if processed != len(resources) {
		cycle := r.findCycle(cat, dependents, inDegree)
		return nil, NewCompileError(
			fmt.Sprintf("dependency cycle detected: %s", formatCycle(cycle)), nil).
			WithCode(ErrCodeDependencyCycle)
	}

	return &OrderedPlan{
		Batches:       batches,
		NotifyTargets: r.notifyTargets(resources),
		positions:     positions,
	}, nil
}

// sortByDeclaration orders references by their catalog declaration index.
func (r *Resolver) sortByDeclaration(cat *Catalog, refs []Reference) {
	sort.SliceStable(refs, func(i, j int) bool {
		pi, _ := cat.Position(refs[i])
		pj, _ := cat.Position(refs[j])
		return pi < pj
	})
}

// notifyTargets computes the concrete refresh target list per notifier,
// deduplicated while preserving edge declaration order.
func (r *Resolver) notifyTargets(resources []*Resource) map[Reference][]Reference {
	targets := make(map[Reference][]Reference)
	for _, res := range resources {
		if len(res.Notifies) == 0 {
			continue
		}
		seen := make(map[Reference]bool, len(res.Notifies))
		list := make([]Reference, 0, len(res.Notifies))
		for _, ref := range res.Notifies {
			if seen[ref] {
				continue
			}
			seen[ref] = true
			list = append(list, ref)
		}
		targets[res.Ref()] = list
	}
	return targets
}

// findCycle walks the unprocessed remainder of the graph with DFS and returns
// the minimal offending cycle path.
func (r *Resolver) findCycle(cat *Catalog, dependents map[Reference][]Reference, inDegree map[Reference]int) []Reference {
	visited := make(map[Reference]bool)
	onStack := make(map[Reference]bool)

	var walk func(ref Reference, path []Reference) []Reference
	walk = func(ref Reference, path []Reference) []Reference {
		visited[ref] = true
		onStack[ref] = true
		path = append(path, ref)

		for _, dep := range dependents[ref] {
			if !visited[dep] {
				if cycle := walk(dep, path); cycle != nil {
					return cycle
				}
			} else if onStack[dep] {
				for i, p := range path {
					if p == dep {
						return append(path[i:len(path):len(path)], dep)
					}
				}
			}
		}

		onStack[ref] = false
		return nil
	}

	// Only nodes still holding incoming edges can participate in a cycle.
	for _, res := range cat.Resources() {
		ref := res.Ref()
		if inDegree[ref] > 0 && !visited[ref] {
			if cycle := walk(ref, nil); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// formatCycle formats a cycle path for error messages.
func formatCycle(cycle []Reference) string {
	if len(cycle) == 0 {
		return "(unlocatable)"
	}
	parts := make([]string, 0, len(cycle))
	for _, ref := range cycle {
		parts = append(parts, ref.String())
	}
	return strings.Join(parts, " -> ")
}
