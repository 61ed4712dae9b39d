// Package policy holds a compiled policy: an ordered resource catalog
// plus its dependency set, topologically sorted for evaluation order.
// The sort follows a stable, declaration-order tiebreak so the same
// manifest always compiles to the same resource order.
package policy

import (
	"fmt"
	"sort"
	"strings"

	"warden/internal/resource"
	"warden/internal/werr"
)

// ResourceID identifies a resource by (kind, key) within a policy.
type ResourceID struct {
	Kind resource.Kind
	Key  string
}

func (id ResourceID) String() string {
	return fmt.Sprintf("%s(%s)", id.Kind, id.Key)
}

// Dependency records that From must be evaluated after To.
type Dependency struct {
	From ResourceID
	To   ResourceID
}

// Policy is a named, ordered collection of resources and the
// dependencies declared between them.
type Policy struct {
	Name      string
	order     []ResourceID // declaration order, for stable tiebreak
	resources map[ResourceID]resource.Resource
	deps      []Dependency
}

// New starts an empty policy named name.
func New(name string) *Policy {
	return &Policy{Name: name, resources: map[ResourceID]resource.Resource{}}
}

// Add introduces r to the catalog. If a resource with the same (kind,
// key) already exists, the new one is merged into it with the new
// resource's lower priority, per the manifest compiler's merge-on-
// redeclare rule.
func (p *Policy) Add(r resource.Resource) error {
	id := ResourceID{Kind: r.Kind(), Key: r.Key()}
	if existing, ok := p.resources[id]; ok {
		merged, err := mergeResources(existing, r)
		if err != nil {
			return err
		}
		p.resources[id] = merged
		return nil
	}
	p.resources[id] = r
	p.order = append(p.order, id)
	return nil
}

// AddDependency records that a depends on b. Both must already be
// declared resources.
func (p *Policy) AddDependency(a, b ResourceID) error {
	if _, ok := p.resources[a]; !ok {
		return werr.Wrap(werr.NotFound, "dependency references undeclared resource %s", a)
	}
	if _, ok := p.resources[b]; !ok {
		return werr.Wrap(werr.NotFound, "dependency references undeclared resource %s", b)
	}
	p.deps = append(p.deps, Dependency{From: a, To: b})
	return nil
}

// Get returns the resource at id, if declared.
func (p *Policy) Get(id ResourceID) (resource.Resource, bool) {
	r, ok := p.resources[id]
	return r, ok
}

// Resources returns the policy's resources in declaration order,
// unsorted — used before Sort to inspect or mutate the raw catalog.
func (p *Policy) Resources() []resource.Resource {
	out := make([]resource.Resource, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.resources[id])
	}
	return out
}

// Sort topologically orders the catalog by dependency, with ties
// broken by declaration order. Returns CyclicDependency naming one
// cycle if the dependency graph is not a DAG.
func (p *Policy) Sort() ([]resource.Resource, error) {
	declIndex := make(map[ResourceID]int, len(p.order))
	for i, id := range p.order {
		declIndex[id] = i
	}

	// runsAfter[id] lists the resources id must run after (its
	// dependencies); adj[id] lists resources that depend on id.
	runsAfter := make(map[ResourceID][]ResourceID, len(p.order))
	adj := make(map[ResourceID][]ResourceID, len(p.order))
	indegree := make(map[ResourceID]int, len(p.order))
	for _, id := range p.order {
		indegree[id] = 0
	}
	for _, d := range p.deps {
		adj[d.To] = append(adj[d.To], d.From)
		runsAfter[d.From] = append(runsAfter[d.From], d.To)
		indegree[d.From]++
	}

	ready := append([]ResourceID{}, p.order...)
	sort.Slice(ready, func(i, j int) bool { return declIndex[ready[i]] < declIndex[ready[j]] })

	var queue []ResourceID
	for _, id := range ready {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	var out []resource.Resource
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		out = append(out, p.resources[id])

		var nextReady []ResourceID
		for _, dep := range adj[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				nextReady = append(nextReady, dep)
			}
		}
		sort.Slice(nextReady, func(i, j int) bool { return declIndex[nextReady[i]] < declIndex[nextReady[j]] })
		queue = append(queue, nextReady...)
	}

	if len(out) != len(p.order) {
		cycle := findCycle(p.order, runsAfter)
		return nil, werr.Wrap(werr.CyclicDependency, "cycle: %s", formatCycle(cycle))
	}
	return out, nil
}

func formatCycle(cycle []ResourceID) string {
	parts := make([]string, len(cycle))
	for i, id := range cycle {
		parts[i] = id.String()
	}
	return strings.Join(parts, " -> ")
}

const (
	white = iota
	gray
	black
)

// findCycle runs a standard DFS with a recursion-stack color marking
// over the depends-on edges and returns the first back-edge cycle it
// finds, starting from the lowest-declared-index node for determinism.
func findCycle(order []ResourceID, runsAfter map[ResourceID][]ResourceID) []ResourceID {
	color := map[ResourceID]int{}
	var stack []ResourceID
	var cycle []ResourceID

	var visit func(id ResourceID) bool
	visit = func(id ResourceID) bool {
		color[id] = gray
		stack = append(stack, id)
		for _, dep := range runsAfter[id] {
			switch color[dep] {
			case white:
				if visit(dep) {
					return true
				}
			case gray:
				for i, s := range stack {
					if s == dep {
						cycle = append([]ResourceID{}, stack[i:]...)
						return true
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, id := range order {
		if color[id] == white {
			if visit(id) {
				return cycle
			}
		}
	}
	return cycle
}

func mergeResources(a, b resource.Resource) (resource.Resource, error) {
	switch av := a.(type) {
	case *resource.User:
		bv, ok := b.(*resource.User)
		if !ok {
			return nil, werr.Wrap(werr.InvalidValue, "type mismatch merging %s", a.Key())
		}
		return resource.MergeUsers(av, bv), nil
	case *resource.Group:
		return resource.MergeGroups(av, b.(*resource.Group)), nil
	case *resource.File:
		return resource.MergeFiles(av, b.(*resource.File)), nil
	case *resource.Dir:
		return resource.MergeDirs(av, b.(*resource.Dir)), nil
	case *resource.Package:
		return resource.MergePackages(av, b.(*resource.Package)), nil
	case *resource.Service:
		return resource.MergeServices(av, b.(*resource.Service)), nil
	case *resource.Host:
		return resource.MergeHosts(av, b.(*resource.Host)), nil
	case *resource.Sysctl:
		return resource.MergeSysctls(av, b.(*resource.Sysctl)), nil
	default:
		return nil, werr.Wrap(werr.InvalidValue, "unknown resource type for %s", a.Key())
	}
}
