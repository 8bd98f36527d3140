// Package pkggraph provides the in-memory package dependency graph:
// internal-dependency edges, transitive dependents lookup, cycle detection
// via strongly connected components, and topological ordering.
package pkggraph

import (
	"fmt"
	"sort"
	"strings"

	"verso/internal/manifest"
)

// DuplicatePackageError indicates two workspace packages share an id.
type DuplicatePackageError struct {
	ID string
}

func (e *DuplicatePackageError) Error() string {
	return fmt.Sprintf("duplicate package id: %s", e.ID)
}

// CycleForbiddenError is returned by Validate when cycles exist and the
// caller opted into a fail-on-circular policy.
type CycleForbiddenError struct {
	Groups []CycleGroup
}

func (e *CycleForbiddenError) Error() string {
	parts := make([]string, len(e.Groups))
	for i, g := range e.Groups {
		parts[i] = "{" + strings.Join(g, ", ") + "}"
	}
	return fmt.Sprintf("circular dependencies forbidden: %s", strings.Join(parts, ", "))
}

// CycleGroup is one strongly connected component with more than one member
// (or a self-loop), listed in ascending id order.
type CycleGroup []string

// Graph is an immutable view of the workspace dependency structure.
// Edges run dependent -> dependency and derive solely from declared
// internal deps.
type Graph struct {
	packages map[string]*manifest.Package
	ids      []string            // ascending
	edges    map[string][]string // dependent -> dependencies, ascending
	reverse  map[string][]string // dependency -> direct dependents, ascending

	sccOf  map[string]int
	groups []CycleGroup // components of size >= 2 or with a self-loop
}

// Build constructs the graph from loaded packages.
func Build(pkgs []*manifest.Package) (*Graph, error) {
	g := &Graph{
		packages: make(map[string]*manifest.Package, len(pkgs)),
		edges:    make(map[string][]string, len(pkgs)),
		reverse:  make(map[string][]string, len(pkgs)),
	}

	for _, p := range pkgs {
		if _, ok := g.packages[p.ID]; ok {
			return nil, &DuplicatePackageError{ID: p.ID}
		}
		g.packages[p.ID] = p
		g.ids = append(g.ids, p.ID)
	}
	sort.Strings(g.ids)

	for _, p := range pkgs {
		for _, dep := range p.Internal {
			if _, ok := g.packages[dep]; !ok {
				continue
			}
			g.edges[p.ID] = append(g.edges[p.ID], dep)
			g.reverse[dep] = append(g.reverse[dep], p.ID)
		}
	}
	for id := range g.edges {
		sort.Strings(g.edges[id])
	}
	for id := range g.reverse {
		sort.Strings(g.reverse[id])
	}

	g.computeSCCs()
	return g, nil
}

// PackageCount returns the number of nodes.
func (g *Graph) PackageCount() int { return len(g.ids) }

// EdgeCount returns the number of internal-dependency edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, deps := range g.edges {
		n += len(deps)
	}
	return n
}

// Has reports whether a package id exists in the graph.
func (g *Graph) Has(id string) bool {
	_, ok := g.packages[id]
	return ok
}

// Package returns the package for an id, or nil.
func (g *Graph) Package(id string) *manifest.Package { return g.packages[id] }

// PackageIDs returns all package ids in ascending order.
func (g *Graph) PackageIDs() []string {
	out := make([]string, len(g.ids))
	copy(out, g.ids)
	return out
}

// DependenciesOf returns the direct internal dependencies of id, ascending.
func (g *Graph) DependenciesOf(id string) []string {
	out := make([]string, len(g.edges[id]))
	copy(out, g.edges[id])
	return out
}

// DirectDependentsOf returns the packages that directly depend on id, ascending.
func (g *Graph) DirectDependentsOf(id string) []string {
	out := make([]string, len(g.reverse[id]))
	copy(out, g.reverse[id])
	return out
}

// DependentsOf returns the transitive closure over reverse edges: every
// package that depends on id directly or indirectly, in ascending order.
func (g *Graph) DependentsOf(id string) []string {
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(cur string) {
		for _, dep := range g.reverse[cur] {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			walk(dep)
		}
	}
	walk(id)

	delete(seen, id)
	out := make([]string, 0, len(seen))
	for dep := range seen {
		out = append(out, dep)
	}
	sort.Strings(out)
	return out
}

// computeSCCs runs Tarjan's algorithm once at build time. Components are
// disjoint by construction; only groups of size >= 2 or self-loops are
// reported as cycles.
func (g *Graph) computeSCCs() {
	index := 0
	indices := make(map[string]int, len(g.ids))
	lowlink := make(map[string]int, len(g.ids))
	onStack := make(map[string]bool, len(g.ids))
	var stack []string

	g.sccOf = make(map[string]int, len(g.ids))
	sccCount := 0
	var components [][]string

	var strongconnect func(v string)
	strongconnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.edges[v] {
			if _, visited := indices[w]; !visited {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if indices[w] < lowlink[v] {
					lowlink[v] = indices[w]
				}
			}
		}

		if lowlink[v] == indices[v] {
			var comp []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			sort.Strings(comp)
			for _, m := range comp {
				g.sccOf[m] = sccCount
			}
			components = append(components, comp)
			sccCount++
		}
	}

	for _, id := range g.ids {
		if _, visited := indices[id]; !visited {
			strongconnect(id)
		}
	}

	for _, comp := range components {
		if len(comp) > 1 || g.selfLoop(comp[0]) {
			g.groups = append(g.groups, CycleGroup(comp))
		}
	}
	sort.Slice(g.groups, func(i, j int) bool {
		return g.groups[i][0] < g.groups[j][0]
	})
}

func (g *Graph) selfLoop(id string) bool {
	for _, dep := range g.edges[id] {
		if dep == id {
			return true
		}
	}
	return false
}

// DetectCycles returns the cyclic groups, disjoint and deterministic
// (members ascending, groups ordered by first member).
func (g *Graph) DetectCycles() []CycleGroup {
	out := make([]CycleGroup, len(g.groups))
	for i, grp := range g.groups {
		c := make(CycleGroup, len(grp))
		copy(c, grp)
		out[i] = c
	}
	return out
}

// HasCycles reports whether any cyclic group exists.
func (g *Graph) HasCycles() bool { return len(g.groups) > 0 }

// CycleUnit returns the members of id's strongly connected component,
// ascending, including id itself. A package outside any cycle is its own
// unit of one.
func (g *Graph) CycleUnit(id string) []string {
	scc, ok := g.sccOf[id]
	if !ok {
		return []string{id}
	}
	var unit []string
	for _, other := range g.ids {
		if g.sccOf[other] == scc {
			unit = append(unit, other)
		}
	}
	return unit
}

// Validate enforces the optional fail-on-circular policy. Cycles are
// non-fatal unless the caller opts in.
func (g *Graph) Validate(failOnCycles bool) error {
	if failOnCycles && g.HasCycles() {
		return &CycleForbiddenError{Groups: g.DetectCycles()}
	}
	return nil
}

// TopoSort orders the given package ids so dependencies come before
// dependents (Kahn's algorithm over the condensed SCC graph). Members of a
// cyclic group are emitted together, internally ascending, and the group as
// a whole is ordered against the rest. Ties break by ascending first id.
// Unknown ids are ignored.
func (g *Graph) TopoSort(ids []string) []string {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		if g.Has(id) {
			want[id] = true
		}
	}
	if len(want) == 0 {
		return nil
	}

	// Units are the SCCs that contain at least one requested id.
	unitMembers := make(map[int][]string)
	for id := range want {
		scc := g.sccOf[id]
		unitMembers[scc] = append(unitMembers[scc], id)
	}
	for scc := range unitMembers {
		sort.Strings(unitMembers[scc])
	}

	// Condensed edges between selected units: unit -> units it depends on.
	indegree := make(map[int]int, len(unitMembers))
	dependents := make(map[int][]int)
	for scc := range unitMembers {
		indegree[scc] = 0
	}
	counted := make(map[[2]int]bool)
	for id := range want {
		from := g.sccOf[id]
		for _, dep := range g.edges[id] {
			if !want[dep] {
				continue
			}
			to := g.sccOf[dep]
			if to == from {
				continue
			}
			key := [2]int{from, to}
			if counted[key] {
				continue
			}
			counted[key] = true
			indegree[from]++
			dependents[to] = append(dependents[to], from)
		}
	}

	// Ready units ordered by their first member for determinism.
	var ready []int
	for scc, deg := range indegree {
		if deg == 0 {
			ready = append(ready, scc)
		}
	}

	var order []string
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool {
			return unitMembers[ready[i]][0] < unitMembers[ready[j]][0]
		})
		unit := ready[0]
		ready = ready[1:]

		order = append(order, unitMembers[unit]...)
		for _, dep := range dependents[unit] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}
	return order
}
