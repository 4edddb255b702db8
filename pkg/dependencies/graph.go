package dependencies

import (
	"fmt"

	"github.com/platinummonkey/modgraph/pkg/modules"
)

// Edge is a declared dependency from one module to another
type Edge struct {
	From            string `json:"from"`
	To              string `json:"to"`
	Range           string `json:"range"`
	IsDev           bool   `json:"is_dev,omitempty"`
	IsRequired      bool   `json:"is_required,omitempty"`
	ResolvedVersion string `json:"resolved_version,omitempty"`
}

// ID returns the stable identifier of the edge
func (e Edge) ID() string {
	return e.From + "->" + e.To
}

// Node represents a module in the dependency graph
type Node struct {
	Key            string `json:"key"`
	Version        string `json:"version"`
	IsCore         bool   `json:"is_core,omitempty"`
	MinimumVersion string `json:"minimum_version,omitempty"`
	Level          int    `json:"level"`
	// LevelUndefined is set for nodes on a dependency cycle; Level is 0 for them
	LevelUndefined bool   `json:"level_undefined,omitempty"`
	Dependencies   []Edge `json:"dependencies"`
}

// Graph is an immutable dependency graph built from one store snapshot
type Graph struct {
	Revision uint64

	nodes      map[string]*Node
	order      []string
	dependents map[string][]Edge
	cycles     []Cycle
	warnings   []string
}

// Build constructs a graph from module declarations. It never fails: duplicate
// keys and dangling edges are recorded as data.
func Build(mods []modules.Module) *Graph {
	g := &Graph{
		nodes:      make(map[string]*Node, len(mods)),
		order:      make([]string, 0, len(mods)),
		dependents: make(map[string][]Edge),
	}

	for _, m := range mods {
		if _, dup := g.nodes[m.Key]; dup {
			g.warnings = append(g.warnings, fmt.Sprintf("duplicate module key %q ignored", m.Key))
			continue
		}
		node := &Node{
			Key:            m.Key,
			Version:        m.InstalledVersion,
			IsCore:         m.IsCore,
			MinimumVersion: m.MinimumVersion,
			Dependencies:   make([]Edge, 0, len(m.Dependencies)),
		}
		for _, d := range m.Dependencies {
			node.Dependencies = append(node.Dependencies, Edge{
				From:            m.Key,
				To:              d.Key,
				Range:           d.Range,
				IsDev:           d.IsDev,
				IsRequired:      d.IsRequired,
				ResolvedVersion: d.ResolvedVersion,
			})
		}
		g.nodes[m.Key] = node
		g.order = append(g.order, m.Key)
	}

	for _, key := range g.order {
		for _, e := range g.nodes[key].Dependencies {
			g.dependents[e.To] = append(g.dependents[e.To], e)
		}
	}

	g.cycles = FindCycles(g)
	g.computeLevels()

	return g
}

// BuildSnapshot builds a graph and stamps it with the snapshot revision
func BuildSnapshot(snap *modules.Snapshot) *Graph {
	g := Build(snap.Modules)
	g.Revision = snap.Revision
	return g
}

// Node retrieves a node from the graph
func (g *Graph) Node(key string) (*Node, bool) {
	n, ok := g.nodes[key]
	return n, ok
}

// Has reports whether a module exists in the graph
func (g *Graph) Has(key string) bool {
	_, ok := g.nodes[key]
	return ok
}

// Keys returns module keys in insertion order
func (g *Graph) Keys() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Nodes returns all nodes in insertion order
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, key := range g.order {
		out = append(out, g.nodes[key])
	}
	return out
}

// Edges returns every edge in declaration order
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0)
	for _, key := range g.order {
		out = append(out, g.nodes[key].Dependencies...)
	}
	return out
}

// Dependents returns the edges pointing at key
func (g *Graph) Dependents(key string) []Edge {
	edges := g.dependents[key]
	out := make([]Edge, len(edges))
	copy(out, edges)
	return out
}

// Dangling returns edges whose target module does not exist
func (g *Graph) Dangling() []Edge {
	out := make([]Edge, 0)
	for _, e := range g.Edges() {
		if !g.Has(e.To) {
			out = append(out, e)
		}
	}
	return out
}

// Cycles returns the cycles found when the graph was built
func (g *Graph) Cycles() []Cycle {
	out := make([]Cycle, len(g.cycles))
	copy(out, g.cycles)
	return out
}

// IsAcyclic reports whether no cycle was found
func (g *Graph) IsAcyclic() bool {
	return len(g.cycles) == 0
}

// Warnings returns non-fatal build diagnostics
func (g *Graph) Warnings() []string {
	out := make([]string, len(g.warnings))
	copy(out, g.warnings)
	return out
}

// Level returns the level of a node and whether it is well-defined
func (g *Graph) Level(key string) (int, bool) {
	n, ok := g.nodes[key]
	if !ok {
		return 0, false
	}
	return n.Level, !n.LevelUndefined
}

// TransitiveDependencies returns every module reachable from key, depth first
func (g *Graph) TransitiveDependencies(key string) []string {
	visited := map[string]bool{key: true}
	result := make([]string, 0)

	var traverse func(string)
	traverse = func(k string) {
		node, ok := g.nodes[k]
		if !ok {
			return
		}
		for _, e := range node.Dependencies {
			if visited[e.To] {
				continue
			}
			visited[e.To] = true
			result = append(result, e.To)
			traverse(e.To)
		}
	}

	traverse(key)
	return result
}

// TopologicalOrder returns module keys with every dependency before its dependents
func (g *Graph) TopologicalOrder() ([]string, error) {
	if len(g.cycles) > 0 {
		return nil, &CycleError{Cycle: g.cycles[0]}
	}

	visited := make(map[string]bool)
	result := make([]string, 0, len(g.order))

	var visit func(string)
	visit = func(key string) {
		if visited[key] {
			return
		}
		visited[key] = true
		for _, e := range g.nodes[key].Dependencies {
			if g.Has(e.To) {
				visit(e.To)
			}
		}
		result = append(result, key)
	}

	for _, key := range g.order {
		visit(key)
	}
	return result, nil
}

// computeLevels assigns level = 1 + max(level of dependencies). Nodes inside a
// strongly connected component (any cycle, reported or not) get level 0 and a
// warning; they count as level 0 for their dependents.
func (g *Graph) computeLevels() {
	cyclic := cyclicNodes(g)
	done := make(map[string]bool, len(g.order))

	var compute func(string) int
	compute = func(key string) int {
		n := g.nodes[key]
		if done[key] {
			return n.Level
		}
		done[key] = true
		if cyclic[key] {
			n.Level = 0
			n.LevelUndefined = true
			g.warnings = append(g.warnings, fmt.Sprintf("level undefined for %q: module is part of a dependency cycle", key))
			return 0
		}
		level := 0
		for _, e := range n.Dependencies {
			if !g.Has(e.To) {
				continue
			}
			if l := compute(e.To) + 1; l > level {
				level = l
			}
		}
		n.Level = level
		return level
	}

	for _, key := range g.order {
		compute(key)
	}
}

// cyclicNodes returns nodes that sit in a strongly connected component of size
// greater than one or carry a self edge (Tarjan).
func cyclicNodes(g *Graph) map[string]bool {
	index := 0
	indices := make(map[string]int)
	lowlink := make(map[string]int)
	onStack := make(map[string]bool)
	stack := make([]string, 0)
	cyclic := make(map[string]bool)

	var strongconnect func(string)
	strongconnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, e := range g.nodes[v].Dependencies {
			if !g.Has(e.To) {
				continue
			}
			if e.To == v {
				cyclic[v] = true
				continue
			}
			if _, seen := indices[e.To]; !seen {
				strongconnect(e.To)
				if lowlink[e.To] < lowlink[v] {
					lowlink[v] = lowlink[e.To]
				}
			} else if onStack[e.To] && indices[e.To] < lowlink[v] {
				lowlink[v] = indices[e.To]
			}
		}

		if lowlink[v] == indices[v] {
			component := make([]string, 0)
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				component = append(component, w)
				if w == v {
					break
				}
			}
			if len(component) > 1 {
				for _, w := range component {
					cyclic[w] = true
				}
			}
		}
	}

	for _, key := range g.order {
		if _, seen := indices[key]; !seen {
			strongconnect(key)
		}
	}
	return cyclic
}
