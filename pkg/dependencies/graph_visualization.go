package dependencies

import "fmt"

// CytoscapeNode represents a node in Cytoscape.js format
type CytoscapeNode struct {
	Data CytoscapeNodeData `json:"data"`
}

// CytoscapeNodeData contains node data for Cytoscape.js
type CytoscapeNodeData struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	Type    string `json:"type"` // "current", "dependency", "dependent", "missing"
	Level   int    `json:"level"`
}

// CytoscapeEdge represents an edge in Cytoscape.js format
type CytoscapeEdge struct {
	Data CytoscapeEdgeData `json:"data"`
}

// CytoscapeEdgeData contains edge data for Cytoscape.js
type CytoscapeEdgeData struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Range  string `json:"range"`
	Type   string `json:"type,omitempty"` // "direct", "transitive", "depends-on"
}

// CytoscapeGraph represents the complete graph in Cytoscape.js format
type CytoscapeGraph struct {
	Nodes []CytoscapeNode `json:"nodes"`
	Edges []CytoscapeEdge `json:"edges"`
}

// Direction selects which side of a module a neighborhood covers
type Direction string

const (
	DirectionDependencies Direction = "dependencies"
	DirectionDependents   Direction = "dependents"
	DirectionBoth         Direction = "both"
)

// ParseDirection accepts an empty string as DirectionDependencies
func ParseDirection(raw string) (Direction, error) {
	switch Direction(raw) {
	case "":
		return DirectionDependencies, nil
	case DirectionDependencies, DirectionDependents, DirectionBoth:
		return Direction(raw), nil
	}
	return "", fmt.Errorf("unknown direction %q", raw)
}

// NeighborhoodOptions controls Neighborhood
type NeighborhoodOptions struct {
	Direction  Direction
	Transitive bool
	// MaxDepth limits transitive dependencies; zero or less means unlimited
	MaxDepth int
}

// Neighborhood exports the module key and its surroundings in Cytoscape.js
// format. Dependencies follow Transitive and MaxDepth; dependents are always
// direct. Edges to modules that are not installed end at a "missing" node.
func (g *Graph) Neighborhood(key string, opts NeighborhoodOptions) (*CytoscapeGraph, bool) {
	root, ok := g.nodes[key]
	if !ok {
		return nil, false
	}
	if opts.Direction == "" {
		opts.Direction = DirectionDependencies
	}

	b := &neighborhood{
		g:       g,
		opts:    opts,
		visited: map[string]bool{key: true},
		out:     &CytoscapeGraph{Nodes: make([]CytoscapeNode, 0), Edges: make([]CytoscapeEdge, 0)},
	}
	b.addNode(root.Key, "current")

	if opts.Direction == DirectionDependencies || opts.Direction == DirectionBoth {
		b.addDependencies(key, 0)
	}
	if opts.Direction == DirectionDependents || opts.Direction == DirectionBoth {
		b.addDependents(key)
	}
	return b.out, true
}

type neighborhood struct {
	g       *Graph
	opts    NeighborhoodOptions
	visited map[string]bool
	out     *CytoscapeGraph
}

func (b *neighborhood) addNode(key, kind string) {
	data := CytoscapeNodeData{ID: key, Name: key, Type: kind}
	if n, ok := b.g.nodes[key]; ok {
		data.Version = n.Version
		data.Level = n.Level
	} else {
		data.Type = "missing"
	}
	b.out.Nodes = append(b.out.Nodes, CytoscapeNode{Data: data})
}

func (b *neighborhood) addEdge(e Edge, kind string) {
	b.out.Edges = append(b.out.Edges, CytoscapeEdge{Data: CytoscapeEdgeData{
		ID:     e.ID(),
		Source: e.From,
		Target: e.To,
		Range:  e.Range,
		Type:   kind,
	}})
}

func (b *neighborhood) addDependencies(key string, depth int) {
	if b.opts.MaxDepth > 0 && depth >= b.opts.MaxDepth {
		return
	}
	node, ok := b.g.nodes[key]
	if !ok {
		return
	}

	kind := "direct"
	if depth > 0 {
		kind = "transitive"
	}
	for _, e := range node.Dependencies {
		if !b.visited[e.To] {
			b.visited[e.To] = true
			b.addNode(e.To, "dependency")
			if b.opts.Transitive {
				b.addDependencies(e.To, depth+1)
			}
		}
		b.addEdge(e, kind)
	}
}

func (b *neighborhood) addDependents(key string) {
	for _, e := range b.g.Dependents(key) {
		if !b.visited[e.From] {
			b.visited[e.From] = true
			b.addNode(e.From, "dependent")
		}
		b.addEdge(e, "depends-on")
	}
}
