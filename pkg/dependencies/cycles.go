package dependencies

import (
	"fmt"
	"strings"
)

// Cycle is an ordered list of module keys where each depends on the next and
// the last depends on the first
type Cycle []string

func (c Cycle) String() string {
	if len(c) == 0 {
		return ""
	}
	return strings.Join(c, " -> ") + " -> " + c[0]
}

// Contains reports whether the edge from -> to closes or continues this cycle
func (c Cycle) Contains(from, to string) bool {
	for i, key := range c {
		if key == from && c[(i+1)%len(c)] == to {
			return true
		}
	}
	return false
}

// Has reports whether key is a member of the cycle
func (c Cycle) Has(key string) bool {
	for _, k := range c {
		if k == key {
			return true
		}
	}
	return false
}

// CycleError is returned by operations that need an acyclic graph
type CycleError struct {
	Cycle Cycle
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("circular dependency detected: %s", e.Cycle)
}

const (
	white = iota
	gray
	black
)

// FindCycles runs a three-colour depth-first search over the graph. Nodes are
// visited in insertion order and edges in declaration order. An edge into a
// gray node closes a cycle, reported from the back-edge target through the
// current stack. A node appears in at most one reported cycle.
func FindCycles(g *Graph) []Cycle {
	color := make(map[string]int, len(g.order))
	stack := make([]string, 0)
	position := make(map[string]int)
	reported := make(map[string]bool)
	cycles := make([]Cycle, 0)

	var visit func(string)
	visit = func(key string) {
		color[key] = gray
		position[key] = len(stack)
		stack = append(stack, key)

		for _, e := range g.nodes[key].Dependencies {
			if !g.Has(e.To) {
				continue
			}
			switch color[e.To] {
			case white:
				visit(e.To)
			case gray:
				members := stack[position[e.To]:]
				overlap := false
				for _, m := range members {
					if reported[m] {
						overlap = true
						break
					}
				}
				if overlap {
					continue
				}
				cycle := make(Cycle, len(members))
				copy(cycle, members)
				for _, m := range cycle {
					reported[m] = true
				}
				cycles = append(cycles, cycle)
			}
		}

		stack = stack[:len(stack)-1]
		delete(position, key)
		color[key] = black
	}

	for _, key := range g.order {
		if color[key] == white {
			visit(key)
		}
	}
	return cycles
}
