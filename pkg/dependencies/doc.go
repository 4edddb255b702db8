// Package dependencies builds the module dependency graph and detects cycles.
//
// # Overview
//
// Build turns a store snapshot into an immutable Graph: one node per module,
// one edge per declared dependency, and a transpose index of dependents. The
// build never fails. Duplicate keys and dangling edges are kept as data and
// surfaced through Warnings and Dangling.
//
// Every node gets a level: modules with no dependencies sit at level 0 and
// every other module is one above its deepest dependency. Modules inside a
// dependency cycle have no meaningful level; they are placed at 0 and flagged
// with LevelUndefined.
//
// # Cycle detection
//
// FindCycles walks the graph depth first with white, gray and black marks. An
// edge into a gray node closes a cycle. Each node is reported in at most one
// cycle per call.
//
//	g := dependencies.BuildSnapshot(snap)
//	for _, c := range g.Cycles() {
//		fmt.Println(c) // a -> b -> c -> a
//	}
//
// # Related Packages
//
//   - pkg/conflicts: classifies the edges of a Graph
//   - pkg/impact: walks Dependents to plan change propagation
package dependencies
