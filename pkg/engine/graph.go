package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/modgraph/pkg/conflicts"
	"github.com/platinummonkey/modgraph/pkg/dependencies"
	"github.com/platinummonkey/modgraph/pkg/modules"
)

// DependencyView is a module's declared edges with their status, plus the
// modules that depend on it
type DependencyView struct {
	ModuleKey        string                     `json:"module_key"`
	InstalledVersion string                     `json:"installed_version"`
	Level            int                        `json:"level"`
	LevelDefined     bool                       `json:"level_defined"`
	Dependencies     []conflicts.ClassifiedEdge `json:"dependencies"`
	Dependents       []dependencies.Edge        `json:"dependents"`
	Revision         uint64                     `json:"revision"`
}

// ResolveResult is a full conflict listing at one revision
type ResolveResult struct {
	Conflicts []conflicts.Report   `json:"conflicts"`
	Cycles    []dependencies.Cycle `json:"cycles"`
	Warnings  []string             `json:"warnings"`
	Revision  uint64               `json:"revision"`
}

// GraphView is the whole graph as data
type GraphView struct {
	Nodes    []*dependencies.Node       `json:"nodes"`
	Edges    []conflicts.ClassifiedEdge `json:"edges"`
	Cycles   []dependencies.Cycle       `json:"cycles"`
	Warnings []string                   `json:"warnings"`

	// Order lists modules dependencies first; it is empty when the graph has a cycle
	Order    []string `json:"order,omitempty"`
	Revision uint64   `json:"revision"`
}

// FetchDependencies classifies every edge declared by key
func (s *Service) FetchDependencies(ctx context.Context, key string) (view *DependencyView, err error) {
	start := time.Now()
	ctx, span := s.span(ctx, "FetchDependencies", attribute.String("module", key))
	defer func() { s.finish(ctx, span, "fetch_dependencies", start, err) }()

	st, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	reports := conflicts.Resolve(st.graph, st.versions, s.resolveOptions())
	edges, err := conflicts.Classify(st.graph, reports, key)
	if err != nil {
		return nil, err
	}

	node, _ := st.graph.Node(key)
	level, defined := st.graph.Level(key)
	return &DependencyView{
		ModuleKey:        key,
		InstalledVersion: node.Version,
		Level:            level,
		LevelDefined:     defined,
		Dependencies:     edges,
		Dependents:       st.graph.Dependents(key),
		Revision:         st.graph.Revision,
	}, nil
}

// Resolve lists every conflict in the current graph. Listed conflicts are
// remembered with the revision they were found at so that ResolveConflict can
// detect a graph that moved underneath the caller.
func (s *Service) Resolve(ctx context.Context) (result *ResolveResult, err error) {
	start := time.Now()
	ctx, span := s.span(ctx, "Resolve")
	defer func() { s.finish(ctx, span, "resolve", start, err) }()

	st, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	reports := conflicts.Resolve(st.graph, st.versions, s.resolveOptions())

	counts := make(map[[2]string]int)
	for _, r := range reports {
		counts[[2]string{string(r.Type), string(r.Severity)}]++
		s.listed.Add(r.ID, listedConflict{report: r, revision: st.graph.Revision})
	}
	s.metrics.RecordGraph(len(st.graph.Keys()), len(st.graph.Edges()), counts)
	span.SetAttributes(attribute.Int("conflicts", len(reports)), attribute.Int64("revision", int64(st.graph.Revision)))

	return &ResolveResult{
		Conflicts: reports,
		Cycles:    st.graph.Cycles(),
		Warnings:  st.graph.Warnings(),
		Revision:  st.graph.Revision,
	}, nil
}

// Graph exports every node and classified edge
func (s *Service) Graph(ctx context.Context) (view *GraphView, err error) {
	start := time.Now()
	ctx, span := s.span(ctx, "Graph")
	defer func() { s.finish(ctx, span, "graph", start, err) }()

	st, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	reports := conflicts.Resolve(st.graph, st.versions, s.resolveOptions())

	edges := make([]conflicts.ClassifiedEdge, 0)
	for _, key := range st.graph.Keys() {
		classified, err := conflicts.Classify(st.graph, reports, key)
		if err != nil {
			return nil, err
		}
		edges = append(edges, classified...)
	}

	// a cyclic graph has no order; cycles are already reported as data
	order, _ := st.graph.TopologicalOrder()

	return &GraphView{
		Nodes:    st.graph.Nodes(),
		Edges:    edges,
		Cycles:   st.graph.Cycles(),
		Warnings: st.graph.Warnings(),
		Order:    order,
		Revision: st.graph.Revision,
	}, nil
}

// Neighborhood exports key and the modules around it for visualization
func (s *Service) Neighborhood(ctx context.Context, key string, opts dependencies.NeighborhoodOptions) (*dependencies.CytoscapeGraph, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out, ok := dependencies.BuildSnapshot(snap).Neighborhood(key, opts)
	if !ok {
		return nil, fmt.Errorf("%w: %s", modules.ErrModuleNotFound, key)
	}
	return out, nil
}

// Order returns module keys with every dependency listed before its dependents
func (s *Service) Order(ctx context.Context) ([]string, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return dependencies.BuildSnapshot(snap).TopologicalOrder()
}
