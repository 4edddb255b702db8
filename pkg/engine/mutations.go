package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/modgraph/pkg/audit"
	"github.com/platinummonkey/modgraph/pkg/conflicts"
	"github.com/platinummonkey/modgraph/pkg/dependencies"
	"github.com/platinummonkey/modgraph/pkg/modules"
	"github.com/platinummonkey/modgraph/pkg/semver"
)

// ConflictResolution is the outcome of applying a suggested resolution
type ConflictResolution struct {
	Conflict       conflicts.Report         `json:"conflict"`
	AppliedVersion string                   `json:"applied_version"`
	Edge           conflicts.ClassifiedEdge `json:"edge"`
	Revision       uint64                   `json:"revision"`
}

// AddDependencyRequest declares a new edge or replaces an existing one
type AddDependencyRequest struct {
	DependsOn  string `json:"depends_on" validate:"required"`
	Range      string `json:"range" validate:"required"`
	IsDev      bool   `json:"is_dev,omitempty"`
	IsRequired bool   `json:"is_required,omitempty"`

	// ExpectedRevision, when set, rejects the write if the graph has moved
	ExpectedRevision *uint64 `json:"expected_revision,omitempty"`
}

// EdgeResult is an edge as classified right after a commit
type EdgeResult struct {
	Edge     conflicts.ClassifiedEdge `json:"edge"`
	Revision uint64                   `json:"revision"`
}

// ResolveConflict applies the suggested resolution of a conflict. A conflict
// listed by Resolve is pinned to the revision it was listed at: if the graph
// has changed since, the call fails with *modules.StaleSnapshotError and the
// caller must list again.
func (s *Service) ResolveConflict(ctx context.Context, id string) (*ConflictResolution, error) {
	if entry, ok := s.listed.Get(id); ok {
		return s.resolveConflict(ctx, id, entry.revision, true)
	}
	return s.resolveConflict(ctx, id, 0, false)
}

// ResolveConflictAt applies a resolution prepared against revision
func (s *Service) ResolveConflictAt(ctx context.Context, id string, revision uint64) (*ConflictResolution, error) {
	return s.resolveConflict(ctx, id, revision, true)
}

func (s *Service) resolveConflict(ctx context.Context, id string, expected uint64, pinned bool) (res *ConflictResolution, err error) {
	start := time.Now()
	ctx, span := s.span(ctx, "ResolveConflict", attribute.String("conflict", id))
	event := audit.NewEvent(ctx, audit.EventTypeConflictResolve, audit.ResourceTypeDependency, id)
	defer func() {
		s.finish(ctx, span, "resolve_conflict", start, err)
		s.record(ctx, event, err)
	}()

	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	st, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if pinned && st.graph.Revision != expected {
		return nil, &modules.StaleSnapshotError{Expected: expected, Actual: st.graph.Revision}
	}

	before := conflicts.Resolve(st.graph, st.versions, s.resolveOptions())
	var report *conflicts.Report
	for i := range before {
		if before[i].ID == id {
			report = &before[i]
			break
		}
	}
	if report == nil {
		return nil, fmt.Errorf("%w: %s", modules.ErrConflictNotFound, id)
	}
	if report.SuggestedResolution == "" {
		return nil, fmt.Errorf("%w: %s", modules.ErrConflictUnresolvable, id)
	}

	suggestion, err := semver.ParseVersion(report.SuggestedResolution)
	if err != nil {
		return nil, err
	}
	target, ok := st.snap.Module(report.To)
	if !ok {
		return nil, fmt.Errorf("%w: %s", modules.ErrModuleNotFound, report.To)
	}
	if err := checkCoreFloor(target, suggestion); err != nil {
		return nil, err
	}
	from, ok := st.snap.Module(report.From)
	if !ok {
		return nil, fmt.Errorf("%w: %s", modules.ErrModuleNotFound, report.From)
	}
	dep, ok := from.Dependency(report.To)
	if !ok {
		return nil, fmt.Errorf("%w: %s -> %s", modules.ErrDependencyNotFound, report.From, report.To)
	}
	dep.ResolvedVersion = suggestion.String()

	mutations := []modules.Mutation{
		modules.SetVersion(report.To, suggestion.String()),
		modules.PutDependency(report.From, dep),
	}
	after, err := s.hypothetical(st, mutations...)
	if err != nil {
		return nil, err
	}
	if introduced := conflicts.Introduced(before, after); len(introduced) > 0 {
		return nil, &ResolutionRejectedError{Subject: id, Introduced: introduced}
	}

	revision, err := s.store.Commit(ctx, st.graph.Revision, mutations...)
	if err != nil {
		return nil, err
	}

	event.Revision = revision
	event.Changes = &audit.ChangeDetails{
		Before: map[string]interface{}{"module": report.To, "version": report.InstalledVersion},
		After:  map[string]interface{}{"module": report.To, "version": suggestion.String()},
	}

	return &ConflictResolution{
		Conflict:       *report,
		AppliedVersion: suggestion.String(),
		Edge:           conflicts.ClassifiedEdge{
			Edge: dependencies.Edge{
				From:            report.From,
				To:              report.To,
				Range:           dep.Range,
				IsDev:           dep.IsDev,
				IsRequired:      dep.IsRequired,
				ResolvedVersion: dep.ResolvedVersion,
			},
			InstalledVersion: suggestion.String(),
			Status:           conflicts.StatusSatisfied,
		},
		Revision: revision,
	}, nil
}

// AddDependency declares that key depends on req.DependsOn. The range is
// parsed before anything is locked. The target module need not exist yet;
// a dangling edge is reported as a missing_module conflict.
func (s *Service) AddDependency(ctx context.Context, key string, req AddDependencyRequest) (res *EdgeResult, err error) {
	start := time.Now()
	ctx, span := s.span(ctx, "AddDependency", attribute.String("module", key), attribute.String("depends_on", req.DependsOn))
	event := audit.NewEvent(ctx, audit.EventTypeDependencyAdd, audit.ResourceTypeDependency, key+"->"+req.DependsOn)
	defer func() {
		s.finish(ctx, span, "add_dependency", start, err)
		s.record(ctx, event, err)
	}()

	if req.DependsOn == "" {
		return nil, fmt.Errorf("%w: depends_on is required", ErrInvalidRequest)
	}
	if _, err := semver.ParseConstraint(req.Range); err != nil {
		return nil, err
	}

	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	st, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if req.ExpectedRevision != nil && *req.ExpectedRevision != st.graph.Revision {
		return nil, &modules.StaleSnapshotError{Expected: *req.ExpectedRevision, Actual: st.graph.Revision}
	}
	m, ok := st.snap.Module(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", modules.ErrModuleNotFound, key)
	}
	if previous, ok := m.Dependency(req.DependsOn); ok {
		event.Changes = &audit.ChangeDetails{Before: map[string]interface{}{"range": previous.Range}}
	}

	dep := modules.Dependency{
		Key:        req.DependsOn,
		Range:      req.Range,
		IsDev:      req.IsDev,
		IsRequired: req.IsRequired,
	}
	revision, err := s.store.Commit(ctx, st.graph.Revision, modules.PutDependency(key, dep))
	if err != nil {
		return nil, err
	}
	event.Revision = revision
	if event.Changes == nil {
		event.Changes = &audit.ChangeDetails{}
	}
	event.Changes.After = map[string]interface{}{"range": req.Range, "is_dev": req.IsDev, "is_required": req.IsRequired}

	return s.classifiedEdge(ctx, key, req.DependsOn, revision)
}

// classifiedEdge reads back one edge after a commit
func (s *Service) classifiedEdge(ctx context.Context, key, depKey string, revision uint64) (*EdgeResult, error) {
	st, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	reports := conflicts.Resolve(st.graph, st.versions, s.resolveOptions())
	edges, err := conflicts.Classify(st.graph, reports, key)
	if err != nil {
		return nil, err
	}
	for _, e := range edges {
		if e.To == depKey {
			return &EdgeResult{Edge: e, Revision: st.graph.Revision}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s -> %s at revision %d", modules.ErrDependencyNotFound, key, depKey, revision)
}

// RemoveDependency deletes the edge key -> depKey. Required edges cannot be removed.
func (s *Service) RemoveDependency(ctx context.Context, key, depKey string) (revision uint64, err error) {
	start := time.Now()
	ctx, span := s.span(ctx, "RemoveDependency", attribute.String("module", key), attribute.String("depends_on", depKey))
	event := audit.NewEvent(ctx, audit.EventTypeDependencyRemove, audit.ResourceTypeDependency, key+"->"+depKey)
	defer func() {
		s.finish(ctx, span, "remove_dependency", start, err)
		s.record(ctx, event, err)
	}()

	unlock, err := s.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	m, ok := snap.Module(key)
	if !ok {
		return 0, fmt.Errorf("%w: %s", modules.ErrModuleNotFound, key)
	}
	dep, ok := m.Dependency(depKey)
	if !ok {
		return 0, fmt.Errorf("%w: %s -> %s", modules.ErrDependencyNotFound, key, depKey)
	}
	if dep.IsRequired {
		return 0, &modules.RequiredDependencyError{ModuleKey: key, DepKey: depKey, Reason: "edge is marked required"}
	}

	revision, err = s.store.Commit(ctx, snap.Revision, modules.RemoveDependency(key, depKey))
	if err != nil {
		return 0, err
	}
	event.Revision = revision
	event.Changes = &audit.ChangeDetails{Before: map[string]interface{}{"range": dep.Range, "is_dev": dep.IsDev}}
	return revision, nil
}

// RegisterModule adds a module to the graph. Its installed version and every
// declared range must parse.
func (s *Service) RegisterModule(ctx context.Context, m modules.Module) (revision uint64, err error) {
	start := time.Now()
	ctx, span := s.span(ctx, "RegisterModule", attribute.String("module", m.Key))
	event := audit.NewEvent(ctx, audit.EventTypeModuleCreate, audit.ResourceTypeModule, m.Key)
	defer func() {
		s.finish(ctx, span, "register_module", start, err)
		s.record(ctx, event, err)
	}()

	if err := validateModule(m); err != nil {
		return 0, err
	}

	unlock, err := s.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	if _, ok := snap.Module(m.Key); ok {
		return 0, fmt.Errorf("%w: %s", modules.ErrModuleExists, m.Key)
	}

	revision, err = s.store.Commit(ctx, snap.Revision, modules.CreateModule(m))
	if err != nil {
		return 0, err
	}
	event.Revision = revision
	event.Changes = &audit.ChangeDetails{After: map[string]interface{}{"version": m.InstalledVersion, "is_core": m.IsCore}}
	return revision, nil
}

func validateModule(m modules.Module) error {
	if m.Key == "" {
		return fmt.Errorf("%w: module key is required", ErrInvalidRequest)
	}
	if _, err := semver.ParseVersion(m.InstalledVersion); err != nil {
		return err
	}
	if m.MinimumVersion != "" {
		if _, err := semver.ParseVersion(m.MinimumVersion); err != nil {
			return err
		}
	}
	seen := make(map[string]bool, len(m.Dependencies))
	for _, d := range m.Dependencies {
		if d.Key == "" {
			return fmt.Errorf("%w: dependency of %s has no key", ErrInvalidRequest, m.Key)
		}
		if seen[d.Key] {
			return fmt.Errorf("%w: %s declares %s twice", ErrInvalidRequest, m.Key, d.Key)
		}
		seen[d.Key] = true
		if _, err := semver.ParseConstraint(d.Range); err != nil {
			return err
		}
	}
	return nil
}
