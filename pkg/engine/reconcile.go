package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/modgraph/pkg/audit"
	"github.com/platinummonkey/modgraph/pkg/modules"
)

// Planner derives the mutations that move a snapshot to some desired state
type Planner func(snap *modules.Snapshot) ([]modules.Mutation, error)

// ReconcileResult reports what a reconcile changed
type ReconcileResult struct {
	Source    string `json:"source"`
	Mutations int    `json:"mutations"`
	Published int    `json:"published"`
	Revision  uint64 `json:"revision"`
}

// Reconcile commits the mutations plan derives from the current snapshot and
// appends the version records that are not yet published. Both happen under
// the graph lock, so a reconcile never interleaves with another mutation.
// Every module the mutations touch must still be well formed afterwards.
func (s *Service) Reconcile(ctx context.Context, source string, plan Planner, records []modules.VersionRecord) (res *ReconcileResult, err error) {
	start := time.Now()
	ctx, span := s.span(ctx, "Reconcile", attribute.String("source", source))
	event := audit.NewEvent(ctx, audit.EventTypeManifestApply, audit.ResourceTypeManifest, source)
	defer func() {
		s.finish(ctx, span, "reconcile", start, err)
		s.record(ctx, event, err)
	}()

	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	muts, err := plan(snap)
	if err != nil {
		return nil, err
	}

	res = &ReconcileResult{Source: source, Mutations: len(muts), Revision: snap.Revision}
	if len(muts) > 0 {
		if err := s.checkTouched(snap, muts); err != nil {
			return nil, err
		}
		res.Revision, err = s.store.Commit(ctx, snap.Revision, muts...)
		if err != nil {
			return nil, err
		}
	}

	for _, rec := range records {
		if err := s.store.AppendVersion(ctx, rec); err != nil {
			if errors.Is(err, modules.ErrVersionExists) {
				continue
			}
			return res, fmt.Errorf("failed to publish %s@%s: %w", rec.ModuleKey, rec.Version, err)
		}
		res.Published++
	}

	event.Revision = res.Revision
	event.Metadata["mutations"] = res.Mutations
	event.Metadata["published"] = res.Published
	return res, nil
}

// checkTouched applies muts to a copy of the snapshot and validates every
// module they touch
func (s *Service) checkTouched(snap *modules.Snapshot, muts []modules.Mutation) error {
	next, err := modules.ApplyMutations(snap.Modules, s.now(), muts...)
	if err != nil {
		return err
	}
	touched := make(map[string]bool, len(muts))
	for _, m := range muts {
		touched[m.ModuleKey] = true
	}
	for _, m := range next {
		if !touched[m.Key] {
			continue
		}
		if err := validateModule(m); err != nil {
			return err
		}
	}
	return nil
}
