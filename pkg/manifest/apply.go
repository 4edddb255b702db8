package manifest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/modgraph/pkg/modules"
)

// Result reports what Apply changed
type Result struct {
	Mutations int
	Published int
	Revision  uint64
}

// Apply brings store in line with the manifest in one commit and publishes
// every version record the store does not have yet. It is meant for seeding a
// store that no engine is serving; a running engine reconciles through
// engine.Service.Reconcile so the change is made under its lock.
func Apply(ctx context.Context, store modules.ModuleStore, m *Manifest) (*Result, error) {
	snap, err := store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read store: %w", err)
	}
	muts, err := m.Diff(snap)
	if err != nil {
		return nil, err
	}

	res := &Result{Mutations: len(muts), Revision: snap.Revision}
	if len(muts) > 0 {
		res.Revision, err = store.Commit(ctx, snap.Revision, muts...)
		if err != nil {
			return nil, fmt.Errorf("failed to apply manifest: %w", err)
		}
	}

	for _, rec := range m.Records(time.Now().UTC()) {
		if err := store.AppendVersion(ctx, rec); err != nil {
			if errors.Is(err, modules.ErrVersionExists) {
				continue
			}
			return res, fmt.Errorf("failed to publish %s@%s: %w", rec.ModuleKey, rec.Version, err)
		}
		res.Published++
	}
	return res, nil
}
