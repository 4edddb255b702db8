package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/modgraph/pkg/impact"
	"github.com/platinummonkey/modgraph/pkg/modules"
)

func backends(t *testing.T) map[string]Backend {
	fs, err := NewFileSystemStore(filepath.Join(t.TempDir(), "store"))
	require.NoError(t, err)
	return map[string]Backend{
		"memory":     NewMemoryStore(),
		"filesystem": fs,
	}
}

func TestBackend_CommitAndSnapshot(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			snap, err := store.Snapshot(ctx)
			require.NoError(t, err)
			assert.Equal(t, uint64(0), snap.Revision)
			assert.Empty(t, snap.Modules)

			rev, err := store.Commit(ctx, 0,
				modules.CreateModule(modules.Module{Key: "core", InstalledVersion: "1.5.0", IsCore: true}),
				modules.CreateModule(modules.Module{Key: "billing", InstalledVersion: "2.0.0"}),
				modules.PutDependency("billing", modules.Dependency{Key: "core", Range: "^1.5.0", IsRequired: true}),
			)
			require.NoError(t, err)
			assert.Equal(t, uint64(1), rev)

			snap, err = store.Snapshot(ctx)
			require.NoError(t, err)
			assert.Equal(t, uint64(1), snap.Revision)
			require.Len(t, snap.Modules, 2)
			billing, ok := snap.Module("billing")
			require.True(t, ok)
			require.Len(t, billing.Dependencies, 1)
			assert.True(t, billing.Dependencies[0].IsRequired)
		})
	}
}

func TestBackend_StaleCommitWritesNothing(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := store.Commit(ctx, 0, modules.CreateModule(modules.Module{Key: "core", InstalledVersion: "1.0.0"}))
			require.NoError(t, err)

			_, err = store.Commit(ctx, 0, modules.SetVersion("core", "2.0.0"))
			var stale *modules.StaleSnapshotError
			require.True(t, errors.As(err, &stale))
			assert.Equal(t, uint64(0), stale.Expected)
			assert.Equal(t, uint64(1), stale.Actual)

			snap, err := store.Snapshot(ctx)
			require.NoError(t, err)
			assert.Equal(t, "1.0.0", snap.Modules[0].InstalledVersion)
		})
	}
}

func TestBackend_FailedMutationKeepsRevision(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := store.Commit(ctx, 0, modules.SetVersion("ghost", "1.0.0"))
			assert.True(t, errors.Is(err, modules.ErrModuleNotFound))

			snap, err := store.Snapshot(ctx)
			require.NoError(t, err)
			assert.Equal(t, uint64(0), snap.Revision)
		})
	}
}

func TestBackend_VersionLog(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

			require.NoError(t, store.AppendVersion(ctx, modules.VersionRecord{ModuleKey: "core", Version: "1.0.0", Tag: modules.TagStable, CreatedAt: base}))
			require.NoError(t, store.AppendVersion(ctx, modules.VersionRecord{ModuleKey: "core", Version: "1.2.0", Tag: modules.TagRC, CreatedAt: base.Add(2 * time.Hour)}))
			require.NoError(t, store.AppendVersion(ctx, modules.VersionRecord{ModuleKey: "core", Version: "1.1.0", Tag: modules.TagStable, CreatedAt: base.Add(time.Hour)}))

			err := store.AppendVersion(ctx, modules.VersionRecord{ModuleKey: "core", Version: "1.1.0"})
			assert.True(t, errors.Is(err, modules.ErrVersionExists))

			records, err := store.ListVersions(ctx, "core")
			require.NoError(t, err)
			require.Len(t, records, 3)
			assert.Equal(t, "1.0.0", records[0].Version)
			for _, r := range records {
				assert.Equal(t, r.Version == "1.2.0", r.IsLatest, r.Version)
			}

			// the version log does not move the graph revision
			snap, err := store.Snapshot(ctx)
			require.NoError(t, err)
			assert.Equal(t, uint64(0), snap.Revision)

			empty, err := store.ListVersions(ctx, "ghost")
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestBackend_RollbackPoints(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			old := time.Now().Add(-48 * time.Hour)

			require.NoError(t, store.SavePoint(ctx, &modules.RollbackPoint{ID: "p1", ModuleKey: "core", Version: "1.4.0", Status: modules.PointAvailable, CreatedAt: old}))
			require.NoError(t, store.SavePoint(ctx, &modules.RollbackPoint{ID: "p2", ModuleKey: "core", Version: "1.5.0", Status: modules.PointAvailable, CreatedAt: time.Now()}))

			points, err := store.ListPoints(ctx, "core")
			require.NoError(t, err)
			require.Len(t, points, 2)
			assert.Equal(t, "p2", points[0].ID)

			stale, err := store.ListPointsBefore(ctx, time.Now().Add(-24*time.Hour), modules.PointAvailable)
			require.NoError(t, err)
			require.Len(t, stale, 1)
			assert.Equal(t, "p1", stale[0].ID)

			require.NoError(t, store.UpdatePointStatus(ctx, "p1", modules.PointExpired))
			p, err := store.GetPoint(ctx, "p1")
			require.NoError(t, err)
			assert.Equal(t, modules.PointExpired, p.Status)

			_, err = store.GetPoint(ctx, "missing")
			assert.True(t, errors.Is(err, modules.ErrPointNotFound))
			assert.True(t, errors.Is(store.UpdatePointStatus(ctx, "missing", modules.PointExpired), modules.ErrPointNotFound))
		})
	}
}

func TestFileSystemStore_PersistsAcrossInstances(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	first, err := NewFileSystemStore(root)
	require.NoError(t, err)
	_, err = first.Commit(ctx, 0, modules.CreateModule(modules.Module{Key: "core", InstalledVersion: "1.0.0"}))
	require.NoError(t, err)

	second, err := NewFileSystemStore(root)
	require.NoError(t, err)
	snap, err := second.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Revision)
	require.Len(t, snap.Modules, 1)

	_, err = os.Stat(filepath.Join(root, "graph.json.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestMemoryStore_SnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(modules.Module{Key: "core", InstalledVersion: "1.0.0"})

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	snap.Modules[0].InstalledVersion = "9.9.9"

	again, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", again.Modules[0].InstalledVersion)
}

func TestMemoryPlanStore_Transition(t *testing.T) {
	ctx := context.Background()
	plans := NewMemoryPlanStore()
	require.NoError(t, plans.SavePlan(ctx, &impact.Plan{ID: "p1", Status: impact.StatusPending}))

	p, err := plans.Transition(ctx, "p1", impact.StatusApproved, "")
	require.NoError(t, err)
	assert.Equal(t, impact.StatusApproved, p.Status)

	_, err = plans.Transition(ctx, "p1", impact.StatusApproved, "")
	var terr *modules.InvalidTransitionError
	assert.True(t, errors.As(err, &terr))

	_, err = plans.Transition(ctx, "ghost", impact.StatusApproved, "")
	assert.True(t, errors.Is(err, modules.ErrPlanNotFound))

	// concurrent executors: exactly one wins
	var wg sync.WaitGroup
	wins := make(chan struct{}, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := plans.Transition(ctx, "p1", impact.StatusExecuting, ""); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)
	assert.Len(t, wins, 1)

	p, err = plans.Transition(ctx, "p1", impact.StatusFailed, "snapshot moved")
	require.NoError(t, err)
	assert.Equal(t, "snapshot moved", p.FailureReason)
}

func TestLocalLocker(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "graph")
	require.NoError(t, err)

	timeout, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(timeout, "graph")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := locker.Lock(ctx, "plans")
	require.NoError(t, err)
	other()

	unlock()
	unlock()

	again, err := locker.Lock(ctx, "graph")
	require.NoError(t, err)
	again()
}
