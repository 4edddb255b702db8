// Package modules defines the module data model shared by every part of the
// engine: installed modules and their declared dependencies, the append-only
// version log, rollback points, the mutations a commit is made of, and the
// typed errors callers match on.
//
// # Store contract
//
// ModuleStore is the only persistence boundary the engine talks to. It must
// support:
//
//   - an atomic read of all modules and edges (Snapshot)
//   - an atomic, revision-checked batch of mutations (Commit)
//   - an append-only VersionRecord log keyed by (module key, version)
//
// Commit is optimistic: every snapshot carries the revision it was read at,
// and a commit prepared against an older revision fails with
// *StaleSnapshotError without writing anything.
//
//	snap, _ := store.Snapshot(ctx)
//	rev, err := store.Commit(ctx, snap.Revision, modules.SetVersion("core", "1.6.0"))
//	if modules.IsStale(err) {
//		// refetch and retry
//	}
//
// # Related Packages
//
//   - pkg/storage: memory, filesystem, SQL and Redis implementations
//   - pkg/engine: the service that drives these interfaces
package modules
