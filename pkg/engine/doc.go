// Package engine is the single authoritative service over the module graph.
//
// Every operation the HTTP API and the CLI expose is a method on Service.
// Read operations (FetchDependencies, Resolve, CompareVersions,
// ValidateRollback, AnalyzeChangePropagation) take one snapshot of the store
// and run the pure analyses of pkg/dependencies, pkg/conflicts,
// pkg/versioning, pkg/impact and pkg/rollback over it.
//
// Mutations (ResolveConflict, AddDependency, RemoveDependency, ExecutePlan,
// ExecuteRollback) take the graph lock, re-validate against the current
// state and commit with the revision they validated at. A revision that moved
// yields *modules.StaleSnapshotError and nothing is written.
//
//	svc, _ := engine.New(engine.Deps{
//		Store:  store,
//		Plans:  storage.NewMemoryPlanStore(),
//		Locker: storage.NewLocalLocker(),
//	}, engine.DefaultOptions())
//
//	listing, _ := svc.Resolve(ctx)
//	for _, c := range listing.Conflicts {
//		if c.AutoResolvable {
//			_, err := svc.ResolveConflict(ctx, c.ID)
//			if modules.IsStale(err) {
//				// list again
//			}
//		}
//	}
//
// Every mutation writes an audit event and records an operation outcome
// (success, rejected, stale or error) in metrics.
package engine
