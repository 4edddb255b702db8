// Package storage provides pluggable persistence backends for the module graph.
//
// # Overview
//
// Every backend implements modules.ModuleStore and modules.PointStore, and
// composes them into Backend together with a health check. The engine only
// ever sees the interfaces.
//
// # Backend Implementations
//
// MemoryStore: process memory. Default for tests and the CLI.
//
//	store := storage.NewMemoryStore(seed...)
//
// FileSystemStore: JSON files on disk. Single node, single process.
//
//	store, err := storage.NewFileSystemStore("/var/modgraph/data")
//
// sqlstore.Store: PostgreSQL or SQLite through database/sql, with the graph
// revision kept in its own row so commits are checked and applied inside one
// transaction. See pkg/storage/sqlstore.
//
// # Supporting Stores
//
//   - MemoryPlanStore and redisstore.PlanStore persist propagation plans
//   - LocalLocker and redisstore.Locker serialize mutations
//   - blob.FileSystem and blob.S3 hold captured rollback state
//
// # Optimistic Commits
//
// A snapshot carries the revision it was read at. Commit applies its
// mutations only if the store is still at that revision, otherwise it returns
// *modules.StaleSnapshotError and writes nothing. Appending to the version log
// does not move the revision.
package storage
