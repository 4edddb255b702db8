package modules

import (
	"context"
	"time"
)

// ModuleReader provides atomic reads of the module graph and version log
type ModuleReader interface {
	// Snapshot returns every module and edge at a single revision
	Snapshot(ctx context.Context) (*Snapshot, error)

	// ListVersions returns the version log of a module, oldest first, with
	// IsLatest set on the current latest record
	ListVersions(ctx context.Context, moduleKey string) ([]VersionRecord, error)
}

// ModuleWriter commits graph mutations and appends to the version log
type ModuleWriter interface {
	// Commit applies all mutations atomically if the store is still at the
	// expected revision, returning the new revision. A moved revision yields
	// *StaleSnapshotError and nothing is written.
	Commit(ctx context.Context, expected uint64, mutations ...Mutation) (uint64, error)

	// AppendVersion adds a record to the append-only version log. Publishing an
	// existing (module, version) pair fails with ErrVersionExists.
	AppendVersion(ctx context.Context, record VersionRecord) error
}

// ModuleStore is the engine's only view of persisted module state
type ModuleStore interface {
	ModuleReader
	ModuleWriter
}

// PointStore persists rollback point metadata
type PointStore interface {
	SavePoint(ctx context.Context, point *RollbackPoint) error
	GetPoint(ctx context.Context, id string) (*RollbackPoint, error)
	ListPoints(ctx context.Context, moduleKey string) ([]*RollbackPoint, error)
	ListPointsBefore(ctx context.Context, cutoff time.Time, status PointStatus) ([]*RollbackPoint, error)
	UpdatePointStatus(ctx context.Context, id string, status PointStatus) error
}

// BlobStore holds opaque captured state for rollback points
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Locker grants exclusive access to the store for re-validation and commit
type Locker interface {
	// Lock blocks until the named lock is held or ctx is done
	Lock(ctx context.Context, name string) (unlock func(), err error)
}
