package modules

import (
	"errors"
	"fmt"
)

var (
	ErrModuleNotFound       = errors.New("module not found")
	ErrModuleExists         = errors.New("module already exists")
	ErrDependencyNotFound   = errors.New("dependency not found")
	ErrVersionExists        = errors.New("version already published")
	ErrVersionNotFound      = errors.New("version not found")
	ErrPlanNotFound         = errors.New("propagation plan not found")
	ErrConflictNotFound     = errors.New("conflict not found")
	ErrConflictUnresolvable = errors.New("conflict has no suggested resolution")
	ErrResolutionConflict   = errors.New("resolution introduces new conflicts")
	ErrRollbackNotValidated = errors.New("rollback has not been validated")
	ErrRollbackRejected     = errors.New("rollback validation failed")
	ErrPointNotFound        = errors.New("rollback point not found")
	ErrPointCorrupted       = errors.New("rollback point is corrupted")
)

// StaleSnapshotError is returned when a mutation was prepared against a store
// revision that is no longer current. The caller must refetch and retry.
type StaleSnapshotError struct {
	Expected uint64
	Actual   uint64
}

func (e *StaleSnapshotError) Error() string {
	return fmt.Sprintf("stale snapshot: prepared at revision %d, store is at revision %d", e.Expected, e.Actual)
}

// InvalidTransitionError is returned when a plan is asked to move to a state
// its current state does not allow.
type InvalidTransitionError struct {
	PlanID string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("plan %s: invalid transition %s -> %s", e.PlanID, e.From, e.To)
}

// RequiredDependencyError is returned when removing a required edge or moving
// a core module below its minimum version.
type RequiredDependencyError struct {
	ModuleKey string
	DepKey    string
	Reason    string
}

func (e *RequiredDependencyError) Error() string {
	if e.DepKey != "" {
		return fmt.Sprintf("%s -> %s: %s", e.ModuleKey, e.DepKey, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.ModuleKey, e.Reason)
}

// IsStale reports whether err is a StaleSnapshotError
func IsStale(err error) bool {
	var stale *StaleSnapshotError
	return errors.As(err, &stale)
}
