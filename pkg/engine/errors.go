package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/platinummonkey/modgraph/pkg/conflicts"
	"github.com/platinummonkey/modgraph/pkg/modules"
	"github.com/platinummonkey/modgraph/pkg/semver"
)

// ErrPointsDisabled is returned by rollback point operations when the service
// was built without a point store or blob store
var ErrPointsDisabled = errors.New("rollback points are not configured")

// ResolutionRejectedError is returned when a resolution or a plan would leave
// the graph with error-severity conflicts it did not have before
type ResolutionRejectedError struct {
	// Subject is the conflict id or plan being applied
	Subject    string
	Introduced []conflicts.Report
}

func (e *ResolutionRejectedError) Error() string {
	ids := make([]string, 0, len(e.Introduced))
	for _, r := range e.Introduced {
		ids = append(ids, r.ID)
	}
	return fmt.Sprintf("applying %s would introduce %s", e.Subject, strings.Join(ids, ", "))
}

func (e *ResolutionRejectedError) Unwrap() error { return modules.ErrResolutionConflict }

// RollbackRejectedError carries the failing verdict of a rollback
type RollbackRejectedError struct {
	ModuleKey     string
	TargetVersion string
	Errors        []string
}

func (e *RollbackRejectedError) Error() string {
	return fmt.Sprintf("rollback of %s to %s rejected: %s", e.ModuleKey, e.TargetVersion, strings.Join(e.Errors, "; "))
}

func (e *RollbackRejectedError) Unwrap() error { return modules.ErrRollbackRejected }

// IsRejection reports whether err was caused by the request rather than by a
// failing dependency: bad input, a missing resource, or a rule the request
// would break. Stale commits are not rejections.
func IsRejection(err error) bool {
	if err == nil {
		return false
	}

	var parseErr *semver.ParseError
	var transitionErr *modules.InvalidTransitionError
	var requiredErr *modules.RequiredDependencyError
	switch {
	case errors.As(err, &parseErr),
		errors.As(err, &transitionErr),
		errors.As(err, &requiredErr):
		return true
	}

	for _, sentinel := range []error{
		modules.ErrModuleNotFound,
		modules.ErrModuleExists,
		modules.ErrDependencyNotFound,
		modules.ErrVersionExists,
		modules.ErrVersionNotFound,
		modules.ErrPlanNotFound,
		modules.ErrConflictNotFound,
		modules.ErrConflictUnresolvable,
		modules.ErrResolutionConflict,
		modules.ErrRollbackNotValidated,
		modules.ErrRollbackRejected,
		modules.ErrPointNotFound,
		modules.ErrPointCorrupted,
		ErrInvalidRequest,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// ErrInvalidRequest wraps input that is well formed but unacceptable
var ErrInvalidRequest = errors.New("invalid request")
