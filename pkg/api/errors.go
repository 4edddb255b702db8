package api

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/platinummonkey/modgraph/pkg/dependencies"
	"github.com/platinummonkey/modgraph/pkg/engine"
	"github.com/platinummonkey/modgraph/pkg/httputil"
	"github.com/platinummonkey/modgraph/pkg/modules"
	"github.com/platinummonkey/modgraph/pkg/observability"
	"github.com/platinummonkey/modgraph/pkg/semver"
)

// Error codes returned in the code field of error responses
const (
	CodeInvalidRequest       = "invalid_request"
	CodeNotFound             = "not_found"
	CodeStaleSnapshot        = "stale_snapshot"
	CodeInvalidTransition    = "invalid_transition"
	CodeRequiredDependency   = "required_dependency"
	CodeRollbackRejected     = "rollback_rejected"
	CodeResolutionConflict   = "resolution_conflict"
	CodeConflictUnresolvable = "conflict_unresolvable"
	CodeAlreadyExists        = "already_exists"
	CodeNotConfigured        = "not_configured"
	CodeCyclicGraph          = "cyclic_graph"
	CodeInternal             = "internal_error"
)

var notFound = []error{
	modules.ErrModuleNotFound,
	modules.ErrDependencyNotFound,
	modules.ErrVersionNotFound,
	modules.ErrPlanNotFound,
	modules.ErrConflictNotFound,
	modules.ErrPointNotFound,
}

// classify maps an engine error to an HTTP status and error code
func classify(err error) (int, string) {
	var (
		parseErr      *semver.ParseError
		validationErr validator.ValidationErrors
		transitionErr *modules.InvalidTransitionError
		requiredErr   *modules.RequiredDependencyError
		cycleErr      *dependencies.CycleError
	)

	switch {
	case errors.As(err, &parseErr), errors.As(err, &validationErr), errors.Is(err, engine.ErrInvalidRequest):
		return http.StatusBadRequest, CodeInvalidRequest
	case modules.IsStale(err):
		return http.StatusConflict, CodeStaleSnapshot
	case errors.As(err, &transitionErr):
		return http.StatusConflict, CodeInvalidTransition
	case errors.As(err, &requiredErr):
		return http.StatusConflict, CodeRequiredDependency
	case errors.As(err, &cycleErr):
		return http.StatusConflict, CodeCyclicGraph
	case errors.Is(err, modules.ErrRollbackNotValidated),
		errors.Is(err, modules.ErrRollbackRejected),
		errors.Is(err, modules.ErrPointCorrupted):
		return http.StatusConflict, CodeRollbackRejected
	case errors.Is(err, modules.ErrResolutionConflict):
		return http.StatusConflict, CodeResolutionConflict
	case errors.Is(err, modules.ErrConflictUnresolvable):
		return http.StatusConflict, CodeConflictUnresolvable
	case errors.Is(err, modules.ErrVersionExists), errors.Is(err, modules.ErrModuleExists):
		return http.StatusConflict, CodeAlreadyExists
	case errors.Is(err, engine.ErrPointsDisabled):
		return http.StatusNotImplemented, CodeNotConfigured
	}
	for _, sentinel := range notFound {
		if errors.Is(err, sentinel) {
			return http.StatusNotFound, CodeNotFound
		}
	}
	return http.StatusInternalServerError, CodeInternal
}

// writeEngineError writes err with its mapped status. details, when not nil,
// is returned alongside the error (a failed plan, the rejected verdict).
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error, details interface{}) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"path":       r.URL.Path,
			"request_id": observability.GetRequestID(r.Context()),
		}).Error("request failed")
		httputil.WriteInternalError(w)
		return
	}
	if details == nil {
		details = errorDetails(err)
	}
	httputil.WriteDetailedError(w, status, code, err, details)
}

func errorDetails(err error) interface{} {
	var stale *modules.StaleSnapshotError
	if errors.As(err, &stale) {
		return map[string]uint64{"expected_revision": stale.Expected, "actual_revision": stale.Actual}
	}
	var rejected *engine.ResolutionRejectedError
	if errors.As(err, &rejected) {
		return map[string]interface{}{"introduced": rejected.Introduced}
	}
	var rollbackErr *engine.RollbackRejectedError
	if errors.As(err, &rollbackErr) {
		return map[string]interface{}{"errors": rollbackErr.Errors}
	}
	var validationErr validator.ValidationErrors
	if errors.As(err, &validationErr) {
		fields := make(map[string]string, len(validationErr))
		for _, fe := range validationErr {
			fields[fe.Field()] = fe.Tag()
		}
		return map[string]interface{}{"fields": fields}
	}
	return nil
}
