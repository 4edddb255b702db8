package api

import (
	"encoding/json"
	"net/http"

	"github.com/platinummonkey/modgraph/pkg/dependencies"
	"github.com/platinummonkey/modgraph/pkg/engine"
	"github.com/platinummonkey/modgraph/pkg/httputil"
	"github.com/platinummonkey/modgraph/pkg/impact"
	"github.com/platinummonkey/modgraph/pkg/modules"
)

// RegisterModuleRequest is the body of POST /api/v1/modules
type RegisterModuleRequest struct {
	Key              string               `json:"key" validate:"required"`
	InstalledVersion string               `json:"installed_version" validate:"required"`
	IsCore           bool                 `json:"is_core,omitempty"`
	MinimumVersion   string               `json:"minimum_version,omitempty"`
	Dependencies     []modules.Dependency `json:"dependencies,omitempty"`
	Config           json.RawMessage      `json:"config,omitempty"`
}

// ResolveConflictRequest optionally pins a resolution to a listed revision
type ResolveConflictRequest struct {
	Revision *uint64 `json:"revision,omitempty"`
}

// RollbackRequest is the body of the rollback validate and execute routes
type RollbackRequest struct {
	TargetVersion string `json:"target_version" validate:"required"`
	Reason        string `json:"reason,omitempty"`
}

// RollbackPointRequest is the body of POST .../rollback/points
type RollbackPointRequest struct {
	Reason string `json:"reason,omitempty"`
}

// RejectPlanRequest is the optional body of POST /plans/{id}/reject
type RejectPlanRequest struct {
	Reason string `json:"reason,omitempty"`
}

// RevisionResponse answers mutations that return only a revision
type RevisionResponse struct {
	Revision uint64 `json:"revision"`
}

// NextVersionResponse answers GET /api/v1/versions/next
type NextVersionResponse struct {
	Current string `json:"current"`
	Bump    string `json:"bump"`
	Next    string `json:"next"`
}

// decode parses the JSON body into dest and validates it, writing a 400 on failure
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if !httputil.ParseJSONOrError(w, r, dest) {
		return false
	}
	if err := s.validate.Struct(dest); err != nil {
		s.writeEngineError(w, r, err, nil)
		return false
	}
	return true
}

// decodeOptional is decode for bodies that may be empty
func (s *Server) decodeOptional(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if r.ContentLength == 0 {
		return true
	}
	return s.decode(w, r, dest)
}

// getGraph handles GET /api/v1/graph
func (s *Server) getGraph(w http.ResponseWriter, r *http.Request) {
	view, err := s.engine.Graph(r.Context())
	if err != nil {
		s.writeEngineError(w, r, err, nil)
		return
	}
	httputil.WriteSuccess(w, view)
}

// getNeighborhood handles GET /api/v1/modules/{key}/graph
// Query parameters:
//   - direction: "dependencies", "dependents" or "both" (default: "dependencies")
//   - transitive: follow dependencies of dependencies (default: true)
//   - depth: max depth for transitive dependencies (default: unlimited)
func (s *Server) getNeighborhood(w http.ResponseWriter, r *http.Request) {
	key, ok := httputil.PathStringOrError(w, r, "key")
	if !ok {
		return
	}
	direction, err := dependencies.ParseDirection(httputil.QueryString(r, "direction", ""))
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	transitive, err := httputil.QueryBool(r, "transitive", true)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	depth, err := httputil.QueryInt(r, "depth", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	out, err := s.engine.Neighborhood(r.Context(), key, dependencies.NeighborhoodOptions{
		Direction:  direction,
		Transitive: transitive,
		MaxDepth:   depth,
	})
	if err != nil {
		s.writeEngineError(w, r, err, nil)
		return
	}
	httputil.WriteSuccess(w, out)
}

// getOrder handles GET /api/v1/graph/order
func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.engine.Order(r.Context())
	if err != nil {
		s.writeEngineError(w, r, err, nil)
		return
	}
	httputil.WriteSuccess(w, map[string][]string{"order": order})
}

// registerModule handles POST /api/v1/modules
func (s *Server) registerModule(w http.ResponseWriter, r *http.Request) {
	var req RegisterModuleRequest
	if !s.decode(w, r, &req) {
		return
	}

	revision, err := s.engine.RegisterModule(r.Context(), modules.Module{
		Key:              req.Key,
		InstalledVersion: req.InstalledVersion,
		IsCore:           req.IsCore,
		MinimumVersion:   req.MinimumVersion,
		Dependencies:     req.Dependencies,
		Config:           req.Config,
	})
	if err != nil {
		s.writeEngineError(w, r, err, nil)
		return
	}
	httputil.WriteCreated(w, RevisionResponse{Revision: revision})
}

// fetchDependencies handles GET /api/v1/modules/{key}/dependencies
func (s *Server) fetchDependencies(w http.ResponseWriter, r *http.Request) {
	key, ok := httputil.PathStringOrError(w, r, "key")
	if !ok {
		return
	}
	view, err := s.engine.FetchDependencies(r.Context(), key)
	if err != nil {
		s.writeEngineError(w, r, err, nil)
		return
	}
	httputil.WriteSuccess(w, view)
}

// addDependency handles POST /api/v1/modules/{key}/dependencies
func (s *Server) addDependency(w http.ResponseWriter, r *http.Request) {
	key, ok := httputil.PathStringOrError(w, r, "key")
	if !ok {
		return
	}
	var req engine.AddDependencyRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.engine.AddDependency(r.Context(), key, req)
	if err != nil {
		s.writeEngineError(w, r, err, nil)
		return
	}
	httputil.WriteCreated(w, res)
}

// removeDependency handles DELETE /api/v1/modules/{key}/dependencies/{dep}
func (s *Server) removeDependency(w http.ResponseWriter, r *http.Request) {
	key, ok := httputil.PathStringOrError(w, r, "key")
	if !ok {
		return
	}
	dep, ok := httputil.PathStringOrError(w, r, "dep")
	if !ok {
		return
	}

	revision, err := s.engine.RemoveDependency(r.Context(), key, dep)
	if err != nil {
		s.writeEngineError(w, r, err, nil)
		return
	}
	httputil.WriteSuccess(w, RevisionResponse{Revision: revision})
}

// listConflicts handles GET /api/v1/conflicts
func (s *Server) listConflicts(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.Resolve(r.Context())
	if err != nil {
		s.writeEngineError(w, r, err, nil)
		return
	}
	httputil.WriteSuccess(w, result)
}

// resolveConflict handles POST /api/v1/conflicts/{id}/resolve
func (s *Server) resolveConflict(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var req ResolveConflictRequest
	if !s.decodeOptional(w, r, &req) {
		return
	}

	var (
		res *engine.ConflictResolution
		err error
	)
	if req.Revision != nil {
		res, err = s.engine.ResolveConflictAt(r.Context(), id, *req.Revision)
	} else {
		res, err = s.engine.ResolveConflict(r.Context(), id)
	}
	if err != nil {
		s.writeEngineError(w, r, err, nil)
		return
	}
	httputil.WriteSuccess(w, res)
}

// suggestNextVersion handles GET /api/v1/versions/next?current=&bump=
func (s *Server) suggestNextVersion(w http.ResponseWriter, r *http.Request) {
	current := httputil.QueryString(r, "current", "")
	bump := httputil.QueryString(r, "bump", "patch")
	if current == "" {
		httputil.WriteBadRequest(w, "missing query parameter: current")
		return
	}

	next, err := s.engine.SuggestNextVersion(current, bump)
	if err != nil {
		s.writeEngineError(w, r, err, nil)
		return
	}
	httputil.WriteSuccess(w, NextVersionResponse{Current: current, Bump: bump, Next: next})
}

// createVersion handles POST /api/v1/modules/{key}/versions
func (s *Server) createVersion(w http.ResponseWriter, r *http.Request) {
	key, ok := httputil.PathStringOrError(w, r, "key")
	if !ok {
		return
	}
	var req engine.CreateVersionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	req.ModuleKey = key
	if err := s.validate.Struct(&req); err != nil {
		s.writeEngineError(w, r, err, nil)
		return
	}

	record, err := s.engine.CreateVersion(r.Context(), req)
	if err != nil {
		s.writeEngineError(w, r, err, nil)
		return
	}
	httputil.WriteCreated(w, record)
}

// compareVersions handles GET /api/v1/modules/{key}/versions/compare?from=&to=
func (s *Server) compareVersions(w http.ResponseWriter, r *http.Request) {
	key, ok := httputil.PathStringOrError(w, r, "key")
	if !ok {
		return
	}
	from := httputil.QueryString(r, "from", "")
	to := httputil.QueryString(r, "to", "")
	if from == "" || to == "" {
		httputil.WriteBadRequest(w, "query parameters from and to are required")
		return
	}

	diff, err := s.engine.CompareVersions(r.Context(), key, from, to)
	if err != nil {
		s.writeEngineError(w, r, err, nil)
		return
	}
	httputil.WriteSuccess(w, diff)
}

// validateRollback handles POST /api/v1/modules/{key}/rollback/validate
func (s *Server) validateRollback(w http.ResponseWriter, r *http.Request) {
	key, ok := httputil.PathStringOrError(w, r, "key")
	if !ok {
		return
	}
	var req RollbackRequest
	if !s.decode(w, r, &req) {
		return
	}

	verdict, err := s.engine.ValidateRollback(r.Context(), key, req.TargetVersion)
	if err != nil {
		s.writeEngineError(w, r, err, nil)
		return
	}
	httputil.WriteSuccess(w, verdict)
}

// executeRollback handles POST /api/v1/modules/{key}/rollback
func (s *Server) executeRollback(w http.ResponseWriter, r *http.Request) {
	key, ok := httputil.PathStringOrError(w, r, "key")
	if !ok {
		return
	}
	var req RollbackRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.engine.ExecuteRollback(r.Context(), key, req.TargetVersion, req.Reason)
	if err != nil {
		s.writeEngineError(w, r, err, nil)
		return
	}
	httputil.WriteSuccess(w, res)
}

// listRollbackPoints handles GET /api/v1/modules/{key}/rollback/points
func (s *Server) listRollbackPoints(w http.ResponseWriter, r *http.Request) {
	key, ok := httputil.PathStringOrError(w, r, "key")
	if !ok {
		return
	}
	points, err := s.engine.ListRollbackPoints(r.Context(), key)
	if err != nil {
		s.writeEngineError(w, r, err, nil)
		return
	}
	httputil.WriteSuccess(w, points)
}

// createRollbackPoint handles POST /api/v1/modules/{key}/rollback/points
func (s *Server) createRollbackPoint(w http.ResponseWriter, r *http.Request) {
	key, ok := httputil.PathStringOrError(w, r, "key")
	if !ok {
		return
	}
	var req RollbackPointRequest
	if !s.decodeOptional(w, r, &req) {
		return
	}

	point, err := s.engine.CreateRollbackPoint(r.Context(), key, req.Reason)
	if err != nil {
		s.writeEngineError(w, r, err, nil)
		return
	}
	httputil.WriteCreated(w, point)
}

// analyzeImpact handles POST /api/v1/modules/{key}/impact
func (s *Server) analyzeImpact(w http.ResponseWriter, r *http.Request) {
	key, ok := httputil.PathStringOrError(w, r, "key")
	if !ok {
		return
	}
	var change impact.Change
	if !s.decode(w, r, &change) {
		return
	}

	plan, err := s.engine.AnalyzeChangePropagation(r.Context(), key, change)
	if err != nil {
		s.writeEngineError(w, r, err, nil)
		return
	}
	httputil.WriteCreated(w, plan)
}

// listPlans handles GET /api/v1/plans, optionally filtered by ?status=
func (s *Server) listPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.engine.ListPlans(r.Context())
	if err != nil {
		s.writeEngineError(w, r, err, nil)
		return
	}
	if status := httputil.QueryString(r, "status", ""); status != "" {
		filtered := make([]*impact.Plan, 0, len(plans))
		for _, p := range plans {
			if string(p.Status) == status {
				filtered = append(filtered, p)
			}
		}
		plans = filtered
	}
	httputil.WriteSuccess(w, plans)
}

// getPlan handles GET /api/v1/plans/{id}
func (s *Server) getPlan(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathStringOrError(w, r, "id")
	if !ok {
		return
	}
	plan, err := s.engine.GetPlan(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, r, err, nil)
		return
	}
	httputil.WriteSuccess(w, plan)
}

// approvePlan handles POST /api/v1/plans/{id}/approve
func (s *Server) approvePlan(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathStringOrError(w, r, "id")
	if !ok {
		return
	}
	plan, err := s.engine.ApprovePlan(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, r, err, nil)
		return
	}
	httputil.WriteSuccess(w, plan)
}

// rejectPlan handles POST /api/v1/plans/{id}/reject
func (s *Server) rejectPlan(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var req RejectPlanRequest
	if !s.decodeOptional(w, r, &req) {
		return
	}

	plan, err := s.engine.RejectPlan(r.Context(), id, req.Reason)
	if err != nil {
		s.writeEngineError(w, r, err, nil)
		return
	}
	httputil.WriteSuccess(w, plan)
}

// executePlan handles POST /api/v1/plans/{id}/execute. A plan that failed
// during execution is returned in the error details.
func (s *Server) executePlan(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathStringOrError(w, r, "id")
	if !ok {
		return
	}
	plan, err := s.engine.ExecutePlan(r.Context(), id)
	if err != nil {
		var details interface{}
		if plan != nil {
			details = map[string]interface{}{"plan": plan}
		}
		s.writeEngineError(w, r, err, details)
		return
	}
	httputil.WriteSuccess(w, plan)
}
