package api

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/modgraph/pkg/dependencies"
	"github.com/platinummonkey/modgraph/pkg/engine"
	"github.com/platinummonkey/modgraph/pkg/impact"
	"github.com/platinummonkey/modgraph/pkg/modules"
	"github.com/platinummonkey/modgraph/pkg/observability"
	"github.com/platinummonkey/modgraph/pkg/rollback"
	"github.com/platinummonkey/modgraph/pkg/versioning"
)

// Engine is the set of graph operations the API exposes
type Engine interface {
	FetchDependencies(ctx context.Context, key string) (*engine.DependencyView, error)
	Resolve(ctx context.Context) (*engine.ResolveResult, error)
	Graph(ctx context.Context) (*engine.GraphView, error)
	Order(ctx context.Context) ([]string, error)
	Neighborhood(ctx context.Context, key string, opts dependencies.NeighborhoodOptions) (*dependencies.CytoscapeGraph, error)
	ResolveConflict(ctx context.Context, id string) (*engine.ConflictResolution, error)
	ResolveConflictAt(ctx context.Context, id string, revision uint64) (*engine.ConflictResolution, error)
	AddDependency(ctx context.Context, key string, req engine.AddDependencyRequest) (*engine.EdgeResult, error)
	RemoveDependency(ctx context.Context, key, depKey string) (uint64, error)
	RegisterModule(ctx context.Context, m modules.Module) (uint64, error)

	SuggestNextVersion(current, bump string) (string, error)
	CompareVersions(ctx context.Context, key, from, to string) (*versioning.Diff, error)
	CreateVersion(ctx context.Context, req engine.CreateVersionRequest) (*modules.VersionRecord, error)

	ValidateRollback(ctx context.Context, key, target string) (*rollback.Validation, error)
	ExecuteRollback(ctx context.Context, key, target, reason string) (*engine.RollbackResult, error)
	CreateRollbackPoint(ctx context.Context, key, reason string) (*modules.RollbackPoint, error)
	ListRollbackPoints(ctx context.Context, key string) ([]*modules.RollbackPoint, error)

	AnalyzeChangePropagation(ctx context.Context, key string, change impact.Change) (*impact.Plan, error)
	GetPlan(ctx context.Context, id string) (*impact.Plan, error)
	ListPlans(ctx context.Context) ([]*impact.Plan, error)
	ApprovePlan(ctx context.Context, id string) (*impact.Plan, error)
	RejectPlan(ctx context.Context, id, reason string) (*impact.Plan, error)
	ExecutePlan(ctx context.Context, id string) (*impact.Plan, error)
}

// Server represents our API server
type Server struct {
	engine   Engine
	router   *mux.Router
	validate *validator.Validate
	logger   *observability.Logger
}

// NewServer creates a new API server
func NewServer(eng Engine, logger *observability.Logger) *Server {
	if logger == nil {
		logger = observability.NopLogger()
	}
	s := &Server{
		engine:   eng,
		router:   mux.NewRouter(),
		validate: validator.New(),
		logger:   logger,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.Use(requestIDMiddleware, actorMiddleware)
	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	// Graph routes
	v1.HandleFunc("/graph", s.getGraph).Methods(http.MethodGet)
	v1.HandleFunc("/graph/order", s.getOrder).Methods(http.MethodGet)

	// Module and dependency routes
	v1.HandleFunc("/modules", s.registerModule).Methods(http.MethodPost)
	v1.HandleFunc("/modules/{key}/graph", s.getNeighborhood).Methods(http.MethodGet)
	v1.HandleFunc("/modules/{key}/dependencies", s.fetchDependencies).Methods(http.MethodGet)
	v1.HandleFunc("/modules/{key}/dependencies", s.addDependency).Methods(http.MethodPost)
	v1.HandleFunc("/modules/{key}/dependencies/{dep}", s.removeDependency).Methods(http.MethodDelete)

	// Conflict routes
	v1.HandleFunc("/conflicts", s.listConflicts).Methods(http.MethodGet)
	v1.HandleFunc("/conflicts/{id}/resolve", s.resolveConflict).Methods(http.MethodPost)

	// Version routes
	v1.HandleFunc("/versions/next", s.suggestNextVersion).Methods(http.MethodGet)
	v1.HandleFunc("/modules/{key}/versions", s.createVersion).Methods(http.MethodPost)
	v1.HandleFunc("/modules/{key}/versions/compare", s.compareVersions).Methods(http.MethodGet)

	// Rollback routes
	v1.HandleFunc("/modules/{key}/rollback/validate", s.validateRollback).Methods(http.MethodPost)
	v1.HandleFunc("/modules/{key}/rollback", s.executeRollback).Methods(http.MethodPost)
	v1.HandleFunc("/modules/{key}/rollback/points", s.listRollbackPoints).Methods(http.MethodGet)
	v1.HandleFunc("/modules/{key}/rollback/points", s.createRollbackPoint).Methods(http.MethodPost)

	// Propagation plan routes
	v1.HandleFunc("/modules/{key}/impact", s.analyzeImpact).Methods(http.MethodPost)
	v1.HandleFunc("/plans", s.listPlans).Methods(http.MethodGet)
	v1.HandleFunc("/plans/{id}", s.getPlan).Methods(http.MethodGet)
	v1.HandleFunc("/plans/{id}/approve", s.approvePlan).Methods(http.MethodPost)
	v1.HandleFunc("/plans/{id}/reject", s.rejectPlan).Methods(http.MethodPost)
	v1.HandleFunc("/plans/{id}/execute", s.executePlan).Methods(http.MethodPost)
}

// Router exposes the router so callers can mount health and metrics routes
// and install middleware
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
