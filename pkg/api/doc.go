// Package api provides the HTTP REST API for the modgraph engine.
//
// # Overview
//
// Every route maps onto one engine.Service operation. Handlers decode and
// validate the request body (go-playground/validator), call the engine with
// the request context and translate the result or error into JSON through
// pkg/httputil.
//
//	server := api.NewServer(svc, logger)
//	http.ListenAndServe(":8080", server)
//
// # Routes
//
//	GET    /api/v1/graph                                   nodes, classified edges, cycles
//	GET    /api/v1/graph/order                             dependencies-first order
//	POST   /api/v1/modules                                 register a module
//	GET    /api/v1/modules/{key}/graph                     Cytoscape.js neighborhood (direction, transitive, depth)
//	GET    /api/v1/modules/{key}/dependencies              classified edges and dependents
//	POST   /api/v1/modules/{key}/dependencies              add or replace an edge
//	DELETE /api/v1/modules/{key}/dependencies/{dep}        remove an edge
//	GET    /api/v1/conflicts                               list conflicts
//	POST   /api/v1/conflicts/{id}/resolve                  apply a suggested resolution
//	GET    /api/v1/versions/next?current=&bump=            next version
//	POST   /api/v1/modules/{key}/versions                  publish a version
//	GET    /api/v1/modules/{key}/versions/compare?from=&to= diff two versions
//	POST   /api/v1/modules/{key}/rollback/validate         validate a rollback
//	POST   /api/v1/modules/{key}/rollback                  execute a validated rollback
//	GET    /api/v1/modules/{key}/rollback/points           list rollback points
//	POST   /api/v1/modules/{key}/rollback/points           capture a rollback point
//	POST   /api/v1/modules/{key}/impact                    analyze change propagation
//	GET    /api/v1/plans                                   list plans (?status=)
//	GET    /api/v1/plans/{id}                              get a plan
//	POST   /api/v1/plans/{id}/{approve,reject,execute}     move a plan
//
// # Errors
//
// Errors are answered with {"error", "code", "details"}:
//
//   - 400 invalid_request: malformed version or range, failed validation
//   - 404 not_found: unknown module, edge, version, plan, conflict or point
//   - 409: stale_snapshot, invalid_transition, required_dependency,
//     rollback_rejected, resolution_conflict, conflict_unresolvable,
//     already_exists
//   - 500 internal_error: anything else; the cause is logged, not returned
//
// The X-Actor header names the caller on audit events.
package api
