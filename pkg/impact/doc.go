// Package impact computes propagation plans for a proposed change and holds
// the plan state machine.
//
// A plan starts pending. An operator approves or rejects it, and only an
// approved plan may execute:
//
//	pending -> approved -> executing -> completed
//	                                 -> failed
//	pending -> rejected
//
// Approving has no effect on the module graph. Execution lives in pkg/engine,
// which re-checks the graph before committing.
package impact
