// Package rollback validates rolling a module back to a prior version.
//
// Validate never consults the store. It reads one graph and reports, for the
// requested target, which dependents would break, a coarse downtime bucket and
// a data loss estimate. The verdict carries the graph revision it was computed
// at; callers must discard it once the graph moves.
package rollback
