// Package conflicts classifies dependency edges and proposes resolutions.
//
// Resolve walks every edge of a dependencies.Graph and reports missing
// targets, unsatisfied ranges and cycle membership. Severity follows the edge:
// a required edge that is not satisfied is an error, an optional one a
// warning. Missing modules and cycles are always errors.
//
// A version mismatch is auto-resolvable when some version with the installed
// major satisfies the range. The suggestion is the lower of the first bump
// that satisfies the range and the best published version, where best means
// the highest stable, then rc, beta and alpha.
package conflicts
