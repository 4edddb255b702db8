// Package versioning holds the pure version arithmetic used across the engine:
// next-version suggestions, diffs between two published versions of a module,
// and selection among published versions by release tag.
package versioning
