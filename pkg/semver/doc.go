// Package semver wraps github.com/Masterminds/semver/v3 with the strict
// major.minor.patch rules used for installed and published module versions.
//
// Versions must be exactly three numeric components; anything else fails with
// a *ParseError instead of being coerced. Range expressions use the
// Masterminds syntax (^, ~, comparison operators, ||).
//
//	v, err := semver.ParseVersion("1.4.7")
//	next := v.Next(semver.BumpMinor) // 1.5.0
//	ok := semver.Satisfies(next, semver.MustParseConstraint("^1.5.0"))
package semver
