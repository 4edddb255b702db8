package semver

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	mm "github.com/Masterminds/semver/v3"
)

// Version is a strict major.minor.patch semantic version.
//
// This is a thin wrapper around github.com/Masterminds/semver/v3 that refuses
// the lenient forms Masterminds accepts ("1.2", "v1.2.3", "1.2.3-beta").
// Pre-release tags are tracked separately by callers, never inside the triple.
type Version struct {
	v *mm.Version
}

// Constraint is a semantic version range expression.
//
// Examples:
// - "^1.5.0"
// - ">=1.2.0 <2.0.0"
// - "~1.4.0 || ^2.0.0"
type Constraint struct {
	raw string
	c   *mm.Constraints
}

// Bump selects which component of a version is incremented.
type Bump int

const (
	BumpPatch Bump = iota
	BumpMinor
	BumpMajor
)

func (b Bump) String() string {
	switch b {
	case BumpPatch:
		return "patch"
	case BumpMinor:
		return "minor"
	case BumpMajor:
		return "major"
	}
	return fmt.Sprintf("bump(%d)", int(b))
}

// ParseBump parses "patch", "minor" or "major" (case-insensitive).
func ParseBump(raw string) (Bump, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "patch":
		return BumpPatch, nil
	case "minor":
		return BumpMinor, nil
	case "major":
		return BumpMajor, nil
	}
	return BumpPatch, fmt.Errorf("unknown bump kind %q", raw)
}

// ParseError is returned for malformed version strings and range expressions.
type ParseError struct {
	Input  string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("semver: parse %q: %s: %v", e.Input, e.Reason, e.Err)
	}
	return fmt.Sprintf("semver: parse %q: %s", e.Input, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseVersion parses a strict "major.minor.patch" triple.
func ParseVersion(raw string) (Version, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return Version{}, &ParseError{Input: raw, Reason: fmt.Sprintf("expected 3 components, got %d", len(parts))}
	}
	for _, p := range parts {
		if p == "" {
			return Version{}, &ParseError{Input: raw, Reason: "empty component"}
		}
		if _, err := strconv.ParseUint(p, 10, 64); err != nil {
			return Version{}, &ParseError{Input: raw, Reason: fmt.Sprintf("non-numeric component %q", p)}
		}
	}
	v, err := mm.StrictNewVersion(raw)
	if err != nil {
		return Version{}, &ParseError{Input: raw, Reason: "invalid version", Err: err}
	}
	return Version{v: v}, nil
}

func MustParseVersion(raw string) Version {
	v, err := ParseVersion(raw)
	if err != nil {
		panic(err)
	}
	return v
}

// ParseConstraint parses a range expression. An empty expression matches any version.
func ParseConstraint(raw string) (Constraint, error) {
	expr := strings.TrimSpace(raw)
	if expr == "" {
		expr = "*"
	}
	c, err := mm.NewConstraint(expr)
	if err != nil {
		return Constraint{}, &ParseError{Input: raw, Reason: "invalid range", Err: err}
	}
	return Constraint{raw: expr, c: c}, nil
}

func MustParseConstraint(raw string) Constraint {
	c, err := ParseConstraint(raw)
	if err != nil {
		panic(err)
	}
	return c
}

func (v Version) IsZero() bool { return v.v == nil }

func (v Version) Major() uint64 {
	if v.v == nil {
		return 0
	}
	return v.v.Major()
}

func (v Version) Minor() uint64 {
	if v.v == nil {
		return 0
	}
	return v.v.Minor()
}

func (v Version) Patch() uint64 {
	if v.v == nil {
		return 0
	}
	return v.v.Patch()
}

func (v Version) String() string {
	if v.v == nil {
		return ""
	}
	return v.v.String()
}

func (c Constraint) String() string { return c.raw }

func (c Constraint) IsZero() bool { return c.c == nil }

// Next returns the version after v for the given bump kind. Patch increments
// the last component only, minor zeroes patch, major zeroes minor and patch.
func (v Version) Next(b Bump) Version {
	if v.v == nil {
		return v
	}
	var next mm.Version
	switch b {
	case BumpMajor:
		next = v.v.IncMajor()
	case BumpMinor:
		next = v.v.IncMinor()
	default:
		next = v.v.IncPatch()
	}
	return Version{v: &next}
}

func Satisfies(v Version, c Constraint) bool {
	if v.v == nil || c.c == nil {
		return false
	}
	return c.c.Check(v.v)
}

// Compare compares a and b, returning:
// -1 if a < b
//
//	0 if a == b
//	1 if a > b
func Compare(a, b Version) int {
	if a.v == nil && b.v == nil {
		return 0
	}
	if a.v == nil {
		return -1
	}
	if b.v == nil {
		return 1
	}
	return a.v.Compare(b.v)
}

func Less(a, b Version) bool { return Compare(a, b) < 0 }

// Sort orders versions ascending in place.
func Sort(vs []Version) {
	sort.SliceStable(vs, func(i, j int) bool { return Less(vs[i], vs[j]) })
}

// MaxSatisfying returns the highest version in candidates that satisfies c.
//
// If multiple versions are equal, the first encountered wins.
func MaxSatisfying(c Constraint, candidates []Version) (Version, bool) {
	var best Version
	found := false
	for _, candidate := range candidates {
		if !Satisfies(candidate, c) {
			continue
		}
		if !found || Compare(candidate, best) > 0 {
			best = candidate
			found = true
		}
	}
	return best, found
}

var literalPattern = regexp.MustCompile(`\d+(?:\.(?:\d+|[xX*]))?(?:\.(?:\d+|[xX*]))?`)

// Boundaries returns the versions a range expression pivots on: every literal
// in the expression (missing or wildcard components read as zero) plus its
// immediate neighbours. Useful for probing two ranges against each other
// without enumerating the version space.
func (c Constraint) Boundaries() []Version {
	seen := make(map[string]bool)
	out := make([]Version, 0)
	add := func(major, minor, patch uint64) {
		v := mm.New(major, minor, patch, "", "")
		if seen[v.String()] {
			return
		}
		seen[v.String()] = true
		out = append(out, Version{v: v})
	}
	for _, lit := range literalPattern.FindAllString(c.raw, -1) {
		nums := [3]uint64{}
		for i, p := range strings.Split(lit, ".") {
			n, err := strconv.ParseUint(p, 10, 64)
			if err != nil {
				continue
			}
			nums[i] = n
		}
		major, minor, patch := nums[0], nums[1], nums[2]
		add(major, minor, patch)
		add(major, minor, patch+1)
		add(major, minor+1, 0)
		add(major+1, 0, 0)
		if patch > 0 {
			add(major, minor, patch-1)
		}
		if minor > 0 {
			add(major, minor-1, 0)
		}
		if major > 0 {
			add(major-1, 0, 0)
		}
	}
	Sort(out)
	return out
}

// Narrows reports whether moving from old to updated rejects some version old
// accepted. Probes are the boundaries of both ranges plus any extra versions
// supplied by the caller.
func Narrows(old, updated Constraint, extra ...Version) bool {
	if old.c == nil || updated.c == nil {
		return false
	}
	probes := append(old.Boundaries(), updated.Boundaries()...)
	probes = append(probes, extra...)
	for _, p := range probes {
		if Satisfies(p, old) && !Satisfies(p, updated) {
			return true
		}
	}
	return false
}
