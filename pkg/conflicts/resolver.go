package conflicts

import (
	"fmt"

	"github.com/platinummonkey/modgraph/pkg/dependencies"
	"github.com/platinummonkey/modgraph/pkg/modules"
	"github.com/platinummonkey/modgraph/pkg/semver"
	"github.com/platinummonkey/modgraph/pkg/versioning"
)

// VersionIndex holds the published version log of each module by key
type VersionIndex map[string][]modules.VersionRecord

// Resolve checks every dependency edge of g and returns one report per
// problem found, in edge declaration order. A cycle, a missing module or an
// unsatisfied range is output data, never an error.
func Resolve(g *dependencies.Graph, versions VersionIndex, opts Options) []Report {
	cycles := g.Cycles()
	reports := make([]Report, 0)

	for _, e := range g.Edges() {
		if e.IsDev && !opts.IncludeDev {
			continue
		}
		reports = append(reports, checkEdge(g, e, cycles, versions)...)
	}
	return reports
}

func checkEdge(g *dependencies.Graph, e dependencies.Edge, cycles []dependencies.Cycle, versions VersionIndex) []Report {
	target, ok := g.Node(e.To)
	if !ok {
		return []Report{{
			ID:       ReportID(TypeMissingModule, e.From, e.To),
			Type:     TypeMissingModule,
			Severity: SeverityError,
			From:     e.From,
			To:       e.To,
			Range:    e.Range,
			IsDev:    e.IsDev,
			Message:  fmt.Sprintf("%s requires %s %s but %s is not installed", e.From, e.To, e.Range, e.To),
		}}
	}

	out := make([]Report, 0, 2)
	if r, mismatch := checkRange(e, target, versions[e.To]); mismatch {
		out = append(out, r)
	}

	for _, c := range cycles {
		if c.Contains(e.From, e.To) {
			out = append(out, Report{
				ID:               ReportID(TypeCircular, e.From, e.To),
				Type:             TypeCircular,
				Severity:         SeverityError,
				From:             e.From,
				To:               e.To,
				Range:            e.Range,
				InstalledVersion: target.Version,
				IsDev:            e.IsDev,
				Cycle:            []string(c),
				Message:          fmt.Sprintf("%s -> %s is part of dependency cycle %s", e.From, e.To, c),
			})
			break
		}
	}
	return out
}

func checkRange(e dependencies.Edge, target *dependencies.Node, published []modules.VersionRecord) (Report, bool) {
	r := Report{
		ID:               ReportID(TypeVersionMismatch, e.From, e.To),
		Type:             TypeVersionMismatch,
		Severity:         SeverityWarning,
		From:             e.From,
		To:               e.To,
		Range:            e.Range,
		InstalledVersion: target.Version,
		IsDev:            e.IsDev,
	}
	if e.IsRequired {
		r.Severity = SeverityError
	}

	c, err := semver.ParseConstraint(e.Range)
	if err != nil {
		r.Message = fmt.Sprintf("%s declares an unparseable range for %s: %v", e.From, e.To, err)
		return r, true
	}
	installed, err := semver.ParseVersion(target.Version)
	if err != nil {
		r.Message = fmt.Sprintf("%s has an unparseable installed version: %v", e.To, err)
		return r, true
	}
	if semver.Satisfies(installed, c) {
		return Report{}, false
	}

	suggestion, auto := Suggest(installed, c, published)
	if !suggestion.IsZero() {
		r.SuggestedResolution = suggestion.String()
	}
	r.AutoResolvable = auto
	r.Message = fmt.Sprintf("%s requires %s %s, installed %s", e.From, e.To, e.Range, target.Version)
	return r, true
}

// Suggest proposes a version of the target that satisfies c. Candidates are
// the lowest same-major version above installed that satisfies c
// and the published version picked by tag priority; the lower candidate that
// keeps the installed major wins. The result is auto-resolvable only when it
// keeps the installed major. With no same-major candidate the published pick
// is still returned as a manual suggestion.
func Suggest(installed semver.Version, c semver.Constraint, published []modules.VersionRecord) (semver.Version, bool) {
	var pick semver.Version
	if rec, ok := versioning.SelectPublished(published, c); ok {
		pick, _ = semver.ParseVersion(rec.Version)
	}

	var best semver.Version
	if chain, ok := versioning.NextSatisfying(installed, c); ok {
		best = chain
	}
	if !pick.IsZero() && pick.Major() == installed.Major() {
		if best.IsZero() || semver.Less(pick, best) {
			best = pick
		}
	}
	if !best.IsZero() {
		return best, true
	}
	return pick, false
}

// Classify returns the edges declared by key with their status derived from
// reports. An edge with no report is satisfied.
func Classify(g *dependencies.Graph, reports []Report, key string) ([]ClassifiedEdge, error) {
	node, ok := g.Node(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", modules.ErrModuleNotFound, key)
	}

	byEdge := make(map[string][]Report)
	for _, r := range reports {
		if r.From == key {
			byEdge[r.To] = append(byEdge[r.To], r)
		}
	}

	out := make([]ClassifiedEdge, 0, len(node.Dependencies))
	for _, e := range node.Dependencies {
		ce := ClassifiedEdge{Edge: e, Status: StatusSatisfied, Reports: byEdge[e.To]}
		if target, ok := g.Node(e.To); ok {
			ce.InstalledVersion = target.Version
		}
		for _, r := range ce.Reports {
			if s := statusOf(r); s.rank() > ce.Status.rank() {
				ce.Status = s
			}
		}
		out = append(out, ce)
	}
	return out, nil
}

func statusOf(r Report) EdgeStatus {
	switch r.Type {
	case TypeMissingModule:
		return StatusMissing
	case TypeCircular:
		return StatusConflict
	case TypeVersionMismatch:
		if r.AutoResolvable {
			return StatusOutdated
		}
		return StatusConflict
	}
	return StatusConflict
}
