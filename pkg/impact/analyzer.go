package impact

import (
	"fmt"
	"sort"

	"github.com/platinummonkey/modgraph/pkg/dependencies"
	"github.com/platinummonkey/modgraph/pkg/modules"
	"github.com/platinummonkey/modgraph/pkg/semver"
)

// Analyze walks dependents outward from source, breadth first, and returns a
// pending plan with every reachable dependent ranked by distance then key.
//
// Direct dependents are high risk when their required range rejects the
// target version and low otherwise. Transitive dependents inherit the risk of
// the direct dependent they were reached through, decayed one level per hop
// beyond the first. Core modules escalate by one level. Dev edges do not
// propagate.
func Analyze(g *dependencies.Graph, source string, change Change) (*Plan, error) {
	if _, ok := g.Node(source); !ok {
		return nil, fmt.Errorf("%w: %s", modules.ErrModuleNotFound, source)
	}

	var target semver.Version
	if change.TargetVersion != "" {
		v, err := semver.ParseVersion(change.TargetVersion)
		if err != nil {
			return nil, err
		}
		target = v
	}

	type visit struct {
		key    string
		origin RiskLevel
		dist   int
	}

	seen := map[string]bool{source: true}
	queue := []visit{{key: source}}
	affected := make([]AffectedModule, 0)

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, e := range g.Dependents(cur.key) {
			if e.IsDev || seen[e.From] {
				continue
			}
			node, ok := g.Node(e.From)
			if !ok {
				continue
			}
			seen[e.From] = true

			am := AffectedModule{
				ModuleKey: e.From,
				Distance:  cur.dist + 1,
				Via:       cur.key,
				Range:     e.Range,
				IsCore:    node.IsCore,
			}

			origin := cur.origin
			if am.Distance == 1 {
				am.RangeViolated = violates(e.Range, target)
				origin = RiskLow
				if am.RangeViolated {
					origin = RiskHigh
				}
			}
			am.Risk = origin.Decay(am.Distance - 1)
			if node.IsCore {
				am.Risk = am.Risk.Escalate(1)
			}

			affected = append(affected, am)
			queue = append(queue, visit{key: e.From, origin: origin, dist: am.Distance})
		}
	}

	sort.SliceStable(affected, func(i, j int) bool {
		if affected[i].Distance != affected[j].Distance {
			return affected[i].Distance < affected[j].Distance
		}
		return affected[i].ModuleKey < affected[j].ModuleKey
	})

	risks := make([]RiskLevel, len(affected))
	for i, am := range affected {
		risks[i] = am.Risk
	}

	description := change.Description
	if description == "" && change.TargetVersion != "" {
		description = fmt.Sprintf("update %s to %s", source, change.TargetVersion)
	}

	return &Plan{
		SourceModule:      source,
		ChangeDescription: description,
		Change:            change,
		AffectedModules:   affected,
		TotalRisk:         MaxRisk(risks...),
		Status:            StatusPending,
		Revision:          g.Revision,
	}, nil
}

// violates reports whether target falls outside rng. An unparseable range
// counts as violated; a missing target never does.
func violates(rng string, target semver.Version) bool {
	if target.IsZero() {
		return false
	}
	c, err := semver.ParseConstraint(rng)
	if err != nil {
		return true
	}
	return !semver.Satisfies(target, c)
}
