package versioning

import (
	"fmt"

	"github.com/platinummonkey/modgraph/pkg/modules"
	"github.com/platinummonkey/modgraph/pkg/semver"
)

// BreakingKind classifies a breaking change between two versions
type BreakingKind string

const (
	BreakingRemovedFeature BreakingKind = "removed_required_feature"
	BreakingNarrowedRange  BreakingKind = "narrowed_dependency_range"
)

// BreakingChange describes one incompatibility introduced by a version
type BreakingChange struct {
	Kind        BreakingKind `json:"kind"`
	Feature     string       `json:"feature,omitempty"`
	Dependency  string       `json:"dependency,omitempty"`
	FromRange   string       `json:"from_range,omitempty"`
	ToRange     string       `json:"to_range,omitempty"`
	Description string       `json:"description"`
}

// Diff is the set comparison of two versions of one module. It is computed on
// demand and never persisted.
type Diff struct {
	ModuleKey       string           `json:"module_key"`
	From            string           `json:"from"`
	To              string           `json:"to"`
	AddedFeatures   []string         `json:"added_features"`
	RemovedFeatures []string         `json:"removed_features"`
	BreakingChanges []BreakingChange `json:"breaking_changes"`
	SuggestedBump   string           `json:"suggested_bump"`
}

// IsBreaking reports whether the diff carries any breaking change
func (d *Diff) IsBreaking() bool {
	return len(d.BreakingChanges) > 0
}

// Compare diffs two version records. Added features keep the order of to,
// removed features the order of from, so Compare(a, b).AddedFeatures equals
// Compare(b, a).RemovedFeatures.
func Compare(from, to modules.VersionRecord) (*Diff, error) {
	if _, err := semver.ParseVersion(from.Version); err != nil {
		return nil, err
	}
	if _, err := semver.ParseVersion(to.Version); err != nil {
		return nil, err
	}

	fromFeatures := featureIndex(from.Features)
	toFeatures := featureIndex(to.Features)

	d := &Diff{
		ModuleKey:       to.ModuleKey,
		From:            from.Version,
		To:              to.Version,
		AddedFeatures:   make([]string, 0),
		RemovedFeatures: make([]string, 0),
		BreakingChanges: make([]BreakingChange, 0),
	}

	for _, f := range to.Features {
		if _, ok := fromFeatures[f.Key]; !ok {
			d.AddedFeatures = append(d.AddedFeatures, f.Key)
		}
	}
	for _, f := range from.Features {
		if _, ok := toFeatures[f.Key]; ok {
			continue
		}
		d.RemovedFeatures = append(d.RemovedFeatures, f.Key)
		if f.Required {
			d.BreakingChanges = append(d.BreakingChanges, BreakingChange{
				Kind:        BreakingRemovedFeature,
				Feature:     f.Key,
				Description: fmt.Sprintf("required feature %q removed", f.Key),
			})
		}
	}

	narrowed, err := narrowedRanges(from.Dependencies, to.Dependencies)
	if err != nil {
		return nil, err
	}
	d.BreakingChanges = append(d.BreakingChanges, narrowed...)

	switch {
	case d.IsBreaking():
		d.SuggestedBump = semver.BumpMajor.String()
	case len(d.AddedFeatures) > 0:
		d.SuggestedBump = semver.BumpMinor.String()
	default:
		d.SuggestedBump = semver.BumpPatch.String()
	}

	return d, nil
}

func featureIndex(features []modules.Feature) map[string]modules.Feature {
	idx := make(map[string]modules.Feature, len(features))
	for _, f := range features {
		idx[f.Key] = f
	}
	return idx
}

// narrowedRanges reports required dependencies whose range changed so that
// some previously accepted version is now rejected. Widening is never breaking.
func narrowedRanges(from, to []modules.Dependency) ([]BreakingChange, error) {
	previous := make(map[string]modules.Dependency, len(from))
	for _, d := range from {
		previous[d.Key] = d
	}

	out := make([]BreakingChange, 0)
	for _, d := range to {
		old, ok := previous[d.Key]
		if !ok || old.Range == d.Range {
			continue
		}
		if !d.IsRequired && !old.IsRequired {
			continue
		}
		oldRange, err := semver.ParseConstraint(old.Range)
		if err != nil {
			return nil, err
		}
		newRange, err := semver.ParseConstraint(d.Range)
		if err != nil {
			return nil, err
		}
		if semver.Narrows(oldRange, newRange) {
			out = append(out, BreakingChange{
				Kind:        BreakingNarrowedRange,
				Dependency:  d.Key,
				FromRange:   old.Range,
				ToRange:     d.Range,
				Description: fmt.Sprintf("required dependency %q narrowed from %q to %q", d.Key, old.Range, d.Range),
			})
		}
	}
	return out, nil
}
