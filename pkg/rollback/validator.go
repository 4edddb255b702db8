package rollback

import (
	"fmt"

	"github.com/platinummonkey/modgraph/pkg/dependencies"
	"github.com/platinummonkey/modgraph/pkg/modules"
	"github.com/platinummonkey/modgraph/pkg/semver"
)

// DataLossRisk estimates how much state a rollback may discard
type DataLossRisk string

const (
	DataLossNone   DataLossRisk = "none"
	DataLossLow    DataLossRisk = "low"
	DataLossMedium DataLossRisk = "medium"
	DataLossHigh   DataLossRisk = "high"
)

// Downtime is a coarse bucket, not a timing estimate
type Downtime string

const (
	DowntimeNone     Downtime = "none"
	DowntimeBrief    Downtime = "brief"
	DowntimeExtended Downtime = "extended"
)

// DowntimeFor buckets the number of production dependents a rollback breaks
func DowntimeFor(dependents int) Downtime {
	switch {
	case dependents <= 0:
		return DowntimeNone
	case dependents <= 3:
		return DowntimeBrief
	default:
		return DowntimeExtended
	}
}

// Validation is the verdict for one candidate rollback. It is only meaningful
// for the graph revision it was computed at.
type Validation struct {
	ModuleKey            string       `json:"module_key"`
	TargetVersion        string       `json:"target_version"`
	InstalledVersion     string       `json:"installed_version"`
	IsValid              bool         `json:"is_valid"`
	DataLossRisk         DataLossRisk `json:"data_loss_risk"`
	EstimatedDowntime    Downtime     `json:"estimated_downtime"`
	AffectedDependencies []string     `json:"affected_dependencies"`
	Warnings             []string     `json:"warnings"`
	Errors               []string     `json:"errors"`
	Revision             uint64       `json:"revision"`
}

func (v *Validation) addError(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
	v.IsValid = false
}

func (v *Validation) addWarning(format string, args ...interface{}) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}

// Validate checks whether rolling key back to target keeps every current
// dependent satisfied. Only an unknown module or a malformed target is an
// error; everything else is reported in the verdict.
func Validate(g *dependencies.Graph, key, target string) (*Validation, error) {
	node, ok := g.Node(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", modules.ErrModuleNotFound, key)
	}
	targetVer, err := semver.ParseVersion(target)
	if err != nil {
		return nil, err
	}

	v := &Validation{
		ModuleKey:            key,
		TargetVersion:        target,
		InstalledVersion:     node.Version,
		IsValid:              true,
		DataLossRisk:         DataLossLow,
		AffectedDependencies: make([]string, 0),
		Warnings:             make([]string, 0),
		Errors:               make([]string, 0),
		Revision:             g.Revision,
	}

	if installed, err := semver.ParseVersion(node.Version); err != nil {
		v.addError("installed version %q of %s is malformed", node.Version, key)
	} else if semver.Compare(targetVer, installed) >= 0 {
		v.addError("target %s is not lower than installed %s", target, node.Version)
	}

	if node.IsCore && node.MinimumVersion != "" {
		if minimum, err := semver.ParseVersion(node.MinimumVersion); err != nil {
			v.addError("minimum version %q of core module %s is malformed", node.MinimumVersion, key)
		} else if semver.Less(targetVer, minimum) {
			v.addError("core module %s cannot go below minimum version %s", key, node.MinimumVersion)
		}
	}

	if node.IsCore {
		v.DataLossRisk = DataLossMedium
	}

	blocking := 0
	for _, e := range g.Dependents(key) {
		dependent, ok := g.Node(e.From)
		if !ok {
			continue
		}

		c, err := semver.ParseConstraint(e.Range)
		if err == nil && semver.Satisfies(targetVer, c) {
			continue
		}

		v.AffectedDependencies = append(v.AffectedDependencies, e.From)
		if dependent.IsCore {
			v.DataLossRisk = DataLossHigh
		}
		if e.IsDev {
			v.addWarning("dev dependency %s requires %s %s", e.From, key, e.Range)
			continue
		}
		blocking++
		v.addError("%s requires %s %s, which %s does not satisfy", e.From, key, e.Range, target)
	}

	v.EstimatedDowntime = DowntimeFor(blocking)
	return v, nil
}
