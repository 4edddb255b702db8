package conflicts

import (
	"fmt"

	"github.com/platinummonkey/modgraph/pkg/dependencies"
)

// ConflictType names the kind of mismatch a report describes
type ConflictType string

const (
	TypeVersionMismatch ConflictType = "version_mismatch"
	TypeMissingModule   ConflictType = "missing_module"
	TypeCircular        ConflictType = "circular"
)

// Severity orders reports by urgency
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// EdgeStatus is the classification of one dependency edge
type EdgeStatus string

const (
	StatusSatisfied EdgeStatus = "satisfied"
	StatusOutdated  EdgeStatus = "outdated"
	StatusMissing   EdgeStatus = "missing"
	StatusConflict  EdgeStatus = "conflict"
)

func (s EdgeStatus) rank() int {
	switch s {
	case StatusMissing:
		return 3
	case StatusConflict:
		return 2
	case StatusOutdated:
		return 1
	case StatusSatisfied:
		return 0
	}
	return -1
}

// Report is a detected mismatch between a declared requirement and graph
// state. Reports are recomputed on every resolve and are never stored as
// authoritative state.
type Report struct {
	ID                  string       `json:"id"`
	Type                ConflictType `json:"conflict_type"`
	Severity            Severity     `json:"severity"`
	From                string       `json:"from"`
	To                  string       `json:"to"`
	Range               string       `json:"required_range"`
	InstalledVersion    string       `json:"installed_version,omitempty"`
	IsDev               bool         `json:"is_dev,omitempty"`
	AutoResolvable      bool         `json:"auto_resolvable"`
	SuggestedResolution string       `json:"suggested_resolution,omitempty"`
	Cycle               []string     `json:"cycle,omitempty"`
	Message             string       `json:"message"`
}

// ReportID is the stable identifier of a report for an edge
func ReportID(t ConflictType, from, to string) string {
	return fmt.Sprintf("%s:%s->%s", t, from, to)
}

// Options tune a resolve pass
type Options struct {
	// IncludeDev also checks edges marked is_dev
	IncludeDev bool
}

// ClassifiedEdge is a dependency edge with its status and the reports behind it
type ClassifiedEdge struct {
	dependencies.Edge
	InstalledVersion string     `json:"installed_version,omitempty"`
	Status           EdgeStatus `json:"status"`
	Reports          []Report   `json:"reports,omitempty"`
}

// HasErrors reports whether any report carries error severity
func HasErrors(reports []Report) bool {
	for _, r := range reports {
		if r.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Introduced returns the error-severity reports in after whose id does not appear in before
func Introduced(before, after []Report) []Report {
	seen := make(map[string]bool, len(before))
	for _, r := range before {
		seen[r.ID] = true
	}
	out := make([]Report, 0)
	for _, r := range after {
		if r.Severity == SeverityError && !seen[r.ID] {
			out = append(out, r)
		}
	}
	return out
}
