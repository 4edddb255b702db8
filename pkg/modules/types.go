package modules

import (
	"encoding/json"
	"fmt"
	"time"
)

// Module is the authoritative record of one installed module
type Module struct {
	Key              string          `json:"key" yaml:"key"`
	InstalledVersion string          `json:"installed_version" yaml:"installed_version"`
	IsCore           bool            `json:"is_core,omitempty" yaml:"is_core,omitempty"`
	MinimumVersion   string          `json:"minimum_version,omitempty" yaml:"minimum_version,omitempty"`
	Dependencies     []Dependency    `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Config           json.RawMessage `json:"config,omitempty" yaml:"-"`
	UpdatedAt        time.Time       `json:"updated_at,omitempty" yaml:"-"`
}

// Dependency is a declared requirement from one module on another
type Dependency struct {
	Key             string `json:"key" yaml:"key"`
	Range           string `json:"range" yaml:"range"`
	IsDev           bool   `json:"is_dev,omitempty" yaml:"is_dev,omitempty"`
	IsRequired      bool   `json:"is_required,omitempty" yaml:"is_required,omitempty"`
	ResolvedVersion string `json:"resolved_version,omitempty" yaml:"resolved_version,omitempty"`
}

// Dependency returns the declared dependency on key, if any
func (m *Module) Dependency(key string) (Dependency, bool) {
	for _, d := range m.Dependencies {
		if d.Key == key {
			return d, true
		}
	}
	return Dependency{}, false
}

// Clone returns a deep copy of the module
func (m Module) Clone() Module {
	out := m
	if m.Dependencies != nil {
		out.Dependencies = make([]Dependency, len(m.Dependencies))
		copy(out.Dependencies, m.Dependencies)
	}
	if m.Config != nil {
		out.Config = append(json.RawMessage(nil), m.Config...)
	}
	return out
}

// Snapshot is an atomic read of every module and edge at one store revision
type Snapshot struct {
	Revision uint64   `json:"revision"`
	Modules  []Module `json:"modules"`
}

// Module looks up a module by key
func (s *Snapshot) Module(key string) (Module, bool) {
	for _, m := range s.Modules {
		if m.Key == key {
			return m, true
		}
	}
	return Module{}, false
}

// Tag is the release channel of a published version
type Tag string

const (
	TagAlpha  Tag = "alpha"
	TagBeta   Tag = "beta"
	TagRC     Tag = "rc"
	TagStable Tag = "stable"
)

// Rank orders tags by maturity; stable is highest
func (t Tag) Rank() int {
	switch t {
	case TagStable:
		return 3
	case TagRC:
		return 2
	case TagBeta:
		return 1
	case TagAlpha:
		return 0
	}
	return -1
}

func (t Tag) Valid() bool { return t.Rank() >= 0 }

// ParseTag parses a tag, defaulting an empty value to stable
func ParseTag(raw string) (Tag, error) {
	if raw == "" {
		return TagStable, nil
	}
	t := Tag(raw)
	if !t.Valid() {
		return "", fmt.Errorf("unknown version tag %q", raw)
	}
	return t, nil
}

// Feature is a named capability a version declares
type Feature struct {
	Key      string `json:"key" yaml:"key"`
	Required bool   `json:"required,omitempty" yaml:"required,omitempty"`
}

// VersionRecord is one published version of a module. Records are append-only;
// IsLatest is filled in on read from the store's per-module latest pointer.
type VersionRecord struct {
	ModuleKey    string       `json:"module_key" yaml:"module_key"`
	Version      string       `json:"version" yaml:"version"`
	Tag          Tag          `json:"tag" yaml:"tag"`
	Changelog    []string     `json:"changelog,omitempty" yaml:"changelog,omitempty"`
	Features     []Feature    `json:"features,omitempty" yaml:"features,omitempty"`
	Dependencies []Dependency `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	CreatedAt    time.Time    `json:"created_at" yaml:"created_at"`
	IsLatest     bool         `json:"is_latest" yaml:"-"`
}

// PointStatus is the lifecycle state of a rollback point
type PointStatus string

const (
	PointAvailable PointStatus = "available"
	PointExpired   PointStatus = "expired"
	PointCorrupted PointStatus = "corrupted"
)

// RollbackPoint is a captured prior state of a module. CapturedState lives in
// a blob store under BlobKey; the point itself only carries metadata.
type RollbackPoint struct {
	ID        string      `json:"id"`
	ModuleKey string      `json:"module_key"`
	Version   string      `json:"version"`
	BlobKey   string      `json:"blob_key"`
	Checksum  string      `json:"checksum"`
	Status    PointStatus `json:"status"`
	Reason    string      `json:"reason,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// CapturedState is the serialized module configuration stored for a rollback point
type CapturedState struct {
	ModuleKey    string          `json:"module_key"`
	Version      string          `json:"version"`
	Dependencies []Dependency    `json:"dependencies,omitempty"`
	Config       json.RawMessage `json:"config,omitempty"`
	CapturedAt   time.Time       `json:"captured_at"`
}
