package modules

import (
	"encoding/json"
	"fmt"
	"time"
)

// MutationKind names a single graph change
type MutationKind string

const (
	MutationCreateModule     MutationKind = "create_module"
	MutationSetVersion       MutationKind = "set_version"
	MutationPutDependency    MutationKind = "put_dependency"
	MutationRemoveDependency MutationKind = "remove_dependency"
	MutationSetConfig        MutationKind = "set_config"
	MutationSetCore          MutationKind = "set_core"
)

// Mutation is one change inside an atomic commit
type Mutation struct {
	Kind       MutationKind    `json:"kind"`
	ModuleKey  string          `json:"module_key"`
	Module     *Module         `json:"module,omitempty"`
	Version    string          `json:"version,omitempty"`
	Dependency *Dependency     `json:"dependency,omitempty"`
	DepKey     string          `json:"dep_key,omitempty"`
	Config     json.RawMessage `json:"config,omitempty"`
}

func CreateModule(m Module) Mutation {
	return Mutation{Kind: MutationCreateModule, ModuleKey: m.Key, Module: &m}
}

func SetVersion(key, version string) Mutation {
	return Mutation{Kind: MutationSetVersion, ModuleKey: key, Version: version}
}

func PutDependency(key string, dep Dependency) Mutation {
	return Mutation{Kind: MutationPutDependency, ModuleKey: key, Dependency: &dep}
}

func RemoveDependency(key, depKey string) Mutation {
	return Mutation{Kind: MutationRemoveDependency, ModuleKey: key, DepKey: depKey}
}

func SetConfig(key string, config json.RawMessage) Mutation {
	return Mutation{Kind: MutationSetConfig, ModuleKey: key, Config: config}
}

// SetCore changes whether key is a core module and its minimum version
func SetCore(key string, isCore bool, minimum string) Mutation {
	return Mutation{Kind: MutationSetCore, ModuleKey: key, Module: &Module{Key: key, IsCore: isCore, MinimumVersion: minimum}}
}

// ApplyMutations applies mutations to a copy of mods and returns the result.
// The input slice is never modified, so a failed batch leaves no trace.
func ApplyMutations(mods []Module, now time.Time, mutations ...Mutation) ([]Module, error) {
	out := make([]Module, len(mods))
	index := make(map[string]int, len(mods))
	for i, m := range mods {
		out[i] = m.Clone()
		index[m.Key] = i
	}

	for _, mut := range mutations {
		if mut.Kind == MutationCreateModule {
			if mut.Module == nil {
				return nil, fmt.Errorf("create_module: missing module")
			}
			if _, ok := index[mut.ModuleKey]; ok {
				return nil, fmt.Errorf("%w: %s", ErrModuleExists, mut.ModuleKey)
			}
			m := mut.Module.Clone()
			m.UpdatedAt = now
			index[m.Key] = len(out)
			out = append(out, m)
			continue
		}

		i, ok := index[mut.ModuleKey]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, mut.ModuleKey)
		}
		m := &out[i]

		switch mut.Kind {
		case MutationSetVersion:
			m.InstalledVersion = mut.Version
		case MutationPutDependency:
			if mut.Dependency == nil {
				return nil, fmt.Errorf("put_dependency: missing dependency")
			}
			replaced := false
			for j := range m.Dependencies {
				if m.Dependencies[j].Key == mut.Dependency.Key {
					m.Dependencies[j] = *mut.Dependency
					replaced = true
					break
				}
			}
			if !replaced {
				m.Dependencies = append(m.Dependencies, *mut.Dependency)
			}
		case MutationRemoveDependency:
			found := -1
			for j := range m.Dependencies {
				if m.Dependencies[j].Key == mut.DepKey {
					found = j
					break
				}
			}
			if found < 0 {
				return nil, fmt.Errorf("%w: %s -> %s", ErrDependencyNotFound, mut.ModuleKey, mut.DepKey)
			}
			m.Dependencies = append(m.Dependencies[:found:found], m.Dependencies[found+1:]...)
		case MutationSetConfig:
			m.Config = append(json.RawMessage(nil), mut.Config...)
		case MutationSetCore:
			if mut.Module == nil {
				return nil, fmt.Errorf("set_core: missing flags")
			}
			m.IsCore = mut.Module.IsCore
			m.MinimumVersion = mut.Module.MinimumVersion
		default:
			return nil, fmt.Errorf("unknown mutation kind %q", mut.Kind)
		}
		m.UpdatedAt = now
	}

	return out, nil
}
