package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/modgraph/pkg/modules"
	"github.com/platinummonkey/modgraph/pkg/semver"
)

// Manifest is the desired state of a set of modules and their published versions
type Manifest struct {
	Modules []Module `yaml:"modules"`
}

// Module is one module entry of a manifest
type Module struct {
	Key              string                 `yaml:"key"`
	InstalledVersion string                 `yaml:"installed_version"`
	IsCore           bool                   `yaml:"is_core,omitempty"`
	MinimumVersion   string                 `yaml:"minimum_version,omitempty"`
	Dependencies     []modules.Dependency   `yaml:"dependencies,omitempty"`
	Config           map[string]interface{} `yaml:"config,omitempty"`
	Versions         []Version              `yaml:"versions,omitempty"`
}

// Version is a published version of the enclosing module
type Version struct {
	Version      string               `yaml:"version"`
	Tag          string               `yaml:"tag,omitempty"`
	Changelog    []string             `yaml:"changelog,omitempty"`
	Features     []modules.Feature    `yaml:"features,omitempty"`
	Dependencies []modules.Dependency `yaml:"dependencies,omitempty"`
	CreatedAt    time.Time            `yaml:"created_at,omitempty"`
}

// ValidationError describes one problem found in a manifest
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load reads and validates a manifest file
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a manifest
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if errs := Validate(&m); len(errs) > 0 {
		joined := make([]error, len(errs))
		for i, e := range errs {
			joined[i] = e
		}
		return nil, fmt.Errorf("invalid manifest: %w", errors.Join(joined...))
	}
	return &m, nil
}

// Save writes a manifest file
func Save(m *Manifest, path string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// Validate checks keys, versions, ranges and tags of every entry
func Validate(m *Manifest) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool, len(m.Modules))

	for i, mod := range m.Modules {
		field := fmt.Sprintf("modules[%d]", i)
		if mod.Key == "" {
			errs = append(errs, ValidationError{Field: field + ".key", Message: "module key is required"})
		} else {
			field = fmt.Sprintf("modules[%s]", mod.Key)
			if seen[mod.Key] {
				errs = append(errs, ValidationError{Field: field, Message: "duplicate module key"})
			}
			seen[mod.Key] = true
		}

		if _, err := semver.ParseVersion(mod.InstalledVersion); err != nil {
			errs = append(errs, ValidationError{Field: field + ".installed_version", Message: err.Error()})
		}
		if mod.MinimumVersion != "" {
			if _, err := semver.ParseVersion(mod.MinimumVersion); err != nil {
				errs = append(errs, ValidationError{Field: field + ".minimum_version", Message: err.Error()})
			}
		}
		errs = append(errs, validateDependencies(field+".dependencies", mod.Dependencies)...)

		published := make(map[string]bool, len(mod.Versions))
		for j, v := range mod.Versions {
			vfield := fmt.Sprintf("%s.versions[%d]", field, j)
			if _, err := semver.ParseVersion(v.Version); err != nil {
				errs = append(errs, ValidationError{Field: vfield + ".version", Message: err.Error()})
			} else if published[v.Version] {
				errs = append(errs, ValidationError{Field: vfield + ".version", Message: "version listed twice"})
			}
			published[v.Version] = true
			if _, err := modules.ParseTag(v.Tag); err != nil {
				errs = append(errs, ValidationError{Field: vfield + ".tag", Message: err.Error()})
			}
			errs = append(errs, validateDependencies(vfield+".dependencies", v.Dependencies)...)
		}
	}
	return errs
}

func validateDependencies(field string, deps []modules.Dependency) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool, len(deps))
	for _, d := range deps {
		if d.Key == "" {
			errs = append(errs, ValidationError{Field: field, Message: "dependency key is required"})
			continue
		}
		if seen[d.Key] {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("%s declared twice", d.Key)})
		}
		seen[d.Key] = true
		if _, err := semver.ParseConstraint(d.Range); err != nil {
			errs = append(errs, ValidationError{Field: field + "." + d.Key, Message: err.Error()})
		}
	}
	return errs
}

// Keys returns the module keys in manifest order
func (m *Manifest) Keys() []string {
	out := make([]string, len(m.Modules))
	for i, mod := range m.Modules {
		out[i] = mod.Key
	}
	return out
}

// ToModules converts manifest entries into module records
func (m *Manifest) ToModules() ([]modules.Module, error) {
	out := make([]modules.Module, 0, len(m.Modules))
	for _, mod := range m.Modules {
		converted, err := mod.toModule()
		if err != nil {
			return nil, err
		}
		out = append(out, converted)
	}
	return out, nil
}

func (mod Module) toModule() (modules.Module, error) {
	out := modules.Module{
		Key:              mod.Key,
		InstalledVersion: mod.InstalledVersion,
		IsCore:           mod.IsCore,
		MinimumVersion:   mod.MinimumVersion,
		Dependencies:     append([]modules.Dependency(nil), mod.Dependencies...),
	}
	if mod.Config != nil {
		raw, err := json.Marshal(mod.Config)
		if err != nil {
			return modules.Module{}, fmt.Errorf("config of %s: %w", mod.Key, err)
		}
		out.Config = raw
	}
	return out, nil
}

// Records returns the version records of every module, in manifest order.
// Records without a creation time are stamped with now.
func (m *Manifest) Records(now time.Time) []modules.VersionRecord {
	out := make([]modules.VersionRecord, 0)
	for _, mod := range m.Modules {
		for _, v := range mod.Versions {
			tag, _ := modules.ParseTag(v.Tag)
			created := v.CreatedAt
			if created.IsZero() {
				created = now
			}
			out = append(out, modules.VersionRecord{
				ModuleKey:    mod.Key,
				Version:      v.Version,
				Tag:          tag,
				Changelog:    v.Changelog,
				Features:     v.Features,
				Dependencies: v.Dependencies,
				CreatedAt:    created,
			})
		}
	}
	return out
}

// Diff returns the mutations that bring the manifest's modules in snap to the
// declared state. Modules present in snap but absent from the manifest are
// left alone.
func (m *Manifest) Diff(snap *modules.Snapshot) ([]modules.Mutation, error) {
	muts := make([]modules.Mutation, 0)
	for _, entry := range m.Modules {
		want, err := entry.toModule()
		if err != nil {
			return nil, err
		}
		have, ok := snap.Module(want.Key)
		if !ok {
			muts = append(muts, modules.CreateModule(want))
			continue
		}

		if have.InstalledVersion != want.InstalledVersion {
			muts = append(muts, modules.SetVersion(want.Key, want.InstalledVersion))
		}
		if have.IsCore != want.IsCore || have.MinimumVersion != want.MinimumVersion {
			muts = append(muts, modules.SetCore(want.Key, want.IsCore, want.MinimumVersion))
		}

		declared := make(map[string]bool, len(want.Dependencies))
		for _, d := range want.Dependencies {
			declared[d.Key] = true
			current, exists := have.Dependency(d.Key)
			if exists && sameDeclaration(current, d) {
				continue
			}
			if exists && d.ResolvedVersion == "" && current.Range == d.Range {
				d.ResolvedVersion = current.ResolvedVersion
			}
			muts = append(muts, modules.PutDependency(want.Key, d))
		}
		for _, d := range have.Dependencies {
			if !declared[d.Key] {
				muts = append(muts, modules.RemoveDependency(want.Key, d.Key))
			}
		}

		if want.Config != nil {
			same, err := sameJSON(have.Config, want.Config)
			if err != nil {
				return nil, fmt.Errorf("config of %s: %w", want.Key, err)
			}
			if !same {
				muts = append(muts, modules.SetConfig(want.Key, want.Config))
			}
		}
	}
	return muts, nil
}

// sameDeclaration compares what a manifest controls; a resolved version the
// manifest does not mention is kept
func sameDeclaration(have, want modules.Dependency) bool {
	if have.Range != want.Range || have.IsDev != want.IsDev || have.IsRequired != want.IsRequired {
		return false
	}
	return want.ResolvedVersion == "" || want.ResolvedVersion == have.ResolvedVersion
}

func sameJSON(a, b json.RawMessage) (bool, error) {
	if len(strings.TrimSpace(string(a))) == 0 {
		return len(b) == 0, nil
	}
	var av, bv interface{}
	if err := json.Unmarshal(a, &av); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false, err
	}
	return reflect.DeepEqual(av, bv), nil
}
