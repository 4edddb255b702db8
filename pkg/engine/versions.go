package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/modgraph/pkg/audit"
	"github.com/platinummonkey/modgraph/pkg/modules"
	"github.com/platinummonkey/modgraph/pkg/semver"
	"github.com/platinummonkey/modgraph/pkg/versioning"
)

// CreateVersionRequest publishes a new version of a module
type CreateVersionRequest struct {
	ModuleKey    string               `json:"module_key" validate:"required"`
	Version      string               `json:"version" validate:"required"`
	Tag          modules.Tag          `json:"tag,omitempty"`
	Changelog    []string             `json:"changelog,omitempty"`
	Features     []modules.Feature    `json:"features,omitempty" validate:"dive"`
	Dependencies []modules.Dependency `json:"dependencies,omitempty"`
}

// SuggestNextVersion returns current bumped by bump ("major", "minor" or "patch")
func (s *Service) SuggestNextVersion(current, bump string) (string, error) {
	b, err := semver.ParseBump(bump)
	if err != nil {
		return "", err
	}
	return versioning.SuggestNext(current, b)
}

// CompareVersions diffs two published versions of a module
func (s *Service) CompareVersions(ctx context.Context, key, from, to string) (diff *versioning.Diff, err error) {
	start := time.Now()
	ctx, span := s.span(ctx, "CompareVersions", attribute.String("module", key), attribute.String("from", from), attribute.String("to", to))
	defer func() { s.finish(ctx, span, "compare_versions", start, err) }()

	fromVer, err := semver.ParseVersion(from)
	if err != nil {
		return nil, err
	}
	toVer, err := semver.ParseVersion(to)
	if err != nil {
		return nil, err
	}

	// records are append-only, so a diff never goes stale
	cacheKey := key + "|" + fromVer.String() + "|" + toVer.String()
	if cached, ok := s.diffs.Get(cacheKey); ok {
		span.SetAttributes(attribute.Bool("cached", true))
		return cached, nil
	}

	records, err := s.store.ListVersions(ctx, key)
	if err != nil {
		return nil, err
	}
	fromRec, err := findRecord(records, key, fromVer)
	if err != nil {
		return nil, err
	}
	toRec, err := findRecord(records, key, toVer)
	if err != nil {
		return nil, err
	}

	diff, err = versioning.Compare(fromRec, toRec)
	if err != nil {
		return nil, err
	}
	s.diffs.Add(cacheKey, diff)
	return diff, nil
}

func findRecord(records []modules.VersionRecord, key string, v semver.Version) (modules.VersionRecord, error) {
	for _, r := range records {
		rv, err := semver.ParseVersion(r.Version)
		if err != nil {
			continue
		}
		if semver.Compare(rv, v) == 0 {
			return r, nil
		}
	}
	return modules.VersionRecord{}, fmt.Errorf("%w: %s@%s", modules.ErrVersionNotFound, key, v)
}

// CreateVersion appends a record to the version log of an existing module.
// The returned record reflects whether it became the latest version.
func (s *Service) CreateVersion(ctx context.Context, req CreateVersionRequest) (record *modules.VersionRecord, err error) {
	start := time.Now()
	ctx, span := s.span(ctx, "CreateVersion", attribute.String("module", req.ModuleKey), attribute.String("version", req.Version))
	event := audit.NewEvent(ctx, audit.EventTypeVersionPublish, audit.ResourceTypeVersion, req.ModuleKey+"@"+req.Version)
	defer func() {
		s.finish(ctx, span, "create_version", start, err)
		s.record(ctx, event, err)
	}()

	v, err := semver.ParseVersion(req.Version)
	if err != nil {
		return nil, err
	}
	tag, err := modules.ParseTag(string(req.Tag))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	for _, d := range req.Dependencies {
		if _, err := semver.ParseConstraint(d.Range); err != nil {
			return nil, err
		}
	}

	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := snap.Module(req.ModuleKey); !ok {
		return nil, fmt.Errorf("%w: %s", modules.ErrModuleNotFound, req.ModuleKey)
	}

	rec := modules.VersionRecord{
		ModuleKey:    req.ModuleKey,
		Version:      v.String(),
		Tag:          tag,
		Changelog:    req.Changelog,
		Features:     req.Features,
		Dependencies: req.Dependencies,
		CreatedAt:    s.now(),
	}
	if err := s.store.AppendVersion(ctx, rec); err != nil {
		return nil, err
	}

	records, err := s.store.ListVersions(ctx, req.ModuleKey)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.Version == rec.Version {
			rec.IsLatest = r.IsLatest
			break
		}
	}
	event.Metadata["tag"] = string(tag)
	event.Metadata["is_latest"] = rec.IsLatest
	return &rec, nil
}
