package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/modgraph/pkg/audit"
	"github.com/platinummonkey/modgraph/pkg/dependencies"
	"github.com/platinummonkey/modgraph/pkg/modules"
	"github.com/platinummonkey/modgraph/pkg/rollback"
	"github.com/platinummonkey/modgraph/pkg/semver"
	"github.com/platinummonkey/modgraph/pkg/storage/blob"
)

// RollbackResult is the outcome of an executed rollback
type RollbackResult struct {
	ModuleKey       string               `json:"module_key"`
	PreviousVersion string               `json:"previous_version"`
	Version         string               `json:"version"`
	Reason          string               `json:"reason,omitempty"`
	RestoredPoint   string               `json:"restored_point,omitempty"`
	CapturedPoint   string               `json:"captured_point,omitempty"`
	Validation      *rollback.Validation `json:"validation"`
	Revision        uint64               `json:"revision"`
}

func verdictKey(key string, target semver.Version) string {
	return key + "@" + target.String()
}

// ValidateRollback checks whether key can be rolled back to target and
// remembers the verdict. Only the latest verdict for a (key, target) pair
// authorizes ExecuteRollback.
func (s *Service) ValidateRollback(ctx context.Context, key, target string) (v *rollback.Validation, err error) {
	start := time.Now()
	ctx, span := s.span(ctx, "ValidateRollback", attribute.String("module", key), attribute.String("target", target))
	defer func() { s.finish(ctx, span, "validate_rollback", start, err) }()

	targetVer, err := semver.ParseVersion(target)
	if err != nil {
		return nil, err
	}
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	v, err = rollback.Validate(dependencies.BuildSnapshot(snap), key, targetVer.String())
	if err != nil {
		return nil, err
	}

	s.verdicts.Add(verdictKey(key, targetVer), v)
	s.metrics.RecordRollbackVerdict(v.IsValid)
	span.SetAttributes(attribute.Bool("valid", v.IsValid))
	return v, nil
}

// ExecuteRollback moves key back to target. It requires a valid verdict from
// ValidateRollback; if the graph changed since that verdict, the rollback is
// validated again under the lock. When rollback points are configured, the
// current state is captured first and the configuration of the newest
// available point at target is restored. A capture whose commit fails is
// expired again.
func (s *Service) ExecuteRollback(ctx context.Context, key, target, reason string) (res *RollbackResult, err error) {
	start := time.Now()
	ctx, span := s.span(ctx, "ExecuteRollback", attribute.String("module", key), attribute.String("target", target))
	event := audit.NewEvent(ctx, audit.EventTypeRollbackExecute, audit.ResourceTypeModule, key)
	event.Reason = reason
	defer func() {
		s.finish(ctx, span, "execute_rollback", start, err)
		s.record(ctx, event, err)
	}()

	targetVer, err := semver.ParseVersion(target)
	if err != nil {
		return nil, err
	}
	vkey := verdictKey(key, targetVer)
	verdict, ok := s.verdicts.Get(vkey)
	if !ok {
		return nil, fmt.Errorf("%w: %s to %s", modules.ErrRollbackNotValidated, key, targetVer)
	}
	if !verdict.IsValid {
		return nil, &RollbackRejectedError{ModuleKey: key, TargetVersion: targetVer.String(), Errors: verdict.Errors}
	}

	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if snap.Revision != verdict.Revision {
		verdict, err = rollback.Validate(dependencies.BuildSnapshot(snap), key, targetVer.String())
		if err != nil {
			return nil, err
		}
		s.verdicts.Add(vkey, verdict)
		s.metrics.RecordRollbackVerdict(verdict.IsValid)
		if !verdict.IsValid {
			return nil, &RollbackRejectedError{ModuleKey: key, TargetVersion: targetVer.String(), Errors: verdict.Errors}
		}
	}

	m, ok := snap.Module(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", modules.ErrModuleNotFound, key)
	}

	res = &RollbackResult{
		ModuleKey:       key,
		PreviousVersion: m.InstalledVersion,
		Version:         targetVer.String(),
		Reason:          reason,
		Validation:      verdict,
	}
	mutations := []modules.Mutation{modules.SetVersion(key, targetVer.String())}

	var captured *modules.RollbackPoint
	if s.pointsEnabled() {
		restored, state, err := s.restorable(ctx, key, targetVer)
		if err != nil {
			return nil, err
		}
		captured, err = s.capture(ctx, m, "before rollback to "+targetVer.String())
		if err != nil {
			return nil, err
		}
		res.CapturedPoint = captured.ID
		if restored != nil {
			res.RestoredPoint = restored.ID
			mutations = append(mutations, modules.SetConfig(key, state.Config))
		}
	}

	res.Revision, err = s.store.Commit(ctx, snap.Revision, mutations...)
	if err != nil {
		if captured != nil {
			s.discard(ctx, captured)
		}
		return nil, err
	}
	s.verdicts.Remove(vkey)

	event.Revision = res.Revision
	event.Changes = &audit.ChangeDetails{
		Before: map[string]interface{}{"version": res.PreviousVersion},
		After:  map[string]interface{}{"version": res.Version},
	}
	if res.RestoredPoint != "" {
		event.Metadata["restored_point"] = res.RestoredPoint
	}
	return res, nil
}

// discard expires a point whose rollback never committed and drops its state
func (s *Service) discard(ctx context.Context, p *modules.RollbackPoint) {
	if err := s.points.UpdatePointStatus(ctx, p.ID, modules.PointExpired); err != nil {
		s.logger.WithError(err).WithField("point", p.ID).Warn("failed to expire uncommitted rollback point")
		return
	}
	if err := s.blobs.Delete(ctx, p.BlobKey); err != nil {
		s.logger.WithError(err).WithField("point", p.ID).Warn("failed to delete uncommitted rollback point state")
	}
}

func (s *Service) pointsEnabled() bool {
	return s.points != nil && s.blobs != nil
}

// restorable finds the newest available point of key at target and loads its
// captured state. No point at all is fine; a target whose only points are
// corrupted, or whose newest blob fails its checksum, is not.
func (s *Service) restorable(ctx context.Context, key string, target semver.Version) (*modules.RollbackPoint, *modules.CapturedState, error) {
	points, err := s.points.ListPoints(ctx, key)
	if err != nil {
		return nil, nil, err
	}

	var newest *modules.RollbackPoint
	corrupted := 0
	for _, p := range points {
		v, err := semver.ParseVersion(p.Version)
		if err != nil || semver.Compare(v, target) != 0 {
			continue
		}
		switch p.Status {
		case modules.PointCorrupted:
			corrupted++
		case modules.PointAvailable:
			if newest == nil || p.CreatedAt.After(newest.CreatedAt) {
				newest = p
			}
		}
	}
	if newest == nil {
		if corrupted > 0 {
			return nil, nil, fmt.Errorf("%w: every point of %s at %s is corrupted", modules.ErrPointCorrupted, key, target)
		}
		return nil, nil, nil
	}

	data, err := s.blobs.Get(ctx, newest.BlobKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read rollback point %s: %w", newest.ID, err)
	}
	if blob.Checksum(data) != newest.Checksum {
		if err := s.points.UpdatePointStatus(ctx, newest.ID, modules.PointCorrupted); err != nil {
			s.logger.WithError(err).WithField("point", newest.ID).Warn("failed to mark rollback point corrupted")
		}
		return nil, nil, fmt.Errorf("%w: %s checksum mismatch", modules.ErrPointCorrupted, newest.ID)
	}

	var state modules.CapturedState
	if err := json.Unmarshal(data, &state); err != nil {
		if uerr := s.points.UpdatePointStatus(ctx, newest.ID, modules.PointCorrupted); uerr != nil {
			s.logger.WithError(uerr).WithField("point", newest.ID).Warn("failed to mark rollback point corrupted")
		}
		return nil, nil, fmt.Errorf("%w: %s: %v", modules.ErrPointCorrupted, newest.ID, err)
	}
	return newest, &state, nil
}

// capture writes the current state of m to the blob store and records a point
func (s *Service) capture(ctx context.Context, m modules.Module, reason string) (*modules.RollbackPoint, error) {
	now := s.now()
	data, err := json.Marshal(modules.CapturedState{
		ModuleKey:    m.Key,
		Version:      m.InstalledVersion,
		Dependencies: m.Dependencies,
		Config:       m.Config,
		CapturedAt:   now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode captured state: %w", err)
	}

	id := s.newID()
	point := &modules.RollbackPoint{
		ID:        id,
		ModuleKey: m.Key,
		Version:   m.InstalledVersion,
		BlobKey:   blob.PointKey(m.Key, id),
		Checksum:  blob.Checksum(data),
		Status:    modules.PointAvailable,
		Reason:    reason,
		CreatedAt: now,
	}
	if err := s.blobs.Put(ctx, point.BlobKey, data); err != nil {
		return nil, fmt.Errorf("failed to store captured state: %w", err)
	}
	if err := s.points.SavePoint(ctx, point); err != nil {
		return nil, fmt.Errorf("failed to save rollback point: %w", err)
	}
	return point, nil
}

// CreateRollbackPoint captures the current version and configuration of key
func (s *Service) CreateRollbackPoint(ctx context.Context, key, reason string) (point *modules.RollbackPoint, err error) {
	start := time.Now()
	ctx, span := s.span(ctx, "CreateRollbackPoint", attribute.String("module", key))
	event := audit.NewEvent(ctx, audit.EventTypeRollbackPointSave, audit.ResourceTypeRollbackPoint, key)
	event.Reason = reason
	defer func() {
		s.finish(ctx, span, "create_rollback_point", start, err)
		s.record(ctx, event, err)
	}()

	if !s.pointsEnabled() {
		return nil, ErrPointsDisabled
	}
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	m, ok := snap.Module(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", modules.ErrModuleNotFound, key)
	}

	point, err = s.capture(ctx, m, reason)
	if err != nil {
		return nil, err
	}
	event.ResourceID = point.ID
	event.Revision = snap.Revision
	event.Metadata["module"] = key
	event.Metadata["version"] = point.Version
	return point, nil
}

// ListRollbackPoints returns the points of key, newest first
func (s *Service) ListRollbackPoints(ctx context.Context, key string) ([]*modules.RollbackPoint, error) {
	if !s.pointsEnabled() {
		return nil, ErrPointsDisabled
	}
	points, err := s.points.ListPoints(ctx, key)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].CreatedAt.After(points[j].CreatedAt)
	})
	return points, nil
}

// ExpireRollbackPoints marks available points older than retention as expired
// and deletes their captured state. It returns the number of points expired.
func (s *Service) ExpireRollbackPoints(ctx context.Context, retention time.Duration) (expired int, err error) {
	start := time.Now()
	ctx, span := s.span(ctx, "ExpireRollbackPoints", attribute.String("retention", retention.String()))
	event := audit.NewEvent(ctx, audit.EventTypeRollbackPointExp, audit.ResourceTypeRollbackPoint, "")
	defer func() {
		s.finish(ctx, span, "expire_rollback_points", start, err)
		event.Metadata["expired"] = expired
		s.record(ctx, event, err)
	}()

	if !s.pointsEnabled() {
		return 0, ErrPointsDisabled
	}
	if retention <= 0 {
		return 0, fmt.Errorf("%w: retention must be positive", ErrInvalidRequest)
	}

	cutoff := s.now().Add(-retention)
	points, err := s.points.ListPointsBefore(ctx, cutoff, modules.PointAvailable)
	if err != nil {
		return 0, err
	}
	for _, p := range points {
		if err := s.points.UpdatePointStatus(ctx, p.ID, modules.PointExpired); err != nil {
			return expired, fmt.Errorf("failed to expire rollback point %s: %w", p.ID, err)
		}
		if err := s.blobs.Delete(ctx, p.BlobKey); err != nil {
			s.logger.WithError(err).WithField("point", p.ID).Warn("failed to delete expired rollback point state")
		}
		expired++
	}

	s.metrics.RecordPointsExpired(expired)
	return expired, nil
}
