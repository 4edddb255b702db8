package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/platinummonkey/modgraph/pkg/impact"
	"github.com/platinummonkey/modgraph/pkg/modules"
	"github.com/platinummonkey/modgraph/pkg/versioning"
)

// MemoryStore keeps modules, the version log and rollback points in process
// memory. It is the default backend for tests and the CLI.
type MemoryStore struct {
	mu       sync.RWMutex
	revision uint64
	modules  []modules.Module
	versions map[string][]modules.VersionRecord
	points   map[string]*modules.RollbackPoint
	now      func() time.Time
}

// NewMemoryStore creates a store seeded with mods at revision 0
func NewMemoryStore(mods ...modules.Module) *MemoryStore {
	seed := make([]modules.Module, len(mods))
	for i, m := range mods {
		seed[i] = m.Clone()
	}
	return &MemoryStore{
		modules:  seed,
		versions: make(map[string][]modules.VersionRecord),
		points:   make(map[string]*modules.RollbackPoint),
		now:      time.Now,
	}
}

// Snapshot implements modules.ModuleReader
func (s *MemoryStore) Snapshot(ctx context.Context) (*modules.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]modules.Module, len(s.modules))
	for i, m := range s.modules {
		out[i] = m.Clone()
	}
	return &modules.Snapshot{Revision: s.revision, Modules: out}, nil
}

// ListVersions implements modules.ModuleReader
func (s *MemoryStore) ListVersions(ctx context.Context, moduleKey string) ([]modules.VersionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return versioning.MarkLatest(s.versions[moduleKey]), nil
}

// Commit implements modules.ModuleWriter
func (s *MemoryStore) Commit(ctx context.Context, expected uint64, mutations ...modules.Mutation) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.revision != expected {
		return s.revision, &modules.StaleSnapshotError{Expected: expected, Actual: s.revision}
	}

	next, err := modules.ApplyMutations(s.modules, s.now(), mutations...)
	if err != nil {
		return s.revision, err
	}
	s.modules = next
	s.revision++
	return s.revision, nil
}

// AppendVersion implements modules.ModuleWriter
func (s *MemoryStore) AppendVersion(ctx context.Context, record modules.VersionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.versions[record.ModuleKey] {
		if r.Version == record.Version {
			return fmt.Errorf("%w: %s@%s", modules.ErrVersionExists, record.ModuleKey, record.Version)
		}
	}
	record.IsLatest = false
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}
	s.versions[record.ModuleKey] = append(s.versions[record.ModuleKey], record)
	return nil
}

// SavePoint implements modules.PointStore
func (s *MemoryStore) SavePoint(ctx context.Context, point *modules.RollbackPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := *point
	s.points[p.ID] = &p
	return nil
}

// GetPoint implements modules.PointStore
func (s *MemoryStore) GetPoint(ctx context.Context, id string) (*modules.RollbackPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.points[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", modules.ErrPointNotFound, id)
	}
	out := *p
	return &out, nil
}

// ListPoints implements modules.PointStore, newest first
func (s *MemoryStore) ListPoints(ctx context.Context, moduleKey string) ([]*modules.RollbackPoint, error) {
	return s.filterPoints(func(p *modules.RollbackPoint) bool {
		return p.ModuleKey == moduleKey
	}), nil
}

// ListPointsBefore implements modules.PointStore
func (s *MemoryStore) ListPointsBefore(ctx context.Context, cutoff time.Time, status modules.PointStatus) ([]*modules.RollbackPoint, error) {
	return s.filterPoints(func(p *modules.RollbackPoint) bool {
		return p.Status == status && p.CreatedAt.Before(cutoff)
	}), nil
}

// UpdatePointStatus implements modules.PointStore
func (s *MemoryStore) UpdatePointStatus(ctx context.Context, id string, status modules.PointStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.points[id]
	if !ok {
		return fmt.Errorf("%w: %s", modules.ErrPointNotFound, id)
	}
	p.Status = status
	return nil
}

func (s *MemoryStore) filterPoints(keep func(*modules.RollbackPoint) bool) []*modules.RollbackPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*modules.RollbackPoint, 0)
	for _, p := range s.points {
		if keep(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// HealthCheck implements Backend
func (s *MemoryStore) HealthCheck(ctx context.Context) error { return nil }

// Close implements Backend
func (s *MemoryStore) Close() error { return nil }

// MemoryPlanStore keeps propagation plans in process memory
type MemoryPlanStore struct {
	mu    sync.Mutex
	plans map[string]*impact.Plan
	now   func() time.Time
}

func NewMemoryPlanStore() *MemoryPlanStore {
	return &MemoryPlanStore{plans: make(map[string]*impact.Plan), now: time.Now}
}

func (s *MemoryPlanStore) SavePlan(ctx context.Context, plan *impact.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[plan.ID] = plan.Clone()
	return nil
}

func (s *MemoryPlanStore) GetPlan(ctx context.Context, id string) (*impact.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.plans[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", modules.ErrPlanNotFound, id)
	}
	return p.Clone(), nil
}

func (s *MemoryPlanStore) ListPlans(ctx context.Context) ([]*impact.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*impact.Plan, 0, len(s.plans))
	for _, p := range s.plans {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryPlanStore) Transition(ctx context.Context, id string, to impact.PlanStatus, reason string) (*impact.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.plans[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", modules.ErrPlanNotFound, id)
	}
	next := p.Clone()
	if err := next.Transition(to, s.now()); err != nil {
		return nil, err
	}
	if reason != "" {
		next.FailureReason = reason
	}
	s.plans[id] = next
	return next.Clone(), nil
}

// LocalLocker hands out in-process named locks
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]chan struct{})}
}

// Lock implements modules.Locker
func (l *LocalLocker) Lock(ctx context.Context, name string) (func(), error) {
	l.mu.Lock()
	ch, ok := l.locks[name]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[name] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-ch })
	}, nil
}
