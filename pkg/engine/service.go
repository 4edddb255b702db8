package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/modgraph/pkg/audit"
	"github.com/platinummonkey/modgraph/pkg/conflicts"
	"github.com/platinummonkey/modgraph/pkg/dependencies"
	"github.com/platinummonkey/modgraph/pkg/impact"
	"github.com/platinummonkey/modgraph/pkg/modules"
	"github.com/platinummonkey/modgraph/pkg/observability"
	"github.com/platinummonkey/modgraph/pkg/rollback"
	"github.com/platinummonkey/modgraph/pkg/semver"
	"github.com/platinummonkey/modgraph/pkg/versioning"
)

var tracer = otel.Tracer("github.com/platinummonkey/modgraph/pkg/engine")

// graphLock is the single lock every graph mutation re-validates and commits under
const graphLock = "graph"

// Deps are the collaborators of the service. Store, Plans and Locker are
// required; rollback points are disabled when Points or Blobs is nil.
type Deps struct {
	Store   modules.ModuleStore
	Points  modules.PointStore
	Blobs   modules.BlobStore
	Plans   impact.Store
	Locker  modules.Locker
	Audit   audit.Logger
	Metrics *observability.Metrics
	Logger  *observability.Logger
}

// Options tune the service
type Options struct {
	// IncludeDev makes conflict resolution check dev edges too
	IncludeDev bool

	// VerdictTTL bounds how long a rollback verdict authorizes execution
	VerdictTTL   time.Duration
	VerdictLimit int

	// ConflictTTL bounds how long a listed conflict id can be resolved
	// against the revision it was listed at
	ConflictTTL   time.Duration
	ConflictLimit int

	DiffCacheSize int
}

// DefaultOptions returns the options used by the server
func DefaultOptions() Options {
	return Options{
		VerdictTTL:    15 * time.Minute,
		VerdictLimit:  1024,
		ConflictTTL:   15 * time.Minute,
		ConflictLimit: 4096,
		DiffCacheSize: 512,
	}
}

// listedConflict is a report together with the revision it was listed at
type listedConflict struct {
	report   conflicts.Report
	revision uint64
}

// Service is the single authoritative entry point to the module graph. Reads
// run against an immutable snapshot and need no coordination; every mutation
// re-validates and commits under the graph lock with an optimistic revision
// check.
type Service struct {
	store   modules.ModuleStore
	points  modules.PointStore
	blobs   modules.BlobStore
	plans   impact.Store
	locker  modules.Locker
	audit   audit.Logger
	metrics *observability.Metrics
	logger  *observability.Logger
	opts    Options

	verdicts *expirable.LRU[string, *rollback.Validation]
	listed   *expirable.LRU[string, listedConflict]
	diffs    *lru.Cache[string, *versioning.Diff]

	now   func() time.Time
	newID func() string
}

// New creates a service
func New(deps Deps, opts Options) (*Service, error) {
	if deps.Store == nil || deps.Plans == nil || deps.Locker == nil {
		return nil, errors.New("engine: store, plan store and locker are required")
	}
	defaults := DefaultOptions()
	if opts.VerdictTTL <= 0 {
		opts.VerdictTTL = defaults.VerdictTTL
	}
	if opts.VerdictLimit <= 0 {
		opts.VerdictLimit = defaults.VerdictLimit
	}
	if opts.ConflictTTL <= 0 {
		opts.ConflictTTL = defaults.ConflictTTL
	}
	if opts.ConflictLimit <= 0 {
		opts.ConflictLimit = defaults.ConflictLimit
	}
	if opts.DiffCacheSize <= 0 {
		opts.DiffCacheSize = defaults.DiffCacheSize
	}

	diffs, err := lru.New[string, *versioning.Diff](opts.DiffCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create diff cache: %w", err)
	}

	s := &Service{
		store:    deps.Store,
		points:   deps.Points,
		blobs:    deps.Blobs,
		plans:    deps.Plans,
		locker:   deps.Locker,
		audit:    deps.Audit,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		opts:     opts,
		verdicts: expirable.NewLRU[string, *rollback.Validation](opts.VerdictLimit, nil, opts.VerdictTTL),
		listed:   expirable.NewLRU[string, listedConflict](opts.ConflictLimit, nil, opts.ConflictTTL),
		diffs:    diffs,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	if s.audit == nil {
		s.audit = audit.NoOpLogger{}
	}
	if s.logger == nil {
		s.logger = observability.NopLogger()
	}
	return s, nil
}

// state is everything a pass needs, read at one revision
type state struct {
	snap     *modules.Snapshot
	graph    *dependencies.Graph
	versions conflicts.VersionIndex
}

// load reads the snapshot, then the version log of every module concurrently
func (s *Service) load(ctx context.Context) (*state, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	versions := make(conflicts.VersionIndex, len(snap.Modules))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, m := range snap.Modules {
		key := m.Key
		g.Go(func() error {
			records, err := s.store.ListVersions(gctx, key)
			if err != nil {
				return fmt.Errorf("failed to list versions of %s: %w", key, err)
			}
			mu.Lock()
			versions[key] = records
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &state{
		snap:     snap,
		graph:    dependencies.BuildSnapshot(snap),
		versions: versions,
	}, nil
}

func (s *Service) resolveOptions() conflicts.Options {
	return conflicts.Options{IncludeDev: s.opts.IncludeDev}
}

// hypothetical applies mutations to st without committing and resolves the result
func (s *Service) hypothetical(st *state, mutations ...modules.Mutation) ([]conflicts.Report, error) {
	mods, err := modules.ApplyMutations(st.snap.Modules, s.now(), mutations...)
	if err != nil {
		return nil, err
	}
	return conflicts.Resolve(dependencies.Build(mods), st.versions, s.resolveOptions()), nil
}

// lock takes the graph lock
func (s *Service) lock(ctx context.Context) (func(), error) {
	unlock, err := s.locker.Lock(ctx, graphLock)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire graph lock: %w", err)
	}
	return unlock, nil
}

// checkCoreFloor rejects moving a core module below its minimum version
func checkCoreFloor(m modules.Module, target semver.Version) error {
	if !m.IsCore || m.MinimumVersion == "" {
		return nil
	}
	floor, err := semver.ParseVersion(m.MinimumVersion)
	if err != nil {
		return nil
	}
	if semver.Less(target, floor) {
		return &modules.RequiredDependencyError{
			ModuleKey: m.Key,
			Reason:    fmt.Sprintf("core module cannot go below minimum version %s (requested %s)", m.MinimumVersion, target),
		}
	}
	return nil
}

// span starts a span for an operation
func (s *Service) span(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, "engine."+op, trace.WithAttributes(attrs...))
}

// finish records metrics and span status for an operation
func (s *Service) finish(ctx context.Context, span trace.Span, op string, start time.Time, err error) {
	outcome := outcomeOf(err)
	s.metrics.RecordOperation(ctx, op, outcome, time.Since(start))
	span.SetAttributes(attribute.String("outcome", outcome))
	if err != nil && outcome == observability.OutcomeError {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// outcomeOf classifies an error for metrics: stale commits, caller-caused
// rejections and genuine failures are counted apart
func outcomeOf(err error) string {
	if err == nil {
		return observability.OutcomeSuccess
	}
	if modules.IsStale(err) {
		return observability.OutcomeStale
	}
	if IsRejection(err) {
		return observability.OutcomeRejected
	}
	return observability.OutcomeError
}

// record writes an audit event, logging but not returning a failure to do so
func (s *Service) record(ctx context.Context, event *audit.Event, err error) {
	if err != nil {
		status := audit.EventStatusFailure
		if IsRejection(err) || modules.IsStale(err) {
			status = audit.EventStatusRejected
		}
		event.Fail(status, err)
	}
	if logErr := s.audit.Log(ctx, event); logErr != nil {
		s.logger.WithError(logErr).WithField("event_type", string(event.EventType)).Warn("failed to write audit event")
	}

	entry := s.logger.WithFields(map[string]interface{}{
		"event_type":  string(event.EventType),
		"resource_id": event.ResourceID,
		"revision":    event.Revision,
		"actor":       event.Actor,
	})
	if err != nil {
		entry.WithError(err).Warn("mutation rejected")
		return
	}
	entry.Info("mutation committed")
}
