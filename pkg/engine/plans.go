package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/modgraph/pkg/audit"
	"github.com/platinummonkey/modgraph/pkg/conflicts"
	"github.com/platinummonkey/modgraph/pkg/dependencies"
	"github.com/platinummonkey/modgraph/pkg/impact"
	"github.com/platinummonkey/modgraph/pkg/modules"
	"github.com/platinummonkey/modgraph/pkg/semver"
)

// AnalyzeChangePropagation builds and stores a pending plan for moving key to
// change.TargetVersion. Nothing in the graph changes until the plan is
// approved and executed.
func (s *Service) AnalyzeChangePropagation(ctx context.Context, key string, change impact.Change) (plan *impact.Plan, err error) {
	start := time.Now()
	ctx, span := s.span(ctx, "AnalyzeChangePropagation", attribute.String("module", key), attribute.String("target", change.TargetVersion))
	event := audit.NewEvent(ctx, audit.EventTypePlanCreate, audit.ResourceTypePlan, "")
	defer func() {
		s.finish(ctx, span, "analyze_change_propagation", start, err)
		s.record(ctx, event, err)
	}()

	if _, err := semver.ParseVersion(change.TargetVersion); err != nil {
		return nil, err
	}
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	plan, err = impact.Analyze(dependencies.BuildSnapshot(snap), key, change)
	if err != nil {
		return nil, err
	}
	now := s.now()
	plan.ID = s.newID()
	plan.CreatedAt = now
	plan.UpdatedAt = now
	if err := s.plans.SavePlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("failed to save plan: %w", err)
	}

	event.ResourceID = plan.ID
	event.Revision = plan.Revision
	event.Metadata["source_module"] = key
	event.Metadata["target_version"] = change.TargetVersion
	event.Metadata["total_risk"] = string(plan.TotalRisk)
	event.Metadata["affected"] = len(plan.AffectedModules)
	return plan, nil
}

// GetPlan returns a stored plan
func (s *Service) GetPlan(ctx context.Context, id string) (*impact.Plan, error) {
	return s.plans.GetPlan(ctx, id)
}

// ListPlans returns every stored plan, oldest first
func (s *Service) ListPlans(ctx context.Context) ([]*impact.Plan, error) {
	return s.plans.ListPlans(ctx)
}

// ApprovePlan moves a pending plan to approved. It has no effect on the graph.
func (s *Service) ApprovePlan(ctx context.Context, id string) (*impact.Plan, error) {
	return s.transition(ctx, id, impact.StatusApproved, "", audit.EventTypePlanApprove)
}

// RejectPlan moves a pending plan to rejected, recording reason
func (s *Service) RejectPlan(ctx context.Context, id, reason string) (*impact.Plan, error) {
	return s.transition(ctx, id, impact.StatusRejected, reason, audit.EventTypePlanReject)
}

func (s *Service) transition(ctx context.Context, id string, to impact.PlanStatus, reason string, eventType audit.EventType) (plan *impact.Plan, err error) {
	start := time.Now()
	op := "plan_" + string(to)
	ctx, span := s.span(ctx, "TransitionPlan", attribute.String("plan", id), attribute.String("to", string(to)))
	event := audit.NewEvent(ctx, eventType, audit.ResourceTypePlan, id)
	event.Reason = reason
	defer func() {
		s.finish(ctx, span, op, start, err)
		s.record(ctx, event, err)
	}()

	plan, err = s.plans.Transition(ctx, id, to, reason)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordPlanTransition(string(impact.StatusPending), string(to))
	event.Changes = &audit.ChangeDetails{
		Before: map[string]interface{}{"status": string(impact.StatusPending)},
		After:  map[string]interface{}{"status": string(to)},
	}
	return plan, nil
}

// ExecutePlan applies an approved plan: the source module moves to the
// plan's target version. The plan goes through executing and ends in
// completed or failed; a plan that is not approved is refused before the
// graph is touched.
//
// The plan is failed rather than applied when the graph has moved since it
// was analyzed, when the target would break a core module's minimum, or when
// resolving the changed graph shows error conflicts that are not there now.
// A failed plan is returned together with the error that failed it.
func (s *Service) ExecutePlan(ctx context.Context, id string) (plan *impact.Plan, err error) {
	start := time.Now()
	ctx, span := s.span(ctx, "ExecutePlan", attribute.String("plan", id))
	event := audit.NewEvent(ctx, audit.EventTypePlanExecute, audit.ResourceTypePlan, id)
	defer func() {
		s.finish(ctx, span, "execute_plan", start, err)
		s.record(ctx, event, err)
	}()

	plan, err = s.plans.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	if plan.Status != impact.StatusApproved {
		return nil, &modules.InvalidTransitionError{PlanID: id, From: string(plan.Status), To: string(impact.StatusExecuting)}
	}

	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// the store transition is the guard against a second submitter
	plan, err = s.plans.Transition(ctx, id, impact.StatusExecuting, "")
	if err != nil {
		return nil, err
	}
	s.metrics.RecordPlanTransition(string(impact.StatusApproved), string(impact.StatusExecuting))

	fail := func(cause error) (*impact.Plan, error) {
		failed, terr := s.plans.Transition(ctx, id, impact.StatusFailed, cause.Error())
		if terr != nil {
			return nil, errors.Join(cause, fmt.Errorf("failed to mark plan %s failed: %w", id, terr))
		}
		s.metrics.RecordPlanTransition(string(impact.StatusExecuting), string(impact.StatusFailed))
		event.Metadata["status"] = string(impact.StatusFailed)
		return failed, cause
	}

	st, err := s.load(ctx)
	if err != nil {
		return fail(err)
	}
	if st.graph.Revision != plan.Revision {
		return fail(&modules.StaleSnapshotError{Expected: plan.Revision, Actual: st.graph.Revision})
	}

	target, err := semver.ParseVersion(plan.Change.TargetVersion)
	if err != nil {
		return fail(err)
	}
	source, ok := st.snap.Module(plan.SourceModule)
	if !ok {
		return fail(fmt.Errorf("%w: %s", modules.ErrModuleNotFound, plan.SourceModule))
	}
	if err := checkCoreFloor(source, target); err != nil {
		return fail(err)
	}

	mutation := modules.SetVersion(plan.SourceModule, target.String())
	before := conflicts.Resolve(st.graph, st.versions, s.resolveOptions())
	after, err := s.hypothetical(st, mutation)
	if err != nil {
		return fail(err)
	}
	if introduced := conflicts.Introduced(before, after); len(introduced) > 0 {
		return fail(&ResolutionRejectedError{Subject: "plan " + id, Introduced: introduced})
	}

	revision, err := s.store.Commit(ctx, plan.Revision, mutation)
	if err != nil {
		return fail(err)
	}

	plan, err = s.plans.Transition(ctx, id, impact.StatusCompleted, "")
	if err != nil {
		return nil, fmt.Errorf("plan %s committed at revision %d but could not be completed: %w", id, revision, err)
	}
	s.metrics.RecordPlanTransition(string(impact.StatusExecuting), string(impact.StatusCompleted))

	event.Revision = revision
	event.Changes = &audit.ChangeDetails{
		Before: map[string]interface{}{"module": source.Key, "version": source.InstalledVersion},
		After:  map[string]interface{}{"module": source.Key, "version": target.String()},
	}
	return plan, nil
}
