package impact

import (
	"context"
	"time"

	"github.com/platinummonkey/modgraph/pkg/modules"
)

// PlanStatus is a state of the propagation plan state machine
type PlanStatus string

const (
	StatusPending   PlanStatus = "pending"
	StatusApproved  PlanStatus = "approved"
	StatusExecuting PlanStatus = "executing"
	StatusCompleted PlanStatus = "completed"
	StatusFailed    PlanStatus = "failed"
	StatusRejected  PlanStatus = "rejected"
)

// Terminal reports whether no transition leaves the status
func (s PlanStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusRejected:
		return true
	}
	return false
}

// CanTransition reports whether a plan in from may move to to.
//
//	pending   -> approved | rejected
//	approved  -> executing
//	executing -> completed | failed
func CanTransition(from, to PlanStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusApproved || to == StatusRejected
	case StatusApproved:
		return to == StatusExecuting
	case StatusExecuting:
		return to == StatusCompleted || to == StatusFailed
	case StatusCompleted, StatusFailed, StatusRejected:
		return false
	}
	return false
}

// Change describes a proposed change to the source module
type Change struct {
	TargetVersion string `json:"target_version" validate:"required"`
	Description   string `json:"description,omitempty"`
}

// AffectedModule is one dependent reached from the source module
type AffectedModule struct {
	ModuleKey     string    `json:"module_key"`
	Distance      int       `json:"distance"`
	Via           string    `json:"via"`
	Range         string    `json:"required_range,omitempty"`
	RangeViolated bool      `json:"range_violated,omitempty"`
	IsCore        bool      `json:"is_core,omitempty"`
	Risk          RiskLevel `json:"risk"`
}

// Plan is the ordered, risk-ranked propagation of a change to one module.
// Revision is the graph revision the analysis was computed at.
type Plan struct {
	ID                string           `json:"id"`
	SourceModule      string           `json:"source_module"`
	ChangeDescription string           `json:"change_description"`
	Change            Change           `json:"change"`
	AffectedModules   []AffectedModule `json:"affected_modules"`
	TotalRisk         RiskLevel        `json:"total_risk"`
	Status            PlanStatus       `json:"status"`
	Revision          uint64           `json:"revision"`
	FailureReason     string           `json:"failure_reason,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// Transition moves the plan to status to, or returns *modules.InvalidTransitionError
func (p *Plan) Transition(to PlanStatus, now time.Time) error {
	if !CanTransition(p.Status, to) {
		return &modules.InvalidTransitionError{PlanID: p.ID, From: string(p.Status), To: string(to)}
	}
	p.Status = to
	p.UpdatedAt = now
	return nil
}

// Clone returns a deep copy of the plan
func (p *Plan) Clone() *Plan {
	out := *p
	out.AffectedModules = make([]AffectedModule, len(p.AffectedModules))
	copy(out.AffectedModules, p.AffectedModules)
	return &out
}

// Store persists propagation plans. Transition must load, check and save a
// plan atomically so that two callers cannot both move it out of one state.
type Store interface {
	SavePlan(ctx context.Context, plan *Plan) error
	GetPlan(ctx context.Context, id string) (*Plan, error)
	ListPlans(ctx context.Context) ([]*Plan, error)

	// Transition moves plan id from its current status to to. A disallowed
	// move yields *modules.InvalidTransitionError and leaves the plan as is.
	// A non-empty reason is recorded as the plan's failure reason.
	Transition(ctx context.Context, id string, to PlanStatus, reason string) (*Plan, error)
}
