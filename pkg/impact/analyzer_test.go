package impact

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/modgraph/pkg/dependencies"
	"github.com/platinummonkey/modgraph/pkg/modules"
	"github.com/platinummonkey/modgraph/pkg/semver"
)

// core <- billing <- invoices <- reports, core <- auth (core module)
func sampleGraph() *dependencies.Graph {
	return dependencies.BuildSnapshot(&modules.Snapshot{Revision: 4, Modules: []modules.Module{
		{Key: "core", InstalledVersion: "1.5.0", IsCore: true},
		{Key: "billing", InstalledVersion: "2.0.0", Dependencies: []modules.Dependency{{Key: "core", Range: "^1.5.0"}}},
		{Key: "auth", InstalledVersion: "1.0.0", IsCore: true, Dependencies: []modules.Dependency{{Key: "core", Range: ">=1.0.0"}}},
		{Key: "invoices", InstalledVersion: "1.1.0", Dependencies: []modules.Dependency{{Key: "billing", Range: "^2.0.0"}}},
		{Key: "reports", InstalledVersion: "0.3.0", Dependencies: []modules.Dependency{{Key: "invoices", Range: "*"}}},
		{Key: "devtools", InstalledVersion: "0.1.0", Dependencies: []modules.Dependency{{Key: "core", Range: "^1.0.0", IsDev: true}}},
	}})
}

func TestAnalyze_BreakingChange(t *testing.T) {
	plan, err := Analyze(sampleGraph(), "core", Change{TargetVersion: "2.0.0"})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, plan.Status)
	assert.Equal(t, uint64(4), plan.Revision)
	assert.Equal(t, "update core to 2.0.0", plan.ChangeDescription)

	keys := make([]string, 0, len(plan.AffectedModules))
	for _, am := range plan.AffectedModules {
		keys = append(keys, am.ModuleKey)
	}
	assert.Equal(t, []string{"auth", "billing", "invoices", "reports"}, keys)

	byKey := make(map[string]AffectedModule)
	for _, am := range plan.AffectedModules {
		byKey[am.ModuleKey] = am
	}

	// auth accepts 2.0.0 but is core: low escalated to medium
	assert.Equal(t, RiskMedium, byKey["auth"].Risk)
	assert.False(t, byKey["auth"].RangeViolated)

	assert.Equal(t, RiskHigh, byKey["billing"].Risk)
	assert.True(t, byKey["billing"].RangeViolated)

	assert.Equal(t, 2, byKey["invoices"].Distance)
	assert.Equal(t, "billing", byKey["invoices"].Via)
	assert.Equal(t, RiskMedium, byKey["invoices"].Risk)

	assert.Equal(t, 3, byKey["reports"].Distance)
	assert.Equal(t, RiskLow, byKey["reports"].Risk)

	assert.Equal(t, RiskHigh, plan.TotalRisk)
}

func TestAnalyze_CompatibleChange(t *testing.T) {
	plan, err := Analyze(sampleGraph(), "core", Change{TargetVersion: "1.6.0", Description: "minor release"})
	require.NoError(t, err)
	assert.Equal(t, "minor release", plan.ChangeDescription)
	assert.Equal(t, RiskMedium, plan.TotalRisk)
}

func TestAnalyze_NoDependents(t *testing.T) {
	plan, err := Analyze(sampleGraph(), "reports", Change{TargetVersion: "1.0.0"})
	require.NoError(t, err)
	assert.Empty(t, plan.AffectedModules)
	assert.Equal(t, RiskLow, plan.TotalRisk)
}

func TestAnalyze_Cycle(t *testing.T) {
	g := dependencies.Build([]modules.Module{
		{Key: "a", InstalledVersion: "1.0.0", Dependencies: []modules.Dependency{{Key: "b", Range: "*"}}},
		{Key: "b", InstalledVersion: "1.0.0", Dependencies: []modules.Dependency{{Key: "a", Range: "*"}}},
	})
	plan, err := Analyze(g, "a", Change{TargetVersion: "1.1.0"})
	require.NoError(t, err)
	require.Len(t, plan.AffectedModules, 1)
	assert.Equal(t, "b", plan.AffectedModules[0].ModuleKey)
}

func TestAnalyze_Errors(t *testing.T) {
	_, err := Analyze(sampleGraph(), "ghost", Change{TargetVersion: "1.0.0"})
	assert.True(t, errors.Is(err, modules.ErrModuleNotFound))

	_, err = Analyze(sampleGraph(), "core", Change{TargetVersion: "2.0"})
	var perr *semver.ParseError
	assert.True(t, errors.As(err, &perr))
}

func TestRiskLevel(t *testing.T) {
	assert.Equal(t, RiskCritical, RiskHigh.Escalate(1))
	assert.Equal(t, RiskCritical, RiskCritical.Escalate(1))
	assert.Equal(t, RiskLow, RiskMedium.Decay(3))
	assert.Equal(t, RiskHigh, MaxRisk(RiskLow, RiskHigh, RiskMedium))
	assert.Equal(t, RiskLow, MaxRisk())

	_, err := ParseRisk("severe")
	assert.Error(t, err)
}

func TestPlan_StateMachine(t *testing.T) {
	now := time.Now()

	p := &Plan{ID: "p1", Status: StatusPending}
	require.NoError(t, p.Transition(StatusApproved, now))
	require.NoError(t, p.Transition(StatusExecuting, now))

	err := p.Transition(StatusExecuting, now)
	var terr *modules.InvalidTransitionError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "executing", terr.From)

	require.NoError(t, p.Transition(StatusCompleted, now))
	assert.True(t, p.Status.Terminal())
	assert.Error(t, p.Transition(StatusFailed, now))

	rejected := &Plan{ID: "p2", Status: StatusPending}
	require.NoError(t, rejected.Transition(StatusRejected, now))
	assert.Error(t, rejected.Transition(StatusApproved, now))

	pending := &Plan{ID: "p3", Status: StatusPending}
	assert.Error(t, pending.Transition(StatusExecuting, now))
	assert.Equal(t, StatusPending, pending.Status)
}

func TestCanTransition(t *testing.T) {
	all := []PlanStatus{StatusPending, StatusApproved, StatusExecuting, StatusCompleted, StatusFailed, StatusRejected}
	allowed := map[PlanStatus][]PlanStatus{
		StatusPending:   {StatusApproved, StatusRejected},
		StatusApproved:  {StatusExecuting},
		StatusExecuting: {StatusCompleted, StatusFailed},
	}
	for _, from := range all {
		for _, to := range all {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}
