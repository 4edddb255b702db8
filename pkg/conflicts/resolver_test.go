package conflicts

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/modgraph/pkg/dependencies"
	"github.com/platinummonkey/modgraph/pkg/modules"
	"github.com/platinummonkey/modgraph/pkg/semver"
)

func build(mods ...modules.Module) *dependencies.Graph {
	return dependencies.Build(mods)
}

func TestResolve_EdgeClassification(t *testing.T) {
	tests := []struct {
		name      string
		installed string
		wantType  ConflictType
		wantNone  bool
	}{
		{name: "mismatch", installed: "1.9.0", wantType: TypeVersionMismatch},
		{name: "satisfied", installed: "2.3.0", wantNone: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := build(
				modules.Module{Key: "app", InstalledVersion: "1.0.0", Dependencies: []modules.Dependency{
					{Key: "core", Range: "^2.0.0"},
				}},
				modules.Module{Key: "core", InstalledVersion: tt.installed},
			)
			reports := Resolve(g, nil, Options{})
			if tt.wantNone {
				assert.Empty(t, reports)
				return
			}
			require.Len(t, reports, 1)
			assert.Equal(t, tt.wantType, reports[0].Type)
			assert.Equal(t, SeverityWarning, reports[0].Severity)
		})
	}
}

func TestResolve_MissingModule(t *testing.T) {
	g := build(modules.Module{Key: "app", InstalledVersion: "1.0.0", Dependencies: []modules.Dependency{
		{Key: "ghost", Range: "^2.0.0"},
	}})

	reports := Resolve(g, nil, Options{})
	require.Len(t, reports, 1)
	assert.Equal(t, TypeMissingModule, reports[0].Type)
	assert.Equal(t, SeverityError, reports[0].Severity)
	assert.False(t, reports[0].AutoResolvable)

	edges, err := Classify(g, reports, "app")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, StatusMissing, edges[0].Status)
}

func TestResolve_RequiredMismatchIsError(t *testing.T) {
	g := build(
		modules.Module{Key: "billing", InstalledVersion: "2.0.0", Dependencies: []modules.Dependency{
			{Key: "core", Range: "^1.5.0", IsRequired: true},
		}},
		modules.Module{Key: "core", InstalledVersion: "1.4.7"},
	)

	reports := Resolve(g, nil, Options{})
	require.Len(t, reports, 1)
	assert.Equal(t, SeverityError, reports[0].Severity)
	assert.True(t, reports[0].AutoResolvable)
	assert.Equal(t, "1.5.0", reports[0].SuggestedResolution)
	assert.Equal(t, ReportID(TypeVersionMismatch, "billing", "core"), reports[0].ID)

	edges, err := Classify(g, reports, "billing")
	require.NoError(t, err)
	assert.Equal(t, StatusOutdated, edges[0].Status)
	assert.Equal(t, "1.4.7", edges[0].InstalledVersion)
}

func TestResolve_SuggestionPrefersLowerPublished(t *testing.T) {
	g := build(
		modules.Module{Key: "billing", InstalledVersion: "2.0.0", Dependencies: []modules.Dependency{
			{Key: "core", Range: ">=1.4.9 <2.0.0"},
		}},
		modules.Module{Key: "core", InstalledVersion: "1.4.7"},
	)
	versions := VersionIndex{"core": {
		{ModuleKey: "core", Version: "1.4.9", Tag: modules.TagStable},
		{ModuleKey: "core", Version: "1.6.0", Tag: modules.TagRC},
	}}

	reports := Resolve(g, versions, Options{})
	require.Len(t, reports, 1)
	assert.Equal(t, "1.4.9", reports[0].SuggestedResolution)
	assert.True(t, reports[0].AutoResolvable)
}

func TestResolve_MajorChangeNotAutoResolvable(t *testing.T) {
	g := build(
		modules.Module{Key: "app", InstalledVersion: "1.0.0", Dependencies: []modules.Dependency{
			{Key: "core", Range: "^2.0.0"},
		}},
		modules.Module{Key: "core", InstalledVersion: "1.9.0"},
	)
	versions := VersionIndex{"core": {{Version: "2.1.0", Tag: modules.TagStable}}}

	reports := Resolve(g, versions, Options{})
	require.Len(t, reports, 1)
	assert.False(t, reports[0].AutoResolvable)
	assert.Equal(t, "2.1.0", reports[0].SuggestedResolution)

	edges, err := Classify(g, reports, "app")
	require.NoError(t, err)
	assert.Equal(t, StatusConflict, edges[0].Status)
}

func TestResolve_Circular(t *testing.T) {
	g := build(
		modules.Module{Key: "a", InstalledVersion: "1.0.0", Dependencies: []modules.Dependency{{Key: "b", Range: "^1.0.0"}}},
		modules.Module{Key: "b", InstalledVersion: "1.0.0", Dependencies: []modules.Dependency{{Key: "a", Range: "^1.0.0"}}},
	)

	reports := Resolve(g, nil, Options{})
	require.Len(t, reports, 2)
	for _, r := range reports {
		assert.Equal(t, TypeCircular, r.Type)
		assert.Equal(t, SeverityError, r.Severity)
		assert.False(t, r.AutoResolvable)
		assert.ElementsMatch(t, []string{"a", "b"}, r.Cycle)
	}
	assert.True(t, HasErrors(reports))
}

func TestResolve_DevEdgesExcludedByDefault(t *testing.T) {
	g := build(
		modules.Module{Key: "app", InstalledVersion: "1.0.0", Dependencies: []modules.Dependency{
			{Key: "testkit", Range: "^3.0.0", IsDev: true},
		}},
		modules.Module{Key: "testkit", InstalledVersion: "2.0.0"},
	)

	assert.Empty(t, Resolve(g, nil, Options{}))

	reports := Resolve(g, nil, Options{IncludeDev: true})
	require.Len(t, reports, 1)
	assert.True(t, reports[0].IsDev)
}

func TestResolve_MalformedRangeIsData(t *testing.T) {
	g := build(
		modules.Module{Key: "app", InstalledVersion: "1.0.0", Dependencies: []modules.Dependency{
			{Key: "core", Range: "not a range", IsRequired: true},
		}},
		modules.Module{Key: "core", InstalledVersion: "1.0.0"},
	)

	reports := Resolve(g, nil, Options{})
	require.Len(t, reports, 1)
	assert.Equal(t, TypeVersionMismatch, reports[0].Type)
	assert.False(t, reports[0].AutoResolvable)
}

func TestSuggest_PublishedOtherMajorIsManual(t *testing.T) {
	v, auto := Suggest(
		semver.MustParseVersion("1.9.0"),
		semver.MustParseConstraint("^2.0.0"),
		[]modules.VersionRecord{{Version: "2.0.0", Tag: modules.TagBeta}, {Version: "2.0.1", Tag: modules.TagBeta}},
	)
	assert.False(t, auto)
	assert.Equal(t, "2.0.1", v.String())
}

func TestSuggest_SamePatchFloorIsAutoResolvable(t *testing.T) {
	installed := semver.MustParseVersion("1.2.3")
	tests := []struct {
		rng  string
		want string
	}{
		{"~1.2.5", "1.2.5"},
		{">=1.2.5 <1.3.0", "1.2.5"},
		{"^1.5.2", "1.5.2"},
	}
	for _, tt := range tests {
		t.Run(tt.rng, func(t *testing.T) {
			v, auto := Suggest(installed, semver.MustParseConstraint(tt.rng), nil)
			assert.True(t, auto)
			assert.Equal(t, tt.want, v.String())
		})
	}

	g := build(
		modules.Module{Key: "billing", InstalledVersion: "2.0.0", Dependencies: []modules.Dependency{
			{Key: "core", Range: "~1.2.5"},
		}},
		modules.Module{Key: "core", InstalledVersion: "1.2.3"},
	)
	reports := Resolve(g, VersionIndex{}, Options{})
	require.Len(t, reports, 1)
	assert.Equal(t, "1.2.5", reports[0].SuggestedResolution)

	edges, err := Classify(g, reports, "billing")
	require.NoError(t, err)
	assert.Equal(t, StatusOutdated, edges[0].Status)
}

func TestIntroduced(t *testing.T) {
	before := []Report{{ID: "x", Severity: SeverityError}}
	after := []Report{
		{ID: "x", Severity: SeverityError},
		{ID: "y", Severity: SeverityWarning},
		{ID: "z", Severity: SeverityError},
	}
	got := Introduced(before, after)
	require.Len(t, got, 1)
	assert.Equal(t, "z", got[0].ID)
}

func TestClassify_UnknownModule(t *testing.T) {
	_, err := Classify(build(), nil, "ghost")
	assert.True(t, errors.Is(err, modules.ErrModuleNotFound))
}
