package versioning

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/modgraph/pkg/modules"
	"github.com/platinummonkey/modgraph/pkg/semver"
)

func TestSuggestNext(t *testing.T) {
	tests := []struct {
		bump semver.Bump
		want string
	}{
		{semver.BumpPatch, "1.4.8"},
		{semver.BumpMinor, "1.5.0"},
		{semver.BumpMajor, "2.0.0"},
	}
	for _, tt := range tests {
		t.Run(tt.bump.String(), func(t *testing.T) {
			got, err := SuggestNext("1.4.7", tt.bump)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSuggestNext_Malformed(t *testing.T) {
	for _, input := range []string{"1.4", "1.x.7", "1.4.7-beta", "1.4.7.1", ""} {
		_, err := SuggestNext(input, semver.BumpPatch)
		var perr *semver.ParseError
		assert.True(t, errors.As(err, &perr), "input %q", input)
	}
}

func TestNextSatisfying(t *testing.T) {
	tests := []struct {
		installed string
		rng       string
		want      string
		ok        bool
	}{
		{"1.4.7", "^1.5.0", "1.5.0", true},
		{"1.4.7", "~1.4.8", "1.4.8", true},
		{"1.4.7", ">=1.7.0 <2.0.0", "1.7.0", true},
		{"1.2.3", "~1.2.5", "1.2.5", true},
		{"1.2.3", ">=1.2.5 <1.3.0", "1.2.5", true},
		{"1.2.3", "^1.5.2", "1.5.2", true},
		{"1.2.3", ">1.5.2 <2.0.0", "1.5.3", true},
		{"1.9.0", "^2.0.0", "", false},
		{"1.9.0", "~1.4.0", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.installed+" "+tt.rng, func(t *testing.T) {
			got, ok := NextSatisfying(semver.MustParseVersion(tt.installed), semver.MustParseConstraint(tt.rng))
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got.String())
			}
		})
	}
}

func TestSelectPublished_TagTieBreak(t *testing.T) {
	records := []modules.VersionRecord{
		{Version: "1.5.0", Tag: modules.TagStable},
		{Version: "1.6.0", Tag: modules.TagStable},
		{Version: "1.7.0", Tag: modules.TagRC},
		{Version: "1.8.0", Tag: modules.TagAlpha},
		{Version: "2.0.0", Tag: modules.TagStable},
	}

	got, ok := SelectPublished(records, semver.MustParseConstraint("^1.5.0"))
	require.True(t, ok)
	assert.Equal(t, "1.6.0", got.Version)

	got, ok = SelectPublished(records, semver.MustParseConstraint(">=1.7.0 <2.0.0"))
	require.True(t, ok)
	assert.Equal(t, "1.7.0", got.Version)

	got, ok = SelectPublished(records, semver.MustParseConstraint("~1.8.0"))
	require.True(t, ok)
	assert.Equal(t, "1.8.0", got.Version)

	_, ok = SelectPublished(records, semver.MustParseConstraint("^3.0.0"))
	assert.False(t, ok)
}

func TestMarkLatest(t *testing.T) {
	records := MarkLatest([]modules.VersionRecord{
		{Version: "1.0.0"},
		{Version: "1.10.0"},
		{Version: "1.9.0"},
	})
	latest := 0
	for _, r := range records {
		if r.IsLatest {
			latest++
			assert.Equal(t, "1.10.0", r.Version)
		}
	}
	assert.Equal(t, 1, latest)
}

func TestCompare_Features(t *testing.T) {
	v1 := modules.VersionRecord{ModuleKey: "billing", Version: "1.0.0", Features: []modules.Feature{
		{Key: "invoices", Required: true},
		{Key: "exports"},
		{Key: "legacy"},
	}}
	v2 := modules.VersionRecord{ModuleKey: "billing", Version: "2.0.0", Features: []modules.Feature{
		{Key: "exports"},
		{Key: "subscriptions"},
	}}

	d, err := Compare(v1, v2)
	require.NoError(t, err)
	assert.Equal(t, []string{"subscriptions"}, d.AddedFeatures)
	assert.Equal(t, []string{"invoices", "legacy"}, d.RemovedFeatures)
	require.Len(t, d.BreakingChanges, 1)
	assert.Equal(t, BreakingRemovedFeature, d.BreakingChanges[0].Kind)
	assert.Equal(t, "invoices", d.BreakingChanges[0].Feature)
	assert.Equal(t, "major", d.SuggestedBump)

	reverse, err := Compare(v2, v1)
	require.NoError(t, err)
	assert.Equal(t, d.AddedFeatures, reverse.RemovedFeatures)
	assert.Equal(t, d.RemovedFeatures, reverse.AddedFeatures)
	assert.Empty(t, reverse.BreakingChanges)
	assert.Equal(t, "minor", reverse.SuggestedBump)
}

func TestCompare_DependencyRanges(t *testing.T) {
	base := modules.VersionRecord{Version: "1.0.0", Dependencies: []modules.Dependency{
		{Key: "core", Range: "^1.0.0", IsRequired: true},
		{Key: "auth", Range: "^2.0.0", IsRequired: true},
		{Key: "docs", Range: "^1.0.0"},
	}}
	next := modules.VersionRecord{Version: "1.1.0", Dependencies: []modules.Dependency{
		{Key: "core", Range: "^1.5.0", IsRequired: true},
		{Key: "auth", Range: ">=2.0.0", IsRequired: true},
		{Key: "docs", Range: "^1.9.0"},
	}}

	d, err := Compare(base, next)
	require.NoError(t, err)
	require.Len(t, d.BreakingChanges, 1)
	assert.Equal(t, BreakingNarrowedRange, d.BreakingChanges[0].Kind)
	assert.Equal(t, "core", d.BreakingChanges[0].Dependency)
	assert.Equal(t, "^1.0.0", d.BreakingChanges[0].FromRange)
}

func TestCompare_NoChangesIsPatch(t *testing.T) {
	d, err := Compare(modules.VersionRecord{Version: "1.0.0"}, modules.VersionRecord{Version: "1.0.1"})
	require.NoError(t, err)
	assert.Empty(t, d.AddedFeatures)
	assert.Empty(t, d.RemovedFeatures)
	assert.False(t, d.IsBreaking())
	assert.Equal(t, "patch", d.SuggestedBump)
}

func TestCompare_Malformed(t *testing.T) {
	_, err := Compare(modules.VersionRecord{Version: "1.0"}, modules.VersionRecord{Version: "1.0.1"})
	var perr *semver.ParseError
	assert.True(t, errors.As(err, &perr))
}
