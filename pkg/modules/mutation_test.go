package modules

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedModules() []Module {
	return []Module{
		{Key: "core", InstalledVersion: "1.5.0", IsCore: true},
		{Key: "billing", InstalledVersion: "2.0.0", Dependencies: []Dependency{
			{Key: "core", Range: "^1.5.0", IsRequired: true},
		}},
	}
}

func TestApplyMutations_DoesNotTouchInput(t *testing.T) {
	mods := seedModules()
	now := time.Now()

	out, err := ApplyMutations(mods, now,
		SetVersion("core", "1.6.0"),
		PutDependency("billing", Dependency{Key: "core", Range: "^1.6.0"}),
	)
	require.NoError(t, err)

	assert.Equal(t, "1.5.0", mods[0].InstalledVersion)
	assert.Equal(t, "^1.5.0", mods[1].Dependencies[0].Range)

	assert.Equal(t, "1.6.0", out[0].InstalledVersion)
	assert.Equal(t, "^1.6.0", out[1].Dependencies[0].Range)
	assert.Len(t, out[1].Dependencies, 1)
	assert.Equal(t, now, out[1].UpdatedAt)
}

func TestApplyMutations_AddAndRemoveDependency(t *testing.T) {
	out, err := ApplyMutations(seedModules(), time.Now(),
		PutDependency("core", Dependency{Key: "billing", Range: "*", IsDev: true}),
	)
	require.NoError(t, err)
	require.Len(t, out[0].Dependencies, 1)

	out, err = ApplyMutations(out, time.Now(), RemoveDependency("core", "billing"))
	require.NoError(t, err)
	assert.Empty(t, out[0].Dependencies)
}

func TestApplyMutations_SetCore(t *testing.T) {
	out, err := ApplyMutations(seedModules(), time.Now(), SetCore("billing", true, "2.0.0"))
	require.NoError(t, err)
	assert.True(t, out[1].IsCore)
	assert.Equal(t, "2.0.0", out[1].MinimumVersion)

	out, err = ApplyMutations(out, time.Now(), SetCore("billing", false, ""))
	require.NoError(t, err)
	assert.False(t, out[1].IsCore)
	assert.Empty(t, out[1].MinimumVersion)
}

func TestApplyMutations_CreateModule(t *testing.T) {
	out, err := ApplyMutations(nil, time.Now(), CreateModule(Module{Key: "auth", InstalledVersion: "0.1.0"}))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "auth", out[0].Key)

	_, err = ApplyMutations(out, time.Now(), CreateModule(Module{Key: "auth", InstalledVersion: "0.2.0"}))
	assert.True(t, errors.Is(err, ErrModuleExists))
}

func TestApplyMutations_Errors(t *testing.T) {
	_, err := ApplyMutations(seedModules(), time.Now(), SetVersion("ghost", "1.0.0"))
	assert.True(t, errors.Is(err, ErrModuleNotFound))

	_, err = ApplyMutations(seedModules(), time.Now(), RemoveDependency("core", "billing"))
	assert.True(t, errors.Is(err, ErrDependencyNotFound))

	_, err = ApplyMutations(seedModules(), time.Now(), Mutation{Kind: "explode", ModuleKey: "core"})
	assert.Error(t, err)
}

func TestApplyMutations_FailedBatchIsAllOrNothing(t *testing.T) {
	mods := seedModules()
	out, err := ApplyMutations(mods, time.Now(),
		SetVersion("core", "9.9.9"),
		SetVersion("ghost", "1.0.0"),
	)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Equal(t, "1.5.0", mods[0].InstalledVersion)
}

func TestTagRank(t *testing.T) {
	assert.Greater(t, TagStable.Rank(), TagRC.Rank())
	assert.Greater(t, TagRC.Rank(), TagBeta.Rank())
	assert.Greater(t, TagBeta.Rank(), TagAlpha.Rank())
	assert.False(t, Tag("nightly").Valid())

	tag, err := ParseTag("")
	require.NoError(t, err)
	assert.Equal(t, TagStable, tag)

	_, err = ParseTag("nightly")
	assert.Error(t, err)
}

func TestStaleSnapshotError(t *testing.T) {
	var err error = &StaleSnapshotError{Expected: 3, Actual: 4}
	assert.True(t, IsStale(err))
	assert.Contains(t, err.Error(), "revision 3")
	assert.False(t, IsStale(errors.New("other")))
}
