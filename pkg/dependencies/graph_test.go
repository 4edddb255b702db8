package dependencies

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/modgraph/pkg/modules"
)

func mod(key, version string, deps ...modules.Dependency) modules.Module {
	return modules.Module{Key: key, InstalledVersion: version, Dependencies: deps}
}

func dep(key, rng string) modules.Dependency {
	return modules.Dependency{Key: key, Range: rng}
}

func TestBuild_Levels(t *testing.T) {
	// api -> users -> core, api -> core
	g := Build([]modules.Module{
		mod("api", "1.0.0", dep("users", "^1.0.0"), dep("core", "^1.0.0")),
		mod("users", "1.2.0", dep("core", "^1.0.0")),
		mod("core", "1.5.0"),
	})

	require.True(t, g.IsAcyclic())

	level, ok := g.Level("core")
	assert.True(t, ok)
	assert.Equal(t, 0, level)

	level, _ = g.Level("users")
	assert.Equal(t, 1, level)

	level, _ = g.Level("api")
	assert.Equal(t, 2, level)

	assert.Equal(t, []string{"api", "users", "core"}, g.Keys())
}

func TestBuild_DanglingEdge(t *testing.T) {
	g := Build([]modules.Module{
		mod("reports", "1.0.0", dep("ghost", "^1.0.0")),
	})

	dangling := g.Dangling()
	require.Len(t, dangling, 1)
	assert.Equal(t, "ghost", dangling[0].To)

	// dangling targets contribute nothing to levels
	level, ok := g.Level("reports")
	assert.True(t, ok)
	assert.Equal(t, 0, level)

	// the transpose index still records the edge
	assert.Len(t, g.Dependents("ghost"), 1)
}

func TestBuild_DuplicateKeyWarns(t *testing.T) {
	g := Build([]modules.Module{
		mod("core", "1.0.0"),
		mod("core", "2.0.0"),
	})

	node, ok := g.Node("core")
	require.True(t, ok)
	assert.Equal(t, "1.0.0", node.Version)
	assert.Len(t, g.Nodes(), 1)
	assert.NotEmpty(t, g.Warnings())
}

func TestGraph_Dependents(t *testing.T) {
	g := Build([]modules.Module{
		mod("billing", "2.0.0", dep("core", "^1.5.0")),
		mod("reports", "1.0.0", dep("core", "^1.0.0")),
		mod("core", "1.5.0"),
	})

	dependents := g.Dependents("core")
	require.Len(t, dependents, 2)
	assert.Equal(t, "billing", dependents[0].From)
	assert.Equal(t, "reports", dependents[1].From)
	assert.Empty(t, g.Dependents("billing"))

	// returned slices are copies
	dependents[0].From = "mutated"
	assert.Equal(t, "billing", g.Dependents("core")[0].From)
}

func TestFindCycles_ReportsEachCycleOnce(t *testing.T) {
	// the same three-node cycle is found once regardless of insertion order
	orders := [][]string{{"a", "b", "c"}, {"c", "a", "b"}, {"b", "c", "a"}}
	for _, order := range orders {
		byKey := map[string]modules.Module{
			"a": mod("a", "1.0.0", dep("b", "*")),
			"b": mod("b", "1.0.0", dep("c", "*")),
			"c": mod("c", "1.0.0", dep("a", "*")),
		}
		mods := make([]modules.Module, 0, 3)
		for _, k := range order {
			mods = append(mods, byKey[k])
		}

		g := Build(mods)
		cycles := g.Cycles()
		require.Len(t, cycles, 1, "order %v", order)
		assert.ElementsMatch(t, []string{"a", "b", "c"}, []string(cycles[0]))
		assert.Equal(t, order[0], cycles[0][0])
	}
}

func TestFindCycles_NodeInAtMostOneCycle(t *testing.T) {
	// a <-> b and b <-> c share b
	g := Build([]modules.Module{
		mod("a", "1.0.0", dep("b", "*")),
		mod("b", "1.0.0", dep("a", "*"), dep("c", "*")),
		mod("c", "1.0.0", dep("b", "*")),
	})

	cycles := g.Cycles()
	require.Len(t, cycles, 1)
	assert.Equal(t, Cycle{"a", "b"}, cycles[0])
	assert.Equal(t, "a -> b -> a", cycles[0].String())
	assert.True(t, cycles[0].Contains("b", "a"))
	assert.False(t, cycles[0].Contains("b", "c"))

	// c sits on an unreported cycle and still gets an undefined level
	for _, key := range []string{"a", "b", "c"} {
		level, ok := g.Level(key)
		assert.False(t, ok, key)
		assert.Equal(t, 0, level, key)
	}
}

func TestFindCycles_SelfLoop(t *testing.T) {
	g := Build([]modules.Module{
		mod("loop", "1.0.0", dep("loop", "*")),
		mod("user", "1.0.0", dep("loop", "*")),
	})

	cycles := g.Cycles()
	require.Len(t, cycles, 1)
	assert.Equal(t, Cycle{"loop"}, cycles[0])

	_, ok := g.Level("loop")
	assert.False(t, ok)

	// cycle members count as level 0 for dependents
	level, ok := g.Level("user")
	assert.True(t, ok)
	assert.Equal(t, 1, level)
}

func TestFindCycles_EmptyForDAG(t *testing.T) {
	g := Build([]modules.Module{
		mod("a", "1.0.0", dep("b", "*"), dep("c", "*")),
		mod("b", "1.0.0", dep("c", "*")),
		mod("c", "1.0.0"),
	})
	assert.Empty(t, FindCycles(g))
	assert.Empty(t, g.Warnings())
}

func TestGraph_TopologicalOrder(t *testing.T) {
	g := Build([]modules.Module{
		mod("api", "1.0.0", dep("users", "*")),
		mod("users", "1.0.0", dep("core", "*")),
		mod("core", "1.0.0"),
	})

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"core", "users", "api"}, order)

	cyclic := Build([]modules.Module{
		mod("a", "1.0.0", dep("b", "*")),
		mod("b", "1.0.0", dep("a", "*")),
	})
	_, err = cyclic.TopologicalOrder()
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.ElementsMatch(t, []string{"a", "b"}, []string(cycleErr.Cycle))
}

func TestGraph_TransitiveDependencies(t *testing.T) {
	g := Build([]modules.Module{
		mod("user", "1.0.0", dep("common", "*")),
		mod("common", "1.0.0", dep("base", "*")),
		mod("base", "1.0.0"),
	})

	assert.Equal(t, []string{"common", "base"}, g.TransitiveDependencies("user"))
	assert.Empty(t, g.TransitiveDependencies("base"))
}

func TestBuildSnapshot_CarriesRevision(t *testing.T) {
	g := BuildSnapshot(&modules.Snapshot{Revision: 7, Modules: []modules.Module{mod("core", "1.0.0")}})
	assert.Equal(t, uint64(7), g.Revision)
}
