package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testManifest = `
modules:
  - key: core
    installed_version: 1.5.0
    is_core: true
    minimum_version: 1.2.0
    versions:
      - version: 1.4.0
        features:
          - key: graph
      - version: 1.5.0
        features:
          - key: graph
          - key: cache
            required: true
  - key: billing
    installed_version: 2.0.0
    dependencies:
      - key: core
        range: ^1.6.0
        is_required: true
`

func writeManifest(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "modules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestNewRootCommand(t *testing.T) {
	root := NewRootCommand()
	assert.Equal(t, "modgraphctl", root.Name())
	assert.NotNil(t, root.PersistentFlags().Lookup("manifest"))
	assert.NotNil(t, root.PersistentFlags().Lookup("json"))

	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"check", "resolve", "deps", "order", "graph", "next", "compare", "validate-rollback", "impact"} {
		assert.Contains(t, names, want)
	}
}

func TestCheck(t *testing.T) {
	path := writeManifest(t, testManifest)
	out, err := run(t, "check", "-m", path)
	require.NoError(t, err)
	assert.Contains(t, out, "2 modules OK")

	bad := writeManifest(t, "modules:\n  - key: core\n    installed_version: \"1.5\"\n")
	_, err = run(t, "check", "-m", bad)
	assert.Error(t, err)

	_, err = run(t, "check", "-m", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	path := writeManifest(t, testManifest)

	out, err := run(t, "resolve", "-m", path)
	require.NoError(t, err)
	assert.Contains(t, out, "1.6.0")
	assert.Contains(t, out, "error")

	out, err = run(t, "resolve", "-m", path, "--json")
	require.NoError(t, err)
	var result struct {
		Conflicts []struct {
			From                string `json:"from"`
			To                  string `json:"to"`
			SuggestedResolution string `json:"suggested_resolution"`
		} `json:"conflicts"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, "billing", result.Conflicts[0].From)
	assert.Equal(t, "core", result.Conflicts[0].To)
	assert.Equal(t, "1.6.0", result.Conflicts[0].SuggestedResolution)

	_, err = run(t, "resolve", "-m", path, "--strict")
	assert.ErrorIs(t, err, ErrConflictsFound)
}

func TestResolve_Clean(t *testing.T) {
	path := writeManifest(t, `
modules:
  - key: core
    installed_version: 1.6.0
  - key: billing
    installed_version: 2.0.0
    dependencies:
      - key: core
        range: ^1.6.0
`)
	out, err := run(t, "resolve", "-m", path, "--strict")
	require.NoError(t, err)
	assert.Contains(t, out, "No conflicts.")
}

func TestDepsAndOrder(t *testing.T) {
	path := writeManifest(t, testManifest)

	out, err := run(t, "deps", "billing", "-m", path)
	require.NoError(t, err)
	assert.Contains(t, out, "billing 2.0.0 (level 1)")
	assert.Contains(t, out, "outdated")

	out, err = run(t, "deps", "core", "-m", path)
	require.NoError(t, err)
	assert.Contains(t, out, "dependents: billing")

	_, err = run(t, "deps", "ghost", "-m", path)
	assert.Error(t, err)

	out, err = run(t, "order", "-m", path, "--json")
	require.NoError(t, err)
	var order []string
	require.NoError(t, json.Unmarshal([]byte(out), &order))
	assert.Equal(t, []string{"core", "billing"}, order)

	out, err = run(t, "graph", "-m", path)
	require.NoError(t, err)
	assert.Contains(t, out, "billing -> core ^1.6.0 [outdated]")
}

func TestNext(t *testing.T) {
	out, err := run(t, "next", "1.2.3", "--bump", "minor")
	require.NoError(t, err)
	assert.Equal(t, "1.3.0\n", out)

	out, err = run(t, "next", "1.2.3")
	require.NoError(t, err)
	assert.Equal(t, "1.2.4\n", out)

	_, err = run(t, "next", "1.2")
	assert.Error(t, err)

	_, err = run(t, "next", "1.2.3", "--bump", "huge")
	assert.Error(t, err)
}

func TestCompare(t *testing.T) {
	path := writeManifest(t, testManifest)

	out, err := run(t, "compare", "core", "1.4.0", "1.5.0", "-m", path)
	require.NoError(t, err)
	assert.Contains(t, out, "suggested bump minor")
	assert.Contains(t, out, "added: cache")

	out, err = run(t, "compare", "core", "1.5.0", "1.4.0", "-m", path)
	require.NoError(t, err)
	assert.Contains(t, out, "suggested bump major")

	_, err = run(t, "compare", "core", "1.4.0", "9.9.9", "-m", path)
	assert.Error(t, err)
}

func TestValidateRollback(t *testing.T) {
	path := writeManifest(t, testManifest)

	out, err := run(t, "validate-rollback", "core", "1.4.0", "-m", path, "--json")
	require.NoError(t, err)
	var verdict struct {
		ModuleKey            string   `json:"module_key"`
		TargetVersion        string   `json:"target_version"`
		AffectedDependencies []string `json:"affected_dependencies"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &verdict))
	assert.Equal(t, "core", verdict.ModuleKey)
	assert.Equal(t, "1.4.0", verdict.TargetVersion)
	assert.Equal(t, []string{"billing"}, verdict.AffectedDependencies)

	out, err = run(t, "validate-rollback", "core", "1.6.0", "-m", path)
	require.NoError(t, err)
	assert.Contains(t, out, "invalid")
	assert.Contains(t, out, "not lower than installed")
}

func TestImpact(t *testing.T) {
	path := writeManifest(t, testManifest)

	out, err := run(t, "impact", "core", "1.6.0", "-m", path)
	require.NoError(t, err)
	assert.Contains(t, out, "core -> 1.6.0")
	assert.Contains(t, out, "billing")

	out, err = run(t, "impact", "billing", "2.1.0", "-m", path)
	require.NoError(t, err)
	assert.Contains(t, out, "No dependents affected.")
}
