package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSuite(t *testing.T) {
	result, err := RunSuite(context.Background(), "testdata/scenarios", SuiteOptions{GoldenDir: "testdata/golden"})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 3, result.Passed)
	assert.Zero(t, result.Failed)
	assert.Empty(t, result.Failures())

	golden := map[string]string{}
	for _, s := range result.Scenarios {
		golden[s.Name] = s.Golden
	}
	assert.Equal(t, map[string]string{
		"elect_chair":     GoldenMissing,
		"nominate_member": GoldenMatch,
		"vote_norm":       GoldenMatch,
	}, golden)
}

func TestRunSuite_Filter(t *testing.T) {
	result, err := RunSuite(context.Background(), "testdata/scenarios", SuiteOptions{Filter: "vote_*"})
	require.NoError(t, err)
	require.Equal(t, 1, result.Total)
	assert.Equal(t, "vote_norm", result.Scenarios[0].Name)
	assert.Empty(t, result.Scenarios[0].Golden)

	_, err = RunSuite(context.Background(), "testdata/scenarios", SuiteOptions{Filter: "["})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter pattern")
}

func TestRunSuite_UpdateAndMismatch(t *testing.T) {
	goldenDir := filepath.Join(t.TempDir(), "golden")
	opts := SuiteOptions{Filter: "nominate_member", GoldenDir: goldenDir, Update: true}

	result, err := RunSuite(context.Background(), "testdata/scenarios", opts)
	require.NoError(t, err)
	require.Len(t, result.Scenarios, 1)
	assert.Equal(t, GoldenUpdated, result.Scenarios[0].Golden)

	written, err := os.ReadFile(filepath.Join(goldenDir, "nominate_member.golden"))
	require.NoError(t, err)
	want, err := os.ReadFile("testdata/golden/nominate_member.golden")
	require.NoError(t, err)
	assert.Equal(t, string(want), string(written))

	require.NoError(t, os.WriteFile(filepath.Join(goldenDir, "nominate_member.golden"), []byte("# stale\n"), 0o644))
	opts.Update = false
	result, err = RunSuite(context.Background(), "testdata/scenarios", opts)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, GoldenMismatch, result.Scenarios[0].Golden)
	assert.Contains(t, result.Scenarios[0].Errors[0], "trace differs")
}

func TestRunSuite_Failures(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	write("a_broken.yaml", "name: [unterminated\n")
	write("b_failing.yml", `
name: failing
description: an expectation that does not hold
flow:
  - invoke: Kelsen.createOrgan
    as: alice
    expect:
      case: UNAUTHORIZED
assertions:
  - type: replay
`)
	write("c_fault.yaml", `
name: fault
description: an unknown action
flow:
  - invoke: Kelsen.dissolve
    as: alice
assertions:
  - type: replay
`)
	write("notes.txt", "ignored")

	result, err := RunSuite(context.Background(), dir, SuiteOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Zero(t, result.Passed)
	assert.Equal(t, 3, result.Failed)

	failures := result.Failures()
	require.Len(t, failures, 3)
	assert.Contains(t, failures[0].Errors[0], "failed to load scenario")
	assert.Empty(t, failures[0].Name)
	assert.Equal(t, "failing", failures[1].Name)
	assert.Contains(t, failures[1].Errors[0], `expected case "UNAUTHORIZED", got "Success"`)
	assert.Contains(t, failures[2].Errors[0], "scenario execution failed")
}

func TestRunSuite_MissingDir(t *testing.T) {
	_, err := RunSuite(context.Background(), filepath.Join(t.TempDir(), "nope"), SuiteOptions{})
	assert.Error(t, err)
}
