package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kelsen/internal/harness"
)

const (
	scenarioDir = "../harness/testdata/scenarios"
	goldenDir   = "../harness/testdata/golden"
)

func TestTest_AllPass(t *testing.T) {
	out, err := execute(t, "test", scenarioDir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ nominate_member")
	assert.Contains(t, out, "✓ vote_norm")
	assert.Contains(t, out, "3 passed, 0 failed, 3 total")
}

func TestTest_GoldenJSON(t *testing.T) {
	resp, err := executeJSON(t, "test", scenarioDir, "--golden", goldenDir)
	require.NoError(t, err)

	var result harness.SuiteResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.Equal(t, 3, result.Passed)

	golden := map[string]string{}
	for _, s := range result.Scenarios {
		golden[s.Name] = s.Golden
	}
	assert.Equal(t, harness.GoldenMatch, golden["nominate_member"])
	assert.Equal(t, harness.GoldenMatch, golden["vote_norm"])
	assert.Equal(t, harness.GoldenMissing, golden["elect_chair"])
}

func TestTest_Filter(t *testing.T) {
	out, err := execute(t, "test", scenarioDir, "--filter", "vote_*")
	require.NoError(t, err)
	assert.Contains(t, out, "vote_norm")
	assert.NotContains(t, out, "nominate_member")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTest_UpdateWritesGolden(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "test", scenarioDir, "--filter", "nominate_*", "--golden", dir, "--update")
	require.NoError(t, err)

	written, err := os.ReadFile(filepath.Join(dir, "nominate_member.golden"))
	require.NoError(t, err)
	want, err := os.ReadFile(filepath.Join(goldenDir, "nominate_member.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(want), string(written))
}

func TestTest_FailingScenario(t *testing.T) {
	dir := t.TempDir()
	scenario := `name: wrong_case
description: "Expects a refusal that never comes"
flow:
  - invoke: Kelsen.createOrgan
    as: alice
    args:
      name: Guild
    expect:
      case: UNAUTHORIZED
assertions:
  - type: trace_count
    action: Kelsen.createOrgan
    count: 1
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong_case.yaml"), []byte(scenario), 0o644))

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong_case")
	assert.Contains(t, out, "0 passed, 1 failed, 1 total")
}

func TestTest_CommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing dir", []string{"test", "testdata/nope"}, "scenarios directory not found"},
		{"update without golden", []string{"test", scenarioDir, "--update"}, "--update needs --golden"},
		{"bad filter", []string{"test", scenarioDir, "--filter", "["}, "invalid filter pattern"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, tt.want)
		})
	}
}
