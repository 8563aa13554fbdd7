package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/nominate_member.yaml")
	require.NoError(t, err)

	assert.Equal(t, "nominate_member", scenario.Name)
	assert.Equal(t, filepath.Join("testdata", "charters", "demo.cue"), scenario.Charter)
	require.Len(t, scenario.Flow, 2)
	assert.Equal(t, "SimpleNomination.nominate", scenario.Flow[0].Invoke)
	assert.Equal(t, "alice", scenario.Flow[0].As)
	assert.Equal(t, "$carol", scenario.Flow[0].Args["candidate"])
	require.NotNil(t, scenario.Flow[0].Expect)
	assert.Equal(t, 2, scenario.Flow[0].Expect.Result["index"])
	assert.Equal(t, "UNAUTHORIZED", scenario.Flow[1].Expect.Case)
	assert.Len(t, scenario.Assertions, 6)
	assert.Equal(t, "ALL", scenario.Assertions[3].Procedures["nominateAdmins"])
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, t.TempDir(), `
name: s
description: d
specs: [foo.cue]
flow:
  - invoke: Kelsen.createOrgan
    as: alice
assertions:
  - type: replay
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing name",
			content: `
description: d
flow: [{invoke: Kelsen.createOrgan, as: alice}]
assertions: [{type: replay}]
`,
			wantErr: "name is required",
		},
		{
			name: "missing description",
			content: `
name: s
flow: [{invoke: Kelsen.createOrgan, as: alice}]
assertions: [{type: replay}]
`,
			wantErr: "description is required",
		},
		{
			name: "empty flow",
			content: `
name: s
description: d
flow: []
assertions: [{type: replay}]
`,
			wantErr: "flow list is required",
		},
		{
			name: "no assertions",
			content: `
name: s
description: d
flow: [{invoke: Kelsen.createOrgan, as: alice}]
`,
			wantErr: "assertions list is required",
		},
		{
			name: "missing caller",
			content: `
name: s
description: d
flow: [{invoke: Kelsen.createOrgan}]
assertions: [{type: replay}]
`,
			wantErr: "flow[0]: as is required",
		},
		{
			name: "missing invoke in setup",
			content: `
name: s
description: d
setup: [{as: alice}]
flow: [{invoke: Kelsen.createOrgan, as: alice}]
assertions: [{type: replay}]
`,
			wantErr: "setup[0]: invoke is required",
		},
		{
			name: "advance and at",
			content: `
name: s
description: d
flow: [{invoke: Kelsen.createOrgan, as: alice, advance: 5, at: 1700000100}]
assertions: [{type: replay}]
`,
			wantErr: "mutually exclusive",
		},
		{
			name: "expect without case",
			content: `
name: s
description: d
flow:
  - invoke: Kelsen.createOrgan
    as: alice
    expect:
      result: {organ: x}
assertions: [{type: replay}]
`,
			wantErr: "expect: case is required",
		},
		{
			name: "missing charter",
			content: `
name: s
description: d
charter: nowhere.cue
flow: [{invoke: Kelsen.createOrgan, as: alice}]
assertions: [{type: replay}]
`,
			wantErr: "charter file not found",
		},
		{
			name: "unknown assertion",
			content: `
name: s
description: d
flow: [{invoke: Kelsen.createOrgan, as: alice}]
assertions: [{type: final_state}]
`,
			wantErr: `unknown assertion type "final_state"`,
		},
		{
			name: "organ assertion without organ",
			content: `
name: s
description: d
flow: [{invoke: Kelsen.createOrgan, as: alice}]
assertions: [{type: organ_entries, entries: [alice]}]
`,
			wantErr: "organ is required for organ_entries",
		},
		{
			name: "trace_order without actions",
			content: `
name: s
description: d
flow: [{invoke: Kelsen.createOrgan, as: alice}]
assertions: [{type: trace_order}]
`,
			wantErr: "actions list is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScenario(t, t.TempDir(), tt.content)
			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFindScenarios(t *testing.T) {
	paths, err := FindScenarios("testdata/scenarios")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("testdata", "scenarios", "elect_chair.yaml"),
		filepath.Join("testdata", "scenarios", "nominate_member.yaml"),
		filepath.Join("testdata", "scenarios", "vote_norm.yaml"),
	}, paths)

	_, err = FindScenarios("testdata/nope")
	assert.Error(t, err)
}
