package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGolden_Scenarios(t *testing.T) {
	for _, path := range []string{
		"testdata/scenarios/nominate_member.yaml",
		"testdata/scenarios/vote_norm.yaml",
	} {
		scenario, err := LoadScenario(path)
		require.NoError(t, err)
		t.Run(scenario.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestFormatTrace(t *testing.T) {
	trace := []TraceEvent{
		{Type: EventInvocation, Seq: 1, Action: "Kelsen.createOrgan", Caller: "$owner", Target: "$registry", Args: map[string]any{"name": "Council"}},
		{Type: EventInvocation, Seq: 2, Nested: true, Action: "Organ.addEntry", Caller: "$p", Target: "$council", Args: map[string]any{"metadata": "", "address": "$a"}},
		{Type: EventCompletion, Seq: 3, Nested: true, OutputCase: "Success", Result: map[string]any{"index": int64(0)}},
		{Type: EventCompletion, Seq: 4, OutputCase: "NOT_FOUND"},
		{Type: EventInvocation, Seq: 5, Action: "Kelsen.createOrgan", Caller: "$owner", Target: "$registry"},
		{Type: EventCompletion, Seq: 6, OutputCase: "Success"},
	}

	out, err := FormatTrace("example", "f-1", trace)
	require.NoError(t, err)
	assert.Equal(t, `# example
flow f-1
1 > Kelsen.createOrgan $owner -> $registry {"name":"Council"}
2   > Organ.addEntry $p -> $council {"address":"$a","metadata":""}
3   < Success {"index":0}
4 < NOT_FOUND
5 > Kelsen.createOrgan $owner -> $registry {}
6 < Success {}
`, string(out))
}

func TestFormatTrace_NoFlow(t *testing.T) {
	out, err := FormatTrace("empty", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "# empty\n", string(out))
}

func TestFormatTrace_RejectsFloats(t *testing.T) {
	_, err := FormatTrace("bad", "", []TraceEvent{
		{Type: EventInvocation, Seq: 9, Action: "Vote.vote", Args: map[string]any{"weight": 0.5}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seq 9 args")
}
