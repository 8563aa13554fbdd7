package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/kelsen/internal/ir"
)

// FormatTrace renders a trace as text, one line per event:
//
//	# <name>
//	flow <token>
//	35 > SimpleNomination.nominate $alice -> $nominateAdmins {"candidate":"$carol"}
//	36   > Organ.addEntry $nominateAdmins -> $admins {"address":"$carol","metadata":""}
//	37   < Success {"index":2}
//	38 < Success {"index":2}
//	39 > SimpleNomination.nominate $dave -> $nominateAdmins {"candidate":"$erin"}
//	40 < UNAUTHORIZED
//
// Nested records are indented. Args and results are canonical JSON, so
// the rendering is byte-stable across runs. Failed completions show only
// their case.
func FormatTrace(name, flow string, trace []TraceEvent) ([]byte, error) {
	var buf strings.Builder
	fmt.Fprintf(&buf, "# %s\n", name)
	if flow != "" {
		fmt.Fprintf(&buf, "flow %s\n", flow)
	}
	for _, ev := range trace {
		indent := ""
		if ev.Nested {
			indent = "  "
		}
		switch ev.Type {
		case EventInvocation:
			args, err := canonical(ev.Args)
			if err != nil {
				return nil, fmt.Errorf("seq %d args: %w", ev.Seq, err)
			}
			fmt.Fprintf(&buf, "%d %s> %s %s -> %s %s\n", ev.Seq, indent, ev.Action, ev.Caller, ev.Target, args)
		case EventCompletion:
			if ev.OutputCase != ir.CaseSuccess {
				fmt.Fprintf(&buf, "%d %s< %s\n", ev.Seq, indent, ev.OutputCase)
				continue
			}
			res, err := canonical(ev.Result)
			if err != nil {
				return nil, fmt.Errorf("seq %d result: %w", ev.Seq, err)
			}
			fmt.Fprintf(&buf, "%d %s< %s %s\n", ev.Seq, indent, ev.OutputCase, res)
		}
	}
	return []byte(buf.String()), nil
}

func canonical(m map[string]any) (string, error) {
	if m == nil {
		m = map[string]any{}
	}
	b, err := ir.MarshalCanonical(m)
	return string(b), err
}

// RunWithGolden executes a scenario and compares the trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()
	data, err := FormatTrace(scenarioName, result.Flow, result.Trace)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
