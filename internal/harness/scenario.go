package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario is a governance story run against a fresh engine: an optional
// charter deployment, setup calls that must succeed, flow calls whose
// outcomes are checked and traced, then assertions on trace and world.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Charter is a CUE charter deployed by Owner before setup. Relative
	// paths are resolved against the scenario file.
	Charter string `yaml:"charter,omitempty"`

	// Owner is the alias of the world owner; defaults to "owner".
	Owner string `yaml:"owner,omitempty"`

	// Start is the unix time of the first call; defaults to testutil.Epoch.
	Start int64 `yaml:"start,omitempty"`

	// FlowToken is shared by every call; defaults to "test-flow-default".
	FlowToken string `yaml:"flow_token,omitempty"`

	// MaxSteps overrides the engine's nested call limit.
	MaxSteps *int `yaml:"max_steps,omitempty"`

	Setup      []Step      `yaml:"setup,omitempty"`
	Flow       []Step      `yaml:"flow"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one engine call. Principals anywhere in Target and Args are
// written as "$alias"; As and Target may omit the dollar sign.
type Step struct {
	Invoke string         `yaml:"invoke"`
	As     string         `yaml:"as"`
	Target string         `yaml:"target,omitempty"`
	Args   map[string]any `yaml:"args,omitempty"`

	// Advance moves the clock forward before the call; At sets it.
	Advance int64 `yaml:"advance,omitempty"`
	At      int64 `yaml:"at,omitempty"`

	// Bind names the address found under "organ", "procedure" or
	// "factory" in a successful result.
	Bind string `yaml:"bind,omitempty"`

	// Expect checks the completion. Nil means any outcome is accepted.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies expected completion behavior.
type ExpectClause struct {
	// Case is the expected output case, "Success" or an error code.
	Case string `yaml:"case"`

	// Result is matched as a subset of the completion result.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion validates the trace or the final world.
type Assertion struct {
	Type string `yaml:"type"`

	// Action and Args are used by trace_contains and trace_count.
	Action string         `yaml:"action,omitempty"`
	Args   map[string]any `yaml:"args,omitempty"`

	// Count is used by trace_count.
	Count int `yaml:"count,omitempty"`

	// Actions is used by trace_order.
	Actions []string `yaml:"actions,omitempty"`

	// Organ is used by organ_entries and organ_procedures.
	Organ string `yaml:"organ,omitempty"`

	// Entries lists the organ's live entries in index order.
	Entries []string `yaml:"entries,omitempty"`

	// Procedures maps each live procedure slot to its permissions.
	Procedures map[string]string `yaml:"procedures,omitempty"`

	// Factories lists registered factory names in registration order.
	Factories []string `yaml:"factories,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains   = "trace_contains"
	AssertTraceOrder      = "trace_order"
	AssertTraceCount      = "trace_count"
	AssertOrganEntries    = "organ_entries"
	AssertOrganProcedures = "organ_procedures"
	AssertFactories       = "factories"
	AssertReplay          = "replay"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected, and a relative charter path is resolved against the file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Charter != "" && !filepath.IsAbs(scenario.Charter) {
		scenario.Charter = filepath.Join(filepath.Dir(path), scenario.Charter)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// FindScenarios returns the .yaml and .yml files in dir, sorted.
func FindScenarios(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(paths)
	return paths, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.Charter != "" {
		if _, err := os.Stat(s.Charter); os.IsNotExist(err) {
			return fmt.Errorf("charter file not found: %s", s.Charter)
		}
	}
	if s.MaxSteps != nil && *s.MaxSteps < 0 {
		return fmt.Errorf("max_steps must be non-negative")
	}

	for i, step := range s.Setup {
		if err := validateStep(fmt.Sprintf("setup[%d]", i), step); err != nil {
			return err
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(fmt.Sprintf("flow[%d]", i), step); err != nil {
			return err
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(where string, step Step) error {
	if step.Invoke == "" {
		return fmt.Errorf("%s: invoke is required", where)
	}
	if step.As == "" {
		return fmt.Errorf("%s: as is required", where)
	}
	if step.Advance < 0 {
		return fmt.Errorf("%s: advance must be non-negative", where)
	}
	if step.Advance != 0 && step.At != 0 {
		return fmt.Errorf("%s: advance and at are mutually exclusive", where)
	}
	if step.Expect != nil && step.Expect.Case == "" {
		return fmt.Errorf("%s.expect: case is required", where)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertOrganEntries, AssertOrganProcedures:
		if a.Organ == "" {
			return fmt.Errorf("assertions[%d]: organ is required for %s", index, a.Type)
		}
	case AssertFactories, AssertReplay:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
