package harness

import "github.com/roach88/kelsen/internal/ir"

// Trace event types.
const (
	EventInvocation = "invocation"
	EventCompletion = "completion"
)

// TraceEvent is one journaled invocation or completion of a flow step,
// with principals rendered as $aliases.
type TraceEvent struct {
	Type   string `json:"type"`
	Seq    int64  `json:"seq"`
	Nested bool   `json:"nested,omitempty"`

	// Invocation fields.
	Action string         `json:"action,omitempty"`
	Caller string         `json:"caller,omitempty"`
	Target string         `json:"target,omitempty"`
	Args   map[string]any `json:"args,omitempty"`

	// Completion fields. Result is only kept for successes; failure
	// messages are not part of the trace contract.
	OutputCase string         `json:"output_case,omitempty"`
	Result     map[string]any `json:"result,omitempty"`

	args ir.Object
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Flow is the token every flow step ran under.
	Flow string `json:"flow"`

	// Trace holds the flow steps' records in seq order. Setup steps and
	// charter deployment are not traced.
	Trace []TraceEvent `json:"trace"`

	// Errors is empty when Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
