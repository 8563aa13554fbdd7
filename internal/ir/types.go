package ir

// Output cases recorded on completions. Failed calls use the error code.
const (
	CaseSuccess = "Success"
)

// Invocation is one call against a component, either issued by an external
// caller (ParentID empty) or by a procedure calling into an organ.
type Invocation struct {
	ID        string    `json:"id"`
	ParentID  string    `json:"parent_id,omitempty"`
	FlowToken string    `json:"flow_token"`
	Caller    Principal `json:"caller"`
	Target    Principal `json:"target"`
	Action    string    `json:"action"`
	Args      Object    `json:"args"`
	Seq       int64     `json:"seq"`
	At        int64     `json:"at"` // externally supplied unix seconds
}

// IsTopLevel reports whether the invocation came from outside the engine.
func (inv Invocation) IsTopLevel() bool {
	return inv.ParentID == ""
}

// Completion records the outcome of an Invocation.
type Completion struct {
	ID           string `json:"id"`
	InvocationID string `json:"invocation_id"`
	OutputCase   string `json:"output_case"`
	Result       Object `json:"result"`
	Seq          int64  `json:"seq"`
}

// Succeeded reports whether the completion is a success.
func (c Completion) Succeeded() bool {
	return c.OutputCase == CaseSuccess
}

// Record pairs an invocation with its completion for journal reads.
type Record struct {
	Invocation Invocation `json:"invocation"`
	Completion Completion `json:"completion"`
}
