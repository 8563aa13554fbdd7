package store

import (
	"context"
	"fmt"

	"github.com/roach88/kelsen/internal/ir"
)

// FlowState summarizes one flow for inspection.
type FlowState struct {
	FlowToken string      `json:"flow_token"`
	Records   []ir.Record `json:"records"`
	LastSeq   int64       `json:"last_seq"`

	// NestedCalls counts procedure-to-organ calls made inside the flow.
	NestedCalls int `json:"nested_calls"`

	// TerminalStatus is the output case of the flow's top-level call.
	TerminalStatus string `json:"terminal_status"`
}

// GetFlowState reads and summarizes one flow.
func (s *Store) GetFlowState(ctx context.Context, flowToken string) (FlowState, error) {
	recs, err := s.ReadFlow(ctx, flowToken)
	if err != nil {
		return FlowState{}, fmt.Errorf("get flow state: %w", err)
	}

	state := FlowState{FlowToken: flowToken, Records: recs}
	for _, rec := range recs {
		state.LastSeq = max(state.LastSeq, rec.Invocation.Seq, rec.Completion.Seq)
		if rec.Invocation.IsTopLevel() {
			state.TerminalStatus = rec.Completion.OutputCase
		} else {
			state.NestedCalls++
		}
	}
	return state, nil
}
