package cli

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/kelsen/internal/ir"
	"github.com/roach88/kelsen/internal/queryir"
	"github.com/roach88/kelsen/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	FlowToken string
	Action    string // optional - filter to specific action
}

// TraceEvent represents a single event in the trace timeline.
type TraceEvent struct {
	Seq        int64        `json:"seq"`
	Type       string       `json:"type"` // "invocation" or "completion"
	ID         string       `json:"id"`
	Nested     bool         `json:"nested,omitempty"`
	Action     string       `json:"action,omitempty"`
	Caller     ir.Principal `json:"caller,omitzero"`
	Target     ir.Principal `json:"target,omitzero"`
	Args       ir.Object    `json:"args,omitempty"`
	OutputCase string       `json:"output_case,omitempty"`
	Result     ir.Object    `json:"result,omitempty"`
}

// CallEdge links a procedure call to the organ call it caused.
type CallEdge struct {
	Parent string `json:"parent"`
	Child  string `json:"child"`
	Action string `json:"action"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	FlowToken string       `json:"flow_token"`
	Timeline  []TraceEvent `json:"timeline"`
	Calls     []CallEdge   `json:"calls"`
	Stats     TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents    int    `json:"total_events"`
	Invocations    int    `json:"invocations"`
	NestedCalls    int    `json:"nested_calls"`
	LastSeq        int64  `json:"last_seq"`
	TerminalStatus string `json:"terminal_status"`
}

// FlowSummary is one line of the flow listing.
type FlowSummary struct {
	FlowToken      string `json:"flow_token"`
	Records        int    `json:"records"`
	NestedCalls    int    `json:"nested_calls"`
	LastSeq        int64  `json:"last_seq"`
	TerminalStatus string `json:"terminal_status"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the journaled calls of a flow",
		Long: `Show the calls journaled under one flow: a timeline of invocations and
completions in seq order, and the procedure-to-organ calls each top-level
call caused. Without --flow, lists every flow in the journal.

Examples:
  kelsen trace
  kelsen trace --flow 0192...
  kelsen trace --flow 0192... --action Organ.addEntry --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.FlowToken, "flow", "", "flow token to trace (default: list flows)")
	cmd.Flags().StringVar(&opts.Action, "action", "", "filter to a specific action")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx, cancel := commandContext(cmd)
	defer cancel()

	// Tracing reads the journal as written; it does not need a replayed world.
	st, err := store.Open(opts.DB)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, "failed to open journal: "+err.Error(), nil)
	}
	defer closeStore(opts.RootOptions, st)

	if opts.FlowToken == "" {
		flows, err := listFlows(ctx, st)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeJournal, err.Error(), nil)
		}
		if formatter.JSON() {
			return formatter.Success(flows)
		}
		outputFlowsText(formatter.Writer, flows)
		return nil
	}

	state, err := st.GetFlowState(ctx, opts.FlowToken)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, err.Error(), nil)
	}

	result := buildTrace(state, opts.Action)
	if formatter.JSON() {
		return formatter.Success(result)
	}
	if len(state.Records) == 0 {
		fmt.Fprintf(formatter.Writer, "No events found for flow: %s\n", opts.FlowToken)
		return nil
	}
	outputTraceText(formatter.Writer, result, opts.Verbose)
	return nil
}

func listFlows(ctx context.Context, st *store.Store) ([]FlowSummary, error) {
	tokens, err := st.ListFlowTokens(ctx)
	if err != nil {
		return nil, err
	}
	flows := make([]FlowSummary, 0, len(tokens))
	for _, token := range tokens {
		state, err := st.GetFlowState(ctx, token)
		if err != nil {
			return nil, err
		}
		flows = append(flows, FlowSummary{
			FlowToken:      token,
			Records:        len(state.Records),
			NestedCalls:    state.NestedCalls,
			LastSeq:        state.LastSeq,
			TerminalStatus: state.TerminalStatus,
		})
	}
	return flows, nil
}

// buildTrace converts journal records to a seq-ordered timeline. When
// actionFilter is set, only invocations of that action and their
// completions are kept; stats always describe the whole flow.
func buildTrace(state store.FlowState, actionFilter string) TraceResult {
	result := TraceResult{
		FlowToken: state.FlowToken,
		Timeline:  []TraceEvent{},
		Calls:     []CallEdge{},
		Stats: TraceStats{
			Invocations:    len(state.Records),
			NestedCalls:    state.NestedCalls,
			LastSeq:        state.LastSeq,
			TerminalStatus: state.TerminalStatus,
		},
	}

	var keep queryir.Predicate
	if actionFilter != "" {
		keep = queryir.Equals{Field: queryir.FieldAction, Value: ir.String(actionFilter)}
	}
	for _, rec := range state.Records {
		inv, comp := rec.Invocation, rec.Completion
		if !inv.IsTopLevel() {
			result.Calls = append(result.Calls, CallEdge{Parent: inv.ParentID, Child: inv.ID, Action: inv.Action})
		}
		if !queryir.Match(keep, rec) {
			continue
		}
		result.Timeline = append(result.Timeline,
			TraceEvent{
				Seq:    inv.Seq,
				Type:   "invocation",
				ID:     inv.ID,
				Nested: !inv.IsTopLevel(),
				Action: inv.Action,
				Caller: inv.Caller,
				Target: inv.Target,
				Args:   inv.Args,
			},
			TraceEvent{
				Seq:        comp.Seq,
				Type:       "completion",
				ID:         comp.ID,
				Nested:     !inv.IsTopLevel(),
				Action:     inv.Action,
				OutputCase: comp.OutputCase,
				Result:     comp.Result,
			})
	}
	slices.SortFunc(result.Timeline, func(a, b TraceEvent) int {
		return cmp.Compare(a.Seq, b.Seq)
	})
	result.Stats.TotalEvents = len(result.Timeline)
	return result
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	fmt.Fprintf(w, "Trace for Flow: %s\n", result.FlowToken)
	fmt.Fprintf(w, "Status: %s\n", orDash(result.Stats.TerminalStatus))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, event := range result.Timeline {
		formatTimelineEvent(w, event, verbose)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Calls ===")
	if len(result.Calls) == 0 {
		fmt.Fprintln(w, "  (no nested calls)")
	}
	for _, edge := range result.Calls {
		fmt.Fprintf(w, "  %s -> %s %s\n", truncateID(edge.Parent), truncateID(edge.Child), edge.Action)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Invocations:  %d\n", result.Stats.Invocations)
	fmt.Fprintf(w, "  Nested Calls: %d\n", result.Stats.NestedCalls)
	fmt.Fprintf(w, "  Last Seq:     %d\n", result.Stats.LastSeq)
}

// formatTimelineEvent formats a single timeline event for text output.
func formatTimelineEvent(w io.Writer, event TraceEvent, verbose bool) {
	indent := ""
	if event.Nested {
		indent = "  "
	}
	switch event.Type {
	case "invocation":
		fmt.Fprintf(w, "  %s[%d] INV %s %s -> %s\n", indent, event.Seq, event.Action, event.Caller.Hex(), event.Target.Hex())
		if verbose {
			fmt.Fprintf(w, "  %s     Args: %s\n", indent, canonical(event.Args))
			fmt.Fprintf(w, "  %s     ID: %s\n", indent, truncateID(event.ID))
		}
	case "completion":
		fmt.Fprintf(w, "  %s[%d] COMP %s\n", indent, event.Seq, event.OutputCase)
		if verbose {
			fmt.Fprintf(w, "  %s     Result: %s\n", indent, canonical(event.Result))
			fmt.Fprintf(w, "  %s     ID: %s\n", indent, truncateID(event.ID))
		}
	}
}

func outputFlowsText(w io.Writer, flows []FlowSummary) {
	if len(flows) == 0 {
		fmt.Fprintln(w, "No flows found in journal.")
		return
	}
	for _, f := range flows {
		fmt.Fprintf(w, "  %-40s %-16s records=%d nested=%d last_seq=%d\n",
			f.FlowToken, f.TerminalStatus, f.Records, f.NestedCalls, f.LastSeq)
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
