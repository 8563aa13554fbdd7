package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/kelsen/internal/engine"
	"github.com/roach88/kelsen/internal/ir"
	"github.com/roach88/kelsen/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	FlowToken string // optional - report one flow only
}

// ReplayFlowResult holds the replay result for a single flow.
type ReplayFlowResult struct {
	FlowToken     string            `json:"flow_token"`
	Records       int               `json:"records"`
	NestedCalls   int               `json:"nested_calls"`
	LastSeq       int64             `json:"last_seq"`
	Deterministic bool              `json:"deterministic"`
	Mismatches    []engine.Mismatch `json:"mismatches,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Owner            ir.Principal       `json:"owner"`
	Applied          int                `json:"applied"`
	Records          int                `json:"records"`
	LastSeq          int64              `json:"last_seq"`
	Flows            []ReplayFlowResult `json:"flows"`
	TotalFlows       int                `json:"total_flows"`
	AllDeterministic bool               `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay the journal and verify determinism",
		Long: `Rebuild the world from the journal by re-applying every top-level call
in seq order, and compare each regenerated record, nested calls included,
with the journaled one.

The journal's recorded owner is used unless --owner names another.

Exit codes:
  0 - Every record was reproduced
  1 - Replay diverged from the journal
  2 - Command error (journal not found, etc.)

Examples:
  kelsen replay --db ./kelsen.db
  kelsen replay --db ./kelsen.db --flow 0192... --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.FlowToken, "flow", "", "report a specific flow only")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx, cancel := commandContext(cmd)
	defer cancel()

	st, err := store.Open(opts.DB)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, "failed to open journal: "+err.Error(), nil)
	}
	defer closeStore(opts.RootOptions, st)

	owner := opts.owner
	if ir.IsZero(owner) {
		if owner, err = st.Owner(ctx); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeJournal, err.Error(), nil)
		}
	}
	records, err := st.ReadAll(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, err.Error(), nil)
	}

	result := ReplayResult{Owner: owner, Records: len(records), Flows: []ReplayFlowResult{}, AllDeterministic: true}
	if len(records) == 0 {
		if formatter.JSON() {
			return formatter.Success(result)
		}
		fmt.Fprintln(formatter.Writer, "No flows found in journal.")
		return nil
	}

	_, report, err := engine.Replay(ctx, owner, records,
		engine.WithLogger(opts.logger()),
		engine.WithMaxSteps(opts.maxSteps()),
	)
	if err != nil {
		return formatter.Fail(ExitCommandError, errorCode(err), err.Error(), nil)
	}
	result.Applied = report.Applied
	result.LastSeq = report.LastSeq
	result.AllDeterministic = report.OK()

	// Mismatches carry invocation seqs; map them back to flows.
	flowOf := make(map[int64]string, len(records))
	for _, rec := range records {
		flowOf[rec.Invocation.Seq] = rec.Invocation.FlowToken
	}
	byFlow := make(map[string][]engine.Mismatch)
	for _, m := range report.Mismatches {
		byFlow[flowOf[m.Seq]] = append(byFlow[flowOf[m.Seq]], m)
	}

	tokens := []string{opts.FlowToken}
	if opts.FlowToken == "" {
		if tokens, err = st.ListFlowTokens(ctx); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeJournal, err.Error(), nil)
		}
	}
	for _, token := range tokens {
		state, err := st.GetFlowState(ctx, token)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeJournal, err.Error(), nil)
		}
		result.Flows = append(result.Flows, ReplayFlowResult{
			FlowToken:     token,
			Records:       len(state.Records),
			NestedCalls:   state.NestedCalls,
			LastSeq:       state.LastSeq,
			Deterministic: len(byFlow[token]) == 0,
			Mismatches:    byFlow[token],
		})
	}
	result.TotalFlows = len(result.Flows)

	if formatter.JSON() {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		outputReplayText(formatter.Writer, result, report, opts.Verbose)
	}
	if !report.OK() {
		return NewExitError(ExitFailure, fmt.Sprintf("%s: replay diverged at %d record(s)", ErrCodeReplay, len(report.Mismatches)))
	}
	return nil
}

func outputReplayText(w io.Writer, result ReplayResult, report engine.ReplayReport, verbose bool) {
	fmt.Fprintf(w, "Replayed %d top-level calls (%d records) as %s\n", result.Applied, result.Records, result.Owner.Hex())
	fmt.Fprintln(w)
	for _, f := range result.Flows {
		mark := "✓"
		if !f.Deterministic {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s  records=%d nested=%d last_seq=%d\n", mark, f.FlowToken, f.Records, f.NestedCalls, f.LastSeq)
		for _, m := range f.Mismatches {
			fmt.Fprintf(w, "    seq %d %s: %s\n", m.Seq, m.Action, m.Reason)
			if verbose {
				fmt.Fprintf(w, "      want: %s\n      got:  %s\n", m.Want, m.Got)
			}
		}
	}
	fmt.Fprintln(w)
	if report.OK() {
		fmt.Fprintln(w, "All flows deterministic.")
		return
	}
	fmt.Fprintf(w, "Replay diverged: %d mismatch(es).\n", len(report.Mismatches))
}
