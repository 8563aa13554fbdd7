package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/kelsen/internal/ir"
	"github.com/roach88/kelsen/internal/queryir"
	"github.com/roach88/kelsen/internal/store"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Flow     string
	Caller   string
	Target   string
	Actions  []string
	Case     string
	TopLevel bool
	Since    int64
	Until    int64
	Limit    int
	Reverse  bool
	Count    bool
}

// LogResult is the JSON payload of the log command. Records is omitted
// with --count.
type LogResult struct {
	Count   int64       `json:"count"`
	Records []ir.Record `json:"records,omitempty"`
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Search the journal across flows",
		Long: `List journal records matching every given filter, in seq order.
Repeating --action matches any of the actions. Callers and targets accept
an address or a name.

Examples:
  kelsen log --action Vote.vote --action Vote.veto
  kelsen log --target admins --case UNAUTHORIZED
  kelsen log --top-level --reverse --limit 10
  kelsen log --caller alice --count`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Flow, "flow", "", "only records of this flow")
	cmd.Flags().StringVar(&opts.Caller, "caller", "", "only calls made by this principal")
	cmd.Flags().StringVar(&opts.Target, "target", "", "only calls made to this principal")
	cmd.Flags().StringArrayVar(&opts.Actions, "action", nil, "only these actions (repeatable)")
	cmd.Flags().StringVar(&opts.Case, "case", "", "only completions with this output case")
	cmd.Flags().BoolVar(&opts.TopLevel, "top-level", false, "skip nested calls")
	cmd.Flags().Int64Var(&opts.Since, "since", 0, "lowest invocation seq")
	cmd.Flags().Int64Var(&opts.Until, "until", 0, "highest invocation seq")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum records to show (0 for all)")
	cmd.Flags().BoolVar(&opts.Reverse, "reverse", false, "newest first")
	cmd.Flags().BoolVar(&opts.Count, "count", false, "print only the number of matches")

	return cmd
}

func runLog(opts *LogOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx, cancel := commandContext(cmd)
	defer cancel()

	filter, err := opts.filter()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeArgs, err.Error(), nil)
	}

	st, err := store.Open(opts.DB)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, "failed to open journal: "+err.Error(), nil)
	}
	defer closeStore(opts.RootOptions, st)

	var result LogResult
	if opts.Count {
		result.Count, err = st.Count(ctx, queryir.Count{Filter: filter})
	} else {
		result.Records, err = st.Query(ctx, queryir.Select{Filter: filter, Limit: opts.Limit, Descending: opts.Reverse})
		result.Count = int64(len(result.Records))
	}
	if err != nil {
		if code, ok := ir.CodeOf(err); ok {
			return formatter.Fail(ExitCommandError, string(code), err.Error(), nil)
		}
		return formatter.Fail(ExitCommandError, ErrCodeJournal, err.Error(), nil)
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	if opts.Count {
		fmt.Fprintf(formatter.Writer, "%d\n", result.Count)
		return nil
	}
	outputLogText(formatter.Writer, result.Records, opts.Verbose)
	return nil
}

// filter conjoins the set flags.
func (o *LogOptions) filter() (queryir.Predicate, error) {
	var preds []queryir.Predicate
	equals := func(f queryir.Field, s string) {
		if s != "" {
			preds = append(preds, queryir.Equals{Field: f, Value: ir.String(s)})
		}
	}
	equals(queryir.FieldFlow, o.Flow)
	equals(queryir.FieldCase, o.Case)
	for _, p := range []struct {
		field queryir.Field
		value string
	}{
		{queryir.FieldCaller, o.Caller},
		{queryir.FieldTarget, o.Target},
	} {
		if p.value == "" {
			continue
		}
		addr, err := parsePrincipal(p.value)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", p.field, err)
		}
		equals(p.field, addr.Hex())
	}
	switch len(o.Actions) {
	case 0:
	case 1:
		equals(queryir.FieldAction, o.Actions[0])
	default:
		or := queryir.Or{}
		for _, a := range o.Actions {
			or.Predicates = append(or.Predicates, queryir.Equals{Field: queryir.FieldAction, Value: ir.String(a)})
		}
		preds = append(preds, or)
	}
	if o.TopLevel {
		preds = append(preds, queryir.TopLevel())
	}
	if o.Since != 0 || o.Until != 0 {
		preds = append(preds, queryir.Range{Field: queryir.FieldSeq, From: o.Since, To: o.Until})
	}

	filter := queryir.All(preds...)
	if err := queryir.Validate(queryir.Select{Filter: filter, Limit: o.Limit}); err != nil {
		return nil, err
	}
	return filter, nil
}

func outputLogText(w io.Writer, records []ir.Record, verbose bool) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No matching records.")
		return
	}
	for _, rec := range records {
		inv, comp := rec.Invocation, rec.Completion
		nested := ""
		if !inv.IsTopLevel() {
			nested = " (nested)"
		}
		fmt.Fprintf(w, "[%d] %s %s -> %s => %s  flow=%s%s\n",
			inv.Seq, inv.Action, inv.Caller.Hex(), inv.Target.Hex(), comp.OutputCase, truncateID(inv.FlowToken), nested)
		if verbose {
			fmt.Fprintf(w, "    args:   %s\n", canonical(inv.Args))
			fmt.Fprintf(w, "    result: %s\n", canonical(comp.Result))
		}
	}
	fmt.Fprintf(w, "%d records\n", len(records))
}
