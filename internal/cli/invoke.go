package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/kelsen/internal/engine"
	"github.com/roach88/kelsen/internal/ir"
)

// InvokeOptions holds flags for the invoke command.
type InvokeOptions struct {
	*RootOptions
	As     string
	Target string
	Args   string
	At     int64
	Flow   string
}

// InvokeResult is one applied call and the nested calls it made.
type InvokeResult struct {
	Flow       string      `json:"flow"`
	Action     string      `json:"action"`
	OutputCase string      `json:"output_case"`
	Result     ir.Object   `json:"result"`
	Records    []ir.Record `json:"records"`
}

// NewInvokeCommand creates the invoke command.
func NewInvokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invoke <action>",
		Short: "Apply one action against the journaled world",
		Long: `Apply one action as --as against --target and journal the outcome.

Principals are 0x-prefixed hex addresses or plain names, which derive the
same addresses charters use. An empty --target addresses the factory
registry.

Exit codes:
  0 - Call succeeded
  1 - Call was refused (the refusal is journaled)
  2 - Command error (unknown action, bad arguments, journal failure)

Examples:
  kelsen invoke SimpleNomination.nominate --as alice --target 0x... --args '{"candidate":"0x..."}'
  kelsen invoke Kelsen.createOrgan --as alice --args '{"name":"Council"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return invokeAction(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.As, "as", "", "calling principal (required)")
	_ = cmd.MarkFlagRequired("as")
	cmd.Flags().StringVar(&opts.Target, "target", "", "target component (default the registry)")
	cmd.Flags().StringVar(&opts.Args, "args", "{}", "action arguments as JSON")
	cmd.Flags().Int64Var(&opts.At, "at", 0, "unix time of the call (default now)")
	cmd.Flags().StringVar(&opts.Flow, "flow", "", "flow token (default a fresh one)")

	return cmd
}

func invokeAction(opts *InvokeOptions, action string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx, cancel := commandContext(cmd)
	defer cancel()

	if !engine.IsAction(action) {
		return formatter.Fail(ExitCommandError, ErrCodeUnknown,
			fmt.Sprintf("unknown action %q", action), map[string]any{"actions": engine.Actions()})
	}
	caller, err := parsePrincipal(opts.As)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeArgs, "invalid --as: "+err.Error(), nil)
	}
	var target ir.Principal
	if opts.Target != "" {
		if target, err = parsePrincipal(opts.Target); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeArgs, "invalid --target: "+err.Error(), nil)
		}
	}
	args, err := parseArgs(opts.Args)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeArgs, "invalid --args JSON: "+err.Error(), nil)
	}

	e, st, err := openEngine(ctx, opts.RootOptions)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, err.Error(), nil)
	}
	defer closeStore(opts.RootOptions, st)

	at := opts.At
	if at == 0 {
		at = time.Now().Unix()
	}
	out, err := e.Apply(ctx, engine.Request{
		Flow:   opts.Flow,
		Caller: caller,
		Target: target,
		Action: action,
		Args:   args,
		At:     at,
	})
	if err != nil {
		return formatter.Fail(ExitCommandError, errorCode(err), err.Error(), nil)
	}

	result := InvokeResult{
		Flow:       out.Record.Invocation.FlowToken,
		Action:     action,
		OutputCase: out.Record.Completion.OutputCase,
		Result:     out.Result(),
		Records:    out.Records(),
	}
	if out.Err != nil {
		return formatter.Fail(ExitFailure, errorCode(out.Err), out.Err.Error(), result)
	}
	if formatter.JSON() {
		return formatter.Success(result)
	}
	outputRecords(formatter.Writer, result.Flow, result.Records)
	return nil
}

// parseArgs decodes a JSON object. Numbers must be integers.
func parseArgs(s string) (ir.Object, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return ir.Object{}, nil
	}
	v, err := ir.FromGo(raw)
	if err != nil {
		return nil, err
	}
	return v.(ir.Object), nil
}

// outputRecords prints records the way they appear in the journal, one
// invocation and completion pair per call, nested calls indented.
func outputRecords(w io.Writer, flow string, records []ir.Record) {
	fmt.Fprintf(w, "Flow: %s\n", flow)
	for _, rec := range records {
		indent := ""
		if !rec.Invocation.IsTopLevel() {
			indent = "  "
		}
		inv, comp := rec.Invocation, rec.Completion
		fmt.Fprintf(w, "  %s[%d] %s %s -> %s %s\n", indent, inv.Seq, inv.Action,
			inv.Caller.Hex(), inv.Target.Hex(), canonical(inv.Args))
		fmt.Fprintf(w, "  %s[%d] %s %s\n", indent, comp.Seq, comp.OutputCase, canonical(comp.Result))
	}
}

func canonical(obj ir.Object) string {
	if obj == nil {
		return "{}"
	}
	b, err := ir.MarshalCanonical(obj)
	if err != nil {
		return fmt.Sprintf("%v", obj)
	}
	return string(b)
}
