package harness

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/kelsen/internal/charter"
	"github.com/roach88/kelsen/internal/engine"
	"github.com/roach88/kelsen/internal/ir"
	"github.com/roach88/kelsen/internal/store"
	"github.com/roach88/kelsen/internal/testutil"
)

// DefaultOwner is the owner alias used when a scenario names none.
const DefaultOwner = "owner"

// Harness runs one scenario against a real engine journaling into an
// in-memory store, with a controllable clock and a fixed flow token.
type Harness struct {
	engine  *engine.Engine
	store   *store.Store
	clock   *testutil.Timeline
	aliases *aliases
	owner   ir.Principal
	flow    string
	logger  *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Execution flow:
// 1. Create a fresh in-memory journal and engine
// 2. Deploy the charter, if any, as the owner
// 3. Execute setup steps, which must all succeed
// 4. Execute flow steps, tracing and checking each
// 5. Evaluate assertions
//
// The returned error is reserved for scenarios that could not be run;
// failed expectations and assertions are reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(ctx, st, scenario)
	if err != nil {
		return nil, err
	}
	if scenario.Charter != "" {
		if err := h.deploy(ctx, scenario.Charter); err != nil {
			return nil, fmt.Errorf("failed to deploy charter: %w", err)
		}
	}

	result := NewResult()
	result.Flow = h.flow
	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	actx := &AssertionContext{Ctx: ctx, Engine: h.engine, Store: st, aliases: h.aliases}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(ctx context.Context, st *store.Store, scenario *Scenario) (*Harness, error) {
	al := newAliases()
	ownerName := scenario.Owner
	if ownerName == "" {
		ownerName = DefaultOwner
	}
	owner, err := al.principal(ownerName)
	if err != nil {
		return nil, fmt.Errorf("owner: %w", err)
	}

	flowGen := testutil.NewFixedFlowGenerator(scenario.FlowToken)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := []engine.Option{engine.WithFlowGenerator(flowGen), engine.WithLogger(logger)}
	if scenario.MaxSteps != nil {
		opts = append(opts, engine.WithMaxSteps(*scenario.MaxSteps))
	}
	eng, err := engine.Open(ctx, st, owner, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}
	al.bind("registry", eng.RegistryAddress())

	return &Harness{
		engine:  eng,
		store:   st,
		clock:   testutil.NewTimeline(scenario.Start),
		aliases: al,
		owner:   owner,
		flow:    flowGen.Generate(),
		logger:  logger,
	}, nil
}

// deploy applies the charter at path and aliases everything it names.
func (h *Harness) deploy(ctx context.Context, path string) error {
	c, err := charter.Load(path)
	if err != nil {
		return err
	}
	d, err := charter.Apply(ctx, h.engine, c, h.owner, h.clock.Now())
	if err != nil {
		return err
	}
	for _, f := range c.Factories {
		h.aliases.bind(f.Name, d.Factories[f.Name])
	}
	for _, o := range c.Organs {
		h.aliases.bind(o.Key, d.Organs[o.Key])
	}
	for _, p := range c.Procedures {
		h.aliases.bind(p.Key, d.Procedures[p.Key])
	}
	h.logger.Info("charter deployed", "path", path, "calls", d.Calls)
	return nil
}

// executeSetup runs setup steps. Any refused call aborts the scenario.
func (h *Harness) executeSetup(ctx context.Context, setup []Step) error {
	for i, step := range setup {
		out, err := h.call(ctx, step)
		if err != nil {
			return fmt.Errorf("setup[%d] %s: %w", i, step.Invoke, err)
		}
		if out.Err != nil {
			return fmt.Errorf("setup[%d] %s: %w", i, step.Invoke, out.Err)
		}
		h.logger.Info("setup step completed", "step", i, "action", step.Invoke, "seq", out.Record.Invocation.Seq)
	}
	return nil
}

// executeFlow runs flow steps, tracing every record they produce and
// checking expect clauses.
func (h *Harness) executeFlow(ctx context.Context, flow []Step, result *Result) error {
	for i, step := range flow {
		out, err := h.call(ctx, step)
		if err != nil {
			return fmt.Errorf("flow[%d] %s: %w", i, step.Invoke, err)
		}
		result.Trace = append(result.Trace, h.traceEvents(out)...)

		if step.Expect != nil {
			for _, msg := range h.checkExpect(step, out) {
				result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Invoke, msg))
			}
		}

		h.logger.Info("flow step completed",
			"step", i,
			"action", step.Invoke,
			"seq", out.Record.Invocation.Seq,
			"output_case", out.Record.Completion.OutputCase,
		)
	}
	return nil
}

// call resolves a step and applies it.
func (h *Harness) call(ctx context.Context, step Step) (engine.Outcome, error) {
	caller, err := h.aliases.principal(step.As)
	if err != nil {
		return engine.Outcome{}, fmt.Errorf("as: %w", err)
	}
	target := ir.ZeroPrincipal
	if step.Target != "" {
		if target, err = h.aliases.principal(step.Target); err != nil {
			return engine.Outcome{}, fmt.Errorf("target: %w", err)
		}
	}
	args, err := h.aliases.resolveObject(step.Args)
	if err != nil {
		return engine.Outcome{}, fmt.Errorf("args: %w", err)
	}

	switch {
	case step.At != 0:
		h.clock.Set(step.At)
	case step.Advance > 0:
		h.clock.Advance(step.Advance)
	}

	out, err := h.engine.Apply(ctx, engine.Request{
		Flow:   h.flow,
		Caller: caller,
		Target: target,
		Action: step.Invoke,
		Args:   args,
		At:     h.clock.Now(),
	})
	if err != nil {
		return engine.Outcome{}, err
	}
	if step.Bind != "" && out.Err == nil {
		if err := h.bindResult(step.Bind, out.Result()); err != nil {
			return engine.Outcome{}, err
		}
	}
	return out, nil
}

func (h *Harness) bindResult(name string, result ir.Object) error {
	for _, key := range []string{"organ", "procedure", "factory"} {
		s, ok := result.Str(key)
		if !ok {
			continue
		}
		p, err := ir.ParsePrincipal(s)
		if err != nil {
			return fmt.Errorf("bind %s: %w", name, err)
		}
		h.aliases.bind(name, p)
		return nil
	}
	return fmt.Errorf("bind %s: result has no organ, procedure or factory address", name)
}

// traceEvents renders an outcome's records in seq order.
func (h *Harness) traceEvents(out engine.Outcome) []TraceEvent {
	var events []TraceEvent
	for _, rec := range out.Records() {
		inv, comp := rec.Invocation, rec.Completion
		nested := !inv.IsTopLevel()
		events = append(events, TraceEvent{
			Type:   EventInvocation,
			Seq:    inv.Seq,
			Nested: nested,
			Action: inv.Action,
			Caller: h.aliases.name(inv.Caller),
			Target: h.aliases.name(inv.Target),
			Args:   h.aliases.render(inv.Args),
			args:   inv.Args,
		})
		ce := TraceEvent{
			Type:       EventCompletion,
			Seq:        comp.Seq,
			Nested:     nested,
			OutputCase: comp.OutputCase,
		}
		if comp.Succeeded() {
			ce.Result = h.aliases.render(comp.Result)
		}
		events = append(events, ce)
	}
	slices.SortFunc(events, func(a, b TraceEvent) int { return cmp.Compare(a.Seq, b.Seq) })
	return events
}

// checkExpect compares the top-level completion with the step's expect
// clause.
func (h *Harness) checkExpect(step Step, out engine.Outcome) []string {
	var errs []string
	comp := out.Record.Completion
	if comp.OutputCase != step.Expect.Case {
		msg := fmt.Sprintf("expected case %q, got %q", step.Expect.Case, comp.OutputCase)
		if out.Err != nil {
			msg += fmt.Sprintf(" (%v)", out.Err)
		}
		errs = append(errs, msg)
	}
	if len(step.Expect.Result) == 0 {
		return errs
	}
	want, err := h.aliases.resolveObject(step.Expect.Result)
	if err != nil {
		return append(errs, fmt.Sprintf("expected result: %v", err))
	}
	for _, key := range want.SortedKeys() {
		got, ok := comp.Result[key]
		if !ok {
			errs = append(errs, fmt.Sprintf("result has no field %q", key))
			continue
		}
		if !irEqual(want[key], got) {
			errs = append(errs, fmt.Sprintf("result field %q = %v, expected %v",
				key, h.aliases.renderValue(got), h.aliases.renderValue(want[key])))
		}
	}
	return errs
}

// irEqual compares two values by their canonical encoding.
func irEqual(a, b ir.Value) bool {
	ab, err := ir.MarshalCanonical(a)
	if err != nil {
		return false
	}
	bb, err := ir.MarshalCanonical(b)
	if err != nil {
		return false
	}
	return string(ab) == string(bb)
}
