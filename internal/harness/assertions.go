package harness

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/roach88/kelsen/internal/engine"
	"github.com/roach88/kelsen/internal/ir"
	"github.com/roach88/kelsen/internal/organ"
	"github.com/roach88/kelsen/internal/permission"
	"github.com/roach88/kelsen/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Trace for context; nil for world assertions
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			if event.Type == EventInvocation {
				fmt.Fprintf(&buf, "  [%d] %s %s -> %s %v\n", event.Seq, event.Action, event.Caller, event.Target, event.Args)
			}
		}
	}
	return buf.String()
}

// AssertionContext gives world assertions access to the engine and its
// journal.
type AssertionContext struct {
	Ctx    context.Context
	Engine *engine.Engine
	Store  *store.Store

	aliases *aliases
}

func (a *AssertionContext) names() *aliases {
	if a.aliases == nil {
		a.aliases = newAliases()
	}
	return a.aliases
}

// EvaluateAssertions evaluates all assertions against the result and
// returns one message per failure. Trace assertions need no context.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string
	for i, assertion := range assertions {
		var err error
		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion, actx)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertOrganEntries, AssertOrganProcedures, AssertFactories, AssertReplay:
			if actx == nil || actx.Engine == nil {
				err = fmt.Errorf("assertion[%d]: %s requires an engine", i, assertion.Type)
				break
			}
			err = assertWorld(actx, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}
		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}

// assertTraceContains checks for an invocation of the action whose args
// contain the expected ones.
func assertTraceContains(trace []TraceEvent, assertion Assertion, actx *AssertionContext) error {
	var want ir.Object
	if len(assertion.Args) > 0 {
		if actx == nil {
			actx = &AssertionContext{}
		}
		var err error
		if want, err = actx.names().resolveObject(assertion.Args); err != nil {
			return fmt.Errorf("trace_contains args: %w", err)
		}
	}
	for _, event := range trace {
		if event.Type == EventInvocation && event.Action == assertion.Action && matchArgs(event.args, want) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("action %s with args %v", assertion.Action, assertion.Args),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that actions first appear in the given order.
// Intervening actions are allowed.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if event.Type != EventInvocation {
			continue
		}
		if _, seen := positions[event.Action]; !seen {
			positions[event.Action] = i + 1
		}
	}

	for _, action := range assertion.Actions {
		if positions[action] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all actions present: %v", assertion.Actions),
				Actual:   fmt.Sprintf("missing action: %s", action),
				Trace:    trace,
			}
		}
	}
	for i := 1; i < len(assertion.Actions); i++ {
		prev, curr := assertion.Actions[i-1], assertion.Actions[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", assertion.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that the action was invoked exactly Count times,
// nested calls included.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == EventInvocation && event.Action == assertion.Action {
			count++
		}
	}
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Action),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertWorld evaluates assertions over the engine's final world.
func assertWorld(actx *AssertionContext, assertion Assertion) error {
	if assertion.Type == AssertReplay {
		return assertReplay(actx)
	}
	names := actx.names()
	return actx.Engine.View(func(w *engine.World) error {
		switch assertion.Type {
		case AssertFactories:
			var got []string
			for _, f := range w.Registry().Factories() {
				got = append(got, f.Name)
			}
			if !slices.Equal(got, assertion.Factories) {
				return &AssertionError{
					Type:     AssertFactories,
					Expected: fmt.Sprintf("%v", assertion.Factories),
					Actual:   fmt.Sprintf("%v", got),
				}
			}
			return nil
		}

		addr, err := names.principal(assertion.Organ)
		if err != nil {
			return err
		}
		o, err := w.Organ(addr)
		if err != nil {
			return &AssertionError{
				Type:     assertion.Type,
				Expected: fmt.Sprintf("organ %s", assertion.Organ),
				Actual:   err.Error(),
			}
		}
		if assertion.Type == AssertOrganEntries {
			return assertOrganEntries(names, o, assertion)
		}
		return assertOrganProcedures(names, o, assertion)
	})
}

func assertOrganEntries(names *aliases, o *organ.Organ, assertion Assertion) error {
	var want, got []string
	for _, ref := range assertion.Entries {
		p, err := names.principal(ref)
		if err != nil {
			return err
		}
		want = append(want, names.name(p))
	}
	for _, e := range o.LiveEntries() {
		got = append(got, names.name(e.Address))
	}
	if !slices.Equal(want, got) {
		return &AssertionError{
			Type:     AssertOrganEntries,
			Expected: fmt.Sprintf("%s entries %v", assertion.Organ, want),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

func assertOrganProcedures(names *aliases, o *organ.Organ, assertion Assertion) error {
	want := map[string]permission.Mask{}
	for ref, expr := range assertion.Procedures {
		p, err := names.principal(ref)
		if err != nil {
			return err
		}
		m, err := permission.Parse(expr)
		if err != nil {
			return fmt.Errorf("organ_procedures %s: %w", ref, err)
		}
		want[names.name(p)] = m
	}
	got := map[string]permission.Mask{}
	for i := 0; i < o.ProceduresLength(); i++ {
		slot, err := o.Procedure(i)
		if err != nil || slot.IsEmpty() {
			continue
		}
		got[names.name(slot.Address)] = slot.Permissions
	}
	if !reflect.DeepEqual(want, got) {
		return &AssertionError{
			Type:     AssertOrganProcedures,
			Expected: fmt.Sprintf("%s procedures %v", assertion.Organ, want),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

// assertReplay rebuilds a world from the journal and compares it with the
// live one.
func assertReplay(actx *AssertionContext) error {
	if actx.Store == nil {
		return fmt.Errorf("replay requires a journal")
	}
	ctx := actx.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	replayed, err := engine.Open(ctx, actx.Store, ir.ZeroPrincipal)
	if err != nil {
		return &AssertionError{Type: AssertReplay, Expected: "journal replays cleanly", Actual: err.Error()}
	}
	want, err := worldState(actx.Engine)
	if err != nil {
		return err
	}
	got, err := worldState(replayed)
	if err != nil {
		return err
	}
	if !reflect.DeepEqual(want, got) || actx.Engine.Seq() != replayed.Seq() {
		return &AssertionError{
			Type:     AssertReplay,
			Expected: fmt.Sprintf("%d organs at seq %d", len(want), actx.Engine.Seq()),
			Actual:   fmt.Sprintf("%d organs at seq %d, or differing state", len(got), replayed.Seq()),
		}
	}
	return nil
}

func worldState(e *engine.Engine) ([]organ.State, error) {
	var out []organ.State
	err := e.View(func(w *engine.World) error {
		for _, o := range w.Organs() {
			out = append(out, o.Snapshot())
		}
		return nil
	})
	return out, err
}

// matchArgs checks that actual contains every expected key with an equal
// value. Extra keys in actual are ignored.
func matchArgs(actual, expected ir.Object) bool {
	for key, want := range expected {
		got, ok := actual[key]
		if !ok || !irEqual(want, got) {
			return false
		}
	}
	return true
}
