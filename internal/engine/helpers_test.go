package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/kelsen/internal/ir"
	"github.com/roach88/kelsen/internal/testutil"
)

var (
	owner = testutil.Principal("owner")
	alice = testutil.Principal("alice")
	bob   = testutil.Principal("bob")
	carol = testutil.Principal("carol")
	dave  = testutil.Principal("dave")
)

const t0 = testutil.Epoch

// fixture drives an engine through Apply with a shared timeline.
type fixture struct {
	t    *testing.T
	e    *Engine
	time *testutil.Timeline
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	opts = append([]Option{WithFlowGenerator(testutil.NewSequentialFlowGenerator(""))}, opts...)
	return &fixture{t: t, e: New(owner, opts...), time: testutil.NewTimeline(t0)}
}

// do applies a call and fails the test on engine faults.
func (f *fixture) do(caller, target ir.Principal, action string, args ir.Object) Outcome {
	f.t.Helper()
	out, err := f.e.Apply(context.Background(), Request{
		Caller: caller,
		Target: target,
		Action: action,
		Args:   args,
		At:     f.time.Now(),
	})
	require.NoError(f.t, err)
	return out
}

// ok applies a call that must succeed and returns its result.
func (f *fixture) ok(caller, target ir.Principal, action string, args ir.Object) ir.Object {
	f.t.Helper()
	out := f.do(caller, target, action, args)
	require.NoError(f.t, out.Err, "%s", action)
	require.Equal(f.t, ir.CaseSuccess, out.Record.Completion.OutputCase)
	return out.Result()
}

func (f *fixture) registry() ir.Principal {
	return f.e.World().Registry().Address()
}

func resultPrincipal(t *testing.T, res ir.Object, key string) ir.Principal {
	t.Helper()
	s, ok := res.Str(key)
	require.True(t, ok, "result has no %q: %v", key, res)
	p, err := ir.ParsePrincipal(s)
	require.NoError(t, err)
	return p
}

func addr(p ir.Principal) ir.String { return ir.String(p.Hex()) }

// demo mirrors the reference deployment: an admins organ nominated by its
// own members, a norms organ changed by admin vote.
type demo struct {
	*fixture
	admins, norms  ir.Principal
	nominateAdmins ir.Principal
	voteNorms      ir.Principal
}

func newDemo(t *testing.T, opts ...Option) *demo {
	t.Helper()
	return setupDemo(newFixture(t, opts...))
}

func setupDemo(f *fixture) *demo {
	t := f.t
	t.Helper()
	reg := f.registry()

	f.ok(owner, reg, "Kelsen.registerProcedureFactory", ir.Object{"name": ir.String("nomination"), "kind": ir.String("simpleNomination")})
	f.ok(owner, reg, "Kelsen.registerProcedureFactory", ir.Object{"name": ir.String("vote"), "kind": ir.String("vote")})
	f.ok(owner, reg, "Kelsen.registerProcedureFactory", ir.Object{"name": ir.String("election"), "kind": ir.String("cyclicalElection")})

	d := &demo{fixture: f}
	d.admins = resultPrincipal(t, f.ok(owner, reg, "Kelsen.createOrgan", ir.Object{"name": ir.String("admins")}), "organ")
	d.norms = resultPrincipal(t, f.ok(owner, reg, "Kelsen.createOrgan", ir.Object{"name": ir.String("norms")}), "organ")

	d.nominateAdmins = resultPrincipal(t, f.ok(owner, reg, "Kelsen.createProcedure", ir.Object{
		"factory":    ir.String("nomination"),
		"nominators": addr(d.admins),
		"target":     addr(d.admins),
	}), "procedure")
	d.voteNorms = resultPrincipal(t, f.ok(owner, reg, "Kelsen.createProcedure", ir.Object{
		"factory":        ir.String("vote"),
		"voters":         addr(d.admins),
		"vetoers":        addr(d.admins),
		"enactors":       addr(d.admins),
		"target":         addr(d.norms),
		"quorum_percent": ir.Int(40),
		"vote_duration":  ir.Int(3600),
	}), "procedure")

	f.ok(owner, d.admins, "Organ.addEntry", ir.Object{"address": addr(alice)})
	f.ok(owner, d.admins, "Organ.addEntry", ir.Object{"address": addr(bob)})
	f.ok(owner, d.admins, "Organ.addProcedure", ir.Object{"address": addr(d.nominateAdmins), "permissions": ir.String("ALL")})
	f.ok(owner, d.norms, "Organ.addProcedure", ir.Object{"address": addr(d.voteNorms), "permissions": ir.String("CAN_ADD_ENTRY|CAN_SET_METADATA")})
	return d
}
