// Package harness runs governance scenarios against a real engine.
//
// A scenario deploys a charter, runs setup calls, then runs flow calls
// whose records form the trace. Expect clauses check individual calls;
// assertions check the trace and the final world.
//
// # Scenario Format
//
//	name: nominate_member
//	description: "An admin nominates a new admin"
//	charter: ../charters/demo.cue
//	start: 1700000000
//	flow:
//	  - invoke: SimpleNomination.nominate
//	    as: alice
//	    target: $nominateAdmins
//	    args: { candidate: $carol }
//	    expect:
//	      case: Success
//	assertions:
//	  - type: organ_entries
//	    organ: admins
//	    entries: [alice, bob, carol]
//
// Principals are written as names. A "$name" string anywhere in args is
// replaced with the named address. Charter factories, organs and
// procedures are bound under their charter keys, "registry" names the
// registry, and any other name is derived with ir.PrincipalFromName.
//
// # Assertion Types
//
//   - trace_contains: an invocation of action whose args contain args
//   - trace_order: actions first appear in the given order
//   - trace_count: action is invoked exactly count times
//   - organ_entries: the organ's live entries, in slot order
//   - organ_procedures: the organ's live slots as procedure to mask
//   - factories: registered factory names, in registration order
//   - replay: replaying the journal rebuilds the same world
//
// # Deterministic Testing
//
// Every call in a scenario shares one fixed flow token, the clock only
// moves when a step says so, and each run journals into its own
// in-memory SQLite store. Traces are therefore byte-identical across runs
// and can be compared against golden files with RunWithGolden.
package harness
