package engine

import (
	"context"
	"fmt"

	"github.com/roach88/kelsen/internal/ir"
	"github.com/roach88/kelsen/internal/store"
)

// Replay and restore both rebuild a world by re-applying the journal's
// top-level calls, in seq order, to a fresh engine. Each call carries its
// recorded flow token, caller, target, action, args and time; the clock
// starts at zero, so an intact journal is reproduced record for record,
// nested calls included. Any difference is a divergence: the journal was
// altered or the engine's behavior changed.

// Mismatch is one record replay did not reproduce.
type Mismatch struct {
	Seq    int64  `json:"seq"`
	Action string `json:"action"`
	Want   string `json:"want"`
	Got    string `json:"got"`
	Reason string `json:"reason"`
}

// ReplayReport summarizes a replay.
type ReplayReport struct {
	Applied    int        `json:"applied"`
	Records    int        `json:"records"`
	LastSeq    int64      `json:"last_seq"`
	Mismatches []Mismatch `json:"mismatches"`
}

// OK reports whether the replay reproduced every record.
func (r ReplayReport) OK() bool {
	return len(r.Mismatches) == 0
}

// Replay rebuilds a world owned by owner from journal records (as read
// with store.ReadAll) and compares every regenerated record with the
// recorded one. The returned engine is in-memory.
func Replay(ctx context.Context, owner ir.Principal, records []ir.Record, opts ...Option) (*Engine, ReplayReport, error) {
	e := New(owner, opts...)
	report, err := e.replay(ctx, records)
	return e, report, err
}

func (e *Engine) replay(ctx context.Context, records []ir.Record) (ReplayReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	children := make(map[string][]ir.Record)
	for _, rec := range records {
		if !rec.Invocation.IsTopLevel() {
			children[rec.Invocation.ParentID] = append(children[rec.Invocation.ParentID], rec)
		}
	}

	report := ReplayReport{Records: len(records)}
	for _, rec := range records {
		inv := rec.Invocation
		if !inv.IsTopLevel() {
			continue
		}
		out, err := e.apply(ctx, Request{
			Flow:   inv.FlowToken,
			Caller: inv.Caller,
			Target: inv.Target,
			Action: inv.Action,
			Args:   inv.Args,
			At:     inv.At,
		}, false)
		if err != nil {
			return report, fmt.Errorf("replay seq %d (%s): %w", inv.Seq, inv.Action, err)
		}
		report.Applied++
		report.Mismatches = append(report.Mismatches, compareRecord(rec, out.Record)...)

		want := children[inv.ID]
		if len(want) != len(out.Nested) {
			report.Mismatches = append(report.Mismatches, Mismatch{
				Seq:    inv.Seq,
				Action: inv.Action,
				Want:   fmt.Sprintf("%d nested calls", len(want)),
				Got:    fmt.Sprintf("%d nested calls", len(out.Nested)),
				Reason: "nested call count",
			})
			continue
		}
		for i := range want {
			report.Mismatches = append(report.Mismatches, compareRecord(want[i], out.Nested[i])...)
		}
	}
	report.LastSeq = e.clock.Current()

	e.logger.Info("replay finished",
		"applied", report.Applied,
		"records", report.Records,
		"last_seq", report.LastSeq,
		"mismatches", len(report.Mismatches),
	)
	return report, nil
}

func compareRecord(want, got ir.Record) []Mismatch {
	var out []Mismatch
	if want.Invocation.ID != got.Invocation.ID {
		out = append(out, Mismatch{
			Seq:    want.Invocation.Seq,
			Action: want.Invocation.Action,
			Want:   want.Invocation.ID,
			Got:    got.Invocation.ID,
			Reason: "invocation id",
		})
	}
	if want.Completion.ID != got.Completion.ID {
		out = append(out, Mismatch{
			Seq:    want.Invocation.Seq,
			Action: want.Invocation.Action,
			Want:   want.Completion.OutputCase + " " + want.Completion.ID,
			Got:    got.Completion.OutputCase + " " + got.Completion.ID,
			Reason: "completion id",
		})
	}
	return out
}

// Open restores a durable engine from s. A fresh journal is claimed for
// owner; a used one must belong to owner, or to anyone when owner is
// zero. The nested call quota is fixed when the journal is claimed and a
// different WithMaxSteps is ignored on reopen. The journal is replayed and
// must reproduce exactly.
func Open(ctx context.Context, s *store.Store, owner ir.Principal, opts ...Option) (*Engine, error) {
	if ir.IsZero(owner) {
		recorded, err := s.Owner(ctx)
		if err != nil {
			return nil, err
		}
		if ir.IsZero(recorded) {
			return nil, ir.NewValidation("owner", "a new journal needs an owner")
		}
		owner = recorded
	}
	if _, err := s.InitOwner(ctx, owner); err != nil {
		return nil, err
	}

	e := New(owner, opts...)
	maxSteps, err := s.InitMaxSteps(ctx, e.maxSteps)
	if err != nil {
		return nil, err
	}
	if maxSteps != e.maxSteps {
		e.logger.Warn("using the journal's recorded quota", "recorded", maxSteps, "requested", e.maxSteps)
		e.maxSteps = maxSteps
	}

	records, err := s.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	report, err := e.replay(ctx, records)
	if err != nil {
		return nil, err
	}
	if !report.OK() {
		first := report.Mismatches[0]
		return nil, &RuntimeError{
			Code:    ErrCodeDiverged,
			Message: fmt.Sprintf("%d records differ; first at seq %d (%s): %s", len(report.Mismatches), first.Seq, first.Action, first.Reason),
		}
	}
	lastSeq, err := s.LastSeq(ctx)
	if err != nil {
		return nil, err
	}
	if lastSeq != e.clock.Current() {
		return nil, &RuntimeError{
			Code:    ErrCodeDiverged,
			Message: fmt.Sprintf("journal ends at seq %d, replay at %d", lastSeq, e.clock.Current()),
		}
	}

	e.store = s
	return e, nil
}
