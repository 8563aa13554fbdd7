package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/kelsen/internal/ir"
)

// WriteBatch appends the records of one top-level call (the call itself
// plus its nested calls) in a single transaction. Rows whose id already
// exists are skipped, so rewriting a batch is a no-op.
func (s *Store) WriteBatch(ctx context.Context, records []ir.Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write batch: begin tx: %w", err)
	}
	defer tx.Rollback()

	// Invocations first: completions reference them.
	for _, rec := range records {
		if err := writeInvocation(ctx, tx, rec.Invocation); err != nil {
			return fmt.Errorf("write batch: %w", err)
		}
	}
	for _, rec := range records {
		if err := writeCompletion(ctx, tx, rec.Completion); err != nil {
			return fmt.Errorf("write batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write batch: commit: %w", err)
	}
	return nil
}

func writeInvocation(ctx context.Context, tx *sql.Tx, inv ir.Invocation) error {
	argsJSON, err := marshalObject(inv.Args)
	if err != nil {
		return fmt.Errorf("invocation %s: marshal args: %w", inv.ID, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO invocations
		(id, parent_id, flow_token, caller, target, action, args, seq, at, engine_version, record_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		inv.ID,
		inv.ParentID,
		inv.FlowToken,
		inv.Caller.Hex(),
		inv.Target.Hex(),
		inv.Action,
		argsJSON,
		inv.Seq,
		inv.At,
		ir.EngineVersion,
		ir.RecordVersion,
	)
	if err != nil {
		return fmt.Errorf("invocation %s: %w", inv.ID, err)
	}
	return nil
}

func writeCompletion(ctx context.Context, tx *sql.Tx, comp ir.Completion) error {
	resultJSON, err := marshalObject(comp.Result)
	if err != nil {
		return fmt.Errorf("completion %s: marshal result: %w", comp.ID, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO completions
		(id, invocation_id, output_case, result, seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		comp.ID,
		comp.InvocationID,
		comp.OutputCase,
		resultJSON,
		comp.Seq,
	)
	if err != nil {
		return fmt.Errorf("completion %s: %w", comp.ID, err)
	}
	return nil
}
