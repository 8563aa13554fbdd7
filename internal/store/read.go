package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/kelsen/internal/ir"
	"github.com/roach88/kelsen/internal/queryir"
	"github.com/roach88/kelsen/internal/querysql"
)

const (
	recordColumns = querysql.RecordColumns
	recordSource  = querysql.RecordSource
)

// ReadAll returns every record ordered by invocation seq.
func (s *Store) ReadAll(ctx context.Context) ([]ir.Record, error) {
	return s.queryRecords(ctx, `
		SELECT `+recordColumns+`
		`+recordSource+`
		ORDER BY i.seq ASC, i.id COLLATE BINARY ASC
	`)
}

// ReadFlow returns the records of one flow ordered by invocation seq.
// Returns an empty slice (not nil) for unknown flows.
func (s *Store) ReadFlow(ctx context.Context, flowToken string) ([]ir.Record, error) {
	return s.Query(ctx, queryir.Select{
		Filter: queryir.Equals{Field: queryir.FieldFlow, Value: ir.String(flowToken)},
	})
}

// ReadTopLevel returns only externally issued records, the input of a
// replay.
func (s *Store) ReadTopLevel(ctx context.Context) ([]ir.Record, error) {
	return s.Query(ctx, queryir.Select{Filter: queryir.TopLevel()})
}

// Query returns the records matching q. Invalid queries fail with a
// VALIDATION ir.Error before touching the database.
func (s *Store) Query(ctx context.Context, q queryir.Select) ([]ir.Record, error) {
	query, params, err := querysql.Compile(q)
	if err != nil {
		return nil, err
	}
	return s.queryRecords(ctx, query, params...)
}

// Count returns how many records match q.
func (s *Store) Count(ctx context.Context, q queryir.Count) (int64, error) {
	query, params, err := querysql.Compile(q)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, query, params...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// ReadInvocation retrieves one record by invocation id. Returns
// sql.ErrNoRows when missing.
func (s *Store) ReadInvocation(ctx context.Context, id string) (ir.Record, error) {
	recs, err := s.queryRecords(ctx, `
		SELECT `+recordColumns+`
		`+recordSource+`
		WHERE i.id = ?
	`, id)
	if err != nil {
		return ir.Record{}, err
	}
	if len(recs) == 0 {
		return ir.Record{}, sql.ErrNoRows
	}
	return recs[0], nil
}

// ListFlowTokens returns every flow token in order of first appearance.
func (s *Store) ListFlowTokens(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT flow_token FROM invocations
		GROUP BY flow_token
		ORDER BY MIN(seq) ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query flow tokens: %w", err)
	}
	defer rows.Close()

	tokens := []string{}
	for rows.Next() {
		var tok string
		if err := rows.Scan(&tok); err != nil {
			return nil, fmt.Errorf("scan flow token: %w", err)
		}
		tokens = append(tokens, tok)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flow tokens: %w", err)
	}
	return tokens, nil
}

// LastSeq returns the highest seq in the journal, 0 when empty.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(seq) FROM (
			SELECT seq FROM invocations
			UNION ALL
			SELECT seq FROM completions
		)
	`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]ir.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []ir.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

func scanRecord(rows *sql.Rows) (ir.Record, error) {
	var (
		rec                ir.Record
		caller, target     string
		argsJSON, resultJS string
	)
	inv, comp := &rec.Invocation, &rec.Completion
	if err := rows.Scan(
		&inv.ID, &inv.ParentID, &inv.FlowToken, &caller, &target, &inv.Action, &argsJSON, &inv.Seq, &inv.At,
		&comp.ID, &comp.InvocationID, &comp.OutputCase, &resultJS, &comp.Seq,
	); err != nil {
		return ir.Record{}, fmt.Errorf("scan record: %w", err)
	}

	var err error
	if inv.Caller, err = ir.ParsePrincipal(caller); err != nil {
		return ir.Record{}, fmt.Errorf("record %s caller: %w", inv.ID, err)
	}
	if inv.Target, err = ir.ParsePrincipal(target); err != nil {
		return ir.Record{}, fmt.Errorf("record %s target: %w", inv.ID, err)
	}
	if inv.Args, err = unmarshalObject(argsJSON); err != nil {
		return ir.Record{}, fmt.Errorf("record %s: %w", inv.ID, err)
	}
	if comp.Result, err = unmarshalObject(resultJS); err != nil {
		return ir.Record{}, fmt.Errorf("record %s: %w", inv.ID, err)
	}
	return rec, nil
}
