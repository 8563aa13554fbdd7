// Package querysql compiles journal queries to parameterized SQLite SQL.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/kelsen/internal/ir"
	"github.com/roach88/kelsen/internal/queryir"
)

// RecordColumns is the column list every record query selects, in the
// order the store scans them.
const RecordColumns = `
	i.id, i.parent_id, i.flow_token, i.caller, i.target, i.action, i.args, i.seq, i.at,
	c.id, c.invocation_id, c.output_case, c.result, c.seq
`

// RecordSource joins each invocation with its completion.
const RecordSource = "FROM invocations i JOIN completions c ON c.invocation_id = i.id"

var columns = map[queryir.Field]string{
	queryir.FieldFlow:   "i.flow_token",
	queryir.FieldParent: "i.parent_id",
	queryir.FieldCaller: "i.caller",
	queryir.FieldTarget: "i.target",
	queryir.FieldAction: "i.action",
	queryir.FieldCase:   "c.output_case",
	queryir.FieldSeq:    "i.seq",
	queryir.FieldAt:     "i.at",
}

// Compile converts q to SQL and its parameters. q is validated first.
//
// CRITICAL: values are never interpolated; every literal is a ? parameter.
// CRITICAL: record queries always end in ORDER BY seq with an id
// tiebreaker so results are deterministic.
func Compile(q queryir.Query) (string, []any, error) {
	if err := queryir.Validate(q); err != nil {
		return "", nil, err
	}
	switch query := q.(type) {
	case queryir.Select:
		return compileSelect(query)
	case *queryir.Select:
		return compileSelect(*query)
	case queryir.Count:
		return compileCount(query)
	case *queryir.Count:
		return compileCount(*query)
	}
	return "", nil, fmt.Errorf("unsupported query type: %T", q)
}

func compileSelect(q queryir.Select) (string, []any, error) {
	where, params, err := whereClause(q.Filter)
	if err != nil {
		return "", nil, err
	}
	dir := "ASC"
	if q.Descending {
		dir = "DESC"
	}
	var b strings.Builder
	b.WriteString("SELECT " + strings.TrimSpace(RecordColumns))
	b.WriteString(" " + RecordSource)
	b.WriteString(where)
	fmt.Fprintf(&b, " ORDER BY i.seq %s, i.id COLLATE BINARY %s", dir, dir)
	if q.Limit > 0 {
		b.WriteString(" LIMIT ?")
		params = append(params, int64(q.Limit))
	}
	return b.String(), params, nil
}

func compileCount(q queryir.Count) (string, []any, error) {
	where, params, err := whereClause(q.Filter)
	if err != nil {
		return "", nil, err
	}
	return "SELECT COUNT(*) " + RecordSource + where, params, nil
}

func whereClause(p queryir.Predicate) (string, []any, error) {
	if p == nil {
		return "", nil, nil
	}
	sql, params, err := compilePredicate(p)
	if err != nil {
		return "", nil, fmt.Errorf("compile filter: %w", err)
	}
	return " WHERE " + sql, params, nil
}

func compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		return compileEquals(pred)
	case *queryir.Equals:
		return compileEquals(*pred)
	case queryir.Range:
		return compileRange(pred)
	case *queryir.Range:
		return compileRange(*pred)
	case queryir.And:
		return compileJunction(pred.Predicates, " AND ", "1 = 1")
	case *queryir.And:
		return compileJunction(pred.Predicates, " AND ", "1 = 1")
	case queryir.Or:
		return compileJunction(pred.Predicates, " OR ", "1 = 0")
	case *queryir.Or:
		return compileJunction(pred.Predicates, " OR ", "1 = 0")
	}
	return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
}

func compileEquals(eq queryir.Equals) (string, []any, error) {
	param, err := valueParam(eq)
	if err != nil {
		return "", nil, err
	}
	return columns[eq.Field] + " = ?", []any{param}, nil
}

func compileRange(r queryir.Range) (string, []any, error) {
	col := columns[r.Field]
	var parts []string
	var params []any
	if r.From != 0 {
		parts = append(parts, col+" >= ?")
		params = append(params, r.From)
	}
	if r.To != 0 {
		parts = append(parts, col+" <= ?")
		params = append(params, r.To)
	}
	if len(parts) == 0 {
		return "1 = 1", nil, nil
	}
	return strings.Join(parts, " AND "), params, nil
}

// compileJunction parenthesizes each operand so AND and OR nest safely.
func compileJunction(preds []queryir.Predicate, op, empty string) (string, []any, error) {
	if len(preds) == 0 {
		return empty, nil, nil
	}
	parts := make([]string, 0, len(preds))
	var params []any
	for _, p := range preds {
		sql, ps, err := compilePredicate(p)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, "("+sql+")")
		params = append(params, ps...)
	}
	return strings.Join(parts, op), params, nil
}

func valueParam(eq queryir.Equals) (any, error) {
	switch v := eq.Value.(type) {
	case ir.Int:
		return int64(v), nil
	case ir.String:
		if eq.Field.Principal() {
			return queryir.PrincipalValue(string(v)), nil
		}
		return string(v), nil
	}
	return nil, fmt.Errorf("unsupported value type for SQL parameter: %T", eq.Value)
}
