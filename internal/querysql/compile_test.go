package querysql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kelsen/internal/ir"
	"github.com/roach88/kelsen/internal/queryir"
)

func TestCompile_SelectAll(t *testing.T) {
	sql, params, err := Compile(queryir.Select{})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(sql, "SELECT i.id, i.parent_id"))
	assert.Contains(t, sql, RecordSource)
	assert.NotContains(t, sql, "WHERE")
	assert.True(t, strings.HasSuffix(sql, "ORDER BY i.seq ASC, i.id COLLATE BINARY ASC"))
	assert.Empty(t, params)
}

func TestCompile_ParametersNeverInterpolated(t *testing.T) {
	q := queryir.Select{
		Filter: queryir.Equals{Field: queryir.FieldAction, Value: ir.String("Organ.addEntry' OR 1=1 --")},
	}
	sql, params, err := Compile(q)
	require.NoError(t, err)

	assert.Contains(t, sql, "WHERE i.action = ?")
	assert.NotContains(t, sql, "addEntry")
	assert.Equal(t, []any{"Organ.addEntry' OR 1=1 --"}, params)
}

func TestCompile_Predicates(t *testing.T) {
	alice := ir.PrincipalFromName("alice")
	tests := []struct {
		name       string
		filter     queryir.Predicate
		wantWhere  string
		wantParams []any
	}{
		{
			name:       "seq equals",
			filter:     queryir.Equals{Field: queryir.FieldSeq, Value: ir.Int(7)},
			wantWhere:  "i.seq = ?",
			wantParams: []any{int64(7)},
		},
		{
			name:       "case",
			filter:     &queryir.Equals{Field: queryir.FieldCase, Value: ir.String("Success")},
			wantWhere:  "c.output_case = ?",
			wantParams: []any{"Success"},
		},
		{
			name:       "caller normalized",
			filter:     queryir.Equals{Field: queryir.FieldCaller, Value: ir.String(strings.ToLower(alice.Hex()))},
			wantWhere:  "i.caller = ?",
			wantParams: []any{alice.Hex()},
		},
		{
			name:       "closed range",
			filter:     queryir.Range{Field: queryir.FieldAt, From: 10, To: 20},
			wantWhere:  "i.at >= ? AND i.at <= ?",
			wantParams: []any{int64(10), int64(20)},
		},
		{
			name:       "open range",
			filter:     queryir.Range{Field: queryir.FieldSeq, To: 20},
			wantWhere:  "i.seq <= ?",
			wantParams: []any{int64(20)},
		},
		{
			name:      "unbounded range",
			filter:    queryir.Range{Field: queryir.FieldSeq},
			wantWhere: "1 = 1",
		},
		{
			name: "and of or",
			filter: queryir.And{Predicates: []queryir.Predicate{
				queryir.TopLevel(),
				queryir.Or{Predicates: []queryir.Predicate{
					queryir.Equals{Field: queryir.FieldAction, Value: ir.String("Vote.vote")},
					queryir.Equals{Field: queryir.FieldAction, Value: ir.String("Vote.veto")},
				}},
			}},
			wantWhere:  "(i.parent_id = ?) AND ((i.action = ?) OR (i.action = ?))",
			wantParams: []any{"", "Vote.vote", "Vote.veto"},
		},
		{
			name:      "empty or",
			filter:    queryir.Or{},
			wantWhere: "1 = 0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, params, err := Compile(queryir.Count{Filter: tt.filter})
			require.NoError(t, err)
			assert.Equal(t, "SELECT COUNT(*) "+RecordSource+" WHERE "+tt.wantWhere, sql)
			assert.Equal(t, tt.wantParams, params)
		})
	}
}

func TestCompile_DescendingLimit(t *testing.T) {
	sql, params, err := Compile(&queryir.Select{
		Filter:     queryir.Equals{Field: queryir.FieldFlow, Value: ir.String("f")},
		Limit:      3,
		Descending: true,
	})
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(sql, "WHERE i.flow_token = ? ORDER BY i.seq DESC, i.id COLLATE BINARY DESC LIMIT ?"))
	assert.Equal(t, []any{"f", int64(3)}, params)
}

func TestCompile_RejectsInvalid(t *testing.T) {
	_, _, err := Compile(queryir.Select{Filter: queryir.Equals{Field: "result", Value: ir.String("x")}})
	require.Error(t, err)
	assert.True(t, ir.IsValidation(err))

	_, _, err = Compile(nil)
	assert.Error(t, err)
}

func TestCompile_EveryFieldHasColumn(t *testing.T) {
	for _, f := range queryir.Fields {
		assert.NotEmpty(t, columns[f], f)
	}
}
