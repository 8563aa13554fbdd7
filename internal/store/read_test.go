package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kelsen/internal/ir"
	"github.com/roach88/kelsen/internal/queryir"
)

func seedJournal(t *testing.T, s *Store) []ir.Record {
	t.Helper()
	a := createTestRecord(t, "flow-a", "", "Organ.addEntry", ir.Object{}, 1)
	b := createTestRecord(t, "flow-b", "", "Vote.propose", ir.Object{}, 3)
	bNested := createTestRecord(t, "flow-b", b.Invocation.ID, "Organ.addEntry", ir.Object{}, 5)
	c := createTestRecord(t, "flow-a", "", "Organ.removeEntry", ir.Object{}, 7)

	ctx := context.Background()
	require.NoError(t, s.WriteBatch(ctx, []ir.Record{a}))
	require.NoError(t, s.WriteBatch(ctx, []ir.Record{b, bNested}))
	require.NoError(t, s.WriteBatch(ctx, []ir.Record{c}))
	return []ir.Record{a, b, bNested, c}
}

func TestReadAll_OrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	want := seedJournal(t, s)

	got, err := s.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestReadFlow_Unknown(t *testing.T) {
	s := createTestStore(t)
	seedJournal(t, s)

	got, err := s.ReadFlow(context.Background(), "nope")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestReadTopLevel(t *testing.T) {
	s := createTestStore(t)
	recs := seedJournal(t, s)

	got, err := s.ReadTopLevel(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, recs[0].Invocation.ID, got[0].Invocation.ID)
	assert.Equal(t, recs[1].Invocation.ID, got[1].Invocation.ID)
	assert.Equal(t, recs[3].Invocation.ID, got[2].Invocation.ID)
}

func TestReadInvocation(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	recs := seedJournal(t, s)

	got, err := s.ReadInvocation(ctx, recs[2].Invocation.ID)
	require.NoError(t, err)
	assert.Equal(t, recs[2], got)

	_, err = s.ReadInvocation(ctx, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestListFlowTokens(t *testing.T) {
	s := createTestStore(t)
	seedJournal(t, s)

	tokens, err := s.ListFlowTokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"flow-a", "flow-b"}, tokens)
}

func TestLastSeq(t *testing.T) {
	s := createTestStore(t)
	seedJournal(t, s)

	seq, err := s.LastSeq(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(8), seq)
}

func TestGetFlowState(t *testing.T) {
	s := createTestStore(t)
	seedJournal(t, s)

	state, err := s.GetFlowState(context.Background(), "flow-b")
	require.NoError(t, err)
	assert.Equal(t, "flow-b", state.FlowToken)
	assert.Len(t, state.Records, 2)
	assert.Equal(t, 1, state.NestedCalls)
	assert.Equal(t, int64(6), state.LastSeq)
	assert.Equal(t, ir.CaseSuccess, state.TerminalStatus)
}

func TestQuery_Filters(t *testing.T) {
	s := createTestStore(t)
	recs := seedJournal(t, s)
	ctx := context.Background()

	tests := []struct {
		name   string
		query  queryir.Select
		wantID []string
	}{
		{
			name:   "no filter",
			query:  queryir.Select{},
			wantID: []string{recs[0].Invocation.ID, recs[1].Invocation.ID, recs[2].Invocation.ID, recs[3].Invocation.ID},
		},
		{
			name:   "action",
			query:  queryir.Select{Filter: queryir.Equals{Field: queryir.FieldAction, Value: ir.String("Organ.addEntry")}},
			wantID: []string{recs[0].Invocation.ID, recs[2].Invocation.ID},
		},
		{
			name:   "nested only",
			query:  queryir.Select{Filter: queryir.Equals{Field: queryir.FieldParent, Value: ir.String(recs[1].Invocation.ID)}},
			wantID: []string{recs[2].Invocation.ID},
		},
		{
			name:   "seq range",
			query:  queryir.Select{Filter: queryir.Range{Field: queryir.FieldSeq, From: 3, To: 5}},
			wantID: []string{recs[1].Invocation.ID, recs[2].Invocation.ID},
		},
		{
			name:   "descending with limit",
			query:  queryir.Select{Descending: true, Limit: 2},
			wantID: []string{recs[3].Invocation.ID, recs[2].Invocation.ID},
		},
		{
			name: "caller in lowercase hex",
			query: queryir.Select{Filter: queryir.And{Predicates: []queryir.Predicate{
				queryir.Equals{Field: queryir.FieldCaller, Value: ir.String(strings.ToLower(alice.Hex()))},
				queryir.Equals{Field: queryir.FieldFlow, Value: ir.String("flow-a")},
			}}},
			wantID: []string{recs[0].Invocation.ID, recs[3].Invocation.ID},
		},
		{
			name: "or",
			query: queryir.Select{Filter: queryir.Or{Predicates: []queryir.Predicate{
				queryir.Equals{Field: queryir.FieldAction, Value: ir.String("Vote.propose")},
				queryir.Equals{Field: queryir.FieldAction, Value: ir.String("Organ.removeEntry")},
			}}},
			wantID: []string{recs[1].Invocation.ID, recs[3].Invocation.ID},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Query(ctx, tt.query)
			require.NoError(t, err)
			ids := make([]string, len(got))
			for i, rec := range got {
				ids[i] = rec.Invocation.ID
			}
			assert.Equal(t, tt.wantID, ids)
		})
	}
}

func TestQuery_MatchesInMemoryFilter(t *testing.T) {
	s := createTestStore(t)
	recs := seedJournal(t, s)

	filter := queryir.All(
		queryir.Equals{Field: queryir.FieldCase, Value: ir.String(ir.CaseSuccess)},
		queryir.Range{Field: queryir.FieldAt, From: 1_700_000_003},
	)
	got, err := s.Query(context.Background(), queryir.Select{Filter: filter})
	require.NoError(t, err)
	assert.Equal(t, queryir.Filter(filter, recs), got)
}

func TestQuery_InvalidFilter(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Query(context.Background(), queryir.Select{
		Filter: queryir.Equals{Field: "args", Value: ir.String("x")},
	})
	require.Error(t, err)
	assert.True(t, ir.IsValidation(err))
}

func TestCount(t *testing.T) {
	s := createTestStore(t)
	seedJournal(t, s)
	ctx := context.Background()

	n, err := s.Count(ctx, queryir.Count{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	n, err = s.Count(ctx, queryir.Count{Filter: queryir.TopLevel()})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
