package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/kelsen/internal/ir"
)

var (
	alice = ir.PrincipalFromName("alice")
	organ = ir.PrincipalFromName("organ")
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRecord builds a record with real content ids.
func createTestRecord(t *testing.T, flowToken, parentID, action string, args ir.Object, seq int64) ir.Record {
	t.Helper()
	inv := ir.Invocation{
		ParentID:  parentID,
		FlowToken: flowToken,
		Caller:    alice,
		Target:    organ,
		Action:    action,
		Args:      args,
		Seq:       seq,
		At:        1_700_000_000 + seq,
	}
	id, err := ir.InvocationID(inv)
	require.NoError(t, err)
	inv.ID = id

	result := ir.Object{"index": ir.Int(seq)}
	compID, err := ir.CompletionID(id, ir.CaseSuccess, result, seq+1)
	require.NoError(t, err)
	return ir.Record{
		Invocation: inv,
		Completion: ir.Completion{
			ID:           compID,
			InvocationID: id,
			OutputCase:   ir.CaseSuccess,
			Result:       result,
			Seq:          seq + 1,
		},
	}
}
