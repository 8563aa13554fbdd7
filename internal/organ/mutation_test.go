package organ

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kelsen/internal/ir"
	"github.com/roach88/kelsen/internal/permission"
)

func TestKindRequired(t *testing.T) {
	assert.Equal(t, permission.CanAddEntry, KindAddEntry.Required())
	assert.Equal(t, permission.CanSetMetadata, KindSetMetadata.Required())
	assert.Equal(t, "Organ.replaceProcedure", KindReplaceProcedure.Action())
	assert.False(t, Kind("dissolve").Valid())
	assert.Len(t, Kinds, 7)
}

func TestMutationObjectRoundTrip(t *testing.T) {
	target := ir.PrincipalFromName("board")
	tests := []Mutation{
		{Kind: KindAddEntry, Address: alice, Metadata: mdAlice},
		{Kind: KindRemoveEntry, Index: 3},
		{Kind: KindReplaceEntry, Index: 1, Address: bob, Metadata: mdBob, Target: target},
		{Kind: KindAddProcedure, Address: proc, Permissions: permission.CanAddEntry | permission.CanRemoveEntry},
		{Kind: KindRemoveProcedure, Index: 0},
		{Kind: KindReplaceProcedure, Index: 2, Address: proc, Permissions: permission.All},
		{Kind: KindSetMetadata, Metadata: mdBob},
	}

	for _, m := range tests {
		t.Run(string(m.Kind), func(t *testing.T) {
			back, err := ParseObject(m.Object())
			require.NoError(t, err)
			assert.Equal(t, m, back)
		})
	}
}

func TestArgsCarryOnlyRelevantFields(t *testing.T) {
	args := Mutation{Kind: KindRemoveEntry, Index: 2, Address: alice}.Args()
	assert.Equal(t, ir.Object{"index": ir.Int(2)}, args)

	args = Mutation{Kind: KindAddProcedure, Address: proc, Permissions: permission.CanAddEntry}.Args()
	assert.Equal(t, ir.Object{
		"address":     ir.String(proc.Hex()),
		"permissions": ir.String("CAN_ADD_ENTRY"),
	}, args)
}

func TestParseArgsErrors(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		args ir.Object
	}{
		{"unknown kind", Kind("explode"), ir.Object{}},
		{"missing index", KindRemoveEntry, ir.Object{}},
		{"missing address", KindAddEntry, ir.Object{}},
		{"bad address", KindAddEntry, ir.Object{"address": ir.String("alice")}},
		{"bad permissions", KindAddProcedure, ir.Object{"address": ir.String(proc.Hex()), "permissions": ir.String("CAN_FLY")}},
		{"permission bits out of range", KindAddProcedure, ir.Object{"address": ir.String(proc.Hex()), "permissions": ir.Int(0x80)}},
		{"metadata wrong type", KindSetMetadata, ir.Object{"metadata": ir.Int(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseArgs(tt.kind, tt.args)
			require.Error(t, err)
			assert.True(t, ir.IsValidation(err), "got %v", err)
		})
	}
}

func TestParseArgsMalformedMetadata(t *testing.T) {
	_, err := ParseArgs(KindSetMetadata, ir.Object{"metadata": ir.String("0OIl")})
	require.Error(t, err)
	assert.True(t, ir.IsMalformedDigest(err))
}

func TestParseObjectRequiresKind(t *testing.T) {
	_, err := ParseObject(ir.Object{"index": ir.Int(0)})
	assert.True(t, ir.IsValidation(err))
}

func TestMutationJSON(t *testing.T) {
	m := Mutation{Kind: KindAddProcedure, Address: proc, Permissions: permission.CanSetMetadata}
	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"permissions":"CAN_SET_METADATA"`)
	assert.Contains(t, string(data), `"kind":"addProcedure"`)
}

func TestApplyReturnsIndex(t *testing.T) {
	o := newAdminOrgan()
	i, err := Mutation{Kind: KindAddEntry, Address: alice}.Apply(o, admin)
	require.NoError(t, err)
	assert.Equal(t, 0, i)

	i, err = Mutation{Kind: KindAddProcedure, Address: proc}.Apply(o, admin)
	require.NoError(t, err)
	assert.Equal(t, 1, i)

	i, err = Mutation{Kind: KindRemoveEntry, Index: 0}.Apply(o, admin)
	require.NoError(t, err)
	assert.Equal(t, 0, i)

	_, err = Mutation{Kind: "bogus"}.Apply(o, admin)
	assert.True(t, ir.IsValidation(err))
}
