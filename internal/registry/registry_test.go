package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kelsen/internal/ir"
)

var (
	owner    = ir.PrincipalFromName("owner")
	stranger = ir.PrincipalFromName("stranger")
	regAddr  = ir.DeriveAddress(owner, 0)
	factV1   = ir.PrincipalFromName("vote-factory-v1")
	factV2   = ir.PrincipalFromName("vote-factory-v2")
)

func TestReRegistrationOverwrites(t *testing.T) {
	r := New(regAddr, owner)

	require.NoError(t, r.Register(owner, "vote", KindVote, factV1, 1))
	require.NoError(t, r.Register(owner, "vote", KindVote, factV2, 2))

	f, err := r.FactoryData("vote")
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.Version)
	assert.Equal(t, factV2, f.Address)

	assert.Equal(t, 1, r.Count())
	name, err := r.Name(0)
	require.NoError(t, err)
	assert.Equal(t, "vote", name)
}

func TestNamesKeepRegistrationOrder(t *testing.T) {
	r := New(regAddr, owner)
	for i, n := range []string{"cyclicalManyToOneElection", "simpleAdminAndMasterNomination", "simpleNormNomination"} {
		kind := KindSimpleNomination
		if i == 0 {
			kind = KindCyclicalElection
		}
		require.NoError(t, r.Register(owner, n, kind, ir.PrincipalFromName(n), 1))
	}

	assert.Equal(t, 3, r.Count())
	var names []string
	for _, f := range r.Factories() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"cyclicalManyToOneElection", "simpleAdminAndMasterNomination", "simpleNormNomination"}, names)

	f, ok := r.ByAddress(ir.PrincipalFromName("simpleNormNomination"))
	assert.True(t, ok)
	assert.Equal(t, "simpleNormNomination", f.Name)
}

func TestRegisterOwnerOnly(t *testing.T) {
	r := New(regAddr, owner)

	err := r.Register(stranger, "vote", KindVote, factV1, 1)
	require.Error(t, err)
	assert.True(t, ir.IsUnauthorized(err))
	assert.Equal(t, 0, r.Count())
}

func TestRegisterValidation(t *testing.T) {
	r := New(regAddr, owner)

	assert.True(t, ir.IsValidation(r.Register(owner, "", KindVote, factV1, 1)))
	assert.True(t, ir.IsValidation(r.Register(owner, "x", Kind("lottery"), factV1, 1)))
	assert.True(t, ir.IsValidation(r.Register(owner, "x", KindVote, ir.ZeroPrincipal, 1)))
	assert.Equal(t, 0, r.Count())
}

func TestLookupsNotFound(t *testing.T) {
	r := New(regAddr, owner)

	_, err := r.FactoryData("missing")
	assert.True(t, ir.IsNotFound(err))

	_, err = r.Name(0)
	assert.True(t, ir.IsNotFound(err))

	_, ok := r.ByAddress(factV1)
	assert.False(t, ok)
}
