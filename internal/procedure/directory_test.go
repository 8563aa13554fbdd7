package procedure

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/kelsen/internal/digest"
	"github.com/roach88/kelsen/internal/ir"
	"github.com/roach88/kelsen/internal/organ"
	"github.com/roach88/kelsen/internal/permission"
)

// memDirectory is an in-memory Directory that records applied mutations.
type memDirectory struct {
	organs  map[ir.Principal]*organ.Organ
	applied []organ.Mutation
}

func newMemDirectory() *memDirectory {
	return &memDirectory{organs: make(map[ir.Principal]*organ.Organ)}
}

func (d *memDirectory) Organ(address ir.Principal) (OrganView, error) {
	o, ok := d.organs[address]
	if !ok {
		return nil, ir.NewNotFound("organ", address.Hex())
	}
	return o, nil
}

func (d *memDirectory) Mutate(caller ir.Principal, m organ.Mutation) (int, error) {
	o, ok := d.organs[m.Target]
	if !ok {
		return 0, ir.NewNotFound("organ", m.Target.Hex())
	}
	i, err := m.Apply(o, caller)
	if err == nil {
		d.applied = append(d.applied, m)
	}
	return i, err
}

var (
	admin = ir.PrincipalFromName("admin")
	alice = ir.PrincipalFromName("alice")
	bob   = ir.PrincipalFromName("bob")
	carol = ir.PrincipalFromName("carol")
	dave  = ir.PrincipalFromName("dave")
	eve   = ir.PrincipalFromName("eve")
)

// addOrgan creates an organ administered by admin with the given members.
func (d *memDirectory) addOrgan(t *testing.T, name string, members ...ir.Principal) ir.Principal {
	t.Helper()
	addr := ir.PrincipalFromName(name)
	o := organ.New(addr, digest.Sum([]byte(name)), organ.ProcedureSlot{Address: admin, Permissions: permission.All})
	for _, m := range members {
		_, err := o.AddEntry(admin, m, digest.Sum(m.Bytes()))
		require.NoError(t, err)
	}
	d.organs[addr] = o
	return addr
}

// grant installs procedure on organ with mask.
func (d *memDirectory) grant(t *testing.T, organAddr, procedure ir.Principal, mask permission.Mask) {
	t.Helper()
	_, err := d.organs[organAddr].AddProcedure(admin, procedure, mask)
	require.NoError(t, err)
}
