// Package procedure implements the governance workflows that drive organ
// mutations: simple nomination, proposal voting with veto and enactment,
// and cyclical elections.
//
// Procedures never hold organs. They name organs by address and reach them
// through a Directory, which the engine implements; every mutation a
// procedure issues is re-authorized by the target organ against the
// procedure's own slot.
package procedure

import (
	"github.com/roach88/kelsen/internal/digest"
	"github.com/roach88/kelsen/internal/ir"
	"github.com/roach88/kelsen/internal/organ"
	"github.com/roach88/kelsen/internal/registry"
)

// OrganView is the read-only part of an organ a procedure may inspect.
type OrganView interface {
	Address() ir.Principal
	IsEntry(p ir.Principal) bool
	FindEntry(p ir.Principal) (int, bool)
	Entry(i int) (organ.Entry, error)
	EntriesLength() int
	LiveEntries() []organ.Entry
}

// Directory is the capability handle procedures use to reach organs.
type Directory interface {
	// Organ resolves an organ address. Unknown addresses are NotFound.
	Organ(address ir.Principal) (OrganView, error)

	// Mutate applies m to m.Target on behalf of caller.
	Mutate(caller ir.Principal, m organ.Mutation) (int, error)
}

// Procedure is the behavior every workflow variant shares.
type Procedure interface {
	Address() ir.Principal
	Kind() registry.Kind
	Metadata() digest.Digest

	// Target is the organ mutated when a call does not name one.
	Target() ir.Principal
}

type base struct {
	address  ir.Principal
	kind     registry.Kind
	metadata digest.Digest
	target   ir.Principal
}

func (b *base) Address() ir.Principal   { return b.address }
func (b *base) Kind() registry.Kind     { return b.kind }
func (b *base) Metadata() digest.Digest { return b.metadata }
func (b *base) Target() ir.Principal    { return b.target }

// resolve fills in the default target.
func (b *base) resolve(m organ.Mutation) organ.Mutation {
	if ir.IsZero(m.Target) {
		m.Target = b.target
	}
	return m
}

// requireMember fails with Unauthorized unless caller is a live entry of
// the organ at group.
func (b *base) requireMember(dir Directory, group, caller ir.Principal, action string) error {
	view, err := dir.Organ(group)
	if err != nil {
		return err
	}
	if !view.IsEntry(caller) {
		return ir.NewUnauthorized(caller, action).With("procedure", b.address.Hex())
	}
	return nil
}

func requireOrgan(field string, p ir.Principal) error {
	if ir.IsZero(p) {
		return ir.NewValidation(field, field+" organ must be set")
	}
	return nil
}
