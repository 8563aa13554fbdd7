package engine

import (
	"github.com/roach88/kelsen/internal/digest"
	"github.com/roach88/kelsen/internal/ir"
	"github.com/roach88/kelsen/internal/organ"
	"github.com/roach88/kelsen/internal/permission"
	"github.com/roach88/kelsen/internal/procedure"
	"github.com/roach88/kelsen/internal/registry"
)

// World holds every governance component the engine owns: the factory
// registry, the organs and the procedures, each keyed by its derived
// address. Not safe for concurrent use; the engine serializes access.
type World struct {
	owner    ir.Principal
	registry *registry.Registry

	organs     map[ir.Principal]*organ.Organ
	organOrder []ir.Principal

	procedures map[ir.Principal]procedure.Procedure
	procOrder  []ir.Principal

	// nonces counts addresses derived per creator.
	nonces map[ir.Principal]uint64
}

// NewWorld creates an empty world. The registry takes the owner's first
// derived address.
func NewWorld(owner ir.Principal) *World {
	w := &World{
		owner:      owner,
		organs:     make(map[ir.Principal]*organ.Organ),
		procedures: make(map[ir.Principal]procedure.Procedure),
		nonces:     make(map[ir.Principal]uint64),
	}
	w.registry = registry.New(w.derive(owner), owner)
	return w
}

// Owner returns the principal that owns the registry.
func (w *World) Owner() ir.Principal { return w.owner }

// Registry returns the factory registry.
func (w *World) Registry() *registry.Registry { return w.registry }

// Organ resolves an organ address.
func (w *World) Organ(address ir.Principal) (*organ.Organ, error) {
	o, ok := w.organs[address]
	if !ok {
		return nil, ir.NewNotFound("organ", address.Hex())
	}
	return o, nil
}

// Organs returns every organ in creation order.
func (w *World) Organs() []*organ.Organ {
	out := make([]*organ.Organ, 0, len(w.organOrder))
	for _, a := range w.organOrder {
		out = append(out, w.organs[a])
	}
	return out
}

// Procedure resolves a procedure address.
func (w *World) Procedure(address ir.Principal) (procedure.Procedure, error) {
	p, ok := w.procedures[address]
	if !ok {
		return nil, ir.NewNotFound("procedure", address.Hex())
	}
	return p, nil
}

// Procedures returns every procedure in creation order.
func (w *World) Procedures() []procedure.Procedure {
	out := make([]procedure.Procedure, 0, len(w.procOrder))
	for _, a := range w.procOrder {
		out = append(out, w.procedures[a])
	}
	return out
}

// Component names what lives at address: "Kelsen", "Organ", a procedure
// kind, or "" when nothing does.
func (w *World) Component(address ir.Principal) string {
	switch {
	case address == w.registry.Address():
		return componentKelsen
	case w.organs[address] != nil:
		return componentOrgan
	case w.procedures[address] != nil:
		return componentName(w.procedures[address].Kind())
	}
	return ""
}

// nextAddress returns the address creator would derive next without
// consuming the nonce. Failed creations must leave nonces untouched.
func (w *World) nextAddress(creator ir.Principal) ir.Principal {
	return ir.DeriveAddress(creator, w.nonces[creator])
}

func (w *World) derive(creator ir.Principal) ir.Principal {
	a := w.nextAddress(creator)
	w.nonces[creator]++
	return a
}

func (w *World) taken(address ir.Principal) bool {
	return w.Component(address) != ""
}

// createOrgan deploys an organ whose only procedure slot is the caller
// with every permission.
func (w *World) createOrgan(caller ir.Principal, metadata digest.Digest) (*organ.Organ, error) {
	if ir.IsZero(caller) {
		return nil, ir.NewValidation("caller", "caller must not be zero")
	}
	creator := w.registry.Address()
	address := w.nextAddress(creator)
	if w.taken(address) {
		return nil, ir.NewValidation("address", address.Hex()+" is already in use")
	}
	o := organ.New(address, metadata, organ.ProcedureSlot{Address: caller, Permissions: permission.All})
	w.derive(creator)
	w.organs[address] = o
	w.organOrder = append(w.organOrder, address)
	return o, nil
}

// addProcedure installs a constructed procedure and consumes the factory's
// nonce.
func (w *World) addProcedure(factory registry.Factory, p procedure.Procedure) {
	w.derive(factory.Address)
	w.procedures[p.Address()] = p
	w.procOrder = append(w.procOrder, p.Address())
}

// mutate routes m through the target organ's own authorization.
func (w *World) mutate(caller ir.Principal, m organ.Mutation) (int, error) {
	o, err := w.Organ(m.Target)
	if err != nil {
		return 0, err
	}
	return m.Apply(o, caller)
}

// directory adapts the world to procedure.Directory. Mutations are
// journaled by the surrounding call.
type directory struct {
	world *World
	call  *call
}

func (d directory) Organ(address ir.Principal) (procedure.OrganView, error) {
	o, err := d.world.Organ(address)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (d directory) Mutate(caller ir.Principal, m organ.Mutation) (int, error) {
	return d.call.nested(caller, m)
}
