// Package registry maps workflow names to procedure factories.
//
// The registry is owned: only its owner may register factories. Names are
// unique, and the ordered name list only grows; re-registering a name
// overwrites its factory data in place.
package registry

import (
	"fmt"
	"strconv"

	"github.com/roach88/kelsen/internal/ir"
)

// Kind tags the constructor a factory dispatches to. The set is closed; the
// engine owns the constructors.
type Kind string

const (
	KindSimpleNomination Kind = "simpleNomination"
	KindVote             Kind = "vote"
	KindCyclicalElection Kind = "cyclicalElection"
)

// Kinds lists every procedure kind.
var Kinds = []Kind{KindSimpleNomination, KindVote, KindCyclicalElection}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindSimpleNomination, KindVote, KindCyclicalElection:
		return true
	}
	return false
}

// Factory is one registry entry.
type Factory struct {
	Name    string       `json:"name" yaml:"name"`
	Kind    Kind         `json:"kind" yaml:"kind"`
	Address ir.Principal `json:"address" yaml:"address"`
	Version int64        `json:"version" yaml:"version"`
}

// Registry is not safe for concurrent use; the engine serializes calls.
type Registry struct {
	address   ir.Principal
	owner     ir.Principal
	factories map[string]Factory
	names     []string
}

// New creates an empty registry at address owned by owner.
func New(address, owner ir.Principal) *Registry {
	return &Registry{
		address:   address,
		owner:     owner,
		factories: make(map[string]Factory),
	}
}

// Address returns the registry's principal.
func (r *Registry) Address() ir.Principal { return r.address }

// Owner returns the principal allowed to register factories.
func (r *Registry) Owner() ir.Principal { return r.owner }

// Register inserts or overwrites the factory registered under name.
func (r *Registry) Register(caller ir.Principal, name string, kind Kind, factory ir.Principal, version int64) error {
	if caller != r.owner {
		return ir.NewUnauthorized(caller, "registerProcedureFactory")
	}
	if name == "" {
		return ir.NewValidation("name", "factory name must not be empty")
	}
	if !kind.Valid() {
		return ir.NewValidation("kind", fmt.Sprintf("unknown procedure kind %q", kind))
	}
	if ir.IsZero(factory) {
		return ir.NewValidation("factory", "factory address must not be zero")
	}
	if _, exists := r.factories[name]; !exists {
		r.names = append(r.names, name)
	}
	r.factories[name] = Factory{Name: name, Kind: kind, Address: factory, Version: version}
	return nil
}

// FactoryData returns the factory registered under name.
func (r *Registry) FactoryData(name string) (Factory, error) {
	f, ok := r.factories[name]
	if !ok {
		return Factory{}, ir.NewNotFound("factory", name)
	}
	return f, nil
}

// Count returns how many names are registered.
func (r *Registry) Count() int { return len(r.names) }

// Name returns the i-th registered name in registration order.
func (r *Registry) Name(i int) (string, error) {
	if i < 0 || i >= len(r.names) {
		return "", ir.NewNotFound("factory index", strconv.Itoa(i))
	}
	return r.names[i], nil
}

// Factories returns every factory in registration order.
func (r *Registry) Factories() []Factory {
	out := make([]Factory, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.factories[n])
	}
	return out
}

// ByAddress finds the factory registered at address.
func (r *Registry) ByAddress(address ir.Principal) (Factory, bool) {
	for _, n := range r.names {
		if f := r.factories[n]; f.Address == address {
			return f, true
		}
	}
	return Factory{}, false
}
