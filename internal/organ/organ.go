// Package organ implements the authorization domain at the center of the
// governance model.
//
// An Organ owns an index-addressed list of entries (members) and a list of
// procedure slots, each pairing a procedure address with a permission mask.
// Every mutation is authorized by scanning the procedure slots for a live
// slot held by the caller whose mask satisfies the mutation's capability.
// Removal tombstones a slot; indices are never reused or shifted.
package organ

import (
	"strconv"

	"github.com/roach88/kelsen/internal/digest"
	"github.com/roach88/kelsen/internal/ir"
	"github.com/roach88/kelsen/internal/permission"
)

// Entry is a member record. The zero Entry is a tombstone.
type Entry struct {
	Address  ir.Principal  `json:"address"`
	Metadata digest.Digest `json:"metadata"`
}

// IsEmpty reports whether e is a tombstone.
func (e Entry) IsEmpty() bool {
	return ir.IsZero(e.Address)
}

// ProcedureSlot grants Permissions on the organ to the procedure at
// Address. The zero slot is a tombstone.
type ProcedureSlot struct {
	Address     ir.Principal    `json:"address"`
	Permissions permission.Mask `json:"permissions"`
}

// IsEmpty reports whether s is a tombstone.
func (s ProcedureSlot) IsEmpty() bool {
	return ir.IsZero(s.Address)
}

// Organ is not safe for concurrent use; the engine serializes all calls.
type Organ struct {
	address    ir.Principal
	metadata   digest.Digest
	entries    []Entry
	procedures []ProcedureSlot
}

// New creates an organ. Bootstrap slots are installed without
// authorization; they are how an organ gets its first administrator.
func New(address ir.Principal, metadata digest.Digest, bootstrap ...ProcedureSlot) *Organ {
	o := &Organ{address: address, metadata: metadata}
	o.procedures = append(o.procedures, bootstrap...)
	return o
}

// Address returns the organ's own principal.
func (o *Organ) Address() ir.Principal { return o.address }

// Metadata returns the organ's metadata digest.
func (o *Organ) Metadata() digest.Digest { return o.metadata }

// Authorize fails with Unauthorized unless caller holds a live procedure
// slot whose mask satisfies required.
func (o *Organ) Authorize(caller ir.Principal, required permission.Mask, action string) error {
	i, ok := o.FindProcedure(caller)
	if !ok || !o.procedures[i].Permissions.Satisfies(required) {
		return ir.NewUnauthorized(caller, action).With("organ", o.address.Hex())
	}
	return nil
}

// AddEntry appends a member and returns its index.
func (o *Organ) AddEntry(caller, address ir.Principal, metadata digest.Digest) (int, error) {
	if err := o.Authorize(caller, permission.CanAddEntry, string(KindAddEntry)); err != nil {
		return 0, err
	}
	if ir.IsZero(address) {
		return 0, ir.NewValidation("address", "entry address must not be zero")
	}
	o.entries = append(o.entries, Entry{Address: address, Metadata: metadata})
	return len(o.entries) - 1, nil
}

// RemoveEntry tombstones entry i.
func (o *Organ) RemoveEntry(caller ir.Principal, i int) error {
	if err := o.Authorize(caller, permission.CanRemoveEntry, string(KindRemoveEntry)); err != nil {
		return err
	}
	if err := o.liveEntry(i); err != nil {
		return err
	}
	o.entries[i] = Entry{}
	return nil
}

// ReplaceEntry overwrites live entry i.
func (o *Organ) ReplaceEntry(caller ir.Principal, i int, address ir.Principal, metadata digest.Digest) error {
	if err := o.Authorize(caller, permission.CanReplaceEntry, string(KindReplaceEntry)); err != nil {
		return err
	}
	if err := o.liveEntry(i); err != nil {
		return err
	}
	if ir.IsZero(address) {
		return ir.NewValidation("address", "entry address must not be zero")
	}
	o.entries[i] = Entry{Address: address, Metadata: metadata}
	return nil
}

// AddProcedure installs a procedure slot and returns its index. An empty
// mask is allowed; such a slot authorizes nothing.
func (o *Organ) AddProcedure(caller, address ir.Principal, mask permission.Mask) (int, error) {
	if err := o.Authorize(caller, permission.CanAddProcedure, string(KindAddProcedure)); err != nil {
		return 0, err
	}
	if err := validateSlot(address, mask); err != nil {
		return 0, err
	}
	o.procedures = append(o.procedures, ProcedureSlot{Address: address, Permissions: mask})
	return len(o.procedures) - 1, nil
}

// RemoveProcedure tombstones slot i. A procedure may remove its own slot.
func (o *Organ) RemoveProcedure(caller ir.Principal, i int) error {
	if err := o.Authorize(caller, permission.CanRemoveProcedure, string(KindRemoveProcedure)); err != nil {
		return err
	}
	if err := o.liveProcedure(i); err != nil {
		return err
	}
	o.procedures[i] = ProcedureSlot{}
	return nil
}

// ReplaceProcedure rotates the holder of slot i and/or changes its mask.
func (o *Organ) ReplaceProcedure(caller ir.Principal, i int, address ir.Principal, mask permission.Mask) error {
	if err := o.Authorize(caller, permission.CanReplaceProcedure, string(KindReplaceProcedure)); err != nil {
		return err
	}
	if err := o.liveProcedure(i); err != nil {
		return err
	}
	if err := validateSlot(address, mask); err != nil {
		return err
	}
	o.procedures[i] = ProcedureSlot{Address: address, Permissions: mask}
	return nil
}

// SetMetadata replaces the organ's metadata digest.
func (o *Organ) SetMetadata(caller ir.Principal, metadata digest.Digest) error {
	if err := o.Authorize(caller, permission.CanSetMetadata, string(KindSetMetadata)); err != nil {
		return err
	}
	o.metadata = metadata
	return nil
}

// Entry returns entry i; tombstones come back as the zero Entry.
func (o *Organ) Entry(i int) (Entry, error) {
	if i < 0 || i >= len(o.entries) {
		return Entry{}, notFound("entry", i, o.address)
	}
	return o.entries[i], nil
}

// EntriesLength counts entry slots, tombstones included.
func (o *Organ) EntriesLength() int { return len(o.entries) }

// Procedure returns slot i; tombstones come back as the zero slot.
func (o *Organ) Procedure(i int) (ProcedureSlot, error) {
	if i < 0 || i >= len(o.procedures) {
		return ProcedureSlot{}, notFound("procedure", i, o.address)
	}
	return o.procedures[i], nil
}

// ProceduresLength counts procedure slots, tombstones included.
func (o *Organ) ProceduresLength() int { return len(o.procedures) }

// FindEntry returns the index of the first live entry held by p.
func (o *Organ) FindEntry(p ir.Principal) (int, bool) {
	if ir.IsZero(p) {
		return 0, false
	}
	for i, e := range o.entries {
		if e.Address == p {
			return i, true
		}
	}
	return 0, false
}

// IsEntry reports whether p is a live member.
func (o *Organ) IsEntry(p ir.Principal) bool {
	_, ok := o.FindEntry(p)
	return ok
}

// FindProcedure returns the index of the first live slot held by p.
func (o *Organ) FindProcedure(p ir.Principal) (int, bool) {
	if ir.IsZero(p) {
		return 0, false
	}
	for i, s := range o.procedures {
		if s.Address == p {
			return i, true
		}
	}
	return 0, false
}

// LiveEntries returns the non-tombstoned entries in index order.
func (o *Organ) LiveEntries() []Entry {
	var out []Entry
	for _, e := range o.entries {
		if !e.IsEmpty() {
			out = append(out, e)
		}
	}
	return out
}

func (o *Organ) liveEntry(i int) error {
	if i < 0 || i >= len(o.entries) || o.entries[i].IsEmpty() {
		return notFound("entry", i, o.address)
	}
	return nil
}

func (o *Organ) liveProcedure(i int) error {
	if i < 0 || i >= len(o.procedures) || o.procedures[i].IsEmpty() {
		return notFound("procedure", i, o.address)
	}
	return nil
}

func validateSlot(address ir.Principal, mask permission.Mask) error {
	if ir.IsZero(address) {
		return ir.NewValidation("address", "procedure address must not be zero")
	}
	return mask.Validate()
}

func notFound(kind string, i int, organ ir.Principal) error {
	return ir.NewNotFound(kind, strconv.Itoa(i)).With("organ", organ.Hex())
}
