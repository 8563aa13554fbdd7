package procedure

import (
	"github.com/roach88/kelsen/internal/digest"
	"github.com/roach88/kelsen/internal/ir"
	"github.com/roach88/kelsen/internal/organ"
	"github.com/roach88/kelsen/internal/registry"
)

// SimpleNominationConfig configures a SimpleNomination.
type SimpleNominationConfig struct {
	// Nominators is the organ whose entries may nominate.
	Nominators ir.Principal `json:"nominators"`
	Target     ir.Principal `json:"target"`
}

// SimpleNomination lets any nominator seat a candidate on the target organ
// directly. It keeps no state between calls.
type SimpleNomination struct {
	base
	cfg SimpleNominationConfig
}

// NewSimpleNomination validates cfg and builds the procedure.
func NewSimpleNomination(address ir.Principal, metadata digest.Digest, cfg SimpleNominationConfig) (*SimpleNomination, error) {
	if err := requireOrgan("nominators", cfg.Nominators); err != nil {
		return nil, err
	}
	if err := requireOrgan("target", cfg.Target); err != nil {
		return nil, err
	}
	return &SimpleNomination{
		base: base{address: address, kind: registry.KindSimpleNomination, metadata: metadata, target: cfg.Target},
		cfg:  cfg,
	}, nil
}

// Config returns the procedure configuration.
func (p *SimpleNomination) Config() SimpleNominationConfig { return p.cfg }

// Nominate seats candidate on the target organ (or on target when set).
// A candidate already holding a live entry has it replaced with the new
// metadata; otherwise a new entry is added. Returns the entry index.
func (p *SimpleNomination) Nominate(dir Directory, caller, candidate ir.Principal, metadata digest.Digest, target ir.Principal) (int, error) {
	if err := p.requireMember(dir, p.cfg.Nominators, caller, "nominate"); err != nil {
		return 0, err
	}
	if ir.IsZero(candidate) {
		return 0, ir.NewValidation("candidate", "candidate must not be zero")
	}

	m := p.resolve(organ.Mutation{Target: target})
	view, err := dir.Organ(m.Target)
	if err != nil {
		return 0, err
	}
	if i, ok := view.FindEntry(candidate); ok {
		m.Kind, m.Index = organ.KindReplaceEntry, i
	} else {
		m.Kind = organ.KindAddEntry
	}
	m.Address, m.Metadata = candidate, metadata
	return dir.Mutate(p.address, m)
}

// Execute issues an arbitrary organ mutation on behalf of a nominator.
func (p *SimpleNomination) Execute(dir Directory, caller ir.Principal, m organ.Mutation) (int, error) {
	if err := p.requireMember(dir, p.cfg.Nominators, caller, "execute"); err != nil {
		return 0, err
	}
	return dir.Mutate(p.address, p.resolve(m))
}
