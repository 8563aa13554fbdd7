package organ

import (
	"slices"

	"github.com/roach88/kelsen/internal/digest"
	"github.com/roach88/kelsen/internal/ir"
)

// State is a read-only copy of an organ, used for inspection output and
// scenario assertions.
type State struct {
	Address    ir.Principal    `json:"address" yaml:"address"`
	Metadata   digest.Digest   `json:"metadata" yaml:"metadata"`
	Entries    []Entry         `json:"entries" yaml:"entries"`
	Procedures []ProcedureSlot `json:"procedures" yaml:"procedures"`
}

// Snapshot copies the organ's observable state.
func (o *Organ) Snapshot() State {
	return State{
		Address:    o.address,
		Metadata:   o.metadata,
		Entries:    slices.Clone(o.entries),
		Procedures: slices.Clone(o.procedures),
	}
}
