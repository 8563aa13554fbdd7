// Package charter describes the initial shape of a governed system and
// deploys it.
//
// A charter is written in CUE. It names the procedure factories to
// register, the organs to create, the procedures to build from those
// factories, which procedures each organ trusts (and with what
// permissions) and the organ entries to seed. Apply turns a compiled
// Charter into engine calls made by a single deployer, who holds the
// bootstrap slot of every organ until the final step revokes it.
package charter

import (
	"github.com/roach88/kelsen/internal/ir"
	"github.com/roach88/kelsen/internal/permission"
	"github.com/roach88/kelsen/internal/registry"
)

// Charter is a compiled charter. Slices keep declaration order, which is
// also the order Apply deploys in. Line fields carry the CUE source line
// and stay zero for charters built in Go.
type Charter struct {
	Factories  []Factory
	Organs     []Organ
	Procedures []Procedure
	Install    []Install
	Entries    []Entry

	// KeepBootstrap leaves the deployer's slot 0 on every organ.
	KeepBootstrap bool
}

// Factory registers a procedure kind under a name.
type Factory struct {
	Name string
	Kind registry.Kind

	// Address is optional; zero lets the engine derive one.
	Address ir.Principal
	Version int64

	Line int
}

// Organ is created with Name anchored as its metadata, or Metadata when
// given explicitly.
type Organ struct {
	Key      string
	Name     string
	Metadata string

	Line int
}

// Procedure is built by a registered factory. Organ fields hold organ
// keys, not addresses.
type Procedure struct {
	Key     string
	Factory string
	Name    string

	Nominators string
	Voters     string
	Vetoers    string
	Enactors   string
	Target     string

	QuorumPercent    int64
	VoteDuration     int64
	VetoDuration     int64
	NominationWindow int64
	VotingWindow     int64
	Period           int64

	Line int
}

// OrganRefs returns the procedure's organ references keyed by their
// configuration argument name. Empty references are omitted.
func (p Procedure) OrganRefs() map[string]string {
	refs := map[string]string{}
	for key, ref := range map[string]string{
		"nominators": p.Nominators,
		"voters":     p.Voters,
		"vetoers":    p.Vetoers,
		"enactors":   p.Enactors,
		"target":     p.Target,
	} {
		if ref != "" {
			refs[key] = ref
		}
	}
	return refs
}

// Params returns the non-zero integer configuration.
func (p Procedure) Params() map[string]int64 {
	params := map[string]int64{}
	for key, v := range map[string]int64{
		"quorum_percent":    p.QuorumPercent,
		"vote_duration":     p.VoteDuration,
		"veto_duration":     p.VetoDuration,
		"nomination_window": p.NominationWindow,
		"voting_window":     p.VotingWindow,
		"period":            p.Period,
	} {
		if v != 0 {
			params[key] = v
		}
	}
	return params
}

// Install grants Procedure a slot on Organ.
type Install struct {
	Organ       string
	Procedure   string
	Permissions permission.Mask

	Line int
}

// Entry seeds an organ member.
type Entry struct {
	Organ    string
	Address  ir.Principal
	Name     string
	Metadata string

	Line int
}

// Factory returns the factory named name.
func (c *Charter) Factory(name string) (Factory, bool) {
	for _, f := range c.Factories {
		if f.Name == name {
			return f, true
		}
	}
	return Factory{}, false
}

// Organ returns the organ declared under key.
func (c *Charter) Organ(key string) (Organ, bool) {
	for _, o := range c.Organs {
		if o.Key == key {
			return o, true
		}
	}
	return Organ{}, false
}

// Procedure returns the procedure declared under key.
func (c *Charter) Procedure(key string) (Procedure, bool) {
	for _, p := range c.Procedures {
		if p.Key == key {
			return p, true
		}
	}
	return Procedure{}, false
}
