package engine

import (
	"fmt"
	"slices"

	"github.com/roach88/kelsen/internal/digest"
	"github.com/roach88/kelsen/internal/ir"
	"github.com/roach88/kelsen/internal/organ"
	"github.com/roach88/kelsen/internal/procedure"
	"github.com/roach88/kelsen/internal/registry"
)

const (
	componentKelsen           = "Kelsen"
	componentOrgan            = "Organ"
	componentSimpleNomination = "SimpleNomination"
	componentVote             = "Vote"
	componentCyclicalElection = "CyclicalElection"
)

func componentName(k registry.Kind) string {
	switch k {
	case registry.KindSimpleNomination:
		return componentSimpleNomination
	case registry.KindVote:
		return componentVote
	case registry.KindCyclicalElection:
		return componentCyclicalElection
	}
	return string(k)
}

// handler executes one action. Governance failures come back as *ir.Error
// and leave the world unchanged.
type handler func(c *call, inv ir.Invocation) (ir.Object, error)

var handlers = map[string]handler{
	"Kelsen.registerProcedureFactory": registerProcedureFactory,
	"Kelsen.createOrgan":              createOrgan,
	"Kelsen.createProcedure":          createProcedure,

	"SimpleNomination.nominate": nominationHandler(nominate),
	"SimpleNomination.execute":  nominationHandler(execute),

	"Vote.propose": voteHandler(propose),
	"Vote.vote":    voteHandler(castVote),
	"Vote.veto":    voteHandler(veto),
	"Vote.enact":   voteHandler(enactProposal),

	"CyclicalElection.start":    electionHandler(startCycle),
	"CyclicalElection.nominate": electionHandler(nominateCandidate),
	"CyclicalElection.vote":     electionHandler(voteCandidate),
	"CyclicalElection.enact":    electionHandler(enactCycle),
}

func init() {
	for _, kind := range organ.Kinds {
		handlers[kind.Action()] = organHandler(kind)
	}
}

// Actions lists every action the engine dispatches, sorted.
func Actions() []string {
	out := make([]string, 0, len(handlers))
	for a := range handlers {
		out = append(out, a)
	}
	slices.Sort(out)
	return out
}

// IsAction reports whether action is dispatchable.
func IsAction(action string) bool {
	_, ok := handlers[action]
	return ok
}

// Organ actions. The caller is checked against the organ's procedure
// slots before any argument is decoded.
func organHandler(kind organ.Kind) handler {
	return func(c *call, inv ir.Invocation) (ir.Object, error) {
		o, err := c.world().Organ(inv.Target)
		if err != nil {
			return nil, err
		}
		if err := o.Authorize(inv.Caller, kind.Required(), string(kind)); err != nil {
			return nil, err
		}
		m, err := organ.ParseArgs(kind, inv.Args)
		if err != nil {
			return nil, err
		}
		m.Target = inv.Target
		index, err := m.Apply(o, inv.Caller)
		if err != nil {
			return nil, err
		}
		if kind == organ.KindSetMetadata {
			return ir.Object{}, nil
		}
		return indexResult(index), nil
	}
}

// Kelsen actions target the registry. A zero target means the registry.
func requireRegistry(w *World, target ir.Principal) error {
	if ir.IsZero(target) || target == w.registry.Address() {
		return nil
	}
	if got := w.Component(target); got != "" {
		return kindMismatch(target, componentKelsen, got)
	}
	return ir.NewNotFound("registry", target.Hex())
}

func registerProcedureFactory(c *call, inv ir.Invocation) (ir.Object, error) {
	w := c.world()
	if err := requireRegistry(w, inv.Target); err != nil {
		return nil, err
	}
	if inv.Caller != w.registry.Owner() {
		return nil, ir.NewUnauthorized(inv.Caller, "registerProcedureFactory")
	}
	name, err := stringArg(inv.Args, "name")
	if err != nil {
		return nil, err
	}
	kind, err := stringArg(inv.Args, "kind")
	if err != nil {
		return nil, err
	}
	address, err := optionalPrincipal(inv.Args, "factory")
	if err != nil {
		return nil, err
	}
	derived := ir.IsZero(address)
	if derived {
		address = w.nextAddress(w.owner)
	}
	version, err := optionalInt(inv.Args, "version", 1)
	if err != nil {
		return nil, err
	}

	if err := w.registry.Register(inv.Caller, name, registry.Kind(kind), address, version); err != nil {
		return nil, err
	}
	if derived {
		w.derive(w.owner)
	}
	return ir.Object{
		"name":    ir.String(name),
		"kind":    ir.String(kind),
		"factory": ir.String(address.Hex()),
		"version": ir.Int(version),
	}, nil
}

func createOrgan(c *call, inv ir.Invocation) (ir.Object, error) {
	w := c.world()
	if err := requireRegistry(w, inv.Target); err != nil {
		return nil, err
	}
	md, err := metadataArgs(inv.Args)
	if err != nil {
		return nil, err
	}
	o, err := w.createOrgan(inv.Caller, md)
	if err != nil {
		return nil, err
	}
	return principalResult("organ", o.Address()), nil
}

func createProcedure(c *call, inv ir.Invocation) (ir.Object, error) {
	w := c.world()
	if err := requireRegistry(w, inv.Target); err != nil {
		return nil, err
	}
	name, err := stringArg(inv.Args, "factory")
	if err != nil {
		return nil, err
	}
	f, err := w.registry.FactoryData(name)
	if err != nil {
		return nil, err
	}
	address := w.nextAddress(f.Address)
	if w.taken(address) {
		return nil, ir.NewValidation("address", address.Hex()+" is already in use")
	}
	md, err := metadataArgs(inv.Args)
	if err != nil {
		return nil, err
	}

	p, organs, err := buildProcedure(f.Kind, address, md, inv.Args)
	if err != nil {
		return nil, err
	}
	for _, ref := range organs {
		if _, err := w.Organ(ref); err != nil {
			return nil, err
		}
	}
	w.addProcedure(f, p)
	return ir.Object{
		"procedure": ir.String(address.Hex()),
		"kind":      ir.String(f.Kind),
	}, nil
}

// procedureHandler resolves the target procedure and checks its variant.
func procedureHandler[P procedure.Procedure](component string, fn func(c *call, p P, inv ir.Invocation) (ir.Object, error)) handler {
	return func(c *call, inv ir.Invocation) (ir.Object, error) {
		found, err := c.world().Procedure(inv.Target)
		if err != nil {
			return nil, err
		}
		p, ok := found.(P)
		if !ok {
			return nil, kindMismatch(inv.Target, component, componentName(found.Kind()))
		}
		return fn(c, p, inv)
	}
}

func nominationHandler(fn func(c *call, p *procedure.SimpleNomination, inv ir.Invocation) (ir.Object, error)) handler {
	return procedureHandler(componentSimpleNomination, fn)
}

func voteHandler(fn func(c *call, p *procedure.Vote, inv ir.Invocation) (ir.Object, error)) handler {
	return procedureHandler(componentVote, fn)
}

func electionHandler(fn func(c *call, p *procedure.CyclicalElection, inv ir.Invocation) (ir.Object, error)) handler {
	return procedureHandler(componentCyclicalElection, fn)
}

func nominate(c *call, p *procedure.SimpleNomination, inv ir.Invocation) (ir.Object, error) {
	candidate, err := principalArg(inv.Args, "candidate")
	if err != nil {
		return nil, err
	}
	md, err := metadataArgs(inv.Args)
	if err != nil {
		return nil, err
	}
	target, err := optionalPrincipal(inv.Args, "target")
	if err != nil {
		return nil, err
	}
	index, err := p.Nominate(c.directory(), inv.Caller, candidate, md, target)
	if err != nil {
		return nil, err
	}
	return indexResult(index), nil
}

func execute(c *call, p *procedure.SimpleNomination, inv ir.Invocation) (ir.Object, error) {
	m, err := payloadArg(inv.Args)
	if err != nil {
		return nil, err
	}
	index, err := p.Execute(c.directory(), inv.Caller, m)
	if err != nil {
		return nil, err
	}
	return indexResult(index), nil
}

func propose(c *call, p *procedure.Vote, inv ir.Invocation) (ir.Object, error) {
	m, err := payloadArg(inv.Args)
	if err != nil {
		return nil, err
	}
	deadline, err := optionalInt(inv.Args, "deadline", 0)
	if err != nil {
		return nil, err
	}
	id, err := p.Propose(c.directory(), inv.Caller, m, deadline, inv.At)
	if err != nil {
		return nil, err
	}
	prop, err := p.Proposal(id)
	if err != nil {
		return nil, err
	}
	return ir.Object{"proposal": ir.Int(id), "deadline": ir.Int(prop.Deadline)}, nil
}

func castVote(c *call, p *procedure.Vote, inv ir.Invocation) (ir.Object, error) {
	id, err := intArg(inv.Args, "proposal")
	if err != nil {
		return nil, err
	}
	inFavor, err := optionalBool(inv.Args, "in_favor", true)
	if err != nil {
		return nil, err
	}
	if err := p.Vote(c.directory(), inv.Caller, id, inFavor, inv.At); err != nil {
		return nil, err
	}
	return idResult("proposal", id), nil
}

func veto(c *call, p *procedure.Vote, inv ir.Invocation) (ir.Object, error) {
	id, err := intArg(inv.Args, "proposal")
	if err != nil {
		return nil, err
	}
	if err := p.Veto(c.directory(), inv.Caller, id, inv.At); err != nil {
		return nil, err
	}
	return idResult("proposal", id), nil
}

func enactProposal(c *call, p *procedure.Vote, inv ir.Invocation) (ir.Object, error) {
	id, err := intArg(inv.Args, "proposal")
	if err != nil {
		return nil, err
	}
	index, err := p.Enact(c.directory(), inv.Caller, id, inv.At)
	if err != nil {
		return nil, err
	}
	return ir.Object{"proposal": ir.Int(id), "index": ir.Int(index)}, nil
}

func startCycle(c *call, p *procedure.CyclicalElection, inv ir.Invocation) (ir.Object, error) {
	id, err := p.Start(c.directory(), inv.Caller, inv.At)
	if err != nil {
		return nil, err
	}
	cycle, err := p.Cycle(id)
	if err != nil {
		return nil, err
	}
	return ir.Object{
		"cycle":          ir.Int(id),
		"nomination_end": ir.Int(cycle.NominationEnd),
		"deadline":       ir.Int(cycle.Deadline),
	}, nil
}

func nominateCandidate(c *call, p *procedure.CyclicalElection, inv ir.Invocation) (ir.Object, error) {
	candidate, err := optionalPrincipal(inv.Args, "candidate")
	if err != nil {
		return nil, err
	}
	md, err := metadataArgs(inv.Args)
	if err != nil {
		return nil, err
	}
	if err := p.Nominate(c.directory(), inv.Caller, candidate, md, inv.At); err != nil {
		return nil, err
	}
	if ir.IsZero(candidate) {
		candidate = inv.Caller
	}
	return principalResult("candidate", candidate), nil
}

func voteCandidate(c *call, p *procedure.CyclicalElection, inv ir.Invocation) (ir.Object, error) {
	candidate, err := principalArg(inv.Args, "candidate")
	if err != nil {
		return nil, err
	}
	if err := p.Vote(c.directory(), inv.Caller, candidate, inv.At); err != nil {
		return nil, err
	}
	return principalResult("candidate", candidate), nil
}

func enactCycle(c *call, p *procedure.CyclicalElection, inv ir.Invocation) (ir.Object, error) {
	seat, err := p.Enact(c.directory(), inv.Caller, inv.At)
	if err != nil {
		return nil, err
	}
	cycle, err := p.Cycle(int64(p.CycleCount() - 1))
	if err != nil {
		return nil, err
	}
	return ir.Object{"index": ir.Int(seat), "winner": ir.String(cycle.Winner.Hex())}, nil
}

// buildProcedure dispatches on the factory's kind. It returns the organs
// the configuration references so the caller can check they exist.
func buildProcedure(kind registry.Kind, address ir.Principal, md digest.Digest, args ir.Object) (procedure.Procedure, []ir.Principal, error) {
	d := &configDecoder{args: args}
	var build func() (procedure.Procedure, error)
	switch kind {
	case registry.KindSimpleNomination:
		cfg := procedure.SimpleNominationConfig{
			Nominators: d.organ("nominators"),
			Target:     d.organ("target"),
		}
		build = func() (procedure.Procedure, error) { return procedure.NewSimpleNomination(address, md, cfg) }
	case registry.KindVote:
		cfg := procedure.VoteConfig{
			Voters:        d.organ("voters"),
			Vetoers:       d.organ("vetoers"),
			Enactors:      d.organ("enactors"),
			Target:        d.organ("target"),
			QuorumPercent: d.int("quorum_percent"),
			VoteDuration:  d.int("vote_duration"),
			VetoDuration:  d.int("veto_duration"),
		}
		build = func() (procedure.Procedure, error) { return procedure.NewVote(address, md, cfg) }
	case registry.KindCyclicalElection:
		cfg := procedure.CyclicalElectionConfig{
			Voters:           d.organ("voters"),
			Target:           d.organ("target"),
			NominationWindow: d.int("nomination_window"),
			VotingWindow:     d.int("voting_window"),
			Period:           d.int("period"),
		}
		build = func() (procedure.Procedure, error) { return procedure.NewCyclicalElection(address, md, cfg) }
	default:
		return nil, nil, ir.NewValidation("kind", fmt.Sprintf("unknown procedure kind %q", kind))
	}
	if d.err != nil {
		return nil, nil, d.err
	}
	p, err := build()
	if err != nil {
		return nil, nil, err
	}
	return p, d.organs, nil
}

// configDecoder reads procedure configuration arguments, keeping the
// first error.
type configDecoder struct {
	args   ir.Object
	organs []ir.Principal
	err    error
}

func (d *configDecoder) organ(key string) ir.Principal {
	p, err := optionalPrincipal(d.args, key)
	if err != nil {
		d.fail(err)
		return ir.ZeroPrincipal
	}
	if !ir.IsZero(p) {
		d.organs = append(d.organs, p)
	}
	return p
}

func (d *configDecoder) int(key string) int64 {
	n, err := optionalInt(d.args, key, 0)
	if err != nil {
		d.fail(err)
	}
	return n
}

func (d *configDecoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}
