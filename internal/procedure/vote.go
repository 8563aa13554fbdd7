package procedure

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/roach88/kelsen/internal/digest"
	"github.com/roach88/kelsen/internal/ir"
	"github.com/roach88/kelsen/internal/organ"
	"github.com/roach88/kelsen/internal/registry"
)

// VoteConfig configures a Vote procedure.
type VoteConfig struct {
	Voters   ir.Principal `json:"voters"`
	Vetoers  ir.Principal `json:"vetoers"` // zero disables vetoing
	Enactors ir.Principal `json:"enactors"`
	Target   ir.Principal `json:"target"`

	// QuorumPercent of the voters organ's live entries that must have
	// voted before a proposal may be enacted ahead of its deadline.
	// Zero disables early enactment.
	QuorumPercent int64 `json:"quorum_percent"`

	// VoteDuration in seconds, used when a proposal names no deadline.
	VoteDuration int64 `json:"vote_duration"`

	// VetoDuration in seconds after a proposal is made during which it may
	// be vetoed. Zero keeps the veto window open until the vote deadline.
	VetoDuration int64 `json:"veto_duration"`
}

// Status is the lifecycle state of a proposal. It is derived on read from
// the stored record and the supplied time.
type Status string

const (
	StatusProposed Status = "Proposed"
	StatusVoting   Status = "Voting"
	StatusEnacted  Status = "Enacted"
	StatusVetoed   Status = "Vetoed"
	StatusExpired  Status = "Expired"
)

// Proposal is one pending organ mutation put to a vote.
type Proposal struct {
	ID           int64          `json:"id"`
	Proposer     ir.Principal   `json:"proposer"`
	Payload      organ.Mutation `json:"payload"`
	VotesFor     []ir.Principal `json:"votes_for"`
	VotesAgainst []ir.Principal `json:"votes_against"`
	Vetoed       bool           `json:"vetoed"`
	VetoedBy     ir.Principal   `json:"vetoed_by"`
	CreatedAt    int64          `json:"created_at"`
	Deadline     int64          `json:"deadline"`
	Enacted      bool           `json:"enacted"`
	EnactedAt    int64          `json:"enacted_at"`
	Result       int            `json:"result"`
}

func (p *Proposal) key() string { return strconv.FormatInt(p.ID, 10) }

func (p *Proposal) hasVoted(voter ir.Principal) bool {
	return slices.Contains(p.VotesFor, voter) || slices.Contains(p.VotesAgainst, voter)
}

func (p *Proposal) passing() bool {
	return len(p.VotesFor) > len(p.VotesAgainst)
}

// Vote runs proposal / vote / veto / enact over organ mutations.
type Vote struct {
	base
	cfg       VoteConfig
	proposals []*Proposal
}

// NewVote validates cfg and builds the procedure.
func NewVote(address ir.Principal, metadata digest.Digest, cfg VoteConfig) (*Vote, error) {
	organs := []struct {
		field string
		addr  ir.Principal
	}{
		{"voters", cfg.Voters}, {"enactors", cfg.Enactors}, {"target", cfg.Target},
	}
	for _, o := range organs {
		if err := requireOrgan(o.field, o.addr); err != nil {
			return nil, err
		}
	}
	if cfg.QuorumPercent < 0 || cfg.QuorumPercent > 100 {
		return nil, ir.NewValidation("quorum_percent", fmt.Sprintf("quorum %d is not a percentage", cfg.QuorumPercent))
	}
	if cfg.VoteDuration < 0 {
		return nil, ir.NewValidation("vote_duration", "vote duration must not be negative")
	}
	if cfg.VetoDuration < 0 {
		return nil, ir.NewValidation("veto_duration", "veto duration must not be negative")
	}
	return &Vote{
		base: base{address: address, kind: registry.KindVote, metadata: metadata, target: cfg.Target},
		cfg:  cfg,
	}, nil
}

// Config returns the procedure configuration.
func (v *Vote) Config() VoteConfig { return v.cfg }

// ProposalCount returns how many proposals were made.
func (v *Vote) ProposalCount() int { return len(v.proposals) }

// Proposal returns a copy of proposal id.
func (v *Vote) Proposal(id int64) (Proposal, error) {
	p, err := v.lookup(id)
	if err != nil {
		return Proposal{}, err
	}
	cp := *p
	cp.VotesFor = slices.Clone(p.VotesFor)
	cp.VotesAgainst = slices.Clone(p.VotesAgainst)
	return cp, nil
}

func (v *Vote) lookup(id int64) (*Proposal, error) {
	if id < 0 || id >= int64(len(v.proposals)) {
		return nil, ir.NewNotFound("proposal", strconv.FormatInt(id, 10)).With("procedure", v.address.Hex())
	}
	return v.proposals[id], nil
}

// Status derives the state of proposal id at time now.
func (v *Vote) Status(id int64, now int64) (Status, error) {
	p, err := v.lookup(id)
	if err != nil {
		return "", err
	}
	switch {
	case p.Enacted:
		return StatusEnacted, nil
	case p.Vetoed:
		return StatusVetoed, nil
	case now > p.Deadline && !p.passing():
		return StatusExpired, nil
	case len(p.VotesFor)+len(p.VotesAgainst) == 0:
		return StatusProposed, nil
	default:
		return StatusVoting, nil
	}
}

// Propose records a new proposal and returns its id. A zero deadline means
// now plus the configured vote duration.
func (v *Vote) Propose(dir Directory, caller ir.Principal, payload organ.Mutation, deadline, now int64) (int64, error) {
	if err := v.requireMember(dir, v.cfg.Voters, caller, "propose"); err != nil {
		return 0, err
	}
	if !payload.Kind.Valid() {
		return 0, ir.NewValidation("payload", fmt.Sprintf("unknown mutation kind %q", payload.Kind))
	}
	if deadline == 0 {
		deadline = now + v.cfg.VoteDuration
	}
	if deadline <= now {
		return 0, ir.NewValidation("deadline", fmt.Sprintf("deadline %d is not after %d", deadline, now))
	}

	p := &Proposal{
		ID:        int64(len(v.proposals)),
		Proposer:  caller,
		Payload:   v.resolve(payload),
		CreatedAt: now,
		Deadline:  deadline,
		Result:    -1,
	}
	v.proposals = append(v.proposals, p)
	return p.ID, nil
}

// Vote records caller's ballot on proposal id.
func (v *Vote) Vote(dir Directory, caller ir.Principal, id int64, inFavor bool, now int64) error {
	if err := v.requireMember(dir, v.cfg.Voters, caller, "vote"); err != nil {
		return err
	}
	p, err := v.lookup(id)
	if err != nil {
		return err
	}
	switch {
	case p.Enacted:
		return ir.NewAlreadyEnacted(p.key())
	case p.Vetoed:
		return ir.NewUnauthorized(caller, "vote").With("proposal", p.key()).With("reason", "vetoed")
	case now > p.Deadline:
		return ir.NewExpired(p.key(), p.Deadline)
	case p.hasVoted(caller):
		return ir.NewAlreadyVoted(caller, p.key())
	}

	if inFavor {
		p.VotesFor = append(p.VotesFor, caller)
	} else {
		p.VotesAgainst = append(p.VotesAgainst, caller)
	}
	return nil
}

// Veto permanently blocks proposal id. Vetoing twice is a no-op.
func (v *Vote) Veto(dir Directory, caller ir.Principal, id int64, now int64) error {
	if ir.IsZero(v.cfg.Vetoers) {
		return ir.NewUnauthorized(caller, "veto").With("procedure", v.address.Hex()).With("reason", "no vetoers")
	}
	if err := v.requireMember(dir, v.cfg.Vetoers, caller, "veto"); err != nil {
		return err
	}
	p, err := v.lookup(id)
	if err != nil {
		return err
	}
	switch {
	case p.Enacted:
		return ir.NewAlreadyEnacted(p.key())
	case p.Vetoed:
		return nil
	case now > v.vetoDeadline(p):
		return ir.NewExpired(p.key(), v.vetoDeadline(p))
	}
	p.Vetoed, p.VetoedBy = true, caller
	return nil
}

// Enact applies proposal id's payload to its organ. It needs the deadline
// to have passed (or quorum to be reached) and strictly more votes for than
// against. Returns the index reported by the organ.
func (v *Vote) Enact(dir Directory, caller ir.Principal, id int64, now int64) (int, error) {
	if err := v.requireMember(dir, v.cfg.Enactors, caller, "enact"); err != nil {
		return 0, err
	}
	p, err := v.lookup(id)
	if err != nil {
		return 0, err
	}
	if p.Enacted {
		return 0, ir.NewAlreadyEnacted(p.key())
	}
	if p.Vetoed {
		return 0, ir.NewUnauthorized(caller, "enact").With("proposal", p.key()).With("reason", "vetoed")
	}

	if now < p.Deadline {
		reached, err := v.quorumReached(dir, p)
		if err != nil {
			return 0, err
		}
		if !reached {
			return 0, ir.NewValidation("proposal", fmt.Sprintf("proposal %s is open until %d and quorum is not reached", p.key(), p.Deadline))
		}
	}
	if !p.passing() {
		if now > p.Deadline {
			return 0, ir.NewExpired(p.key(), p.Deadline)
		}
		return 0, ir.NewValidation("proposal", fmt.Sprintf("proposal %s has %d for and %d against", p.key(), len(p.VotesFor), len(p.VotesAgainst)))
	}

	result, err := dir.Mutate(v.address, p.Payload)
	if err != nil {
		return 0, err
	}
	p.Enacted, p.EnactedAt, p.Result = true, now, result
	return result, nil
}

func (v *Vote) quorumReached(dir Directory, p *Proposal) (bool, error) {
	if v.cfg.QuorumPercent == 0 {
		return false, nil
	}
	voters, err := dir.Organ(v.cfg.Voters)
	if err != nil {
		return false, err
	}
	cast := int64(len(p.VotesFor) + len(p.VotesAgainst))
	return cast*100 >= v.cfg.QuorumPercent*int64(len(voters.LiveEntries())), nil
}

// vetoDeadline is the last moment proposal p may be vetoed.
func (v *Vote) vetoDeadline(p *Proposal) int64 {
	if v.cfg.VetoDuration == 0 {
		return p.Deadline
	}
	return p.CreatedAt + v.cfg.VetoDuration
}
