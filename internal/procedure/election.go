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

// CyclicalElectionConfig configures a CyclicalElection. Durations are in
// seconds.
type CyclicalElectionConfig struct {
	// Voters may start cycles, nominate, vote and enact.
	Voters ir.Principal `json:"voters"`

	// Target holds the elected seat.
	Target ir.Principal `json:"target"`

	NominationWindow int64 `json:"nomination_window"`
	VotingWindow     int64 `json:"voting_window"`

	// Period is the minimum time between two cycle starts.
	Period int64 `json:"period"`
}

// Candidate is a nominee in a cycle.
type Candidate struct {
	Address  ir.Principal  `json:"address"`
	Metadata digest.Digest `json:"metadata"`
	Votes    int           `json:"votes"`
}

// Cycle is one nomination-then-vote round.
type Cycle struct {
	ID            int64          `json:"id"`
	StartedAt     int64          `json:"started_at"`
	NominationEnd int64          `json:"nomination_end"`
	Deadline      int64          `json:"deadline"`
	Candidates    []Candidate    `json:"candidates"`
	Ballots       []ir.Principal `json:"ballots"`
	Enacted       bool           `json:"enacted"`
	Winner        ir.Principal   `json:"winner"`
}

func (c *Cycle) key() string { return "cycle " + strconv.FormatInt(c.ID, 10) }

// winner returns the unique top vote-getter, if any.
func (c *Cycle) winner() (Candidate, bool) {
	var best Candidate
	unique := false
	for _, cand := range c.Candidates {
		switch {
		case cand.Votes > best.Votes:
			best, unique = cand, true
		case cand.Votes == best.Votes:
			unique = false
		}
	}
	return best, unique && best.Votes > 0
}

// terminal reports whether the cycle can produce no further outcome.
func (c *Cycle) terminal(now int64) bool {
	if c.Enacted {
		return true
	}
	_, ok := c.winner()
	return now > c.Deadline && !ok
}

// CyclicalElection repeatedly elects one seat on its target organ. Each
// cycle enacts at most one winner.
type CyclicalElection struct {
	base
	cfg    CyclicalElectionConfig
	cycles []*Cycle

	// seat is the target entry index the winners occupy, -1 until the
	// first enactment.
	seat int
}

// NewCyclicalElection validates cfg and builds the procedure.
func NewCyclicalElection(address ir.Principal, metadata digest.Digest, cfg CyclicalElectionConfig) (*CyclicalElection, error) {
	if err := requireOrgan("voters", cfg.Voters); err != nil {
		return nil, err
	}
	if err := requireOrgan("target", cfg.Target); err != nil {
		return nil, err
	}
	if cfg.NominationWindow <= 0 || cfg.VotingWindow <= 0 {
		return nil, ir.NewValidation("window", "nomination and voting windows must be positive")
	}
	if cfg.Period < cfg.NominationWindow+cfg.VotingWindow {
		return nil, ir.NewValidation("period", fmt.Sprintf("period %d is shorter than one cycle", cfg.Period))
	}
	return &CyclicalElection{
		base: base{address: address, kind: registry.KindCyclicalElection, metadata: metadata, target: cfg.Target},
		cfg:  cfg,
		seat: -1,
	}, nil
}

// Config returns the procedure configuration.
func (e *CyclicalElection) Config() CyclicalElectionConfig { return e.cfg }

// Seat returns the target entry index held by elected winners.
func (e *CyclicalElection) Seat() (int, bool) { return e.seat, e.seat >= 0 }

// CycleCount returns how many cycles were started.
func (e *CyclicalElection) CycleCount() int { return len(e.cycles) }

// Cycle returns a copy of cycle id.
func (e *CyclicalElection) Cycle(id int64) (Cycle, error) {
	if id < 0 || id >= int64(len(e.cycles)) {
		return Cycle{}, ir.NewNotFound("cycle", strconv.FormatInt(id, 10))
	}
	c := *e.cycles[id]
	c.Candidates = slices.Clone(c.Candidates)
	c.Ballots = slices.Clone(c.Ballots)
	return c, nil
}

func (e *CyclicalElection) current() (*Cycle, error) {
	if len(e.cycles) == 0 {
		return nil, ir.NewNotFound("cycle", "current").With("procedure", e.address.Hex())
	}
	return e.cycles[len(e.cycles)-1], nil
}

// Start opens a new cycle and returns its id.
func (e *CyclicalElection) Start(dir Directory, caller ir.Principal, now int64) (int64, error) {
	if err := e.requireMember(dir, e.cfg.Voters, caller, "start"); err != nil {
		return 0, err
	}
	if len(e.cycles) > 0 {
		prev := e.cycles[len(e.cycles)-1]
		if !prev.terminal(now) {
			return 0, ir.NewValidation("cycle", prev.key()+" has not finished")
		}
		if next := prev.StartedAt + e.cfg.Period; now < next {
			return 0, ir.NewValidation("cycle", fmt.Sprintf("next cycle may start at %d", next))
		}
	}
	c := &Cycle{
		ID:            int64(len(e.cycles)),
		StartedAt:     now,
		NominationEnd: now + e.cfg.NominationWindow,
		Deadline:      now + e.cfg.NominationWindow + e.cfg.VotingWindow,
	}
	e.cycles = append(e.cycles, c)
	return c.ID, nil
}

// Nominate enters candidate (caller when zero) into the current cycle.
func (e *CyclicalElection) Nominate(dir Directory, caller, candidate ir.Principal, metadata digest.Digest, now int64) error {
	if err := e.requireMember(dir, e.cfg.Voters, caller, "nominate"); err != nil {
		return err
	}
	c, err := e.current()
	if err != nil {
		return err
	}
	if now >= c.NominationEnd {
		return ir.NewExpired(c.key()+" nominations", c.NominationEnd)
	}
	if ir.IsZero(candidate) {
		candidate = caller
	}
	if slices.ContainsFunc(c.Candidates, func(x Candidate) bool { return x.Address == candidate }) {
		return ir.NewValidation("candidate", candidate.Hex()+" is already nominated")
	}
	c.Candidates = append(c.Candidates, Candidate{Address: candidate, Metadata: metadata})
	return nil
}

// Vote casts caller's single ballot in the current cycle.
func (e *CyclicalElection) Vote(dir Directory, caller, candidate ir.Principal, now int64) error {
	if err := e.requireMember(dir, e.cfg.Voters, caller, "vote"); err != nil {
		return err
	}
	c, err := e.current()
	if err != nil {
		return err
	}
	switch {
	case c.Enacted:
		return ir.NewAlreadyEnacted(c.key())
	case now < c.NominationEnd:
		return ir.NewValidation("cycle", fmt.Sprintf("voting opens at %d", c.NominationEnd))
	case now > c.Deadline:
		return ir.NewExpired(c.key(), c.Deadline)
	case slices.Contains(c.Ballots, caller):
		return ir.NewAlreadyVoted(caller, c.key())
	}
	i := slices.IndexFunc(c.Candidates, func(x Candidate) bool { return x.Address == candidate })
	if i < 0 {
		return ir.NewNotFound("candidate", candidate.Hex())
	}
	c.Candidates[i].Votes++
	c.Ballots = append(c.Ballots, caller)
	return nil
}

// Enact seats the current cycle's winner on the target organ and returns
// the seat index. A tie or an empty ballot box expires the cycle.
func (e *CyclicalElection) Enact(dir Directory, caller ir.Principal, now int64) (int, error) {
	if err := e.requireMember(dir, e.cfg.Voters, caller, "enact"); err != nil {
		return 0, err
	}
	c, err := e.current()
	if err != nil {
		return 0, err
	}
	if c.Enacted {
		return 0, ir.NewAlreadyEnacted(c.key())
	}
	if now < c.Deadline {
		return 0, ir.NewValidation("cycle", fmt.Sprintf("%s is open until %d", c.key(), c.Deadline))
	}
	w, ok := c.winner()
	if !ok {
		return 0, ir.NewExpired(c.key(), c.Deadline).With("reason", "no unique winner")
	}

	// The seat is reused only while it still holds the last winner; an
	// index someone else took over gets a fresh seat instead.
	m := organ.Mutation{Kind: organ.KindAddEntry, Target: e.target, Address: w.Address, Metadata: w.Metadata}
	if holder, ok := e.holder(); ok && e.seat >= 0 {
		view, err := dir.Organ(e.target)
		if err != nil {
			return 0, err
		}
		if entry, err := view.Entry(e.seat); err == nil && !entry.IsEmpty() && entry.Address == holder {
			m.Kind, m.Index = organ.KindReplaceEntry, e.seat
		}
	}
	seat, err := dir.Mutate(e.address, m)
	if err != nil {
		return 0, err
	}
	e.seat = seat
	c.Enacted, c.Winner = true, w.Address
	return seat, nil
}

// holder returns the winner of the last enacted cycle.
func (e *CyclicalElection) holder() (ir.Principal, bool) {
	for i := len(e.cycles) - 1; i >= 0; i-- {
		if c := e.cycles[i]; c.Enacted {
			return c.Winner, true
		}
	}
	return ir.ZeroPrincipal, false
}
