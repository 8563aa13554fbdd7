package procedure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kelsen/internal/digest"
	"github.com/roach88/kelsen/internal/ir"
	"github.com/roach88/kelsen/internal/organ"
	"github.com/roach88/kelsen/internal/permission"
)

const t0 = int64(1_700_000_000)

type voteFixture struct {
	dir    *memDirectory
	vote   *Vote
	target ir.Principal
}

func setupVote(t *testing.T, quorum int64) voteFixture {
	t.Helper()
	dir := newMemDirectory()
	voters := dir.addOrgan(t, "voters", alice, bob, carol)
	vetoers := dir.addOrgan(t, "vetoers", dave)
	enactors := dir.addOrgan(t, "enactors", alice, eve)
	target := dir.addOrgan(t, "members")

	addr := ir.PrincipalFromName("vote")
	v, err := NewVote(addr, digest.Digest{}, VoteConfig{
		Voters: voters, Vetoers: vetoers, Enactors: enactors, Target: target,
		QuorumPercent: quorum, VoteDuration: 3600,
	})
	require.NoError(t, err)
	dir.grant(t, target, addr, permission.CanAddEntry)
	return voteFixture{dir: dir, vote: v, target: target}
}

func addEve() organ.Mutation {
	return organ.Mutation{Kind: organ.KindAddEntry, Address: eve, Metadata: digest.Sum([]byte("eve"))}
}

func TestProposeDefaultsDeadlineAndTarget(t *testing.T) {
	f := setupVote(t, 0)

	id, err := f.vote.Propose(f.dir, alice, addEve(), 0, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), id)

	p, err := f.vote.Proposal(id)
	require.NoError(t, err)
	assert.Equal(t, t0+3600, p.Deadline)
	assert.Equal(t, f.target, p.Payload.Target)
	assert.Equal(t, alice, p.Proposer)

	status, err := f.vote.Status(id, t0)
	require.NoError(t, err)
	assert.Equal(t, StatusProposed, status)
}

func TestProposeErrors(t *testing.T) {
	f := setupVote(t, 0)

	_, err := f.vote.Propose(f.dir, dave, addEve(), 0, t0)
	assert.True(t, ir.IsUnauthorized(err), "only voters propose")

	_, err = f.vote.Propose(f.dir, alice, addEve(), t0, t0)
	assert.True(t, ir.IsValidation(err), "deadline must be in the future")

	_, err = f.vote.Propose(f.dir, alice, organ.Mutation{Kind: "dissolve"}, 0, t0)
	assert.True(t, ir.IsValidation(err))

	assert.Equal(t, 0, f.vote.ProposalCount())
}

func TestDoubleVoteRejected(t *testing.T) {
	f := setupVote(t, 0)
	id, err := f.vote.Propose(f.dir, alice, addEve(), t0+100, t0)
	require.NoError(t, err)

	require.NoError(t, f.vote.Vote(f.dir, bob, id, true, t0+1))

	err = f.vote.Vote(f.dir, bob, id, false, t0+2)
	require.Error(t, err)
	assert.True(t, ir.IsAlreadyVoted(err))

	p, _ := f.vote.Proposal(id)
	assert.Equal(t, []ir.Principal{bob}, p.VotesFor)
	assert.Empty(t, p.VotesAgainst)
}

func TestVoteErrors(t *testing.T) {
	f := setupVote(t, 0)
	id, err := f.vote.Propose(f.dir, alice, addEve(), t0+100, t0)
	require.NoError(t, err)

	assert.True(t, ir.IsUnauthorized(f.vote.Vote(f.dir, dave, id, true, t0)))
	assert.True(t, ir.IsNotFound(f.vote.Vote(f.dir, bob, 7, true, t0)))
	assert.True(t, ir.IsExpired(f.vote.Vote(f.dir, bob, id, true, t0+101)))
	assert.NoError(t, f.vote.Vote(f.dir, bob, id, true, t0+100), "the deadline itself is still open")
}

func TestVetoBlocksEnactmentForever(t *testing.T) {
	f := setupVote(t, 0)
	deadline := t0 + 100
	id, err := f.vote.Propose(f.dir, alice, addEve(), deadline, t0)
	require.NoError(t, err)

	require.NoError(t, f.vote.Vote(f.dir, alice, id, true, t0+1))
	require.NoError(t, f.vote.Vote(f.dir, bob, id, true, t0+2))
	require.NoError(t, f.vote.Vote(f.dir, carol, id, false, t0+3))
	require.NoError(t, f.vote.Veto(f.dir, dave, id, t0+50))

	for _, now := range []int64{deadline + 1, deadline + 1000} {
		_, err := f.vote.Enact(f.dir, alice, id, now)
		require.Error(t, err)
		assert.True(t, ir.IsUnauthorized(err))
	}
	assert.Equal(t, 0, f.dir.organs[f.target].EntriesLength())
	assert.Empty(t, f.dir.applied)

	status, _ := f.vote.Status(id, deadline+1)
	assert.Equal(t, StatusVetoed, status)

	assert.True(t, ir.IsUnauthorized(f.vote.Vote(f.dir, carol, id, true, t0+60)), "no votes on vetoed proposals")
	assert.NoError(t, f.vote.Veto(f.dir, dave, id, t0+60), "repeat veto is a no-op")
}

func TestVetoErrors(t *testing.T) {
	f := setupVote(t, 0)
	id, err := f.vote.Propose(f.dir, alice, addEve(), t0+100, t0)
	require.NoError(t, err)

	assert.True(t, ir.IsUnauthorized(f.vote.Veto(f.dir, alice, id, t0)))
	assert.True(t, ir.IsExpired(f.vote.Veto(f.dir, dave, id, t0+101)))
	assert.True(t, ir.IsNotFound(f.vote.Veto(f.dir, dave, 3, t0)))
}

func TestVetoWindowShorterThanVote(t *testing.T) {
	f := setupVote(t, 0)
	cfg := f.vote.Config()
	cfg.VetoDuration = 30
	v, err := NewVote(f.vote.Address(), digest.Digest{}, cfg)
	require.NoError(t, err)

	late, err := v.Propose(f.dir, alice, addEve(), t0+100, t0)
	require.NoError(t, err)
	assert.True(t, ir.IsExpired(v.Veto(f.dir, dave, late, t0+31)), "veto window closed before the vote")
	require.NoError(t, v.Vote(f.dir, bob, late, true, t0+31), "voting stays open")

	early, err := v.Propose(f.dir, alice, addEve(), t0+100, t0)
	require.NoError(t, err)
	require.NoError(t, v.Veto(f.dir, dave, early, t0+30))
	status, err := v.Status(early, t0+30)
	require.NoError(t, err)
	assert.Equal(t, StatusVetoed, status)
}

func TestVoteWithoutVetoers(t *testing.T) {
	f := setupVote(t, 0)
	cfg := f.vote.Config()
	cfg.Vetoers = ir.ZeroPrincipal
	v, err := NewVote(f.vote.Address(), digest.Digest{}, cfg)
	require.NoError(t, err)

	id, err := v.Propose(f.dir, alice, addEve(), t0+100, t0)
	require.NoError(t, err)
	err = v.Veto(f.dir, dave, id, t0)
	assert.True(t, ir.IsUnauthorized(err))
	assert.Contains(t, err.Error(), "no vetoers")

	require.NoError(t, v.Vote(f.dir, bob, id, true, t0+1))
	_, err = v.Enact(f.dir, alice, id, t0+101)
	require.NoError(t, err)
	assert.True(t, f.dir.organs[f.target].IsEntry(eve))
}

func TestEnactAfterDeadline(t *testing.T) {
	f := setupVote(t, 0)
	id, err := f.vote.Propose(f.dir, alice, addEve(), t0+100, t0)
	require.NoError(t, err)
	require.NoError(t, f.vote.Vote(f.dir, alice, id, true, t0+1))

	status, _ := f.vote.Status(id, t0+1)
	assert.Equal(t, StatusVoting, status)

	_, err = f.vote.Enact(f.dir, alice, id, t0+50)
	assert.True(t, ir.IsValidation(err), "still open and no quorum configured")

	_, err = f.vote.Enact(f.dir, bob, id, t0+100)
	assert.True(t, ir.IsUnauthorized(err), "bob is not an enactor")

	i, err := f.vote.Enact(f.dir, eve, id, t0+100)
	require.NoError(t, err)
	assert.Equal(t, 0, i)
	assert.True(t, f.dir.organs[f.target].IsEntry(eve))

	_, err = f.vote.Enact(f.dir, alice, id, t0+200)
	assert.True(t, ir.IsAlreadyEnacted(err))
	assert.True(t, ir.IsAlreadyEnacted(f.vote.Vote(f.dir, bob, id, true, t0+99)))
	assert.True(t, ir.IsAlreadyEnacted(f.vote.Veto(f.dir, dave, id, t0+99)))

	p, _ := f.vote.Proposal(id)
	assert.True(t, p.Enacted)
	assert.Equal(t, t0+100, p.EnactedAt)
	status, _ = f.vote.Status(id, t0+200)
	assert.Equal(t, StatusEnacted, status)
}

func TestEnactEarlyWithQuorum(t *testing.T) {
	f := setupVote(t, 60)
	id, err := f.vote.Propose(f.dir, alice, addEve(), t0+100, t0)
	require.NoError(t, err)

	require.NoError(t, f.vote.Vote(f.dir, alice, id, true, t0+1))
	_, err = f.vote.Enact(f.dir, alice, id, t0+2)
	assert.True(t, ir.IsValidation(err), "1 of 3 voters is below 60%")

	require.NoError(t, f.vote.Vote(f.dir, bob, id, true, t0+3))
	_, err = f.vote.Enact(f.dir, alice, id, t0+4)
	require.NoError(t, err)
	assert.True(t, f.dir.organs[f.target].IsEntry(eve))
}

func TestTieExpiresAfterDeadline(t *testing.T) {
	f := setupVote(t, 50)
	id, err := f.vote.Propose(f.dir, alice, addEve(), t0+100, t0)
	require.NoError(t, err)
	require.NoError(t, f.vote.Vote(f.dir, alice, id, true, t0+1))
	require.NoError(t, f.vote.Vote(f.dir, bob, id, false, t0+2))

	_, err = f.vote.Enact(f.dir, alice, id, t0+3)
	assert.True(t, ir.IsValidation(err), "quorum reached but not passing yet")

	_, err = f.vote.Enact(f.dir, alice, id, t0+100)
	assert.True(t, ir.IsValidation(err), "tie at the deadline can still be broken")

	_, err = f.vote.Enact(f.dir, alice, id, t0+101)
	assert.True(t, ir.IsExpired(err))

	status, _ := f.vote.Status(id, t0+101)
	assert.Equal(t, StatusExpired, status)
	assert.Equal(t, 0, f.dir.organs[f.target].EntriesLength())
}

func TestEnactFailureLeavesProposalOpen(t *testing.T) {
	f := setupVote(t, 0)
	payload := organ.Mutation{Kind: organ.KindSetMetadata, Metadata: digest.Sum([]byte("x"))}
	id, err := f.vote.Propose(f.dir, alice, payload, t0+10, t0)
	require.NoError(t, err)
	require.NoError(t, f.vote.Vote(f.dir, alice, id, true, t0+1))

	_, err = f.vote.Enact(f.dir, alice, id, t0+10)
	assert.True(t, ir.IsUnauthorized(err), "vote procedure lacks CAN_SET_METADATA")

	p, _ := f.vote.Proposal(id)
	assert.False(t, p.Enacted)
	assert.Equal(t, -1, p.Result)

	// Only the first live slot held by a procedure counts, so widen it.
	require.NoError(t, f.dir.organs[f.target].ReplaceProcedure(admin, 1, f.vote.Address(),
		permission.CanAddEntry|permission.CanSetMetadata))
	_, err = f.vote.Enact(f.dir, alice, id, t0+11)
	require.NoError(t, err)
}

func TestNewVoteValidation(t *testing.T) {
	full := VoteConfig{Voters: alice, Vetoers: alice, Enactors: alice, Target: alice}

	cfg := full
	cfg.Enactors = ir.ZeroPrincipal
	_, err := NewVote(bob, digest.Digest{}, cfg)
	assert.True(t, ir.IsValidation(err))

	cfg = full
	cfg.QuorumPercent = 101
	_, err = NewVote(bob, digest.Digest{}, cfg)
	assert.True(t, ir.IsValidation(err))

	cfg = full
	cfg.VoteDuration = -1
	_, err = NewVote(bob, digest.Digest{}, cfg)
	assert.True(t, ir.IsValidation(err))

	cfg = full
	cfg.VetoDuration = -1
	_, err = NewVote(bob, digest.Digest{}, cfg)
	assert.True(t, ir.IsValidation(err))

	cfg = full
	cfg.Vetoers = ir.ZeroPrincipal
	_, err = NewVote(bob, digest.Digest{}, cfg)
	assert.NoError(t, err, "vetoers are optional")
}

func TestProposalCopyIsIndependent(t *testing.T) {
	f := setupVote(t, 0)
	id, _ := f.vote.Propose(f.dir, alice, addEve(), 0, t0)
	require.NoError(t, f.vote.Vote(f.dir, alice, id, true, t0))

	p, _ := f.vote.Proposal(id)
	p.VotesFor[0] = eve
	again, _ := f.vote.Proposal(id)
	assert.Equal(t, alice, again.VotesFor[0])
}
