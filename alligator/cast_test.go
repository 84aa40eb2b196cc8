package alligator

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-alligator/alligator/sigverify"
	"github.com/rony4d/go-alligator/governor"
	"github.com/rony4d/go-alligator/governor/memgov"
	"github.com/rony4d/go-alligator/inter"
)

func TestCastVote_owner(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	e := newEnv(t)
	proxy := e.fund(t, owner, 100)

	events := make(chan inter.VoteCastEvent, 1)
	sub := e.a.SubscribeVoteCast(events)
	defer sub.Unsubscribe()

	votes, err := e.a.CastVoteWithReason(ctx, owner, inter.AuthorityChain{owner}, proposal, inter.Against, "no")
	require.NoError(err)
	require.Equal(int64(100), votes.Int64())

	ev := <-events
	require.Equal(proxy, ev.Proxy)
	require.Equal(owner, ev.Voter)
	require.Equal(int64(100), ev.Votes.Int64())

	against, _, _ := e.tally(t)
	require.Equal(int64(100), against)
	records, err := e.gov.Votes(proposal)
	require.NoError(err)
	require.Len(records, 1)
	require.Equal("no", records[0].Reason)

	_, err = e.a.CastVote(ctx, owner, inter.AuthorityChain{owner}, proposal, inter.For)
	require.True(errors.Is(err, inter.ErrZeroVotesToCast), "got %v", err)
	require.Equal(float64(1), testutil.ToFloat64(e.a.metrics.casts.WithLabelValues(kindSingle)))
	require.Equal(float64(1), testutil.ToFloat64(e.a.metrics.rejections.WithLabelValues("zero_votes")))
}

func TestCastVote_relativeChain(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	e := newEnv(t)
	proxy := e.fund(t, owner, 100)
	e.delegate(t, owner, alice, inter.RelativeRules(50_000).WithMaxRedelegations(1))
	e.delegate(t, alice, bob, inter.RelativeRules(75_000))

	votes, err := e.a.CastVoteWithReasonAndParams(ctx, bob, inter.AuthorityChain{owner, alice, bob}, proposal, inter.For, "", []byte{1})
	require.NoError(err)
	require.Equal(int64(37), votes.Int64())

	for _, edge := range [][2]common.Address{{owner, alice}, {alice, bob}} {
		spent, err := e.a.VotesCast(proxy, proposal, edge[0], edge[1])
		require.NoError(err)
		require.Equal(int64(37), spent.Int64())
	}
	// the owner keeps what was not delegated
	votes, err = e.a.CastVote(ctx, owner, inter.AuthorityChain{owner}, proposal, inter.For)
	require.NoError(err)
	require.Equal(int64(63), votes.Int64())
}

func TestCastVote_rejections(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.fund(t, owner, 100)
	e.delegate(t, owner, alice, inter.RelativeRules(inter.AllowanceScale))

	tests := []struct {
		name      string
		sender    common.Address
		authority inter.AuthorityChain
		support   uint8
		err       error
	}{
		{"empty", alice, nil, inter.For, inter.ErrEmptyAuthority},
		{"support", alice, inter.AuthorityChain{owner, alice}, 3, inter.ErrInvalidSupport},
		{"not delegated", bob, inter.AuthorityChain{owner, bob}, inter.For, inter.ErrNotDelegated},
		{"wrong sender", bob, inter.AuthorityChain{owner, alice}, inter.For, inter.ErrNotDelegated},
		{"unfunded proxy", alice, inter.AuthorityChain{alice}, inter.For, inter.ErrZeroVotesToCast},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.a.CastVote(ctx, tt.sender, tt.authority, proposal, tt.support)
			require.True(t, errors.Is(err, tt.err), "got %v", err)
		})
	}

	_, err := e.a.CastVote(ctx, alice, inter.AuthorityChain{owner, alice}, big.NewInt(99), inter.For)
	require.True(t, errors.Is(err, memgov.ErrUnknownProposal), "got %v", err)

	_, forVotes, _ := e.tally(t)
	require.Zero(t, forVotes)
}

// TestCastVote_doubleSpend: the owner grants half its weight to alice, who
// fully redelegates to both bob and carol. Together they cast at most half.
func TestCastVote_doubleSpend(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	e := newEnv(t)
	e.fund(t, owner, 100)
	e.delegate(t, owner, alice, inter.RelativeRules(50_000).WithMaxRedelegations(1))
	e.delegate(t, alice, bob, inter.RelativeRules(inter.AllowanceScale))
	e.delegate(t, alice, carol, inter.RelativeRules(inter.AllowanceScale))

	votes, err := e.a.CastVote(ctx, bob, inter.AuthorityChain{owner, alice, bob}, proposal, inter.For)
	require.NoError(err)
	require.Equal(int64(50), votes.Int64())

	_, err = e.a.CastVote(ctx, carol, inter.AuthorityChain{owner, alice, carol}, proposal, inter.For)
	require.True(errors.Is(err, inter.ErrZeroVotesToCast), "got %v", err)

	_, forVotes, _ := e.tally(t)
	require.Equal(int64(50), forVotes)
}

func TestCastVote_concurrent(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	e := newEnv(t)
	proxy := e.fund(t, owner, 100)
	e.delegate(t, owner, alice, inter.RelativeRules(50_000).WithMaxRedelegations(1))

	voters := make([]common.Address, 16)
	for i := range voters {
		voters[i] = common.BigToAddress(big.NewInt(int64(0x1000 + i)))
		e.delegate(t, alice, voters[i], inter.RelativeRules(inter.AllowanceScale))
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		total   = new(big.Int)
		winners int
	)
	for _, voter := range voters {
		wg.Add(1)
		go func(voter common.Address) {
			defer wg.Done()
			votes, err := e.a.CastVote(ctx, voter, inter.AuthorityChain{owner, alice, voter}, proposal, inter.For)
			if err != nil {
				return
			}
			mu.Lock()
			total.Add(total, votes)
			winners++
			mu.Unlock()
		}(voter)
	}
	wg.Wait()

	// whoever casts first claims alice's whole half
	require.Equal(1, winners)
	require.Equal(int64(50), total.Int64())
	cast, err := e.a.WeightCast(ctx, proposal, proxy)
	require.NoError(err)
	require.Equal(int64(50), cast.Int64())
	spent, err := e.a.VotesCast(proxy, proposal, owner, alice)
	require.NoError(err)
	require.Equal(int64(50), spent.Int64())
}

// TestLimitedBatched_cap: three chains worth 40 each under a cap of 90
// record 40, 40 and 10.
func TestLimitedBatched_cap(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	e := newEnv(t)

	owners := []common.Address{common.HexToAddress("0x01"), common.HexToAddress("0x02"), common.HexToAddress("0x03")}
	proxies := make([]common.Address, len(owners))
	authorities := make([]inter.AuthorityChain, len(owners))
	for i, o := range owners {
		proxies[i] = e.fund(t, o, 100)
		e.delegate(t, o, bob, inter.AbsoluteRules(big.NewInt(40)))
		authorities[i] = inter.AuthorityChain{o, bob}
	}

	events := make(chan inter.VotesCastEvent, 1)
	sub := e.a.SubscribeVotesCast(events)
	defer sub.Unsubscribe()

	total, err := e.a.LimitedCastVoteWithReasonAndParamsBatched(ctx, bob, big.NewInt(90), authorities, proposal, inter.For, "batch", nil)
	require.NoError(err)
	require.Equal(int64(90), total.Int64())

	for i, want := range []int64{40, 40, 10} {
		cast, err := e.a.WeightCast(ctx, proposal, proxies[i])
		require.NoError(err)
		require.Equal(want, cast.Int64(), "proxy %d", i)
		spent, err := e.a.VotesCast(proxies[i], proposal, owners[i], bob)
		require.NoError(err)
		require.Equal(want, spent.Int64(), "edge %d", i)
	}

	_, forVotes, _ := e.tally(t)
	require.Equal(int64(90), forVotes)
	ev := <-events
	require.Equal(proxies, ev.Proxies)
	require.Equal(int64(90), ev.Votes.Int64())
}

func TestLimitedBatched_stopsAtCap(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	e := newEnv(t)
	e.fund(t, owner, 100)
	e.delegate(t, owner, bob, inter.RelativeRules(inter.AllowanceScale))

	// the second chain is broken but never reached
	authorities := []inter.AuthorityChain{{owner, bob}, {carol, bob}}
	total, err := e.a.LimitedCastVoteWithReasonAndParamsBatched(ctx, bob, big.NewInt(100), authorities, proposal, inter.For, "", nil)
	require.NoError(err)
	require.Equal(int64(100), total.Int64())
}

func TestBatched_skipsExhausted(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	e := newEnv(t)
	e.fund(t, owner, 100)
	e.fund(t, alice, 30)
	e.delegate(t, owner, bob, inter.RelativeRules(inter.AllowanceScale))
	e.delegate(t, alice, bob, inter.RelativeRules(inter.AllowanceScale))

	_, err := e.a.CastVote(ctx, bob, inter.AuthorityChain{owner, bob}, proposal, inter.For)
	require.NoError(err)

	authorities := []inter.AuthorityChain{{owner, bob}, {alice, bob}}
	total, err := e.a.CastVoteWithReasonAndParamsBatched(ctx, bob, authorities, proposal, inter.For, "", nil)
	require.NoError(err)
	require.Equal(int64(30), total.Int64())

	_, err = e.a.CastVoteWithReasonAndParamsBatched(ctx, bob, authorities, proposal, inter.For, "", nil)
	require.True(errors.Is(err, inter.ErrZeroVotesToCast), "got %v", err)
}

// TestBatched_sharedEdges verifies that later chains of a batch see the spend
// of earlier ones.
func TestBatched_sharedEdges(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	e := newEnv(t)
	proxy := e.fund(t, owner, 100)
	e.delegate(t, owner, alice, inter.RelativeRules(50_000).WithMaxRedelegations(1))
	e.delegate(t, owner, carol, inter.RelativeRules(50_000).WithMaxRedelegations(1))
	e.delegate(t, alice, bob, inter.RelativeRules(inter.AllowanceScale))
	e.delegate(t, carol, bob, inter.RelativeRules(inter.AllowanceScale))

	viaAlice := inter.AuthorityChain{owner, alice, bob}
	viaCarol := inter.AuthorityChain{owner, carol, bob}

	total, err := e.a.CastVoteWithReasonAndParamsBatched(ctx, bob, []inter.AuthorityChain{viaAlice, viaAlice}, proposal, inter.For, "", nil)
	require.NoError(err)
	require.Equal(int64(50), total.Int64())

	total, err = e.a.CastVoteWithReasonAndParamsBatched(ctx, bob, []inter.AuthorityChain{viaAlice, viaCarol}, proposal, inter.For, "", nil)
	require.NoError(err)
	require.Equal(int64(50), total.Int64())

	cast, err := e.a.WeightCast(ctx, proposal, proxy)
	require.NoError(err)
	require.Equal(int64(100), cast.Int64())
}

// TestBatched_allOrNothing verifies that one invalid chain discards the spend
// of every other chain of the batch.
func TestBatched_allOrNothing(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	e := newEnv(t)
	proxy := e.fund(t, owner, 100)
	e.fund(t, alice, 100)
	e.delegate(t, owner, bob, inter.RelativeRules(inter.AllowanceScale))

	authorities := []inter.AuthorityChain{{owner, bob}, {alice, bob}}
	_, err := e.a.CastVoteWithReasonAndParamsBatched(ctx, bob, authorities, proposal, inter.For, "", nil)
	require.True(errors.Is(err, inter.ErrNotDelegated), "got %v", err)

	cast, err := e.a.WeightCast(ctx, proposal, proxy)
	require.NoError(err)
	require.Zero(cast.Sign())
	_, forVotes, _ := e.tally(t)
	require.Zero(forVotes)
}

var errRefused = errors.New("weight increase refused")

// refusingGovernor rejects every weight increase that touches refused.
type refusingGovernor struct {
	*memgov.Governor
	refused common.Address
}

func (g *refusingGovernor) IncreaseWeightCasts(ctx context.Context, proposalID *big.Int, increases []governor.WeightIncrease) error {
	for _, inc := range increases {
		if inc.Account == g.refused {
			return errRefused
		}
	}
	return g.Governor.IncreaseWeightCasts(ctx, proposalID, increases)
}

// TestBatched_tallyRefusal verifies that a weight increase refused for one
// proxy leaves the weight and edge spend of every other proxy untouched.
func TestBatched_tallyRefusal(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	gov := &refusingGovernor{}
	e := newEnv(t, func(cfg *Config) {
		gov.Governor = cfg.Governor.(*memgov.Governor)
		cfg.Governor = gov
	})
	ownerProxy := e.fund(t, owner, 100)
	gov.refused = e.fund(t, alice, 100)
	e.delegate(t, owner, bob, inter.RelativeRules(50_000))
	e.delegate(t, alice, bob, inter.RelativeRules(50_000))

	authorities := []inter.AuthorityChain{{owner, bob}, {alice, bob}}
	_, err := e.a.CastVoteWithReasonAndParamsBatched(ctx, bob, authorities, proposal, inter.For, "", nil)
	require.True(errors.Is(err, errRefused), "got %v", err)
	require.Equal(1.0, testutil.ToFloat64(e.a.metrics.rejections.WithLabelValues("other")))

	for _, proxy := range []common.Address{ownerProxy, gov.refused} {
		cast, err := e.a.WeightCast(ctx, proposal, proxy)
		require.NoError(err)
		require.Zero(cast.Sign())
	}
	spent, err := e.a.VotesCast(ownerProxy, proposal, owner, bob)
	require.NoError(err)
	require.Zero(spent.Sign())
	_, forVotes, _ := e.tally(t)
	require.Zero(forVotes)

	// the owner chain still holds its full allowance
	votes, err := e.a.CastVote(ctx, bob, inter.AuthorityChain{owner, bob}, proposal, inter.For)
	require.NoError(err)
	require.Equal(int64(50), votes.Int64())
	_, forVotes, _ = e.tally(t)
	require.Equal(int64(50), forVotes)
}

func TestCastVoteBySig(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	e := newEnv(t)
	e.fund(t, owner, 100)

	key, err := crypto.GenerateKey()
	require.NoError(err)
	signer := crypto.PubkeyToAddress(key.PublicKey)
	e.delegate(t, owner, signer, inter.RelativeRules(50_000))

	v := sigverify.NewVerifier(e.a.Params())
	authority := inter.AuthorityChain{owner, signer}

	sig, err := sigverify.Sign(v.BallotDigest(inter.Ballot{ProposalID: proposal, Support: inter.For, Authority: authority}), key)
	require.NoError(err)

	// a signature over another support value recovers someone else
	_, err = e.a.CastVoteBySig(ctx, authority, proposal, inter.Against, sig)
	require.True(errors.Is(err, inter.ErrNotDelegated), "got %v", err)

	_, err = e.a.CastVoteBySig(ctx, authority, proposal, inter.For, sig[:10])
	require.True(errors.Is(err, inter.ErrInvalidSignature), "got %v", err)

	votes, err := e.a.CastVoteBySig(ctx, authority, proposal, inter.For, sig)
	require.NoError(err)
	require.Equal(int64(50), votes.Int64())

	records, err := e.gov.Votes(proposal)
	require.NoError(err)
	require.Len(records, 1)
	require.Equal(signer, records[0].Voter)
}

func TestCastVoteWithReasonAndParamsBySig(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	e := newEnv(t)

	key, err := crypto.GenerateKey()
	require.NoError(err)
	signer := crypto.PubkeyToAddress(key.PublicKey)
	e.fund(t, signer, 10)

	v := sigverify.NewVerifier(e.a.Params())
	b := inter.ExtendedBallot{
		ProposalID: proposal,
		Support:    inter.Abstain,
		Authority:  inter.AuthorityChain{signer},
		Reason:     "signed",
		Params:     []byte{0xaa},
	}
	sig, err := sigverify.Sign(v.ExtendedBallotDigest(b), key)
	require.NoError(err)

	votes, err := e.a.CastVoteWithReasonAndParamsBySig(ctx, b.Authority, b.ProposalID, b.Support, b.Reason, b.Params, sig)
	require.NoError(err)
	require.Equal(int64(10), votes.Int64())
	_, _, abstain := e.tally(t)
	require.Equal(int64(10), abstain)
}

// TestBatchedBySig_matchesDirect verifies that a signed batch has the same
// ledger effect as the same batch cast directly by the signer.
func TestBatchedBySig_matchesDirect(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)
	owners := []common.Address{common.HexToAddress("0x01"), common.HexToAddress("0x02")}

	setup := func(t *testing.T) (*testEnv, []inter.AuthorityChain) {
		e := newEnv(t)
		authorities := make([]inter.AuthorityChain, len(owners))
		for i, o := range owners {
			e.fund(t, o, 100)
			e.delegate(t, o, signer, inter.AbsoluteRules(big.NewInt(60)))
			authorities[i] = inter.AuthorityChain{o, signer}
		}
		return e, authorities
	}
	ctx := context.Background()

	t.Run("unlimited", func(t *testing.T) {
		require := require.New(t)
		direct, authorities := setup(t)
		signed, _ := setup(t)

		want, err := direct.a.CastVoteWithReasonAndParamsBatched(ctx, signer, authorities, proposal, inter.For, "r", nil)
		require.NoError(err)

		v := sigverify.NewVerifier(signed.a.Params())
		sig, err := sigverify.Sign(v.BatchedDigest(inter.ExtendedBallotBatched{
			ProposalID:     proposal,
			Support:        inter.For,
			MaxVotingPower: maxBig256(),
			Authorities:    authorities,
			Reason:         "r",
		}), key)
		require.NoError(err)
		got, err := signed.a.CastVoteWithReasonAndParamsBatchedBySig(ctx, authorities, proposal, inter.For, "r", nil, sig)
		require.NoError(err)
		require.Equal(want.Int64(), got.Int64())
		require.Equal(int64(120), got.Int64())

		for _, o := range owners {
			proxy := direct.a.ProxyAddress(o)
			a, err := direct.a.VotesCast(proxy, proposal, o, signer)
			require.NoError(err)
			b, err := signed.a.VotesCast(proxy, proposal, o, signer)
			require.NoError(err)
			require.Equal(a.Int64(), b.Int64())
		}
	})

	t.Run("limited", func(t *testing.T) {
		require := require.New(t)
		e, authorities := setup(t)
		limit := big.NewInt(70)

		v := sigverify.NewVerifier(e.a.Params())
		sig, err := sigverify.Sign(v.BatchedDigest(inter.ExtendedBallotBatched{
			ProposalID:     proposal,
			Support:        inter.For,
			MaxVotingPower: limit,
			Authorities:    authorities,
		}), key)
		require.NoError(err)

		// the cap is part of the signed payload
		_, err = e.a.LimitedCastVoteWithReasonAndParamsBatchedBySig(ctx, big.NewInt(71), authorities, proposal, inter.For, "", nil, sig)
		require.True(errors.Is(err, inter.ErrNotDelegated), "got %v", err)

		got, err := e.a.LimitedCastVoteWithReasonAndParamsBatchedBySig(ctx, limit, authorities, proposal, inter.For, "", nil, sig)
		require.NoError(err)
		require.Equal(int64(70), got.Int64())
		require.Equal(float64(1), testutil.ToFloat64(e.a.metrics.casts.WithLabelValues(kindBatchedBySig)))
	})
}

func maxBig256() *big.Int {
	return new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
}
