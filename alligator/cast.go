package alligator

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-alligator/inter"
)

// Cast kinds, used as metric labels.
const (
	kindSingle       = "single"
	kindSingleBySig  = "single_by_sig"
	kindBatched      = "batched"
	kindBatchedBySig = "batched_by_sig"
)

// CastVote casts the votes sender is entitled to through authority.
func (a *Alligator) CastVote(ctx context.Context, sender common.Address, authority inter.AuthorityChain, proposalID *big.Int, support uint8) (*big.Int, error) {
	return a.castVote(ctx, kindSingle, sender, authority, proposalID, support, "", nil)
}

func (a *Alligator) CastVoteWithReason(ctx context.Context, sender common.Address, authority inter.AuthorityChain, proposalID *big.Int, support uint8, reason string) (*big.Int, error) {
	return a.castVote(ctx, kindSingle, sender, authority, proposalID, support, reason, nil)
}

func (a *Alligator) CastVoteWithReasonAndParams(ctx context.Context, sender common.Address, authority inter.AuthorityChain,
	proposalID *big.Int, support uint8, reason string, params []byte) (*big.Int, error) {
	return a.castVote(ctx, kindSingle, sender, authority, proposalID, support, reason, params)
}

// CastVoteBySig casts on behalf of the signer of a Ballot.
func (a *Alligator) CastVoteBySig(ctx context.Context, authority inter.AuthorityChain, proposalID *big.Int, support uint8, sig []byte) (*big.Int, error) {
	signer, err := a.verifier.RecoverBallot(inter.Ballot{
		ProposalID: proposalID,
		Support:    support,
		Authority:  authority,
	}, sig)
	if err != nil {
		return nil, a.reject(err, logrus.Fields{"proposal": proposalID, "op": "castVoteBySig"})
	}
	return a.castVote(ctx, kindSingleBySig, signer, authority, proposalID, support, "", nil)
}

// CastVoteWithReasonAndParamsBySig casts on behalf of the signer of an
// ExtendedBallot.
func (a *Alligator) CastVoteWithReasonAndParamsBySig(ctx context.Context, authority inter.AuthorityChain, proposalID *big.Int,
	support uint8, reason string, params []byte, sig []byte) (*big.Int, error) {
	signer, err := a.verifier.RecoverExtendedBallot(inter.ExtendedBallot{
		ProposalID: proposalID,
		Support:    support,
		Authority:  authority,
		Reason:     reason,
		Params:     params,
	}, sig)
	if err != nil {
		return nil, a.reject(err, logrus.Fields{"proposal": proposalID, "op": "castVoteWithReasonAndParamsBySig"})
	}
	return a.castVote(ctx, kindSingleBySig, signer, authority, proposalID, support, reason, params)
}

func (a *Alligator) castVote(ctx context.Context, kind string, sender common.Address, authority inter.AuthorityChain,
	proposalID *big.Int, support uint8, reason string, params []byte) (*big.Int, error) {
	fields := logrus.Fields{"voter": sender.Hex(), "proposal": proposalID, "authority": authority}

	release, err := a.enter()
	if err != nil {
		return nil, a.reject(err, fields)
	}
	defer release()

	if support > inter.Abstain {
		return nil, a.reject(fmt.Errorf("%w: %d", inter.ErrInvalidSupport, support), fields)
	}
	if len(authority) == 0 {
		return nil, a.reject(inter.ErrEmptyAuthority, fields)
	}

	proxy := a.deriver.ProxyAddress(authority.Owner())
	fields["proxy"] = proxy.Hex()

	unlock := a.locks.lock(lockKey(proxy, proposalID))
	defer unlock()

	weight, err := a.proxyWeight(ctx, proxy, proposalID)
	if err != nil {
		return nil, a.reject(err, fields)
	}

	session := a.ledger.NewSession()
	votes, k, err := a.validator.Validate(ctx, session, proxy, sender, authority, proposalID, support, weight)
	if err != nil {
		return nil, a.reject(err, fields)
	}
	if votes.Sign() == 0 {
		return nil, a.reject(inter.ErrZeroVotesToCast, fields)
	}
	a.metrics.chains.Inc()

	if err := session.RecordSpend(ctx, k, proxy, proposalID, authority, votes, weight); err != nil {
		return nil, a.reject(err, fields)
	}
	if err := session.Commit(ctx); err != nil {
		return nil, a.reject(err, fields)
	}
	if err := a.gov.CastVoteFromAlligator(ctx, proposalID, sender, support, reason, votes, params); err != nil {
		return nil, a.reject(fmt.Errorf("forward vote: %w", err), fields)
	}

	a.metrics.casts.WithLabelValues(kind).Inc()
	a.metrics.votesCast.Add(toFloat(votes))
	a.log.WithFields(fields).WithFields(logrus.Fields{"votes": votes, "pivot": k, "support": support}).Info("Vote cast")

	a.voteCastFeed.Send(inter.VoteCastEvent{
		Proxy:      proxy,
		Voter:      sender,
		Authority:  authority.Copy(),
		ProposalID: new(big.Int).Set(proposalID),
		Support:    support,
		Votes:      new(big.Int).Set(votes),
	})
	return votes, nil
}

// CastVoteWithReasonAndParamsBatched casts through every authority chain in
// one call and forwards the combined weight as a single vote. Chains with
// nothing left to cast are skipped.
func (a *Alligator) CastVoteWithReasonAndParamsBatched(ctx context.Context, sender common.Address, authorities []inter.AuthorityChain,
	proposalID *big.Int, support uint8, reason string, params []byte) (*big.Int, error) {
	return a.castVotesBatched(ctx, kindBatched, sender, math.MaxBig256, authorities, proposalID, support, reason, params)
}

// LimitedCastVoteWithReasonAndParamsBatched is CastVoteWithReasonAndParamsBatched
// stopping once maxVotingPower is reached. The chain that crosses the limit
// is credited only with the remainder and the rest of the batch is ignored.
func (a *Alligator) LimitedCastVoteWithReasonAndParamsBatched(ctx context.Context, sender common.Address, maxVotingPower *big.Int,
	authorities []inter.AuthorityChain, proposalID *big.Int, support uint8, reason string, params []byte) (*big.Int, error) {
	return a.castVotesBatched(ctx, kindBatched, sender, maxVotingPower, authorities, proposalID, support, reason, params)
}

// CastVoteWithReasonAndParamsBatchedBySig casts a batch on behalf of the
// signer. The signed ballot carries a MaxVotingPower of 2^256-1.
func (a *Alligator) CastVoteWithReasonAndParamsBatchedBySig(ctx context.Context, authorities []inter.AuthorityChain,
	proposalID *big.Int, support uint8, reason string, params []byte, sig []byte) (*big.Int, error) {
	return a.LimitedCastVoteWithReasonAndParamsBatchedBySig(ctx, math.MaxBig256, authorities, proposalID, support, reason, params, sig)
}

// LimitedCastVoteWithReasonAndParamsBatchedBySig casts a capped batch on
// behalf of the signer of an ExtendedBallotBatched.
func (a *Alligator) LimitedCastVoteWithReasonAndParamsBatchedBySig(ctx context.Context, maxVotingPower *big.Int, authorities []inter.AuthorityChain,
	proposalID *big.Int, support uint8, reason string, params []byte, sig []byte) (*big.Int, error) {
	signer, err := a.verifier.RecoverBatched(inter.ExtendedBallotBatched{
		ProposalID:     proposalID,
		Support:        support,
		MaxVotingPower: maxVotingPower,
		Authorities:    authorities,
		Reason:         reason,
		Params:         params,
	}, sig)
	if err != nil {
		return nil, a.reject(err, logrus.Fields{"proposal": proposalID, "op": "castVotesBatchedBySig"})
	}
	return a.castVotesBatched(ctx, kindBatchedBySig, signer, maxVotingPower, authorities, proposalID, support, reason, params)
}

func (a *Alligator) castVotesBatched(ctx context.Context, kind string, sender common.Address, maxVotingPower *big.Int,
	authorities []inter.AuthorityChain, proposalID *big.Int, support uint8, reason string, params []byte) (*big.Int, error) {
	fields := logrus.Fields{"voter": sender.Hex(), "proposal": proposalID, "chains": len(authorities)}

	release, err := a.enter()
	if err != nil {
		return nil, a.reject(err, fields)
	}
	defer release()

	if support > inter.Abstain {
		return nil, a.reject(fmt.Errorf("%w: %d", inter.ErrInvalidSupport, support), fields)
	}
	if maxVotingPower == nil || maxVotingPower.Sign() < 0 {
		return nil, a.reject(fmt.Errorf("invalid max voting power %v", maxVotingPower), fields)
	}

	proxies := make([]common.Address, len(authorities))
	keys := make([]string, len(authorities))
	for i, authority := range authorities {
		if len(authority) == 0 {
			return nil, a.reject(fmt.Errorf("%w: chain %d", inter.ErrEmptyAuthority, i), fields)
		}
		proxies[i] = a.deriver.ProxyAddress(authority.Owner())
		keys[i] = lockKey(proxies[i], proposalID)
	}

	unlock := a.locks.lock(keys...)
	defer unlock()

	var (
		session = a.ledger.NewSession()
		weights = make(map[common.Address]*big.Int)
		total   = new(big.Int)
	)
	for i, authority := range authorities {
		proxy := proxies[i]
		weight, ok := weights[proxy]
		if !ok {
			weight, err = a.proxyWeight(ctx, proxy, proposalID)
			if err != nil {
				return nil, a.reject(err, fields)
			}
			weights[proxy] = weight
		}

		votes, k, err := a.validator.Validate(ctx, session, proxy, sender, authority, proposalID, support, weight)
		if err != nil {
			return nil, a.reject(fmt.Errorf("chain %d: %w", i, err), fields)
		}
		if votes.Sign() == 0 {
			a.metrics.skippedChains.Inc()
			a.log.WithFields(fields).WithField("chain", i).Debug("Exhausted chain skipped")
			continue
		}
		a.metrics.chains.Inc()

		total.Add(total, votes)
		if total.Cmp(maxVotingPower) < 0 {
			if err := session.RecordSpend(ctx, k, proxy, proposalID, authority, votes, weight); err != nil {
				return nil, a.reject(err, fields)
			}
			continue
		}
		// credit only what is left below the cap and stop
		remainder := new(big.Int).Sub(total, maxVotingPower)
		remainder.Sub(votes, remainder)
		if err := session.RecordSpend(ctx, k, proxy, proposalID, authority, remainder, weight); err != nil {
			return nil, a.reject(err, fields)
		}
		total.Set(maxVotingPower)
		break
	}

	if total.Sign() == 0 {
		return nil, a.reject(inter.ErrZeroVotesToCast, fields)
	}
	if err := session.Commit(ctx); err != nil {
		return nil, a.reject(err, fields)
	}
	if err := a.gov.CastVoteFromAlligator(ctx, proposalID, sender, support, reason, total, params); err != nil {
		return nil, a.reject(fmt.Errorf("forward vote: %w", err), fields)
	}

	a.metrics.casts.WithLabelValues(kind).Inc()
	a.metrics.votesCast.Add(toFloat(total))
	a.log.WithFields(fields).WithFields(logrus.Fields{"votes": total, "support": support}).Info("Votes cast")

	ev := inter.VotesCastEvent{
		Proxies:     proxies,
		Voter:       sender,
		Authorities: make([]inter.AuthorityChain, len(authorities)),
		ProposalID:  new(big.Int).Set(proposalID),
		Support:     support,
		Votes:       new(big.Int).Set(total),
	}
	for i, authority := range authorities {
		ev.Authorities[i] = authority.Copy()
	}
	a.votesCastFeed.Send(ev)
	return total, nil
}

func toFloat(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
