package alligator

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/rony4d/go-alligator/inter"
)

// Namespace is the JSON-RPC namespace the API is served under.
const Namespace = "alligator"

// PublicAlligatorAPI exposes the read operations and the signature based
// casts over JSON-RPC. Direct casts need an authenticated sender and are not
// exposed.
type PublicAlligatorAPI struct {
	a *Alligator
}

func NewPublicAlligatorAPI(a *Alligator) *PublicAlligatorAPI {
	return &PublicAlligatorAPI{a: a}
}

// APIs returns the RPC descriptors of the alligator.
func (a *Alligator) APIs() []rpc.API {
	return []rpc.API{{
		Namespace: Namespace,
		Version:   "1.0",
		Service:   NewPublicAlligatorAPI(a),
		Public:    true,
	}}
}

// RPCRules is the JSON form of SubdelegationRules.
type RPCRules struct {
	MaxRedelegations       hexutil.Uint64 `json:"maxRedelegations"`
	NotValidBefore         hexutil.Uint64 `json:"notValidBefore"`
	NotValidAfter          hexutil.Uint64 `json:"notValidAfter"`
	BlocksBeforeVoteCloses hexutil.Uint64 `json:"blocksBeforeVoteCloses"`
	CustomRule             common.Address `json:"customRule"`
	AllowanceType          string         `json:"allowanceType"`
	Allowance              *hexutil.Big   `json:"allowance"`
}

func toRPCRules(r inter.SubdelegationRules) *RPCRules {
	allowance := r.Allowance
	if allowance == nil {
		allowance = new(big.Int)
	}
	return &RPCRules{
		MaxRedelegations:       hexutil.Uint64(r.MaxRedelegations),
		NotValidBefore:         hexutil.Uint64(r.NotValidBefore),
		NotValidAfter:          hexutil.Uint64(r.NotValidAfter),
		BlocksBeforeVoteCloses: hexutil.Uint64(r.BlocksBeforeVoteCloses),
		CustomRule:             r.CustomRule,
		AllowanceType:          r.AllowanceType.String(),
		Allowance:              (*hexutil.Big)(new(big.Int).Set(allowance)),
	}
}

// ValidateResult is the outcome of a dry run.
type ValidateResult struct {
	Proxy       common.Address `json:"proxy"`
	VotesToCast *hexutil.Big   `json:"votesToCast"`
	Pivot       hexutil.Uint64 `json:"pivot"`
}

// BallotArgs are the arguments of a signed cast. Reason and Params are
// ignored for a plain Ballot; MaxVotingPower only applies to batches.
type BallotArgs struct {
	ProposalID     *hexutil.Big       `json:"proposalId"`
	Support        hexutil.Uint64     `json:"support"`
	Authority      []common.Address   `json:"authority,omitempty"`
	Authorities    [][]common.Address `json:"authorities,omitempty"`
	MaxVotingPower *hexutil.Big       `json:"maxVotingPower,omitempty"`
	Reason         string             `json:"reason"`
	Params         hexutil.Bytes      `json:"params"`
	Signature      hexutil.Bytes      `json:"signature"`
}

func (args BallotArgs) proposal() *big.Int {
	if args.ProposalID == nil {
		return new(big.Int)
	}
	return args.ProposalID.ToInt()
}

func (args BallotArgs) support() (uint8, error) {
	if args.Support > hexutil.Uint64(inter.Abstain) {
		return 0, inter.ErrInvalidSupport
	}
	return uint8(args.Support), nil
}

func (args BallotArgs) authorities() []inter.AuthorityChain {
	out := make([]inter.AuthorityChain, len(args.Authorities))
	for i, chain := range args.Authorities {
		out[i] = chain
	}
	return out
}

func (api *PublicAlligatorAPI) ProxyAddress(owner common.Address) common.Address {
	return api.a.ProxyAddress(owner)
}

func (api *PublicAlligatorAPI) DomainSeparator() common.Hash {
	return api.a.verifier.DomainSeparator()
}

func (api *PublicAlligatorAPI) Paused() bool {
	return api.a.Paused()
}

func (api *PublicAlligatorAPI) Owner() common.Address {
	return api.a.Owner()
}

func (api *PublicAlligatorAPI) Subdelegations(from, to common.Address) (*RPCRules, error) {
	r, err := api.a.Subdelegations(from, to)
	if err != nil {
		return nil, err
	}
	return toRPCRules(r), nil
}

func (api *PublicAlligatorAPI) VotesCast(proxy common.Address, proposalID hexutil.Big, from, to common.Address) (*hexutil.Big, error) {
	v, err := api.a.VotesCast(proxy, proposalID.ToInt(), from, to)
	if err != nil {
		return nil, err
	}
	return (*hexutil.Big)(v), nil
}

func (api *PublicAlligatorAPI) WeightCast(ctx context.Context, proposalID hexutil.Big, proxy common.Address) (*hexutil.Big, error) {
	v, err := api.a.WeightCast(ctx, proposalID.ToInt(), proxy)
	if err != nil {
		return nil, err
	}
	return (*hexutil.Big)(v), nil
}

// Validate dry-runs a single-chain cast by sender.
func (api *PublicAlligatorAPI) Validate(ctx context.Context, sender common.Address, authority []common.Address,
	proposalID hexutil.Big, support hexutil.Uint64) (*ValidateResult, error) {
	if support > hexutil.Uint64(inter.Abstain) {
		return nil, inter.ErrInvalidSupport
	}
	votes, k, err := api.a.Validate(ctx, sender, authority, proposalID.ToInt(), uint8(support))
	if err != nil {
		return nil, err
	}
	return &ValidateResult{
		Proxy:       api.a.ProxyAddress(inter.AuthorityChain(authority).Owner()),
		VotesToCast: (*hexutil.Big)(votes),
		Pivot:       hexutil.Uint64(k),
	}, nil
}

func (api *PublicAlligatorAPI) CastVoteBySig(ctx context.Context, args BallotArgs) (*hexutil.Big, error) {
	support, err := args.support()
	if err != nil {
		return nil, err
	}
	v, err := api.a.CastVoteBySig(ctx, args.Authority, args.proposal(), support, args.Signature)
	if err != nil {
		return nil, err
	}
	return (*hexutil.Big)(v), nil
}

func (api *PublicAlligatorAPI) CastVoteWithReasonAndParamsBySig(ctx context.Context, args BallotArgs) (*hexutil.Big, error) {
	support, err := args.support()
	if err != nil {
		return nil, err
	}
	v, err := api.a.CastVoteWithReasonAndParamsBySig(ctx, args.Authority, args.proposal(), support, args.Reason, args.Params, args.Signature)
	if err != nil {
		return nil, err
	}
	return (*hexutil.Big)(v), nil
}

// CastVotesBatchedBySig casts a signed batch. Without MaxVotingPower the
// batch is unlimited.
func (api *PublicAlligatorAPI) CastVotesBatchedBySig(ctx context.Context, args BallotArgs) (*hexutil.Big, error) {
	support, err := args.support()
	if err != nil {
		return nil, err
	}
	var v *big.Int
	if args.MaxVotingPower == nil {
		v, err = api.a.CastVoteWithReasonAndParamsBatchedBySig(ctx, args.authorities(), args.proposal(), support, args.Reason, args.Params, args.Signature)
	} else {
		v, err = api.a.LimitedCastVoteWithReasonAndParamsBatchedBySig(ctx, args.MaxVotingPower.ToInt(), args.authorities(),
			args.proposal(), support, args.Reason, args.Params, args.Signature)
	}
	if err != nil {
		return nil, err
	}
	return (*hexutil.Big)(v), nil
}

// RPCVoteCast is the notification pushed to VoteCast subscribers.
type RPCVoteCast struct {
	Proxy      common.Address   `json:"proxy"`
	Voter      common.Address   `json:"voter"`
	Authority  []common.Address `json:"authority"`
	ProposalID *hexutil.Big     `json:"proposalId"`
	Support    hexutil.Uint64   `json:"support"`
	Votes      *hexutil.Big     `json:"votes"`
}

// VoteCast streams every committed single-chain cast.
func (api *PublicAlligatorAPI) VoteCast(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return &rpc.Subscription{}, rpc.ErrNotificationsUnsupported
	}
	rpcSub := notifier.CreateSubscription()

	go func() {
		ch := make(chan inter.VoteCastEvent, 16)
		sub := api.a.SubscribeVoteCast(ch)
		defer sub.Unsubscribe()

		for {
			select {
			case ev := <-ch:
				notifier.Notify(rpcSub.ID, &RPCVoteCast{
					Proxy:      ev.Proxy,
					Voter:      ev.Voter,
					Authority:  ev.Authority,
					ProposalID: (*hexutil.Big)(ev.ProposalID),
					Support:    hexutil.Uint64(ev.Support),
					Votes:      (*hexutil.Big)(ev.Votes),
				})
			case <-sub.Err():
				return
			case <-rpcSub.Err():
				return
			case <-notifier.Closed():
				return
			}
		}
	}()
	return rpcSub, nil
}
