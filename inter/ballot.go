package inter

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Support values understood by the tally system.
const (
	Against uint8 = 0
	For     uint8 = 1
	Abstain uint8 = 2
)

// Ballot is the payload signed for a single-chain vote without reason.
type Ballot struct {
	ProposalID *big.Int
	Support    uint8
	Authority  AuthorityChain
}

// ExtendedBallot is the payload signed for a single-chain vote carrying a
// reason and tally params.
type ExtendedBallot struct {
	ProposalID *big.Int
	Support    uint8
	Authority  AuthorityChain
	Reason     string
	Params     []byte
}

// ExtendedBallotBatched is the payload signed for a batched vote. A
// MaxVotingPower of 2^256-1 stands for the unlimited batch.
type ExtendedBallotBatched struct {
	ProposalID     *big.Int
	Support        uint8
	MaxVotingPower *big.Int
	Authorities    []AuthorityChain
	Reason         string
	Params         []byte
}

// SubDelegationEvent is emitted for every single subdelegation.
type SubDelegationEvent struct {
	From  common.Address
	To    common.Address
	Rules SubdelegationRules
}

// SubDelegationsEvent is emitted for batched subdelegations. Rules holds
// either a single entry shared by all targets or one entry per target.
type SubDelegationsEvent struct {
	From    common.Address
	Targets []common.Address
	Rules   []SubdelegationRules
}

// VoteCastEvent is the audit record of a single-chain cast.
type VoteCastEvent struct {
	Proxy      common.Address
	Voter      common.Address
	Authority  AuthorityChain
	ProposalID *big.Int
	Support    uint8
	Votes      *big.Int
}

// VotesCastEvent is the audit record of a batched cast.
type VotesCastEvent struct {
	Proxies     []common.Address
	Voter       common.Address
	Authorities []AuthorityChain
	ProposalID  *big.Int
	Support     uint8
	Votes       *big.Int
}
