// Package governor declares the external collaborators of the alligator: the
// proposal tally system, the voting-power ledger and the chain clock. The
// alligator never owns proposal lifecycle or vote tallies; it only resolves
// how many votes a chain may cast and forwards them.
package governor

import (
	"context"
	"math/big"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"

	"github.com/rony4d/go-alligator/inter"
)

// Governor is the tally system consumed by the alligator.
type Governor interface {
	// Address is the identity of the tally system.
	Address() common.Address

	// ProposalSnapshot is the block at which voting power is measured.
	ProposalSnapshot(ctx context.Context, proposalID *big.Int) (idx.Block, error)

	// ProposalDeadline is the last block at which votes are accepted.
	ProposalDeadline(ctx context.Context, proposalID *big.Int) (idx.Block, error)

	// WeightCast is the total weight account has cast for the proposal.
	WeightCast(ctx context.Context, proposalID *big.Int, account common.Address) (*big.Int, error)

	// IncreaseWeightCast adds votes to the weight cast by account and must
	// fail with inter.ErrWeightExceeded if the result exceeds accountTotal.
	IncreaseWeightCast(ctx context.Context, proposalID *big.Int, account common.Address, votes, accountTotal *big.Int) error

	// IncreaseWeightCasts applies every increase or none of them. Increases
	// for the same account accumulate and are checked against the last
	// AccountTotal given for it.
	IncreaseWeightCasts(ctx context.Context, proposalID *big.Int, increases []WeightIncrease) error

	// CastVoteFromAlligator commits votes to the tally.
	CastVoteFromAlligator(ctx context.Context, proposalID *big.Int, voter common.Address, support uint8, reason string, votes *big.Int, params []byte) error
}

// WeightIncrease is one account's share of an IncreaseWeightCasts call.
type WeightIncrease struct {
	Account      common.Address
	Votes        *big.Int
	AccountTotal *big.Int
}

// VotesToken is the voting-power ledger.
type VotesToken interface {
	// GetPastVotes returns the voting power of account at block.
	GetPastVotes(ctx context.Context, account common.Address, block idx.Block) (*big.Int, error)
}

// Chain reports the current execution context: block number and time.
type Chain interface {
	BlockNumber() idx.Block
	Timestamp() inter.Timestamp
}
