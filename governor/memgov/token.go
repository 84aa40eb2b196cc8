package memgov

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"sync"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"

	"github.com/rony4d/go-alligator/governor"
)

var (
	// ErrFutureLookup is returned for voting power queries at or past the current block.
	ErrFutureLookup = errors.New("block not yet mined")
	// ErrCheckpointOrder is returned when a checkpoint is written before the latest one.
	ErrCheckpointOrder = errors.New("checkpoint older than latest")
)

type checkpoint struct {
	block idx.Block
	votes *big.Int
}

// Token is a checkpointed voting-power ledger: every account holds a list of
// (block, votes) checkpoints ordered by block.
type Token struct {
	mu          sync.RWMutex
	chain       governor.Chain
	checkpoints map[common.Address][]checkpoint
}

var _ governor.VotesToken = (*Token)(nil)

// NewToken creates an empty ledger. A nil chain disables the future-lookup check.
func NewToken(chain governor.Chain) *Token {
	return &Token{
		chain:       chain,
		checkpoints: make(map[common.Address][]checkpoint),
	}
}

// SetVotes records that account holds votes from block onwards.
func (t *Token) SetVotes(account common.Address, block idx.Block, votes *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cps := t.checkpoints[account]
	if n := len(cps); n > 0 {
		last := cps[n-1]
		if block < last.block {
			return ErrCheckpointOrder
		}
		if block == last.block {
			cps[n-1].votes = new(big.Int).Set(votes)
			return nil
		}
	}
	t.checkpoints[account] = append(cps, checkpoint{block: block, votes: new(big.Int).Set(votes)})
	return nil
}

// GetPastVotes returns the votes of the latest checkpoint at or before block.
func (t *Token) GetPastVotes(_ context.Context, account common.Address, block idx.Block) (*big.Int, error) {
	if t.chain != nil && block >= t.chain.BlockNumber() {
		return nil, ErrFutureLookup
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	cps := t.checkpoints[account]
	// first checkpoint strictly after block
	i := sort.Search(len(cps), func(i int) bool { return cps[i].block > block })
	if i == 0 {
		return new(big.Int), nil
	}
	return new(big.Int).Set(cps[i-1].votes), nil
}
