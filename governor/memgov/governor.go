// Package memgov is an in-memory tally system: proposals with a snapshot and
// a deadline, per-account weight accounting and support buckets. It backs
// devnets and tests; production deployments talk to the on-chain governor.
package memgov

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"

	"github.com/rony4d/go-alligator/governor"
	"github.com/rony4d/go-alligator/inter"
)

var (
	ErrUnknownProposal   = errors.New("unknown proposal")
	ErrProposalExists    = errors.New("proposal already exists")
	ErrProposalNotActive = errors.New("proposal not active")
	ErrInvalidWindow     = errors.New("proposal deadline must follow its snapshot")
)

// ProposalState is the lifecycle stage of a proposal relative to the chain clock.
type ProposalState uint8

const (
	Pending ProposalState = iota
	Active
	Closed
)

func (s ProposalState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Active:
		return "active"
	default:
		return "closed"
	}
}

// VoteRecord is one committed call to CastVoteFromAlligator.
type VoteRecord struct {
	Voter   common.Address
	Support uint8
	Reason  string
	Votes   *big.Int
	Params  []byte
}

type proposal struct {
	snapshot   idx.Block
	deadline   idx.Block
	weightCast map[common.Address]*big.Int
	buckets    [3]*big.Int
	votes      []VoteRecord
}

// Governor is the in-memory tally system.
type Governor struct {
	mu        sync.RWMutex
	address   common.Address
	chain     governor.Chain
	proposals map[string]*proposal
}

var _ governor.Governor = (*Governor)(nil)

// New creates a tally system identified by address and driven by chain.
func New(address common.Address, chain governor.Chain) *Governor {
	return &Governor{
		address:   address,
		chain:     chain,
		proposals: make(map[string]*proposal),
	}
}

func (g *Governor) Address() common.Address {
	return g.address
}

// Propose registers a proposal whose voting power is measured at snapshot
// and which accepts votes in the blocks (snapshot, deadline].
func (g *Governor) Propose(proposalID *big.Int, snapshot, deadline idx.Block) error {
	if deadline <= snapshot {
		return ErrInvalidWindow
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	key := proposalID.String()
	if _, ok := g.proposals[key]; ok {
		return fmt.Errorf("%w: %s", ErrProposalExists, key)
	}
	g.proposals[key] = &proposal{
		snapshot:   snapshot,
		deadline:   deadline,
		weightCast: make(map[common.Address]*big.Int),
		buckets:    [3]*big.Int{new(big.Int), new(big.Int), new(big.Int)},
	}
	return nil
}

func (g *Governor) get(proposalID *big.Int) (*proposal, error) {
	p, ok := g.proposals[proposalID.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProposal, proposalID)
	}
	return p, nil
}

func (g *Governor) state(p *proposal) ProposalState {
	current := g.chain.BlockNumber()
	switch {
	case current <= p.snapshot:
		return Pending
	case current <= p.deadline:
		return Active
	default:
		return Closed
	}
}

// State reports the lifecycle stage of a proposal.
func (g *Governor) State(proposalID *big.Int) (ProposalState, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	p, err := g.get(proposalID)
	if err != nil {
		return 0, err
	}
	return g.state(p), nil
}

func (g *Governor) ProposalSnapshot(_ context.Context, proposalID *big.Int) (idx.Block, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	p, err := g.get(proposalID)
	if err != nil {
		return 0, err
	}
	return p.snapshot, nil
}

func (g *Governor) ProposalDeadline(_ context.Context, proposalID *big.Int) (idx.Block, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	p, err := g.get(proposalID)
	if err != nil {
		return 0, err
	}
	return p.deadline, nil
}

func (g *Governor) WeightCast(_ context.Context, proposalID *big.Int, account common.Address) (*big.Int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	p, err := g.get(proposalID)
	if err != nil {
		return nil, err
	}
	if w, ok := p.weightCast[account]; ok {
		return new(big.Int).Set(w), nil
	}
	return new(big.Int), nil
}

// IncreaseWeightCast enforces that an account never casts more than its total.
func (g *Governor) IncreaseWeightCast(ctx context.Context, proposalID *big.Int, account common.Address, votes, accountTotal *big.Int) error {
	return g.IncreaseWeightCasts(ctx, proposalID, []governor.WeightIncrease{{
		Account:      account,
		Votes:        votes,
		AccountTotal: accountTotal,
	}})
}

// IncreaseWeightCasts checks every increase before applying any of them.
func (g *Governor) IncreaseWeightCasts(_ context.Context, proposalID *big.Int, increases []governor.WeightIncrease) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, err := g.get(proposalID)
	if err != nil {
		return err
	}
	if g.state(p) != Active {
		return ErrProposalNotActive
	}

	var (
		order  []common.Address
		next   = make(map[common.Address]*big.Int, len(increases))
		totals = make(map[common.Address]*big.Int, len(increases))
	)
	for _, inc := range increases {
		if inc.Votes.Sign() < 0 {
			return fmt.Errorf("negative weight increase %s for %s", inc.Votes, inc.Account.Hex())
		}
		w, ok := next[inc.Account]
		if !ok {
			w = new(big.Int)
			if cast, ok := p.weightCast[inc.Account]; ok {
				w.Set(cast)
			}
			next[inc.Account] = w
			order = append(order, inc.Account)
		}
		w.Add(w, inc.Votes)
		totals[inc.Account] = inc.AccountTotal
	}
	for _, account := range order {
		if next[account].Cmp(totals[account]) > 0 {
			return fmt.Errorf("%w: %s would cast %s of %s", inter.ErrWeightExceeded, account.Hex(), next[account], totals[account])
		}
	}
	for _, account := range order {
		p.weightCast[account] = next[account]
	}
	return nil
}

func (g *Governor) CastVoteFromAlligator(_ context.Context, proposalID *big.Int, voter common.Address, support uint8, reason string, votes *big.Int, params []byte) error {
	if support > inter.Abstain {
		return fmt.Errorf("%w: %d", inter.ErrInvalidSupport, support)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	p, err := g.get(proposalID)
	if err != nil {
		return err
	}
	if g.state(p) != Active {
		return ErrProposalNotActive
	}
	p.buckets[support].Add(p.buckets[support], votes)
	p.votes = append(p.votes, VoteRecord{
		Voter:   voter,
		Support: support,
		Reason:  reason,
		Votes:   new(big.Int).Set(votes),
		Params:  common.CopyBytes(params),
	})
	return nil
}

// Tally returns copies of the against, for and abstain buckets.
func (g *Governor) Tally(proposalID *big.Int) (against, forVotes, abstain *big.Int, err error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	p, err := g.get(proposalID)
	if err != nil {
		return nil, nil, nil, err
	}
	return new(big.Int).Set(p.buckets[inter.Against]),
		new(big.Int).Set(p.buckets[inter.For]),
		new(big.Int).Set(p.buckets[inter.Abstain]), nil
}

// Votes returns the committed vote records of a proposal in commit order.
func (g *Governor) Votes(proposalID *big.Int) ([]VoteRecord, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	p, err := g.get(proposalID)
	if err != nil {
		return nil, err
	}
	out := make([]VoteRecord, len(p.votes))
	copy(out, p.votes)
	return out, nil
}
