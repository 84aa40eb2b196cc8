// Package ledger implements the VoteWeightLedger.
//
// Two quantities are tracked per proposal:
//   - weightCast[proposal][proxy]: owned by the tally system, read and
//     increased through governor.Governor.
//   - votesCast[proxy][proposal][delegator][delegate]: the weight spent across
//     one delegation edge, stored here. Only edges at or after a chain's
//     pivot are ever incremented.
//
// Both only grow. Writes go through a Session so that a call spanning several
// chains either commits all of its spend or none of it.
package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/ethdb"

	"github.com/rony4d/go-alligator/governor"
	"github.com/rony4d/go-alligator/inter"
)

const edgeKeyLength = 3*common.AddressLength + 32

// Ledger is the committed state of the VoteWeightLedger.
type Ledger struct {
	db  ethdb.KeyValueStore
	gov governor.Governor
}

// New creates a ledger storing edge spend in db and proxy weight in gov.
func New(db ethdb.KeyValueStore, gov governor.Governor) *Ledger {
	return &Ledger{db: db, gov: gov}
}

func edgeKey(proxy common.Address, proposalID *big.Int, from, to common.Address) []byte {
	key := make([]byte, 0, edgeKeyLength)
	key = append(key, proxy.Bytes()...)
	key = append(key, math.U256Bytes(new(big.Int).Set(proposalID))...)
	key = append(key, from.Bytes()...)
	return append(key, to.Bytes()...)
}

// VotesCast returns the weight recorded as spent across from -> to.
func (l *Ledger) VotesCast(proxy common.Address, proposalID *big.Int, from, to common.Address) (*big.Int, error) {
	return l.get(edgeKey(proxy, proposalID, from, to))
}

func (l *Ledger) get(key []byte) (*big.Int, error) {
	has, err := l.db.Has(key)
	if err != nil {
		return nil, fmt.Errorf("read votes cast: %w", err)
	}
	if !has {
		return new(big.Int), nil
	}
	blob, err := l.db.Get(key)
	if err != nil {
		return nil, fmt.Errorf("read votes cast: %w", err)
	}
	return new(big.Int).SetBytes(blob), nil
}

// WeightCast returns the total weight the proxy has cast for the proposal.
func (l *Ledger) WeightCast(ctx context.Context, proposalID *big.Int, proxy common.Address) (*big.Int, error) {
	return l.gov.WeightCast(ctx, proposalID, proxy)
}

// RecordSpend records a single chain's spend and commits it immediately.
func (l *Ledger) RecordSpend(ctx context.Context, pivot int, proxy common.Address, proposalID *big.Int,
	authority inter.AuthorityChain, votes, proxyTotal *big.Int) error {
	s := l.NewSession()
	if err := s.RecordSpend(ctx, pivot, proxy, proposalID, authority, votes, proxyTotal); err != nil {
		return err
	}
	return s.Commit(ctx)
}

// NewSession starts staging spend on top of the committed state.
func (l *Ledger) NewSession() *Session {
	return &Session{
		ledger: l,
		weight: make(map[weightKey]*pendingWeight),
		edges:  make(map[string]*big.Int),
	}
}

type weightKey struct {
	proposal string
	proxy    common.Address
}

type pendingWeight struct {
	proposalID *big.Int
	proxy      common.Address
	votes      *big.Int
	total      *big.Int
}

// Session stages spend in memory. Reads through a session see committed state
// plus everything recorded in the session, so later chains of a batch observe
// the spend of earlier ones. A session is not safe for concurrent use.
type Session struct {
	ledger *Ledger

	weight      map[weightKey]*pendingWeight
	weightOrder []weightKey

	edges     map[string]*big.Int
	edgeOrder []string
}

func (s *Session) VotesCast(proxy common.Address, proposalID *big.Int, from, to common.Address) (*big.Int, error) {
	committed, err := s.ledger.VotesCast(proxy, proposalID, from, to)
	if err != nil {
		return nil, err
	}
	if pending, ok := s.edges[string(edgeKey(proxy, proposalID, from, to))]; ok {
		committed.Add(committed, pending)
	}
	return committed, nil
}

func (s *Session) WeightCast(ctx context.Context, proposalID *big.Int, proxy common.Address) (*big.Int, error) {
	committed, err := s.ledger.WeightCast(ctx, proposalID, proxy)
	if err != nil {
		return nil, err
	}
	res := new(big.Int).Set(committed)
	if pending, ok := s.weight[weightKey{proposalID.String(), proxy}]; ok {
		res.Add(res, pending.votes)
	}
	return res, nil
}

// RecordSpend stages votes against the proxy's weight and, when pivot is
// non-zero, against every edge from authority[pivot-1] -> authority[pivot]
// to the end of the chain. Edges before the pivot never capped anything and
// are left untouched.
func (s *Session) RecordSpend(ctx context.Context, pivot int, proxy common.Address, proposalID *big.Int,
	authority inter.AuthorityChain, votes, proxyTotal *big.Int) error {
	if votes.Sign() < 0 {
		return fmt.Errorf("negative spend %s", votes)
	}
	if pivot < 0 || (pivot != 0 && pivot >= len(authority)) {
		return fmt.Errorf("pivot %d outside authority of length %d", pivot, len(authority))
	}

	cast, err := s.WeightCast(ctx, proposalID, proxy)
	if err != nil {
		return err
	}
	if cast.Add(cast, votes).Cmp(proxyTotal) > 0 {
		return fmt.Errorf("%w: proxy %s would cast %s of %s", inter.ErrWeightExceeded, proxy.Hex(), cast, proxyTotal)
	}

	wk := weightKey{proposalID.String(), proxy}
	pw, ok := s.weight[wk]
	if !ok {
		pw = &pendingWeight{proposalID: new(big.Int).Set(proposalID), proxy: proxy, votes: new(big.Int)}
		s.weight[wk] = pw
		s.weightOrder = append(s.weightOrder, wk)
	}
	pw.votes.Add(pw.votes, votes)
	pw.total = new(big.Int).Set(proxyTotal)

	if pivot == 0 {
		return nil
	}
	delegator := authority[pivot-1]
	for _, delegate := range authority[pivot:] {
		ek := string(edgeKey(proxy, proposalID, delegator, delegate))
		pending, ok := s.edges[ek]
		if !ok {
			pending = new(big.Int)
			s.edges[ek] = pending
			s.edgeOrder = append(s.edgeOrder, ek)
		}
		pending.Add(pending, votes)
		delegator = delegate
	}
	return nil
}

// Commit pushes the staged proxy weight to the tally system in a single
// all-or-nothing call, which enforces the caps authoritatively, then writes
// the staged edge spend in one batch. A session spans a single proposal.
func (s *Session) Commit(ctx context.Context) error {
	var (
		proposalID *big.Int
		increases  []governor.WeightIncrease
	)
	for _, wk := range s.weightOrder {
		pw := s.weight[wk]
		if pw.votes.Sign() == 0 {
			continue
		}
		if proposalID == nil {
			proposalID = pw.proposalID
		} else if proposalID.Cmp(pw.proposalID) != 0 {
			return fmt.Errorf("session spans proposals %s and %s", proposalID, pw.proposalID)
		}
		increases = append(increases, governor.WeightIncrease{
			Account:      pw.proxy,
			Votes:        pw.votes,
			AccountTotal: pw.total,
		})
	}
	if len(increases) > 0 {
		if err := s.ledger.gov.IncreaseWeightCasts(ctx, proposalID, increases); err != nil {
			return fmt.Errorf("increase weight cast: %w", err)
		}
	}

	batch := s.ledger.db.NewBatch()
	for _, ek := range s.edgeOrder {
		committed, err := s.ledger.get([]byte(ek))
		if err != nil {
			return err
		}
		committed.Add(committed, s.edges[ek])
		if err := batch.Put([]byte(ek), committed.Bytes()); err != nil {
			return err
		}
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("write votes cast: %w", err)
	}

	s.weight = make(map[weightKey]*pendingWeight)
	s.weightOrder = nil
	s.edges = make(map[string]*big.Int)
	s.edgeOrder = nil
	return nil
}
