// Package rules stores subdelegation rules keyed by (delegator, delegate).
//
// The rule graph is kept as a flat edge map: key = delegator ‖ delegate,
// value = rlp(SubdelegationRules). It may contain cycles; nothing in this
// package traverses it beyond a single edge or a single delegator's
// out-edges.
package rules

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/rony4d/go-alligator/inter"
)

const keyLength = 2 * common.AddressLength

// Store is the RuleStore.
type Store struct {
	db ethdb.KeyValueStore
}

// New wraps db. The store owns every key it sees, so db is normally a
// prefixed table of a shared database.
func New(db ethdb.KeyValueStore) *Store {
	return &Store{db: db}
}

func edgeKey(from, to common.Address) []byte {
	key := make([]byte, 0, keyLength)
	key = append(key, from.Bytes()...)
	return append(key, to.Bytes()...)
}

// Get returns the rules of the edge from -> to. A missing edge yields rules
// with a zero allowance, which callers treat as "not delegated".
func (s *Store) Get(from, to common.Address) (inter.SubdelegationRules, error) {
	key := edgeKey(from, to)
	// memorydb and leveldb both report a missing key through Get's error
	has, err := s.db.Has(key)
	if err != nil {
		return inter.SubdelegationRules{}, fmt.Errorf("read rules %s -> %s: %w", from.Hex(), to.Hex(), err)
	}
	if !has {
		return inter.SubdelegationRules{Allowance: new(big.Int)}, nil
	}
	blob, err := s.db.Get(key)
	if err != nil {
		return inter.SubdelegationRules{}, fmt.Errorf("read rules %s -> %s: %w", from.Hex(), to.Hex(), err)
	}
	var rules inter.SubdelegationRules
	if err := rlp.DecodeBytes(blob, &rules); err != nil {
		return inter.SubdelegationRules{}, fmt.Errorf("decode rules %s -> %s: %w", from.Hex(), to.Hex(), err)
	}
	if rules.Allowance == nil {
		rules.Allowance = new(big.Int)
	}
	return rules, nil
}

// Put overwrites the rules of the edge from -> to. Rules with a zero
// allowance remove the edge.
func (s *Store) Put(from, to common.Address, rules inter.SubdelegationRules) error {
	return s.put(s.db, from, to, rules)
}

// PutBatch atomically writes one rule per target. len(rules) must be 1 (the
// rule is shared by every target) or len(targets).
func (s *Store) PutBatch(from common.Address, targets []common.Address, rules []inter.SubdelegationRules) error {
	if len(rules) != 1 && len(rules) != len(targets) {
		return fmt.Errorf("%w: %d targets, %d rules", inter.ErrLengthMismatch, len(targets), len(rules))
	}
	batch := s.db.NewBatch()
	for i, to := range targets {
		r := rules[0]
		if len(rules) > 1 {
			r = rules[i]
		}
		if err := s.put(batch, from, to, r); err != nil {
			return err
		}
	}
	return batch.Write()
}

func (s *Store) put(w ethdb.KeyValueWriter, from, to common.Address, rules inter.SubdelegationRules) error {
	if !rules.Exists() {
		return w.Delete(edgeKey(from, to))
	}
	if rules.Version == 0 {
		rules.Version = inter.RulesVersion
	}
	blob, err := rlp.EncodeToBytes(&rules)
	if err != nil {
		return fmt.Errorf("encode rules %s -> %s: %w", from.Hex(), to.Hex(), err)
	}
	return w.Put(edgeKey(from, to), blob)
}

// Delegates returns every live out-edge of from.
func (s *Store) Delegates(from common.Address) (map[common.Address]inter.SubdelegationRules, error) {
	it := s.db.NewIterator(from.Bytes(), nil)
	defer it.Release()

	out := make(map[common.Address]inter.SubdelegationRules)
	for it.Next() {
		key := it.Key()
		if len(key) != keyLength {
			continue
		}
		var rules inter.SubdelegationRules
		if err := rlp.DecodeBytes(it.Value(), &rules); err != nil {
			return nil, fmt.Errorf("decode rules of %s: %w", from.Hex(), err)
		}
		out[common.BytesToAddress(key[common.AddressLength:])] = rules
	}
	return out, it.Error()
}
