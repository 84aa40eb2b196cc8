// Package inter defines the data structures shared by every alligator
// component: subdelegation rules, authority chains, ballots, audit events and
// the error taxonomy.
//
// Key concepts:
//   - SubdelegationRules: attributes of one delegator -> delegate edge
//   - AuthorityChain: the explicit path from a proxy owner to the voter
//   - Ballots: the typed payloads that voters sign off-chain
//
// Usage:
//
//	rules := inter.RelativeRules(50_000).WithMaxRedelegations(1)
//	weight := rules.VoterAllowance(inherited)

package inter

import (
	"fmt"
	"math"
	"math/big"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"
)

// AllowanceScale is the fixed-point denominator of relative allowances.
// A relative allowance of AllowanceScale (1e5) passes through 100% of the
// delegator's allowed weight.
const AllowanceScale = 100_000

// UnlimitedRedelegations is the largest representable redelegation count and
// effectively disables the redelegation limit.
const UnlimitedRedelegations = math.MaxUint8

// RulesVersion is the current layout of SubdelegationRules.
const RulesVersion = 1

// AllowanceType selects how SubdelegationRules.Allowance is interpreted.
type AllowanceType uint8

const (
	// Absolute caps the delegate at a fixed number of votes.
	Absolute AllowanceType = iota
	// Relative grants a fraction (scaled by AllowanceScale) of the delegator's allowance.
	Relative
)

func (t AllowanceType) String() string {
	switch t {
	case Absolute:
		return "absolute"
	case Relative:
		return "relative"
	default:
		return fmt.Sprintf("allowance(%d)", uint8(t))
	}
}

// Timestamp is a unix time in seconds, as seen by the chain clock.
type Timestamp uint64

// SubdelegationRules are the attributes of one delegator -> delegate edge.
//
// A zero Allowance means the edge does not exist, regardless of the other
// fields. Zero NotValidBefore, NotValidAfter and BlocksBeforeVoteCloses leave
// the corresponding bound unset, and a zero CustomRule disables the custom
// predicate. Field order is the storage layout; append new fields only.
type SubdelegationRules struct {
	// Version of the layout the rules were written with.
	Version uint8

	// MaxRedelegations is the number of further hops allowed beyond this edge.
	MaxRedelegations uint8

	// NotValidBefore and NotValidAfter bound the unix time window in which
	// the edge may be exercised.
	NotValidBefore uint32
	NotValidAfter  uint32

	// BlocksBeforeVoteCloses is the minimum lead time (in blocks) between the
	// current block and the proposal deadline. The edge may only be used once
	// the deadline is this close.
	BlocksBeforeVoteCloses uint16

	// CustomRule is the address of an optional predicate consulted per vote.
	CustomRule common.Address

	AllowanceType AllowanceType
	Allowance     *big.Int
}

// RelativeRules creates rules granting allowance/AllowanceScale of the
// delegator's weight.
func RelativeRules(allowance uint64) SubdelegationRules {
	return SubdelegationRules{
		Version:       RulesVersion,
		AllowanceType: Relative,
		Allowance:     new(big.Int).SetUint64(allowance),
	}
}

// AbsoluteRules creates rules capping the delegate at a fixed number of votes.
func AbsoluteRules(allowance *big.Int) SubdelegationRules {
	return SubdelegationRules{
		Version:       RulesVersion,
		AllowanceType: Absolute,
		Allowance:     new(big.Int).Set(allowance),
	}
}

func (r SubdelegationRules) WithMaxRedelegations(n uint8) SubdelegationRules {
	r.MaxRedelegations = n
	return r
}

func (r SubdelegationRules) WithValidity(notBefore, notAfter uint32) SubdelegationRules {
	r.NotValidBefore = notBefore
	r.NotValidAfter = notAfter
	return r
}

func (r SubdelegationRules) WithBlocksBeforeVoteCloses(blocks uint16) SubdelegationRules {
	r.BlocksBeforeVoteCloses = blocks
	return r
}

func (r SubdelegationRules) WithCustomRule(rule common.Address) SubdelegationRules {
	r.CustomRule = rule
	return r
}

// Exists reports whether the rules describe a live delegation.
func (r SubdelegationRules) Exists() bool {
	return r.Allowance != nil && r.Allowance.Sign() > 0
}

// VoterAllowance applies the edge to the allowance inherited from the
// previous hop. Relative allowances round down.
func (r SubdelegationRules) VoterAllowance(inherited *big.Int) *big.Int {
	if r.AllowanceType == Relative {
		if r.Allowance.Cmp(big.NewInt(AllowanceScale)) >= 0 {
			return new(big.Int).Set(inherited)
		}
		res := new(big.Int).Mul(inherited, r.Allowance)
		return res.Div(res, big.NewInt(AllowanceScale))
	}
	if inherited.Cmp(r.Allowance) > 0 {
		return new(big.Int).Set(r.Allowance)
	}
	return new(big.Int).Set(inherited)
}

// Binding reports whether the edge constrains a proxy that still has
// remaining votes left to cast.
func (r SubdelegationRules) Binding(remaining *big.Int) bool {
	if r.AllowanceType == Relative {
		return r.Allowance.Cmp(big.NewInt(AllowanceScale)) < 0
	}
	return r.Allowance.Cmp(remaining) < 0
}

// ValidAt checks the time window against now.
func (r SubdelegationRules) ValidAt(now Timestamp) error {
	if uint64(now) < uint64(r.NotValidBefore) {
		return ErrNotValidYet
	}
	if r.NotValidAfter != 0 && uint64(now) > uint64(r.NotValidAfter) {
		return ErrNotValidAnymore
	}
	return nil
}

// OpenFor reports whether the proposal deadline is close enough to the
// current block for the edge to be used.
func (r SubdelegationRules) OpenFor(deadline, current idx.Block) bool {
	if r.BlocksBeforeVoteCloses == 0 {
		return true
	}
	return deadline <= current+idx.Block(r.BlocksBeforeVoteCloses)
}

// Copy returns a deep copy.
func (r SubdelegationRules) Copy() SubdelegationRules {
	cp := r
	if r.Allowance != nil {
		cp.Allowance = new(big.Int).Set(r.Allowance)
	}
	return cp
}

func (r SubdelegationRules) String() string {
	return fmt.Sprintf("{%s %v maxRedelegations=%d window=[%d,%d] blocksBeforeClose=%d custom=%s}",
		r.AllowanceType, r.Allowance, r.MaxRedelegations, r.NotValidBefore, r.NotValidAfter,
		r.BlocksBeforeVoteCloses, r.CustomRule.Hex())
}
