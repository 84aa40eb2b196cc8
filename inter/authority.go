package inter

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// AuthorityChain is the ordered list [owner, hop1, ..., voter]. The first
// element owns the proxy, every consecutive pair must be backed by a
// subdelegation and the last element is the account casting the vote.
//
// The rule graph may contain cycles; only the explicit, finite path carried
// by the chain is ever walked.
type AuthorityChain []common.Address

// Owner returns the proxy owner at the root of the chain.
func (c AuthorityChain) Owner() common.Address {
	if len(c) == 0 {
		return common.Address{}
	}
	return c[0]
}

// Voter returns the last account of the chain.
func (c AuthorityChain) Voter() common.Address {
	if len(c) == 0 {
		return common.Address{}
	}
	return c[len(c)-1]
}

// Copy returns an independent copy of the chain.
func (c AuthorityChain) Copy() AuthorityChain {
	cp := make(AuthorityChain, len(c))
	copy(cp, c)
	return cp
}

func (c AuthorityChain) String() string {
	parts := make([]string, len(c))
	for i, a := range c {
		parts[i] = a.Hex()
	}
	return "[" + strings.Join(parts, " -> ") + "]"
}
