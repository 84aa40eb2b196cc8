package validator

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Selector is the acceptance marker a CustomRule returns to approve a vote.
var Selector = func() (sel [4]byte) {
	copy(sel[:], crypto.Keccak256([]byte("validate(address,address,uint256,uint8)"))[:4])
	return
}()

// CustomRule is a pluggable per-vote predicate attached to a subdelegation.
// A vote passes only if Validate returns Selector and no error.
type CustomRule interface {
	Validate(ctx context.Context, governor, sender common.Address, proposalID *big.Int, support uint8) ([4]byte, error)
}

// CustomRuleFunc adapts a plain function to CustomRule.
type CustomRuleFunc func(ctx context.Context, governor, sender common.Address, proposalID *big.Int, support uint8) ([4]byte, error)

func (f CustomRuleFunc) Validate(ctx context.Context, governor, sender common.Address, proposalID *big.Int, support uint8) ([4]byte, error) {
	return f(ctx, governor, sender, proposalID, support)
}

// Predicate builds a CustomRule from a boolean check.
func Predicate(ok func(governor, sender common.Address, proposalID *big.Int, support uint8) bool) CustomRule {
	return CustomRuleFunc(func(_ context.Context, governor, sender common.Address, proposalID *big.Int, support uint8) ([4]byte, error) {
		if ok(governor, sender, proposalID, support) {
			return Selector, nil
		}
		return [4]byte{}, nil
	})
}

// Registry resolves the CustomRule address stored in subdelegation rules to
// an implementation. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	rules map[common.Address]CustomRule
}

func NewRegistry() *Registry {
	return &Registry{rules: make(map[common.Address]CustomRule)}
}

// Register binds rule to addr, replacing any previous binding.
func (r *Registry) Register(addr common.Address, rule CustomRule) {
	r.mu.Lock()
	r.rules[addr] = rule
	r.mu.Unlock()
}

func (r *Registry) Unregister(addr common.Address) {
	r.mu.Lock()
	delete(r.rules, addr)
	r.mu.Unlock()
}

func (r *Registry) Get(addr common.Address) (CustomRule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[addr]
	return rule, ok
}
