package validator

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-alligator/alligator/ledger"
	"github.com/rony4d/go-alligator/alligator/rules"
	"github.com/rony4d/go-alligator/governor/memgov"
	"github.com/rony4d/go-alligator/inter"
)

var (
	owner = common.HexToAddress("0x0a")
	alice = common.HexToAddress("0xa1")
	bob   = common.HexToAddress("0xb0")
	carol = common.HexToAddress("0xc0")
	proxy = common.HexToAddress("0x9f0")

	proposal = big.NewInt(1)
	weight   = big.NewInt(100)
)

type testEnv struct {
	store     *rules.Store
	gov       *memgov.Governor
	clock     *memgov.Chain
	ledger    *ledger.Ledger
	validator *Validator
}

func newEnv(t *testing.T) *testEnv {
	db := rawdb.NewMemoryDatabase()
	clock := memgov.NewChain(5, 1000)
	gov := memgov.New(common.HexToAddress("0x6f7e"), clock)
	require.NoError(t, gov.Propose(proposal, 1, 100))

	store := rules.New(rawdb.NewTable(db, "r"))
	return &testEnv{
		store:     store,
		gov:       gov,
		clock:     clock,
		ledger:    ledger.New(rawdb.NewTable(db, "v"), gov),
		validator: New(store, gov, clock, nil),
	}
}

func (e *testEnv) delegate(t *testing.T, from, to common.Address, r inter.SubdelegationRules) {
	require.NoError(t, e.store.Put(from, to, r))
}

func (e *testEnv) validate(sender common.Address, authority ...common.Address) (*big.Int, int, error) {
	return e.validator.Validate(context.Background(), e.ledger, proxy, sender, authority, proposal, inter.For, weight)
}

func TestValidate_owner(t *testing.T) {
	require := require.New(t)
	e := newEnv(t)

	votes, k, err := e.validate(owner, owner)
	require.NoError(err)
	require.Equal(int64(100), votes.Int64())
	require.Zero(k)

	// the owner only gets what the proxy has not cast yet
	require.NoError(e.ledger.RecordSpend(context.Background(), 0, proxy, proposal, inter.AuthorityChain{owner}, big.NewInt(70), weight))
	votes, _, err = e.validate(owner, owner, alice)
	require.NoError(err)
	require.Equal(int64(30), votes.Int64())
}

func TestValidate_allowances(t *testing.T) {
	tests := []struct {
		name  string
		first inter.SubdelegationRules
		next  inter.SubdelegationRules
		votes int64
		k     int
	}{
		{"relative floors", inter.RelativeRules(50_000), inter.RelativeRules(75_000), 37, 1},
		{"relative full", inter.RelativeRules(inter.AllowanceScale), inter.RelativeRules(2 * inter.AllowanceScale), 100, 0},
		{"binding second hop", inter.RelativeRules(inter.AllowanceScale), inter.RelativeRules(10_000), 10, 2},
		{"absolute cap", inter.AbsoluteRules(big.NewInt(30)), inter.RelativeRules(inter.AllowanceScale), 30, 1},
		{"absolute above weight", inter.AbsoluteRules(big.NewInt(500)), inter.AbsoluteRules(big.NewInt(100)), 100, 0},
		{"absolute then relative", inter.AbsoluteRules(big.NewInt(80)), inter.RelativeRules(50_000), 40, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			e := newEnv(t)
			e.delegate(t, owner, alice, tt.first.WithMaxRedelegations(1))
			e.delegate(t, alice, bob, tt.next)

			votes, k, err := e.validate(bob, owner, alice, bob)
			require.NoError(err)
			require.Equal(tt.votes, votes.Int64())
			require.Equal(tt.k, k)
		})
	}
}

func TestValidate_notDelegated(t *testing.T) {
	e := newEnv(t)
	e.delegate(t, owner, alice, inter.RelativeRules(inter.AllowanceScale))

	tests := []struct {
		name      string
		sender    common.Address
		authority []common.Address
		from, to  common.Address
	}{
		{"missing edge", bob, []common.Address{owner, bob}, owner, bob},
		{"owner only", alice, []common.Address{owner}, owner, alice},
		{"chain ends elsewhere", bob, []common.Address{owner, alice}, alice, bob},
		{"reverse edge", owner, []common.Address{alice, owner}, alice, owner},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := e.validate(tt.sender, tt.authority...)
			require.True(t, errors.Is(err, inter.ErrNotDelegated), "got %v", err)

			var de *inter.DelegationError
			require.True(t, errors.As(err, &de))
			require.Equal(t, tt.from, de.From)
			require.Equal(t, tt.to, de.To)
		})
	}

	_, _, err := e.validator.Validate(context.Background(), e.ledger, proxy, owner, nil, proposal, inter.For, weight)
	require.True(t, errors.Is(err, inter.ErrEmptyAuthority))
}

func TestValidate_redelegations(t *testing.T) {
	tests := []struct {
		max uint8
		err bool
	}{
		{0, true},
		{1, false},
		{inter.UnlimitedRedelegations, false},
	}
	for _, tt := range tests {
		e := newEnv(t)
		e.delegate(t, owner, alice, inter.RelativeRules(inter.AllowanceScale).WithMaxRedelegations(tt.max))
		e.delegate(t, alice, bob, inter.RelativeRules(inter.AllowanceScale))

		_, _, err := e.validate(bob, owner, alice, bob)
		if tt.err {
			require.True(t, errors.Is(err, inter.ErrTooManyRedelegations), "max %d: got %v", tt.max, err)
		} else {
			require.NoError(t, err, "max %d", tt.max)
		}
	}

	// the last hop needs no further redelegations
	e := newEnv(t)
	e.delegate(t, owner, alice, inter.RelativeRules(inter.AllowanceScale))
	_, _, err := e.validate(alice, owner, alice)
	require.NoError(t, err)
}

func TestValidate_timeWindow(t *testing.T) {
	e := newEnv(t)
	e.delegate(t, owner, alice, inter.RelativeRules(inter.AllowanceScale).WithValidity(2000, 3000))

	tests := []struct {
		now uint64
		err error
	}{
		{1999, inter.ErrNotValidYet},
		{2000, nil},
		{3000, nil},
		{3001, inter.ErrNotValidAnymore},
	}
	for _, tt := range tests {
		e.clock.Set(5, inter.Timestamp(tt.now))
		_, _, err := e.validate(alice, owner, alice)
		if tt.err == nil {
			require.NoError(t, err, "at %d", tt.now)
			continue
		}
		require.True(t, errors.Is(err, tt.err), "at %d: got %v", tt.now, err)
	}
}

func TestValidate_tooEarly(t *testing.T) {
	require := require.New(t)
	e := newEnv(t)
	e.delegate(t, owner, alice, inter.RelativeRules(inter.AllowanceScale).WithBlocksBeforeVoteCloses(10))

	_, _, err := e.validate(alice, owner, alice)
	require.True(errors.Is(err, inter.ErrTooEarly), "got %v", err)

	e.clock.Set(90, 1000)
	_, _, err = e.validate(alice, owner, alice)
	require.NoError(err)

	// unknown proposals surface the tally system error
	_, _, err = e.validator.Validate(context.Background(), e.ledger, proxy, alice, inter.AuthorityChain{owner, alice}, big.NewInt(9), inter.For, weight)
	require.True(errors.Is(err, memgov.ErrUnknownProposal), "got %v", err)
}

func TestValidate_customRule(t *testing.T) {
	require := require.New(t)
	e := newEnv(t)
	ruleAddr := common.HexToAddress("0xc057")
	e.delegate(t, owner, alice, inter.RelativeRules(inter.AllowanceScale).WithCustomRule(ruleAddr))

	_, _, err := e.validate(alice, owner, alice)
	require.True(errors.Is(err, inter.ErrInvalidCustomRule), "unregistered rule: got %v", err)

	var seen common.Address
	e.validator.Registry().Register(ruleAddr, Predicate(func(governor, sender common.Address, _ *big.Int, support uint8) bool {
		require.Equal(e.gov.Address(), governor)
		seen = sender
		return support == inter.For
	}))
	_, _, err = e.validate(alice, owner, alice)
	require.NoError(err)
	require.Equal(alice, seen)

	_, _, err = e.validator.Validate(context.Background(), e.ledger, proxy, alice, inter.AuthorityChain{owner, alice}, proposal, inter.Against, weight)
	require.True(errors.Is(err, inter.ErrInvalidCustomRule))

	e.validator.Registry().Register(ruleAddr, CustomRuleFunc(func(context.Context, common.Address, common.Address, *big.Int, uint8) ([4]byte, error) {
		return [4]byte{0xde, 0xad, 0xbe, 0xef}, nil
	}))
	_, _, err = e.validate(alice, owner, alice)
	require.True(errors.Is(err, inter.ErrInvalidCustomRule))

	e.validator.Registry().Unregister(ruleAddr)
	_, ok := e.validator.Registry().Get(ruleAddr)
	require.False(ok)
}

func TestSelector(t *testing.T) {
	hash := crypto.Keccak256([]byte("validate(address,address,uint256,uint8)"))
	require.Equal(t, hash[:4], Selector[:])
}

// TestValidate_doubleSpend covers two chains sharing the owner -> alice edge:
// together they never claim more than alice's half of the proxy weight.
func TestValidate_doubleSpend(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	e := newEnv(t)
	e.delegate(t, owner, alice, inter.RelativeRules(50_000).WithMaxRedelegations(1))
	e.delegate(t, alice, bob, inter.RelativeRules(inter.AllowanceScale))
	e.delegate(t, alice, carol, inter.RelativeRules(inter.AllowanceScale))

	bobChain := inter.AuthorityChain{owner, alice, bob}
	votes, k, err := e.validate(bob, bobChain...)
	require.NoError(err)
	require.Equal(int64(50), votes.Int64())
	require.Equal(1, k)
	require.NoError(e.ledger.RecordSpend(ctx, k, proxy, proposal, bobChain, big.NewInt(20), weight))

	carolChain := inter.AuthorityChain{owner, alice, carol}
	votes, k, err = e.validate(carol, carolChain...)
	require.NoError(err)
	require.Equal(int64(30), votes.Int64())
	require.NoError(e.ledger.RecordSpend(ctx, k, proxy, proposal, carolChain, votes, weight))

	votes, _, err = e.validate(bob, bobChain...)
	require.NoError(err)
	require.Zero(votes.Sign())

	// the owner can still spend the half alice never had
	votes, _, err = e.validate(owner, owner)
	require.NoError(err)
	require.Equal(int64(50), votes.Int64())
}

func TestValidate_allowanceExceeded(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	e := newEnv(t)
	e.delegate(t, owner, alice, inter.RelativeRules(60_000).WithMaxRedelegations(1))
	e.delegate(t, alice, bob, inter.RelativeRules(50_000))
	e.delegate(t, alice, carol, inter.RelativeRules(inter.AllowanceScale))

	carolChain := inter.AuthorityChain{owner, alice, carol}
	votes, k, err := e.validate(carol, carolChain...)
	require.NoError(err)
	require.Equal(int64(60), votes.Int64())
	require.NoError(e.ledger.RecordSpend(ctx, k, proxy, proposal, carolChain, votes, weight))

	_, _, err = e.validate(bob, owner, alice, bob)
	require.True(errors.Is(err, inter.ErrAllowanceExceeded), "got %v", err)
	var de *inter.DelegationError
	require.True(errors.As(err, &de))
	require.Equal(int64(30), de.Bound.Int64())
}

func TestValidate_pure(t *testing.T) {
	require := require.New(t)
	e := newEnv(t)
	e.delegate(t, owner, alice, inter.RelativeRules(50_000).WithMaxRedelegations(1))
	e.delegate(t, alice, bob, inter.RelativeRules(75_000))

	v1, k1, err := e.validate(bob, owner, alice, bob)
	require.NoError(err)
	v2, k2, err := e.validate(bob, owner, alice, bob)
	require.NoError(err)
	require.Zero(v1.Cmp(v2))
	require.Equal(k1, k2)

	cast, err := e.ledger.WeightCast(context.Background(), proposal, proxy)
	require.NoError(err)
	require.Zero(cast.Sign())
	spent, err := e.ledger.VotesCast(proxy, proposal, owner, alice)
	require.NoError(err)
	require.Zero(spent.Sign())
}

// TestValidate_cycles verifies that a cyclic rule graph is walked only along
// the presented chain.
func TestValidate_cycles(t *testing.T) {
	require := require.New(t)
	e := newEnv(t)
	e.delegate(t, owner, alice, inter.RelativeRules(inter.AllowanceScale).WithMaxRedelegations(inter.UnlimitedRedelegations))
	e.delegate(t, alice, bob, inter.RelativeRules(inter.AllowanceScale).WithMaxRedelegations(inter.UnlimitedRedelegations))
	e.delegate(t, bob, alice, inter.RelativeRules(50_000).WithMaxRedelegations(inter.UnlimitedRedelegations))

	votes, k, err := e.validate(alice, owner, alice, bob, alice)
	require.NoError(err)
	require.Equal(int64(50), votes.Int64())
	require.Equal(3, k)
}
