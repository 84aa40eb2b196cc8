package inter

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Authorization errors. Each is fatal to the authority chain being validated
// and can only be resolved by changing the rules or waiting out a time window.
var (
	ErrNotDelegated         = errors.New("not delegated")
	ErrTooManyRedelegations = errors.New("too many redelegations")
	ErrNotValidYet          = errors.New("subdelegation not valid yet")
	ErrNotValidAnymore      = errors.New("subdelegation not valid anymore")
	ErrTooEarly             = errors.New("too early to vote with this subdelegation")
	ErrInvalidCustomRule    = errors.New("custom rule rejected the vote")
	ErrAllowanceExceeded    = errors.New("delegator votes exceed voter allowance")
)

// Accounting errors. The proxy or chain has nothing left to spend.
var (
	ErrZeroVotesToCast = errors.New("zero votes to cast")
	ErrWeightExceeded  = errors.New("weight cast exceeds proxy voting power")
)

// Input errors: caller bugs.
var (
	ErrLengthMismatch   = errors.New("length mismatch")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrEmptyAuthority   = errors.New("empty authority chain")
	ErrInvalidSupport   = errors.New("invalid support value")
)

// Access errors.
var (
	ErrPaused   = errors.New("alligator is paused")
	ErrNotOwner = errors.New("caller is not the owner")
)

// DelegationError attaches the offending edge (and the violated bound, when
// there is one) to an authorization sentinel. errors.Is matches the sentinel.
type DelegationError struct {
	Err   error
	From  common.Address
	To    common.Address
	Bound *big.Int
}

// NewDelegationError builds a DelegationError without a bound.
func NewDelegationError(err error, from, to common.Address) *DelegationError {
	return &DelegationError{Err: err, From: from, To: to}
}

// WithBound returns the error annotated with the violated bound.
func (e *DelegationError) WithBound(bound *big.Int) *DelegationError {
	e.Bound = bound
	return e
}

func (e *DelegationError) Error() string {
	if e.Bound != nil {
		return fmt.Sprintf("%v: %s -> %s (bound %s)", e.Err, e.From.Hex(), e.To.Hex(), e.Bound)
	}
	return fmt.Sprintf("%v: %s -> %s", e.Err, e.From.Hex(), e.To.Hex())
}

func (e *DelegationError) Unwrap() error {
	return e.Err
}
