// Package alligator is the delegated-voting entry point: it owns the
// subdelegation rules of every account, resolves authority chains into vote
// weight, records the spend so that no voting power is used twice, and
// forwards the resulting votes to the tally system.
//
// Every proxy is a derived identity holding one owner's voting power. Casting
// through a proxy means presenting an authority chain [owner, hop1, ..., voter]
// whose consecutive pairs are backed by subdelegations.
//
// Usage:
//
//	a, err := alligator.New(alligator.Config{...})
//	_ = a.Subdelegate(ctx, owner, delegate, inter.RelativeRules(50_000))
//	votes, err := a.CastVote(ctx, delegate, inter.AuthorityChain{owner, delegate}, proposalID, inter.For)
package alligator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-alligator/alligator/ledger"
	"github.com/rony4d/go-alligator/alligator/proxy"
	"github.com/rony4d/go-alligator/alligator/rules"
	"github.com/rony4d/go-alligator/alligator/sigverify"
	"github.com/rony4d/go-alligator/alligator/validator"
	"github.com/rony4d/go-alligator/governor"
	"github.com/rony4d/go-alligator/inter"
	"github.com/rony4d/go-alligator/params"
)

// Table prefixes inside the shared database.
const (
	rulesPrefix  = "r"
	ledgerPrefix = "v"
)

// Config wires an Alligator to its storage and collaborators.
type Config struct {
	Params params.Params
	// Owner may pause the alligator and transfer ownership.
	Owner common.Address

	DB       ethdb.Database
	Governor governor.Governor
	Token    governor.VotesToken
	Chain    governor.Chain

	// Registry resolves custom rule addresses. Optional.
	Registry *validator.Registry
	// Registerer receives the metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer
	Log        *logrus.Entry
}

func (c Config) validate() error {
	switch {
	case c.DB == nil:
		return errors.New("alligator: missing database")
	case c.Governor == nil:
		return errors.New("alligator: missing governor")
	case c.Token == nil:
		return errors.New("alligator: missing votes token")
	case c.Chain == nil:
		return errors.New("alligator: missing chain clock")
	}
	return nil
}

// Alligator is the VoteCaster together with its access control.
type Alligator struct {
	params params.Params

	// mu guards owner and paused. Mutating entry points hold the read side
	// for their whole duration so that a pause waits for in-flight calls.
	mu     sync.RWMutex
	owner  common.Address
	paused bool

	rules     *rules.Store
	ledger    *ledger.Ledger
	validator *validator.Validator
	deriver   *proxy.Deriver
	verifier  *sigverify.Verifier
	gov       governor.Governor
	token     governor.VotesToken
	locks     *keyedLocks

	subDelegationFeed  event.Feed
	subDelegationsFeed event.Feed
	voteCastFeed       event.Feed
	votesCastFeed      event.Feed
	scope              event.SubscriptionScope

	metrics alligatorMetrics
	log     *logrus.Entry
}

// New creates an alligator over cfg.DB. Rules and edge spend live in
// separate prefixed tables of the same database.
func New(cfg Config) (*Alligator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log := cfg.Log
	if log == nil {
		log = logrus.WithField("module", "alligator")
	}

	store := rules.New(rawdb.NewTable(cfg.DB, rulesPrefix))
	a := &Alligator{
		params:    cfg.Params.Copy(),
		owner:     cfg.Owner,
		rules:     store,
		ledger:    ledger.New(rawdb.NewTable(cfg.DB, ledgerPrefix), cfg.Governor),
		validator: validator.New(store, cfg.Governor, cfg.Chain, cfg.Registry),
		deriver:   proxy.NewDeriver(cfg.Params),
		verifier:  sigverify.NewVerifier(cfg.Params),
		gov:       cfg.Governor,
		token:     cfg.Token,
		locks:     newKeyedLocks(),
		log:       log,
	}
	a.metrics.init(cfg.Registerer)

	log.WithFields(logrus.Fields{
		"network":   cfg.Params.Name,
		"chainId":   cfg.Params.ChainID,
		"alligator": cfg.Params.Alligator.Hex(),
		"governor":  cfg.Params.Governor.Hex(),
	}).Info("Alligator initialized")
	return a, nil
}

// Close unsubscribes every audit subscription.
func (a *Alligator) Close() {
	a.scope.Close()
}

// Params returns the deployment parameters.
func (a *Alligator) Params() params.Params {
	return a.params.Copy()
}

// Registry returns the custom rule registry.
func (a *Alligator) Registry() *validator.Registry {
	return a.validator.Registry()
}

// enter admits a mutating call. The returned release must be called once the
// call is done.
func (a *Alligator) enter() (func(), error) {
	a.mu.RLock()
	if a.paused {
		a.mu.RUnlock()
		return nil, inter.ErrPaused
	}
	return a.mu.RUnlock, nil
}

func (a *Alligator) reject(err error, fields logrus.Fields) error {
	a.metrics.rejections.WithLabelValues(rejectionReason(err)).Inc()
	a.log.WithFields(fields).WithError(err).Debug("Call rejected")
	return err
}

/*
 * Access control
 */

func (a *Alligator) Owner() common.Address {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.owner
}

func (a *Alligator) Paused() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.paused
}

// TogglePause flips the pause flag. Only the owner may call it. It waits for
// in-flight mutating calls to finish.
func (a *Alligator) TogglePause(sender common.Address) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if sender != a.owner {
		return a.paused, a.reject(inter.ErrNotOwner, logrus.Fields{"sender": sender.Hex(), "op": "togglePause"})
	}
	a.paused = !a.paused
	if a.paused {
		a.metrics.paused.Set(1)
	} else {
		a.metrics.paused.Set(0)
	}
	a.log.WithField("paused", a.paused).Warn("Pause toggled")
	return a.paused, nil
}

// TransferOwnership hands the owner role to newOwner.
func (a *Alligator) TransferOwnership(sender, newOwner common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if sender != a.owner {
		return a.reject(inter.ErrNotOwner, logrus.Fields{"sender": sender.Hex(), "op": "transferOwnership"})
	}
	a.log.WithFields(logrus.Fields{"from": a.owner.Hex(), "to": newOwner.Hex()}).Warn("Ownership transferred")
	a.owner = newOwner
	return nil
}

/*
 * Subdelegations
 */

// Subdelegate sets the rules sender grants to. Zero allowance removes the
// delegation.
func (a *Alligator) Subdelegate(_ context.Context, sender, to common.Address, r inter.SubdelegationRules) error {
	release, err := a.enter()
	if err != nil {
		return a.reject(err, logrus.Fields{"from": sender.Hex(), "op": "subdelegate"})
	}
	defer release()

	if err := a.rules.Put(sender, to, normalize(r)); err != nil {
		return a.reject(err, logrus.Fields{"from": sender.Hex(), "op": "subdelegate"})
	}
	a.metrics.subdelegations.Inc()
	a.log.WithFields(logrus.Fields{"from": sender.Hex(), "to": to.Hex(), "rules": r}).Debug("Subdelegated")
	a.subDelegationFeed.Send(inter.SubDelegationEvent{From: sender, To: to, Rules: r.Copy()})
	return nil
}

// SubdelegateBatched grants the same rules to every target.
func (a *Alligator) SubdelegateBatched(ctx context.Context, sender common.Address, targets []common.Address, r inter.SubdelegationRules) error {
	return a.subdelegateBatched(ctx, sender, targets, []inter.SubdelegationRules{r})
}

// SubdelegateBatchedRules grants rules[i] to targets[i].
func (a *Alligator) SubdelegateBatchedRules(ctx context.Context, sender common.Address, targets []common.Address, r []inter.SubdelegationRules) error {
	if len(targets) != len(r) {
		return a.reject(fmt.Errorf("%w: %d targets, %d rules", inter.ErrLengthMismatch, len(targets), len(r)),
			logrus.Fields{"from": sender.Hex(), "op": "subdelegateBatched"})
	}
	return a.subdelegateBatched(ctx, sender, targets, r)
}

func (a *Alligator) subdelegateBatched(_ context.Context, sender common.Address, targets []common.Address, r []inter.SubdelegationRules) error {
	release, err := a.enter()
	if err != nil {
		return a.reject(err, logrus.Fields{"from": sender.Hex(), "op": "subdelegateBatched"})
	}
	defer release()

	normalized := make([]inter.SubdelegationRules, len(r))
	for i := range r {
		normalized[i] = normalize(r[i])
	}
	if err := a.rules.PutBatch(sender, targets, normalized); err != nil {
		return a.reject(err, logrus.Fields{"from": sender.Hex(), "op": "subdelegateBatched"})
	}
	a.metrics.subdelegations.Add(float64(len(targets)))
	a.log.WithFields(logrus.Fields{"from": sender.Hex(), "targets": len(targets)}).Debug("Subdelegated batch")

	ev := inter.SubDelegationsEvent{
		From:    sender,
		Targets: append([]common.Address(nil), targets...),
		Rules:   make([]inter.SubdelegationRules, len(r)),
	}
	for i := range r {
		ev.Rules[i] = r[i].Copy()
	}
	a.subDelegationsFeed.Send(ev)
	return nil
}

func normalize(r inter.SubdelegationRules) inter.SubdelegationRules {
	r = r.Copy()
	if r.Allowance == nil {
		r.Allowance = new(big.Int)
	}
	return r
}

// Subdelegations returns the rules of from -> to. A missing edge has a zero
// allowance.
func (a *Alligator) Subdelegations(from, to common.Address) (inter.SubdelegationRules, error) {
	return a.rules.Get(from, to)
}

// Delegates returns every live out-edge of from.
func (a *Alligator) Delegates(from common.Address) (map[common.Address]inter.SubdelegationRules, error) {
	return a.rules.Delegates(from)
}

/*
 * Read operations
 */

// ProxyAddress returns the proxy owned by owner.
func (a *Alligator) ProxyAddress(owner common.Address) common.Address {
	return a.deriver.ProxyAddress(owner)
}

// VotesCast returns the weight recorded as spent across from -> to.
func (a *Alligator) VotesCast(proxy common.Address, proposalID *big.Int, from, to common.Address) (*big.Int, error) {
	return a.ledger.VotesCast(proxy, proposalID, from, to)
}

// WeightCast returns the total weight proxy has cast for the proposal.
func (a *Alligator) WeightCast(ctx context.Context, proposalID *big.Int, proxy common.Address) (*big.Int, error) {
	return a.ledger.WeightCast(ctx, proposalID, proxy)
}

// Validate is a dry run of a single-chain cast by sender. It returns the
// votes the chain would cast and the pivot index, and changes nothing.
func (a *Alligator) Validate(ctx context.Context, sender common.Address, authority inter.AuthorityChain, proposalID *big.Int, support uint8) (*big.Int, int, error) {
	if len(authority) == 0 {
		return nil, 0, inter.ErrEmptyAuthority
	}
	proxy := a.deriver.ProxyAddress(authority.Owner())

	unlock := a.locks.lock(lockKey(proxy, proposalID))
	defer unlock()

	weight, err := a.proxyWeight(ctx, proxy, proposalID)
	if err != nil {
		return nil, 0, err
	}
	return a.validator.Validate(ctx, a.ledger, proxy, sender, authority, proposalID, support, weight)
}

// proxyWeight is the voting power of proxy at the proposal snapshot.
func (a *Alligator) proxyWeight(ctx context.Context, proxy common.Address, proposalID *big.Int) (*big.Int, error) {
	snapshot, err := a.gov.ProposalSnapshot(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("proposal snapshot: %w", err)
	}
	weight, err := a.token.GetPastVotes(ctx, proxy, snapshot)
	if err != nil {
		return nil, fmt.Errorf("past votes of %s: %w", proxy.Hex(), err)
	}
	return weight, nil
}

/*
 * Audit trail
 */

func (a *Alligator) SubscribeSubDelegation(ch chan<- inter.SubDelegationEvent) event.Subscription {
	return a.scope.Track(a.subDelegationFeed.Subscribe(ch))
}

func (a *Alligator) SubscribeSubDelegations(ch chan<- inter.SubDelegationsEvent) event.Subscription {
	return a.scope.Track(a.subDelegationsFeed.Subscribe(ch))
}

func (a *Alligator) SubscribeVoteCast(ch chan<- inter.VoteCastEvent) event.Subscription {
	return a.scope.Track(a.voteCastFeed.Subscribe(ch))
}

func (a *Alligator) SubscribeVotesCast(ch chan<- inter.VotesCastEvent) event.Subscription {
	return a.scope.Track(a.votesCastFeed.Subscribe(ch))
}
