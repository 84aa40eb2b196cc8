package integration

import (
	"context"
	"fmt"
	"io/ioutil"
	"math/big"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/rony4d/go-alligator/inter"
)

// Step operations.
const (
	OpSubdelegate = "subdelegate"
	OpCast        = "cast"
	OpCastBatched = "castBatched"
	OpAdvance     = "advance"
	OpPause       = "pause"
)

// Scenario is a genesis followed by a list of steps replayed against it.
type Scenario struct {
	Genesis Genesis `yaml:"genesis"`
	Steps   []Step  `yaml:"steps"`
}

// Step is one operation of a scenario. Only the fields of its Op are read.
type Step struct {
	Op     string         `yaml:"op"`
	Sender common.Address `yaml:"sender"`

	// subdelegate
	Targets []common.Address `yaml:"targets"`
	Rules   RuleSpec         `yaml:"rules"`

	// cast, castBatched
	Proposal       string             `yaml:"proposal"`
	Support        uint8              `yaml:"support"`
	Reason         string             `yaml:"reason"`
	Authority      []common.Address   `yaml:"authority"`
	Authorities    [][]common.Address `yaml:"authorities"`
	MaxVotingPower string             `yaml:"maxVotingPower"`

	// advance
	Blocks  uint64 `yaml:"blocks"`
	Seconds uint64 `yaml:"seconds"`
}

// StepResult is the outcome of one step. Votes is set for casts only.
type StepResult struct {
	Index int
	Op    string
	Votes *big.Int
	Err   error
}

// ParseScenario decodes a YAML scenario.
func ParseScenario(blob []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(blob, &s); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	return &s, nil
}

// LoadScenario reads a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	blob, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScenario(blob)
}

// Replay runs the steps in order. A failing step is recorded and the replay
// goes on, the same way a rejected transaction does not stop a chain.
func Replay(ctx context.Context, n *Node, steps []Step) []StepResult {
	results := make([]StepResult, 0, len(steps))
	for i, step := range steps {
		votes, err := n.apply(ctx, step)
		results = append(results, StepResult{
			Index: i,
			Op:    step.Op,
			Votes: votes,
			Err:   err,
		})
	}
	return results
}

func (n *Node) apply(ctx context.Context, s Step) (*big.Int, error) {
	switch s.Op {
	case OpSubdelegate:
		rules, err := s.Rules.ToRules()
		if err != nil {
			return nil, err
		}
		if len(s.Targets) == 1 {
			return nil, n.Alligator.Subdelegate(ctx, s.Sender, s.Targets[0], rules)
		}
		return nil, n.Alligator.SubdelegateBatched(ctx, s.Sender, s.Targets, rules)

	case OpCast:
		id, err := parseBig(s.Proposal)
		if err != nil {
			return nil, err
		}
		return n.Alligator.CastVoteWithReason(ctx, s.Sender, s.Authority, id, s.Support, s.Reason)

	case OpCastBatched:
		id, err := parseBig(s.Proposal)
		if err != nil {
			return nil, err
		}
		authorities := make([]inter.AuthorityChain, len(s.Authorities))
		for i, a := range s.Authorities {
			authorities[i] = a
		}
		if s.MaxVotingPower == "" {
			return n.Alligator.CastVoteWithReasonAndParamsBatched(ctx, s.Sender, authorities, id, s.Support, s.Reason, nil)
		}
		max, err := parseBig(s.MaxVotingPower)
		if err != nil {
			return nil, err
		}
		return n.Alligator.LimitedCastVoteWithReasonAndParamsBatched(ctx, s.Sender, max, authorities, id, s.Support, s.Reason, nil)

	case OpAdvance:
		n.Chain.Advance(idx.Block(s.Blocks), s.Seconds)
		return nil, nil

	case OpPause:
		_, err := n.Alligator.TogglePause(s.Sender)
		return nil, err

	default:
		return nil, fmt.Errorf("unknown op %q", s.Op)
	}
}
