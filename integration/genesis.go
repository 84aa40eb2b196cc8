package integration

// The devnet genesis describes the initial state of a node backed by the
// reference tally system: the chain clock, the open proposals, the voting
// power of every proxy and the subdelegations already in place. It is read
// from YAML:
//
//	block: 10
//	time: 1700000000
//	proposals:
//	  - id: "1"
//	    snapshot: 5
//	    deadline: 100
//	votes:
//	  - owner: "0x00000000000000000000000000000000000000aa"
//	    block: 1
//	    votes: "100"
//	subdelegations:
//	  - from: "0x00000000000000000000000000000000000000aa"
//	    to: "0x00000000000000000000000000000000000000bb"
//	    rules: {type: relative, allowance: "50000", maxRedelegations: 1}

import (
	"context"
	"fmt"
	"io/ioutil"
	"math/big"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"gopkg.in/yaml.v3"

	"github.com/rony4d/go-alligator/inter"
)

// Genesis is the initial state of a devnet node.
type Genesis struct {
	Block          uint64              `yaml:"block"`
	Time           uint64              `yaml:"time"`
	Proposals      []GenesisProposal   `yaml:"proposals"`
	Votes          []GenesisVotes      `yaml:"votes"`
	Subdelegations []GenesisDelegation `yaml:"subdelegations"`
}

// GenesisProposal opens a proposal in the tally system.
type GenesisProposal struct {
	ID       string `yaml:"id"`
	Snapshot uint64 `yaml:"snapshot"`
	Deadline uint64 `yaml:"deadline"`
}

// GenesisVotes checkpoints the voting power of the proxy owned by Owner.
type GenesisVotes struct {
	Owner common.Address `yaml:"owner"`
	Block uint64         `yaml:"block"`
	Votes string         `yaml:"votes"`
}

// GenesisDelegation is a subdelegation in place at genesis.
type GenesisDelegation struct {
	From  common.Address `yaml:"from"`
	To    common.Address `yaml:"to"`
	Rules RuleSpec       `yaml:"rules"`
}

// RuleSpec is the YAML form of inter.SubdelegationRules.
type RuleSpec struct {
	Type                   string         `yaml:"type"`
	Allowance              string         `yaml:"allowance"`
	MaxRedelegations       uint8          `yaml:"maxRedelegations"`
	NotValidBefore         uint32         `yaml:"notValidBefore"`
	NotValidAfter          uint32         `yaml:"notValidAfter"`
	BlocksBeforeVoteCloses uint16         `yaml:"blocksBeforeVoteCloses"`
	CustomRule             common.Address `yaml:"customRule"`
}

// ToRules builds the rules. An empty type means relative.
func (s RuleSpec) ToRules() (inter.SubdelegationRules, error) {
	allowance, err := parseBig(s.Allowance)
	if err != nil {
		return inter.SubdelegationRules{}, fmt.Errorf("allowance: %w", err)
	}

	var rules inter.SubdelegationRules
	switch s.Type {
	case "", "relative":
		if !allowance.IsUint64() {
			return inter.SubdelegationRules{}, fmt.Errorf("relative allowance %s out of range", allowance)
		}
		rules = inter.RelativeRules(allowance.Uint64())
	case "absolute":
		rules = inter.AbsoluteRules(allowance)
	default:
		return inter.SubdelegationRules{}, fmt.Errorf("unknown allowance type %q", s.Type)
	}
	return rules.
		WithMaxRedelegations(s.MaxRedelegations).
		WithValidity(s.NotValidBefore, s.NotValidAfter).
		WithBlocksBeforeVoteCloses(s.BlocksBeforeVoteCloses).
		WithCustomRule(s.CustomRule), nil
}

func parseBig(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := math.ParseBig256(s)
	if !ok {
		return nil, fmt.Errorf("invalid number %q", s)
	}
	return v, nil
}

// ParseGenesis decodes a YAML genesis.
func ParseGenesis(blob []byte) (*Genesis, error) {
	var g Genesis
	if err := yaml.Unmarshal(blob, &g); err != nil {
		return nil, fmt.Errorf("decode genesis: %w", err)
	}
	return &g, nil
}

// LoadGenesis reads a YAML genesis file.
func LoadGenesis(path string) (*Genesis, error) {
	blob, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseGenesis(blob)
}

// Apply writes the genesis state into the node. The clock is moved last so
// that checkpoints may be written at any block.
func (g *Genesis) Apply(ctx context.Context, n *Node) error {
	for _, p := range g.Proposals {
		id, err := parseBig(p.ID)
		if err != nil {
			return fmt.Errorf("proposal id: %w", err)
		}
		if err := n.Governor.Propose(id, idx.Block(p.Snapshot), idx.Block(p.Deadline)); err != nil {
			return fmt.Errorf("proposal %s: %w", p.ID, err)
		}
	}
	for _, v := range g.Votes {
		votes, err := parseBig(v.Votes)
		if err != nil {
			return fmt.Errorf("votes of %s: %w", v.Owner.Hex(), err)
		}
		if err := n.Token.SetVotes(n.Alligator.ProxyAddress(v.Owner), idx.Block(v.Block), votes); err != nil {
			return fmt.Errorf("votes of %s: %w", v.Owner.Hex(), err)
		}
	}
	for _, d := range g.Subdelegations {
		rules, err := d.Rules.ToRules()
		if err != nil {
			return fmt.Errorf("subdelegation %s -> %s: %w", d.From.Hex(), d.To.Hex(), err)
		}
		if err := n.Alligator.Subdelegate(ctx, d.From, d.To, rules); err != nil {
			return err
		}
	}
	n.Chain.Set(idx.Block(g.Block), inter.Timestamp(g.Time))
	return nil
}
