package integration

import (
	"context"
	"io/ioutil"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-alligator/inter"
	"github.com/rony4d/go-alligator/params"
)

var (
	aa = common.HexToAddress("0xaa")
	bb = common.HexToAddress("0xbb")
	cc = common.HexToAddress("0xcc")
	dd = common.HexToAddress("0xdd")
)

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(ioutil.Discard)
	return logrus.NewEntry(l)
}

func newTestNode(t *testing.T, preset PresetConfig, dataDir string, g *Genesis) *Node {
	t.Helper()
	n, err := NewNode(context.Background(), Config{
		Params:     params.FakeNetParams(),
		Owner:      aa,
		Preset:     preset,
		DataDir:    dataDir,
		Registerer: prometheus.NewRegistry(),
		Log:        quietLog(),
	}, g)
	require.NoError(t, err)
	return n
}

func TestMakeDB(t *testing.T) {
	require := require.New(t)

	db, err := MakeDB(DevPreset(), "")
	require.NoError(err)
	require.NoError(db.Close())

	_, err = MakeDB(DefaultPreset(), "")
	require.Error(err)

	_, err = MakeDB(PresetConfig{Backend: "badger"}, t.TempDir())
	require.Error(err)
}

func TestParseGenesis(t *testing.T) {
	require := require.New(t)

	s, err := LoadScenario("testdata/devnet.yaml")
	require.NoError(err)

	g := s.Genesis
	require.Equal(uint64(10), g.Block)
	require.Len(g.Proposals, 1)
	require.Equal(aa, g.Votes[0].Owner)
	require.Len(g.Subdelegations, 3)

	rules, err := g.Subdelegations[0].Rules.ToRules()
	require.NoError(err)
	require.Equal(inter.Relative, rules.AllowanceType)
	require.Equal(uint8(1), rules.MaxRedelegations)
	require.Equal(int64(50_000), rules.Allowance.Int64())

	rules, err = g.Subdelegations[2].Rules.ToRules()
	require.NoError(err)
	require.Equal(inter.Absolute, rules.AllowanceType)
	require.Equal(uint16(20), rules.BlocksBeforeVoteCloses)

	_, err = RuleSpec{Type: "fractional", Allowance: "1"}.ToRules()
	require.Error(err)
	_, err = RuleSpec{Allowance: "lots"}.ToRules()
	require.Error(err)

	_, err = ParseGenesis([]byte("block: [1"))
	require.Error(err)
}

func TestReplay_devnet(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	s, err := LoadScenario("testdata/devnet.yaml")
	require.NoError(err)
	n := newTestNode(t, DevPreset(), "", &s.Genesis)
	defer n.Close()

	rules, err := n.Alligator.Subdelegations(aa, bb)
	require.NoError(err)
	require.True(rules.Exists())

	results := Replay(ctx, n, s.Steps)
	require.Len(results, len(s.Steps))

	votes := func(i int) int64 {
		require.NoError(results[i].Err, "step %d", i)
		return results[i].Votes.Int64()
	}
	require.Equal(int64(50), votes(0))
	require.ErrorIs(results[1].Err, inter.ErrZeroVotesToCast)
	require.ErrorIs(results[2].Err, inter.ErrTooEarly)
	require.NoError(results[3].Err)
	require.Equal(int64(25), votes(4))
	require.Equal(int64(25), votes(5))

	against, forVotes, abstain, err := n.Governor.Tally(big.NewInt(1))
	require.NoError(err)
	require.Equal(int64(25), against.Int64())
	require.Equal(int64(50), forVotes.Int64())
	require.Equal(int64(25), abstain.Int64())
}

func TestReplay_pause(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	n := newTestNode(t, DevPreset(), "", nil)
	defer n.Close()

	results := Replay(ctx, n, []Step{
		{Op: OpPause, Sender: bb},
		{Op: OpPause, Sender: aa},
		{Op: OpSubdelegate, Sender: aa, Targets: []common.Address{bb}, Rules: RuleSpec{Allowance: "100000"}},
		{Op: OpPause, Sender: aa},
		{Op: OpSubdelegate, Sender: aa, Targets: []common.Address{bb, cc}, Rules: RuleSpec{Allowance: "100000"}},
		{Op: "vote"},
	})
	require.ErrorIs(results[0].Err, inter.ErrNotOwner)
	require.NoError(results[1].Err)
	require.ErrorIs(results[2].Err, inter.ErrPaused)
	require.NoError(results[3].Err)
	require.NoError(results[4].Err)
	require.Error(results[5].Err)

	delegates, err := n.Alligator.Delegates(aa)
	require.NoError(err)
	require.Len(delegates, 2)
}

func TestNode_leveldbSurvivesRestart(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	dir := t.TempDir()

	preset := DefaultPreset()
	preset.CacheMB, preset.Handles = 16, 16

	n := newTestNode(t, preset, dir, nil)
	require.NoError(n.Alligator.Subdelegate(ctx, aa, dd, inter.AbsoluteRules(big.NewInt(30))))
	require.NoError(n.Close())

	n = newTestNode(t, preset, dir, nil)
	defer n.Close()
	rules, err := n.Alligator.Subdelegations(aa, dd)
	require.NoError(err)
	require.Equal(inter.Absolute, rules.AllowanceType)
	require.Equal(int64(30), rules.Allowance.Int64())
}
