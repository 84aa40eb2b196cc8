package integration

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-alligator/alligator"
	"github.com/rony4d/go-alligator/governor/memgov"
	"github.com/rony4d/go-alligator/params"
)

// Config is everything NewNode needs.
type Config struct {
	Params  params.Params
	Owner   common.Address
	Preset  PresetConfig
	DataDir string

	// Registerer receives the alligator metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer
	Log        *logrus.Entry
}

// Node is an alligator wired to the reference tally system.
type Node struct {
	Alligator *alligator.Alligator
	Governor  *memgov.Governor
	Token     *memgov.Token
	Chain     *memgov.Chain
	DB        ethdb.Database
}

// MakeDB opens the database selected by the preset.
func MakeDB(preset PresetConfig, dataDir string) (ethdb.Database, error) {
	switch preset.Backend {
	case BackendMemory:
		return rawdb.NewMemoryDatabase(), nil
	case BackendLevelDB:
		if dataDir == "" {
			return nil, fmt.Errorf("leveldb backend requires a data directory")
		}
		return rawdb.NewLevelDBDatabase(filepath.Join(dataDir, "chaindata"), preset.CacheMB, preset.Handles, "alligator/db/", false)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", preset.Backend)
	}
}

// NewNode opens the storage, builds the collaborators and applies the genesis
// if one is given. The caller must Close the node.
func NewNode(ctx context.Context, cfg Config, genesis *Genesis) (*Node, error) {
	if cfg.Log == nil {
		cfg.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	db, err := MakeDB(cfg.Preset, cfg.DataDir)
	if err != nil {
		return nil, err
	}

	chain := memgov.NewChain(0, 0)
	gov := memgov.New(cfg.Params.Governor, chain)
	token := memgov.NewToken(chain)

	a, err := alligator.New(alligator.Config{
		Params:     cfg.Params,
		Owner:      cfg.Owner,
		DB:         db,
		Governor:   gov,
		Token:      token,
		Chain:      chain,
		Registerer: cfg.Registerer,
		Log:        cfg.Log.WithField("module", "alligator"),
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	n := &Node{
		Alligator: a,
		Governor:  gov,
		Token:     token,
		Chain:     chain,
		DB:        db,
	}
	if genesis != nil {
		if err := genesis.Apply(ctx, n); err != nil {
			n.Close()
			return nil, fmt.Errorf("apply genesis: %w", err)
		}
		cfg.Log.WithFields(logrus.Fields{
			"proposals":      len(genesis.Proposals),
			"checkpoints":    len(genesis.Votes),
			"subdelegations": len(genesis.Subdelegations),
			"block":          genesis.Block,
		}).Info("Genesis applied")
	}
	return n, nil
}

// Close releases the alligator subscriptions and the database.
func (n *Node) Close() error {
	n.Alligator.Close()
	return n.DB.Close()
}
