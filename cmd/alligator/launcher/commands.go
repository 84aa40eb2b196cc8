package launcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-alligator/alligator/proxy"
	"github.com/rony4d/go-alligator/alligator/sigverify"
	"github.com/rony4d/go-alligator/flags"
	"github.com/rony4d/go-alligator/integration"
	"github.com/rony4d/go-alligator/inter"
)

var (
	proxyCommand = cli.Command{
		Name:      "proxy",
		Usage:     "Print the proxy address of each owner",
		ArgsUsage: "<owner> [<owner>...]",
		Flags:     flags.AllFlags(),
		Action:    printProxies,
	}
	signCommand = cli.Command{
		Name:  "sign",
		Usage: "Sign a ballot for submission by a relayer",
		Description: `Without --reason, --params or --maxvotingpower a plain ballot is signed.
Reason or params select the extended ballot. A cap or more than one
--authority selects the batched ballot.`,
		Flags:  append(flags.AllFlags(), flags.BallotFlags()...),
		Action: signBallot,
	}
	replayCommand = cli.Command{
		Name:      "replay",
		Usage:     "Replay a YAML scenario against an in-memory devnet",
		ArgsUsage: "<scenario.yaml>",
		Flags:     flags.AllFlags(),
		Action:    replayScenario,
	}
	serveCommand = cli.Command{
		Name:   "serve",
		Usage:  "Run the alligator with its JSON-RPC and metrics endpoints",
		Flags:  flags.AllFlags(),
		Action: serve,
	}
)

func printProxies(ctx *cli.Context) error {
	if ctx.NArg() == 0 {
		return fmt.Errorf("at least one owner address is required")
	}
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	p, err := cfg.Params()
	if err != nil {
		return err
	}
	d := proxy.NewDeriver(p)
	for _, arg := range ctx.Args() {
		owner, err := parseAddress("owner", arg)
		if err != nil {
			return err
		}
		fmt.Fprintf(ctx.App.Writer, "%s %s\n", owner.Hex(), d.ProxyAddress(owner).Hex())
	}
	return nil
}

func signBallot(ctx *cli.Context) error {
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	p, err := cfg.Params()
	if err != nil {
		return err
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(ctx.String("key"), "0x"))
	if err != nil {
		return fmt.Errorf("invalid --key: %w", err)
	}
	proposalID, ok := math.ParseBig256(ctx.String("proposal"))
	if !ok {
		return fmt.Errorf("invalid --proposal %q", ctx.String("proposal"))
	}
	support := ctx.Uint("support")
	if support > uint(inter.Abstain) {
		return inter.ErrInvalidSupport
	}

	var authorities []inter.AuthorityChain
	for _, raw := range ctx.StringSlice("authority") {
		var chain inter.AuthorityChain
		for _, s := range splitCSV(raw) {
			addr, err := parseAddress("authority", s)
			if err != nil {
				return err
			}
			chain = append(chain, addr)
		}
		authorities = append(authorities, chain)
	}
	if len(authorities) == 0 {
		return inter.ErrEmptyAuthority
	}

	var callParams []byte
	if raw := ctx.String("params"); raw != "" {
		if callParams, err = hexutil.Decode(raw); err != nil {
			return fmt.Errorf("invalid --params: %w", err)
		}
	}
	reason := ctx.String("reason")

	v := sigverify.NewVerifier(p)
	var digest common.Hash
	switch {
	case ctx.IsSet("maxvotingpower") || len(authorities) > 1:
		maxVotingPower := math.MaxBig256
		if raw := ctx.String("maxvotingpower"); raw != "" {
			if maxVotingPower, ok = math.ParseBig256(raw); !ok {
				return fmt.Errorf("invalid --maxvotingpower %q", raw)
			}
		}
		digest = v.BatchedDigest(inter.ExtendedBallotBatched{
			ProposalID:     proposalID,
			Support:        uint8(support),
			MaxVotingPower: maxVotingPower,
			Authorities:    authorities,
			Reason:         reason,
			Params:         callParams,
		})
	case reason != "" || len(callParams) > 0:
		digest = v.ExtendedBallotDigest(inter.ExtendedBallot{
			ProposalID: proposalID,
			Support:    uint8(support),
			Authority:  authorities[0],
			Reason:     reason,
			Params:     callParams,
		})
	default:
		digest = v.BallotDigest(inter.Ballot{
			ProposalID: proposalID,
			Support:    uint8(support),
			Authority:  authorities[0],
		})
	}

	sig, err := sigverify.Sign(digest, key)
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.App.Writer, "signer    %s\n", crypto.PubkeyToAddress(key.PublicKey).Hex())
	fmt.Fprintf(ctx.App.Writer, "digest    %s\n", digest.Hex())
	fmt.Fprintf(ctx.App.Writer, "signature %s\n", hexutil.Encode(sig))
	return nil
}

func replayScenario(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("exactly one scenario file is required")
	}
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	p, err := cfg.Params()
	if err != nil {
		return err
	}
	owner, err := cfg.OwnerAddress()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Node.Logging)
	if err != nil {
		return err
	}

	scenario, err := integration.LoadScenario(ctx.Args().First())
	if err != nil {
		return err
	}
	// replays never touch the configured database
	node, err := integration.NewNode(context.Background(), integration.Config{
		Params: p,
		Owner:  owner,
		Preset: integration.DevPreset(),
		Log:    logrus.NewEntry(logger),
	}, &scenario.Genesis)
	if err != nil {
		return err
	}
	defer node.Close()

	w := ctx.App.Writer
	failed := 0
	for _, r := range integration.Replay(context.Background(), node, scenario.Steps) {
		switch {
		case r.Err != nil:
			failed++
			fmt.Fprintf(w, "%3d %-12s error: %v\n", r.Index, r.Op, r.Err)
		case r.Votes != nil:
			fmt.Fprintf(w, "%3d %-12s votes=%s\n", r.Index, r.Op, r.Votes)
		default:
			fmt.Fprintf(w, "%3d %-12s ok\n", r.Index, r.Op)
		}
	}
	for _, prop := range scenario.Genesis.Proposals {
		id, ok := math.ParseBig256(prop.ID)
		if !ok {
			continue
		}
		against, forVotes, abstain, err := node.Governor.Tally(id)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "proposal %s: for=%s against=%s abstain=%s\n", prop.ID, forVotes, against, abstain)
	}
	fmt.Fprintf(w, "%d steps, %d failed\n", len(scenario.Steps), failed)
	return nil
}
