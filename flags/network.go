package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// NetworkFlags selects the deployment the alligator is bound to. Any identity
// flag overrides the value of the chosen network preset.

func NetworkFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "network",
			Usage: "Deployment preset (main|test|fake)",
			Value: "fake",
		},
		cli.Uint64Flag{
			Name:  "chainid",
			Usage: "Chain ID of the EIP-712 signing domain",
		},
		cli.StringFlag{
			Name:  "alligator",
			Usage: "Alligator address (signing domain and proxy deployer)",
		},
		cli.StringFlag{
			Name:  "governor",
			Usage: "Governor address votes are forwarded to",
		},
		cli.StringFlag{
			Name:  "owner",
			Usage: "Account allowed to pause the alligator",
		},
	}
}

// BallotFlags describe a ballot for the sign command.
func BallotFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "key",
			Usage: "Hex-encoded secp256k1 private key of the signer",
		},
		cli.StringFlag{
			Name:  "proposal",
			Usage: "Proposal ID (decimal or 0x-hex)",
		},
		cli.UintFlag{
			Name:  "support",
			Usage: "Vote direction (0=against,1=for,2=abstain)",
			Value: 1,
		},
		cli.StringSliceFlag{
			Name:  "authority",
			Usage: "Comma-separated authority chain, owner first; repeat for a batch",
		},
		cli.StringFlag{
			Name:  "reason",
			Usage: "Vote reason (signs an extended ballot)",
		},
		cli.StringFlag{
			Name:  "params",
			Usage: "Hex-encoded vote params (signs an extended ballot)",
		},
		cli.StringFlag{
			Name:  "maxvotingpower",
			Usage: "Batch cap (signs a batched ballot); empty means unlimited",
		},
	}
}
