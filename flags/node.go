package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// StoreFlags holds knobs specific to the local database and devnet state.

func StoreFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "preset",
			Usage: "Store preset (default|dev|production)",
		},
		cli.StringFlag{
			Name:  "store",
			Usage: "Storage backend (memory|leveldb)",
		},
		cli.IntFlag{
			Name:  "cache",
			Usage: "Megabytes of memory allocated to the leveldb cache",
			Value: 256,
		},
		cli.IntFlag{
			Name:  "handles",
			Usage: "Number of open file handles for leveldb",
			Value: 256,
		},
		cli.StringFlag{
			Name:  "genesis",
			Usage: "YAML devnet genesis applied at startup",
		},
	}
}
