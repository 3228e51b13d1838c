package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// NodeFlags holds knobs of the development chain itself (preset, dev accounts, mining).
func NodeFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "identity",
			Usage: "Custom node name shown in logs",
		},
		cli.StringFlag{
			Name:  "preset",
			Usage: "Chain preset (default|legacy|pow)",
			Value: "default",
		},
		cli.IntFlag{
			Name:  "accounts",
			Usage: "Number of funded dev accounts",
			Value: 10,
		},
		cli.StringFlag{
			Name:  "balance",
			Usage: "Genesis balance of every dev account, in ether",
			Value: "10000",
		},
		cli.DurationFlag{
			Name:  "block-time",
			Usage: "Mine a block at this interval on top of automining (0 disables)",
		},
		cli.BoolFlag{
			Name:  "legacy-work",
			Usage: "Issue eth_getWork results without the block number",
		},
		cli.Uint64Flag{
			Name:  "genesis.time",
			Usage: "Genesis block timestamp",
			Value: 1608600000,
		},
	}
}
