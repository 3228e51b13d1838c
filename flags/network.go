package flags

import (
	"time"

	"gopkg.in/urfave/cli.v1"
)

// NetworkFlags covers the JSON-RPC listeners.
func NetworkFlags() []cli.Flag {
	return []cli.Flag{
		cli.BoolFlag{
			Name:  "http",
			Usage: "Enable the HTTP JSON-RPC server",
		},
		cli.StringFlag{
			Name:  "http.addr",
			Usage: "HTTP-RPC server listening interface",
			Value: "127.0.0.1",
		},
		cli.IntFlag{
			Name:  "http.port",
			Usage: "HTTP-RPC server listening port",
			Value: 8545,
		},
		cli.StringFlag{
			Name:  "http.api",
			Usage: "Comma-separated list of APIs offered over HTTP",
			Value: "eth,net,web3,anvil,evm,trace,debug",
		},
		cli.StringFlag{
			Name:  "http.corsdomain",
			Usage: "Comma-separated list of domains from which to accept cross origin requests (browser enforced)",
			Value: "*",
		},
		cli.BoolFlag{
			Name:  "ws",
			Usage: "Enable the WebSocket JSON-RPC server",
		},
		cli.StringFlag{
			Name:  "ws.addr",
			Usage: "WS-RPC server listening interface",
			Value: "127.0.0.1",
		},
		cli.IntFlag{
			Name:  "ws.port",
			Usage: "WS-RPC server listening port",
			Value: 8546,
		},
		cli.StringFlag{
			Name:  "ws.api",
			Usage: "Comma-separated list of APIs offered over WebSocket",
			Value: "eth,net,web3,anvil,evm,trace,debug",
		},
		cli.StringFlag{
			Name:  "ws.origins",
			Usage: "Comma-separated list of origins from which to accept WebSocket requests",
			Value: "*",
		},
		cli.DurationFlag{
			Name:  "rpc.timeout",
			Usage: "Read and write timeout of the HTTP-RPC server",
			Value: 30 * time.Second,
		},
	}
}
