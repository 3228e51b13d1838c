package launcher

import (
	"time"

	"github.com/rony4d/go-opera-devnode/opera/genesis"
)

// Defaults bundles the baseline configuration values the launcher uses
// before the config file and flags override them.

type Defaults struct {
	Node    NodeDefaults
	Chain   ChainDefaults
	RPC     RPCDefaults
	Metrics MetricsDefaults
	Logging LoggingDefaults
}

// NodeDefaults captures top-level node settings.

type NodeDefaults struct {
	Name string //	Human-readable node identity shown in logs; helps operators distinguish instances
}

// ChainDefaults selects the development chain the node runs.
type ChainDefaults struct {
	Preset      string        //	Named chain preset (default, legacy, pow); picks chain rules and the mining mode
	Accounts    int           //	Number of deterministic dev accounts funded at genesis and listed by eth_accounts
	BalanceEth  string        //	Genesis balance of every dev account, in ether (decimal string so it survives TOML round trips)
	BlockTime   time.Duration //	Interval mining period; zero mines only when transactions or mine requests arrive
	LegacyWork  bool          //	Issue eth_getWork as the three element array, without the pending block number
	GenesisTime uint64        //	Timestamp of block 0; later blocks use the wall clock, bumped to stay increasing
}

// RPCDefaults captures HTTP/WS options.
type RPCDefaults struct {
	EnableHTTP bool     //	Toggle for the JSON-RPC HTTP server; when true the node listens for HTTP requests (Metamask, curl, etc.).
	HTTPAddr   string   //	IP/interface the HTTP server binds to (e.g., 0.0.0.0 for all interfaces or 127.0.0.1 for local-only).
	HTTPPort   int      //	TCP port clients connect to for HTTP RPC; 8545 like every local Ethereum node.
	HTTPAPI    []string //	API namespaces exposed via HTTP; e.g., eth, anvil, trace, debug.
	HTTPCors   []string //	Origins browsers may call the HTTP server from; "*" allows any origin.

	EnableWS  bool     //	Toggle for the JSON-RPC WebSocket server.
	WSAddr    string   //	IP/interface the WebSocket server binds to.
	WSPort    int      //	TCP port clients connect to for WebSocket RPC.
	WSAPI     []string //	API namespaces exposed via WebSocket.
	WSOrigins []string //	Origins allowed to open WebSocket connections.

	Timeout time.Duration //	Read and write timeout of the HTTP server.
}

type MetricsDefaults struct {
	Enable   bool   //	Toggle for metrics collection; the counters are served as expvar JSON on HTTPAddr:HTTPPort.
	HTTPAddr string //	IP/interface the metrics server binds to.
	HTTPPort int    //	TCP port of the metrics server.
}

// LoggingDefaults controls log verbosity/format.
type LoggingDefaults struct {
	Verbosity int    //	Log level numeric (0=crit, 1=error, 2=warn, 3=info, 4=debug, 5=trace).
	Format    string //	Log output format (text vs json).
	Color     bool   //	Whether to use ANSI color codes in logs (helpful on terminals, best disabled when piping to files).
	SentryDSN string //	Sentry project DSN; when set, error records are shipped to Sentry.
}

var allAPIs = []string{"eth", "net", "web3", "anvil", "evm", "trace", "debug"}

// DefaultConfig returns a fully populated Defaults instance.

func DefaultConfig() Defaults {
	return Defaults{
		Node: NodeDefaults{
			Name: "opera-devnode",
		},
		Chain: ChainDefaults{
			Preset:      "default",
			Accounts:    10,
			BalanceEth:  "10000",
			GenesisTime: genesis.DefaultTime,
		},
		RPC: RPCDefaults{
			EnableHTTP: true,
			HTTPAddr:   "127.0.0.1",
			HTTPPort:   8545,
			HTTPAPI:    append([]string(nil), allAPIs...),
			HTTPCors:   []string{"*"},
			EnableWS:   true,
			WSAddr:     "127.0.0.1",
			WSPort:     8546,
			WSAPI:      append([]string(nil), allAPIs...),
			WSOrigins:  []string{"*"},
			Timeout:    30 * time.Second,
		},
		Metrics: MetricsDefaults{
			Enable:   false,
			HTTPAddr: "127.0.0.1",
			HTTPPort: 6060,
		},
		Logging: LoggingDefaults{
			Verbosity: 3,
			Format:    "text",
			Color:     true,
		},
	}
}
