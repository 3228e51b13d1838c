// This file maps the config file and CLI context onto the launcher config.

package launcher

import (
	"bufio"
	"errors"
	"fmt"
	"math/big"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/params"
	"github.com/naoina/toml"
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-opera-devnode/integration"
)

// Config aggregates every subsystem's configuration the launcher needs.
type Config struct {
	Node    NodeConfig
	Chain   ChainConfig
	Metrics MetricsConfig
}

type NodeConfig struct {
	Name    string
	RPC     RPCConfig
	Logging LoggingConfig
}

type RPCConfig struct {
	HTTPEnabled bool
	HTTPAddr    string
	HTTPPort    int
	HTTPAPI     []string
	HTTPCors    []string

	EnableWS  bool
	WSAddr    string
	WSPort    int
	WSAPI     []string
	WSOrigins []string

	Timeout time.Duration
}

type LoggingConfig struct {
	Verbosity int
	Format    string
	Color     bool
	SentryDSN string
}

type ChainConfig struct {
	Preset      string
	Accounts    int
	BalanceEth  string
	BlockTime   time.Duration
	LegacyWork  bool
	GenesisTime uint64
}

type MetricsConfig struct {
	Enable   bool
	HTTPAddr string
	HTTPPort int
}

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

// -----------------------------------------------------------------------------
// Default config + builders
// -----------------------------------------------------------------------------

//	defaultConfig builds the launcher config from DefaultConfig in defaults.go,
//	so this file stays in sync with the documented defaults

func defaultConfig() Config {
	d := DefaultConfig()
	return Config{
		Node: NodeConfig{
			Name: d.Node.Name,
			RPC: RPCConfig{
				HTTPEnabled: d.RPC.EnableHTTP,
				HTTPAddr:    d.RPC.HTTPAddr,
				HTTPPort:    d.RPC.HTTPPort,
				HTTPAPI:     d.RPC.HTTPAPI,
				HTTPCors:    d.RPC.HTTPCors,
				EnableWS:    d.RPC.EnableWS,
				WSAddr:      d.RPC.WSAddr,
				WSPort:      d.RPC.WSPort,
				WSAPI:       d.RPC.WSAPI,
				WSOrigins:   d.RPC.WSOrigins,
				Timeout:     d.RPC.Timeout,
			},
			Logging: LoggingConfig{
				Verbosity: d.Logging.Verbosity,
				Format:    d.Logging.Format,
				Color:     d.Logging.Color,
				SentryDSN: d.Logging.SentryDSN,
			},
		},
		Chain: ChainConfig{
			Preset:      d.Chain.Preset,
			Accounts:    d.Chain.Accounts,
			BalanceEth:  d.Chain.BalanceEth,
			BlockTime:   d.Chain.BlockTime,
			LegacyWork:  d.Chain.LegacyWork,
			GenesisTime: d.Chain.GenesisTime,
		},
		Metrics: MetricsConfig{
			Enable:   d.Metrics.Enable,
			HTTPAddr: d.Metrics.HTTPAddr,
			HTTPPort: d.Metrics.HTTPPort,
		},
	}
}

// MakeAllConfigs merges defaults, the optional config file, then CLI overrides
// into a single config struct.
func MakeAllConfigs(ctx *cli.Context) (Config, error) {
	cfg := defaultConfig()

	if file := ctx.GlobalString("config"); file != "" {
		if err := loadConfigFile(file, &cfg); err != nil {
			return cfg, err
		}
	}

	applyCLIOverrides(ctx, &cfg)

	if _, err := cfg.PresetConfig(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// PresetConfig resolves the chain section into the preset the node is
// assembled from.
func (c *Config) PresetConfig() (integration.PresetConfig, error) {
	preset, err := integration.GetPresetByName(c.Chain.Preset)
	if err != nil {
		return preset, err
	}
	if c.Chain.Accounts < 0 {
		return preset, fmt.Errorf("negative number of accounts: %d", c.Chain.Accounts)
	}
	preset.Accounts = c.Chain.Accounts
	if c.Chain.BalanceEth != "" {
		eth, ok := new(big.Int).SetString(c.Chain.BalanceEth, 10)
		if !ok || eth.Sign() < 0 {
			return preset, fmt.Errorf("invalid balance %q: want a non-negative number of ether", c.Chain.BalanceEth)
		}
		preset.Balance = eth.Mul(eth, big.NewInt(params.Ether))
	}
	if c.Chain.BlockTime > 0 {
		preset.BlockTime = c.Chain.BlockTime
	}
	preset.LegacyWork = preset.LegacyWork || c.Chain.LegacyWork
	return preset, nil
}

// -----------------------------------------------------------------------------
// Config-file / CLI wiring
// -----------------------------------------------------------------------------

func loadConfigFile(file string, cfg *Config) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

func applyCLIOverrides(ctx *cli.Context, cfg *Config) {
	if ctx.GlobalIsSet("identity") {
		cfg.Node.Name = ctx.GlobalString("identity")
	}

	if ctx.GlobalBool("http") {
		cfg.Node.RPC.HTTPEnabled = true
	}
	if ctx.GlobalIsSet("http.addr") {
		cfg.Node.RPC.HTTPAddr = ctx.GlobalString("http.addr")
	}
	if ctx.GlobalIsSet("http.port") {
		cfg.Node.RPC.HTTPPort = ctx.GlobalInt("http.port")
	}
	if ctx.GlobalIsSet("http.api") {
		cfg.Node.RPC.HTTPAPI = splitCSV(ctx.GlobalString("http.api"))
	}
	if ctx.GlobalIsSet("http.corsdomain") {
		cfg.Node.RPC.HTTPCors = splitCSV(ctx.GlobalString("http.corsdomain"))
	}
	if ctx.GlobalBool("ws") {
		cfg.Node.RPC.EnableWS = true
	}
	if ctx.GlobalIsSet("ws.addr") {
		cfg.Node.RPC.WSAddr = ctx.GlobalString("ws.addr")
	}
	if ctx.GlobalIsSet("ws.port") {
		cfg.Node.RPC.WSPort = ctx.GlobalInt("ws.port")
	}
	if ctx.GlobalIsSet("ws.api") {
		cfg.Node.RPC.WSAPI = splitCSV(ctx.GlobalString("ws.api"))
	}
	if ctx.GlobalIsSet("ws.origins") {
		cfg.Node.RPC.WSOrigins = splitCSV(ctx.GlobalString("ws.origins"))
	}
	if ctx.GlobalIsSet("rpc.timeout") {
		cfg.Node.RPC.Timeout = ctx.GlobalDuration("rpc.timeout")
	}

	if ctx.GlobalIsSet("log.format") {
		cfg.Node.Logging.Format = ctx.GlobalString("log.format")
	}
	if ctx.GlobalIsSet("log.verbosity") {
		cfg.Node.Logging.Verbosity = ctx.GlobalInt("log.verbosity")
	}
	if ctx.GlobalIsSet("log.color") {
		cfg.Node.Logging.Color = ctx.GlobalBool("log.color")
	}
	if ctx.GlobalIsSet("sentry.dsn") {
		cfg.Node.Logging.SentryDSN = ctx.GlobalString("sentry.dsn")
	}

	if ctx.GlobalBool("metrics") {
		cfg.Metrics.Enable = true
	}
	if ctx.GlobalIsSet("metrics.addr") {
		cfg.Metrics.HTTPAddr = ctx.GlobalString("metrics.addr")
	}
	if ctx.GlobalIsSet("metrics.port") {
		cfg.Metrics.HTTPPort = ctx.GlobalInt("metrics.port")
	}

	if ctx.GlobalIsSet("preset") {
		cfg.Chain.Preset = ctx.GlobalString("preset")
	}
	if ctx.GlobalIsSet("accounts") {
		cfg.Chain.Accounts = ctx.GlobalInt("accounts")
	}
	if ctx.GlobalIsSet("balance") {
		cfg.Chain.BalanceEth = ctx.GlobalString("balance")
	}
	if ctx.GlobalIsSet("block-time") {
		cfg.Chain.BlockTime = ctx.GlobalDuration("block-time")
	}
	if ctx.GlobalBool("legacy-work") {
		cfg.Chain.LegacyWork = true
	}
	if ctx.GlobalIsSet("genesis.time") {
		cfg.Chain.GenesisTime = ctx.GlobalUint64("genesis.time")
	}
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
