package launcher

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/metrics/exp"
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-opera-devnode/ethapi"
	"github.com/rony4d/go-opera-devnode/flags"
	"github.com/rony4d/go-opera-devnode/integration"
	"github.com/rony4d/go-opera-devnode/opera/genesis"
)

var app = flags.NewApp(ethapi.Version, "local development node with reorg, bundle simulation and storage paging")

var dumpConfigCommand = cli.Command{
	Action:      dumpConfig,
	Name:        "dumpconfig",
	Usage:       "Show configuration values",
	ArgsUsage:   "[<file>]",
	Description: `The dumpconfig command shows configuration values. Flags go before the command.`,
}

func init() {
	app.Action = run
	app.Commands = []cli.Command{dumpConfigCommand}
}

// Launch parses the command line and runs the node until it is interrupted.
func Launch(args []string) error {
	return app.Run(args)
}

func run(ctx *cli.Context) error {
	if args := ctx.Args(); len(args) > 0 {
		return fmt.Errorf("invalid command: %q", args[0])
	}
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	if _, err := setupLogging(cfg.Node.Logging); err != nil {
		return err
	}

	node, err := makeNode(cfg)
	if err != nil {
		return err
	}
	if cfg.Metrics.Enable {
		startMetrics(cfg.Metrics)
	}
	stack, err := startRPC(node, cfg.Node.RPC)
	if err != nil {
		return err
	}
	defer stack.Close()

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	node.Start(runCtx)

	log.Info("Node started", "name", cfg.Node.Name, "preset", node.Config.Name, "chain", node.Config.Rules.NetworkID)
	for i, addr := range node.Signers.Accounts() {
		log.Info("Dev account", "index", i, "address", addr)
	}

	waitForInterrupt()
	log.Info("Got interrupt, shutting down...")
	return nil
}

func makeNode(cfg Config) (*integration.Node, error) {
	preset, err := cfg.PresetConfig()
	if err != nil {
		return nil, err
	}
	return integration.NewNode(preset, genesis.New(cfg.Chain.GenesisTime))
}

func startMetrics(cfg MetricsConfig) {
	if !metrics.Enabled {
		// collectors register at startup, so only the --metrics flag can turn them on
		log.Warn("Metrics are enabled in the config file only, pass --metrics to collect them")
	}
	address := fmt.Sprintf("%s:%d", cfg.HTTPAddr, cfg.HTTPPort)
	log.Info("Enabling stand-alone metrics HTTP endpoint", "address", address)
	exp.Setup(address)
}

func waitForInterrupt() {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigc)
	<-sigc
}

func dumpConfig(ctx *cli.Context) error {
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	out, err := tomlSettings.Marshal(&cfg)
	if err != nil {
		return err
	}
	dump := os.Stdout
	if ctx.NArg() > 0 {
		dump, err = os.OpenFile(ctx.Args().Get(0), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		defer dump.Close()
	}
	_, err = dump.Write(out)
	return err
}
