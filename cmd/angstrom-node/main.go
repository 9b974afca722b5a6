// angstrom-node runs the order-pool indexer described by this module,
// wired the way github.com/luxfi/evm's cmd/evm-node/main.go wires its own
// node: a urfave/cli/v2 App with a logger-install Before hook and a
// default Action. It does not start the matching engine or consensus
// rounds.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	ethlog "github.com/ethereum/go-ethereum/log"
	"github.com/spf13/pflag"
	"github.com/urfave/cli/v2"

	"github.com/angstrom-node/angstrom/config"
	alog "github.com/angstrom-node/angstrom/log"
	"github.com/angstrom-node/angstrom/orderpool"
)

const clientIdentifier = "angstrom-node"

var app = &cli.App{
	Name:    clientIdentifier,
	Usage:   "Angstrom-style batch auction matching and consensus node",
	Version: "0.1.0",
}

func init() {
	app.Action = run
	app.Flags = cliFlags()
	app.Before = func(ctx *cli.Context) error {
		alog.SetLevel(levelFromString(ctx.String("log-level")))
		return nil
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cliFlags mirrors config.Flags' definitions as cli.Flag values so
// --help/usage text is rendered by this urfave/cli App.
func cliFlags() []cli.Flag {
	d := struct {
		listenAddr, rpcAddr, logLevel string
	}{listenAddr: ":30303", rpcAddr: "127.0.0.1:8545", logLevel: "info"}
	return []cli.Flag{
		&cli.StringFlag{Name: "listen-addr", Value: d.listenAddr, Usage: "peer-to-peer listen address"},
		&cli.StringFlag{Name: "rpc-addr", Value: d.rpcAddr, Usage: "RPC façade listen address"},
		&cli.StringFlag{Name: "validator-set", Usage: "path to the validator set file", Required: true},
		&cli.Uint64Flag{Name: "quorum-numerator", Value: config.DefaultQuorumNumerator, Usage: "quorum fraction numerator over a 100 denominator"},
		&cli.DurationFlag{Name: "transition-timeout", Value: config.DefaultTransitionTimeout},
		&cli.DurationFlag{Name: "preproposal-timeout", Value: config.DefaultPreProposalTimeout},
		&cli.DurationFlag{Name: "finalization-timeout", Value: config.DefaultFinalizationTimeout},
		&cli.IntFlag{Name: "peer-order-cache-capacity", Value: config.DefaultPeerOrderCacheCapacity},
		&cli.IntFlag{Name: "update-channel-capacity", Value: config.DefaultUpdateChannelCapacity},
		&cli.StringFlag{Name: "log-level", Value: d.logLevel},
		&cli.StringFlag{Name: "config", Usage: "path to a config file (yaml/json/toml)"},
	}
}

// toPflags copies a cli.Context's flag values into a pflag.FlagSet bound
// with config's own flag definitions, so config.Load's viper/file-merge
// logic runs unchanged regardless of whether a value came from the CLI or
// a config file.
func toPflags(ctx *cli.Context) *pflag.FlagSet {
	fs := pflag.NewFlagSet(clientIdentifier, pflag.ContinueOnError)
	config.Flags(fs)
	for _, name := range ctx.FlagNames() {
		if ctx.IsSet(name) {
			_ = fs.Set(name, ctx.String(name))
		}
	}
	return fs
}

// levelFromString maps a --log-level string to an ethlog.Level. The real
// github.com/ethereum/go-ethereum/log package (unlike the teacher's own
// luxfi/geth/log fork) has no LvlFromString helper, so this mirrors it by
// hand over the package's documented level constants.
func levelFromString(s string) ethlog.Level {
	switch s {
	case "trace":
		return ethlog.LevelTrace
	case "debug":
		return ethlog.LevelDebug
	case "info":
		return ethlog.LevelInfo
	case "warn":
		return ethlog.LevelWarn
	case "error":
		return ethlog.LevelError
	case "crit":
		return ethlog.LevelCrit
	default:
		return ethlog.LevelInfo
	}
}

func run(cliCtx *cli.Context) error {
	cfg, err := config.Load(toPflags(cliCtx))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	validators, err := loadValidatorSet(cfg.ValidatorSetPath, cfg.QuorumNumerator)
	if err != nil {
		return fmt.Errorf("load validator set: %w", err)
	}

	log := alog.New("cmd.angstrom-node")
	log.Info("starting angstrom-node",
		"listen", cfg.ListenAddr, "rpc", cfg.RPCAddr,
		"validators", len(validators.Members), "quorum_numerator", cfg.QuorumNumerator,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store := orderpool.NewPoolStorage()
	peers := orderpool.NewPeerSet(cfg.PeerOrderCacheCapacity)
	state := newDevChainState()
	val := orderpool.NewOrderValidator(state, state, common.Address{}, common.Hash{})

	indexer := orderpool.NewIndexer(store, val, peers, nil)
	go indexer.Run(ctx)

	log.Info("indexer running; consensus round driver wiring is per-deployment (validator keys, network transport) and is started by the embedding operator")
	<-ctx.Done()
	log.Info("shutting down")
	return nil
}
