// Package cli implements the vdk command tree.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"votedesk.mini/vdk/internal/app"
	"votedesk.mini/vdk/internal/config"
	"votedesk.mini/vdk/internal/types"
)

// defaultTimeout bounds one-shot commands.
const defaultTimeout = 2 * time.Minute

// globals are the persistent flags shared by every command.
type globals struct {
	configFile string
	rpcURL     string
	contract   string
	walletMode string
	keyFile    string
	logLevel   string
	timeout    time.Duration

	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCommand builds the vdk command tree.
func NewRootCommand() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "vdk",
		Short:         "votedesk: client for the BlockchainVoting contract",
		Long:          "vdk connects a wallet to a deployed BlockchainVoting contract, tracks candidates, voters and vote totals, and submits votes and registrations.",
		Version:       fmt.Sprintf("%s (built %s)", types.Version, types.BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return g.load(cmd.Flags(), cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&g.configFile, "config", "c", "", "config file (JSON); defaults to $VDK_CONFIG_FILE")
	flags.StringVar(&g.rpcURL, "rpc-url", "", "JSON-RPC endpoint of the node")
	flags.StringVar(&g.contract, "contract", "", "address of the voting contract")
	flags.StringVar(&g.walletMode, "wallet", "", "wallet mode: rpc, keyfile or none")
	flags.StringVar(&g.keyFile, "key-file", "", "private key file for keyfile mode")
	flags.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.DurationVar(&g.timeout, "timeout", defaultTimeout, "deadline for one-shot commands")

	root.AddCommand(
		newServeCommand(g),
		newStatusCommand(g),
		newResultsCommand(g),
		newVoteCommand(g),
		newRegisterVoterCommand(g),
		newAddCandidateCommand(g),
		newKeygenCommand(g),
		newDiscoverCommand(g),
	)
	return root
}

// Execute runs the command tree until it finishes or the process is
// interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

// load reads the configuration and applies explicitly set flags on top.
func (g *globals) load(flags *pflag.FlagSet, cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(g.configFile)
	if err != nil {
		return err
	}
	if flags.Changed("rpc-url") {
		cfg.RPCURL = g.rpcURL
	}
	if flags.Changed("contract") {
		cfg.ContractAddress = g.contract
	}
	if flags.Changed("wallet") {
		cfg.WalletMode = g.walletMode
	}
	if flags.Changed("key-file") {
		cfg.KeyFile = g.keyFile
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = g.logLevel
	}
	g.cfg = cfg
	g.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(g.logger)
	return nil
}

// open builds the app for a one-shot command.
func (g *globals) open(ctx context.Context) (*app.App, error) {
	a, err := app.New(ctx, g.cfg, g.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to start: %w", err)
	}
	return a, nil
}

func (g *globals) deadline(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), g.timeout)
}
