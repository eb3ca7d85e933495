package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"github.com/goran-ethernal/HolderLedger/internal/common"
	"github.com/goran-ethernal/HolderLedger/internal/config"
	"github.com/goran-ethernal/HolderLedger/internal/logger"
	"github.com/goran-ethernal/HolderLedger/internal/profile"
	"github.com/goran-ethernal/HolderLedger/internal/synchronizer"
	"github.com/goran-ethernal/HolderLedger/internal/tiers"
	"github.com/goran-ethernal/HolderLedger/pkg/api"
	pkgconfig "github.com/goran-ethernal/HolderLedger/pkg/config"
)

const (
	version = "1.0.0"
	banner  = `
╔═══════════════════════════════════════════╗
║          HolderLedger v%s              ║
║     NFT Holder Ledger Synchronization     ║
╚═══════════════════════════════════════════╝
`
)

var (
	configPath string

	forceUpdate bool
	wallet      string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "holderledger",
	Short: "HolderLedger - NFT holder ledger synchronization",
	Long: `HolderLedger keeps a ranked ledger of the holders of a set of NFT contracts
in sync with the chain and serves it over HTTP. Without a subcommand the
HTTP API is served.`,
	Version:      version,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the holder ledgers over HTTP",
	RunE:  runServe,
}

var syncCmd = &cobra.Command{
	Use:   "sync <contract>",
	Short: "Synchronize the holder ledger of a contract once",
	Args:  cobra.ExactArgs(1),
	RunE:  runSync,
}

var contractsCmd = &cobra.Command{
	Use:   "contracts",
	Short: "List the configured contracts",
	Long:  `Validate the contract profiles of the configuration file and list them.`,
	RunE:  runContracts,
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of the configuration file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		schema := jsonschema.Reflect(&pkgconfig.Config{})

		encoded, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode schema: %w", err)
		}

		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")

	syncCmd.Flags().BoolVarP(&forceUpdate, "force", "f", false, "rebuild from scratch even if a run holds the lock")
	syncCmd.Flags().StringVarP(&wallet, "wallet", "w", "", "restrict the rebuild to one wallet")

	rootCmd.AddCommand(serveCmd, syncCmd, contractsCmd, schemaCmd)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, _ []string) error {
	fmt.Fprintf(cmd.OutOrStdout(), banner, version)

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.API == nil || !cfg.API.Enabled {
		a.log.Warn("API is disabled, nothing to serve")
		return nil
	}

	server := api.NewServer(cfg.API, a.sync, a.store,
		logger.NewComponentLoggerFromConfig(common.ComponentAPI, cfg.Logging))

	a.log.Infow("serving holder ledgers", "contracts", len(a.sync.Contracts()), "address", cfg.API.ListenAddress)

	return server.Start(ctx)
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.sync.Populate(ctx, args[0], synchronizer.Options{ForceUpdate: forceUpdate, Wallet: wallet})
	if err != nil {
		return fmt.Errorf("synchronization of %s failed: %w", args[0], err)
	}

	holders := 0
	if res.Ledger != nil {
		holders = len(res.Ledger.Holders)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "status:               %s\n", res.Status)
	fmt.Fprintf(out, "holders:              %d\n", holders)
	fmt.Fprintf(out, "last processed block: %d\n", res.State.LastProcessedBlock)
	fmt.Fprintf(out, "live tokens:          %d\n", res.State.GlobalMetrics.TotalLive)
	fmt.Fprintf(out, "burned tokens:        %d\n", res.State.GlobalMetrics.TotalBurned)
	if n := len(res.State.ProgressState.ErrorLog); n > 0 {
		fmt.Fprintf(out, "recorded errors:      %d\n", n)
	}

	return nil
}

func runContracts(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	registry, err := profile.NewRegistry(cfg.Contracts)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0) //nolint:mnd
	fmt.Fprintln(w, "KEY\tADDRESS\tMAX TIER\tREWARDS\tVERIFY OWNERSHIP\tFUNCTIONS")
	for _, key := range registry.Keys() {
		p, _ := registry.Get(key)
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%t\t%s\n", p.Key, p.Address.Hex(), p.MaxTier, p.RewardKind,
			p.VerifyOwnership, strings.Join(p.RequiredFunctions(), ", "))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nreward kinds: %v\n", tiers.RegisteredKinds())
	return nil
}
