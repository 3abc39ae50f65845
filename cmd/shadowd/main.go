package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/shadowd/pkg/config"
	"github.com/cuemby/shadowd/pkg/engine"
	"github.com/cuemby/shadowd/pkg/log"
)

var (
	// Version, Commit, and BuildTime are set via -ldflags at build time.
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "shadowd",
	Short:   "shadowd - device-side shadow document manager",
	Long:    "shadowd keeps a local, durable copy of a device's shadow documents in sync with a remote shadow service, resolving conflicts and coalescing updates between connectivity windows.",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("shadowd version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "", "Path to a shadowd config file")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configValidateCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the shadowd daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		transport := newUnconfiguredTransport()
		eng, err := engine.New(cfg, transport)
		if err != nil {
			return fmt.Errorf("start engine: %w", err)
		}
		if err := eng.Start(); err != nil {
			return fmt.Errorf("start engine: %w", err)
		}

		logger := log.WithComponent("shadowd")
		logger.Info().Str("control_addr", cfg.ControlAddr).Msg("shadowd serving")

		serveErr := make(chan error, 1)
		go func() {
			serveErr <- eng.Control.Start(cfg.ControlAddr)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-serveErr:
			eng.Stop()
			return err
		case <-sigCh:
			logger.Info().Msg("shutting down")
			return eng.Stop()
		}
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "config-validate",
	Short: "Validate a shadowd config file without starting the daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		fmt.Printf("config OK: %d sync-set entries, strategy=%s\n", len(cfg.SyncSet), cfg.Strategy.Mode)
		return nil
	},
}
