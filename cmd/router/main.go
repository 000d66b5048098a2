// Command router is the cross-chain liquidity router daemon's
// entrypoint, grounded on the teacher's root main.go (zerolog console
// writer, godotenv load, signal.NotifyContext, goroutine-per-server,
// graceful shutdown) merged with cmd/obscura/main.go's cobra command
// tree (start/stats-style subcommands).
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/meshbridge/router-node/config"
	"github.com/meshbridge/router-node/router"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "router",
	Short: "Cross-chain liquidity router daemon",
	Long:  "A CLI for operating a cross-chain liquidity router node: auction bidding, transaction lifecycle management, and liquidity dispatch.",
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the router daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			log.Error().Err(err).Msg("failed to load configuration")
			os.Exit(1)
		}

		r, err := router.New(cfg)
		if err != nil {
			log.Error().Err(err).Msg("failed to construct router")
			os.Exit(2)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Info().Msg("router is fully operational")
		return r.Run(ctx)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "config show",
	Short: "Print the active configuration with secrets redacted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		redacted := cfg.Redacted()
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(&redacted)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the router daemon version",
	Run: func(cmd *cobra.Command, args []string) {
		log.Info().Str("version", version).Msg("router")
	},
}

// version is set at build time via -ldflags.
var version = "dev"

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the router config file")
	rootCmd.AddCommand(startCmd, configShowCmd, versionCmd)
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file found, using environment defaults")
	}

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("router exited with error")
		os.Exit(1)
	}
}
