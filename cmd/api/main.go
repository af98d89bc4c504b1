package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zhouzirui/ecokart/backend/internal/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	cfg        *config.Config
	closeLog   = func() error { return nil }
	envFile    string
	skipDotEnv bool
)

var rootCmd = &cobra.Command{
	Use:   "ecokart",
	Short: "Ecokart customer-support assistant",
	Long: `Ecokart is a customer-support shopping assistant. It answers product
questions grounded in the store catalog, remembers past conversations and
can talk over voice.

Configuration comes from environment variables (optionally loaded from a
.env file); the flags below override them.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if !skipDotEnv {
			if err := godotenv.Load(envFile); err != nil {
				slog.Debug("no .env file loaded, using process environment", "file", envFile, "error", err)
			}
		}

		if err := config.BindFlags(viper.GetViper(), cmd.Flags()); err != nil {
			return err
		}

		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded

		logger, cleanup := config.SetupLogger(cfg.Log)
		slog.SetDefault(logger)
		closeLog = cleanup
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		if err := closeLog(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
		}
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	config.RegisterFlags(flags)
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	flags.BoolVar(&skipDotEnv, "no-env-file", false, "do not load a dotenv file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(statsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
