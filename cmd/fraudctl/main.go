package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/fraud-scoring/internal/config"
	"github.com/dvloznov/fraud-scoring/internal/infra/postgres"
	"github.com/dvloznov/fraud-scoring/internal/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var Version = "dev"

// app carries the settings shared by every subcommand.
type app struct {
	configPath string
	envFile    string

	cfg *config.Config
	log zerolog.Logger
}

func main() {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "fraudctl",
		Short:         "Operate the fraud scoring service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to config.yaml (default: ./config.yaml when present)")
	rootCmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "Path to .env file with secrets")

	// Add subcommands
	rootCmd.AddCommand(scoreCmd(a))
	rootCmd.AddCommand(recordsCmd(a))
	rootCmd.AddCommand(exportCmd(a))
	rootCmd.AddCommand(artifactCmd(a))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath, a.envFile)
	if err != nil {
		return err
	}

	// Logs go to stderr so command output stays pipeable.
	log, err := logger.NewFromConfig(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.log = log
	return nil
}

// connect opens a small pool for one-shot commands.
func (a *app) connect(ctx context.Context) (*pgxpool.Pool, error) {
	return postgres.Connect(ctx, a.cfg.DatabaseURL(), postgres.PoolOptions{
		MaxConns:       2,
		ConnectTimeout: 10 * time.Second,
	})
}
