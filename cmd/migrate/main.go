package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dvloznov/fraud-scoring/internal/config"
	"github.com/dvloznov/fraud-scoring/internal/infra/postgres"
	"github.com/dvloznov/fraud-scoring/internal/logger"
)

var (
	configPath    = flag.String("config", "", "Path to config.yaml (default: ./config.yaml when present)")
	envFile       = flag.String("env-file", ".env", "Path to .env file with DB_USER/DB_PASSWORD")
	databaseURL   = flag.String("database-url", "", "Postgres URL (overrides config)")
	appliedBy     = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	migrationsDir = flag.String("migrations", "migrations/postgres", "Path to migrations directory")
	statusOnly    = flag.Bool("status", false, "List applied and pending migrations without applying")
)

func main() {
	flag.Parse()

	log := logger.New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	connStr := *databaseURL
	if connStr == "" {
		cfg, err := config.Load(*configPath, *envFile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load config")
		}
		connStr = cfg.DatabaseURL()
	}

	dir, err := resolveDir(*migrationsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to locate migrations")
	}

	migrations, err := postgres.ReadMigrations(dir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read migrations")
	}

	pool, err := postgres.Connect(ctx, connStr, postgres.PoolOptions{MaxConns: 1, ConnectTimeout: 10 * time.Second})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	migrator := postgres.NewMigrator(pool, *appliedBy, log)

	if *statusOnly {
		applied, err := migrator.Applied(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read applied migrations")
		}
		printStatus(migrations, applied)
		return
	}

	count, err := migrator.Apply(ctx, migrations)
	if err != nil {
		log.Fatal().Err(err).Int("applied", count).Msg("Migration failed")
	}

	if count == 0 {
		log.Info().Msg("No new migrations to apply. Database is up to date.")
	} else {
		log.Info().Int("applied", count).Msg("Successfully applied migrations")
	}
}

// resolveDir finds the migrations directory from the repo root or from cmd/migrate.
func resolveDir(dir string) (string, error) {
	if _, err := os.Stat(dir); err == nil {
		return dir, nil
	}
	if filepath.IsAbs(dir) {
		return "", fmt.Errorf("migrations directory not found: %s", dir)
	}

	parent := filepath.Join("..", "..", dir)
	if _, err := os.Stat(parent); err == nil {
		return parent, nil
	}
	return "", fmt.Errorf("migrations directory not found: %s", dir)
}

func printStatus(migrations []postgres.Migration, applied []postgres.AppliedMigration) {
	appliedByVersion := make(map[int]postgres.AppliedMigration, len(applied))
	for _, am := range applied {
		appliedByVersion[am.Version] = am
	}

	for _, m := range migrations {
		am, ok := appliedByVersion[m.Version]
		switch {
		case !ok:
			fmt.Printf("  [PENDING] %s\n", m.Filename)
		case am.Checksum != "" && am.Checksum != m.Checksum:
			fmt.Printf("  [CHANGED] %s (applied %s)\n", m.Filename, am.AppliedAt.Format(time.RFC3339))
		default:
			fmt.Printf("  [OK]      %s (applied %s by %s)\n", m.Filename, am.AppliedAt.Format(time.RFC3339), am.AppliedBy)
		}
	}
}
