package postgres

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// Migration represents a single migration file
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration represents a migration that has already been applied
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// ErrChecksumMismatch means an applied migration file was edited afterwards.
var ErrChecksumMismatch = errors.New("migration checksum mismatch")

// migrationPattern matches migration files: 0001_name.sql
var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// ParseMigrationFilename extracts version and name from a migration filename.
func ParseMigrationFilename(filename string) (version int, name string, ok bool) {
	matches := migrationPattern.FindStringSubmatch(filename)
	if matches == nil {
		return 0, "", false
	}
	version, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, "", false
	}
	return version, matches[2], true
}

// ReadMigrations reads all migration files from dir sorted by version.
// Files not matching NNNN_name.sql are skipped.
func ReadMigrations(dir string) ([]Migration, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		version, name, ok := ParseMigrationFilename(file.Name())
		if !ok {
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %04d: %s and %s", version, prev, file.Name())
		}
		seen[version] = file.Name()

		content, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", file.Name(), err)
		}

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     name,
			Filename: file.Name(),
			SQL:      string(content),
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	// Sort by version
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// TxBeginner opens transactions. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Migrator applies pending migrations and records them in schema_migrations.
type Migrator struct {
	db        TxBeginner
	appliedBy string
	log       zerolog.Logger
}

// NewMigrator creates a Migrator. appliedBy is stored with each applied migration.
func NewMigrator(db TxBeginner, appliedBy string, log zerolog.Logger) *Migrator {
	return &Migrator{db: db, appliedBy: appliedBy, log: log}
}

// Apply runs every migration not yet recorded, each in its own transaction.
// It returns the number of migrations applied.
func (m *Migrator) Apply(ctx context.Context, migrations []Migration) (int, error) {
	if err := m.ensureSchemaMigrationsTable(ctx); err != nil {
		return 0, fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	applied, err := m.Applied(ctx)
	if err != nil {
		return 0, err
	}
	m.log.Info().Int("found", len(migrations)).Int("applied", len(applied)).Msg("Loaded migrations")

	appliedByVersion := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		appliedByVersion[am.Version] = am
	}

	count := 0
	for _, migration := range migrations {
		if am, ok := appliedByVersion[migration.Version]; ok {
			if am.Checksum != "" && am.Checksum != migration.Checksum {
				return count, fmt.Errorf("%w: %s", ErrChecksumMismatch, migration.Filename)
			}
			m.log.Debug().Str("migration", migration.Filename).Msg("Skipping already applied migration")
			continue
		}

		m.log.Info().Str("migration", migration.Filename).Msg("Applying migration")
		if err := m.applyOne(ctx, migration); err != nil {
			return count, fmt.Errorf("apply %s: %w", migration.Filename, err)
		}
		count++
	}

	return count, nil
}

func (m *Migrator) applyOne(ctx context.Context, migration Migration) error {
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return classify(fmt.Errorf("begin transaction: %w", err))
	}
	defer func() {
		// No-op once committed.
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, migration.SQL); err != nil {
		return fmt.Errorf("execute: %w", err)
	}

	const record = `
	INSERT INTO schema_migrations (version, name, applied_at, checksum, applied_by)
	VALUES ($1, $2, NOW(), $3, $4)`
	if _, err := tx.Exec(ctx, record, migration.Version, migration.Name, migration.Checksum, m.appliedBy); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}

	return tx.Commit(ctx)
}

func (m *Migrator) ensureSchemaMigrationsTable(ctx context.Context) error {
	const query = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version     INTEGER PRIMARY KEY,
		name        VARCHAR(255) NOT NULL,
		applied_at  TIMESTAMPTZ NOT NULL,
		checksum    VARCHAR(64),
		applied_by  VARCHAR(255)
	)`
	_, err := m.db.Exec(ctx, query)
	return classify(err)
}

// Applied returns the migrations recorded in schema_migrations. A database
// that has never been migrated has none.
func (m *Migrator) Applied(ctx context.Context) ([]AppliedMigration, error) {
	rows, err := m.db.Query(ctx, `
		SELECT version, name, applied_at, COALESCE(checksum, ''), COALESCE(applied_by, '')
		FROM schema_migrations
		ORDER BY version ASC`)
	if isUndefinedTable(err) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(fmt.Errorf("reading applied migrations: %w", err))
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var am AppliedMigration
		if err := rows.Scan(&am.Version, &am.Name, &am.AppliedAt, &am.Checksum, &am.AppliedBy); err != nil {
			return nil, fmt.Errorf("scanning applied migration: %w", err)
		}
		applied = append(applied, am)
	}
	if err := rows.Err(); err != nil {
		if isUndefinedTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("iterating applied migrations: %w", err)
	}

	return applied, nil
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}
