package postgres

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  int
		name     string
	}{
		{"0001_create_fraud_records.sql", true, 1, "create_fraud_records"},
		{"0042_add_index.sql", true, 42, "add_index"},
		{"001_invalid.sql", false, 0, ""},
		{"0001_test", false, 0, ""},
		{"0001.sql", false, 0, ""},
		{"invalid_0001_test.sql", false, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, ok := ParseMigrationFilename(tt.filename)
			assert.Equal(t, tt.valid, ok)
			assert.Equal(t, tt.version, version)
			assert.Equal(t, tt.name, name)
		})
	}
}

func TestReadMigrations(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	write("0002_second.sql", "SELECT 2;")
	write("0001_first.sql", "SELECT 1;")
	write("README.md", "not a migration")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "0003_dir.sql"), 0o755))

	migrations, err := ReadMigrations(dir)
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "first", migrations[0].Name)
	assert.Equal(t, "SELECT 1;", migrations[0].SQL)
	assert.Len(t, migrations[0].Checksum, 64)
	assert.Equal(t, 2, migrations[1].Version)
	assert.NotEqual(t, migrations[0].Checksum, migrations[1].Checksum)
}

func TestReadMigrations_ChecksumStable(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0001_a.sql"), []byte("CREATE TABLE t (id INT);"), 0o644))

	first, err := ReadMigrations(dir)
	require.NoError(t, err)
	second, err := ReadMigrations(dir)
	require.NoError(t, err)
	assert.Equal(t, first[0].Checksum, second[0].Checksum)
}

func TestReadMigrations_DuplicateVersion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0001_a.sql"), []byte("SELECT 1;"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0001_b.sql"), []byte("SELECT 1;"), 0o644))

	_, err := ReadMigrations(dir)
	assert.Error(t, err)
}

func TestReadMigrations_MissingDir(t *testing.T) {
	_, err := ReadMigrations(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestReadMigrations_Repository(t *testing.T) {
	migrations, err := ReadMigrations(filepath.Join("..", "..", "..", "migrations", "postgres"))
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	assert.Equal(t, "create_fraud_records", migrations[0].Name)
	assert.Contains(t, migrations[0].SQL, "UNIQUE (transaction_id)")
	assert.Contains(t, migrations[0].SQL, "(created_at, status)")
}

func TestIsUndefinedTable(t *testing.T) {
	assert.True(t, isUndefinedTable(&pgconn.PgError{Code: "42P01"}))
	assert.True(t, isUndefinedTable(fmt.Errorf("query: %w", &pgconn.PgError{Code: "42P01"})))
	assert.False(t, isUndefinedTable(&pgconn.PgError{Code: "42703"}))
	assert.False(t, isUndefinedTable(nil))
}
