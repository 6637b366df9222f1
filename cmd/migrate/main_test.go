package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDir(t *testing.T) {
	// Tests run from cmd/migrate, so the repo-relative path resolves via ../..
	dir, err := resolveDir("migrations/postgres")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("..", "..", "migrations", "postgres"), dir)

	_, err = os.Stat(filepath.Join(dir, "0001_create_fraud_records.sql"))
	assert.NoError(t, err)
}

func TestResolveDir_Direct(t *testing.T) {
	tmp := t.TempDir()

	dir, err := resolveDir(tmp)
	require.NoError(t, err)
	assert.Equal(t, tmp, dir)
}

func TestResolveDir_Missing(t *testing.T) {
	_, err := resolveDir("does/not/exist")
	assert.Error(t, err)

	_, err = resolveDir(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
