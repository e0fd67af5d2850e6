package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildConnectionString(t *testing.T) {
	fileConn := buildConnectionString("/tmp/cache.db", ProfileCache, false)
	assert.Contains(t, fileConn, "/tmp/cache.db?_pragma=journal_mode(WAL)")
	assert.Contains(t, fileConn, "_pragma=synchronous(OFF)")

	memConn := buildConnectionString(":memory:", ProfileStandard, true)
	assert.NotContains(t, memConn, "journal_mode")
	assert.Contains(t, memConn, "_pragma=synchronous(NORMAL)")
}

func TestNew_InMemoryMigrate(t *testing.T) {
	db, err := New(Config{Path: ":memory:", Profile: ProfileCache, Name: "cache"})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Migrate())
	// Migrate is idempotent.
	require.NoError(t, db.Migrate())

	var count int
	err = db.Conn().QueryRow(`SELECT COUNT(*) FROM price_panels`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.NoError(t, db.QuickCheck(context.Background()))
}

func TestNew_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cache.db")

	db, err := New(Config{Path: path, Name: "unknown"})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, ProfileStandard, db.Profile())
	assert.Equal(t, path, db.Path())
	assert.NoError(t, db.Migrate(), "unknown schema names are skipped")
}
