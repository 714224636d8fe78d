package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriverFor(t *testing.T) {
	assert.Equal(t, "pgx", DriverFor("postgres://u:p@localhost:5432/medcanna"))
	assert.Equal(t, "pgx", DriverFor("postgresql://localhost/medcanna?sslmode=disable"))
	assert.Equal(t, "sqlite", DriverFor("medcanna.db"))
	assert.Equal(t, "sqlite", DriverFor("file:test.db?cache=shared"))
}

func TestConnect_SQLite(t *testing.T) {
	db, err := Connect(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	var fk int
	require.NoError(t, db.Get(&fk, `PRAGMA foreign_keys`))
	assert.Equal(t, 1, fk)
}
