package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// setupTestDB opens an in-memory database named after the test, so parallel
// tests never share rows, and migrates it.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewMemoryDB(context.Background(), t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = RunMigrations(db.Writer)
	require.NoError(t, err)

	return db
}
