package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/miguel-loureiro/BookCatalog/internal/db/bunx"
	"github.com/miguel-loureiro/BookCatalog/internal/migrations"
)

// setupTestDB returns a migrated in-memory SQLite database.
func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()
	db, err := bunx.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = bunx.Close(db) })

	_, err = migrations.Apply(context.Background(), db)
	require.NoError(t, err)
	return db
}
