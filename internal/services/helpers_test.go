package services_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"storefront/internal/config"
	"storefront/internal/domain"
	"storefront/internal/repos"
)

// memdb opens a seeded in-memory store: the demo catalog plus the demo
// customer and admin.
func memdb(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := repos.OpenDB(config.DBConfig{Driver: "sqlite", DSN: ":memory:", Seed: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newUser(t *testing.T, db *sqlx.DB) string {
	t.Helper()
	id := uuid.NewString()
	err := repos.NewUserRepo(db).Create(context.Background(), domain.User{
		ID: id, Email: id[:8] + "@example.com", Name: "Test User", Hash: "x", Role: domain.RoleUser,
	})
	require.NoError(t, err)
	return id
}

func stockOf(t *testing.T, db *sqlx.DB, productID string) int {
	t.Helper()
	n, err := repos.NewInventoryRepo(db).Stock(context.Background(), productID)
	require.NoError(t, err)
	return n
}

func countRows(t *testing.T, db *sqlx.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, `SELECT COUNT(*) FROM `+table))
	return n
}
