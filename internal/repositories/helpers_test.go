package repositories

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"receipt-overseer/internal/config"
	"receipt-overseer/internal/db"
	"receipt-overseer/internal/models"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	conn, err := db.Connect(config.DBConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func seedUsers(t *testing.T, repo *UserRepo, names ...string) []models.User {
	t.Helper()
	users := make([]models.User, 0, len(names))
	for _, name := range names {
		u, err := repo.CreateUser(context.Background(), name, "hash-"+name)
		require.NoError(t, err)
		users = append(users, u)
	}
	return users
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
