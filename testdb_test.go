package credentials_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	credentials "github.com/goliatone/go-credentials"
)

// setupTestDB opens an in-memory sqlite database with the full schema.
// A single connection keeps concurrent statements serialized instead of
// tripping sqlite lock errors.
func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	err = db.ResetModel(context.Background(),
		(*credentials.Account)(nil),
		(*credentials.PasswordResetToken)(nil),
		(*credentials.VerificationToken)(nil),
		(*credentials.AuthSession)(nil),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// seedAccount registers an account straight through the repository.
func seedAccount(t *testing.T, repo credentials.RepositoryManager, email string) *credentials.Account {
	t.Helper()

	hash, err := credentials.HashPassword("some_secret_word")
	require.NoError(t, err)

	account, err := repo.Accounts().Register(context.Background(), &credentials.Account{
		Email:        email,
		PasswordHash: hash,
	})
	require.NoError(t, err)

	return account
}
