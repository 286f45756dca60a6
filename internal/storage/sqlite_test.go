package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
)

// Helper function to create test storage.
func createTestStorage(t *testing.T) (*SQLiteStorage, func()) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)

	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		t.Fatalf("Failed to migrate: %v", err)
	}

	return store, func() { _ = store.Close() }
}

func createTestAccount(t *testing.T, s *SQLiteStorage, name, balance string) *model.Account {
	t.Helper()
	account := &model.Account{
		ID:           uuid.NewString(),
		Name:         name,
		Balance:      decimal.RequireFromString(balance),
		CurrencyCode: "USD",
	}
	require.NoError(t, s.CreateAccount(context.Background(), account))
	return account
}

func newTestTransaction(accountID, title, amount string, date time.Time) *model.Transaction {
	return &model.Transaction{
		ID:        uuid.NewString(),
		Title:     title,
		Amount:    decimal.RequireFromString(amount),
		Date:      date,
		AccountID: accountID,
		Mode:      model.ModeExpense,
		Kind:      model.KindDefault,
		Status:    model.StatusNone,
	}
}

func day(s string) time.Time {
	d, err := model.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestNewSQLiteStorage(t *testing.T) {
	t.Run("creates nested directories", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "a", "b", "ledger.db")
		store, err := NewSQLiteStorage(dbPath)
		require.NoError(t, err)
		defer func() { _ = store.Close() }()
		assert.Equal(t, dbPath, store.Path())
	})

	t.Run("rejects empty path", func(t *testing.T) {
		_, err := NewSQLiteStorage("  ")
		assert.ErrorIs(t, err, ErrEmptyString)
	})

	t.Run("in-memory database survives across transactions", func(t *testing.T) {
		store, err := NewSQLiteStorage(":memory:")
		require.NoError(t, err)
		defer func() { _ = store.Close() }()

		ctx := context.Background()
		require.NoError(t, store.Migrate(ctx))

		tx, err := store.BeginTx(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.CreateAccount(ctx, &model.Account{
			ID: "acc", Name: "Wallet", CurrencyCode: "EUR", Balance: decimal.Zero,
		}))
		require.NoError(t, tx.Commit())

		got, err := store.GetAccount(ctx, "acc")
		require.NoError(t, err)
		assert.Equal(t, "Wallet", got.Name)
	})
}

func TestMigrate(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, version)

	// Migrating an up-to-date database is a no-op.
	require.NoError(t, store.Migrate(ctx))

	_, err = store.db.ExecContext(ctx, "PRAGMA user_version = 99")
	require.NoError(t, err)
	assert.Error(t, store.Migrate(ctx))
}

func TestTransaction_CommitAndRollback(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateAccount(ctx, &model.Account{
		ID: "rolled-back", Name: "Gone", CurrencyCode: "USD",
	}))
	require.NoError(t, tx.Rollback())

	_, err = store.GetAccount(ctx, "rolled-back")
	assert.ErrorIs(t, err, common.ErrAccountNotFound)

	tx, err = store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateAccount(ctx, &model.Account{
		ID: "kept", Name: "Kept", CurrencyCode: "USD",
	}))
	require.NoError(t, tx.Commit())

	_, err = store.GetAccount(ctx, "kept")
	assert.NoError(t, err)
}

func TestTransaction_Savepoints(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	account := createTestAccount(t, store, "Checking", "100")

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	require.NoError(t, tx.Savepoint(ctx, "item_1"))
	_, err = tx.AdjustBalance(ctx, account.ID, decimal.NewFromInt(30), true)
	require.NoError(t, err)
	require.NoError(t, tx.RollbackTo(ctx, "item_1"))

	require.NoError(t, tx.Savepoint(ctx, "item_2"))
	_, err = tx.AdjustBalance(ctx, account.ID, decimal.NewFromInt(5), false)
	require.NoError(t, err)
	require.NoError(t, tx.Release(ctx, "item_2"))
	require.NoError(t, tx.Commit())

	got, err := store.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(105).Equal(got.Balance), "balance %s", got.Balance)
}

func TestTransaction_SavepointRejectsInvalidNames(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	for _, name := range []string{"", "1abc", "drop table; --", "a-b"} {
		assert.ErrorIs(t, tx.Savepoint(ctx, name), ErrInvalidIdentifier, name)
	}
}
