// Package testutil provides test helpers for the ledger: isolated databases,
// seeded accounts and categories, and a fixed clock.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/service"
	"github.com/Veraticus/spice-ledger/internal/storage"
)

// TestDB represents a migrated test database with seeding helpers.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
}

// SetupTestDB creates a new in-memory test database.
// It automatically handles migrations and cleanup.
//
// Example:
//
//	db := testutil.SetupTestDB(t)
//	checking := db.MustCreateAccount("Checking", "USD", "100")
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{Storage: store, t: t}
}

// MustCreateAccount creates an account with an opening balance or fails the test.
func (db *TestDB) MustCreateAccount(name, currency, balance string) *model.Account {
	db.t.Helper()
	account := &model.Account{
		ID:           uuid.NewString(),
		Name:         name,
		CurrencyCode: currency,
		Balance:      decimal.RequireFromString(balance),
	}
	if err := db.Storage.CreateAccount(context.Background(), account); err != nil {
		db.t.Fatalf("failed to seed account %q: %v", name, err)
	}
	return account
}

// MustCreateCategory creates an expense category or fails the test.
func (db *TestDB) MustCreateCategory(name string) *model.Category {
	db.t.Helper()
	cat, err := db.Storage.CreateCategory(context.Background(), name, model.CategoryTypeExpense)
	if err != nil {
		db.t.Fatalf("failed to seed category %q: %v", name, err)
	}
	return cat
}

// MustCreateSubCategory appends a subcategory to a category or fails the test.
func (db *TestDB) MustCreateSubCategory(categoryID int, name string) *model.SubCategory {
	db.t.Helper()
	ctx := context.Background()
	existing, err := db.Storage.GetSubCategoriesByCategory(ctx, categoryID)
	if err != nil {
		db.t.Fatalf("failed to list subcategories: %v", err)
	}
	sub := &model.SubCategory{CategoryID: categoryID, Name: name, Position: len(existing)}
	if err := db.Storage.InsertSubCategory(ctx, sub); err != nil {
		db.t.Fatalf("failed to seed subcategory %q: %v", name, err)
	}
	return sub
}

// MustInsertTransaction writes a transaction row directly, bypassing balance
// rules, or fails the test.
func (db *TestDB) MustInsertTransaction(txn *model.Transaction) {
	db.t.Helper()
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	if err := db.Storage.InsertTransaction(context.Background(), txn); err != nil {
		db.t.Fatalf("failed to seed transaction %q: %v", txn.Title, err)
	}
}

// Balance returns an account's current balance or fails the test.
func (db *TestDB) Balance(accountID string) decimal.Decimal {
	db.t.Helper()
	account, err := db.Storage.GetAccount(context.Background(), accountID)
	if err != nil {
		db.t.Fatalf("failed to load account %s: %v", accountID, err)
	}
	return account.Balance
}

// WithTransaction executes the given function within a database transaction.
// The transaction is automatically rolled back after the function completes.
func (db *TestDB) WithTransaction(fn func(tx service.Transaction) error) error {
	tx, err := db.Storage.BeginTx(context.Background())
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	return fn(tx)
}

// Date parses a YYYY-MM-DD date or panics.
func Date(s string) time.Time {
	d, err := model.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// FixedClock returns a clock that always reports the given date at noon UTC.
func FixedClock(date string) func() time.Time {
	noon := Date(date).Add(12 * time.Hour)
	return func() time.Time { return noon }
}
