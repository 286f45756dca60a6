// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/spice-ledger/internal/model"
)

// TransactionFilter defines filtering options for transaction queries.
type TransactionFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	AccountID string
	Limit     int
	Offset    int
}

// RecurrenceKey identifies the instances that belong to one recurring series.
type RecurrenceKey struct {
	Amount    decimal.Decimal
	Title     string
	AccountID string
	Kind      model.Kind
}

// KeyOf returns the recurrence key of a transaction.
func KeyOf(txn model.Transaction) RecurrenceKey {
	return RecurrenceKey{
		Title:     txn.Title,
		Amount:    txn.Amount,
		AccountID: txn.AccountID,
		Kind:      txn.Kind,
	}
}

// AccountStore persists accounts. Balances change only through AdjustBalance.
type AccountStore interface {
	CreateAccount(ctx context.Context, account *model.Account) error
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	GetAccounts(ctx context.Context) ([]model.Account, error)
	SaveAccount(ctx context.Context, account *model.Account) error
	SetMainAccount(ctx context.Context, id string) error
	DeleteAccount(ctx context.Context, id string) error

	// AdjustBalance reads the current balance and writes balance-amount when
	// isExpense is true, balance+amount otherwise. It returns the updated account.
	AdjustBalance(ctx context.Context, accountID string, amount decimal.Decimal, isExpense bool) (*model.Account, error)
}

// TransactionStore persists ledger transactions.
type TransactionStore interface {
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	GetTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error)
	GetTransactionsByAccount(ctx context.Context, accountID string) ([]model.Transaction, error)
	GetTransactionsByCategory(ctx context.Context, categoryID int) ([]model.Transaction, error)
	GetTransactionsBySubCategory(ctx context.Context, subCategoryID int) ([]model.Transaction, error)
	GetTransactionByExternalID(ctx context.Context, accountID, externalID string) (*model.Transaction, error)
	FindRecurrenceInstance(ctx context.Context, key RecurrenceKey, date time.Time) (*model.Transaction, error)
	DeleteUnpaidRecurrencesAfter(ctx context.Context, key RecurrenceKey, after time.Time, keepID string) (int64, error)
	InsertTransaction(ctx context.Context, txn *model.Transaction) error
	UpdateTransaction(ctx context.Context, txn *model.Transaction) error
	DeleteTransaction(ctx context.Context, id string) error

	// RepointSubCategory moves every transaction of a subcategory to another
	// category/subcategory pair. It never touches amounts or accounts.
	RepointSubCategory(ctx context.Context, fromSubCategoryID, toCategoryID int, toSubCategoryID *int) (int64, error)
	// RepointCategory moves the transactions of a category that have no subcategory.
	RepointCategory(ctx context.Context, fromCategoryID, toCategoryID int) (int64, error)
}

// CategoryStore persists categories and subcategories.
type CategoryStore interface {
	GetCategories(ctx context.Context) ([]model.Category, error)
	GetCategoryByID(ctx context.Context, id int) (*model.Category, error)
	GetCategoryByName(ctx context.Context, name string) (*model.Category, error)
	CreateCategory(ctx context.Context, name string, categoryType model.CategoryType) (*model.Category, error)
	UpdateCategory(ctx context.Context, id int, name string) error
	DeleteCategory(ctx context.Context, id int) error

	GetSubCategory(ctx context.Context, id int) (*model.SubCategory, error)
	GetSubCategoriesByCategory(ctx context.Context, categoryID int) ([]model.SubCategory, error)
	InsertSubCategory(ctx context.Context, sub *model.SubCategory) error
	DeleteSubCategory(ctx context.Context, id int) error
}

// Queries is the full set of store operations available both on the store
// and inside a store transaction.
type Queries interface {
	AccountStore
	TransactionStore
	CategoryStore
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	Queries

	// Database management
	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
}

// Transaction represents a database transaction.
type Transaction interface {
	Queries

	Commit() error
	Rollback() error

	// Savepoints isolate a single item of a bulk operation so a failing item
	// can be undone without abandoning the enclosing transaction.
	Savepoint(ctx context.Context, name string) error
	RollbackTo(ctx context.Context, name string) error
	Release(ctx context.Context, name string) error
}

// RateSource returns conversion rates relative to a base currency:
// one unit of base buys rates[code] units of code.
type RateSource interface {
	Rates(ctx context.Context, baseCurrency string) (map[string]decimal.Decimal, error)
}
