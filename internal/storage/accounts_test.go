package storage

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
)

func TestAccounts_CRUD(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	checking := createTestAccount(t, store, "Checking", "100.50")
	savings := createTestAccount(t, store, "Savings", "0")

	got, err := store.GetAccount(ctx, checking.ID)
	require.NoError(t, err)
	assert.Equal(t, "Checking", got.Name)
	assert.True(t, decimal.RequireFromString("100.50").Equal(got.Balance))
	assert.False(t, got.CreatedAt.IsZero())

	require.NoError(t, store.SetMainAccount(ctx, savings.ID))
	accounts, err := store.GetAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, savings.ID, accounts[0].ID, "main account sorts first")
	assert.True(t, accounts[0].IsMainAccount)
	assert.False(t, accounts[1].IsMainAccount)

	require.NoError(t, store.SetMainAccount(ctx, checking.ID))
	got, err = store.GetAccount(ctx, savings.ID)
	require.NoError(t, err)
	assert.False(t, got.IsMainAccount, "only one main account at a time")

	checking.Name = "Everyday"
	checking.Balance = decimal.NewFromInt(999999)
	require.NoError(t, store.SaveAccount(ctx, checking))
	got, err = store.GetAccount(ctx, checking.ID)
	require.NoError(t, err)
	assert.Equal(t, "Everyday", got.Name)
	assert.True(t, decimal.RequireFromString("100.50").Equal(got.Balance), "SaveAccount never writes balances")

	require.NoError(t, store.DeleteAccount(ctx, savings.ID))
	_, err = store.GetAccount(ctx, savings.ID)
	assert.ErrorIs(t, err, common.ErrAccountNotFound)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestAccounts_Errors(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	tests := []struct {
		run     func() error
		wantErr error
		name    string
	}{
		{
			name:    "missing account",
			run:     func() error { _, err := store.GetAccount(ctx, "nope"); return err },
			wantErr: common.ErrAccountNotFound,
		},
		{
			name:    "delete missing account",
			run:     func() error { return store.DeleteAccount(ctx, "nope") },
			wantErr: common.ErrAccountNotFound,
		},
		{
			name:    "set missing main account",
			run:     func() error { return store.SetMainAccount(ctx, "nope") },
			wantErr: common.ErrAccountNotFound,
		},
		{
			name: "account without currency",
			run: func() error {
				return store.CreateAccount(ctx, &model.Account{ID: "x", Name: "No currency"})
			},
			wantErr: common.ErrValidationFailed,
		},
		{
			name: "duplicate account ID",
			run: func() error {
				a := &model.Account{ID: "dup", Name: "A", CurrencyCode: "USD"}
				if err := store.CreateAccount(ctx, a); err != nil {
					return err
				}
				return store.CreateAccount(ctx, a)
			},
			wantErr: common.ErrDuplicateEntry,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.run(), tt.wantErr)
		})
	}
}

func TestAccounts_DeleteWithTransactionsFails(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	account := createTestAccount(t, store, "Checking", "0")
	require.NoError(t, store.InsertTransaction(ctx, newTestTransaction(account.ID, "Coffee", "3", day("2024-01-01"))))

	assert.Error(t, store.DeleteAccount(ctx, account.ID))
}

func TestAdjustBalance(t *testing.T) {
	tests := []struct {
		name      string
		start     string
		amount    string
		want      string
		isExpense bool
	}{
		{name: "expense subtracts", start: "100", amount: "30.25", isExpense: true, want: "69.75"},
		{name: "income adds", start: "100", amount: "0.10", isExpense: false, want: "100.10"},
		{name: "balance may go negative", start: "10", amount: "25", isExpense: true, want: "-15"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, cleanup := createTestStorage(t)
			defer cleanup()
			ctx := context.Background()

			account := createTestAccount(t, store, "Checking", tt.start)
			updated, err := store.AdjustBalance(ctx, account.ID, decimal.RequireFromString(tt.amount), tt.isExpense)
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(updated.Balance), "got %s", updated.Balance)

			stored, err := store.GetAccount(ctx, account.ID)
			require.NoError(t, err)
			assert.True(t, updated.Balance.Equal(stored.Balance))
		})
	}

	t.Run("missing account", func(t *testing.T) {
		store, cleanup := createTestStorage(t)
		defer cleanup()
		_, err := store.AdjustBalance(context.Background(), "ghost", decimal.NewFromInt(1), true)
		assert.ErrorIs(t, err, common.ErrAccountNotFound)
	})
}
