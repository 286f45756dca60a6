package migration

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/ledger"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/notify"
	"github.com/Veraticus/spice-ledger/internal/service"
	"github.com/Veraticus/spice-ledger/internal/testutil"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// failingStorage makes selected deletes and repoints fail inside the
// transactions it begins.
type failingStorage struct {
	service.Storage
	failDelete  string
	failRepoint int
}

func (f *failingStorage) BeginTx(ctx context.Context) (service.Transaction, error) {
	tx, err := f.Storage.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	return &failingTx{Transaction: tx, parent: f}, nil
}

type failingTx struct {
	service.Transaction
	parent *failingStorage
}

func (t *failingTx) DeleteTransaction(ctx context.Context, id string) error {
	if id == t.parent.failDelete {
		return errors.New("database is locked")
	}
	return t.Transaction.DeleteTransaction(ctx, id)
}

func (t *failingTx) RepointSubCategory(ctx context.Context, from, toCategory int, toSub *int) (int64, error) {
	if from == t.parent.failRepoint {
		return 0, errors.New("database is locked")
	}
	return t.Transaction.RepointSubCategory(ctx, from, toCategory, toSub)
}

func categorized(db *testutil.TestDB, accountID string, categoryID int, subID *int, mode model.Mode, kind model.Kind, status model.Status, amount, date string) *model.Transaction {
	txn := &model.Transaction{
		Title:         "Item " + date,
		Amount:        dec(amount),
		Date:          testutil.Date(date),
		AccountID:     accountID,
		CategoryID:    categoryID,
		SubCategoryID: subID,
		Mode:          mode,
		Kind:          kind,
		Status:        status,
	}
	db.MustInsertTransaction(txn)
	return txn
}

// createThroughLedger records a transaction with its balance effect.
func createThroughLedger(t *testing.T, db *testutil.TestDB, txn *model.Transaction) *model.Transaction {
	t.Helper()
	created, err := ledger.NewWithConfig(db.Storage, ledger.Config{Now: testutil.FixedClock("2024-06-01")}).
		Create(context.Background(), txn)
	require.NoError(t, err)
	return created
}

func assertBalance(t *testing.T, db *testutil.TestDB, accountID, want string) {
	t.Helper()
	got := db.Balance(accountID)
	assert.True(t, dec(want).Equal(got), "balance of %s: got %s want %s", accountID, got, want)
}

func TestMergeCategory_FoldsNamesIgnoringCase(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	account := db.MustCreateAccount("Checking", "USD", "100")

	x := db.MustCreateCategory("X")
	y := db.MustCreateCategory("Y")
	xFood := db.MustCreateSubCategory(x.ID, "Food")
	xFuel := db.MustCreateSubCategory(x.ID, "Fuel")
	yFood := db.MustCreateSubCategory(y.ID, "food")

	a := categorized(db, account.ID, x.ID, &xFood.ID, model.ModeExpense, model.KindDefault, model.StatusNone, "10", "2024-01-01")
	b := categorized(db, account.ID, y.ID, &yFood.ID, model.ModeExpense, model.KindDefault, model.StatusNone, "20", "2024-01-02")
	c := categorized(db, account.ID, x.ID, &xFuel.ID, model.ModeExpense, model.KindDefault, model.StatusNone, "30", "2024-01-03")
	d := categorized(db, account.ID, x.ID, nil, model.ModeExpense, model.KindDefault, model.StatusNone, "40", "2024-01-04")

	var progress []int
	svc := New(db.Storage, WithProgress(func(done, total int) {
		assert.Equal(t, 2, total)
		progress = append(progress, done)
	}))

	result, err := svc.MergeCategory(ctx, x.ID, y.ID)
	require.NoError(t, err)
	assert.Equal(t, Result{Total: 2, Succeeded: 2}, result)
	assert.Equal(t, []int{1, 2}, progress)

	_, err = db.Storage.GetCategoryByID(ctx, x.ID)
	assert.ErrorIs(t, err, common.ErrCategoryNotFound)

	subs, err := db.Storage.GetSubCategoriesByCategory(ctx, y.ID)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "food", subs[0].Name)
	assert.Equal(t, yFood.ID, subs[0].ID)
	assert.Equal(t, "Fuel", subs[1].Name)
	assert.Equal(t, 1, subs[1].Position)

	food, err := db.Storage.GetTransactionsBySubCategory(ctx, yFood.ID)
	require.NoError(t, err)
	ids := []string{}
	for _, txn := range food {
		ids = append(ids, txn.ID)
		assert.Equal(t, y.ID, txn.CategoryID)
	}
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)

	fuel, err := db.Storage.GetTransactionsBySubCategory(ctx, subs[1].ID)
	require.NoError(t, err)
	require.Len(t, fuel, 1)
	assert.Equal(t, c.ID, fuel[0].ID)

	moved, err := db.Storage.GetTransaction(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, y.ID, moved.CategoryID)
	assert.Nil(t, moved.SubCategoryID)

	assertBalance(t, db, account.ID, "100")
}

func TestMergeCategory_Validation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db.Storage)
	x := db.MustCreateCategory("X")

	_, err := svc.MergeCategory(context.Background(), x.ID, x.ID)
	assert.ErrorIs(t, err, common.ErrValidationFailed)

	_, err = svc.MergeCategory(context.Background(), x.ID, 999)
	assert.ErrorIs(t, err, common.ErrCategoryNotFound)
}

func TestMergeCategory_FailedItemKeepsSource(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	account := db.MustCreateAccount("Checking", "USD", "0")

	x := db.MustCreateCategory("X")
	y := db.MustCreateCategory("Y")
	good := db.MustCreateSubCategory(x.ID, "Good")
	bad := db.MustCreateSubCategory(x.ID, "Bad")
	categorized(db, account.ID, x.ID, &good.ID, model.ModeIncome, model.KindDefault, model.StatusNone, "1", "2024-01-01")
	stuck := categorized(db, account.ID, x.ID, &bad.ID, model.ModeIncome, model.KindDefault, model.StatusNone, "2", "2024-01-02")

	svc := New(&failingStorage{Storage: db.Storage, failRepoint: bad.ID})
	result, err := svc.MergeCategory(ctx, x.ID, y.ID)
	require.NoError(t, err)
	assert.Equal(t, Result{Total: 2, Succeeded: 1, Failed: 1}, result)
	assert.False(t, result.Complete())

	_, err = db.Storage.GetCategoryByID(ctx, x.ID)
	require.NoError(t, err, "source survives a partial merge")

	ySubs, err := db.Storage.GetSubCategoriesByCategory(ctx, y.ID)
	require.NoError(t, err)
	require.Len(t, ySubs, 1, "the failed item's new subcategory is rolled back")
	assert.Equal(t, "Good", ySubs[0].Name)

	left, err := db.Storage.GetTransaction(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, x.ID, left.CategoryID)
	require.NotNil(t, left.SubCategoryID)
	assert.Equal(t, bad.ID, *left.SubCategoryID)
}

func TestMergeSubCategory(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	account := db.MustCreateAccount("Checking", "USD", "0")
	x := db.MustCreateCategory("X")
	y := db.MustCreateCategory("Y")
	from := db.MustCreateSubCategory(x.ID, "Snacks")
	to := db.MustCreateSubCategory(y.ID, "Food")
	txn := categorized(db, account.ID, x.ID, &from.ID, model.ModeExpense, model.KindDefault, model.StatusNone, "3", "2024-01-01")

	moved, err := New(db.Storage).MergeSubCategory(ctx, from.ID, to.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, moved)

	got, err := db.Storage.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, y.ID, got.CategoryID)
	require.NotNil(t, got.SubCategoryID)
	assert.Equal(t, to.ID, *got.SubCategoryID)

	_, err = db.Storage.GetSubCategory(ctx, from.ID)
	assert.ErrorIs(t, err, common.ErrSubCategoryNotFound)

	_, err = New(db.Storage).MergeSubCategory(ctx, to.ID, to.ID)
	assert.ErrorIs(t, err, common.ErrValidationFailed)
}

func TestDeleteCategory_WithRestore(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	checking := db.MustCreateAccount("Checking", "USD", "100")
	savings := db.MustCreateAccount("Savings", "USD", "100")
	cat := db.MustCreateCategory("Household")
	sub := db.MustCreateSubCategory(cat.ID, "Repairs")

	expense := &model.Transaction{Title: "Plumber", Amount: dec("40"), Date: testutil.Date("2024-01-05"),
		AccountID: checking.ID, CategoryID: cat.ID, SubCategoryID: &sub.ID, Mode: model.ModeExpense, Kind: model.KindDefault}
	transfer := &model.Transaction{Title: "Move", Amount: dec("25"), Date: testutil.Date("2024-01-03"),
		AccountID: checking.ID, DestinationAccountID: savings.ID, CategoryID: cat.ID, Mode: model.ModeTransfer, Kind: model.KindDefault}
	lent := &model.Transaction{Title: "Loan", Amount: dec("10"), Date: testutil.Date("2024-01-04"),
		AccountID: savings.ID, CategoryID: cat.ID, Mode: model.ModeExpense, Kind: model.KindLent}
	upcoming := &model.Transaction{Title: "Insurance", Amount: dec("99"), Date: testutil.Date("2024-07-01"),
		AccountID: checking.ID, CategoryID: cat.ID, Mode: model.ModeExpense, Kind: model.KindUpcoming}
	for _, txn := range []*model.Transaction{expense, transfer, lent, upcoming} {
		createThroughLedger(t, db, txn)
	}
	assertBalance(t, db, checking.ID, "35")
	assertBalance(t, db, savings.ID, "115")

	events := &notify.Recorder{}
	result, err := New(db.Storage, WithSink(events)).DeleteCategory(ctx, cat.ID, true)
	require.NoError(t, err)
	assert.Equal(t, Result{Total: 4, Succeeded: 4}, result)

	assertBalance(t, db, checking.ID, "100")
	assertBalance(t, db, savings.ID, "100")

	_, err = db.Storage.GetCategoryByID(ctx, cat.ID)
	assert.ErrorIs(t, err, common.ErrCategoryNotFound)
	_, err = db.Storage.GetSubCategory(ctx, sub.ID)
	assert.ErrorIs(t, err, common.ErrSubCategoryNotFound)

	types := events.Types()
	require.NotEmpty(t, types)
	assert.Equal(t, notify.TransactionsChanged, types[0])
	assert.Contains(t, types, notify.BalanceChanged)
}

func TestDeleteCategory_WithoutRestore(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	checking := db.MustCreateAccount("Checking", "USD", "100")
	cat := db.MustCreateCategory("Old")
	createThroughLedger(t, db, &model.Transaction{Title: "Thing", Amount: dec("40"), Date: testutil.Date("2024-01-05"),
		AccountID: checking.ID, CategoryID: cat.ID, Mode: model.ModeExpense, Kind: model.KindDefault})

	result, err := New(db.Storage).DeleteCategory(ctx, cat.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assertBalance(t, db, checking.ID, "60")

	txns, err := db.Storage.GetTransactionsByAccount(ctx, checking.ID)
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestDeleteCategory_BestEffort(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	checking := db.MustCreateAccount("Checking", "USD", "100")
	cat := db.MustCreateCategory("Mixed")

	first := createThroughLedger(t, db, &model.Transaction{Title: "First", Amount: dec("10"), Date: testutil.Date("2024-01-01"),
		AccountID: checking.ID, CategoryID: cat.ID, Mode: model.ModeExpense, Kind: model.KindDefault})
	second := createThroughLedger(t, db, &model.Transaction{Title: "Second", Amount: dec("20"), Date: testutil.Date("2024-01-02"),
		AccountID: checking.ID, CategoryID: cat.ID, Mode: model.ModeExpense, Kind: model.KindDefault})
	assertBalance(t, db, checking.ID, "70")

	svc := New(&failingStorage{Storage: db.Storage, failDelete: first.ID})
	result, err := svc.DeleteCategory(ctx, cat.ID, true)
	require.NoError(t, err)
	assert.Equal(t, Result{Total: 2, Succeeded: 1, Failed: 1}, result)

	// The failed item's restore is rolled back with its savepoint.
	assertBalance(t, db, checking.ID, "90")
	_, err = db.Storage.GetTransaction(ctx, first.ID)
	require.NoError(t, err)
	_, err = db.Storage.GetTransaction(ctx, second.ID)
	assert.ErrorIs(t, err, common.ErrTransactionNotFound)
	_, err = db.Storage.GetCategoryByID(ctx, cat.ID)
	require.NoError(t, err)
}

func TestDeleteSubCategory(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	checking := db.MustCreateAccount("Checking", "USD", "100")
	cat := db.MustCreateCategory("Food")
	sub := db.MustCreateSubCategory(cat.ID, "Takeout")
	keep := createThroughLedger(t, db, &model.Transaction{Title: "Groceries", Amount: dec("5"), Date: testutil.Date("2024-01-01"),
		AccountID: checking.ID, CategoryID: cat.ID, Mode: model.ModeExpense, Kind: model.KindDefault})
	createThroughLedger(t, db, &model.Transaction{Title: "Pizza", Amount: dec("15"), Date: testutil.Date("2024-01-02"),
		AccountID: checking.ID, CategoryID: cat.ID, SubCategoryID: &sub.ID, Mode: model.ModeExpense, Kind: model.KindDefault})
	assertBalance(t, db, checking.ID, "80")

	result, err := New(db.Storage).DeleteSubCategory(ctx, sub.ID, true)
	require.NoError(t, err)
	assert.Equal(t, Result{Total: 1, Succeeded: 1}, result)
	assertBalance(t, db, checking.ID, "95")

	_, err = db.Storage.GetTransaction(ctx, keep.ID)
	require.NoError(t, err)
	_, err = db.Storage.GetSubCategory(ctx, sub.ID)
	assert.ErrorIs(t, err, common.ErrSubCategoryNotFound)
}

func TestMergeAccount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	old := db.MustCreateAccount("Old checking", "USD", "100")
	current := db.MustCreateAccount("Checking", "USD", "50")
	savings := db.MustCreateAccount("Savings", "USD", "0")
	require.NoError(t, db.Storage.SetMainAccount(ctx, old.ID))

	createThroughLedger(t, db, &model.Transaction{Title: "Rent", Amount: dec("30"), Date: testutil.Date("2024-01-01"),
		AccountID: old.ID, Mode: model.ModeExpense, Kind: model.KindDefault})
	createThroughLedger(t, db, &model.Transaction{Title: "Save", Amount: dec("20"), Date: testutil.Date("2024-01-02"),
		AccountID: old.ID, DestinationAccountID: savings.ID, Mode: model.ModeTransfer, Kind: model.KindDefault})
	internal := createThroughLedger(t, db, &model.Transaction{Title: "Shuffle", Amount: dec("10"), Date: testutil.Date("2024-01-03"),
		AccountID: current.ID, DestinationAccountID: old.ID, Mode: model.ModeTransfer, Kind: model.KindDefault})
	assertBalance(t, db, old.ID, "60")
	assertBalance(t, db, current.ID, "40")
	assertBalance(t, db, savings.ID, "20")

	result, err := New(db.Storage).MergeAccount(ctx, old.ID, current.ID)
	require.NoError(t, err)
	assert.Equal(t, Result{Total: 3, Succeeded: 3}, result)

	// The combined balance is preserved and the internal transfer is gone.
	assertBalance(t, db, current.ID, "100")
	assertBalance(t, db, savings.ID, "20")

	_, err = db.Storage.GetAccount(ctx, old.ID)
	assert.ErrorIs(t, err, common.ErrAccountNotFound)
	_, err = db.Storage.GetTransaction(ctx, internal.ID)
	assert.ErrorIs(t, err, common.ErrTransactionNotFound)

	txns, err := db.Storage.GetTransactionsByAccount(ctx, current.ID)
	require.NoError(t, err)
	assert.Len(t, txns, 2)

	accounts, err := db.Storage.GetAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, current.ID, accounts[0].ID)
	assert.True(t, accounts[0].IsMainAccount)
}

func TestMergeAccount_Validation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	usd := db.MustCreateAccount("USD", "USD", "0")
	eur := db.MustCreateAccount("EUR", "EUR", "0")
	svc := New(db.Storage)

	_, err := svc.MergeAccount(ctx, usd.ID, usd.ID)
	assert.ErrorIs(t, err, common.ErrValidationFailed)
	_, err = svc.MergeAccount(ctx, usd.ID, eur.ID)
	assert.ErrorIs(t, err, common.ErrValidationFailed)
	_, err = svc.MergeAccount(ctx, usd.ID, "missing")
	assert.ErrorIs(t, err, common.ErrDestinationNotFound)
	_, err = svc.MergeAccount(ctx, "missing", usd.ID)
	assert.ErrorIs(t, err, common.ErrAccountNotFound)
}
