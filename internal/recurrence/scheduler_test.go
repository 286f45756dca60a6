package recurrence

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/service"
	"github.com/Veraticus/spice-ledger/internal/testutil"
)

func newSubscription(accountID, start, end string, frequency model.Frequency, status model.Status) *model.Transaction {
	endDate := testutil.Date(end)
	return &model.Transaction{
		Title:     "Streaming",
		Amount:    decimal.RequireFromString("9.99"),
		Date:      testutil.Date(start),
		AccountID: accountID,
		Mode:      model.ModeExpense,
		Kind:      model.KindSubscription,
		Status:    status,
		Recurrence: &model.Recurrence{
			Frequency: frequency,
			Interval:  1,
			EndDate:   &endDate,
		},
	}
}

func seriesDates(t *testing.T, db *testutil.TestDB, accountID string) []string {
	t.Helper()
	txns, err := db.Storage.GetTransactionsByAccount(context.Background(), accountID)
	require.NoError(t, err)
	dates := make([]string, 0, len(txns))
	for _, txn := range txns {
		dates = append(dates, model.FormatDate(txn.Date))
	}
	return dates
}

func TestGenerateNextIfNeeded(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	account := db.MustCreateAccount("Checking", "USD", "100")
	scheduler := NewScheduler()

	jan := newSubscription(account.ID, "2024-01-01", "2024-03-01", model.FrequencyMonthly, model.StatusPaid)
	db.MustInsertTransaction(jan)

	feb, err := scheduler.GenerateNextIfNeeded(ctx, db.Storage, jan)
	require.NoError(t, err)
	require.NotNil(t, feb)
	assert.Equal(t, "2024-02-01", model.FormatDate(feb.Date))
	assert.Equal(t, model.StatusUnpaid, feb.Status)
	require.NotNil(t, feb.NextDueDate)
	assert.Equal(t, "2024-03-01", model.FormatDate(*feb.NextDueDate))
	assert.Equal(t, jan.Title, feb.Title)
	assert.True(t, jan.Amount.Equal(feb.Amount))
	assert.NotEqual(t, jan.ID, feb.ID)

	again, err := scheduler.GenerateNextIfNeeded(ctx, db.Storage, jan)
	require.NoError(t, err)
	assert.Nil(t, again, "a second paid toggle must not duplicate the instance")

	feb.Status = model.StatusPaid
	mar, err := scheduler.GenerateNextIfNeeded(ctx, db.Storage, feb)
	require.NoError(t, err)
	require.NotNil(t, mar)
	assert.Equal(t, "2024-03-01", model.FormatDate(mar.Date))
	assert.Nil(t, mar.NextDueDate, "sequence ends on the end date")

	mar.Status = model.StatusPaid
	none, err := scheduler.GenerateNextIfNeeded(ctx, db.Storage, mar)
	require.NoError(t, err)
	assert.Nil(t, none)

	assert.Equal(t, []string{"2024-01-01", "2024-02-01", "2024-03-01"}, seriesDates(t, db, account.ID))
}

func TestGenerateNextIfNeeded_NoRecurrence(t *testing.T) {
	db := testutil.SetupTestDB(t)
	account := db.MustCreateAccount("Checking", "USD", "0")

	txn := &model.Transaction{
		Title: "One-off", Amount: decimal.NewFromInt(1), Date: testutil.Date("2024-01-01"),
		AccountID: account.ID, Mode: model.ModeExpense, Kind: model.KindUpcoming, Status: model.StatusPaid,
	}
	got, err := NewScheduler().GenerateNextIfNeeded(context.Background(), db.Storage, txn)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRegenerateFuture(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	account := db.MustCreateAccount("Checking", "USD", "0")
	scheduler := NewScheduler()

	original := newSubscription(account.ID, "2024-01-01", "2024-04-01", model.FrequencyMonthly, model.StatusPaid)
	db.MustInsertTransaction(original)
	result, err := scheduler.RegenerateFuture(ctx, db.Storage, original, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Created)
	assert.False(t, result.Capped)

	// Mark February paid so it survives the regeneration.
	feb, err := db.Storage.FindRecurrenceInstance(ctx, service.KeyOf(*original), testutil.Date("2024-02-01"))
	require.NoError(t, err)
	feb.Status = model.StatusPaid
	require.NoError(t, db.Storage.UpdateTransaction(ctx, feb))

	weekly := original.Clone()
	end := testutil.Date("2024-01-29")
	weekly.Recurrence = &model.Recurrence{Frequency: model.FrequencyWeekly, Interval: 2, EndDate: &end}

	result, err = scheduler.RegenerateFuture(ctx, db.Storage, original, &weekly)
	require.NoError(t, err)
	assert.EqualValues(t, 2, result.Deleted, "unpaid March and April are dropped")
	assert.Equal(t, 2, result.Created)

	assert.Equal(t,
		[]string{"2024-01-01", "2024-01-15", "2024-01-29", "2024-02-01"},
		seriesDates(t, db, account.ID))
}

func TestRegenerateFuture_Cap(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	account := db.MustCreateAccount("Checking", "USD", "0")

	original := newSubscription(account.ID, "2024-01-01", "2074-01-01", model.FrequencyDaily, model.StatusPaid)
	db.MustInsertTransaction(original)

	var result Regeneration
	err := db.WithTransaction(func(tx service.Transaction) error {
		var regenErr error
		result, regenErr = NewScheduler().RegenerateFuture(ctx, tx, original, nil)
		if regenErr != nil {
			return regenErr
		}
		return tx.Commit()
	})
	require.NoError(t, err)
	assert.Equal(t, MaxInstances, result.Created)
	assert.True(t, result.Capped)

	txns, err := db.Storage.GetTransactionsByAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Len(t, txns, MaxInstances+1)
}

func TestRegenerateFuture_EditedDateInsideTail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	account := db.MustCreateAccount("Checking", "USD", "0")

	original := newSubscription(account.ID, "2024-03-01", "2024-12-01", model.FrequencyMonthly, model.StatusUnpaid)
	db.MustInsertTransaction(original)

	moved := original.Clone()
	moved.Date = testutil.Date("2024-04-01")
	end := testutil.Date("2024-12-01")
	moved.Recurrence = &model.Recurrence{Frequency: model.FrequencyMonthly, Interval: 2, EndDate: &end}
	require.NoError(t, db.Storage.UpdateTransaction(ctx, &moved))

	result, err := NewScheduler().RegenerateFuture(ctx, db.Storage, original, &moved)
	require.NoError(t, err)
	assert.Zero(t, result.Deleted, "the edited transaction is not part of the old tail")
	assert.Equal(t, 4, result.Created)

	assert.Equal(t,
		[]string{"2024-04-01", "2024-06-01", "2024-08-01", "2024-10-01", "2024-12-01"},
		seriesDates(t, db, account.ID))
}

func TestRegenerateFuture_RecurrenceRemoved(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	account := db.MustCreateAccount("Checking", "USD", "0")
	scheduler := NewScheduler()

	original := newSubscription(account.ID, "2024-01-01", "2024-03-01", model.FrequencyMonthly, model.StatusPaid)
	db.MustInsertTransaction(original)
	_, err := scheduler.RegenerateFuture(ctx, db.Storage, original, nil)
	require.NoError(t, err)

	stopped := original.Clone()
	stopped.Recurrence = nil
	result, err := scheduler.RegenerateFuture(ctx, db.Storage, original, &stopped)
	require.NoError(t, err)
	assert.EqualValues(t, 2, result.Deleted)
	assert.Zero(t, result.Created)
	assert.Equal(t, []string{"2024-01-01"}, seriesDates(t, db, account.ID))
}
