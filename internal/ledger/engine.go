package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/currency"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/notify"
	"github.com/Veraticus/spice-ledger/internal/recurrence"
	"github.com/Veraticus/spice-ledger/internal/service"
)

// Engine applies transaction mutations and their balance effects. Each
// operation runs in one store transaction; recurrence follow-ups and
// notifications happen only after it commits.
type Engine struct {
	store     service.Storage
	rates     service.RateSource
	sink      notify.Sink
	scheduler *recurrence.Scheduler
	now       func() time.Time
}

// Config holds optional collaborators for the engine.
type Config struct {
	Rates     service.RateSource
	Sink      notify.Sink
	Scheduler *recurrence.Scheduler
	Now       func() time.Time
}

// New creates an engine with no rate source and a no-op sink.
func New(store service.Storage) *Engine {
	return NewWithConfig(store, Config{})
}

// NewWithConfig creates an engine with custom collaborators. Nil fields
// fall back to defaults.
func NewWithConfig(store service.Storage, config Config) *Engine {
	e := &Engine{
		store:     store,
		rates:     config.Rates,
		sink:      config.Sink,
		scheduler: config.Scheduler,
		now:       config.Now,
	}
	if e.sink == nil {
		e.sink = notify.Nop{}
	}
	if e.scheduler == nil {
		e.scheduler = recurrence.NewScheduler()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

func (e *Engine) today() time.Time {
	return model.DateOf(e.now())
}

func (e *Engine) withTx(ctx context.Context, fn func(tx service.Transaction) error) error {
	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Create records a new transaction and applies its realized effect. Kind
// decides the initial status: recurring transactions dated today or earlier
// start paid, upcoming ones start unpaid and due on their date, loans start
// outstanding.
func (e *Engine) Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	if txn == nil {
		return nil, common.Validationf("transaction is nil")
	}

	created := txn.Clone()
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	created.Date = model.DateOf(created.Date)
	created.CreatedAt = time.Time{}
	if err := e.initStatus(&created); err != nil {
		return nil, err
	}
	if err := created.Validate(); err != nil {
		return nil, err
	}

	var accounts []model.Account
	err := e.withTx(ctx, func(tx service.Transaction) error {
		if err := e.resolveAccounts(ctx, tx, &created, true); err != nil {
			return err
		}

		deltas, err := Effect(&created)
		if err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, &created); err != nil {
			return fmt.Errorf("failed to insert transaction: %w", err)
		}
		accounts, err = Apply(ctx, tx, deltas)
		if err != nil {
			return balanceError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "created transaction",
		"transaction_id", created.ID,
		"kind", created.Kind,
		"mode", created.Mode,
		"status", created.Status,
		"amount", created.Amount.String())
	e.publish(ctx, accounts, notify.TransactionsChanged)

	if created.Kind.IsRecurring() && created.IsPaid() {
		e.generateNext(ctx, &created)
	}
	return &created, nil
}

func (e *Engine) initStatus(txn *model.Transaction) error {
	switch txn.Kind {
	case model.KindSubscription, model.KindRepetitive:
		if err := txn.Recurrence.Validate(txn.Date); err != nil {
			return err
		}
		txn.Status = model.StatusUnpaid
		if !txn.Date.After(e.today()) {
			txn.Status = model.StatusPaid
		}
		txn.NextDueDate = nil
		if next, ok := recurrence.NextDueDate(txn.Date, txn.Recurrence); ok {
			txn.NextDueDate = &next
		}
	case model.KindUpcoming:
		due := txn.Date
		txn.NextDueDate = &due
		txn.Status = model.StatusUnpaid
	case model.KindLent, model.KindBorrowed, model.KindDefault:
		if txn.Status == "" {
			txn.Status, _ = txn.Kind.Statuses()
		}
	}
	return nil
}

// resolveAccounts checks that the accounts exist, defaults the original
// currency to the source account's, and fills in the amount credited to a
// transfer destination. A positive caller-supplied destination amount is
// kept only when keepConverted is set and the currencies differ.
func (e *Engine) resolveAccounts(ctx context.Context, q service.AccountStore, txn *model.Transaction, keepConverted bool) error {
	source, err := q.GetAccount(ctx, txn.AccountID)
	if err != nil {
		return err
	}
	if txn.OriginalCurrencyCode == "" {
		txn.OriginalCurrencyCode = source.CurrencyCode
	}

	if !txn.IsTransfer() {
		txn.DestinationAmount = decimal.Zero
		return nil
	}

	dest, err := q.GetAccount(ctx, txn.DestinationAccountID)
	if errors.Is(err, common.ErrAccountNotFound) {
		return fmt.Errorf("%w: %s", common.ErrDestinationNotFound, txn.DestinationAccountID)
	}
	if err != nil {
		return err
	}

	if currency.Normalize(source.CurrencyCode) == currency.Normalize(dest.CurrencyCode) {
		txn.DestinationAmount = txn.Amount
		return nil
	}
	if keepConverted && txn.DestinationAmount.IsPositive() {
		return nil
	}

	converted, err := currency.ConvertWith(ctx, e.rates, txn.Amount, source.CurrencyCode, dest.CurrencyCode)
	if err != nil {
		return err
	}
	txn.DestinationAmount = converted
	return nil
}

// Update replaces a stored transaction: the old version's effect is reversed
// and the new version's applied in the same store transaction. Changing the
// recurrence of a recurring transaction regenerates its unpaid future
// instances; a transition to paid generates the next occurrence.
func (e *Engine) Update(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	if txn == nil {
		return nil, common.Validationf("transaction is nil")
	}

	updated := txn.Clone()
	updated.Date = model.DateOf(updated.Date)

	var old *model.Transaction
	var accounts []model.Account
	err := e.withTx(ctx, func(tx service.Transaction) error {
		var err error
		old, err = tx.GetTransaction(ctx, updated.ID)
		if err != nil {
			return err
		}
		updated.CreatedAt = old.CreatedAt
		if updated.Status == "" || (updated.Kind != old.Kind && !updated.Kind.AllowsStatus(updated.Status)) {
			updated.Status, _ = updated.Kind.Statuses()
		}

		if scheduleChanged(old, &updated) {
			if err := updated.Recurrence.Validate(updated.Date); err != nil {
				return err
			}
			updated.NextDueDate = nil
			if next, ok := recurrence.NextDueDate(updated.Date, updated.Recurrence); ok {
				updated.NextDueDate = &next
			}
		}
		if err := updated.Validate(); err != nil {
			return err
		}
		if err := e.resolveAccounts(ctx, tx, &updated, false); err != nil {
			return err
		}

		reversal, err := Reversal(old)
		if err != nil {
			return err
		}
		effect, err := Effect(&updated)
		if err != nil {
			return err
		}

		undone, err := Apply(ctx, tx, reversal)
		if err != nil {
			return balanceError(err)
		}
		applied, err := Apply(ctx, tx, effect)
		if err != nil {
			return balanceError(err)
		}
		accounts = append(undone, applied...)

		return tx.UpdateTransaction(ctx, &updated)
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "updated transaction",
		"transaction_id", updated.ID,
		"old_status", old.Status,
		"status", updated.Status)
	e.publish(ctx, accounts, notify.TransactionsChanged)

	switch {
	case recurrenceChanged(old, &updated):
		e.regenerate(ctx, old, &updated)
	case updated.Kind.IsRecurring() && updated.IsPaid() && !(old.Kind == updated.Kind && old.IsPaid()):
		e.generateNext(ctx, &updated)
	}
	return &updated, nil
}

func recurrenceChanged(old, updated *model.Transaction) bool {
	return old.Kind.IsRecurring() && !old.Recurrence.Equal(updated.Recurrence)
}

// scheduleChanged reports whether a recurring update starts a new schedule,
// either because the kind became recurring or because its rule changed. Such
// updates are validated like a new sequence and get a fresh next due date.
func scheduleChanged(old, updated *model.Transaction) bool {
	if !updated.Kind.IsRecurring() {
		return false
	}
	return old.Kind != updated.Kind || !old.Recurrence.Equal(updated.Recurrence)
}

// Delete reverses a transaction's realized effect and removes it.
func (e *Engine) Delete(ctx context.Context, id string) error {
	var accounts []model.Account
	err := e.withTx(ctx, func(tx service.Transaction) error {
		txn, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		accounts, err = Restore(ctx, tx, txn)
		if err != nil {
			return balanceError(err)
		}
		return tx.DeleteTransaction(ctx, id)
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "deleted transaction", "transaction_id", id)
	e.publish(ctx, accounts, notify.TransactionsChanged)
	return nil
}

// SetStatus moves a transaction to another status of its kind. Setting the
// status it already has is a no-op, except that a paid recurring transaction
// retries generation of its next occurrence.
func (e *Engine) SetStatus(ctx context.Context, id string, status model.Status) (*model.Transaction, error) {
	txn, err := e.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.setStatus(ctx, txn, status)
}

func (e *Engine) setStatus(ctx context.Context, txn *model.Transaction, status model.Status) (*model.Transaction, error) {
	if !txn.Kind.AllowsStatus(status) {
		return nil, common.Validationf("status %q is not valid for kind %q", status, txn.Kind)
	}
	if txn.Status == status {
		if txn.Kind.IsRecurring() && txn.IsPaid() {
			e.generateNext(ctx, txn)
		}
		return txn, nil
	}

	updated := txn.Clone()
	updated.Status = status
	return e.Update(ctx, &updated)
}

func (e *Engine) setKindStatus(ctx context.Context, id string, kind model.Kind, status model.Status) (*model.Transaction, error) {
	txn, err := e.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if txn.Kind != kind {
		return nil, common.Validationf("transaction %s is %s, not %s", id, txn.Kind, kind)
	}
	return e.setStatus(ctx, txn, status)
}

// MarkPaid marks an upcoming, subscription or repetitive transaction paid.
func (e *Engine) MarkPaid(ctx context.Context, id string) (*model.Transaction, error) {
	return e.SetStatus(ctx, id, model.StatusPaid)
}

// MarkUnpaid marks an upcoming, subscription or repetitive transaction unpaid.
func (e *Engine) MarkUnpaid(ctx context.Context, id string) (*model.Transaction, error) {
	return e.SetStatus(ctx, id, model.StatusUnpaid)
}

// MarkCollected records that lent money was paid back.
func (e *Engine) MarkCollected(ctx context.Context, id string) (*model.Transaction, error) {
	return e.setKindStatus(ctx, id, model.KindLent, model.StatusCollected)
}

// MarkUncollected reopens a collected loan.
func (e *Engine) MarkUncollected(ctx context.Context, id string) (*model.Transaction, error) {
	return e.setKindStatus(ctx, id, model.KindLent, model.StatusOutstanding)
}

// MarkSettled records that borrowed money was repaid.
func (e *Engine) MarkSettled(ctx context.Context, id string) (*model.Transaction, error) {
	return e.setKindStatus(ctx, id, model.KindBorrowed, model.StatusSettled)
}

// MarkUnsettled reopens a settled debt.
func (e *Engine) MarkUnsettled(ctx context.Context, id string) (*model.Transaction, error) {
	return e.setKindStatus(ctx, id, model.KindBorrowed, model.StatusOutstanding)
}

// TransferWithConversion moves money between two accounts without recording
// a transaction: sourceAmount leaves the source and destAmount, already
// converted by the caller, arrives at the destination. Both legs apply or
// neither does.
func (e *Engine) TransferWithConversion(ctx context.Context, sourceID, destID string, sourceAmount, destAmount decimal.Decimal) ([]model.Account, error) {
	if sourceID == destID {
		return nil, common.Validationf("transfer destination equals source account %s", sourceID)
	}
	if !sourceAmount.IsPositive() || !destAmount.IsPositive() {
		return nil, common.Validationf("transfer amounts must be positive, got %s and %s", sourceAmount, destAmount)
	}

	var accounts []model.Account
	err := e.withTx(ctx, func(tx service.Transaction) error {
		if _, err := tx.GetAccount(ctx, sourceID); err != nil {
			return err
		}
		if _, err := tx.GetAccount(ctx, destID); err != nil {
			if errors.Is(err, common.ErrAccountNotFound) {
				return fmt.Errorf("%w: %s", common.ErrDestinationNotFound, destID)
			}
			return err
		}

		var err error
		accounts, err = Apply(ctx, tx, []Delta{
			{AccountID: sourceID, Amount: sourceAmount.Neg()},
			{AccountID: destID, Amount: destAmount},
		})
		if err != nil {
			return balanceError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "transferred between accounts",
		"source_id", sourceID,
		"destination_id", destID,
		"source_amount", sourceAmount.String(),
		"destination_amount", destAmount.String())
	e.publish(ctx, accounts)
	return accounts, nil
}

// CreateAccount stores a new account with its opening balance. A main
// account replaces the previous one.
func (e *Engine) CreateAccount(ctx context.Context, account *model.Account) (*model.Account, error) {
	if err := account.Validate(); err != nil {
		return nil, err
	}

	created := *account
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	created.CurrencyCode = currency.Normalize(created.CurrencyCode)

	err := e.withTx(ctx, func(tx service.Transaction) error {
		if err := tx.CreateAccount(ctx, &created); err != nil {
			return err
		}
		if created.IsMainAccount {
			return tx.SetMainAccount(ctx, created.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "created account", "account_id", created.ID, "name", created.Name)
	e.publish(ctx, nil, notify.AccountsChanged)
	return &created, nil
}

// SetMainAccount makes id the only main account.
func (e *Engine) SetMainAccount(ctx context.Context, id string) error {
	if err := e.withTx(ctx, func(tx service.Transaction) error {
		return tx.SetMainAccount(ctx, id)
	}); err != nil {
		return err
	}
	e.publish(ctx, nil, notify.AccountsChanged)
	return nil
}

// AdjustBalance changes an account balance directly, outside any transaction
// record. It is meant for corrections.
func (e *Engine) AdjustBalance(ctx context.Context, accountID string, amount decimal.Decimal, isExpense bool) (*model.Account, error) {
	if !amount.IsPositive() {
		return nil, common.Validationf("adjustment must be positive, got %s", amount)
	}

	var account *model.Account
	err := e.withTx(ctx, func(tx service.Transaction) error {
		var err error
		account, err = tx.AdjustBalance(ctx, accountID, amount, isExpense)
		return err
	})
	if err != nil {
		return nil, balanceError(err)
	}
	e.publish(ctx, []model.Account{*account})
	return account, nil
}

// Accounts lists every account, main account first.
func (e *Engine) Accounts(ctx context.Context) ([]model.Account, error) {
	return e.store.GetAccounts(ctx)
}

func (e *Engine) generateNext(ctx context.Context, paid *model.Transaction) {
	var next *model.Transaction
	err := e.withTx(ctx, func(tx service.Transaction) error {
		var err error
		next, err = e.scheduler.GenerateNextIfNeeded(ctx, tx, paid)
		return err
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate next occurrence",
			"transaction_id", paid.ID,
			"error", err)
		return
	}
	if next == nil {
		return
	}

	slog.InfoContext(ctx, "generated next occurrence",
		"transaction_id", paid.ID,
		"next_id", next.ID,
		"date", model.FormatDate(next.Date))
	e.publish(ctx, nil, notify.TransactionsChanged)
}

func (e *Engine) regenerate(ctx context.Context, old, updated *model.Transaction) {
	var result recurrence.Regeneration
	err := e.withTx(ctx, func(tx service.Transaction) error {
		var err error
		result, err = e.scheduler.RegenerateFuture(ctx, tx, old, updated)
		return err
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to regenerate future occurrences",
			"transaction_id", updated.ID,
			"error", err)
		return
	}

	slog.InfoContext(ctx, "regenerated future occurrences",
		"transaction_id", updated.ID,
		"deleted", result.Deleted,
		"created", result.Created,
		"capped", result.Capped)
	e.publish(ctx, nil, notify.TransactionsChanged)
}

// publish emits the given events followed by one BalanceChanged event per
// touched account carrying its final balance.
func (e *Engine) publish(ctx context.Context, accounts []model.Account, types ...notify.EventType) {
	for _, t := range types {
		e.sink.Notify(ctx, notify.Of(t))
	}

	latest := make(map[string]decimal.Decimal, len(accounts))
	order := make([]string, 0, len(accounts))
	for _, account := range accounts {
		if _, seen := latest[account.ID]; !seen {
			order = append(order, account.ID)
		}
		latest[account.ID] = account.Balance
	}
	for _, id := range order {
		e.sink.Notify(ctx, notify.Balance(id, latest[id]))
	}
}

func balanceError(err error) error {
	if errors.Is(err, common.ErrBalanceUpdateFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", common.ErrBalanceUpdateFailed, err)
}
