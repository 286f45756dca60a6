package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/service"
)

const transactionColumns = `id, title, amount, destination_amount, date, time,
	account_id, destination_account_id, category_id, subcategory_id,
	mode, kind, status, frequency, recurrence_interval, end_date, next_due_date,
	original_currency_code, external_id, created_at`

// transactionArgs flattens a transaction into the column order of transactionColumns
// without the trailing created_at.
func transactionArgs(txn *model.Transaction) []any {
	frequency := model.FrequencyNone
	interval := 0
	var endDate any
	if txn.Recurrence.Active() {
		frequency = txn.Recurrence.Frequency
		interval = txn.Recurrence.Interval
		if txn.Recurrence.EndDate != nil {
			endDate = model.FormatDate(*txn.Recurrence.EndDate)
		}
	}

	return []any{
		txn.ID,
		txn.Title,
		txn.Amount.String(),
		txn.DestinationAmount.String(),
		model.FormatDate(txn.Date),
		txn.Time,
		txn.AccountID,
		nullString(txn.DestinationAccountID),
		nullInt(txn.CategoryID),
		nullIntPtr(txn.SubCategoryID),
		string(txn.Mode),
		string(txn.Kind),
		string(txn.Status),
		string(frequency),
		interval,
		endDate,
		nullDate(txn.NextDueDate),
		txn.OriginalCurrencyCode,
		nullString(txn.ExternalID),
	}
}

func scanTransaction(row interface{ Scan(...any) error }) (*model.Transaction, error) {
	var (
		txn                            model.Transaction
		date                           string
		mode, kind, status, frequency  string
		interval                       int
		destinationAccount, externalID sql.NullString
		endDate, nextDueDate           sql.NullString
		categoryID, subCategoryID      sql.NullInt64
		createdAt                      sql.NullTime
	)

	if err := row.Scan(
		&txn.ID,
		&txn.Title,
		&txn.Amount,
		&txn.DestinationAmount,
		&date,
		&txn.Time,
		&txn.AccountID,
		&destinationAccount,
		&categoryID,
		&subCategoryID,
		&mode,
		&kind,
		&status,
		&frequency,
		&interval,
		&endDate,
		&nextDueDate,
		&txn.OriginalCurrencyCode,
		&externalID,
		&createdAt,
	); err != nil {
		return nil, err
	}

	var err error
	if txn.Date, err = model.ParseDate(date); err != nil {
		return nil, err
	}
	txn.Mode = model.Mode(mode)
	txn.Kind = model.Kind(kind)
	txn.Status = model.Status(status)
	txn.DestinationAccountID = destinationAccount.String
	txn.ExternalID = externalID.String
	if categoryID.Valid {
		txn.CategoryID = int(categoryID.Int64)
	}
	if subCategoryID.Valid {
		id := int(subCategoryID.Int64)
		txn.SubCategoryID = &id
	}
	if createdAt.Valid {
		txn.CreatedAt = createdAt.Time
	}
	if nextDueDate.Valid {
		d, parseErr := model.ParseDate(nextDueDate.String)
		if parseErr != nil {
			return nil, parseErr
		}
		txn.NextDueDate = &d
	}

	if freq := model.Frequency(frequency); freq != model.FrequencyNone && freq != "" {
		txn.Recurrence = &model.Recurrence{Frequency: freq, Interval: interval}
		if endDate.Valid {
			d, parseErr := model.ParseDate(endDate.String)
			if parseErr != nil {
				return nil, parseErr
			}
			txn.Recurrence.EndDate = &d
		}
	}

	return &txn, nil
}

func (s queries) queryTransactions(ctx context.Context, query string, args ...any) ([]model.Transaction, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.Transaction
	for rows.Next() {
		txn, scanErr := scanTransaction(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", scanErr)
		}
		transactions = append(transactions, *txn)
	}
	return transactions, rows.Err()
}

// GetTransaction retrieves a single transaction by ID.
func (s queries) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	txn, err := scanTransaction(s.q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", common.ErrTransactionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

// GetTransactions retrieves transactions matching the filter, newest first.
func (s queries) GetTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateFilter(filter); err != nil {
		return nil, err
	}

	var conditions []string
	var args []any
	if filter.StartDate != nil {
		conditions = append(conditions, "date >= ?")
		args = append(args, model.FormatDate(*filter.StartDate))
	}
	if filter.EndDate != nil {
		conditions = append(conditions, "date <= ?")
		args = append(args, model.FormatDate(*filter.EndDate))
	}
	if filter.AccountID != "" {
		conditions = append(conditions, "(account_id = ? OR destination_account_id = ?)")
		args = append(args, filter.AccountID, filter.AccountID)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY date DESC, time DESC, created_at DESC, rowid DESC"

	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	return s.queryTransactions(ctx, query, args...)
}

// GetTransactionsByAccount returns every transaction whose source or
// destination is the account, oldest first.
func (s queries) GetTransactionsByAccount(ctx context.Context, accountID string) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(accountID, "accountID"); err != nil {
		return nil, err
	}
	return s.queryTransactions(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE account_id = ? OR destination_account_id = ?
		ORDER BY date ASC, created_at ASC, rowid ASC`, accountID, accountID)
}

// GetTransactionsByCategory retrieves all transactions for a category ID.
func (s queries) GetTransactionsByCategory(ctx context.Context, categoryID int) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(categoryID, "categoryID"); err != nil {
		return nil, err
	}
	return s.queryTransactions(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE category_id = ? ORDER BY date ASC, created_at ASC, rowid ASC`, categoryID)
}

// GetTransactionsBySubCategory retrieves all transactions for a subcategory ID.
func (s queries) GetTransactionsBySubCategory(ctx context.Context, subCategoryID int) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(subCategoryID, "subCategoryID"); err != nil {
		return nil, err
	}
	return s.queryTransactions(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE subcategory_id = ? ORDER BY date ASC, created_at ASC, rowid ASC`, subCategoryID)
}

// GetTransactionByExternalID finds an imported transaction by its source ID.
func (s queries) GetTransactionByExternalID(ctx context.Context, accountID, externalID string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(externalID, "externalID"); err != nil {
		return nil, err
	}

	txn, err := scanTransaction(s.q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE account_id = ? AND external_id = ?`,
		accountID, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: external ID %s", common.ErrTransactionNotFound, externalID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction by external ID: %w", err)
	}
	return txn, nil
}

// FindRecurrenceInstance returns the instance of a recurring series on the
// given date, if any.
func (s queries) FindRecurrenceInstance(ctx context.Context, key service.RecurrenceKey, date time.Time) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	txn, err := scanTransaction(s.q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE account_id = ? AND kind = ? AND date = ? AND title = ? AND amount = ?
		LIMIT 1`,
		key.AccountID, string(key.Kind), model.FormatDate(date), key.Title, key.Amount.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no %s instance on %s", common.ErrTransactionNotFound, key.Title, model.FormatDate(date))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find recurrence instance: %w", err)
	}
	return txn, nil
}

// DeleteUnpaidRecurrencesAfter removes the unpaid instances of a series dated
// strictly after the given date, except the transaction keepID.
func (s queries) DeleteUnpaidRecurrencesAfter(ctx context.Context, key service.RecurrenceKey, after time.Time, keepID string) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	result, err := s.q.ExecContext(ctx, `DELETE FROM transactions
		WHERE account_id = ? AND kind = ? AND title = ? AND amount = ?
		  AND date > ? AND status = ? AND id != ?`,
		key.AccountID, string(key.Kind), key.Title, key.Amount.String(),
		model.FormatDate(after), string(model.StatusUnpaid), keepID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete future recurrences: %w", classifyError(err))
	}
	return result.RowsAffected()
}

// InsertTransaction writes a new transaction row. It never touches balances.
func (s queries) InsertTransaction(ctx context.Context, txn *model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransaction(txn); err != nil {
		return err
	}

	_, err := s.q.ExecContext(ctx, `INSERT INTO transactions (
			id, title, amount, destination_amount, date, time,
			account_id, destination_account_id, category_id, subcategory_id,
			mode, kind, status, frequency, recurrence_interval, end_date, next_due_date,
			original_currency_code, external_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		transactionArgs(txn)...)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", classifyError(err))
	}
	return nil
}

// UpdateTransaction overwrites every column of an existing transaction.
func (s queries) UpdateTransaction(ctx context.Context, txn *model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransaction(txn); err != nil {
		return err
	}

	args := transactionArgs(txn)
	args = append(args[1:], txn.ID)
	result, err := s.q.ExecContext(ctx, `UPDATE transactions SET
			title = ?, amount = ?, destination_amount = ?, date = ?, time = ?,
			account_id = ?, destination_account_id = ?, category_id = ?, subcategory_id = ?,
			mode = ?, kind = ?, status = ?, frequency = ?, recurrence_interval = ?,
			end_date = ?, next_due_date = ?, original_currency_code = ?, external_id = ?
		WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", classifyError(err))
	}
	return requireAffected(result, common.ErrTransactionNotFound, txn.ID)
}

// DeleteTransaction removes a transaction row. It never touches balances.
func (s queries) DeleteTransaction(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", classifyError(err))
	}
	return requireAffected(result, common.ErrTransactionNotFound, id)
}

// RepointSubCategory moves every transaction of a subcategory to another
// category and subcategory.
func (s queries) RepointSubCategory(ctx context.Context, fromSubCategoryID, toCategoryID int, toSubCategoryID *int) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateID(fromSubCategoryID, "fromSubCategoryID"); err != nil {
		return 0, err
	}

	result, err := s.q.ExecContext(ctx, `UPDATE transactions
		SET category_id = ?, subcategory_id = ? WHERE subcategory_id = ?`,
		nullInt(toCategoryID), nullIntPtr(toSubCategoryID), fromSubCategoryID)
	if err != nil {
		return 0, fmt.Errorf("failed to repoint subcategory: %w", classifyError(err))
	}
	return result.RowsAffected()
}

// RepointCategory moves the transactions of a category that carry no subcategory.
func (s queries) RepointCategory(ctx context.Context, fromCategoryID, toCategoryID int) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateID(fromCategoryID, "fromCategoryID"); err != nil {
		return 0, err
	}

	result, err := s.q.ExecContext(ctx, `UPDATE transactions
		SET category_id = ? WHERE category_id = ? AND subcategory_id IS NULL`,
		nullInt(toCategoryID), fromCategoryID)
	if err != nil {
		return 0, fmt.Errorf("failed to repoint category: %w", classifyError(err))
	}
	return result.RowsAffected()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(id int) any {
	if id <= 0 {
		return nil
	}
	return id
}

func nullIntPtr(id *int) any {
	if id == nil {
		return nil
	}
	return nullInt(*id)
}

func nullDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return model.FormatDate(*t)
}
