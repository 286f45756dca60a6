package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
)

const accountColumns = `id, name, balance, currency_code, is_main_account, created_at`

func scanAccount(row interface{ Scan(...any) error }) (*model.Account, error) {
	var account model.Account
	var createdAt sql.NullTime
	if err := row.Scan(
		&account.ID,
		&account.Name,
		&account.Balance,
		&account.CurrencyCode,
		&account.IsMainAccount,
		&createdAt,
	); err != nil {
		return nil, err
	}
	if createdAt.Valid {
		account.CreatedAt = createdAt.Time
	}
	return &account, nil
}

// CreateAccount inserts a new account with its opening balance.
func (s queries) CreateAccount(ctx context.Context, account *model.Account) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAccount(account); err != nil {
		return err
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO accounts (id, name, balance, currency_code, is_main_account)
		VALUES (?, ?, ?, ?, ?)
	`, account.ID, account.Name, account.Balance.String(), account.CurrencyCode, account.IsMainAccount)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", classifyError(err))
	}
	return nil
}

// GetAccount retrieves a single account by ID.
func (s queries) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	account, err := scanAccount(s.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", common.ErrAccountNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// GetAccounts returns every account, main account first.
func (s queries) GetAccounts(ctx context.Context) ([]model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY is_main_account DESC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []model.Account
	for rows.Next() {
		account, scanErr := scanAccount(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan account: %w", scanErr)
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

// SaveAccount updates an account's name and currency. Balances are only
// written through AdjustBalance.
func (s queries) SaveAccount(ctx context.Context, account *model.Account) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAccount(account); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx, `
		UPDATE accounts SET name = ?, currency_code = ? WHERE id = ?
	`, account.Name, account.CurrencyCode, account.ID)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", classifyError(err))
	}
	return requireAffected(result, common.ErrAccountNotFound, account.ID)
}

// SetMainAccount marks one account as main and clears the flag on all others.
func (s queries) SetMainAccount(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if _, err := s.GetAccount(ctx, id); err != nil {
		return err
	}

	if _, err := s.q.ExecContext(ctx,
		`UPDATE accounts SET is_main_account = (id = ?)`, id); err != nil {
		return fmt.Errorf("failed to set main account: %w", classifyError(err))
	}
	return nil
}

// DeleteAccount removes an account. Transactions still referencing it
// make the delete fail.
func (s queries) DeleteAccount(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", classifyError(err))
	}
	return requireAffected(result, common.ErrAccountNotFound, id)
}

// AdjustBalance applies a single signed change to an account balance:
// balance-amount when isExpense, balance+amount otherwise.
func (s queries) AdjustBalance(ctx context.Context, accountID string, amount decimal.Decimal, isExpense bool) (*model.Account, error) {
	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if isExpense {
		account.Balance = account.Balance.Sub(amount)
	} else {
		account.Balance = account.Balance.Add(amount)
	}

	if _, err := s.q.ExecContext(ctx,
		`UPDATE accounts SET balance = ? WHERE id = ?`,
		account.Balance.String(), account.ID); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrBalanceUpdateFailed, classifyError(err))
	}
	return account, nil
}

func requireAffected(result sql.Result, notFound error, id any) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %v", notFound, id)
	}
	return nil
}
