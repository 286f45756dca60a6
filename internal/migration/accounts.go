package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/currency"
	"github.com/Veraticus/spice-ledger/internal/ledger"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/notify"
	"github.com/Veraticus/spice-ledger/internal/service"
)

// MergeAccount moves every transaction of source to target, carrying each
// transaction's realized effect with it, then moves whatever balance source
// still holds and deletes source. Transfers between the two accounts cancel
// out and are deleted. Both accounts must share a currency.
func (s *Service) MergeAccount(ctx context.Context, sourceID, targetID string) (Result, error) {
	if sourceID == targetID {
		return Result{}, common.Validationf("cannot merge account %s into itself", sourceID)
	}

	var result Result
	var accounts []model.Account
	err := s.withTx(ctx, func(tx service.Transaction) error {
		source, err := tx.GetAccount(ctx, sourceID)
		if err != nil {
			return err
		}
		target, err := tx.GetAccount(ctx, targetID)
		if errors.Is(err, common.ErrAccountNotFound) {
			return fmt.Errorf("%w: %s", common.ErrDestinationNotFound, targetID)
		}
		if err != nil {
			return err
		}
		if currency.Normalize(source.CurrencyCode) != currency.Normalize(target.CurrencyCode) {
			return common.Validationf("cannot merge %s account %q into %s account %q",
				source.CurrencyCode, source.Name, target.CurrencyCode, target.Name)
		}

		txns, err := tx.GetTransactionsByAccount(ctx, sourceID)
		if err != nil {
			return err
		}

		result, err = s.runItems(ctx, tx, "move_transaction", len(txns), func(i int) error {
			touched, err := moveTransaction(ctx, tx, &txns[i], sourceID, targetID)
			if err != nil {
				return fmt.Errorf("transaction %s: %w", txns[i].ID, err)
			}
			accounts = append(accounts, touched...)
			return nil
		})
		if err != nil {
			return err
		}
		if !result.Complete() {
			slog.WarnContext(ctx, "account merge incomplete, keeping source account",
				"source", source.Name,
				"failed", result.Failed)
			return nil
		}

		// What is left on source is not backed by any transaction.
		source, err = tx.GetAccount(ctx, sourceID)
		if err != nil {
			return err
		}
		carried, err := ledger.Apply(ctx, tx, []ledger.Delta{{AccountID: targetID, Amount: source.Balance}})
		if err != nil {
			return err
		}
		accounts = append(accounts, carried...)

		if source.IsMainAccount {
			if err := tx.SetMainAccount(ctx, targetID); err != nil {
				return err
			}
		}
		if err := tx.DeleteAccount(ctx, sourceID); err != nil {
			return err
		}

		slog.InfoContext(ctx, "merged account",
			"source", source.Name,
			"target", target.Name,
			"transactions", result.Succeeded)
		return nil
	})
	if err != nil {
		return result, err
	}

	s.publish(ctx, accounts, notify.AccountsChanged, notify.TransactionsChanged)
	return result, nil
}

func moveTransaction(ctx context.Context, tx service.Transaction, txn *model.Transaction, sourceID, targetID string) ([]model.Account, error) {
	moved := txn.Clone()
	if moved.AccountID == sourceID {
		moved.AccountID = targetID
	}
	if moved.DestinationAccountID == sourceID {
		moved.DestinationAccountID = targetID
	}

	if moved.IsTransfer() && moved.AccountID == moved.DestinationAccountID {
		touched, err := ledger.Restore(ctx, tx, txn)
		if err != nil {
			return nil, err
		}
		return touched, tx.DeleteTransaction(ctx, txn.ID)
	}

	reversal, err := ledger.Reversal(txn)
	if err != nil {
		return nil, err
	}
	effect, err := ledger.Effect(&moved)
	if err != nil {
		return nil, err
	}
	touched, err := ledger.Apply(ctx, tx, ledger.Net(reversal, effect))
	if err != nil {
		return nil, err
	}
	if err := tx.UpdateTransaction(ctx, &moved); err != nil {
		return nil, err
	}
	return touched, nil
}
