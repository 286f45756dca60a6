package migration

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/ledger"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/notify"
	"github.com/Veraticus/spice-ledger/internal/service"
)

// MergeCategory folds source into target. Each source subcategory is mapped
// onto a target subcategory with the same name, ignoring case, or onto a new
// one appended to target; its transactions follow and it is deleted. Source
// transactions without a subcategory move to target. Source is deleted only
// when every subcategory was moved. Balances are never touched.
func (s *Service) MergeCategory(ctx context.Context, sourceID, targetID int) (Result, error) {
	if sourceID == targetID {
		return Result{}, common.Validationf("cannot merge category %d into itself", sourceID)
	}

	var result Result
	err := s.withTx(ctx, func(tx service.Transaction) error {
		source, err := tx.GetCategoryByID(ctx, sourceID)
		if err != nil {
			return err
		}
		target, err := tx.GetCategoryByID(ctx, targetID)
		if err != nil {
			return err
		}

		subs, err := tx.GetSubCategoriesByCategory(ctx, sourceID)
		if err != nil {
			return err
		}
		targetSubs, err := tx.GetSubCategoriesByCategory(ctx, targetID)
		if err != nil {
			return err
		}

		result, err = s.runItems(ctx, tx, "merge_subcategory", len(subs), func(i int) error {
			sub := subs[i]
			dest, created, err := resolveSubCategory(ctx, tx, targetID, sub.Name, targetSubs)
			if err != nil {
				return fmt.Errorf("subcategory %q: %w", sub.Name, err)
			}
			moved, err := tx.RepointSubCategory(ctx, sub.ID, targetID, &dest.ID)
			if err != nil {
				return fmt.Errorf("subcategory %q: %w", sub.Name, err)
			}
			if err := tx.DeleteSubCategory(ctx, sub.ID); err != nil {
				return fmt.Errorf("subcategory %q: %w", sub.Name, err)
			}
			if created {
				targetSubs = append(targetSubs, *dest)
			}

			slog.DebugContext(ctx, "merged subcategory",
				"source", sub.Name,
				"target", dest.Name,
				"created", created,
				"transactions", moved)
			return nil
		})
		if err != nil {
			return err
		}

		moved, err := tx.RepointCategory(ctx, sourceID, targetID)
		if err != nil {
			return err
		}
		if !result.Complete() {
			slog.WarnContext(ctx, "category merge incomplete, keeping source category",
				"source", source.Name,
				"failed", result.Failed)
			return nil
		}
		if err := tx.DeleteCategory(ctx, sourceID); err != nil {
			return err
		}

		slog.InfoContext(ctx, "merged category",
			"source", source.Name,
			"target", target.Name,
			"subcategories", result.Succeeded,
			"transactions", moved)
		return nil
	})
	if err != nil {
		return result, err
	}

	s.publish(ctx, nil, notify.TransactionsChanged)
	return result, nil
}

// resolveSubCategory finds a subcategory of categoryID named name, ignoring
// case and surrounding space, or creates one at the end of the list.
func resolveSubCategory(ctx context.Context, tx service.Transaction, categoryID int, name string, existing []model.SubCategory) (*model.SubCategory, bool, error) {
	for i := range existing {
		if strings.EqualFold(strings.TrimSpace(existing[i].Name), strings.TrimSpace(name)) {
			return &existing[i], false, nil
		}
	}

	sub := &model.SubCategory{
		CategoryID: categoryID,
		Name:       name,
		Position:   len(existing),
	}
	if err := tx.InsertSubCategory(ctx, sub); err != nil {
		return nil, false, err
	}
	return sub, true, nil
}

// MergeSubCategory moves every transaction of source to target and deletes
// source. It returns the number of transactions moved.
func (s *Service) MergeSubCategory(ctx context.Context, sourceID, targetID int) (int64, error) {
	if sourceID == targetID {
		return 0, common.Validationf("cannot merge subcategory %d into itself", sourceID)
	}

	var moved int64
	err := s.withTx(ctx, func(tx service.Transaction) error {
		if _, err := tx.GetSubCategory(ctx, sourceID); err != nil {
			return err
		}
		target, err := tx.GetSubCategory(ctx, targetID)
		if err != nil {
			return err
		}

		moved, err = tx.RepointSubCategory(ctx, sourceID, target.CategoryID, &target.ID)
		if err != nil {
			return err
		}
		return tx.DeleteSubCategory(ctx, sourceID)
	})
	if err != nil {
		return 0, err
	}

	slog.InfoContext(ctx, "merged subcategory", "source_id", sourceID, "target_id", targetID, "transactions", moved)
	s.publish(ctx, nil, notify.TransactionsChanged)
	return moved, nil
}

// DeleteCategory deletes every transaction of a category and its
// subcategories, oldest first, then the subcategories and the category. With
// restore set each transaction's realized effect is reversed before it is
// deleted; otherwise balances are left as they are. The category survives if
// any transaction could not be removed.
func (s *Service) DeleteCategory(ctx context.Context, id int, restore bool) (Result, error) {
	var result Result
	var accounts []model.Account
	err := s.withTx(ctx, func(tx service.Transaction) error {
		category, err := tx.GetCategoryByID(ctx, id)
		if err != nil {
			return err
		}
		subs, err := tx.GetSubCategoriesByCategory(ctx, id)
		if err != nil {
			return err
		}

		txns, err := tx.GetTransactionsByCategory(ctx, id)
		if err != nil {
			return err
		}
		for _, sub := range subs {
			subTxns, err := tx.GetTransactionsBySubCategory(ctx, sub.ID)
			if err != nil {
				return err
			}
			txns = append(txns, subTxns...)
		}
		txns = stableUnique(txns)

		result, err = s.runItems(ctx, tx, "delete_transaction", len(txns), func(i int) error {
			touched, err := removeTransaction(ctx, tx, &txns[i], restore)
			if err != nil {
				return err
			}
			accounts = append(accounts, touched...)
			return nil
		})
		if err != nil {
			return err
		}
		if !result.Complete() {
			slog.WarnContext(ctx, "category delete incomplete, keeping category",
				"category", category.Name,
				"failed", result.Failed)
			return nil
		}

		for _, sub := range subs {
			if err := tx.DeleteSubCategory(ctx, sub.ID); err != nil {
				return err
			}
		}
		if err := tx.DeleteCategory(ctx, id); err != nil {
			return err
		}

		slog.InfoContext(ctx, "deleted category",
			"category", category.Name,
			"transactions", result.Succeeded,
			"restore", restore)
		return nil
	})
	if err != nil {
		return result, err
	}

	s.publish(ctx, accounts, notify.TransactionsChanged)
	return result, nil
}

// DeleteSubCategory deletes a subcategory and its transactions, reversing
// their effect first when restore is set.
func (s *Service) DeleteSubCategory(ctx context.Context, id int, restore bool) (Result, error) {
	var result Result
	var accounts []model.Account
	err := s.withTx(ctx, func(tx service.Transaction) error {
		sub, err := tx.GetSubCategory(ctx, id)
		if err != nil {
			return err
		}
		txns, err := tx.GetTransactionsBySubCategory(ctx, id)
		if err != nil {
			return err
		}
		txns = stableUnique(txns)

		result, err = s.runItems(ctx, tx, "delete_transaction", len(txns), func(i int) error {
			touched, err := removeTransaction(ctx, tx, &txns[i], restore)
			if err != nil {
				return err
			}
			accounts = append(accounts, touched...)
			return nil
		})
		if err != nil {
			return err
		}
		if !result.Complete() {
			slog.WarnContext(ctx, "subcategory delete incomplete, keeping subcategory",
				"subcategory", sub.Name,
				"failed", result.Failed)
			return nil
		}
		return tx.DeleteSubCategory(ctx, id)
	})
	if err != nil {
		return result, err
	}

	s.publish(ctx, accounts, notify.TransactionsChanged)
	return result, nil
}

func removeTransaction(ctx context.Context, tx service.Transaction, txn *model.Transaction, restore bool) ([]model.Account, error) {
	var touched []model.Account
	if restore {
		var err error
		touched, err = ledger.Restore(ctx, tx, txn)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: %w", txn.ID, err)
		}
	}
	if err := tx.DeleteTransaction(ctx, txn.ID); err != nil {
		return nil, fmt.Errorf("transaction %s: %w", txn.ID, err)
	}
	return touched, nil
}

// stableUnique drops repeated IDs and orders transactions by date, then ID.
func stableUnique(txns []model.Transaction) []model.Transaction {
	seen := make(map[string]bool, len(txns))
	out := make([]model.Transaction, 0, len(txns))
	for _, txn := range txns {
		if seen[txn.ID] {
			continue
		}
		seen[txn.ID] = true
		out = append(out, txn)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
