package pattern

import (
	"fmt"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
)

// ValidateMode checks that a category's type fits the transaction's mode:
// expenses go to expense categories and income to income categories.
// Transfers may be filed anywhere.
func ValidateMode(txn *model.Transaction, category *model.Category) error {
	var expected model.CategoryType
	switch txn.Mode {
	case model.ModeExpense:
		expected = model.CategoryTypeExpense
	case model.ModeIncome:
		expected = model.CategoryTypeIncome
	default:
		return nil
	}

	if category.Type != expected {
		return fmt.Errorf("%w: category %q has type %s but transaction %q is %s",
			common.ErrValidationFailed, category.Name, category.Type, txn.Title, txn.Mode)
	}
	return nil
}
