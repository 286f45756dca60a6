package pattern

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
)

func expense(title, amount string) *model.Transaction {
	return &model.Transaction{
		Title:  title,
		Amount: decimal.RequireFromString(amount),
		Mode:   model.ModeExpense,
	}
}

func TestMatcher_Match(t *testing.T) {
	matcher, err := NewMatcher([]Rule{
		{Name: "coffee", Pattern: "starbucks", Category: "Dining", MaxAmount: "20"},
		{Name: "big coffee", Pattern: "starbucks", Category: "Catering", MinAmount: "20.01"},
		{Name: "amazon", Pattern: `^amzn|amazon`, IsRegex: true, Category: "Shopping"},
		{Name: "prime", Pattern: "amazon prime", Category: "Subscriptions", Priority: 10},
		{Name: "refunds", Pattern: "refund", Category: "Refunds", Mode: string(model.ModeIncome)},
	})
	require.NoError(t, err)
	assert.Equal(t, 5, matcher.Len())

	tests := []struct {
		txn  *model.Transaction
		name string
		want string
	}{
		{name: "substring ignores case", txn: expense("STARBUCKS #1234", "4.50"), want: "coffee"},
		{name: "amount above max falls through", txn: expense("Starbucks", "45"), want: "big coffee"},
		{name: "max is inclusive", txn: expense("Starbucks", "20"), want: "coffee"},
		{name: "regex", txn: expense("AMZN Mktp US", "12"), want: "amazon"},
		{name: "priority wins", txn: expense("Amazon Prime", "14.99"), want: "prime"},
		{name: "mode must match", txn: expense("Refund desk", "5")},
		{name: "no match", txn: expense("City Water", "62.10")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, ok := matcher.Match(context.Background(), tt.txn)
			if tt.want == "" {
				assert.False(t, ok, "matched %q", rule.Name)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, rule.Name)
		})
	}
}

func TestNewMatcher_Invalid(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
		want error
	}{
		{name: "no pattern", rule: Rule{Name: "x", Category: "c"}, want: common.ErrValidationFailed},
		{name: "no category", rule: Rule{Name: "x", Pattern: "p"}, want: common.ErrValidationFailed},
		{name: "bad mode", rule: Rule{Name: "x", Pattern: "p", Category: "c", Mode: "sideways"}, want: common.ErrValidationFailed},
		{name: "bad regex", rule: Rule{Name: "x", Pattern: "(", Category: "c", IsRegex: true}, want: common.ErrInvalidConfig},
		{name: "bad amount", rule: Rule{Name: "x", Pattern: "p", Category: "c", MinAmount: "ten"}, want: common.ErrValidationFailed},
		{name: "inverted bounds", rule: Rule{Name: "x", Pattern: "p", Category: "c", MinAmount: "10", MaxAmount: "5"}, want: common.ErrValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMatcher([]Rule{tt.rule})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidateMode(t *testing.T) {
	expenseCat := &model.Category{Name: "Dining", Type: model.CategoryTypeExpense}
	incomeCat := &model.Category{Name: "Salary", Type: model.CategoryTypeIncome}

	assert.NoError(t, ValidateMode(expense("lunch", "10"), expenseCat))
	assert.ErrorIs(t, ValidateMode(expense("lunch", "10"), incomeCat), common.ErrValidationFailed)

	income := &model.Transaction{Title: "pay", Mode: model.ModeIncome}
	assert.NoError(t, ValidateMode(income, incomeCat))
	assert.ErrorIs(t, ValidateMode(income, expenseCat), common.ErrValidationFailed)

	transfer := &model.Transaction{Title: "move", Mode: model.ModeTransfer}
	assert.NoError(t, ValidateMode(transfer, incomeCat))
}
