package pattern

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
)

type stubCategories struct {
	byName map[string]*model.Category
	err    error
	calls  int
}

func (s *stubCategories) GetCategoryByName(_ context.Context, name string) (*model.Category, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if cat, ok := s.byName[name]; ok {
		return cat, nil
	}
	return nil, common.ErrCategoryNotFound
}

func TestCategorizer_Categorize(t *testing.T) {
	ctx := context.Background()
	matcher, err := NewMatcher([]Rule{
		{Name: "coffee", Pattern: "starbucks", Category: "Dining"},
		{Name: "pay", Pattern: "payroll", Category: "Dining"},
		{Name: "ghost", Pattern: "ghost", Category: "Missing"},
	})
	require.NoError(t, err)

	lookup := &stubCategories{byName: map[string]*model.Category{
		"Dining": {ID: 4, Name: "Dining", Type: model.CategoryTypeExpense},
	}}
	categorizer := NewCategorizer(matcher, lookup)

	txn := expense("STARBUCKS", "5")
	ok, err := categorizer.Categorize(ctx, txn)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4, txn.CategoryID)

	again := expense("Starbucks Reserve", "7")
	ok, err = categorizer.Categorize(ctx, again)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, lookup.calls, "resolved categories are cached")

	filed := expense("Starbucks", "5")
	filed.CategoryID = 9
	ok, err = categorizer.Categorize(ctx, filed)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 9, filed.CategoryID)

	income := &model.Transaction{Title: "ACME PAYROLL", Mode: model.ModeIncome}
	ok, err = categorizer.Categorize(ctx, income)
	require.NoError(t, err)
	assert.False(t, ok, "an expense category is not applied to income")
	assert.Zero(t, income.CategoryID)

	ghost := expense("ghost kitchen", "3")
	ok, err = categorizer.Categorize(ctx, ghost)
	require.NoError(t, err)
	assert.False(t, ok)

	unmatched := expense("Water", "3")
	ok, err = categorizer.Categorize(ctx, unmatched)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCategorizer_LookupError(t *testing.T) {
	matcher, err := NewMatcher([]Rule{{Name: "coffee", Pattern: "coffee", Category: "Dining"}})
	require.NoError(t, err)

	categorizer := NewCategorizer(matcher, &stubCategories{err: errors.New("database is locked")})
	_, err = categorizer.Categorize(context.Background(), expense("coffee", "3"))
	assert.Error(t, err)
}
