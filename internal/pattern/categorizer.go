package pattern

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
)

// CategoryLookup resolves category names.
type CategoryLookup interface {
	GetCategoryByName(ctx context.Context, name string) (*model.Category, error)
}

// Categorizer assigns categories to uncategorized transactions.
type Categorizer struct {
	matcher    *Matcher
	categories CategoryLookup
	cache      map[string]*model.Category
	mu         sync.Mutex
}

// NewCategorizer creates a categorizer resolving rule categories through lookup.
func NewCategorizer(matcher *Matcher, lookup CategoryLookup) *Categorizer {
	return &Categorizer{
		matcher:    matcher,
		categories: lookup,
		cache:      make(map[string]*model.Category),
	}
}

// Categorize sets txn's category from the first matching rule. It leaves
// already categorized transactions alone and reports whether it assigned
// one. A rule naming a missing category, or one of the wrong type, is
// skipped with a warning.
func (c *Categorizer) Categorize(ctx context.Context, txn *model.Transaction) (bool, error) {
	if txn.CategoryID != 0 {
		return false, nil
	}

	rule, ok := c.matcher.Match(ctx, txn)
	if !ok {
		return false, nil
	}

	category, err := c.category(ctx, rule.Category)
	if errors.Is(err, common.ErrNotFound) {
		slog.WarnContext(ctx, "pattern rule names an unknown category",
			"rule", rule.Name,
			"category", rule.Category)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := ValidateMode(txn, category); err != nil {
		slog.WarnContext(ctx, "pattern rule skipped", "rule", rule.Name, "error", err)
		return false, nil
	}

	txn.CategoryID = category.ID
	txn.SubCategoryID = nil
	return true, nil
}

func (c *Categorizer) category(ctx context.Context, name string) (*model.Category, error) {
	key := strings.ToLower(strings.TrimSpace(name))

	c.mu.Lock()
	defer c.mu.Unlock()
	if cat, ok := c.cache[key]; ok {
		return cat, nil
	}

	cat, err := c.categories.GetCategoryByName(ctx, strings.TrimSpace(name))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve category %q: %w", name, err)
	}
	c.cache[key] = cat
	return cat, nil
}
