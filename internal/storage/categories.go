package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
)

func scanCategory(row interface{ Scan(...any) error }) (*model.Category, error) {
	var cat model.Category
	var categoryType string
	var createdAt sql.NullTime
	if err := row.Scan(&cat.ID, &cat.Name, &categoryType, &createdAt); err != nil {
		return nil, err
	}
	cat.Type = model.CategoryType(categoryType)
	if createdAt.Valid {
		cat.CreatedAt = createdAt.Time
	}
	return &cat, nil
}

// GetCategories returns all categories ordered by name.
func (s queries) GetCategories(ctx context.Context) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT id, name, type, created_at
		FROM categories
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []model.Category
	for rows.Next() {
		cat, scanErr := scanCategory(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan category: %w", scanErr)
		}
		categories = append(categories, *cat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	slog.Debug("retrieved categories", "count", len(categories))
	return categories, nil
}

// GetCategoryByID returns a category by ID.
func (s queries) GetCategoryByID(ctx context.Context, id int) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(id, "id"); err != nil {
		return nil, err
	}

	cat, err := scanCategory(s.q.QueryRowContext(ctx, `
		SELECT id, name, type, created_at FROM categories WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", common.ErrCategoryNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query category: %w", err)
	}
	return cat, nil
}

// GetCategoryByName returns a category by its exact name.
func (s queries) GetCategoryByName(ctx context.Context, name string) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	cat, err := scanCategory(s.q.QueryRowContext(ctx, `
		SELECT id, name, type, created_at FROM categories WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", common.ErrCategoryNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query category: %w", err)
	}
	return cat, nil
}

// CreateCategory creates a new category.
func (s queries) CreateCategory(ctx context.Context, name string, categoryType model.CategoryType) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}
	if categoryType == "" {
		categoryType = model.CategoryTypeExpense
	}
	if categoryType != model.CategoryTypeExpense && categoryType != model.CategoryTypeIncome {
		return nil, common.Validationf("unknown category type %q", categoryType)
	}

	result, err := s.q.ExecContext(ctx,
		`INSERT INTO categories (name, type) VALUES (?, ?)`, name, string(categoryType))
	if err != nil {
		return nil, fmt.Errorf("failed to create category: %w", classifyError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get category ID: %w", err)
	}

	slog.Info("created category", "name", name, "id", id)
	return s.GetCategoryByID(ctx, int(id))
}

// UpdateCategory renames a category.
func (s queries) UpdateCategory(ctx context.Context, id int, name string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(id, "id"); err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if err := validateString(name, "name"); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx, `UPDATE categories SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return fmt.Errorf("failed to update category: %w", classifyError(err))
	}
	return requireAffected(result, common.ErrCategoryNotFound, id)
}

// DeleteCategory removes a category. The caller must have moved or removed
// its subcategories and transactions first.
func (s queries) DeleteCategory(ctx context.Context, id int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(id, "id"); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", classifyError(err))
	}
	return requireAffected(result, common.ErrCategoryNotFound, id)
}

// GetSubCategory returns a subcategory by ID.
func (s queries) GetSubCategory(ctx context.Context, id int) (*model.SubCategory, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(id, "id"); err != nil {
		return nil, err
	}

	var sub model.SubCategory
	err := s.q.QueryRowContext(ctx, `
		SELECT id, category_id, name, position FROM subcategories WHERE id = ?`, id).
		Scan(&sub.ID, &sub.CategoryID, &sub.Name, &sub.Position)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", common.ErrSubCategoryNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query subcategory: %w", err)
	}
	return &sub, nil
}

// GetSubCategoriesByCategory returns a category's subcategories in position order.
func (s queries) GetSubCategoriesByCategory(ctx context.Context, categoryID int) ([]model.SubCategory, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(categoryID, "categoryID"); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT id, category_id, name, position
		FROM subcategories
		WHERE category_id = ?
		ORDER BY position, id`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query subcategories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var subs []model.SubCategory
	for rows.Next() {
		var sub model.SubCategory
		if err := rows.Scan(&sub.ID, &sub.CategoryID, &sub.Name, &sub.Position); err != nil {
			return nil, fmt.Errorf("failed to scan subcategory: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// InsertSubCategory creates a subcategory and assigns its ID.
func (s queries) InsertSubCategory(ctx context.Context, sub *model.SubCategory) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if sub == nil {
		return fmt.Errorf("%w: subcategory", ErrNilParameter)
	}
	if err := validateID(sub.CategoryID, "categoryID"); err != nil {
		return err
	}
	sub.Name = strings.TrimSpace(sub.Name)
	if err := validateString(sub.Name, "name"); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx, `
		INSERT INTO subcategories (category_id, name, position) VALUES (?, ?, ?)`,
		sub.CategoryID, sub.Name, sub.Position)
	if err != nil {
		return fmt.Errorf("failed to insert subcategory: %w", classifyError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get subcategory ID: %w", err)
	}
	sub.ID = int(id)
	return nil
}

// DeleteSubCategory removes a subcategory row.
func (s queries) DeleteSubCategory(ctx context.Context, id int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(id, "id"); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx, `DELETE FROM subcategories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete subcategory: %w", classifyError(err))
	}
	return requireAffected(result, common.ErrSubCategoryNotFound, id)
}
