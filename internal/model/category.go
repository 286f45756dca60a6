package model

import "time"

// CategoryType indicates whether a category is for income or expense transactions.
type CategoryType string

const (
	// CategoryTypeIncome represents categories for income transactions.
	CategoryTypeIncome CategoryType = "income"
	// CategoryTypeExpense represents categories for expense transactions.
	CategoryTypeExpense CategoryType = "expense"
)

// Category groups transactions and owns an ordered list of subcategories.
type Category struct {
	CreatedAt time.Time
	Name      string
	Type      CategoryType
	ID        int
}

// SubCategory belongs to exactly one category. Names are not unique within
// a category, but merges fold names that differ only by case.
type SubCategory struct {
	Name       string
	ID         int
	CategoryID int
	Position   int
}
