// Package model defines the core domain models used throughout the ledger.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/spice-ledger/internal/common"
)

// Account holds a running balance in a single currency.
// Balance is only ever changed through the store's AdjustBalance primitive.
type Account struct {
	CreatedAt     time.Time
	Balance       decimal.Decimal
	ID            string
	Name          string
	CurrencyCode  string
	IsMainAccount bool
}

// Validate checks the fields required to persist an account.
func (a *Account) Validate() error {
	if a == nil {
		return common.Validationf("account is nil")
	}
	if strings.TrimSpace(a.Name) == "" {
		return common.Validationf("account name is empty")
	}
	if strings.TrimSpace(a.CurrencyCode) == "" {
		return common.Validationf("account %q has no currency code", a.Name)
	}
	return nil
}
