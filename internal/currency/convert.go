// Package currency converts amounts between account currencies using a rate
// table relative to a base currency.
package currency

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/service"
)

// Places is the number of decimal places converted amounts are rounded to.
const Places = 2

// Normalize upper-cases and trims a currency code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Convert computes amount * rate(to) / rate(from). Codes are compared
// case-insensitively and identical codes return amount unchanged.
func Convert(amount decimal.Decimal, from, to string, rates map[string]decimal.Decimal) (decimal.Decimal, error) {
	from, to = Normalize(from), Normalize(to)
	if from == to {
		return amount, nil
	}

	fromRate, ok := rates[from]
	if !ok || !fromRate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", common.ErrRateNotFound, from)
	}
	toRate, ok := rates[to]
	if !ok || !toRate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", common.ErrRateNotFound, to)
	}

	return amount.Mul(toRate).Div(fromRate).Round(Places), nil
}

// ConvertWith fetches rates from source and converts amount from one
// currency to another. A nil source only supports same-currency conversion.
func ConvertWith(ctx context.Context, source service.RateSource, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if Normalize(from) == Normalize(to) {
		return amount, nil
	}
	if source == nil {
		return decimal.Zero, fmt.Errorf("%w: no rate source configured for %s to %s", common.ErrRateNotFound, from, to)
	}
	rates, err := source.Rates(ctx, Normalize(from))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load rates: %w", err)
	}
	return Convert(amount, from, to, rates)
}
