// Package pattern files imported transactions into categories using
// title rules from configuration.
package pattern

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
)

// Rule files transactions whose title matches Pattern under Category.
// Amount bounds are inclusive decimal strings; empty means unbounded.
type Rule struct {
	Name      string `mapstructure:"name"`
	Pattern   string `mapstructure:"pattern"`
	Category  string `mapstructure:"category"`
	Mode      string `mapstructure:"mode"`
	MinAmount string `mapstructure:"min_amount"`
	MaxAmount string `mapstructure:"max_amount"`
	Priority  int    `mapstructure:"priority"`
	IsRegex   bool   `mapstructure:"regex"`
}

type compiledRule struct {
	regex *regexp.Regexp
	min   *decimal.Decimal
	max   *decimal.Decimal
	Rule
}

func compile(rule Rule) (compiledRule, error) {
	c := compiledRule{Rule: rule}
	if strings.TrimSpace(rule.Pattern) == "" {
		return c, common.Validationf("rule %q has no pattern", rule.Name)
	}
	if strings.TrimSpace(rule.Category) == "" {
		return c, common.Validationf("rule %q has no category", rule.Name)
	}
	if rule.Mode != "" && !model.Mode(rule.Mode).Valid() {
		return c, common.Validationf("rule %q has unknown mode %q", rule.Name, rule.Mode)
	}

	if rule.IsRegex {
		re, err := regexp.Compile("(?i)" + rule.Pattern)
		if err != nil {
			return c, fmt.Errorf("%w: rule %q: %w", common.ErrInvalidConfig, rule.Name, err)
		}
		c.regex = re
	}

	var err error
	if c.min, err = parseBound(rule.Name, rule.MinAmount); err != nil {
		return c, err
	}
	if c.max, err = parseBound(rule.Name, rule.MaxAmount); err != nil {
		return c, err
	}
	if c.min != nil && c.max != nil && c.min.GreaterThan(*c.max) {
		return c, common.Validationf("rule %q: min_amount exceeds max_amount", rule.Name)
	}
	return c, nil
}

func parseBound(name, s string) (*decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, common.Validationf("rule %q: invalid amount %q", name, s)
	}
	return &d, nil
}

// matches reports whether txn satisfies the title, mode and amount conditions.
func (c *compiledRule) matches(txn *model.Transaction) bool {
	if c.Mode != "" && txn.Mode != model.Mode(c.Mode) {
		return false
	}
	if c.min != nil && txn.Amount.LessThan(*c.min) {
		return false
	}
	if c.max != nil && txn.Amount.GreaterThan(*c.max) {
		return false
	}

	if c.regex != nil {
		return c.regex.MatchString(txn.Title)
	}
	// Plain patterns match as a case-insensitive substring.
	return strings.Contains(strings.ToLower(txn.Title), strings.ToLower(c.Pattern))
}
