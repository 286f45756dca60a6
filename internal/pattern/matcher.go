package pattern

import (
	"context"
	"log/slog"
	"sort"

	"github.com/Veraticus/spice-ledger/internal/model"
)

// Matcher picks the rule that applies to a transaction.
type Matcher struct {
	rules []compiledRule
}

// NewMatcher compiles rules. Higher priorities are tried first; equal
// priorities keep their configured order.
func NewMatcher(rules []Rule) (*Matcher, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		c, err := compile(rule)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, c)
	}

	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].Priority > compiled[j].Priority
	})
	return &Matcher{rules: compiled}, nil
}

// Match returns the first rule matching txn.
func (m *Matcher) Match(ctx context.Context, txn *model.Transaction) (Rule, bool) {
	for i := range m.rules {
		if m.rules[i].matches(txn) {
			slog.DebugContext(ctx, "pattern rule matched",
				"rule", m.rules[i].Name,
				"title", txn.Title,
				"category", m.rules[i].Category)
			return m.rules[i].Rule, true
		}
	}
	return Rule{}, false
}

// Len returns the number of rules.
func (m *Matcher) Len() int {
	return len(m.rules)
}
