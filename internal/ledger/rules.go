// Package ledger keeps account balances consistent with the transactions that
// reference them. Every balance change is derived from one rule table, Effect;
// reversal is its negation.
package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/service"
)

// Delta is a signed change to one account balance.
type Delta struct {
	Amount    decimal.Decimal
	AccountID string
}

// Effect returns the realized deltas a transaction currently contributes to
// account balances. A transaction that is not realized (an unpaid upcoming
// bill, a collected loan) contributes nothing.
//
//	kind                     expense   income   transfer
//	default                  -a        +a       -a source, +converted destination
//	upcoming/recurring       -a paid   +a paid  rejected
//	lent (outstanding)       -a        -a       rejected
//	borrowed (outstanding)   +a        +a       rejected
//
// Collecting a loan or settling a debt cancels its opening delta, so a
// resolved lent or borrowed transaction nets to zero.
func Effect(txn *model.Transaction) ([]Delta, error) {
	if txn == nil {
		return nil, common.Validationf("transaction is nil")
	}
	if txn.IsTransfer() && txn.Kind != model.KindDefault {
		return nil, common.Validationf("transfers must use the default kind, got %q", txn.Kind)
	}

	switch txn.Kind {
	case model.KindDefault:
		return modeEffect(txn)
	case model.KindUpcoming, model.KindSubscription, model.KindRepetitive:
		if !txn.IsPaid() {
			return nil, nil
		}
		return modeEffect(txn)
	case model.KindLent:
		if txn.IsCollected() {
			return nil, nil
		}
		return []Delta{{AccountID: txn.AccountID, Amount: txn.Amount.Neg()}}, nil
	case model.KindBorrowed:
		if txn.IsSettled() {
			return nil, nil
		}
		return []Delta{{AccountID: txn.AccountID, Amount: txn.Amount}}, nil
	default:
		return nil, common.Validationf("unknown kind %q", txn.Kind)
	}
}

func modeEffect(txn *model.Transaction) ([]Delta, error) {
	switch txn.Mode {
	case model.ModeExpense:
		return []Delta{{AccountID: txn.AccountID, Amount: txn.Amount.Neg()}}, nil
	case model.ModeIncome:
		return []Delta{{AccountID: txn.AccountID, Amount: txn.Amount}}, nil
	case model.ModeTransfer:
		return []Delta{
			{AccountID: txn.AccountID, Amount: txn.Amount.Neg()},
			{AccountID: txn.DestinationAccountID, Amount: txn.CreditedAmount()},
		}, nil
	default:
		return nil, common.Validationf("unknown mode %q", txn.Mode)
	}
}

// Reversal returns the deltas that undo a transaction's current effect.
func Reversal(txn *model.Transaction) ([]Delta, error) {
	deltas, err := Effect(txn)
	if err != nil {
		return nil, err
	}
	for i := range deltas {
		deltas[i].Amount = deltas[i].Amount.Neg()
	}
	return deltas, nil
}

// Apply writes each delta through AdjustBalance and returns the updated
// accounts in order. Zero deltas are skipped.
func Apply(ctx context.Context, store service.AccountStore, deltas []Delta) ([]model.Account, error) {
	updated := make([]model.Account, 0, len(deltas))
	for _, d := range deltas {
		if d.Amount.IsZero() {
			continue
		}
		account, err := store.AdjustBalance(ctx, d.AccountID, d.Amount.Abs(), d.Amount.IsNegative())
		if err != nil {
			return nil, fmt.Errorf("failed to adjust balance of %s by %s: %w", d.AccountID, d.Amount, err)
		}
		updated = append(updated, *account)
	}
	return updated, nil
}

// Net folds several groups of deltas into one delta per account, in order of
// first appearance, dropping accounts whose changes cancel out.
func Net(groups ...[]Delta) []Delta {
	index := make(map[string]int)
	var net []Delta
	for _, group := range groups {
		for _, d := range group {
			i, ok := index[d.AccountID]
			if !ok {
				index[d.AccountID] = len(net)
				net = append(net, Delta{AccountID: d.AccountID})
				i = len(net) - 1
			}
			net[i].Amount = net[i].Amount.Add(d.Amount)
		}
	}

	out := net[:0]
	for _, d := range net {
		if !d.Amount.IsZero() {
			out = append(out, d)
		}
	}
	return out
}
