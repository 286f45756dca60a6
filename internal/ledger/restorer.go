package ledger

import (
	"context"
	"log/slog"

	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/service"
)

// Restore undoes a transaction's realized effect on its accounts. It is used
// whenever a transaction leaves the ledger, by direct deletion or by a
// category cascade. Transfer legs are undone like any other delta.
func Restore(ctx context.Context, store service.AccountStore, txn *model.Transaction) ([]model.Account, error) {
	deltas, err := Reversal(txn)
	if err != nil {
		return nil, err
	}
	if len(deltas) == 0 {
		slog.DebugContext(ctx, "transaction has no realized effect to restore",
			"transaction_id", txn.ID,
			"kind", txn.Kind,
			"status", txn.Status)
		return nil, nil
	}
	return Apply(ctx, store, deltas)
}
