// Package migration moves transactions between categories, subcategories
// and accounts. Each operation runs in one store transaction; the items of a
// bulk operation run in their own savepoints so one failing item is rolled
// back and reported while the rest commit.
package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/notify"
	"github.com/Veraticus/spice-ledger/internal/service"
)

// Result counts the items of a bulk operation.
type Result struct {
	Total     int
	Succeeded int
	Failed    int
}

// Complete reports whether every item succeeded.
func (r Result) Complete() bool {
	return r.Failed == 0
}

// ProgressFunc is called after each item with the number processed so far.
type ProgressFunc func(done, total int)

// Service runs category, subcategory and account migrations.
type Service struct {
	store    service.Storage
	sink     notify.Sink
	progress ProgressFunc
}

// Option configures a Service.
type Option func(*Service)

// WithProgress reports per-item progress of bulk operations.
func WithProgress(fn ProgressFunc) Option {
	return func(s *Service) {
		s.progress = fn
	}
}

// WithSink sets where change events go after an operation commits.
func WithSink(sink notify.Sink) Option {
	return func(s *Service) {
		s.sink = sink
	}
}

// New creates a migration service.
func New(store service.Storage, opts ...Option) *Service {
	s := &Service{
		store: store,
		sink:  notify.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) withTx(ctx context.Context, fn func(tx service.Transaction) error) error {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// runItems runs item(i) for i in [0, n), each under its own savepoint.
// Failures are logged and counted; only cancellation stops the loop.
func (s *Service) runItems(ctx context.Context, tx service.Transaction, operation string, n int, item func(i int) error) (Result, error) {
	result := Result{Total: n}
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		name := fmt.Sprintf("%s_%d", operation, i)
		if err := runItem(ctx, tx, name, func() error { return item(i) }); err != nil {
			result.Failed++
			slog.ErrorContext(ctx, "migration item failed",
				"operation", operation,
				"item", i,
				"error", err)
		} else {
			result.Succeeded++
		}

		if s.progress != nil {
			s.progress(i+1, n)
		}
	}
	return result, nil
}

func runItem(ctx context.Context, tx service.Transaction, savepoint string, fn func() error) error {
	if err := tx.Savepoint(ctx, savepoint); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if rbErr := tx.RollbackTo(ctx, savepoint); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return tx.Release(ctx, savepoint)
}

func (s *Service) publish(ctx context.Context, accounts []model.Account, types ...notify.EventType) {
	for _, t := range types {
		s.sink.Notify(ctx, notify.Of(t))
	}
	seen := make(map[string]int, len(accounts))
	var order []model.Account
	for _, account := range accounts {
		if i, ok := seen[account.ID]; ok {
			order[i] = account
			continue
		}
		seen[account.ID] = len(order)
		order = append(order, account)
	}
	for _, account := range order {
		s.sink.Notify(ctx, notify.Balance(account.ID, account.Balance))
	}
}
