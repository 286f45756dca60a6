package recurrence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/service"
)

// MaxInstances bounds a single regeneration pass.
const MaxInstances = 1000

// Regeneration summarizes a RegenerateFuture pass.
type Regeneration struct {
	Deleted int64
	Created int
	Capped  bool
}

// Scheduler generates recurrence instances. It holds no state; every call
// works against the store it is given, normally an open store transaction.
type Scheduler struct {
	limit int
}

// NewScheduler creates a scheduler with the default instance cap.
func NewScheduler() *Scheduler {
	return &Scheduler{limit: MaxInstances}
}

// GenerateNextIfNeeded inserts the occurrence following a paid instance,
// unless the sequence is exhausted or that occurrence already exists.
// It returns the inserted instance, or nil when nothing was generated.
func (s *Scheduler) GenerateNextIfNeeded(ctx context.Context, store service.TransactionStore, paid *model.Transaction) (*model.Transaction, error) {
	rule := paid.Recurrence
	if !rule.Active() {
		return nil, nil
	}
	if rule.EndDate != nil && !model.DateOf(paid.Date).Before(model.DateOf(*rule.EndDate)) {
		return nil, nil
	}

	next, ok := NextDueDate(paid.Date, rule)
	if !ok {
		slog.DebugContext(ctx, "recurrence exhausted", "transaction_id", paid.ID)
		return nil, nil
	}

	created, err := s.insertIfMissing(ctx, store, paid, next)
	if err != nil {
		return nil, err
	}
	if created == nil {
		slog.DebugContext(ctx, "next occurrence already exists",
			"transaction_id", paid.ID,
			"date", model.FormatDate(next))
	}
	return created, nil
}

// RegenerateFuture drops the unpaid instances of original's series dated
// after original, then generates a fresh sequence from replacement's date and
// recurrence. The edited transaction itself is never dropped, even when its
// new date falls inside the old tail; the sequence continues from that new
// date rather than the old one. Generation stops when the sequence ends or
// after MaxInstances new instances; hitting the cap is logged as a warning and
// reported in the result.
func (s *Scheduler) RegenerateFuture(ctx context.Context, store service.TransactionStore, original, replacement *model.Transaction) (Regeneration, error) {
	var result Regeneration
	if replacement == nil {
		replacement = original
	}

	deleted, err := store.DeleteUnpaidRecurrencesAfter(ctx, service.KeyOf(*original), original.Date, replacement.ID)
	if err != nil {
		return result, fmt.Errorf("failed to clear future instances: %w", err)
	}
	result.Deleted = deleted

	rule := replacement.Recurrence
	if !rule.Active() {
		return result, nil
	}

	date := replacement.Date
	for result.Created < s.limit {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		next, ok := NextDueDate(date, rule)
		if !ok {
			return result, nil
		}

		created, err := s.insertIfMissing(ctx, store, replacement, next)
		if err != nil {
			return result, err
		}
		if created != nil {
			result.Created++
		}
		date = next
	}

	if _, more := NextDueDate(date, rule); more {
		result.Capped = true
		slog.WarnContext(ctx, "recurrence regeneration stopped at instance cap",
			"transaction_id", replacement.ID,
			"cap", s.limit,
			"last_date", model.FormatDate(date))
	}
	return result, nil
}

func (s *Scheduler) insertIfMissing(ctx context.Context, store service.TransactionStore, template *model.Transaction, date time.Time) (*model.Transaction, error) {
	_, err := store.FindRecurrenceInstance(ctx, service.KeyOf(*template), date)
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up existing instance: %w", err)
	}

	instance := NewInstance(template, date)
	if err := store.InsertTransaction(ctx, &instance); err != nil {
		return nil, fmt.Errorf("failed to insert instance for %s: %w", model.FormatDate(date), err)
	}
	return &instance, nil
}

// NewInstance copies the static fields of template into an unpaid occurrence
// dated date, with its own next due date.
func NewInstance(template *model.Transaction, date time.Time) model.Transaction {
	instance := template.Clone()
	instance.ID = uuid.NewString()
	instance.Date = model.DateOf(date)
	instance.ExternalID = ""
	instance.CreatedAt = time.Time{}
	instance.Status, _ = instance.Kind.Statuses()
	instance.NextDueDate = nil
	if following, ok := NextDueDate(date, instance.Recurrence); ok {
		instance.NextDueDate = &following
	}
	return instance
}
