// Package notify delivers best-effort change events after ledger operations
// commit. Delivery is at-most-once and never affects ledger correctness.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// EventType identifies what changed.
type EventType string

// Event types.
const (
	AccountsChanged     EventType = "accounts_changed"
	BalanceChanged      EventType = "balance_changed"
	TransactionsChanged EventType = "transactions_changed"
)

// Event is a single change notification. AccountID and Balance are set for
// BalanceChanged events.
type Event struct {
	At        time.Time       `json:"at"`
	Balance   decimal.Decimal `json:"balance"`
	Type      EventType       `json:"type"`
	AccountID string          `json:"account_id,omitempty"`
}

// Balance returns a BalanceChanged event.
func Balance(accountID string, balance decimal.Decimal) Event {
	return Event{Type: BalanceChanged, AccountID: accountID, Balance: balance, At: time.Now()}
}

// Of returns an event of the given type with no payload.
func Of(eventType EventType) Event {
	return Event{Type: eventType, At: time.Now()}
}

// Sink receives events. Implementations must not block for long and must
// swallow their own delivery errors.
type Sink interface {
	Notify(ctx context.Context, event Event)
}

// Nop discards every event.
type Nop struct{}

// Notify implements Sink.
func (Nop) Notify(context.Context, Event) {}

// LogSink writes events to slog at debug level.
type LogSink struct{}

// Notify implements Sink.
func (LogSink) Notify(ctx context.Context, event Event) {
	attrs := []any{"type", event.Type}
	if event.AccountID != "" {
		attrs = append(attrs, "account_id", event.AccountID, "balance", event.Balance.String())
	}
	slog.DebugContext(ctx, "ledger event", attrs...)
}

// Multi fans an event out to several sinks in order.
type Multi []Sink

// Notify implements Sink.
func (m Multi) Notify(ctx context.Context, event Event) {
	for _, sink := range m {
		if sink != nil {
			sink.Notify(ctx, event)
		}
	}
}

// Recorder keeps every event it receives. It is safe for concurrent use.
type Recorder struct {
	events []Event
	mu     sync.Mutex
}

// Notify implements Sink.
func (r *Recorder) Notify(_ context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []EventType {
	events := r.Events()
	types := make([]EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}

// Reset clears the recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
