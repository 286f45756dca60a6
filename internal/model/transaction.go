package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/spice-ledger/internal/common"
)

// Mode is the direction of money for a transaction.
type Mode string

// Transaction modes.
const (
	ModeExpense  Mode = "expense"
	ModeIncome   Mode = "income"
	ModeTransfer Mode = "transfer"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeExpense, ModeIncome, ModeTransfer:
		return true
	}
	return false
}

// Kind determines when a transaction affects its account balance.
type Kind string

// Transaction kinds.
const (
	KindDefault      Kind = "default"
	KindUpcoming     Kind = "upcoming"
	KindSubscription Kind = "subscription"
	KindRepetitive   Kind = "repetitive"
	KindLent         Kind = "lent"
	KindBorrowed     Kind = "borrowed"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindDefault, KindUpcoming, KindSubscription, KindRepetitive, KindLent, KindBorrowed:
		return true
	}
	return false
}

// IsRecurring reports whether the kind carries a recurrence rule.
func (k Kind) IsRecurring() bool {
	return k == KindSubscription || k == KindRepetitive
}

// Status is the per-kind lifecycle state that replaces separate
// paid/collected/settled flags. Each kind accepts only its own pair.
type Status string

// Statuses.
const (
	StatusNone        Status = "none"
	StatusUnpaid      Status = "unpaid"
	StatusPaid        Status = "paid"
	StatusOutstanding Status = "outstanding"
	StatusCollected   Status = "collected"
	StatusSettled     Status = "settled"
)

// Statuses returns the open and resolved status for the kind.
// Default transactions have a single status.
func (k Kind) Statuses() (open, resolved Status) {
	switch k {
	case KindUpcoming, KindSubscription, KindRepetitive:
		return StatusUnpaid, StatusPaid
	case KindLent:
		return StatusOutstanding, StatusCollected
	case KindBorrowed:
		return StatusOutstanding, StatusSettled
	default:
		return StatusNone, StatusNone
	}
}

// AllowsStatus reports whether s is a legal status for the kind.
func (k Kind) AllowsStatus(s Status) bool {
	open, resolved := k.Statuses()
	return s == open || s == resolved
}

// Resolved reports whether s is the kind's resolved state (paid, collected or settled).
func (k Kind) Resolved(s Status) bool {
	if k == KindDefault {
		return false
	}
	_, resolved := k.Statuses()
	return s == resolved
}

// Transaction is a single ledger entry.
type Transaction struct {
	Date                 time.Time
	CreatedAt            time.Time
	NextDueDate          *time.Time
	Recurrence           *Recurrence
	SubCategoryID        *int
	Amount               decimal.Decimal
	DestinationAmount    decimal.Decimal // Converted amount credited to the destination of a transfer
	ID                   string
	Title                string
	Time                 string // Optional HH:MM
	AccountID            string
	DestinationAccountID string
	OriginalCurrencyCode string
	ExternalID           string // Source identifier for imported transactions (e.g. OFX FITID)
	Mode                 Mode
	Kind                 Kind
	Status               Status
	CategoryID           int
}

// IsPaid reports whether an Upcoming, Subscription or Repetitive transaction is paid.
func (t *Transaction) IsPaid() bool { return t.Status == StatusPaid }

// IsCollected reports whether a Lent transaction has been collected.
func (t *Transaction) IsCollected() bool { return t.Kind == KindLent && t.Status == StatusCollected }

// IsSettled reports whether a Borrowed transaction has been settled.
func (t *Transaction) IsSettled() bool { return t.Kind == KindBorrowed && t.Status == StatusSettled }

// IsTransfer reports whether the transaction moves money between two accounts.
func (t *Transaction) IsTransfer() bool { return t.Mode == ModeTransfer }

// CreditedAmount is the amount credited to the destination of a transfer.
func (t *Transaction) CreditedAmount() decimal.Decimal {
	if t.DestinationAmount.IsPositive() {
		return t.DestinationAmount
	}
	return t.Amount
}

// Clone returns a deep copy of the transaction.
func (t *Transaction) Clone() Transaction {
	c := *t
	if t.NextDueDate != nil {
		d := *t.NextDueDate
		c.NextDueDate = &d
	}
	if t.SubCategoryID != nil {
		id := *t.SubCategoryID
		c.SubCategoryID = &id
	}
	if t.Recurrence != nil {
		r := *t.Recurrence
		if r.EndDate != nil {
			end := *r.EndDate
			r.EndDate = &end
		}
		c.Recurrence = &r
	}
	return c
}

// Validate enforces the structural invariants of a transaction.
func (t *Transaction) Validate() error {
	if t == nil {
		return common.Validationf("transaction is nil")
	}
	if !t.Mode.Valid() {
		return common.Validationf("unknown mode %q", t.Mode)
	}
	if !t.Kind.Valid() {
		return common.Validationf("unknown kind %q", t.Kind)
	}
	if !t.Amount.IsPositive() {
		return common.Validationf("amount must be positive, got %s", t.Amount)
	}
	if t.DestinationAmount.IsNegative() {
		return common.Validationf("destination amount cannot be negative")
	}
	if t.Date.IsZero() {
		return common.Validationf("missing date")
	}
	if t.Time != "" {
		if _, err := time.Parse("15:04", t.Time); err != nil {
			return common.Validationf("invalid time %q", t.Time)
		}
	}
	if strings.TrimSpace(t.AccountID) == "" {
		return common.Validationf("missing account ID")
	}

	if t.Mode == ModeTransfer {
		if t.DestinationAccountID == "" {
			return common.Validationf("transfer requires a destination account")
		}
		if t.DestinationAccountID == t.AccountID {
			return common.Validationf("transfer destination equals source account %s", t.AccountID)
		}
		if t.Kind != KindDefault {
			return common.Validationf("transfers must use the default kind, got %q", t.Kind)
		}
	} else if t.DestinationAccountID != "" {
		return common.Validationf("destination account is only valid for transfers")
	}

	if !t.Kind.AllowsStatus(t.Status) {
		return common.Validationf("status %q is not valid for kind %q", t.Status, t.Kind)
	}

	if t.Kind.IsRecurring() {
		if err := t.Recurrence.ValidateRule(); err != nil {
			return err
		}
	} else if t.Recurrence.Active() {
		return common.Validationf("recurrence is only valid for subscription and repetitive kinds")
	}

	return nil
}
