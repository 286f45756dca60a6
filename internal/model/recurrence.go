package model

import (
	"fmt"
	"time"

	"github.com/Veraticus/spice-ledger/internal/common"
)

// Frequency is the calendar unit a recurrence advances by.
type Frequency string

// Frequency values.
const (
	FrequencyNone    Frequency = "none"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyNone, FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	}
	return false
}

// Recurrence describes how a Subscription or Repetitive transaction spawns
// its next occurrence.
type Recurrence struct {
	EndDate   *time.Time
	Frequency Frequency
	Interval  int
}

// Active reports whether the recurrence produces further occurrences.
func (r *Recurrence) Active() bool {
	return r != nil && r.Frequency != "" && r.Frequency != FrequencyNone
}

// Equal reports whether two recurrences describe the same schedule.
func (r *Recurrence) Equal(o *Recurrence) bool {
	if !r.Active() || !o.Active() {
		return r.Active() == o.Active()
	}
	if r.Frequency != o.Frequency || r.Interval != o.Interval {
		return false
	}
	switch {
	case r.EndDate == nil && o.EndDate == nil:
		return true
	case r.EndDate == nil || o.EndDate == nil:
		return false
	default:
		return DateOf(*r.EndDate).Equal(DateOf(*o.EndDate))
	}
}

// ValidateRule checks that the recurrence is complete: a known frequency, a
// positive interval and an end date.
func (r *Recurrence) ValidateRule() error {
	if !r.Active() {
		return fmt.Errorf("%w: frequency is required", common.ErrInvalidRecurrence)
	}
	if !r.Frequency.Valid() {
		return fmt.Errorf("%w: unknown frequency %q", common.ErrInvalidRecurrence, r.Frequency)
	}
	if r.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %d", common.ErrInvalidRecurrence, r.Interval)
	}
	if r.EndDate == nil {
		return fmt.Errorf("%w: end date is required", common.ErrInvalidRecurrence)
	}
	return nil
}

// Validate checks the recurrence for a new sequence starting at start. The
// end date must fall after the first occurrence.
func (r *Recurrence) Validate(start time.Time) error {
	if err := r.ValidateRule(); err != nil {
		return err
	}
	if !DateOf(*r.EndDate).After(DateOf(start)) {
		return fmt.Errorf("%w: end date %s must be after start date %s",
			common.ErrInvalidRecurrence, FormatDate(*r.EndDate), FormatDate(start))
	}
	return nil
}

// DateLayout is the storage and display layout for calendar dates.
const DateLayout = "2006-01-02"

// DateOf truncates t to its calendar date at UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}
