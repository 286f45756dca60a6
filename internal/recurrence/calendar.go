// Package recurrence rolls Subscription and Repetitive transactions forward
// in time.
package recurrence

import (
	"fmt"
	"time"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
)

// Advance moves date forward by interval units of frequency. Monthly and
// yearly steps clamp to the last day of the target month, so Jan 31 plus one
// month is Feb 28 (or 29).
func Advance(date time.Time, frequency model.Frequency, interval int) (time.Time, error) {
	if interval <= 0 {
		return time.Time{}, fmt.Errorf("%w: interval must be positive, got %d", common.ErrInvalidRecurrence, interval)
	}

	d := model.DateOf(date)
	switch frequency {
	case model.FrequencyDaily:
		return d.AddDate(0, 0, interval), nil
	case model.FrequencyWeekly:
		return d.AddDate(0, 0, 7*interval), nil
	case model.FrequencyMonthly:
		return addMonths(d, interval), nil
	case model.FrequencyYearly:
		return addMonths(d, 12*interval), nil
	default:
		return time.Time{}, fmt.Errorf("%w: cannot advance by frequency %q", common.ErrInvalidRecurrence, frequency)
	}
}

func addMonths(d time.Time, months int) time.Time {
	year, month, day := d.Date()
	first := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	if last := first.AddDate(0, 1, -1).Day(); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// NextDueDate returns the occurrence after date, or false when the rule is
// inactive or the next occurrence would fall after the end date.
func NextDueDate(date time.Time, rule *model.Recurrence) (time.Time, bool) {
	if !rule.Active() {
		return time.Time{}, false
	}

	next, err := Advance(date, rule.Frequency, rule.Interval)
	if err != nil {
		return time.Time{}, false
	}
	if rule.EndDate != nil && next.After(model.DateOf(*rule.EndDate)) {
		return time.Time{}, false
	}
	return next, true
}
