/*
Package recurrence expands recurring charges into dated occurrences.

PURPOSE:
  Turns a ledger.Rule ("rent, monthly, 12 occurrences") into concrete
  upcoming charges and keeps that expansion idempotent across repeated and
  concurrent invocations: rule creation, the periodic sweep, and manual
  re-materialization.

PIPELINE:
  Advance (cursor.go)      one cadence step on the calendar
  Generate (sequence.go)   bounded sequence of dates from a start
  NewRule (rule.go)        validated rule from a creation request
  Materializer             diff against persisted occurrences, insert, advance watermark
  Scheduler                periodic sweep over every eligible rule

CALENDAR:
  All arithmetic is on ledger.Date (UTC calendar days). Monthly steps keep
  the day-of-month and clamp to the last day of shorter months:
    Jan 31 + 1 month = Feb 28 (Feb 29 in leap years), never Mar 3.
  Because each step starts from the previous result, a clamped day stays
  clamped: Jan 31, Feb 28, Mar 28, ...

SEE ALSO:
  - ledger/types.go: Rule, Occurrence, Cadence
  - ledger/store.go: RuleStore, OccurrenceStore
*/
package recurrence

import (
	"fmt"
	"time"

	"github.com/warp/finance-ledger/ledger"
)

// Advance returns the date one cadence step (times interval) after date.
func Advance(date ledger.Date, cadence ledger.Cadence, interval int) (ledger.Date, error) {
	if interval < 1 {
		return ledger.Date{}, &ledger.ValidationError{
			Field:   "interval",
			Message: fmt.Sprintf("must be a positive integer, got %d", interval),
			Err:     ledger.ErrInvalidInterval,
		}
	}

	switch cadence {
	case ledger.CadenceWeekly:
		return date.AddDays(7 * interval), nil
	case ledger.CadenceBiWeekly:
		return date.AddDays(14 * interval), nil
	case ledger.CadenceMonthly:
		return addMonthsClamped(date, interval), nil
	case ledger.CadenceYearly:
		// Standard calendar normalization: Feb 29 + 1 year lands on Mar 1.
		return ledger.NewDate(date.Year()+interval, date.Month(), date.Day()), nil
	default:
		return ledger.Date{}, &ledger.ValidationError{
			Field:   "cadence",
			Message: fmt.Sprintf("unknown cadence %q", cadence),
			Err:     ledger.ErrInvalidCadence,
		}
	}
}

func addMonthsClamped(date ledger.Date, months int) ledger.Date {
	// First of the target month never overflows.
	first := ledger.NewDate(date.Year(), date.Month()+time.Month(months), 1)
	day := date.Day()
	if last := ledger.DaysInMonth(first.Year(), first.Month()); day > last {
		day = last
	}
	return ledger.NewDate(first.Year(), first.Month(), day)
}
