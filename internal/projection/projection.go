// Package projection computes the planned monetary contribution of a
// budget definition within a calendar-month window. It is pure: no
// store access, no clock access.
//
// Each recurrence unit has its own contributor, registered in a
// strategy table keyed by the unit.
package projection

import (
	"time"

	"bilancio/internal/core"
)

// Contributor computes the cents a recurring budget contributes within
// one inclusive month window. The recurrence start/end window has
// already been checked by PlannedContribution.
type Contributor interface {
	Contribute(b core.Budget, monthStart, monthEnd time.Time) int64
}

type monthlyContributor struct{}

// Contribute returns the full amount when the whole-month distance from
// start_date to the queried month is a non-negative multiple of the
// interval. Without a start_date every month counts.
func (monthlyContributor) Contribute(b core.Budget, monthStart, _ time.Time) int64 {
	if !b.StartDate.IsZero() {
		diff := monthsBetween(b.StartDate, monthStart)
		if diff < 0 || diff%interval(b) != 0 {
			return 0
		}
	}
	return b.AmountCents
}

type yearlyContributor struct{}

// Contribute returns the full amount when the queried month matches the
// start_date's month and the year offset is a non-negative multiple of
// the interval. Without a start_date every year counts in every month's
// anniversary check, so the amount is always contributed.
func (yearlyContributor) Contribute(b core.Budget, monthStart, _ time.Time) int64 {
	if b.StartDate.IsZero() {
		return b.AmountCents
	}
	if b.StartDate.Month() != monthStart.Month() {
		return 0
	}
	yearDiff := monthStart.Year() - b.StartDate.Year()
	if yearDiff < 0 || yearDiff%interval(b) != 0 {
		return 0
	}
	return b.AmountCents
}

type weeklyContributor struct{}

// Contribute counts the occurrences of the configured weekday inside
// the window, divides by the interval rounding up, and multiplies by
// the per-occurrence amount. A bi-weekly budget therefore contributes
// for roughly half the weekday occurrences in the month.
func (weeklyContributor) Contribute(b core.Budget, monthStart, monthEnd time.Time) int64 {
	if b.Weekday < 0 || b.Weekday > 6 {
		return 0
	}
	target := goWeekday(b.Weekday)

	cur := monthStart
	for cur.Weekday() != target && !cur.After(monthEnd) {
		cur = cur.AddDate(0, 0, 1)
	}
	occurrences := 0
	for !cur.After(monthEnd) {
		occurrences++
		cur = cur.AddDate(0, 0, 7)
	}

	if n := interval(b); n > 1 {
		occurrences = (occurrences + n - 1) / n
	}
	return b.AmountCents * int64(occurrences)
}

// contributors is the strategy registry. Units absent from it
// contribute zero: fail-safe, not an error.
var contributors = map[core.RepeatUnit]Contributor{
	core.Monthly: monthlyContributor{},
	core.Yearly:  yearlyContributor{},
	core.Weekly:  weeklyContributor{},
}

// PlannedContribution returns the cents a single budget definition
// contributes within the inclusive window [monthStart, monthEnd],
// which corresponds to one calendar month.
func PlannedContribution(b core.Budget, monthStart, monthEnd time.Time) int64 {
	if !b.IsRecurring {
		d := b.OneTimeDate
		if !d.IsZero() && !d.Before(monthStart) && !d.After(monthEnd) {
			return b.AmountCents
		}
		return 0
	}

	// Zero when the month falls entirely outside the recurrence window.
	if !b.StartDate.IsZero() && monthEnd.Before(b.StartDate) {
		return 0
	}
	if !b.EndDate.IsZero() && monthStart.After(b.EndDate) {
		return 0
	}

	c, ok := contributors[b.RepeatUnit]
	if !ok {
		return 0
	}
	return c.Contribute(b, monthStart, monthEnd)
}

// MonthWindow returns the inclusive first and last day of a month.
func MonthWindow(year, month int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	return start, end
}

// monthsBetween counts whole months from a to b.
func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

func interval(b core.Budget) int {
	if b.RepeatInterval < 1 {
		return 1
	}
	return b.RepeatInterval
}

// goWeekday converts the domain's 0=Monday convention to time.Weekday.
func goWeekday(weekday int) time.Weekday {
	return time.Weekday((weekday + 1) % 7)
}
