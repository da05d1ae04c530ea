package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// EntryType classifies both budgets and transactions.
type EntryType string

const (
	Income  EntryType = "income"
	Expense EntryType = "expense"
)

// ParseEntryType normalizes and validates a type field.
func ParseEntryType(s string) (EntryType, error) {
	switch EntryType(strings.ToLower(strings.TrimSpace(s))) {
	case Income:
		return Income, nil
	case Expense:
		return Expense, nil
	default:
		return "", errors.New("type must be 'income' or 'expense'")
	}
}

// RepeatUnit is the frequency of a recurring budget.
type RepeatUnit string

const (
	Weekly  RepeatUnit = "weekly"
	Monthly RepeatUnit = "monthly"
	Yearly  RepeatUnit = "yearly"
)

// NoWeekday marks the weekday field of a budget that is not weekly.
// Weekdays follow the 0=Monday .. 6=Sunday convention.
const NoWeekday = -1

const DateLayout = "2006-01-02"

var (
	ErrEmptyCategory    = errors.New("category is required")
	ErrEmptyDescription = errors.New("description is required")
	ErrInvalidType      = errors.New("invalid entry type")
)

type Category struct {
	ID     int64
	UserID int64
	Name   string
}

type Subcategory struct {
	ID         int64
	UserID     int64
	CategoryID int64
	Name       string
}

// Budget is a planned amount, either fixed to one date or recurring.
type Budget struct {
	ID     int64
	UserID int64

	Type          EntryType
	CategoryID    int64
	SubcategoryID int64 // 0 = none
	AmountCents   int64
	Currency      string

	IsRecurring bool
	OneTimeDate time.Time // zero when recurring

	RepeatUnit     RepeatUnit // empty when one-time
	RepeatInterval int        // every N units, >= 1
	DayOfMonth     int        // 1..31 for monthly/yearly, 0 otherwise
	Weekday        int        // 0..6 for weekly, NoWeekday otherwise
	StartDate      time.Time  // optional recurrence window
	EndDate        time.Time

	Note string
}

// Transaction is an actual recorded movement.
type Transaction struct {
	ID     int64
	UserID int64

	Date          time.Time
	Type          EntryType
	CategoryID    int64
	SubcategoryID int64 // 0 = none
	Description   string
	AmountCents   int64
	Currency      string
	Note          string
}

// Validate enforces the structural invariants of a budget: weekly
// recurrences carry a weekday and never a day-of-month, monthly/yearly
// ones the opposite, and one-time budgets carry no recurrence fields.
func (b Budget) Validate() error {
	if b.Type != Income && b.Type != Expense {
		return ErrInvalidType
	}
	if b.CategoryID == 0 {
		return ErrEmptyCategory
	}
	if b.AmountCents < 0 {
		return ErrAmountNegative
	}

	if !b.IsRecurring {
		if b.OneTimeDate.IsZero() {
			return errors.New("one-time budget requires a date")
		}
		if b.RepeatUnit != "" || b.RepeatInterval != 0 || b.DayOfMonth != 0 ||
			b.Weekday != NoWeekday || !b.StartDate.IsZero() || !b.EndDate.IsZero() {
			return errors.New("one-time budget must not have recurrence fields")
		}
		return nil
	}

	if !b.OneTimeDate.IsZero() {
		return errors.New("recurring budget must not have one_time_date")
	}
	if b.RepeatInterval < 1 {
		return errors.New("recurring budget requires repeat_interval >= 1")
	}
	if !b.EndDate.IsZero() && !b.StartDate.IsZero() && b.EndDate.Before(b.StartDate) {
		return errors.New("end date must not be before start date")
	}

	switch b.RepeatUnit {
	case Weekly:
		if b.Weekday < 0 || b.Weekday > 6 {
			return errors.New("weekly recurring budget requires weekday (0=Mon..6=Sun)")
		}
		if b.DayOfMonth != 0 {
			return errors.New("weekly recurring budget must not have day_of_month")
		}
	case Monthly, Yearly:
		if b.DayOfMonth < 1 || b.DayOfMonth > 31 {
			return errors.New("monthly/yearly recurring budget requires day_of_month (1..31)")
		}
		if b.Weekday != NoWeekday {
			return errors.New("monthly/yearly recurring budget must not have weekday")
		}
	default:
		return fmt.Errorf("unknown repeat unit %q", b.RepeatUnit)
	}
	return nil
}

// Validate checks the structural invariants of a transaction.
func (t Transaction) Validate() error {
	if t.Type != Income && t.Type != Expense {
		return ErrInvalidType
	}
	if t.Date.IsZero() {
		return errors.New("transaction requires a date")
	}
	if t.CategoryID == 0 {
		return ErrEmptyCategory
	}
	if strings.TrimSpace(t.Description) == "" {
		return ErrEmptyDescription
	}
	if t.AmountCents < 0 {
		return ErrAmountNegative
	}
	return nil
}
