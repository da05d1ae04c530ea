package importer

import (
	"strconv"
	"strings"
	"time"

	"bilancio/internal/core"
)

// Signature identifies "the same planned/actual entry" across uploads.
// It is derived from the economically meaningful fields of a record and
// deliberately excludes free-text notes and storage ids.
type Signature string

const sigSep = "\x1f"

func sigJoin(parts ...string) Signature {
	return Signature(strings.Join(parts, sigSep))
}

func sigDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(core.DateLayout)
}

func budgetSignature(
	entryType core.EntryType,
	category, subcategory string,
	amountCents int64,
	currency string,
	isRecurring bool,
	oneTimeDate time.Time,
	unit core.RepeatUnit,
	interval, weekday, dayOfMonth int,
	startDate, endDate time.Time,
) Signature {
	return sigJoin(
		string(entryType),
		strings.ToLower(strings.TrimSpace(category)),
		strings.ToLower(strings.TrimSpace(subcategory)),
		strconv.FormatInt(amountCents, 10),
		strings.ToUpper(currency),
		strconv.FormatBool(isRecurring),
		sigDate(oneTimeDate),
		string(unit),
		strconv.Itoa(interval),
		strconv.Itoa(weekday),
		strconv.Itoa(dayOfMonth),
		sigDate(startDate),
		sigDate(endDate),
	)
}

func transactionSignature(
	entryType core.EntryType,
	category, subcategory string,
	amountCents int64,
	currency string,
	date time.Time,
	description string,
) Signature {
	return sigJoin(
		string(entryType),
		strings.ToLower(strings.TrimSpace(category)),
		strings.ToLower(strings.TrimSpace(subcategory)),
		strconv.FormatInt(amountCents, 10),
		strings.ToUpper(currency),
		sigDate(date),
		strings.ToLower(strings.TrimSpace(description)),
	)
}

// Signature derives the duplicate-detection key for a parsed row.
func (r Row) Signature() Signature {
	if r.Kind == KindTransaction {
		return transactionSignature(r.Type, r.Category, r.Subcategory,
			r.AmountCents, r.Currency, r.Date, r.Description)
	}
	return budgetSignature(r.Type, r.Category, r.Subcategory,
		r.AmountCents, r.Currency, r.IsRecurring, r.OneTimeDate,
		r.RepeatUnit, r.RepeatInterval, r.Weekday, r.DayOfMonth,
		r.StartDate, r.EndDate)
}

// BudgetSignature derives the key for an already persisted budget.
// Category and subcategory are passed by name since the stored record
// only carries their ids.
func BudgetSignature(b core.Budget, category, subcategory string) Signature {
	return budgetSignature(b.Type, category, subcategory,
		b.AmountCents, b.Currency, b.IsRecurring, b.OneTimeDate,
		b.RepeatUnit, b.RepeatInterval, b.Weekday, b.DayOfMonth,
		b.StartDate, b.EndDate)
}

// TransactionSignature derives the key for a persisted transaction.
func TransactionSignature(t core.Transaction, category, subcategory string) Signature {
	return transactionSignature(t.Type, category, subcategory,
		t.AmountCents, t.Currency, t.Date, t.Description)
}

// SignatureIndex maps a signature to the ids of the existing records
// that carry it.
type SignatureIndex map[Signature][]int64

func (idx SignatureIndex) Add(sig Signature, id int64) {
	idx[sig] = append(idx[sig], id)
}

// MarkDuplicates returns the indices of rows whose signature already
// exists in the index.
func MarkDuplicates(rows []Row, idx SignatureIndex) []int {
	var duplicates []int
	for i, row := range rows {
		if _, ok := idx[row.Signature()]; ok {
			duplicates = append(duplicates, i)
		}
	}
	return duplicates
}
