package importer

import (
	"bilancio/internal/core"
)

// Kind selects which CSV schema an upload is parsed against.
type Kind string

const (
	KindBudget      Kind = "budget"
	KindTransaction Kind = "transaction"
)

// scheduleNames maps the accepted spellings of the schedule column.
// An empty schedule defaults to one-time.
var scheduleNames = map[string]bool{
	"":         false,
	"one-time": false,
	"one_time": false,
	"onetime":  false,
	"one time": false,
	"recurring": true,
	"repeat":    true,
}

// repeatUnitNames normalizes repeat_unit spellings.
var repeatUnitNames = map[string]core.RepeatUnit{
	"week":    core.Weekly,
	"weekly":  core.Weekly,
	"month":   core.Monthly,
	"monthly": core.Monthly,
	"year":    core.Yearly,
	"yearly":  core.Yearly,
}

// weekdayNames maps common weekday names and abbreviations to the
// 0=Monday .. 6=Sunday convention.
var weekdayNames = map[string]int{
	"mon": 0, "monday": 0,
	"tue": 1, "tues": 1, "tuesday": 1,
	"wed": 2, "wednesday": 2,
	"thu": 3, "thur": 3, "thurs": 3, "thursday": 3,
	"fri": 4, "friday": 4,
	"sat": 5, "saturday": 5,
	"sun": 6, "sunday": 6,
}

// schema describes one CSV variant: the columns the header must carry
// and the coercer that turns a normalized field map into a Row.
type schema struct {
	required []string
	parseRow func(fields map[string]string) (Row, error)
}

var schemas = map[Kind]schema{
	KindBudget: {
		required: []string{"type", "category", "amount", "currency"},
		parseRow: parseBudgetRow,
	},
	KindTransaction: {
		required: []string{"date", "type", "category", "description", "amount", "currency"},
		parseRow: parseTransactionRow,
	},
}
