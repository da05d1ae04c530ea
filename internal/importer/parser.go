package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"bilancio/internal/core"
)

// Row is a normalized, validated record produced from one CSV line.
// It is immutable after parsing and consumed once by the merge applier.
type Row struct {
	Kind Kind

	Type        core.EntryType
	Category    string
	Subcategory string // "" = none
	AmountCents int64
	Currency    string

	// Budget fields.
	IsRecurring    bool
	OneTimeDate    time.Time
	RepeatUnit     core.RepeatUnit
	RepeatInterval int
	Weekday        int // 0..6, core.NoWeekday when unset
	DayOfMonth     int
	StartDate      time.Time
	EndDate        time.Time

	// Transaction fields.
	Date        time.Time
	Description string

	Note string
}

// InvalidRow reports one rejected CSV line. Line numbers are 1-based
// with the header counting as line 1; a structural failure of the whole
// upload is reported as a synthetic line 0.
type InvalidRow struct {
	Line int               `json:"line"`
	Err  string            `json:"error"`
	Raw  map[string]string `json:"raw"`
}

// Parse runs the ingestion pipeline over raw upload bytes and returns
// the valid rows alongside the per-line failures. A bad row never
// aborts the batch; a missing or incomplete header fails the whole
// upload with a single synthetic entry at line 0.
func Parse(data []byte, kind Kind) ([]Row, []InvalidRow) {
	sc, ok := schemas[kind]
	if !ok {
		return nil, []InvalidRow{{Line: 0, Err: fmt.Sprintf("unknown import kind %q", kind), Raw: map[string]string{}}}
	}

	text := decodeText(data)

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = sniffDelimiter(text)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil || len(header) == 0 {
		return nil, []InvalidRow{{Line: 0, Err: "csv has no header row", Raw: map[string]string{}}}
	}

	columns := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		columns[i] = name
		seen[name] = true
	}

	var missing []string
	for _, col := range sc.required {
		if !seen[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, []InvalidRow{{
			Line: 0,
			Err:  "missing required columns: " + strings.Join(missing, ", "),
			Raw:  map[string]string{},
		}}
	}

	var valid []Row
	var invalid []InvalidRow

	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			invalid = append(invalid, InvalidRow{Line: line, Err: err.Error(), Raw: map[string]string{}})
			continue
		}

		fields := make(map[string]string, len(columns))
		for i, col := range columns {
			if col == "" || i >= len(record) {
				continue
			}
			value := strings.TrimSpace(record[i])
			// A repeated header name joins its values instead of
			// silently dropping one.
			if prev, ok := fields[col]; ok && prev != "" {
				if value != "" {
					fields[col] = prev + "," + value
				}
				continue
			}
			fields[col] = value
		}

		row, err := sc.parseRow(fields)
		if err != nil {
			invalid = append(invalid, InvalidRow{Line: line, Err: err.Error(), Raw: fields})
			continue
		}
		valid = append(valid, row)
	}

	return valid, invalid
}

// parseDate parses an optional ISO date field. Empty input is fine;
// anything else must be YYYY-MM-DD.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(core.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD)", s)
	}
	return d, nil
}

// recoverShiftedNote is the tolerance policy for budget rows missing a
// trailing comma: the note value can land in the end_date column (or in
// start_date when the row is short by two fields). When note is empty,
// a non-date value found there is re-homed as the note and the date
// field is cleared. end_date is checked first; start_date is only
// consulted when end_date is empty.
func recoverShiftedNote(fields map[string]string) string {
	if note := fields["note"]; note != "" {
		return note
	}
	for _, col := range []string{"end_date", "start_date"} {
		candidate := fields[col]
		if candidate == "" {
			continue
		}
		if _, err := time.Parse(core.DateLayout, candidate); err == nil {
			// A real date stays where it is.
			return ""
		}
		fields[col] = ""
		return candidate
	}
	return ""
}

func parseBudgetRow(fields map[string]string) (Row, error) {
	entryType, err := core.ParseEntryType(fields["type"])
	if err != nil {
		return Row{}, err
	}

	category := fields["category"]
	if category == "" {
		return Row{}, core.ErrEmptyCategory
	}

	amountCents, err := core.ParseMoney(fields["amount"])
	if err != nil {
		return Row{}, err
	}

	currency := strings.ToUpper(fields["currency"])
	if currency == "" {
		currency = "EUR"
	}

	recurring, ok := scheduleNames[strings.ToLower(fields["schedule"])]
	if !ok {
		return Row{}, errors.New("schedule must be 'one-time' or 'recurring' (or empty)")
	}

	note := recoverShiftedNote(fields)

	row := Row{
		Kind:        KindBudget,
		Type:        entryType,
		Category:    category,
		Subcategory: fields["subcategory"],
		AmountCents: amountCents,
		Currency:    currency,
		Weekday:     core.NoWeekday,
		Note:        note,
	}

	if !recurring {
		date, err := parseDate(fields["date"])
		if err != nil {
			return Row{}, err
		}
		if date.IsZero() {
			return Row{}, errors.New("date is required for one-time items (YYYY-MM-DD)")
		}
		row.OneTimeDate = date
		return row, nil
	}

	row.IsRecurring = true

	repeatEvery := fields["repeat_every"]
	if repeatEvery == "" {
		return Row{}, errors.New("repeat_every is required for recurring items")
	}
	interval, err := strconv.Atoi(repeatEvery)
	if err != nil || interval < 1 {
		return Row{}, errors.New("repeat_every must be a positive number (e.g. 1)")
	}
	row.RepeatInterval = interval

	unit, ok := repeatUnitNames[strings.ToLower(fields["repeat_unit"])]
	if !ok {
		return Row{}, errors.New("repeat_unit must be 'week', 'month' or 'year' for recurring items")
	}
	row.RepeatUnit = unit

	if unit == core.Weekly {
		raw := strings.ToLower(fields["on_weekday"])
		if raw == "" {
			return Row{}, errors.New("on_weekday is required for weekly recurring items (e.g. Mon)")
		}
		weekday, ok := weekdayNames[raw]
		if !ok {
			return Row{}, errors.New("on_weekday must be one of Mon/Tue/Wed/Thu/Fri/Sat/Sun")
		}
		row.Weekday = weekday
	} else {
		raw := fields["on_day"]
		if raw == "" {
			return Row{}, errors.New("on_day is required for monthly/yearly recurring items (1..31)")
		}
		day, err := strconv.Atoi(raw)
		if err != nil || day < 1 || day > 31 {
			return Row{}, errors.New("on_day must be a number (1..31)")
		}
		row.DayOfMonth = day
	}

	if row.StartDate, err = parseDate(fields["start_date"]); err != nil {
		return Row{}, err
	}
	if row.EndDate, err = parseDate(fields["end_date"]); err != nil {
		return Row{}, err
	}

	return row, nil
}

func parseTransactionRow(fields map[string]string) (Row, error) {
	date, err := parseDate(fields["date"])
	if err != nil {
		return Row{}, err
	}
	if date.IsZero() {
		return Row{}, errors.New("date is required (YYYY-MM-DD)")
	}

	entryType, err := core.ParseEntryType(fields["type"])
	if err != nil {
		return Row{}, err
	}

	category := fields["category"]
	if category == "" {
		return Row{}, core.ErrEmptyCategory
	}

	description := fields["description"]
	if description == "" {
		return Row{}, core.ErrEmptyDescription
	}

	amountCents, err := core.ParseMoney(fields["amount"])
	if err != nil {
		return Row{}, err
	}

	currency := strings.ToUpper(fields["currency"])
	if currency == "" {
		currency = "EUR"
	}

	return Row{
		Kind:        KindTransaction,
		Type:        entryType,
		Category:    category,
		Subcategory: fields["subcategory"],
		AmountCents: amountCents,
		Currency:    currency,
		Date:        date,
		Description: description,
		Note:        fields["note"],
	}, nil
}
