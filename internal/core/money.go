// Package core holds the domain model shared by the importer, the
// projection engine and the storage layer.
//
// Monetary amounts are always integer cents; this file converts between
// the text representation users type (or upload) and cents.
package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrAmountRequired  = errors.New("amount is required")
	ErrAmountNotNumber = errors.New("amount must be a number (e.g. 12.99)")
	ErrAmountNegative  = errors.New("amount must be >= 0")
)

// ParseMoney converts a decimal string into integer cents.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and
// rounds half-up on the third decimal place. Negative amounts are
// rejected; zero is allowed.
//
// Examples:
//
//	ParseMoney("12.34") -> 1234, nil
//	ParseMoney("12,345") -> 1235, nil (rounds up)
//	ParseMoney("-1") -> 0, ErrAmountNegative
func ParseMoney(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrAmountRequired
	}
	s = strings.ReplaceAll(s, ",", ".")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrAmountNotNumber
	}
	if d.IsNegative() {
		return 0, ErrAmountNegative
	}
	// Shift into cents, then round half away from zero; for non-negative
	// input that is exactly half-up.
	return d.Shift(2).Round(0).IntPart(), nil
}

// FormatMoney renders cents with exactly two decimal places.
// Round-trip invariant: ParseMoney(FormatMoney(c)) == c for all c >= 0.
func FormatMoney(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
