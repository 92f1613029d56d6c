package core

// convert.go provides the cell-level format checks used by the validator and
// the conversions used when persisting validated rows.
//
// Format checks are strict: they answer "is this cell already in the target
// format", never "could it be repaired". Repair belongs to correction scripts.
//
// All ToPg* functions return pgtype values with Valid=false for empty/invalid
// input, so unparsable cells are stored as NULL.

import (
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

var (
	isoDateRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	brDateRegex  = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)
)

// dateLayouts are tried in order when converting a cell for persistence.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006/01/02",
	"1/2/2006", "01/02/2006",
	"Jan 2, 2006", "2 Jan 2006",
	"20060102",
}

// naTokens are cell values read as missing, compared case-insensitively
// after trimming. The set follows the usual spreadsheet and dataframe
// exports (#N/A, NULL, NaN and friends).
var naTokens = map[string]bool{
	"#N/A":     true,
	"#N/A N/A": true,
	"#NA":      true,
	"-1.#IND":  true,
	"-1.#QNAN": true,
	"-NAN":     true,
	"1.#IND":   true,
	"1.#QNAN":  true,
	"<NA>":     true,
	"N/A":      true,
	"NA":       true,
	"NAN":      true,
	"NONE":     true,
	"NULL":     true,
}

// IsMissing reports whether a cell holds no value: blank, or one of the NA tokens.
func IsMissing(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || naTokens[strings.ToUpper(s)]
}

// IsISODate reports whether s is exactly YYYY-MM-DD.
func IsISODate(s string) bool {
	return isoDateRegex.MatchString(strings.TrimSpace(s))
}

// IsBRDate reports whether s is exactly DD/MM/YYYY.
func IsBRDate(s string) bool {
	return brDateRegex.MatchString(strings.TrimSpace(s))
}

// ParseDecimal parses a plain decimal or scientific-notation number.
// Thousands separators, currency symbols and comma decimals are rejected.
func ParseDecimal(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// IsInteger reports whether s parses as a whole number.
func IsInteger(s string) bool {
	d, ok := ParseDecimal(s)
	return ok && d.IsInteger()
}

// ParseDate parses a cell with the persistence layouts.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ToPgText converts a string to pgtype.Text.
// Returns invalid if the string is empty or only whitespace.
func ToPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// ToPgDate converts a string to pgtype.Date.
func ToPgDate(s string) pgtype.Date {
	t, ok := ParseDate(s)
	if !ok {
		return pgtype.Date{Valid: false}
	}
	return pgtype.Date{Time: t, Valid: true}
}

// ToPgNumeric converts a string to pgtype.Numeric using the strict decimal parser.
func ToPgNumeric(s string) pgtype.Numeric {
	d, ok := ParseDecimal(s)
	if !ok {
		return pgtype.Numeric{Valid: false}
	}
	var n pgtype.Numeric
	if err := n.Scan(d.String()); err != nil {
		return pgtype.Numeric{Valid: false}
	}
	return n
}

// CleanCell removes common CSV artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.Trim(s, `"'`)
}
