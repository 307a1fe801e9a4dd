package parser

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical date representation produced by ParseDate.
const DateLayout = "2006-01-02"

// datePattern is a strict numeric shape together with the capture positions of
// year, month and day.
type datePattern struct {
	re               *regexp.Regexp
	year, month, day int
}

// Checked in order; the first matching shape decides the interpretation.
var datePatterns = []datePattern{
	{re: regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`), year: 1, month: 2, day: 3}, // YYYY-MM-DD
	{re: regexp.MustCompile(`^(\d{2})/(\d{2})/(\d{4})$`), year: 3, month: 1, day: 2}, // MM/DD/YYYY
	{re: regexp.MustCompile(`^(\d{2})-(\d{2})-(\d{4})$`), year: 3, month: 2, day: 1}, // DD-MM-YYYY
	{re: regexp.MustCompile(`^(\d{4})/(\d{2})/(\d{2})$`), year: 1, month: 2, day: 3}, // YYYY/MM/DD
}

// Layouts tried when no strict pattern matches.
var fallbackDateLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-1-2",
	"2006/1/2",
	"1/2/2006",
	"1/2/2006 15:04",
	"Jan 2, 2006",
	"Jan 2 2006",
	"January 2, 2006",
	"January 2 2006",
	"2 Jan 2006",
	"2 January 2006",
	"Mon Jan 2 2006",
	"Mon, Jan 2, 2006",
	time.RFC1123,
	time.RFC1123Z,
	time.RFC850,
}

// ParseDate normalizes a raw date cell to YYYY-MM-DD. It returns nil for blank
// input, for an unrecognized format, and for a strict-pattern match that is not
// a real calendar date.
func ParseDate(raw string) *string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}

	for _, p := range datePatterns {
		m := p.re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		return calendarDate(m[p.year], m[p.month], m[p.day])
	}

	for _, layout := range fallbackDateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		formatted := t.UTC().Format(DateLayout)
		return &formatted
	}

	return nil
}

func calendarDate(yearStr, monthStr, dayStr string) *string {
	year, errY := strconv.Atoi(yearStr)
	month, errM := strconv.Atoi(monthStr)
	day, errD := strconv.Atoi(dayStr)
	if errY != nil || errM != nil || errD != nil {
		return nil
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return nil
	}

	formatted := t.Format(DateLayout)
	return &formatted
}

// ParseAmount strips currency symbols ($, €, £), whitespace and thousands
// separators, treats an amount wrapped in parentheses as negative and parses
// the remainder as a decimal number. Unparsable input yields nil.
func ParseAmount(raw string) *float64 {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r == '$', r == '€', r == '£', r == ',':
			return -1
		case unicode.IsSpace(r):
			return -1
		}
		return r
	}, raw)
	if cleaned == "" {
		return nil
	}

	negative := false
	if len(cleaned) >= 2 && strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		negative = true
		cleaned = cleaned[1 : len(cleaned)-1]
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return nil
	}
	if negative {
		d = d.Neg()
	}

	f := d.InexactFloat64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return nil
	}
	return &f
}
