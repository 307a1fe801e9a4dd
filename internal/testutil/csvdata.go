// Package testutil generates realistic CSV uploads for tests and benchmarks.
package testutil

import (
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

// StandardHeaders are the headers produced by CSVGenerator.CSV.
var StandardHeaders = []string{"Date", "Amount", "Description", "Category"}

// CSVRow is one generated transaction in raw text form.
type CSVRow struct {
	Date        string
	Amount      string
	Description string
	Category    string
}

// Fields returns the row in StandardHeaders order.
func (r CSVRow) Fields() []string {
	return []string{r.Date, r.Amount, r.Description, r.Category}
}

// CSVGenerator generates transaction rows using gofakeit.
type CSVGenerator struct {
	faker *gofakeit.Faker
	start time.Time
}

// NewCSVGenerator creates a generator with a fixed seed for reproducible data.
func NewCSVGenerator(seed int64) *CSVGenerator {
	return &CSVGenerator{
		faker: gofakeit.New(seed),
		start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

var merchants = []string{
	"Amazon", "Walmart", "Target", "Costco", "Starbucks",
	"McDonald's", "Uber", "Lyft", "Netflix", "Spotify",
	"Whole Foods", "Trader Joe's", "Shell", "Chevron",
	"Home Depot", "Best Buy", "IKEA",
}

var descriptions = []string{
	"Coffee and pastry",
	"Weekly groceries",
	"Gas station fill-up",
	"Online subscription",
	"Restaurant dinner",
	"Utility bill payment",
	"Phone bill",
	"Parking fee",
	"Public transit",
	"Movie tickets",
	"Clothing purchase",
}

// Category cells as users tend to write them: exact names, aliases and noise.
var categoryCells = []string{
	"Food", "food", "Groceries", "Transport", "uber", "Entertainment",
	"netflix", "Shopping", "amazon", "Bills", "rent", "misc", "",
}

// Row returns a valid row: an ISO date in 2025, a positive amount with a
// currency symbol, and a non-blank description.
func (g *CSVGenerator) Row() CSVRow {
	date := g.start.AddDate(0, 0, g.faker.Number(0, 364))
	return CSVRow{
		Date:        date.Format("2006-01-02"),
		Amount:      fmt.Sprintf("$%.2f", g.faker.Price(1, 500)),
		Description: g.faker.RandomString(merchants) + " - " + g.faker.RandomString(descriptions),
		Category:    g.faker.RandomString(categoryCells),
	}
}

// Rows returns n valid rows.
func (g *CSVGenerator) Rows(n int) []CSVRow {
	rows := make([]CSVRow, n)
	for i := range rows {
		rows[i] = g.Row()
	}
	return rows
}

// InvalidRow returns a row that fails validation on at least one field.
func (g *CSVGenerator) InvalidRow() CSVRow {
	row := g.Row()
	switch g.faker.Number(0, 2) {
	case 0:
		row.Date = "not-a-date"
	case 1:
		row.Amount = g.faker.RandomString([]string{"abc", "0", "-12.50", ""})
	default:
		row.Description = ""
	}
	return row
}

// CSV renders n valid rows with StandardHeaders, comma separated.
func (g *CSVGenerator) CSV(n int) string {
	return Render(StandardHeaders, g.Rows(n), ',')
}

// Render writes headers and rows as delimited text with LF line endings,
// quoting fields that contain the delimiter or a quote.
func Render(headers []string, rows []CSVRow, delimiter rune) string {
	var sb strings.Builder
	writeLine(&sb, headers, delimiter)
	for _, r := range rows {
		writeLine(&sb, r.Fields(), delimiter)
	}
	return sb.String()
}

func writeLine(sb *strings.Builder, fields []string, delimiter rune) {
	for i, f := range fields {
		if i > 0 {
			sb.WriteRune(delimiter)
		}
		if strings.ContainsRune(f, delimiter) || strings.Contains(f, `"`) {
			sb.WriteByte('"')
			sb.WriteString(strings.ReplaceAll(f, `"`, `""`))
			sb.WriteByte('"')
			continue
		}
		sb.WriteString(f)
	}
	sb.WriteByte('\n')
}
