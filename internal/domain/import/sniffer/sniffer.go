// Package sniffer inspects an uploaded CSV text and reports its structure:
// delimiter, header row, sample rows and a suggested column mapping.
package sniffer

import (
	"strings"

	"github.com/FACorreiaa/expense-importer/internal/domain/import/parser"
	"github.com/FACorreiaa/expense-importer/internal/domain/import/repository"
)

// MaxSampleRows is the number of data rows returned for preview.
const MaxSampleRows = 5

// Header keywords per expense field. A header matches when it contains any
// keyword after case folding.
var (
	dateKeywords        = []string{"date", "time", "when", "day"}
	amountKeywords      = []string{"amount", "price", "cost", "total", "value", "sum"}
	descriptionKeywords = []string{"description", "desc", "note", "notes", "memo", "item", "name", "details"}
	categoryKeywords    = []string{"category", "type", "group", "class"}
)

// Structure describes an uploaded CSV text.
type Structure struct {
	Headers          []string                 `json:"headers"`
	Delimiter        string                   `json:"delimiter"`
	RowCount         int                      `json:"rowCount"`
	SampleRows       [][]string               `json:"sampleRows"`
	SuggestedMapping repository.ColumnMapping `json:"suggestedMapping"`
}

// Table is a tokenized CSV text split into header and data rows.
type Table struct {
	Delimiter rune
	Headers   []string
	Rows      [][]string
}

// Tokenize detects the delimiter and tokenizes text. It fails with
// parser.ErrMalformedInput when there is no data row.
func Tokenize(text string) (*Table, error) {
	delimiter := parser.DetectDelimiter(text)
	rows, err := parser.ParseCSV(text, delimiter)
	if err != nil {
		return nil, err
	}
	return &Table{
		Delimiter: delimiter,
		Headers:   rows[0],
		Rows:      rows[1:],
	}, nil
}

// Analyze tokenizes text and returns its structure.
func Analyze(text string) (*Structure, error) {
	table, err := Tokenize(text)
	if err != nil {
		return nil, err
	}

	samples := table.Rows
	if len(samples) > MaxSampleRows {
		samples = samples[:MaxSampleRows]
	}

	return &Structure{
		Headers:          table.Headers,
		Delimiter:        string(table.Delimiter),
		RowCount:         len(table.Rows),
		SampleRows:       samples,
		SuggestedMapping: SuggestMapping(table.Headers),
	}, nil
}

// SuggestMapping picks, for each field, the first header containing one of the
// field's keywords. Fields without a match are left empty.
func SuggestMapping(headers []string) repository.ColumnMapping {
	lower := make([]string, len(headers))
	for i, h := range headers {
		lower[i] = strings.ToLower(strings.TrimSpace(h))
	}

	find := func(keywords []string) string {
		for i, h := range lower {
			for _, k := range keywords {
				if strings.Contains(h, k) {
					return headers[i]
				}
			}
		}
		return ""
	}

	return repository.ColumnMapping{
		Date:        find(dateKeywords),
		Amount:      find(amountKeywords),
		Description: find(descriptionKeywords),
		Category:    find(categoryKeywords),
	}
}
