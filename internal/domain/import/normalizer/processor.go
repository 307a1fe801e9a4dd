// Package normalizer turns tokenized CSV rows into validated parsed rows using
// a column mapping, and re-validates rows after user edits.
package normalizer

import (
	"strings"

	"github.com/FACorreiaa/expense-importer/internal/domain/categorization"
	"github.com/FACorreiaa/expense-importer/internal/domain/import/parser"
	"github.com/FACorreiaa/expense-importer/internal/domain/import/repository"
	"github.com/FACorreiaa/expense-importer/pkg/money"
)

// Validation messages, one per failing field.
const (
	MsgDateRequired        = "Date is required and must be in a valid format"
	MsgAmountRequired      = "Amount is required and must be a number"
	MsgAmountNotPositive   = "Amount must be greater than zero"
	MsgAmountTooSmall      = "Amount is smaller than the currency's smallest unit"
	MsgAmountTooLarge      = "Amount is too large"
	MsgDescriptionRequired = "Description is required"
)

// Processor interprets raw cells through a column mapping. A nil matcher
// leaves categories unresolved.
type Processor struct {
	matcher  *categorization.Matcher
	currency string
}

// NewProcessor creates a row processor using matcher for category cells.
// Amounts are checked against USD minor units until WithCurrency is called.
func NewProcessor(matcher *categorization.Matcher) *Processor {
	return &Processor{matcher: matcher, currency: money.USD}
}

// WithCurrency sets the currency whose minor units amounts must fit.
func (p *Processor) WithCurrency(code string) *Processor {
	if code != "" {
		p.currency = code
	}
	return p
}

// ProcessRows interprets every data row. Row indexes are 0-based positions in
// dataRows.
func (p *Processor) ProcessRows(headers []string, dataRows [][]string, mapping repository.ColumnMapping) []repository.ParsedRow {
	index := headerIndex(headers)

	out := make([]repository.ParsedRow, len(dataRows))
	for i, cells := range dataRows {
		out[i] = p.processRow(i, headers, index, cells, mapping)
	}
	return out
}

// ProcessRow interprets a single data row.
func (p *Processor) ProcessRow(rowIndex int, headers, cells []string, mapping repository.ColumnMapping) repository.ParsedRow {
	return p.processRow(rowIndex, headers, headerIndex(headers), cells, mapping)
}

func (p *Processor) processRow(rowIndex int, headers []string, index map[string]int, cells []string, mapping repository.ColumnMapping) repository.ParsedRow {
	original := make(map[string]string, len(headers))
	for i, h := range headers {
		original[h] = cellAt(cells, i)
	}

	lookup := func(header string) string {
		if header == "" {
			return ""
		}
		i, ok := index[header]
		if !ok {
			return ""
		}
		return cellAt(cells, i)
	}

	row := repository.ParsedRow{
		RowIndex:     rowIndex,
		OriginalData: original,
		Date:         parser.ParseDate(lookup(mapping.Date)),
		Amount:       parser.ParseAmount(lookup(mapping.Amount)),
		Description:  trimmedOrNil(lookup(mapping.Description)),
	}
	p.setCategory(&row, lookup(mapping.Category))
	row.Errors = p.Validate(row)

	return row
}

// ApplyUpdate re-resolves the edited fields through the interpreters,
// recomputes the row's errors and records the edit in row.Overrides.
func (p *Processor) ApplyUpdate(row *repository.ParsedRow, update repository.RowUpdate) {
	if update.Date != nil {
		row.Date = parser.ParseDate(*update.Date)
	}
	if update.Amount != nil {
		row.Amount = parser.ParseAmount(*update.Amount)
	}
	if update.Description != nil {
		row.Description = trimmedOrNil(*update.Description)
	}
	if update.Category != nil {
		p.setCategory(row, *update.Category)
	}

	if !update.IsEmpty() {
		merged := update
		if row.Overrides != nil {
			merged = row.Overrides.Merge(update)
		}
		row.Overrides = &merged
	}

	row.Errors = p.Validate(*row)
}

func (p *Processor) setCategory(row *repository.ParsedRow, text string) {
	row.Category = nil
	row.CategoryID = nil
	if p.matcher == nil {
		return
	}
	if c := p.matcher.Match(text); c != nil {
		name, id := c.Name, c.ID
		row.Category = &name
		row.CategoryID = &id
	}
}

// Validate returns one error per failing field; an empty result means the
// row is valid. A valid amount is positive and rounds to between one and
// math.MaxInt64 minor units of the processor's currency.
func (p *Processor) Validate(row repository.ParsedRow) []repository.RowError {
	errs := []repository.RowError{}

	if row.Date == nil || *row.Date == "" {
		errs = append(errs, repository.RowError{Field: "date", Message: MsgDateRequired})
	}

	if row.Amount == nil {
		errs = append(errs, repository.RowError{Field: "amount", Message: MsgAmountRequired})
	} else if msg := p.checkAmount(*row.Amount); msg != "" {
		errs = append(errs, repository.RowError{Field: "amount", Message: msg})
	}

	if row.Description == nil || strings.TrimSpace(*row.Description) == "" {
		errs = append(errs, repository.RowError{Field: "description", Message: MsgDescriptionRequired})
	}

	return errs
}

func (p *Processor) checkAmount(amount float64) string {
	if amount <= 0 {
		return MsgAmountNotPositive
	}
	m, err := money.NewFromFloat(amount, p.currency)
	if err != nil {
		return MsgAmountTooLarge
	}
	if !m.IsPositive() {
		return MsgAmountTooSmall
	}
	return ""
}

func trimmedOrNil(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// headerIndex maps header text to column position; with duplicate headers
// the last occurrence wins.
func headerIndex(headers []string) map[string]int {
	index := make(map[string]int, len(headers))
	for i, h := range headers {
		index[h] = i
	}
	return index
}

func cellAt(cells []string, i int) string {
	if i < 0 || i >= len(cells) {
		return ""
	}
	return cells[i]
}
