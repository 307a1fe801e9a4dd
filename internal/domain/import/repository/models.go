// Package repository provides data access for import sessions and import history.
package repository

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an import session.
type Status string

const (
	StatusUpload    Status = "upload"
	StatusMapping   Status = "mapping"
	StatusPreview   Status = "preview"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ColumnMapping names the CSV header used for each expense field.
// Category is optional.
type ColumnMapping struct {
	Date        string `json:"date"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
}

// Complete reports whether the required fields are mapped.
func (m ColumnMapping) Complete() bool {
	return m.Date != "" && m.Amount != "" && m.Description != ""
}

// RowError is a validation failure for one field of a parsed row.
type RowError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// RowUpdate is a partial edit of a parsed row. Nil fields are unchanged.
// Amount is kept as text and re-interpreted like an uploaded cell.
type RowUpdate struct {
	Date        *string `json:"date,omitempty"`
	Amount      *string `json:"amount,omitempty"`
	Description *string `json:"description,omitempty"`
	Category    *string `json:"category,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u RowUpdate) IsEmpty() bool {
	return u.Date == nil && u.Amount == nil && u.Description == nil && u.Category == nil
}

// Merge returns u with every field set in other taking precedence.
func (u RowUpdate) Merge(other RowUpdate) RowUpdate {
	if other.Date != nil {
		u.Date = other.Date
	}
	if other.Amount != nil {
		u.Amount = other.Amount
	}
	if other.Description != nil {
		u.Description = other.Description
	}
	if other.Category != nil {
		u.Category = other.Category
	}
	return u
}

// ParsedRow is one data line interpreted through the session's column mapping.
type ParsedRow struct {
	RowIndex     int               `json:"rowIndex"`
	OriginalData map[string]string `json:"originalData"`
	Date         *string           `json:"date"`
	Amount       *float64          `json:"amount"`
	Description  *string           `json:"description"`
	Category     *string           `json:"category"`
	CategoryID   *int64            `json:"categoryId"`
	Errors       []RowError        `json:"errors"`
	Skipped      bool              `json:"skipped"`
	// Overrides accumulates the user's edits so they can be re-applied after
	// the mapping changes.
	Overrides *RowUpdate `json:"overrides,omitempty"`
}

// IsValid reports whether the row has no validation errors.
func (r ParsedRow) IsValid() bool {
	return len(r.Errors) == 0
}

// Accepted reports whether the row will become an expense on commit.
func (r ParsedRow) Accepted() bool {
	return !r.Skipped && r.IsValid()
}

// Counts is the classification of a row list. Each row lands in exactly one bucket.
type Counts struct {
	Valid   int
	Invalid int
	Skipped int
}

// Tally classifies rows: skipped first, then invalid, else valid.
func Tally(rows []ParsedRow) Counts {
	var c Counts
	for _, r := range rows {
		switch {
		case r.Skipped:
			c.Skipped++
		case !r.IsValid():
			c.Invalid++
		default:
			c.Valid++
		}
	}
	return c
}

// Session is a user's in-progress or finished CSV import.
type Session struct {
	ID                   uuid.UUID      `json:"id" db:"id"`
	UserID               uuid.UUID      `json:"userId" db:"user_id"`
	Status               Status         `json:"status" db:"status"`
	FileName             *string        `json:"fileName" db:"file_name"`
	FileSize             *int64         `json:"fileSize" db:"file_size"`
	RawCSVData           *string        `json:"-" db:"raw_csv_data"`
	ColumnMapping        *ColumnMapping `json:"columnMapping" db:"column_mapping"`
	ParsedRows           []ParsedRow    `json:"-" db:"parsed_rows"`
	ValidRowCount        int            `json:"validRowCount" db:"valid_row_count"`
	InvalidRowCount      int            `json:"invalidRowCount" db:"invalid_row_count"`
	SkippedRowCount      int            `json:"skippedRowCount" db:"skipped_row_count"`
	ImportedExpenseCount int            `json:"importedExpenseCount" db:"imported_expense_count"`
	CreatedAt            time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt            time.Time      `json:"updatedAt" db:"updated_at"`
}

// Recount sets the row counters from ParsedRows.
func (s *Session) Recount() {
	c := Tally(s.ParsedRows)
	s.ValidRowCount = c.Valid
	s.InvalidRowCount = c.Invalid
	s.SkippedRowCount = c.Skipped
}

// FindRow returns a pointer to the row with the given index, or nil.
func (s *Session) FindRow(rowIndex int) *ParsedRow {
	for i := range s.ParsedRows {
		if s.ParsedRows[i].RowIndex == rowIndex {
			return &s.ParsedRows[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	c := *s
	if s.FileName != nil {
		v := *s.FileName
		c.FileName = &v
	}
	if s.FileSize != nil {
		v := *s.FileSize
		c.FileSize = &v
	}
	if s.RawCSVData != nil {
		v := *s.RawCSVData
		c.RawCSVData = &v
	}
	if s.ColumnMapping != nil {
		v := *s.ColumnMapping
		c.ColumnMapping = &v
	}
	if s.ParsedRows != nil {
		c.ParsedRows = make([]ParsedRow, len(s.ParsedRows))
		for i, r := range s.ParsedRows {
			c.ParsedRows[i] = r.Clone()
		}
	}
	return &c
}

// Clone returns a deep copy of the row.
func (r ParsedRow) Clone() ParsedRow {
	c := r
	if r.OriginalData != nil {
		c.OriginalData = make(map[string]string, len(r.OriginalData))
		for k, v := range r.OriginalData {
			c.OriginalData[k] = v
		}
	}
	c.Date = clonePtr(r.Date)
	c.Amount = clonePtr(r.Amount)
	c.Description = clonePtr(r.Description)
	c.Category = clonePtr(r.Category)
	c.CategoryID = clonePtr(r.CategoryID)
	if r.Errors != nil {
		c.Errors = append([]RowError(nil), r.Errors...)
	}
	if r.Overrides != nil {
		o := RowUpdate{
			Date:        clonePtr(r.Overrides.Date),
			Amount:      clonePtr(r.Overrides.Amount),
			Description: clonePtr(r.Overrides.Description),
			Category:    clonePtr(r.Overrides.Category),
		}
		c.Overrides = &o
	}
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// ImportHistory is the append-only record of a completed import.
type ImportHistory struct {
	ID           uuid.UUID `json:"id" db:"id" csv:"id"`
	UserID       uuid.UUID `json:"userId" db:"user_id" csv:"-"`
	SessionID    uuid.UUID `json:"sessionId" db:"session_id" csv:"session_id"`
	FileName     string    `json:"fileName" db:"file_name" csv:"file_name"`
	TotalRows    int       `json:"totalRows" db:"total_rows" csv:"total_rows"`
	ImportedRows int       `json:"importedRows" db:"imported_rows" csv:"imported_rows"`
	SkippedRows  int       `json:"skippedRows" db:"skipped_rows" csv:"skipped_rows"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at" csv:"created_at"`
}

// UnknownFileName is recorded in history when the session has no file name.
const UnknownFileName = "unknown.csv"

// NewExpense is an expense produced by a commit, before it is written.
type NewExpense struct {
	UserID          uuid.UUID
	CategoryID      int64
	Amount          float64
	Description     string
	Date            string // YYYY-MM-DD
	ImportSessionID uuid.UUID
}

// CommitPlan is what a commit writes inside its transaction.
type CommitPlan struct {
	Expenses []NewExpense
	History  ImportHistory
}
