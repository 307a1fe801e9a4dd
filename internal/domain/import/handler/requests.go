package handler

import (
	"encoding/json"
	"errors"

	"github.com/FACorreiaa/expense-importer/internal/domain/import/repository"
)

type uploadRequest struct {
	FileName   string `json:"fileName" validate:"notblank"`
	CSVContent string `json:"csvContent" validate:"required"`
}

func (r uploadRequest) validate() []string {
	return validateStruct(r)
}

type columnMappingInput struct {
	Date        string `json:"date" validate:"notblank"`
	Amount      string `json:"amount" validate:"notblank"`
	Description string `json:"description" validate:"notblank"`
	Category    string `json:"category"`
}

type mappingRequest struct {
	ColumnMapping     *columnMappingInput `json:"columnMapping" validate:"required"`
	PreserveDecisions bool                `json:"preserveDecisions"`
}

func (r mappingRequest) validate() []string {
	return validateStruct(r)
}

func (r mappingRequest) mapping() repository.ColumnMapping {
	return repository.ColumnMapping{
		Date:        r.ColumnMapping.Date,
		Amount:      r.ColumnMapping.Amount,
		Description: r.ColumnMapping.Description,
		Category:    r.ColumnMapping.Category,
	}
}

// amountInput accepts a JSON number or string; either way the text is
// interpreted like an uploaded amount cell.
type amountInput string

func (a *amountInput) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = amountInput(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("amount must be a number or string")
	}
	*a = amountInput(n.String())
	return nil
}

type rowUpdates struct {
	Date        *string      `json:"date"`
	Amount      *amountInput `json:"amount"`
	Description *string      `json:"description"`
	Category    *string      `json:"category"`
}

func (u rowUpdates) toRowUpdate() repository.RowUpdate {
	update := repository.RowUpdate{
		Date:        u.Date,
		Description: u.Description,
		Category:    u.Category,
	}
	if u.Amount != nil {
		s := string(*u.Amount)
		update.Amount = &s
	}
	return update
}

type updateRowRequest struct {
	RowIndex *int       `json:"rowIndex" validate:"required,gte=0"`
	Updates  rowUpdates `json:"updates"`
}

func (r updateRowRequest) validate() []string {
	details := validateStruct(r)
	if r.Updates.toRowUpdate().IsEmpty() {
		details = append(details, "updates must change at least one field")
	}
	return details
}

type skipRowRequest struct {
	RowIndex *int  `json:"rowIndex" validate:"required,gte=0"`
	Skip     *bool `json:"skip" validate:"required"`
}

func (r skipRowRequest) validate() []string {
	return validateStruct(r)
}

type sessionResponse struct {
	Session    *repository.Session    `json:"session"`
	ParsedRows []repository.ParsedRow `json:"parsedRows,omitempty"`
}

type rowResponse struct {
	Row     *repository.ParsedRow `json:"row"`
	Session *repository.Session   `json:"session,omitempty"`
}

// uploadBodyLimit leaves room for JSON escaping of the CSV text, which can
// double its size; the service enforces the exact limit.
func uploadBodyLimit(maxUploadBytes int) int64 {
	return int64(maxUploadBytes)*2 + 4096
}
