package service

import (
	"errors"

	"github.com/FACorreiaa/expense-importer/internal/domain/import/parser"
	"github.com/FACorreiaa/expense-importer/internal/domain/import/repository"
)

var (
	ErrSessionNotFound  = errors.New("import session not found")
	ErrNoActiveSession  = errors.New("no active import session")
	ErrRowNotFound      = errors.New("row not found")
	ErrNoCSVData        = errors.New("no CSV data in session")
	ErrNoParsedRows     = errors.New("no parsed rows in session")
	ErrSessionNotActive = errors.New("session is not in a state that allows this operation")
	ErrNoValidRows      = errors.New("no valid rows to import")
	ErrInvalidMapping   = errors.New("column mapping must name date, amount and description columns")
	ErrFileTooLarge     = errors.New("file exceeds maximum upload size")
	ErrEmptyFileName    = errors.New("file name is required")

	// ErrMalformedInput is returned when the uploaded text has no data row.
	ErrMalformedInput = parser.ErrMalformedInput
)

// isRejection reports whether err is a refusal of the caller's request rather
// than a failure of the service.
func isRejection(err error) bool {
	for _, target := range []error{
		repository.ErrNotFound,
		ErrSessionNotFound,
		ErrRowNotFound,
		ErrNoCSVData,
		ErrNoParsedRows,
		ErrSessionNotActive,
		ErrNoValidRows,
		ErrInvalidMapping,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
