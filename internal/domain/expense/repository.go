// Package expense stores finalized expense records.
package expense

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/FACorreiaa/expense-importer/pkg/money"
)

// Expense is a persisted spending record. Amounts are integer minor units.
type Expense struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	UserID          uuid.UUID  `json:"userId" db:"user_id"`
	CategoryID      int64      `json:"categoryId" db:"category_id"`
	AmountMinor     int64      `json:"amountMinor" db:"amount_minor"`
	CurrencyCode    string     `json:"currencyCode" db:"currency_code"`
	Description     string     `json:"description" db:"description"`
	Date            time.Time  `json:"date" db:"date"`
	ImportSessionID *uuid.UUID `json:"importSessionId,omitempty" db:"import_session_id"`
	CreatedAt       time.Time  `json:"createdAt" db:"created_at"`
}

// Amount returns the expense amount as Money.
func (e *Expense) Amount() *money.Money {
	return money.New(e.AmountMinor, e.CurrencyCode)
}

// Querier is satisfied by pgxpool.Pool and pgx.Tx, so inserts can join a
// caller's transaction.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository handles database operations for expenses
type Repository struct {
	db Querier
}

// NewRepository creates a new expense repository
func NewRepository(db Querier) *Repository {
	return &Repository{db: db}
}

const insertExpenseQuery = `
	INSERT INTO expenses (user_id, category_id, amount_minor, currency_code, description, date, import_session_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id, created_at`

// InsertExpense writes e through q, which may be a transaction, and fills in
// the generated id and creation time.
func (r *Repository) InsertExpense(ctx context.Context, q Querier, e *Expense) (uuid.UUID, error) {
	if q == nil {
		q = r.db
	}

	err := q.QueryRow(ctx, insertExpenseQuery,
		e.UserID,
		e.CategoryID,
		e.AmountMinor,
		e.CurrencyCode,
		e.Description,
		e.Date,
		e.ImportSessionID,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert expense: %w", err)
	}
	return e.ID, nil
}
