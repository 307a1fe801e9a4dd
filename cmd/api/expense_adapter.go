package api

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/FACorreiaa/expense-importer/internal/domain/expense"
	importrepo "github.com/FACorreiaa/expense-importer/internal/domain/import/repository"
	"github.com/FACorreiaa/expense-importer/pkg/money"
)

// expenseAdapter adapts expense.Repository to the import commit's
// ExpenseWriter, converting decimal amounts to minor units.
type expenseAdapter struct {
	repo     *expense.Repository
	currency string
}

// newExpenseAdapter creates a new adapter writing amounts in currency.
func newExpenseAdapter(repo *expense.Repository, currency string) importrepo.ExpenseWriter {
	return &expenseAdapter{repo: repo, currency: currency}
}

// InsertExpense implements importrepo.ExpenseWriter
func (a *expenseAdapter) InsertExpense(ctx context.Context, tx pgx.Tx, e importrepo.NewExpense) (uuid.UUID, error) {
	date, err := time.Parse(time.DateOnly, e.Date)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid expense date %q: %w", e.Date, err)
	}

	amount, err := money.NewFromFloat(e.Amount, a.currency)
	if err != nil {
		return uuid.Nil, fmt.Errorf("expense amount: %w", err)
	}
	if !amount.IsPositive() {
		return uuid.Nil, fmt.Errorf("expense amount %v rounds to zero in %s", e.Amount, a.currency)
	}

	sessionID := e.ImportSessionID
	record := &expense.Expense{
		UserID:          e.UserID,
		CategoryID:      e.CategoryID,
		AmountMinor:     amount.Amount(),
		CurrencyCode:    amount.Currency(),
		Description:     e.Description,
		Date:            date,
		ImportSessionID: &sessionID,
	}

	var q expense.Querier
	if tx != nil {
		q = tx
	}
	return a.repo.InsertExpense(ctx, q, record)
}
