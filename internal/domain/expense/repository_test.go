package expense

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_InsertExpense(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRepository(mock)

	userID := uuid.New()
	sessionID := uuid.New()
	expenseID := uuid.New()
	now := time.Now()
	date := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	e := &Expense{
		UserID:          userID,
		CategoryID:      6,
		AmountMinor:     4250,
		CurrencyCode:    "USD",
		Description:     "Coffee",
		Date:            date,
		ImportSessionID: &sessionID,
	}

	mock.ExpectQuery(`INSERT INTO expenses`).
		WithArgs(userID, int64(6), int64(4250), "USD", "Coffee", date, &sessionID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(expenseID, now))

	id, err := repo.InsertExpense(context.Background(), nil, e)

	require.NoError(t, err)
	assert.Equal(t, expenseID, id)
	assert.Equal(t, expenseID, e.ID)
	assert.Equal(t, now, e.CreatedAt)
	assert.Equal(t, "$42.50", e.Amount().Display())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_InsertExpenseInTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRepository(mock)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO expenses`).
		WillReturnError(errors.New("foreign key violation"))
	mock.ExpectRollback()

	ctx := context.Background()
	tx, err := mock.Begin(ctx)
	require.NoError(t, err)

	_, err = repo.InsertExpense(ctx, tx, &Expense{UserID: uuid.New(), CurrencyCode: "USD"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert expense")

	require.NoError(t, tx.Rollback(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}
