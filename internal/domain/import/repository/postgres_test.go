package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sessionColumnNames = []string{
	"id", "user_id", "status", "file_name", "file_size", "raw_csv_data",
	"column_mapping", "parsed_rows", "valid_row_count", "invalid_row_count",
	"skipped_row_count", "imported_expense_count", "created_at", "updated_at",
}

type recordingWriter struct {
	written []NewExpense
	failAt  int
}

func (w *recordingWriter) InsertExpense(_ context.Context, _ pgx.Tx, e NewExpense) (uuid.UUID, error) {
	if w.failAt > 0 && len(w.written)+1 == w.failAt {
		return uuid.Nil, errors.New("foreign key violation")
	}
	w.written = append(w.written, e)
	return uuid.New(), nil
}

func sessionRows(t *testing.T, s *Session) *pgxmock.Rows {
	t.Helper()

	var mapping, rows []byte
	var err error
	if s.ColumnMapping != nil {
		mapping, err = json.Marshal(s.ColumnMapping)
		require.NoError(t, err)
	}
	if s.ParsedRows != nil {
		rows, err = json.Marshal(s.ParsedRows)
		require.NoError(t, err)
	}

	return pgxmock.NewRows(sessionColumnNames).AddRow(
		s.ID, s.UserID, string(s.Status), s.FileName, s.FileSize, s.RawCSVData,
		mapping, rows, s.ValidRowCount, s.InvalidRowCount,
		s.SkippedRowCount, s.ImportedExpenseCount, s.CreatedAt, s.UpdatedAt,
	)
}

func previewSession(userID uuid.UUID) *Session {
	name := "bank.csv"
	size := int64(64)
	raw := "Date,Amount,Description\n2026-01-15,4.50,Coffee\n2026-01-16,x,Taxi\n"
	date := "2026-01-15"
	amount := 4.5
	desc := "Coffee"
	taxi := "Taxi"
	now := time.Date(2026, 1, 20, 10, 0, 0, 0, time.UTC)

	s := &Session{
		ID:            uuid.New(),
		UserID:        userID,
		Status:        StatusPreview,
		FileName:      &name,
		FileSize:      &size,
		RawCSVData:    &raw,
		ColumnMapping: &ColumnMapping{Date: "Date", Amount: "Amount", Description: "Description"},
		ParsedRows: []ParsedRow{
			{RowIndex: 0, OriginalData: map[string]string{"Date": date}, Date: &date, Amount: &amount, Description: &desc, Errors: []RowError{}},
			{RowIndex: 1, OriginalData: map[string]string{"Date": "2026-01-16"}, Description: &taxi, Errors: []RowError{{Field: "amount", Message: "bad"}}},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.Recount()
	return s
}

func TestPostgresImportRepository_CreateSession(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresImportRepository(mock, &recordingWriter{})
	userID := uuid.New()
	now := time.Now().UTC()
	created := &Session{ID: uuid.New(), UserID: userID, Status: StatusUpload, CreatedAt: now, UpdatedAt: now}

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs(userID).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec("UPDATE import_sessions\\s+SET status = 'cancelled'").
		WithArgs(userID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("INSERT INTO import_sessions").
		WithArgs(userID).
		WillReturnRows(sessionRows(t, created))
	mock.ExpectCommit()

	s, err := repo.CreateSession(context.Background(), userID)

	require.NoError(t, err)
	assert.Equal(t, created.ID, s.ID)
	assert.Equal(t, StatusUpload, s.Status)
	assert.Nil(t, s.ParsedRows)
	assert.Nil(t, s.ColumnMapping)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresImportRepository_GetSession(t *testing.T) {
	t.Run("decodes jsonb columns", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPostgresImportRepository(mock, &recordingWriter{})
		stored := previewSession(uuid.New())

		mock.ExpectQuery("FROM import_sessions\\s+WHERE id = \\$1 AND user_id = \\$2").
			WithArgs(stored.ID, stored.UserID).
			WillReturnRows(sessionRows(t, stored))

		s, err := repo.GetSession(context.Background(), stored.ID, stored.UserID)

		require.NoError(t, err)
		assert.Equal(t, StatusPreview, s.Status)
		assert.Equal(t, *stored.ColumnMapping, *s.ColumnMapping)
		require.Len(t, s.ParsedRows, 2)
		assert.Equal(t, 4.5, *s.ParsedRows[0].Amount)
		assert.Equal(t, 1, s.ValidRowCount)
		assert.Equal(t, 1, s.InvalidRowCount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPostgresImportRepository(mock, &recordingWriter{})
		id, userID := uuid.New(), uuid.New()

		mock.ExpectQuery("FROM import_sessions").
			WithArgs(id, userID).
			WillReturnError(pgx.ErrNoRows)

		_, err = repo.GetSession(context.Background(), id, userID)

		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresImportRepository_GetActiveSession(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresImportRepository(mock, &recordingWriter{})
	userID := uuid.New()

	mock.ExpectQuery("status IN \\('upload', 'mapping', 'preview'\\)").
		WithArgs(userID).
		WillReturnError(pgx.ErrNoRows)

	_, err = repo.GetActiveSession(context.Background(), userID)

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresImportRepository_UpdateSession(t *testing.T) {
	t.Run("writes mutated session", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPostgresImportRepository(mock, &recordingWriter{})
		stored := previewSession(uuid.New())
		updatedAt := stored.UpdatedAt.Add(time.Minute)

		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").
			WithArgs(stored.ID, stored.UserID).
			WillReturnRows(sessionRows(t, stored))
		mock.ExpectQuery("UPDATE import_sessions\\s+SET status = \\$3").
			WithArgs(stored.ID, stored.UserID, "preview", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), 1, 0, 1, 0).
			WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(updatedAt))
		mock.ExpectCommit()

		s, err := repo.UpdateSession(context.Background(), stored.ID, stored.UserID, func(s *Session) error {
			s.FindRow(1).Skipped = true
			s.Recount()
			return nil
		})

		require.NoError(t, err)
		assert.True(t, s.ParsedRows[1].Skipped)
		assert.Equal(t, 1, s.SkippedRowCount)
		assert.Equal(t, updatedAt, s.UpdatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("mutation error rolls back", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPostgresImportRepository(mock, &recordingWriter{})
		stored := previewSession(uuid.New())
		boom := errors.New("not allowed")

		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").
			WithArgs(stored.ID, stored.UserID).
			WillReturnRows(sessionRows(t, stored))
		mock.ExpectRollback()

		_, err = repo.UpdateSession(context.Background(), stored.ID, stored.UserID, func(*Session) error {
			return boom
		})

		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing session", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPostgresImportRepository(mock, &recordingWriter{})
		id, userID := uuid.New(), uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").
			WithArgs(id, userID).
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()

		_, err = repo.UpdateSession(context.Background(), id, userID, func(*Session) error { return nil })

		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresImportRepository_CancelSession(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{name: "active session", affected: 1, want: true},
		{name: "terminal or missing", affected: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			repo := NewPostgresImportRepository(mock, &recordingWriter{})
			id, userID := uuid.New(), uuid.New()

			mock.ExpectExec("SET status = 'cancelled'").
				WithArgs(id, userID).
				WillReturnResult(pgxmock.NewResult("UPDATE", tt.affected))

			ok, err := repo.CancelSession(context.Background(), id, userID)

			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func commitPlanFor(s *Session) CommitFunc {
	return func(locked *Session) (*CommitPlan, error) {
		plan := &CommitPlan{
			History: ImportHistory{
				UserID:       locked.UserID,
				SessionID:    locked.ID,
				FileName:     *locked.FileName,
				TotalRows:    len(locked.ParsedRows),
				ImportedRows: 1,
				SkippedRows:  1,
			},
		}
		for _, r := range locked.ParsedRows {
			if r.Accepted() {
				plan.Expenses = append(plan.Expenses, NewExpense{
					UserID:          locked.UserID,
					CategoryID:      6,
					Amount:          *r.Amount,
					Description:     *r.Description,
					Date:            *r.Date,
					ImportSessionID: locked.ID,
				})
			}
		}
		locked.Status = StatusCompleted
		locked.ImportedExpenseCount = len(plan.Expenses)
		locked.RawCSVData = nil
		return plan, nil
	}
}

func TestPostgresImportRepository_CompleteSession(t *testing.T) {
	t.Run("writes expenses, session and history", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		writer := &recordingWriter{}
		repo := NewPostgresImportRepository(mock, writer)
		stored := previewSession(uuid.New())
		historyID := uuid.New()
		createdAt := time.Now().UTC()

		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").
			WithArgs(stored.ID, stored.UserID).
			WillReturnRows(sessionRows(t, stored))
		mock.ExpectQuery("UPDATE import_sessions\\s+SET status = \\$3").
			WithArgs(stored.ID, stored.UserID, "completed", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), 1, 1, 0, 1).
			WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(createdAt))
		mock.ExpectQuery("INSERT INTO import_history").
			WithArgs(stored.UserID, stored.ID, "bank.csv", 2, 1, 1).
			WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(historyID, createdAt))
		mock.ExpectCommit()

		h, err := repo.CompleteSession(context.Background(), stored.ID, stored.UserID, commitPlanFor(stored))

		require.NoError(t, err)
		assert.Equal(t, historyID, h.ID)
		assert.Equal(t, createdAt, h.CreatedAt)
		require.Len(t, writer.written, 1)
		assert.Equal(t, "Coffee", writer.written[0].Description)
		assert.Equal(t, stored.ID, writer.written[0].ImportSessionID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("expense failure rolls back everything", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		writer := &recordingWriter{failAt: 1}
		repo := NewPostgresImportRepository(mock, writer)
		stored := previewSession(uuid.New())

		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").
			WithArgs(stored.ID, stored.UserID).
			WillReturnRows(sessionRows(t, stored))
		mock.ExpectRollback()

		_, err = repo.CompleteSession(context.Background(), stored.ID, stored.UserID, commitPlanFor(stored))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to insert expense 1 of 1")
		assert.Empty(t, writer.written)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("commit func error", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPostgresImportRepository(mock, &recordingWriter{})
		stored := previewSession(uuid.New())
		boom := errors.New("no valid rows")

		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").
			WithArgs(stored.ID, stored.UserID).
			WillReturnRows(sessionRows(t, stored))
		mock.ExpectRollback()

		_, err = repo.CompleteSession(context.Background(), stored.ID, stored.UserID, func(*Session) (*CommitPlan, error) {
			return nil, boom
		})

		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresImportRepository_ListHistory(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresImportRepository(mock, &recordingWriter{})
	userID := uuid.New()
	newer := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	older := newer.Add(-24 * time.Hour)

	mock.ExpectQuery("FROM import_history\\s+WHERE user_id = \\$1\\s+ORDER BY created_at DESC").
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "user_id", "session_id", "file_name", "total_rows", "imported_rows", "skipped_rows", "created_at",
		}).
			AddRow(uuid.New(), userID, uuid.New(), "feb.csv", 10, 8, 2, newer).
			AddRow(uuid.New(), userID, uuid.New(), "jan.csv", 3, 3, 0, older))

	history, err := repo.ListHistory(context.Background(), userID)

	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "feb.csv", history[0].FileName)
	assert.Equal(t, 8, history[0].ImportedRows)
	assert.Equal(t, "jan.csv", history[1].FileName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresImportRepository_ExpireStaleSessions(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresImportRepository(mock, &recordingWriter{})
	before := time.Now().Add(-24 * time.Hour)

	mock.ExpectExec("updated_at < \\$1").
		WithArgs(before).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := repo.ExpireStaleSessions(context.Background(), before)

	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
