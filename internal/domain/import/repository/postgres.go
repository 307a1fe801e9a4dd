package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool used by PostgresImportRepository.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresImportRepository implements ImportRepository using PostgreSQL
type PostgresImportRepository struct {
	pool     DB
	expenses ExpenseWriter
}

// NewPostgresImportRepository creates a new PostgreSQL import repository
func NewPostgresImportRepository(pool DB, expenses ExpenseWriter) *PostgresImportRepository {
	return &PostgresImportRepository{pool: pool, expenses: expenses}
}

const sessionColumns = `id, user_id, status, file_name, file_size, raw_csv_data,
	column_mapping, parsed_rows, valid_row_count, invalid_row_count,
	skipped_row_count, imported_expense_count, created_at, updated_at`

const activeStatuses = `('upload', 'mapping', 'preview')`

const (
	lockUserSessionsQuery = `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`

	cancelUserSessionsQuery = `
		UPDATE import_sessions
		SET status = 'cancelled', raw_csv_data = NULL, updated_at = NOW()
		WHERE user_id = $1 AND status IN ` + activeStatuses

	insertSessionQuery = `
		INSERT INTO import_sessions (user_id, status)
		VALUES ($1, 'upload')
		RETURNING ` + sessionColumns

	getSessionQuery = `
		SELECT ` + sessionColumns + `
		FROM import_sessions
		WHERE id = $1 AND user_id = $2`

	getSessionForUpdateQuery = getSessionQuery + `
		FOR UPDATE`

	getActiveSessionQuery = `
		SELECT ` + sessionColumns + `
		FROM import_sessions
		WHERE user_id = $1 AND status IN ` + activeStatuses + `
		ORDER BY created_at DESC
		LIMIT 1`

	updateSessionQuery = `
		UPDATE import_sessions
		SET status = $3, file_name = $4, file_size = $5, raw_csv_data = $6,
			column_mapping = $7, parsed_rows = $8, valid_row_count = $9,
			invalid_row_count = $10, skipped_row_count = $11,
			imported_expense_count = $12, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING updated_at`

	cancelSessionQuery = `
		UPDATE import_sessions
		SET status = 'cancelled', raw_csv_data = NULL, updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND status IN ` + activeStatuses

	insertHistoryQuery = `
		INSERT INTO import_history (user_id, session_id, file_name, total_rows, imported_rows, skipped_rows)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	listHistoryQuery = `
		SELECT id, user_id, session_id, file_name, total_rows, imported_rows, skipped_rows, created_at
		FROM import_history
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`

	expireSessionsQuery = `
		UPDATE import_sessions
		SET status = 'cancelled', raw_csv_data = NULL, updated_at = NOW()
		WHERE status IN ` + activeStatuses + ` AND updated_at < $1`
)

// CreateSession serializes on a per-user advisory lock so two concurrent
// creates cannot both leave an active session behind.
func (r *PostgresImportRepository) CreateSession(ctx context.Context, userID uuid.UUID) (*Session, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, lockUserSessionsQuery, userID); err != nil {
		return nil, fmt.Errorf("failed to lock user sessions: %w", err)
	}

	if _, err := tx.Exec(ctx, cancelUserSessionsQuery, userID); err != nil {
		return nil, fmt.Errorf("failed to cancel active sessions: %w", err)
	}

	session, err := scanSession(tx.QueryRow(ctx, insertSessionQuery, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to insert import session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return session, nil
}

func (r *PostgresImportRepository) GetSession(ctx context.Context, id, userID uuid.UUID) (*Session, error) {
	session, err := scanSession(r.pool.QueryRow(ctx, getSessionQuery, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get import session: %w", err)
	}
	return session, nil
}

func (r *PostgresImportRepository) GetActiveSession(ctx context.Context, userID uuid.UUID) (*Session, error) {
	session, err := scanSession(r.pool.QueryRow(ctx, getActiveSessionQuery, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get active import session: %w", err)
	}
	return session, nil
}

func (r *PostgresImportRepository) UpdateSession(ctx context.Context, id, userID uuid.UUID, fn MutateFunc) (*Session, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	session, err := lockSession(ctx, tx, id, userID)
	if err != nil {
		return nil, err
	}

	if err := fn(session); err != nil {
		return nil, err
	}

	if err := writeSession(ctx, tx, session); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return session, nil
}

func (r *PostgresImportRepository) CancelSession(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, cancelSessionQuery, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to cancel import session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresImportRepository) CompleteSession(ctx context.Context, id, userID uuid.UUID, fn CommitFunc) (*ImportHistory, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	session, err := lockSession(ctx, tx, id, userID)
	if err != nil {
		return nil, err
	}

	plan, err := fn(session)
	if err != nil {
		return nil, err
	}

	for i, e := range plan.Expenses {
		if _, err := r.expenses.InsertExpense(ctx, tx, e); err != nil {
			return nil, fmt.Errorf("failed to insert expense %d of %d: %w", i+1, len(plan.Expenses), err)
		}
	}

	if err := writeSession(ctx, tx, session); err != nil {
		return nil, err
	}

	history := plan.History
	err = tx.QueryRow(ctx, insertHistoryQuery,
		history.UserID,
		history.SessionID,
		history.FileName,
		history.TotalRows,
		history.ImportedRows,
		history.SkippedRows,
	).Scan(&history.ID, &history.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert import history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &history, nil
}

func (r *PostgresImportRepository) ListHistory(ctx context.Context, userID uuid.UUID) ([]*ImportHistory, error) {
	rows, err := r.pool.Query(ctx, listHistoryQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list import history: %w", err)
	}
	defer rows.Close()

	history := []*ImportHistory{}
	for rows.Next() {
		var h ImportHistory
		if err := rows.Scan(
			&h.ID,
			&h.UserID,
			&h.SessionID,
			&h.FileName,
			&h.TotalRows,
			&h.ImportedRows,
			&h.SkippedRows,
			&h.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan import history: %w", err)
		}
		history = append(history, &h)
	}

	return history, rows.Err()
}

func (r *PostgresImportRepository) ExpireStaleSessions(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, expireSessionsQuery, before)
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func lockSession(ctx context.Context, tx pgx.Tx, id, userID uuid.UUID) (*Session, error) {
	session, err := scanSession(tx.QueryRow(ctx, getSessionForUpdateQuery, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock import session: %w", err)
	}
	return session, nil
}

func writeSession(ctx context.Context, tx pgx.Tx, s *Session) error {
	mapping, err := marshalJSONB(s.ColumnMapping, s.ColumnMapping == nil)
	if err != nil {
		return fmt.Errorf("failed to encode column mapping: %w", err)
	}
	rows, err := marshalJSONB(s.ParsedRows, s.ParsedRows == nil)
	if err != nil {
		return fmt.Errorf("failed to encode parsed rows: %w", err)
	}

	err = tx.QueryRow(ctx, updateSessionQuery,
		s.ID,
		s.UserID,
		string(s.Status),
		s.FileName,
		s.FileSize,
		s.RawCSVData,
		mapping,
		rows,
		s.ValidRowCount,
		s.InvalidRowCount,
		s.SkippedRowCount,
		s.ImportedExpenseCount,
	).Scan(&s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update import session: %w", err)
	}
	return nil
}

// marshalJSONB encodes v for a JSONB column; isNil maps to SQL NULL.
func marshalJSONB(v any, isNil bool) ([]byte, error) {
	if isNil {
		return nil, nil
	}
	return json.Marshal(v)
}

func scanSession(row pgx.Row) (*Session, error) {
	var (
		s       Session
		status  string
		mapping []byte
		rows    []byte
	)
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&status,
		&s.FileName,
		&s.FileSize,
		&s.RawCSVData,
		&mapping,
		&rows,
		&s.ValidRowCount,
		&s.InvalidRowCount,
		&s.SkippedRowCount,
		&s.ImportedExpenseCount,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Status = Status(status)
	if len(mapping) > 0 {
		var m ColumnMapping
		if err := json.Unmarshal(mapping, &m); err != nil {
			return nil, fmt.Errorf("failed to decode column mapping: %w", err)
		}
		s.ColumnMapping = &m
	}
	if len(rows) > 0 {
		if err := json.Unmarshal(rows, &s.ParsedRows); err != nil {
			return nil, fmt.Errorf("failed to decode parsed rows: %w", err)
		}
	}
	return &s, nil
}
