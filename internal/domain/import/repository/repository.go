package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	// ErrNotFound is returned when no session matches the id and owner.
	ErrNotFound = errors.New("import session not found")
)

// ExpenseWriter inserts a committed expense inside the commit transaction.
type ExpenseWriter interface {
	InsertExpense(ctx context.Context, tx pgx.Tx, e NewExpense) (uuid.UUID, error)
}

// MutateFunc edits a locked session in place. Returning an error aborts the
// mutation and nothing is persisted.
type MutateFunc func(s *Session) error

// CommitFunc validates a locked session, marks it completed and returns what
// must be written alongside it. Returning an error aborts the commit.
type CommitFunc func(s *Session) (*CommitPlan, error)

// ImportRepository defines data access operations for import sessions.
// Every mutating method holds an exclusive lock on the session for its whole
// read-modify-write cycle.
type ImportRepository interface {
	// CreateSession cancels the user's non-terminal sessions and creates a new
	// one in the upload state, atomically.
	CreateSession(ctx context.Context, userID uuid.UUID) (*Session, error)
	GetSession(ctx context.Context, id, userID uuid.UUID) (*Session, error)
	// GetActiveSession returns the user's most recent non-terminal session.
	GetActiveSession(ctx context.Context, userID uuid.UUID) (*Session, error)
	UpdateSession(ctx context.Context, id, userID uuid.UUID, fn MutateFunc) (*Session, error)
	// CancelSession cancels a non-terminal session. It reports false when the
	// session does not exist, belongs to someone else or is already terminal.
	CancelSession(ctx context.Context, id, userID uuid.UUID) (bool, error)
	// CompleteSession writes the plan's expenses, the session and the history
	// record in one transaction.
	CompleteSession(ctx context.Context, id, userID uuid.UUID, fn CommitFunc) (*ImportHistory, error)
	// ListHistory returns the user's import history, newest first.
	ListHistory(ctx context.Context, userID uuid.UUID) ([]*ImportHistory, error)
	// ExpireStaleSessions cancels non-terminal sessions not updated since before.
	ExpireStaleSessions(ctx context.Context, before time.Time) (int64, error)
}
