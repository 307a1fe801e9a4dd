package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryImportRepository is an in-process ImportRepository. A single mutex
// makes every method atomic. Committed expenses are kept in memory.
type MemoryImportRepository struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	history  []*ImportHistory
	expenses []NewExpense
	now      func() time.Time

	// expenseHook, when set, is called for each expense during a commit; an
	// error aborts the commit like a failed insert.
	expenseHook func(NewExpense) error
}

// NewMemoryImportRepository creates an empty in-memory repository.
func NewMemoryImportRepository() *MemoryImportRepository {
	return &MemoryImportRepository{
		sessions: make(map[uuid.UUID]*Session),
		now:      time.Now,
	}
}

// WithExpenseHook installs a hook invoked for every expense written on commit.
func (r *MemoryImportRepository) WithExpenseHook(hook func(NewExpense) error) *MemoryImportRepository {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expenseHook = hook
	return r
}

// WithClock overrides the time source.
func (r *MemoryImportRepository) WithClock(now func() time.Time) *MemoryImportRepository {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
	return r
}

// Expenses returns the expenses committed so far.
func (r *MemoryImportRepository) Expenses() []NewExpense {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]NewExpense(nil), r.expenses...)
}

func (r *MemoryImportRepository) CreateSession(_ context.Context, userID uuid.UUID) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for _, s := range r.sessions {
		if s.UserID == userID && !s.Status.IsTerminal() {
			cancelLocked(s, now)
		}
	}

	s := &Session{
		ID:        uuid.New(),
		UserID:    userID,
		Status:    StatusUpload,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.sessions[s.ID] = s
	return s.Clone(), nil
}

func (r *MemoryImportRepository) GetSession(_ context.Context, id, userID uuid.UUID) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || s.UserID != userID {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (r *MemoryImportRepository) GetActiveSession(_ context.Context, userID uuid.UUID) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var latest *Session
	for _, s := range r.sessions {
		if s.UserID != userID || s.Status.IsTerminal() {
			continue
		}
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest.Clone(), nil
}

func (r *MemoryImportRepository) UpdateSession(_ context.Context, id, userID uuid.UUID, fn MutateFunc) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.sessions[id]
	if !ok || stored.UserID != userID {
		return nil, ErrNotFound
	}

	working := stored.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}

	working.UpdatedAt = r.now()
	r.sessions[id] = working
	return working.Clone(), nil
}

func (r *MemoryImportRepository) CancelSession(_ context.Context, id, userID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || s.UserID != userID || s.Status.IsTerminal() {
		return false, nil
	}
	cancelLocked(s, r.now())
	return true, nil
}

func (r *MemoryImportRepository) CompleteSession(_ context.Context, id, userID uuid.UUID, fn CommitFunc) (*ImportHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.sessions[id]
	if !ok || stored.UserID != userID {
		return nil, ErrNotFound
	}

	working := stored.Clone()
	plan, err := fn(working)
	if err != nil {
		return nil, err
	}

	for _, e := range plan.Expenses {
		if r.expenseHook != nil {
			if err := r.expenseHook(e); err != nil {
				return nil, err
			}
		}
	}

	now := r.now()
	working.UpdatedAt = now
	history := plan.History
	history.ID = uuid.New()
	history.CreatedAt = now

	r.sessions[id] = working
	r.expenses = append(r.expenses, plan.Expenses...)
	r.history = append(r.history, &history)

	out := history
	return &out, nil
}

func (r *MemoryImportRepository) ListHistory(_ context.Context, userID uuid.UUID) ([]*ImportHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []*ImportHistory{}
	for i := len(r.history) - 1; i >= 0; i-- {
		h := r.history[i]
		if h.UserID == userID {
			c := *h
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryImportRepository) ExpireStaleSessions(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	now := r.now()
	for _, s := range r.sessions {
		if !s.Status.IsTerminal() && s.UpdatedAt.Before(before) {
			cancelLocked(s, now)
			n++
		}
	}
	return n, nil
}

func cancelLocked(s *Session, now time.Time) {
	s.Status = StatusCancelled
	s.RawCSVData = nil
	s.UpdatedAt = now
}
