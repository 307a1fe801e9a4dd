package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/FACorreiaa/expense-importer/internal/domain/import/repository"
)

// ConfirmResult summarizes a committed import.
type ConfirmResult struct {
	ImportedCount int                       `json:"importedCount"`
	SkippedCount  int                       `json:"skippedCount"`
	History       *repository.ImportHistory `json:"history"`
}

// Confirm turns every accepted row of a session in preview into an expense,
// completes the session and records history, all or nothing. Rows without a
// resolved category use the default category.
func (s *ImportService) Confirm(ctx context.Context, id, userID uuid.UUID) (_ *ConfirmResult, err error) {
	ctx, span := s.startSpan(ctx, "Confirm", userID)
	defer func() { s.finish(span, "confirm", err) }()

	defaultCategoryID, err := s.categories.DefaultCategoryID(ctx)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(id)
	defer unlock()

	history, err := s.repo.CompleteSession(ctx, id, userID, func(sess *repository.Session) (*repository.CommitPlan, error) {
		return planCommit(sess, defaultCategoryID)
	})
	if err != nil {
		if isRejection(err) {
			s.logger.Info("import commit rejected",
				slog.String("session_id", id.String()),
				slog.String("reason", err.Error()))
		} else {
			s.logger.Error("import commit failed",
				slog.String("session_id", id.String()),
				slog.Any("error", err))
		}
		return nil, mapNotFound(err)
	}

	s.metrics.ObserveCommit(history.ImportedRows, history.SkippedRows)
	s.logger.Info("import committed",
		slog.String("session_id", id.String()),
		slog.Int("imported", history.ImportedRows),
		slog.Int("skipped", history.SkippedRows))

	return &ConfirmResult{
		ImportedCount: history.ImportedRows,
		SkippedCount:  history.SkippedRows,
		History:       history,
	}, nil
}

// planCommit validates sess, marks it completed and builds the expenses and
// history record to write with it.
func planCommit(sess *repository.Session, defaultCategoryID int64) (*repository.CommitPlan, error) {
	if sess.Status != repository.StatusPreview {
		return nil, ErrSessionNotActive
	}
	if sess.ParsedRows == nil {
		return nil, ErrNoParsedRows
	}

	expenses := make([]repository.NewExpense, 0, len(sess.ParsedRows))
	for _, row := range sess.ParsedRows {
		if !row.Accepted() {
			continue
		}
		categoryID := defaultCategoryID
		if row.CategoryID != nil {
			categoryID = *row.CategoryID
		}
		expenses = append(expenses, repository.NewExpense{
			UserID:          sess.UserID,
			CategoryID:      categoryID,
			Amount:          *row.Amount,
			Description:     *row.Description,
			Date:            *row.Date,
			ImportSessionID: sess.ID,
		})
	}
	if len(expenses) == 0 {
		return nil, ErrNoValidRows
	}

	fileName := repository.UnknownFileName
	if sess.FileName != nil && *sess.FileName != "" {
		fileName = *sess.FileName
	}

	total := len(sess.ParsedRows)
	sess.Status = repository.StatusCompleted
	sess.ImportedExpenseCount = len(expenses)
	sess.RawCSVData = nil

	return &repository.CommitPlan{
		Expenses: expenses,
		History: repository.ImportHistory{
			UserID:       sess.UserID,
			SessionID:    sess.ID,
			FileName:     fileName,
			TotalRows:    total,
			ImportedRows: len(expenses),
			SkippedRows:  total - len(expenses),
		},
	}, nil
}
