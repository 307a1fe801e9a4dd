// Package service implements the import session state machine: upload,
// column mapping, row review and commit.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/expense-importer/internal/domain/categorization"
	"github.com/FACorreiaa/expense-importer/internal/domain/import/normalizer"
	"github.com/FACorreiaa/expense-importer/internal/domain/import/repository"
	"github.com/FACorreiaa/expense-importer/internal/domain/import/sniffer"
	"github.com/FACorreiaa/expense-importer/pkg/metrics"
	"github.com/FACorreiaa/expense-importer/pkg/money"
)

// DefaultMaxUploadBytes caps the size of an uploaded CSV text.
const DefaultMaxUploadBytes = 10 << 20

var tracer = otel.Tracer("github.com/FACorreiaa/expense-importer/internal/domain/import/service")

// CategoryService resolves category cells and the commit-time default.
type CategoryService interface {
	Matcher(ctx context.Context) (*categorization.Matcher, error)
	DefaultCategoryID(ctx context.Context) (int64, error)
}

// UploadResult is the session after an upload plus the detected structure.
type UploadResult struct {
	Session   *repository.Session `json:"session"`
	Structure *sniffer.Structure  `json:"structure"`
}

// MappingOptions controls how a mapping is applied.
type MappingOptions struct {
	// PreserveDecisions re-applies skip flags and edits from the previous
	// parse, matched by row index.
	PreserveDecisions bool `json:"preserveDecisions"`
}

// MappingResult is the session after a mapping was applied plus its rows.
type MappingResult struct {
	Session      *repository.Session    `json:"session"`
	ParsedRows   []repository.ParsedRow `json:"parsedRows"`
	ValidCount   int                    `json:"validCount"`
	InvalidCount int                    `json:"invalidCount"`
}

// ImportService orchestrates import sessions
type ImportService struct {
	repo           repository.ImportRepository
	categories     CategoryService
	logger         *slog.Logger
	metrics        *metrics.ImportMetrics
	locks          *sessionLocks
	maxUploadBytes int
	currency       string
	now            func() time.Time
}

// NewImportService creates a new import service
func NewImportService(repo repository.ImportRepository, categories CategoryService, logger *slog.Logger) *ImportService {
	return &ImportService{
		repo:           repo,
		categories:     categories,
		logger:         logger,
		locks:          newSessionLocks(),
		maxUploadBytes: DefaultMaxUploadBytes,
		currency:       money.USD,
		now:            time.Now,
	}
}

// WithMetrics sets the metrics sink.
func (s *ImportService) WithMetrics(m *metrics.ImportMetrics) *ImportService {
	s.metrics = m
	return s
}

// WithMaxUploadBytes overrides DefaultMaxUploadBytes. Non-positive values are ignored.
func (s *ImportService) WithMaxUploadBytes(n int) *ImportService {
	if n > 0 {
		s.maxUploadBytes = n
	}
	return s
}

// WithCurrency sets the currency expenses are stored in; row amounts must
// round to at least one of its minor units.
func (s *ImportService) WithCurrency(code string) *ImportService {
	if code != "" {
		s.currency = code
	}
	return s
}

// WithClock overrides the time source used for expiry.
func (s *ImportService) WithClock(now func() time.Time) *ImportService {
	s.now = now
	return s
}

// MaxUploadBytes returns the configured upload limit.
func (s *ImportService) MaxUploadBytes() int {
	return s.maxUploadBytes
}

func (s *ImportService) newProcessor(matcher *categorization.Matcher) *normalizer.Processor {
	return normalizer.NewProcessor(matcher).WithCurrency(s.currency)
}

func (s *ImportService) startSpan(ctx context.Context, name string, userID uuid.UUID) (context.Context, trace.Span) {
	return tracer.Start(ctx, "ImportService."+name,
		trace.WithAttributes(attribute.String("user.id", userID.String())))
}

// finish records err on the span and in metrics and ends the span.
func (s *ImportService) finish(span trace.Span, op string, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	s.metrics.ObserveOperation(op, err)
	span.End()
}

// CreateSession starts a new session, cancelling the user's active one.
func (s *ImportService) CreateSession(ctx context.Context, userID uuid.UUID) (_ *repository.Session, err error) {
	ctx, span := s.startSpan(ctx, "CreateSession", userID)
	defer func() { s.finish(span, "create_session", err) }()

	session, err := s.repo.CreateSession(ctx, userID)
	if err != nil {
		s.logger.Error("failed to create import session", slog.String("user_id", userID.String()), slog.Any("error", err))
		return nil, err
	}

	s.logger.Info("import session created",
		slog.String("user_id", userID.String()),
		slog.String("session_id", session.ID.String()))
	return session, nil
}

// GetActiveSession returns the user's most recent non-terminal session.
func (s *ImportService) GetActiveSession(ctx context.Context, userID uuid.UUID) (*repository.Session, error) {
	session, err := s.repo.GetActiveSession(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoActiveSession
		}
		return nil, err
	}
	return session, nil
}

// GetSession returns a session owned by userID.
func (s *ImportService) GetSession(ctx context.Context, id, userID uuid.UUID) (*repository.Session, error) {
	session, err := s.repo.GetSession(ctx, id, userID)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return session, nil
}

// CancelSession cancels a non-terminal session. It reports false when there
// was nothing to cancel.
func (s *ImportService) CancelSession(ctx context.Context, id, userID uuid.UUID) (_ bool, err error) {
	ctx, span := s.startSpan(ctx, "CancelSession", userID)
	defer func() { s.finish(span, "cancel_session", err) }()

	unlock := s.locks.lock(id)
	defer unlock()

	ok, err := s.repo.CancelSession(ctx, id, userID)
	if err != nil {
		return false, err
	}
	if ok {
		s.logger.Info("import session cancelled", slog.String("session_id", id.String()))
	}
	return ok, nil
}

// UploadCSV attaches a CSV text to the user's active session, creating one
// when none exists. Any previous mapping and parsed rows are discarded.
func (s *ImportService) UploadCSV(ctx context.Context, userID uuid.UUID, fileName, text string) (_ *UploadResult, err error) {
	ctx, span := s.startSpan(ctx, "UploadCSV", userID)
	defer func() { s.finish(span, "upload", err) }()

	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return nil, ErrEmptyFileName
	}
	if len(text) > s.maxUploadBytes {
		return nil, ErrFileTooLarge
	}

	structure, err := sniffer.Analyze(text)
	if err != nil {
		return nil, err
	}

	active, err := s.repo.GetActiveSession(ctx, userID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		if active, err = s.repo.CreateSession(ctx, userID); err != nil {
			return nil, fmt.Errorf("failed to create import session: %w", err)
		}
	case err != nil:
		return nil, err
	}

	unlock := s.locks.lock(active.ID)
	defer unlock()

	size := int64(len(text))
	session, err := s.repo.UpdateSession(ctx, active.ID, userID, func(sess *repository.Session) error {
		if sess.Status.IsTerminal() {
			return ErrSessionNotActive
		}
		sess.Status = repository.StatusUpload
		sess.FileName = &fileName
		sess.FileSize = &size
		sess.RawCSVData = &text
		sess.ColumnMapping = nil
		sess.ParsedRows = nil
		sess.ImportedExpenseCount = 0
		sess.Recount()
		return nil
	})
	if err != nil {
		return nil, mapNotFound(err)
	}

	s.metrics.ObserveUpload(len(text))
	s.logger.Info("csv uploaded",
		slog.String("session_id", session.ID.String()),
		slog.String("file_name", fileName),
		slog.Int("rows", structure.RowCount),
		slog.String("delimiter", structure.Delimiter))

	return &UploadResult{Session: session, Structure: structure}, nil
}

// SaveMapping interprets every data row of the uploaded CSV through mapping
// and moves the session to preview.
func (s *ImportService) SaveMapping(ctx context.Context, id, userID uuid.UUID, mapping repository.ColumnMapping, opts MappingOptions) (_ *MappingResult, err error) {
	ctx, span := s.startSpan(ctx, "SaveMapping", userID)
	defer func() { s.finish(span, "save_mapping", err) }()

	mapping = repository.ColumnMapping{
		Date:        strings.TrimSpace(mapping.Date),
		Amount:      strings.TrimSpace(mapping.Amount),
		Description: strings.TrimSpace(mapping.Description),
		Category:    strings.TrimSpace(mapping.Category),
	}
	if !mapping.Complete() {
		return nil, ErrInvalidMapping
	}

	matcher, err := s.categories.Matcher(ctx)
	if err != nil {
		return nil, err
	}
	processor := s.newProcessor(matcher)

	unlock := s.locks.lock(id)
	defer unlock()

	session, err := s.repo.UpdateSession(ctx, id, userID, func(sess *repository.Session) error {
		if sess.Status.IsTerminal() {
			return ErrSessionNotActive
		}
		if sess.RawCSVData == nil {
			return ErrNoCSVData
		}

		table, err := sniffer.Tokenize(*sess.RawCSVData)
		if err != nil {
			return err
		}

		rows := processor.ProcessRows(table.Headers, table.Rows, mapping)
		if opts.PreserveDecisions {
			processor.CarryOver(sess.ParsedRows, rows)
		}

		sess.ColumnMapping = &mapping
		sess.ParsedRows = rows
		sess.Status = repository.StatusPreview
		sess.Recount()
		return nil
	})
	if err != nil {
		return nil, mapNotFound(err)
	}

	s.logger.Info("column mapping saved",
		slog.String("session_id", id.String()),
		slog.Int("valid", session.ValidRowCount),
		slog.Int("invalid", session.InvalidRowCount),
		slog.Bool("preserve_decisions", opts.PreserveDecisions))

	return &MappingResult{
		Session:      session,
		ParsedRows:   session.ParsedRows,
		ValidCount:   session.ValidRowCount,
		InvalidCount: session.InvalidRowCount,
	}, nil
}

// UpdateRow applies a user edit to one parsed row and re-validates it.
func (s *ImportService) UpdateRow(ctx context.Context, id, userID uuid.UUID, rowIndex int, update repository.RowUpdate) (_ *repository.ParsedRow, err error) {
	ctx, span := s.startSpan(ctx, "UpdateRow", userID)
	span.SetAttributes(attribute.Int("row.index", rowIndex))
	defer func() { s.finish(span, "update_row", err) }()

	var matcher *categorization.Matcher
	if update.Category != nil {
		if matcher, err = s.categories.Matcher(ctx); err != nil {
			return nil, err
		}
	}
	processor := s.newProcessor(matcher)

	var updated repository.ParsedRow
	_, err = s.mutateRow(ctx, id, userID, rowIndex, func(row *repository.ParsedRow) {
		processor.ApplyUpdate(row, update)
		updated = row.Clone()
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// SkipRow sets or clears the skipped flag of one parsed row.
func (s *ImportService) SkipRow(ctx context.Context, id, userID uuid.UUID, rowIndex int, skip bool) (_ *repository.Session, err error) {
	ctx, span := s.startSpan(ctx, "SkipRow", userID)
	span.SetAttributes(attribute.Int("row.index", rowIndex), attribute.Bool("row.skip", skip))
	defer func() { s.finish(span, "skip_row", err) }()

	return s.mutateRow(ctx, id, userID, rowIndex, func(row *repository.ParsedRow) {
		row.Skipped = skip
	})
}

// mutateRow runs fn on one row of a session in preview and recounts.
func (s *ImportService) mutateRow(ctx context.Context, id, userID uuid.UUID, rowIndex int, fn func(*repository.ParsedRow)) (*repository.Session, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	session, err := s.repo.UpdateSession(ctx, id, userID, func(sess *repository.Session) error {
		if sess.Status.IsTerminal() {
			return ErrSessionNotActive
		}
		if sess.ParsedRows == nil {
			return ErrNoParsedRows
		}
		if sess.Status != repository.StatusPreview {
			return ErrSessionNotActive
		}
		row := sess.FindRow(rowIndex)
		if row == nil {
			return ErrRowNotFound
		}
		fn(row)
		sess.Recount()
		return nil
	})
	if err != nil {
		return nil, mapNotFound(err)
	}
	return session, nil
}

// GetParsedRows returns the session's parsed rows, empty before a mapping
// has been saved.
func (s *ImportService) GetParsedRows(ctx context.Context, id, userID uuid.UUID) ([]repository.ParsedRow, error) {
	session, err := s.GetSession(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if session.ParsedRows == nil {
		return []repository.ParsedRow{}, nil
	}
	return session.ParsedRows, nil
}

// ListHistory returns the user's completed imports, newest first.
func (s *ImportService) ListHistory(ctx context.Context, userID uuid.UUID) ([]*repository.ImportHistory, error) {
	return s.repo.ListHistory(ctx, userID)
}

// ExpireStaleSessions cancels sessions idle for longer than ttl.
func (s *ImportService) ExpireStaleSessions(ctx context.Context, ttl time.Duration) (int64, error) {
	n, err := s.repo.ExpireStaleSessions(ctx, s.now().Add(-ttl))
	if err != nil {
		s.logger.Error("failed to expire import sessions", slog.Any("error", err))
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired stale import sessions", slog.Int64("count", n), slog.Duration("ttl", ttl))
	}
	s.metrics.ObserveExpired(n)
	return n, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}
