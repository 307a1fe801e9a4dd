// Package handler exposes the import session engine over HTTP.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gocarina/gocsv"

	"github.com/FACorreiaa/expense-importer/internal/domain/import/repository"
	importservice "github.com/FACorreiaa/expense-importer/internal/domain/import/service"
	"github.com/FACorreiaa/expense-importer/pkg/logger"
)

// ImportHandler handles the import session routes
type ImportHandler struct {
	importSvc *importservice.ImportService
	logger    *slog.Logger
}

// NewImportHandler creates a new import handler
func NewImportHandler(importSvc *importservice.ImportService, logger *slog.Logger) *ImportHandler {
	return &ImportHandler{
		importSvc: importSvc,
		logger:    logger,
	}
}

// Register mounts the import routes on r. Callers are expected to have run
// the auth middleware.
func (h *ImportHandler) Register(r chi.Router) {
	r.Route("/import", func(r chi.Router) {
		r.Get("/session", h.GetActiveSession)
		r.Post("/session", h.CreateSession)
		r.Get("/session/{id}", h.GetSession)
		r.Delete("/session/{id}", h.CancelSession)
		r.Post("/session/{id}/mapping", h.SaveMapping)
		r.Patch("/session/{id}/row", h.UpdateRow)
		r.Post("/session/{id}/skip", h.SkipRow)
		r.Get("/session/{id}/rows", h.GetParsedRows)
		r.Post("/session/{id}/confirm", h.Confirm)
		r.Post("/upload", h.UploadCSV)
		r.Get("/history", h.ListHistory)
		r.Get("/history/export", h.ExportHistory)
	})
}

// GetActiveSession returns the user's active session for resume. Parsed rows
// are included once the session is in preview.
func (h *ImportHandler) GetActiveSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	session, err := h.importSvc.GetActiveSession(r.Context(), userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	var rows []repository.ParsedRow
	if session.Status == repository.StatusPreview {
		rows = session.ParsedRows
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: session, ParsedRows: rows})
}

func (h *ImportHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	session, err := h.importSvc.CreateSession(r.Context(), userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{Session: session})
}

func (h *ImportHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.sessionParams(w, r)
	if !ok {
		return
	}

	session, err := h.importSvc.GetSession(r.Context(), sessionID, userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: session})
}

// CancelSession answers 204, or 404 when the session is missing or already
// finished.
func (h *ImportHandler) CancelSession(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.sessionParams(w, r)
	if !ok {
		return
	}

	cancelled, err := h.importSvc.CancelSession(r.Context(), sessionID, userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if !cancelled {
		writeError(w, http.StatusNotFound, "session not found or already completed", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ImportHandler) UploadCSV(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req uploadRequest
	if !h.decode(w, r, &req, uploadBodyLimit(h.importSvc.MaxUploadBytes())) {
		return
	}
	if details := req.validate(); len(details) > 0 {
		writeError(w, http.StatusBadRequest, "invalid input", details)
		return
	}

	result, err := h.importSvc.UploadCSV(r.Context(), userID, req.FileName, req.CSVContent)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *ImportHandler) SaveMapping(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.sessionParams(w, r)
	if !ok {
		return
	}

	var req mappingRequest
	if !h.decode(w, r, &req, defaultBodyLimit) {
		return
	}
	if details := req.validate(); len(details) > 0 {
		writeError(w, http.StatusBadRequest, "invalid input", details)
		return
	}

	result, err := h.importSvc.SaveMapping(r.Context(), sessionID, userID, req.mapping(),
		importservice.MappingOptions{PreserveDecisions: req.PreserveDecisions})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *ImportHandler) UpdateRow(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.sessionParams(w, r)
	if !ok {
		return
	}

	var req updateRowRequest
	if !h.decode(w, r, &req, defaultBodyLimit) {
		return
	}
	if details := req.validate(); len(details) > 0 {
		writeError(w, http.StatusBadRequest, "invalid input", details)
		return
	}

	row, err := h.importSvc.UpdateRow(r.Context(), sessionID, userID, *req.RowIndex, req.Updates.toRowUpdate())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rowResponse{Row: row})
}

func (h *ImportHandler) SkipRow(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.sessionParams(w, r)
	if !ok {
		return
	}

	var req skipRowRequest
	if !h.decode(w, r, &req, defaultBodyLimit) {
		return
	}
	if details := req.validate(); len(details) > 0 {
		writeError(w, http.StatusBadRequest, "invalid input", details)
		return
	}

	session, err := h.importSvc.SkipRow(r.Context(), sessionID, userID, *req.RowIndex, *req.Skip)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rowResponse{Row: session.FindRow(*req.RowIndex), Session: session})
}

func (h *ImportHandler) GetParsedRows(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.sessionParams(w, r)
	if !ok {
		return
	}

	rows, err := h.importSvc.GetParsedRows(r.Context(), sessionID, userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"parsedRows": rows})
}

func (h *ImportHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.sessionParams(w, r)
	if !ok {
		return
	}

	result, err := h.importSvc.Confirm(r.Context(), sessionID, userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	logger.FromContext(r.Context(), h.logger).Info("import confirmed",
		slog.String("user_id", userID.String()),
		slog.String("session_id", sessionID.String()),
		slog.Int("imported", result.ImportedCount))
	writeJSON(w, http.StatusOK, result)
}

func (h *ImportHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	history, err := h.importSvc.ListHistory(r.Context(), userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// ExportHistory streams the user's history as a CSV attachment.
func (h *ImportHandler) ExportHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	history, err := h.importSvc.ListHistory(r.Context(), userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	body, err := gocsv.MarshalBytes(history)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="import-history.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
