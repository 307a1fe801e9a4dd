package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	importservice "github.com/FACorreiaa/expense-importer/internal/domain/import/service"
	"github.com/FACorreiaa/expense-importer/pkg/interceptors"
	"github.com/FACorreiaa/expense-importer/pkg/logger"
)

const defaultBodyLimit = 1 << 20

// ErrorResponse is the JSON body of every non-2xx answer.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// statusFor maps service errors to HTTP status codes. Unknown errors are 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, importservice.ErrSessionNotFound),
		errors.Is(err, importservice.ErrRowNotFound),
		errors.Is(err, importservice.ErrNoActiveSession):
		return http.StatusNotFound
	case errors.Is(err, importservice.ErrSessionNotActive):
		return http.StatusConflict
	case errors.Is(err, importservice.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, importservice.ErrNoCSVData),
		errors.Is(err, importservice.ErrNoParsedRows),
		errors.Is(err, importservice.ErrNoValidRows),
		errors.Is(err, importservice.ErrInvalidMapping),
		errors.Is(err, importservice.ErrEmptyFileName),
		errors.Is(err, importservice.ErrMalformedInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes it. Internal errors are logged in full and
// answered with a generic message.
func (h *ImportHandler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	log := logger.FromContext(r.Context(), h.logger)

	if status == http.StatusInternalServerError {
		log.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		writeError(w, status, "internal server error", nil)
		return
	}

	log.Info("request rejected",
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.String("reason", err.Error()))
	writeError(w, status, err.Error(), nil)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, details []string) {
	writeJSON(w, status, ErrorResponse{Error: message, Details: details})
}

// decode reads a JSON body of at most limit bytes into v. It writes the
// error response itself and reports whether decoding succeeded.
func (h *ImportHandler) decode(w http.ResponseWriter, r *http.Request, v any, limit int64) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, importservice.ErrFileTooLarge.Error(), nil)
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body", []string{err.Error()})
		return false
	}
	return true
}

func (h *ImportHandler) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw, ok := interceptors.GetUserIDFromContext(r.Context())
	if !ok || raw == "" {
		writeError(w, http.StatusUnauthorized, "unauthenticated", nil)
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated", nil)
		return uuid.Nil, false
	}
	return userID, true
}

func (h *ImportHandler) sessionParams(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := h.userID(w, r)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id", nil)
		return uuid.Nil, uuid.Nil, false
	}
	return userID, sessionID, true
}
