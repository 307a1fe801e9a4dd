package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/expense-importer/internal/domain/categorization"
	"github.com/FACorreiaa/expense-importer/internal/domain/import/repository"
	importservice "github.com/FACorreiaa/expense-importer/internal/domain/import/service"
	"github.com/FACorreiaa/expense-importer/pkg/interceptors"
)

type staticStore struct{}

func (staticStore) ListCategories(context.Context) ([]categorization.Category, error) {
	return []categorization.Category{
		{ID: 1, Name: "Food"},
		{ID: 2, Name: "Transport"},
		{ID: 6, Name: "Other"},
	}, nil
}

type testServer struct {
	router http.Handler
	svc    *importservice.ImportService
	repo   *repository.MemoryImportRepository
	user   uuid.UUID
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := repository.NewMemoryImportRepository()
	svc := importservice.NewImportService(repo, categorization.NewService(staticStore{}, nil), logger)
	ts := &testServer{svc: svc, repo: repo, user: uuid.New()}

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				if id := req.Header.Get("X-Test-User"); id != "" {
					req = req.WithContext(interceptors.WithUserID(req.Context(), id))
				}
				next.ServeHTTP(w, req)
			})
		})
		NewImportHandler(svc, logger).Register(r)
	})
	ts.router = r
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", ts.user.String())
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const csvContent = "Date,Amount,Description,Category\n" +
	"2026-01-15,4.50,Coffee,food\n" +
	"2026-01-16,oops,Taxi,uber\n" +
	"2026-01-17,30,Books,\n"

type uploadResponse struct {
	Session struct {
		ID     uuid.UUID `json:"id"`
		Status string    `json:"status"`
	} `json:"session"`
	Structure struct {
		Headers          []string                 `json:"headers"`
		Delimiter        string                   `json:"delimiter"`
		RowCount         int                      `json:"rowCount"`
		SuggestedMapping repository.ColumnMapping `json:"suggestedMapping"`
	} `json:"structure"`
}

func (ts *testServer) upload(t *testing.T) uuid.UUID {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/import/upload", map[string]string{
		"fileName": "bank.csv", "csvContent": csvContent,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[uploadResponse](t, rec).Session.ID
}

func (ts *testServer) mapColumns(t *testing.T, id uuid.UUID) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, fmt.Sprintf("/api/import/session/%s/mapping", id), map[string]any{
		"columnMapping": map[string]string{"date": "Date", "amount": "Amount", "description": "Description", "category": "Category"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestImportHandler_Flow(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/import/session", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/import/upload", map[string]string{
		"fileName": "bank.csv", "csvContent": csvContent,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	up := decodeBody[uploadResponse](t, rec)
	assert.Equal(t, "upload", up.Session.Status)
	assert.Equal(t, ",", up.Structure.Delimiter)
	assert.Equal(t, 3, up.Structure.RowCount)
	assert.Equal(t, "Category", up.Structure.SuggestedMapping.Category)
	id := up.Session.ID

	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/import/session/%s/mapping", id), map[string]any{
		"columnMapping": up.Structure.SuggestedMapping,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	mapped := decodeBody[struct {
		ParsedRows   []repository.ParsedRow `json:"parsedRows"`
		ValidCount   int                    `json:"validCount"`
		InvalidCount int                    `json:"invalidCount"`
	}](t, rec)
	assert.Equal(t, 2, mapped.ValidCount)
	assert.Equal(t, 1, mapped.InvalidCount)
	require.Len(t, mapped.ParsedRows, 3)
	assert.Equal(t, "Food", *mapped.ParsedRows[0].Category)

	rec = ts.do(t, http.MethodGet, "/api/import/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	active := decodeBody[struct {
		Session    map[string]any         `json:"session"`
		ParsedRows []repository.ParsedRow `json:"parsedRows"`
	}](t, rec)
	assert.Equal(t, "preview", active.Session["status"])
	assert.NotContains(t, active.Session, "rawCsvData")
	assert.Len(t, active.ParsedRows, 3)

	rec = ts.do(t, http.MethodPatch, fmt.Sprintf("/api/import/session/%s/row", id),
		`{"rowIndex": 1, "updates": {"amount": 12.5}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	row := decodeBody[struct {
		Row repository.ParsedRow `json:"row"`
	}](t, rec).Row
	assert.True(t, row.IsValid())
	assert.Equal(t, 12.5, *row.Amount)

	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/import/session/%s/skip", id),
		map[string]any{"rowIndex": 2, "skip": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	skipped := decodeBody[struct {
		Row     repository.ParsedRow `json:"row"`
		Session struct {
			SkippedRowCount int `json:"skippedRowCount"`
		} `json:"session"`
	}](t, rec)
	assert.True(t, skipped.Row.Skipped)
	assert.Equal(t, 1, skipped.Session.SkippedRowCount)

	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/import/session/%s/confirm", id), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	confirmed := decodeBody[importservice.ConfirmResult](t, rec)
	assert.Equal(t, 2, confirmed.ImportedCount)
	assert.Equal(t, 1, confirmed.SkippedCount)
	assert.Len(t, ts.repo.Expenses(), 2)

	rec = ts.do(t, http.MethodGet, "/api/import/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decodeBody[[]repository.ImportHistory](t, rec)
	require.Len(t, history, 1)
	assert.Equal(t, "bank.csv", history[0].FileName)

	rec = ts.do(t, http.MethodGet, "/api/import/history/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "id,session_id,file_name,total_rows,imported_rows,skipped_rows,created_at", lines[0])
	assert.Contains(t, lines[1], "bank.csv,3,2,1")
}

func TestImportHandler_Errors(t *testing.T) {
	ts := newTestServer(t)
	id := ts.upload(t)

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantError  string
	}{
		{
			name:       "malformed json",
			method:     http.MethodPost,
			path:       "/api/import/upload",
			body:       `{"fileName":`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid JSON body",
		},
		{
			name:       "missing upload fields",
			method:     http.MethodPost,
			path:       "/api/import/upload",
			body:       map[string]string{},
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid input",
		},
		{
			name:       "header only csv",
			method:     http.MethodPost,
			path:       "/api/import/upload",
			body:       map[string]string{"fileName": "a.csv", "csvContent": "Date,Amount\n"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "mapping missing description",
			method:     http.MethodPost,
			path:       fmt.Sprintf("/api/import/session/%s/mapping", id),
			body:       map[string]any{"columnMapping": map[string]string{"date": "Date", "amount": "Amount"}},
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid input",
		},
		{
			name:       "row edit before mapping",
			method:     http.MethodPatch,
			path:       fmt.Sprintf("/api/import/session/%s/row", id),
			body:       map[string]any{"rowIndex": 0, "updates": map[string]string{"description": "x"}},
			wantStatus: http.StatusBadRequest,
			wantError:  importservice.ErrNoParsedRows.Error(),
		},
		{
			name:       "negative row index",
			method:     http.MethodPost,
			path:       fmt.Sprintf("/api/import/session/%s/skip", id),
			body:       map[string]any{"rowIndex": -1, "skip": true},
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid input",
		},
		{
			name:       "confirm before preview",
			method:     http.MethodPost,
			path:       fmt.Sprintf("/api/import/session/%s/confirm", id),
			wantStatus: http.StatusConflict,
		},
		{
			name:       "unknown session",
			method:     http.MethodGet,
			path:       fmt.Sprintf("/api/import/session/%s", uuid.New()),
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "bad session id",
			method:     http.MethodGet,
			path:       "/api/import/session/not-a-uuid/rows",
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid session id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, tt.method, tt.path, tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, decodeBody[ErrorResponse](t, rec).Error)
			}
		})
	}
}

func TestImportHandler_UnknownRow(t *testing.T) {
	ts := newTestServer(t)
	id := ts.upload(t)
	ts.mapColumns(t, id)

	rec := ts.do(t, http.MethodPost, fmt.Sprintf("/api/import/session/%s/skip", id),
		map[string]any{"rowIndex": 99, "skip": true})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImportHandler_CancelSession(t *testing.T) {
	ts := newTestServer(t)
	id := ts.upload(t)
	path := fmt.Sprintf("/api/import/session/%s", id)

	rec := ts.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", decodeBody[struct {
		Session struct {
			Status string `json:"status"`
		} `json:"session"`
	}](t, rec).Session.Status)
}

func TestImportHandler_UploadTooLarge(t *testing.T) {
	ts := newTestServer(t)
	ts.svc.WithMaxUploadBytes(32)

	rec := ts.do(t, http.MethodPost, "/api/import/upload", map[string]string{
		"fileName": "big.csv", "csvContent": csvContent,
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/import/upload", map[string]string{
		"fileName": "huge.csv", "csvContent": strings.Repeat("a,b\n", 2000),
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestImportHandler_Unauthenticated(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/import/history", nil)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAmountInput(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: `12.5`, want: "12.5"},
		{in: `"$1,200.00"`, want: "$1,200.00"},
		{in: `-3`, want: "-3"},
		{in: `1e400`, want: "1e400"},
		{in: `true`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var a amountInput
			err := json.Unmarshal([]byte(tt.in), &a)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(a))
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{importservice.ErrSessionNotFound, http.StatusNotFound},
		{importservice.ErrRowNotFound, http.StatusNotFound},
		{importservice.ErrNoActiveSession, http.StatusNotFound},
		{importservice.ErrSessionNotActive, http.StatusConflict},
		{importservice.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{importservice.ErrNoValidRows, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", importservice.ErrMalformedInput), http.StatusBadRequest},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
