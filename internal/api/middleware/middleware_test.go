package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/team-calendar/backend/internal/apperr"
)

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{apperr.NotFound("event", "e1"), http.StatusNotFound, ErrNotFound},
		{apperr.Validation("bad"), http.StatusBadRequest, ErrValidation},
		{apperr.InvalidRecurrence("FREQ=NEVER", nil), http.StatusBadRequest, ErrInvalidRecurrence},
		{apperr.Conflict("dup"), http.StatusConflict, ErrConflict},
		{apperr.InvalidIdentity("e1"), http.StatusUnprocessableEntity, ErrInvalidIdentity},
		{fmt.Errorf("wrapped: %w", apperr.ErrNotFound), http.StatusNotFound, ErrNotFound},
		{errors.New("disk on fire"), http.StatusInternalServerError, ErrInternalError},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		WriteServiceError(rec, tt.err)

		assert.Equal(t, tt.status, rec.Code, tt.err.Error())
		var body ErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, tt.code, body.Error)
		if tt.status == http.StatusInternalServerError {
			assert.NotContains(t, body.Message, "disk")
		}
	}
}

func TestErrorRecovery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := ErrorRecovery(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestLoggingCapturesStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/teapot", nil))

	line := buf.String()
	assert.Contains(t, line, "status=418")
	assert.Contains(t, line, "size=15")
	assert.Contains(t, line, "path=/api/teapot")
}
