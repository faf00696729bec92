package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveLogged(level string, status int) string {
	var buf bytes.Buffer
	handler := middleware.RequestID(RequestLogger(NewLogger(level, &buf))(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}),
	))

	req := httptest.NewRequest(http.MethodGet, "/users", http.NoBody)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	return buf.String()
}

func TestRequestLogger_WritesThroughServiceLogger(t *testing.T) {
	line := serveLogged("info", http.StatusOK)

	require.NotEmpty(t, line)
	assert.Contains(t, line, "level=INFO")
	assert.Contains(t, line, "method=GET")
	assert.Contains(t, line, "path=/users")
	assert.Contains(t, line, "status=200")
	assert.Contains(t, line, "request_id=")
}

func TestRequestLogger_HonorsLevel(t *testing.T) {
	assert.Empty(t, serveLogged("error", http.StatusOK))

	line := serveLogged("error", http.StatusInternalServerError)
	assert.Contains(t, line, "level=ERROR")
	assert.Contains(t, line, "status=500")
}
