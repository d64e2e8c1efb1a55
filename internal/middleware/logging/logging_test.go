package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/splitledger/internal/middleware/realip"
)

func testHandler(status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	})
}

func serve(t *testing.T, h http.Handler, req *http.Request, level slog.Level) map[string]any {
	t.Helper()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: level}))
	Middleware(logger)(h).ServeHTTP(httptest.NewRecorder(), req)

	if buf.Len() == 0 {
		return nil
	}
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestMiddleware_LogsRequests(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/splits", nil)
	req.RemoteAddr = "192.168.1.100:12345"

	entry := serve(t, testHandler(http.StatusOK, "hello"), req, slog.LevelInfo)
	require.NotNil(t, entry)

	assert.Equal(t, "request", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/api/v1/splits", entry["path"])
	assert.Equal(t, float64(http.StatusOK), entry["status"])
	assert.Equal(t, float64(5), entry["bytes"])
	assert.Contains(t, entry, "duration")
	assert.Equal(t, "192.168.1.100", entry["client_ip"])
	assert.NotContains(t, entry, "upgraded")
}

func TestMiddleware_LevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusCreated, "INFO"},
		{http.StatusNotFound, "WARN"},
		{http.StatusConflict, "WARN"},
		{http.StatusServiceUnavailable, "ERROR"},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			entry := serve(t, testHandler(tt.status, ""), httptest.NewRequest("POST", "/api/v1/splits", nil), slog.LevelInfo)
			require.NotNil(t, entry)
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, float64(tt.status), entry["status"])
		})
	}
}

func TestMiddleware_HealthChecksAreQuiet(t *testing.T) {
	entry := serve(t, testHandler(http.StatusOK, "ok"), httptest.NewRequest("GET", "/healthz", nil), slog.LevelInfo)
	assert.Nil(t, entry)

	entry = serve(t, testHandler(http.StatusOK, "ok"), httptest.NewRequest("GET", "/healthz", nil), slog.LevelDebug)
	require.NotNil(t, entry)
	assert.Equal(t, "DEBUG", entry["level"])

	// a failing health check is still visible
	entry = serve(t, testHandler(http.StatusServiceUnavailable, ""), httptest.NewRequest("GET", "/readyz", nil), slog.LevelInfo)
	require.NotNil(t, entry)
	assert.Equal(t, "ERROR", entry["level"])
}

func TestMiddleware_IncludesRequestIDAndRealIP(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := middleware.RequestID(
		realip.Middleware(realip.Config{TrustProxy: true, TrustedProxies: []string{"10.0.0.0/8"}})(
			Middleware(logger)(testHandler(http.StatusOK, "")),
		),
	)

	req := httptest.NewRequest("GET", "/api/v1/dao", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.50")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.NotEmpty(t, entry["request_id"])
	assert.Equal(t, "203.0.113.50", entry["client_ip"])
}

func TestMiddleware_DefaultStatus200(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	entry := serve(t, h, httptest.NewRequest("GET", "/api/v1/plans", nil), slog.LevelInfo)
	require.NotNil(t, entry)
	assert.Equal(t, float64(http.StatusOK), entry["status"])
	assert.Equal(t, float64(0), entry["bytes"])
}

// hijackRecorder is a ResponseRecorder that supports Hijack
type hijackRecorder struct {
	*httptest.ResponseRecorder
	conn net.Conn
}

func (h *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return h.conn, bufio.NewReadWriter(bufio.NewReader(h.conn), bufio.NewWriter(h.conn)), nil
}

func TestResponseWriter_Hijack(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		_, _, err := hj.Hijack()
		require.NoError(t, err)
	})

	rec := &hijackRecorder{ResponseRecorder: httptest.NewRecorder(), conn: server}
	Middleware(logger)(h).ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/events", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, float64(http.StatusSwitchingProtocols), entry["status"])
	assert.Equal(t, true, entry["upgraded"])
}

func TestResponseWriter_HijackUnsupported(t *testing.T) {
	rw := &responseWriter{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	_, _, err := rw.Hijack()
	assert.Error(t, err)
	assert.False(t, rw.hijacked)
}

func TestResponseWriter_WriteHeaderOnce(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	rw.WriteHeader(http.StatusAccepted)
	rw.WriteHeader(http.StatusTeapot)
	n, err := rw.Write([]byte("abc"))
	require.NoError(t, err)

	assert.Equal(t, 3, n)
	assert.Equal(t, http.StatusAccepted, rw.status)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Same(t, rec, rw.Unwrap())
}
