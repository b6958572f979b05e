package logger

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedEngine(t *testing.T) (*gin.Engine, *observer.ObservedLogs) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{
		ErrorClassifier: func(err error) (string, string) { return "validation_error", err.Error() },
	}))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/api/webhooks/stripe", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.POST("/api/auth/login", func(c *gin.Context) { c.Status(http.StatusTooManyRequests) })
	r.GET("/api/protected/realtime/:channel", func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Status(http.StatusOK)
	})
	r.POST("/api/protected/me", func(c *gin.Context) {
		_ = c.Error(errors.New("invalid_email"))
		c.Status(http.StatusBadRequest)
	})
	return r, logs
}

func serve(r *gin.Engine, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddlewareEchoesRequestIDs(t *testing.T) {
	r, logs := newObservedEngine(t)

	w := serve(r, http.MethodGet, "/health", http.Header{"X-Request-Id": {"req-42"}})
	assert.Equal(t, "req-42", w.Header().Get("X-Request-Id"))
	assert.NotEmpty(t, w.Header().Get("X-Correlation-Id"))

	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "req-42", entries[0].ContextMap()["request_id"])
}

func TestMiddlewareLevels(t *testing.T) {
	r, logs := newObservedEngine(t)

	serve(r, http.MethodPost, "/api/webhooks/stripe", nil)
	serve(r, http.MethodPost, "/api/auth/login", nil)
	serve(r, http.MethodPost, "/api/protected/me", nil)

	all := logs.All()
	require.Len(t, all, 3)
	assert.Equal(t, zapcore.WarnLevel, all[0].Level)
	assert.Equal(t, zapcore.WarnLevel, all[1].Level)
	assert.Equal(t, zapcore.DebugLevel, all[2].Level)
	assert.Equal(t, "invalid_email", all[2].ContextMap()["error_code"])
}

func TestMiddlewareLogsStreamsOnClose(t *testing.T) {
	r, logs := newObservedEngine(t)

	serve(r, http.MethodGet, "/api/protected/realtime/chat:1", nil)

	entries := logs.FilterMessage("realtime_stream_closed").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap(), "connected_s")
	assert.NotContains(t, entries[0].ContextMap(), "duration_ms")
}
