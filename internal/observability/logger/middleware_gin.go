package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/monstrox/monstro/internal/observability/context"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	headerRequestID     = "X-Request-Id"
	headerCorrelationID = "X-Correlation-Id"
)

// MiddlewareConfig controls request logging behavior.
type MiddlewareConfig struct {
	Debug           bool
	ErrorClassifier func(err error) (string, string)
}

type requestKind int

const (
	kindAPI requestKind = iota
	kindProbe
	kindStream
	kindWebhook
)

// GinMiddleware assigns request and correlation ids and writes one log line
// per request once the handler returns. Realtime streams log on disconnect.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := headerOr(c, headerRequestID, uuid.NewString)
		correlationID := headerOr(c, headerCorrelationID, func() string { return ulid.Make().String() })
		c.Set("request_id", requestID)
		c.Header(headerRequestID, requestID)
		c.Header(headerCorrelationID, correlationID)

		ctx := obscontext.WithRequestID(c.Request.Context(), requestID)
		ctx = obscontext.WithCorrelationID(ctx, correlationID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		kind := classify(c, route)
		status := c.Writer.Status()
		elapsed := time.Since(start)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		}
		if kind == kindStream {
			fields = append(fields, zap.Float64("connected_s", elapsed.Seconds()))
		} else {
			fields = append(fields,
				zap.Int64("duration_ms", elapsed.Milliseconds()),
				zap.Int64("bytes_in", max(c.Request.ContentLength, 0)),
			)
		}

		var errorType string
		if last := c.Errors.Last(); last != nil && cfg.ErrorClassifier != nil {
			var errorCode string
			errorType, errorCode = cfg.ErrorClassifier(last.Err)
			fields = append(fields, zap.String("error_type", errorType), zap.String("error_code", errorCode))
			if cfg.Debug && status >= http.StatusInternalServerError {
				fields = append(fields, zap.Error(last.Err))
			}
		}

		msg := "http_request"
		if kind == kindStream {
			msg = "realtime_stream_closed"
		}
		if ce := FromContext(c.Request.Context()).Check(levelFor(kind, status, errorType), msg); ce != nil {
			ce.Write(fields...)
		}
	}
}

func headerOr(c *gin.Context, name string, generate func() string) string {
	if v := strings.TrimSpace(c.GetHeader(name)); v != "" && len(v) <= 128 {
		return v
	}
	return generate()
}

func classify(c *gin.Context, route string) requestKind {
	switch {
	case route == "/health" || route == "/metrics":
		return kindProbe
	case strings.HasPrefix(c.Writer.Header().Get("Content-Type"), "text/event-stream"):
		return kindStream
	case strings.HasPrefix(route, "/api/webhooks/"):
		return kindWebhook
	default:
		return kindAPI
	}
}

func levelFor(kind requestKind, status int, errorType string) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case kind == kindProbe:
		return zapcore.DebugLevel
	case kind == kindWebhook && status >= http.StatusBadRequest:
		// Stripe retries these; a run of them means a bad signing secret.
		return zapcore.WarnLevel
	case status == http.StatusTooManyRequests:
		return zapcore.WarnLevel
	case errorType == "validation_error":
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}
