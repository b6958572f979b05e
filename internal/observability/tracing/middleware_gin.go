package tracing

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	obscontext "github.com/monstrox/monstro/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// GinMiddleware opens a server span per request, named after the matched
// route. Probes are not traced. Actor and location are attached once the
// auth middleware has run.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("monstro/http")
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "/health" || route == "/metrics" {
			c.Next()
			return
		}
		if route == "" {
			route = "unknown"
		}

		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", c.Request.Method),
				attribute.String("http.route", route),
			),
		)
		defer span.End()
		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			span.SetAttributes(attribute.String("request_id", requestID))
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		attrs := []attribute.KeyValue{attribute.Int("http.status_code", status)}
		reqCtx := c.Request.Context()
		if locationID := obscontext.LocationIDFromContext(reqCtx); locationID != "" {
			attrs = append(attrs, attribute.String("monstro.location_id", locationID))
		}
		if actorType, _ := obscontext.ActorFromContext(reqCtx); actorType != "" {
			attrs = append(attrs, attribute.String("monstro.actor_type", actorType))
		}
		span.SetAttributes(SafeAttributes(attrs...)...)

		if status >= http.StatusInternalServerError {
			if last := c.Errors.Last(); last != nil {
				if safe := SafeError(last.Err); safe != nil {
					span.RecordError(safe)
				}
			}
			span.SetStatus(codes.Error, fmt.Sprintf("status %d", status))
		}
	}
}
