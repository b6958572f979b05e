package context

import (
	"context"
	"strings"
)

type requestIDKey struct{}
type locationIDKey struct{}
type actorKey struct{}
type correlationIDKey struct{}

type actor struct {
	kind string
	id   string
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey{})
}

func WithLocationID(ctx context.Context, locationID string) context.Context {
	return context.WithValue(ctx, locationIDKey{}, strings.TrimSpace(locationID))
}

func LocationIDFromContext(ctx context.Context) string {
	return stringValue(ctx, locationIDKey{})
}

// WithCorrelationID tags work that crosses the HTTP/queue boundary.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, strings.TrimSpace(correlationID))
}

func CorrelationIDFromContext(ctx context.Context) string {
	return stringValue(ctx, correlationIDKey{})
}

func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor{
		kind: strings.TrimSpace(actorType),
		id:   strings.TrimSpace(actorID),
	})
}

func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	if value, ok := ctx.Value(actorKey{}).(actor); ok {
		return value.kind, value.id
	}
	return "", ""
}

func stringValue(ctx context.Context, key any) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(key).(string); ok {
		return value
	}
	return ""
}
