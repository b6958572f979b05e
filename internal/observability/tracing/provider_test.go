package tracing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsSensitiveKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/protected/me"),
		attribute.String("user.email", "a@b.c"),
		attribute.String("http.authorization", "Bearer x"),
		attribute.Int("http.status_code", 200),
	)

	keys := make([]string, 0, len(attrs))
	for _, attr := range attrs {
		keys = append(keys, string(attr.Key))
	}
	assert.Equal(t, []string{"http.route", "http.status_code"}, keys)
}

func TestSafeErrorKeepsFirstLine(t *testing.T) {
	assert.Nil(t, SafeError(nil))
	assert.EqualError(t, SafeError(errors.New("db failed\nSELECT * FROM members")), "db failed")
}
