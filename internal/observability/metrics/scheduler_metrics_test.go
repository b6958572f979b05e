package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/monstrox/monstro/internal/authorization"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestClassifyJobError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want JobError
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: JobError{KindDeadline, ReasonDeadlineExceeded, true}},
		{name: "forbidden", err: authorization.ErrForbidden, want: JobError{KindAuthorization, ReasonForbidden, false}},
		{name: "lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: JobError{KindDatabase, ReasonLockTimeout, true}},
		{name: "serialization", err: fmt.Errorf("renew: %w", &pgconn.PgError{Code: "40001"}), want: JobError{KindDatabase, ReasonSerialization, true}},
		{name: "duplicate", err: gorm.ErrDuplicatedKey, want: JobError{KindDatabase, ReasonUniqueViolation, true}},
		{name: "not_found", err: gorm.ErrRecordNotFound, want: JobError{KindBusinessRule, ReasonUnknown, false}},
		{name: "plain", err: errors.New("invalid_plan"), want: JobError{KindBusinessRule, ReasonUnknown, false}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyJobError(tc.err))
		})
	}
}

func TestAddBatchProcessed(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewSchedulerMetrics(registry, Config{ServiceName: "monstro", Environment: "test"})

	m.AddBatchProcessed("subscription_recovery", "subscriptions", 3)
	m.AddBatchProcessed("subscription_recovery", "subscriptions", 0)

	got := testutil.ToFloat64(m.processed.WithLabelValues("subscription_recovery", "subscriptions"))
	assert.Equal(t, float64(3), got)
}

func TestQueueMetricsCarryConstLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newQueueMetrics(registry, Config{ServiceName: "monstro-worker", Environment: "test"})

	m.IncEnqueued("email", "email:send")
	m.ObserveProcessed("email", "email:send", TaskOutcomeRetry, 20*time.Millisecond)

	families, err := registry.Gather()
	require.NoError(t, err)

	var found *dto.MetricFamily
	for _, family := range families {
		if family.GetName() == "monstro_queue_tasks_processed_total" {
			found = family
		}
	}
	require.NotNil(t, found)
	require.Len(t, found.GetMetric(), 1)

	labels := map[string]string{}
	for _, pair := range found.GetMetric()[0].GetLabel() {
		labels[pair.GetName()] = pair.GetValue()
	}
	assert.Equal(t, "monstro-worker", labels["service"])
	assert.Equal(t, "retry", labels["outcome"])
	assert.Equal(t, float64(1), found.GetMetric()[0].GetCounter().GetValue())
}

func TestHTTPMiddlewareRecordsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	m := newHTTPMetrics(registry, Config{ServiceName: "monstro", Environment: "test"})

	r := gin.New()
	r.Use(GinMiddleware(m))
	r.GET("/api/protected/me", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/protected/me", nil))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/api/protected/me", "204")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "unmatched", "404")))
}
