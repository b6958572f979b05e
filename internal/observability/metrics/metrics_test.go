package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("template", "welcome"),
		attribute.String("member_id", "456"),
		attribute.String("status", "sent"),
	)
	keys := make([]attribute.Key, 0, len(attrs))
	for _, attr := range attrs {
		keys = append(keys, attr.Key)
	}
	assert.ElementsMatch(t, []attribute.Key{"template", "status"}, keys)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordPaymentEvent(ctx, "stripe", "payment_succeeded")
		m.RecordEmailSent(ctx, "welcome", "sendgrid", "sent")
		m.RecordChatbotRequest(ctx, "gpt-4o-mini", "ok")
	})
}

func TestNoopInstruments(t *testing.T) {
	m := NewNoop()
	if assert.NotNil(t, m) {
		m.RecordChatbotTool(context.Background(), "get_member_points")
		m.RecordPushSent(context.Background(), "expo", 2)
	}
}

func TestRecordedCountersReachTheReader(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := New(Config{ServiceName: "monstro-test"}, provider)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordPushSent(ctx, "expo", 3)
	m.RecordPushSent(ctx, "expo", 0)
	m.RecordRateLimitDenied(ctx, " login ", "bucket_empty")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	sums := map[string]metricdata.Sum[int64]{}
	for _, rec := range rm.ScopeMetrics[0].Metrics {
		if sum, ok := rec.Data.(metricdata.Sum[int64]); ok {
			sums[rec.Name] = sum
		}
	}

	push := sums["monstro_push_notifications_total"]
	require.Len(t, push.DataPoints, 1)
	assert.Equal(t, int64(3), push.DataPoints[0].Value)

	denied := sums["monstro_rate_limit_denied_total"]
	require.Len(t, denied.DataPoints, 1)
	endpoint, ok := denied.DataPoints[0].Attributes.Value("endpoint")
	require.True(t, ok)
	assert.Equal(t, "login", endpoint.AsString())
}
