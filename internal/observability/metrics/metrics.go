package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

type instrument int

const (
	paymentEvents instrument = iota
	emailsSent
	pushSent
	chatbotRequests
	chatbotTools
	achievementsCompleted
	rateLimitDenied
)

var instrumentNames = map[instrument]string{
	paymentEvents:         "monstro_payment_events_total",
	emailsSent:            "monstro_emails_sent_total",
	pushSent:              "monstro_push_notifications_total",
	chatbotRequests:       "monstro_chatbot_requests_total",
	chatbotTools:          "monstro_chatbot_tool_calls_total",
	achievementsCompleted: "monstro_achievements_completed_total",
	rateLimitDenied:       "monstro_rate_limit_denied_total",
}

// Metrics holds the OTel counters for business events. A nil *Metrics
// records nothing.
type Metrics struct {
	counters map[instrument]metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New creates one counter per business event on the service meter.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	scope := strings.TrimSpace(cfg.ServiceName)
	if scope == "" {
		scope = "monstro"
	}
	meter := provider.Meter(scope)

	m := &Metrics{counters: make(map[instrument]metric.Int64Counter, len(instrumentNames))}
	for inst, name := range instrumentNames {
		counter, err := meter.Int64Counter(name)
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", name, err)
		}
		m.counters[inst] = counter
	}
	return m, nil
}

// NewNoop returns instruments backed by a no-op provider, for tests and tools.
func NewNoop() *Metrics {
	m, _ := New(Config{ServiceName: "monstro"}, noop.NewMeterProvider())
	return m
}

// add bumps inst by n. labels are key, value pairs.
func (m *Metrics) add(ctx context.Context, inst instrument, n int64, labels ...string) {
	if m == nil || n <= 0 {
		return
	}
	counter, ok := m.counters[inst]
	if !ok {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(labels)/2)
	for i := 0; i+1 < len(labels); i += 2 {
		attrs = append(attrs, attribute.String(labels[i], strings.TrimSpace(labels[i+1])))
	}
	counter.Add(ctx, n, metric.WithAttributes(FilterAttributes(attrs...)...))
}

func (m *Metrics) RecordPaymentEvent(ctx context.Context, provider, eventType string) {
	m.add(ctx, paymentEvents, 1, "provider", provider, "event_type", eventType)
}

// RecordEmailSent counts dispatch attempts by template and outcome.
func (m *Metrics) RecordEmailSent(ctx context.Context, template, provider, status string) {
	m.add(ctx, emailsSent, 1, "template", template, "provider", provider, "status", status)
}

func (m *Metrics) RecordPushSent(ctx context.Context, channel string, count int) {
	m.add(ctx, pushSent, int64(count), "channel", channel)
}

// RecordChatbotRequest counts LLM round trips by outcome.
func (m *Metrics) RecordChatbotRequest(ctx context.Context, model, status string) {
	m.add(ctx, chatbotRequests, 1, "model", model, "status", status)
}

func (m *Metrics) RecordChatbotTool(ctx context.Context, tool string) {
	m.add(ctx, chatbotTools, 1, "tool", tool)
}

func (m *Metrics) RecordAchievementCompleted(ctx context.Context, trigger string) {
	m.add(ctx, achievementsCompleted, 1, "trigger", trigger)
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	m.add(ctx, rateLimitDenied, 1, "endpoint", endpoint, "reason", reason)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":    {},
	"status_code": {},
	"provider":    {},
	"event_type":  {},
	"template":    {},
	"status":      {},
	"channel":     {},
	"model":       {},
	"tool":        {},
	"trigger":     {},
	"reason":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
