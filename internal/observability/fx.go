package observability

import (
	"github.com/monstrox/monstro/internal/observability/logger"
	"github.com/monstrox/monstro/internal/observability/metrics"
	"github.com/monstrox/monstro/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

// Module provides the logger, tracer provider, OTel meters and the
// Prometheus collectors for HTTP, queue and scheduler.
var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		Config.logger,
		Config.tracing,
		Config.metrics,
		Config.push,
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
		func(cfg metrics.Config) *metrics.SchedulerMetrics { return metrics.SchedulerWithConfig(cfg) },
		func(cfg metrics.Config) *metrics.QueueMetrics { return metrics.QueueWithConfig(cfg) },
	),
	fx.Invoke(func(*sdktrace.TracerProvider, *metrics.QueueMetrics) {}),
)
