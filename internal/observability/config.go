package observability

import (
	"strings"

	"github.com/monstrox/monstro/internal/config"
	"github.com/monstrox/monstro/internal/observability/logger"
	"github.com/monstrox/monstro/internal/observability/metrics"
	"github.com/monstrox/monstro/internal/observability/tracing"
)

// Config is the slice of application config the telemetry stack reads.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	Telemetry   config.TelemetryConfig
}

func LoadConfig(cfg config.Config) Config {
	name := strings.TrimSpace(cfg.AppName)
	if name == "" {
		name = "monstro"
	}
	return Config{
		ServiceName: name,
		Environment: strings.ToLower(strings.TrimSpace(cfg.Environment)),
		Version:     strings.TrimSpace(cfg.AppVersion),
		Telemetry:   cfg.Telemetry,
	}
}

// Debug is true at debug level and in every non-deployed environment.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.Telemetry.LogLevel), "debug") {
		return true
	}
	switch c.Environment {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func (c Config) logger() logger.Config {
	return logger.Config{
		ServiceName:         c.ServiceName,
		Environment:         c.Environment,
		Version:             c.Version,
		Level:               c.Telemetry.LogLevel,
		Format:              c.Telemetry.LogFormat,
		Debug:               c.Debug(),
		IncludeCaller:       true,
		IncludeStackOnError: c.Debug(),
	}
}

func (c Config) tracing() tracing.Config {
	return tracing.Config{
		Enabled:          c.Telemetry.OtelEnabled,
		ServiceName:      c.ServiceName,
		ServiceVersion:   c.Version,
		Environment:      c.Environment,
		ExporterEndpoint: c.Telemetry.OtlpEndpoint,
		ExporterProtocol: c.Telemetry.OtlpProtocol,
		SamplingRatio:    c.Telemetry.SamplingRatio,
	}
}

func (c Config) metrics() metrics.Config {
	return metrics.Config{
		Enabled:          c.Telemetry.OtelEnabled,
		ExporterEndpoint: c.Telemetry.OtlpEndpoint,
		ExporterProtocol: c.Telemetry.OtlpProtocol,
		ServiceName:      c.ServiceName,
		Environment:      c.Environment,
	}
}

func (c Config) push() metrics.PushConfig {
	return metrics.PushConfig{
		Exporter:    c.Telemetry.MetricsPushExporter,
		Endpoint:    c.Telemetry.MetricsPushEndpoint,
		Token:       c.Telemetry.MetricsPushToken,
		Interval:    c.Telemetry.MetricsPushInterval,
		ServiceName: c.ServiceName + "-worker",
		Environment: c.Environment,
	}
}
