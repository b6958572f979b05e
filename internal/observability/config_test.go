package observability

import (
	"testing"

	"github.com/monstrox/monstro/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDerivesComponentConfigs(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppName:     " ",
		Environment: "Production",
		AppVersion:  "1.4.0",
		Telemetry: config.TelemetryConfig{
			LogLevel:      "info",
			LogFormat:     "json",
			OtelEnabled:   true,
			OtlpEndpoint:  "otel:4317",
			OtlpProtocol:  "grpc",
			SamplingRatio: 0.25,
		},
	})

	assert.Equal(t, "monstro", cfg.ServiceName)
	assert.False(t, cfg.Debug())

	tc := cfg.tracing()
	assert.True(t, tc.Enabled)
	assert.Equal(t, "otel:4317", tc.ExporterEndpoint)
	assert.Equal(t, 0.25, tc.SamplingRatio)
	assert.Equal(t, "production", cfg.metrics().Environment)
	assert.False(t, cfg.logger().IncludeStackOnError)
}

func TestDebugInLocalEnvironments(t *testing.T) {
	assert.True(t, Config{Environment: "test"}.Debug())
	assert.True(t, Config{Environment: "production", Telemetry: config.TelemetryConfig{LogLevel: "DEBUG"}}.Debug())
}
