package logger

import (
	"context"
	"fmt"
	"strings"
	"time"

	obscontext "github.com/monstrox/monstro/internal/observability/context"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config configures the zap logger.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	Level       string
	Format      string
	Debug       bool

	SamplingInitial     int
	SamplingThereafter  int
	SamplingWindow      time.Duration
	IncludeCaller       bool
	IncludeStackOnError bool
}

// New builds the process logger. Debug mode with console format gives the
// colored development encoder and turns sampling off.
func New(lc fx.Lifecycle, cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(orDefault(cfg.Level, "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	console := strings.EqualFold(strings.TrimSpace(cfg.Format), "console")
	zapCfg := zap.NewProductionConfig()
	if cfg.Debug && console {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.Encoding = "json"
	if console {
		zapCfg.Encoding = "console"
	}
	zapCfg.Sampling = nil
	zapCfg.DisableCaller = !cfg.IncludeCaller
	zapCfg.DisableStacktrace = !cfg.IncludeStackOnError
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.OutputPaths = []string{"stdout"}
	zapCfg.ErrorOutputPaths = []string{"stderr"}
	zapCfg.InitialFields = map[string]any{
		"service": orDefault(cfg.ServiceName, "monstro"),
		"env":     strings.TrimSpace(cfg.Environment),
		"version": strings.TrimSpace(cfg.Version),
	}

	var opts []zap.Option
	if !cfg.Debug {
		opts = append(opts, zap.WrapCore(sampler(cfg)))
	}

	log, err := zapCfg.Build(opts...)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(log)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				_ = log.Sync()
				return nil
			},
		})
	}
	return log, nil
}

func sampler(cfg Config) func(zapcore.Core) zapcore.Core {
	initial, thereafter, window := cfg.SamplingInitial, cfg.SamplingThereafter, cfg.SamplingWindow
	if initial <= 0 {
		initial = 100
	}
	if thereafter <= 0 {
		thereafter = 100
	}
	if window <= 0 {
		window = time.Second
	}
	return func(core zapcore.Core) zapcore.Core {
		return zapcore.NewSamplerWithOptions(core, window, initial, thereafter)
	}
}

// FromContext returns the global logger with request-scoped fields.
func FromContext(ctx context.Context) *zap.Logger {
	return WithContext(ctx, zap.L())
}

// WithContext adds whichever of request id, correlation id, location,
// actor and trace ids the context carries. Missing values are omitted.
func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if ctx == nil || base == nil {
		return base
	}

	fields := make([]zap.Field, 0, 7)
	add := func(key, value string) {
		if value != "" {
			fields = append(fields, zap.String(key, value))
		}
	}
	add("request_id", obscontext.RequestIDFromContext(ctx))
	add("correlation_id", obscontext.CorrelationIDFromContext(ctx))
	add("location_id", obscontext.LocationIDFromContext(ctx))
	actorType, actorID := obscontext.ActorFromContext(ctx)
	add("actor_type", actorType)
	add("actor_id", actorID)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		add("trace_id", sc.TraceID().String())
		add("span_id", sc.SpanID().String())
	}

	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

func orDefault(value, def string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return def
}
