package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewJobsConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	AppURL      string

	Telemetry TelemetryConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis        RedisConfig
	Auth         AuthConfig
	Stripe       StripeConfig
	Email        EmailConfig
	Novu         NovuConfig
	Expo         ExpoConfig
	OpenAI       OpenAIConfig
	Support      SupportConfig
	Subscription SubscriptionConfig
	Class        ClassConfig
}

// TelemetryConfig covers logging and OpenTelemetry export. The OTEL_*
// variables follow the standard exporter names.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OtlpEndpoint  string
	OtlpProtocol  string
	SamplingRatio float64

	// The worker has no /metrics listener; when set it pushes its
	// collectors instead ("remote_write" or "pushgateway").
	MetricsPushExporter string
	MetricsPushEndpoint string
	MetricsPushToken    string
	MetricsPushInterval time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TLS      bool
}

type AuthConfig struct {
	JWTSecret       string
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	ResetTokenTTL   time.Duration
	ServiceTokenTTL time.Duration
	LoginRate       float64
	LoginBurst      int
}

type StripeConfig struct {
	SecretKey        string
	WebhookSecret    string
	BaseURL          string
	WebhookTolerance time.Duration
}

type EmailConfig struct {
	Provider       string
	SendGridAPIKey string
	SendGridURL    string
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	FromAddress    string
	FromName       string
}

type NovuConfig struct {
	APIKey  string
	BaseURL string
}

type ExpoConfig struct {
	AccessToken string
	BaseURL     string
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type SupportConfig struct {
	SessionTTL     time.Duration
	HistorySize    int
	MaxToolRounds  int
	MessageRate    float64
	MessageBurst   int
	EscalationFlow string
}

type SubscriptionConfig struct {
	RenewalGrace      time.Duration
	UncollectibleDays int
	InvoiceDueDays    int
}

type ClassConfig struct {
	ReminderLead time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "monstro"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		AppURL:      strings.TrimRight(getenv("APP_URL", "https://app.monstro-x.com"), "/"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "monstro"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),

		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(getenv("LOG_LEVEL", "info")),
			LogFormat:     strings.ToLower(getenv("LOG_FORMAT", "json")),
			OtelEnabled:   getenvBool("OTEL_ENABLED", false),
			OtlpEndpoint:  getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			OtlpProtocol:  strings.ToLower(getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),

			MetricsPushExporter: strings.ToLower(getenv("METRICS_PUSH_EXPORTER", "")),
			MetricsPushEndpoint: getenv("METRICS_PUSH_ENDPOINT", ""),
			MetricsPushToken:    getenv("METRICS_PUSH_TOKEN", ""),
			MetricsPushInterval: getenvDuration("METRICS_PUSH_INTERVAL", 30*time.Second),
		},

		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
			TLS:      getenvBool("REDIS_TLS", false),
		},
		Auth: AuthConfig{
			JWTSecret:       strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
			Issuer:          getenv("AUTH_JWT_ISSUER", "monstro"),
			AccessTokenTTL:  getenvDuration("AUTH_ACCESS_TOKEN_TTL", 15*time.Minute),
			RefreshTokenTTL: getenvDuration("AUTH_REFRESH_TOKEN_TTL", 30*24*time.Hour),
			ResetTokenTTL:   getenvDuration("AUTH_RESET_TOKEN_TTL", time.Hour),
			ServiceTokenTTL: getenvDuration("AUTH_SERVICE_TOKEN_TTL", 24*time.Hour),
			LoginRate:       getenvFloat("AUTH_LOGIN_RATE", 0.2),
			LoginBurst:      getenvInt("AUTH_LOGIN_BURST", 10),
		},
		Stripe: StripeConfig{
			SecretKey:        strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret:    strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			BaseURL:          getenv("STRIPE_BASE_URL", "https://api.stripe.com"),
			WebhookTolerance: getenvDuration("STRIPE_WEBHOOK_TOLERANCE", 5*time.Minute),
		},
		Email: EmailConfig{
			Provider:       strings.ToLower(getenv("EMAIL_PROVIDER", "noop")),
			SendGridAPIKey: strings.TrimSpace(getenv("SENDGRID_API_KEY", "")),
			SendGridURL:    getenv("SENDGRID_BASE_URL", "https://api.sendgrid.com"),
			SMTPHost:       getenv("SMTP_HOST", "localhost"),
			SMTPPort:       getenvInt("SMTP_PORT", 1025),
			SMTPUsername:   getenv("SMTP_USERNAME", ""),
			SMTPPassword:   getenv("SMTP_PASSWORD", ""),
			FromAddress:    getenv("EMAIL_FROM_ADDRESS", "no-reply@monstro-x.com"),
			FromName:       getenv("EMAIL_FROM_NAME", "Monstro"),
		},
		Novu: NovuConfig{
			APIKey:  strings.TrimSpace(getenv("NOVU_API_KEY", "")),
			BaseURL: getenv("NOVU_BASE_URL", "https://api.novu.co"),
		},
		Expo: ExpoConfig{
			AccessToken: strings.TrimSpace(getenv("EXPO_ACCESS_TOKEN", "")),
			BaseURL:     getenv("EXPO_BASE_URL", "https://exp.host"),
		},
		OpenAI: OpenAIConfig{
			APIKey:  strings.TrimSpace(getenv("OPENAI_API_KEY", "")),
			BaseURL: getenv("OPENAI_BASE_URL", "https://api.openai.com"),
			Model:   getenv("OPENAI_MODEL", "gpt-4o-mini"),
			Timeout: getenvDuration("OPENAI_TIMEOUT", 30*time.Second),
		},
		Support: SupportConfig{
			SessionTTL:     getenvDuration("SUPPORT_SESSION_TTL", 24*time.Hour),
			HistorySize:    getenvInt("SUPPORT_HISTORY_SIZE", 20),
			MaxToolRounds:  getenvInt("SUPPORT_MAX_TOOL_ROUNDS", 3),
			MessageRate:    getenvFloat("SUPPORT_MESSAGE_RATE", 0.5),
			MessageBurst:   getenvInt("SUPPORT_MESSAGE_BURST", 5),
			EscalationFlow: getenv("SUPPORT_ESCALATION_WORKFLOW", "support-escalation"),
		},
		Subscription: SubscriptionConfig{
			RenewalGrace:      getenvDuration("SUBSCRIPTION_RENEWAL_GRACE", 15*time.Minute),
			UncollectibleDays: getenvInt("SUBSCRIPTION_UNCOLLECTIBLE_DAYS", 14),
			InvoiceDueDays:    getenvInt("SUBSCRIPTION_INVOICE_DUE_DAYS", 3),
		},
		Class: ClassConfig{
			ReminderLead: getenvDuration("CLASS_REMINDER_LEAD", time.Hour),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
