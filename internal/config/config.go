package config

// Config holds all application configuration loaded from environment variables.
// Struct tags follow github.com/caarlos0/env: `env:"VAR_NAME"` names the
// variable, `envDefault` supplies a fallback, `,required` makes it mandatory.
type Config struct {
	// Server configuration
	HTTPPort    int    `env:"HTTP_PORT" envDefault:"8000"`
	MetricsPort int    `env:"METRICS_PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"dev"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"engagement-engine"`

	// CORS configuration for the delivery collaborator
	CORSAllowOrigins []string `env:"CORS_ALLOW_ORIGINS" envSeparator:"," envDefault:"*"`

	// Redis configuration
	RedisHost         string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort         string `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword     string `env:"REDIS_PASSWORD"`
	RedisMaxRetries   int    `env:"REDIS_MAX_RETRIES" envDefault:"5"`
	RedisRetryDelayMs int    `env:"REDIS_RETRY_DELAY_MS" envDefault:"1000"`

	// Rule catalog configuration
	SeedPath            string `env:"SEED_PATH" envDefault:"config/rules.yaml"`
	CacheTTLSeconds     int    `env:"RULE_CACHE_TTL_SECONDS" envDefault:"60"`
	MinRulesPerCategory int    `env:"MIN_RULES_PER_CATEGORY" envDefault:"10"`

	// Action lifecycle configuration
	ActionExpiryMinutes int `env:"ACTION_EXPIRY_MINUTES" envDefault:"30"`

	// Telemetry configuration
	OtelEnabled     bool   `env:"OTEL_ENABLED" envDefault:"true"`
	ZipkinEndpoint  string `env:"ZIPKIN_ENDPOINT"`
	OtelServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"engagement-engine"`
}
