package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/riazm868/pharmacy-rx-manager-sub000/pkg/config"
	"github.com/riazm868/pharmacy-rx-manager-sub000/pkg/validator"
)

const defaultStateSecret = "change-this-to-a-secure-state-secret"

// Storage backends for synced records.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Credential stores.
const (
	TokenStoreMemory = "memory"
	TokenStoreRedis  = "redis"
)

// Config holds all configuration for the POS integration service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort           int      `env:"POS_HTTP_PORT" envDefault:"8080"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Retail platform OAuth application
	ClientID        string        `env:"POS_CLIENT_ID" validate:"required"`
	ClientSecret    string        `env:"POS_CLIENT_SECRET" validate:"required"`
	RedirectURI     string        `env:"POS_REDIRECT_URI" validate:"required,url"`
	PlatformDomain  string        `env:"POS_PLATFORM_DOMAIN" envDefault:"retail.lightspeed.app" validate:"required,hostname"`
	SuccessRedirect string        `env:"POS_SUCCESS_REDIRECT" envDefault:"/"`
	StateSecret     string        `env:"POS_STATE_SECRET" envDefault:"change-this-to-a-secure-state-secret"`
	StateTTL        time.Duration `env:"POS_STATE_TTL" envDefault:"10m"`
	CookieSecure    bool          `env:"POS_COOKIE_SECURE" envDefault:"true"`

	// Sale parking
	RegisterName string `env:"POS_REGISTER_NAME" envDefault:"Main Register" validate:"required"`
	UserName     string `env:"POS_USER_NAME" validate:"required"`

	// Outbound API behaviour
	SyncPageSize      int           `env:"POS_SYNC_PAGE_SIZE" envDefault:"100" validate:"min=1,max=1000"`
	RequestTimeout    time.Duration `env:"POS_REQUEST_TIMEOUT" envDefault:"60s"`
	RequestsPerSecond float64       `env:"POS_REQUESTS_PER_SECOND" envDefault:"5"`
	RequestBurst      int           `env:"POS_REQUEST_BURST" envDefault:"5"`

	// Local store
	StoreBackend string `env:"STORE_BACKEND" envDefault:"sqlite" validate:"oneof=sqlite postgres"`
	SQLitePath   string `env:"SQLITE_PATH" envDefault:"pharmacy.db"`

	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"pharmacy"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"pharmacy_secret"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"pharmacy"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	DBMaxConns           int32 `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns           int32 `env:"DB_MIN_CONNS" envDefault:"1"`
	SlowQueryThresholdMs int   `env:"DB_SLOW_QUERY_THRESHOLD_MS" envDefault:"200"`

	// Credential store
	TokenStore    string `env:"TOKEN_STORE" envDefault:"memory" validate:"oneof=memory redis"`
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisKey      string `env:"REDIS_CREDENTIAL_KEY" envDefault:"pos:credential"`

	// Kafka; events are disabled when no brokers are set.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELInsecure   bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load pos config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if err := validator.Validate(c); err != nil {
		return fmt.Errorf("invalid pos config: %w", err)
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.StateTTL <= 0 {
		return fmt.Errorf("POS_STATE_TTL must be positive, got %s", c.StateTTL)
	}

	// Outside development the state secret must be set explicitly and strong.
	if c.Environment != "development" {
		if c.StateSecret == defaultStateSecret {
			return fmt.Errorf("POS_STATE_SECRET must be explicitly set via environment variable in %q mode", c.Environment)
		}
		if len(c.StateSecret) < 32 {
			return fmt.Errorf("POS_STATE_SECRET must be at least 32 characters long, got %d", len(c.StateSecret))
		}
	}
	return nil
}

// EventsEnabled reports whether Kafka brokers are configured.
func (c *Config) EventsEnabled() bool {
	return len(c.KafkaBrokers) > 0
}
