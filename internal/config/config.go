package config

import (
	"errors"
	"fmt"
	"time"

	pkgconfig "github.com/utafrali/authcore/pkg/config"
	"github.com/utafrali/authcore/pkg/database"
)

const (
	defaultJWTSecret     = "change-this-access-token-secret"
	defaultRefreshSecret = "change-this-refresh-token-secret"
	minSecretLength      = 32

	// SessionStorePostgres keeps Session Records in the sessions table.
	SessionStorePostgres = "postgres"
	// SessionStoreRedis keeps Session Records as Redis hashes with a TTL.
	SessionStoreRedis = "redis"
)

// Config holds all configuration for authcore. It is built once at startup
// and passed to the components that need it.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort   int  `env:"API_PORT" envDefault:"3000"`
	TrustProxy bool `env:"TRUST_PROXY" envDefault:"false"`

	// PostgreSQL
	PostgresHost          string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort          int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser          string `env:"POSTGRES_USER" envDefault:"authcore"`
	PostgresPass          string `env:"POSTGRES_PASSWORD" envDefault:"authcore_secret"`
	PostgresDB            string `env:"POSTGRES_DB" envDefault:"authcore"`
	PostgresSSL           string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	DBMaxConns            int32  `env:"DB_MAX_CONNS" envDefault:"20"`
	DBMinConns            int32  `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetimeMins int    `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"30"`
	DBMaxConnIdleTimeMins int    `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"5"`
	SlowQueryThresholdMs  int    `env:"SLOW_QUERY_THRESHOLD_MS" envDefault:"200"`

	// Session store
	SessionStore         string        `env:"SESSION_STORE" envDefault:"postgres"`
	SessionPruneInterval time.Duration `env:"SESSION_PRUNE_INTERVAL" envDefault:"1h"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"10"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Tokens. Lifetimes are in seconds.
	JWTSecret              string `env:"JWT_SECRET" envDefault:"change-this-access-token-secret"`
	JWTExpiration          int    `env:"JWT_EXPIRATION" envDefault:"3600"`
	RefreshTokenSecret     string `env:"REFRESH_TOKEN_SECRET" envDefault:"change-this-refresh-token-secret"`
	RefreshTokenExpiration int    `env:"REFRESH_TOKEN_EXPIRATION" envDefault:"604800"`

	// Feature flags
	RBACEnabled   bool `env:"RBAC" envDefault:"true"`
	UseGoogleAuth bool `env:"USE_GOOGLE_AUTH" envDefault:"false"`

	// Google OAuth
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleCallbackURL  string `env:"GOOGLE_CALLBACK_URL"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load authcore config: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field rules. pkgconfig.Load calls it after parsing.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.JWTExpiration <= 0 {
		return fmt.Errorf("JWT_EXPIRATION must be positive, got %d", c.JWTExpiration)
	}
	if c.RefreshTokenExpiration <= 0 {
		return fmt.Errorf("REFRESH_TOKEN_EXPIRATION must be positive, got %d", c.RefreshTokenExpiration)
	}
	if c.SessionStore != SessionStorePostgres && c.SessionStore != SessionStoreRedis {
		return fmt.Errorf("SESSION_STORE must be %q or %q, got %q", SessionStorePostgres, SessionStoreRedis, c.SessionStore)
	}
	if c.SessionPruneInterval <= 0 {
		return errors.New("SESSION_PRUNE_INTERVAL must be positive")
	}

	if c.UseGoogleAuth && (c.GoogleClientID == "" || c.GoogleClientSecret == "" || c.GoogleCallbackURL == "") {
		return errors.New("GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET and GOOGLE_CALLBACK_URL are required when USE_GOOGLE_AUTH is enabled")
	}

	// Outside development both signing secrets must be explicitly set, strong
	// and independent of each other.
	if c.IsDevelopment() {
		return nil
	}
	if c.JWTSecret == defaultJWTSecret {
		return fmt.Errorf("JWT_SECRET must be explicitly set via environment variable in %q mode", c.Environment)
	}
	if c.RefreshTokenSecret == defaultRefreshSecret {
		return fmt.Errorf("REFRESH_TOKEN_SECRET must be explicitly set via environment variable in %q mode", c.Environment)
	}
	if len(c.JWTSecret) < minSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters long, got %d", minSecretLength, len(c.JWTSecret))
	}
	if len(c.RefreshTokenSecret) < minSecretLength {
		return fmt.Errorf("REFRESH_TOKEN_SECRET must be at least %d characters long, got %d", minSecretLength, len(c.RefreshTokenSecret))
	}
	if c.JWTSecret == c.RefreshTokenSecret {
		return errors.New("JWT_SECRET and REFRESH_TOKEN_SECRET must differ")
	}
	return nil
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether cookies must be marked Secure.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// AccessTTL is the access-token lifetime.
func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.JWTExpiration) * time.Second
}

// RefreshTTL is the refresh-token and Session Record lifetime.
func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTokenExpiration) * time.Second
}

// Postgres returns the connection settings for the pgx pool.
func (c *Config) Postgres() *database.PostgresConfig {
	return &database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: time.Duration(c.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute,
	}
}

// Redis returns the connection settings for the Redis session store.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
		PoolSize: c.RedisPoolSize,
	}
}
