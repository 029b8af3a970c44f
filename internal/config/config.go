package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/utafrali/roastery/pkg/config"
	"github.com/utafrali/roastery/pkg/database"
	"github.com/utafrali/roastery/pkg/httpclient"
	"github.com/utafrali/roastery/pkg/tracing"
)

// ServiceName identifies the storefront in logs, metrics and traces.
const ServiceName = "storefront"

// Config holds all configuration for the storefront service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort           int           `env:"HTTP_PORT" envDefault:"8080"`
	HTTPReadTimeout    time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout   time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	HTTPRequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"25s"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	PprofAllowedCIDRs  []string      `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.1/32,::1/128" envSeparator:","`
	RateLimitRPS       float64       `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst     int           `env:"RATE_LIMIT_BURST" envDefault:"10"`

	// PostgreSQL
	PostgresHost         string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort         int           `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser         string        `env:"POSTGRES_USER" envDefault:"roastery"`
	PostgresPass         string        `env:"POSTGRES_PASSWORD" envDefault:"roastery_secret"`
	PostgresDB           string        `env:"POSTGRES_DB" envDefault:"storefront"`
	PostgresSSL          string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	PostgresMaxConns     int32         `env:"POSTGRES_MAX_CONNS" envDefault:"20"`
	DBSlowQueryThreshold time.Duration `env:"DB_SLOW_QUERY_THRESHOLD" envDefault:"200ms"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Auth
	JWTSecret            string        `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`
	JWTAccessTokenExpiry time.Duration `env:"JWT_ACCESS_TOKEN_EXPIRY" envDefault:"24h"`
	PasswordResetTTL     time.Duration `env:"PASSWORD_RESET_TTL" envDefault:"30m"`

	// Payment gateway
	FlowAPIKey    string        `env:"FLOW_API_KEY"`
	FlowSecretKey string        `env:"FLOW_SECRET_KEY"`
	FlowEndpoint  url.URL       `env:"FLOW_ENDPOINT" envDefault:"https://sandbox.flow.cl/api"`
	FlowCurrency  string        `env:"FLOW_CURRENCY" envDefault:"CLP"`
	FlowTimeout   time.Duration `env:"FLOW_TIMEOUT" envDefault:"15s"`

	// Circuit breaker around the gateway
	CBMaxRequests  uint32        `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     time.Duration `env:"CB_INTERVAL" envDefault:"60s"`
	CBTimeout      time.Duration `env:"CB_TIMEOUT" envDefault:"30s"`
	CBFailureRatio float64       `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32        `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// Storefront
	PublicBaseURL          url.URL       `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:5173"`
	ShippingCost           int64         `env:"SHIPPING_COST" envDefault:"3000"`
	CartTTL                time.Duration `env:"CART_TTL" envDefault:"720h"`
	CheckoutIdempotencyTTL time.Duration `env:"CHECKOUT_IDEMPOTENCY_TTL" envDefault:"24h"`
	ProfileFetchAttempts   int           `env:"PROFILE_FETCH_ATTEMPTS" envDefault:"3"`
	ProfileFetchDelay      time.Duration `env:"PROFILE_FETCH_DELAY" envDefault:"500ms"`

	// Tracing
	OTelEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTelSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsDevelopment reports whether the service runs in the development environment.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP port: %d", c.HTTPPort))
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid postgres port: %d", c.PostgresPort))
	}
	if c.RedisPort < 1 || c.RedisPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid redis port: %d", c.RedisPort))
	}

	for name, d := range map[string]time.Duration{
		"JWT_ACCESS_TOKEN_EXPIRY":  c.JWTAccessTokenExpiry,
		"PASSWORD_RESET_TTL":       c.PasswordResetTTL,
		"FLOW_TIMEOUT":             c.FlowTimeout,
		"CART_TTL":                 c.CartTTL,
		"CHECKOUT_IDEMPOTENCY_TTL": c.CheckoutIdempotencyTTL,
		"HTTP_REQUEST_TIMEOUT":     c.HTTPRequestTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.ProfileFetchDelay < 0 {
		errs = append(errs, fmt.Errorf("PROFILE_FETCH_DELAY must not be negative, got %s", c.ProfileFetchDelay))
	}
	if c.ProfileFetchAttempts < 1 {
		errs = append(errs, fmt.Errorf("PROFILE_FETCH_ATTEMPTS must be at least 1, got %d", c.ProfileFetchAttempts))
	}
	if c.ShippingCost < 0 {
		errs = append(errs, fmt.Errorf("SHIPPING_COST must not be negative, got %d", c.ShippingCost))
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		errs = append(errs, fmt.Errorf("rate limit needs positive RATE_LIMIT_RPS and RATE_LIMIT_BURST"))
	}
	if c.CBFailureRatio <= 0 || c.CBFailureRatio > 1 {
		errs = append(errs, fmt.Errorf("CB_FAILURE_RATIO must be in (0, 1], got %v", c.CBFailureRatio))
	}
	if c.OTelSampleRate < 0 || c.OTelSampleRate > 1 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLE_RATE must be in [0, 1], got %v", c.OTelSampleRate))
	}

	if c.FlowAPIKey == "" || c.FlowSecretKey == "" {
		errs = append(errs, errors.New("FLOW_API_KEY and FLOW_SECRET_KEY are required"))
	}
	if c.FlowCurrency == "" {
		errs = append(errs, errors.New("FLOW_CURRENCY is required"))
	}

	if !c.IsDevelopment() {
		if c.JWTSecret == "" || c.JWTSecret == "dev-secret-change-me" {
			errs = append(errs, errors.New("JWT_SECRET must be set outside development"))
		}
		if len(c.JWTSecret) < 32 {
			errs = append(errs, errors.New("JWT_SECRET must be at least 32 characters outside development"))
		}
	}

	return errors.Join(errs...)
}

// Postgres returns the pool settings.
func (c *Config) Postgres() database.PostgresConfig {
	pg := database.DefaultPostgresConfig()
	pg.Host = c.PostgresHost
	pg.Port = c.PostgresPort
	pg.User = c.PostgresUser
	pg.Password = c.PostgresPass
	pg.DBName = c.PostgresDB
	pg.SSLMode = c.PostgresSSL
	pg.MaxConns = c.PostgresMaxConns
	return pg
}

// Redis returns the Redis client settings.
func (c *Config) Redis() database.RedisConfig {
	rc := database.DefaultRedisConfig()
	rc.Host = c.RedisHost
	rc.Port = c.RedisPort
	rc.Password = c.RedisPassword
	rc.DB = c.RedisDB
	return rc
}

// Tracing returns the OpenTelemetry settings.
func (c *Config) Tracing() tracing.Config {
	tc := tracing.DefaultConfig(ServiceName)
	tc.Environment = c.Environment
	tc.OTLPEndpoint = c.OTelEndpoint
	tc.SampleRate = c.OTelSampleRate
	tc.Enabled = c.OTelEnabled
	return tc
}

// GatewayHTTP returns the HTTP client settings used for the payment gateway.
func (c *Config) GatewayHTTP() httpclient.Config {
	hc := httpclient.DefaultConfig()
	hc.Timeout = c.FlowTimeout
	return hc
}

// GatewayBreaker returns the circuit breaker settings for the payment gateway.
func (c *Config) GatewayBreaker() httpclient.CircuitBreakerConfig {
	return httpclient.CircuitBreakerConfig{
		Name:         "flow",
		MaxRequests:  c.CBMaxRequests,
		Interval:     c.CBInterval,
		Timeout:      c.CBTimeout,
		FailureRatio: c.CBFailureRatio,
		MinRequests:  c.CBMinRequests,
	}
}

// ConfirmationURL is where the gateway posts server-to-server notifications.
func (c *Config) ConfirmationURL() string {
	return c.PublicBaseURL.JoinPath("payment", "confirmation").String()
}

// ReturnURL is where the gateway sends the shopper's browser afterwards.
func (c *Config) ReturnURL() string {
	return c.PublicBaseURL.JoinPath("payment", "return").String()
}
