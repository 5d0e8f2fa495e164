package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Config holds the configuration of the sync service and the notify worker.
// Environment variables are parsed from the ELIGO_ prefix.
type Config struct {
	// Build target selects high-level environment: local, cloud-dev, cloud
	BuildTarget string `envconfig:"BUILD_TARGET" default:"local"`

	// auto, memory, sqlite or postgres
	DBDriver    string      `envconfig:"DB_DRIVER" default:"auto"`
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`

	HTTPPort int    `envconfig:"HTTP_PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:""`

	// dev trusts X-User-ID; jwt verifies HS256 bearer tokens.
	AuthMode  string `envconfig:"AUTH_MODE" default:"dev"`
	JWTSecret string `envconfig:"JWT_SECRET" default:""`

	// log, webhook or outbox
	Notifier       string `envconfig:"NOTIFIER" default:"log"`
	PushGatewayURL string `envconfig:"PUSH_GATEWAY_URL" default:""`

	SessionBuffer   int `envconfig:"SESSION_BUFFER" default:"256"`
	NotifyShards    int `envconfig:"NOTIFY_SHARDS" default:"4"`
	NotifyQueueSize int `envconfig:"NOTIFY_QUEUE_SIZE" default:"128"`

	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"30"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"5"`

	OutboxBatchSize int           `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
	OutboxInterval  time.Duration `envconfig:"OUTBOX_INTERVAL" default:"2s"`
}

// ResolveDefaults validates BuildTarget and derives DBDriver when set to
// "auto" or empty, then checks that the chosen drivers have what they need.
func (c *Config) ResolveDefaults() error {
	var defaultDB string

	switch c.BuildTarget {
	case "local":
		defaultDB = "sqlite"
	case "cloud-dev", "cloud":
		defaultDB = "postgres"
	default:
		return fmt.Errorf("unsupported BUILD_TARGET: %s", c.BuildTarget)
	}

	if c.DBDriver == "" || c.DBDriver == "auto" {
		c.DBDriver = defaultDB
	}
	switch c.DBDriver {
	case "memory":
	case "sqlite":
		if c.SQLitePath == "" {
			c.SQLitePath = "eligo.db"
		}
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("DB_DRIVER postgres requires POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}

	switch c.AuthMode {
	case "dev":
		if c.Environment == EnvProduction {
			return fmt.Errorf("AUTH_MODE dev is not allowed in production")
		}
	case "jwt":
		if c.JWTSecret == "" {
			return fmt.Errorf("AUTH_MODE jwt requires JWT_SECRET")
		}
	default:
		return fmt.Errorf("unsupported AUTH_MODE: %s", c.AuthMode)
	}

	switch c.Notifier {
	case "log":
	case "webhook":
		if c.PushGatewayURL == "" {
			return fmt.Errorf("NOTIFIER webhook requires PUSH_GATEWAY_URL")
		}
	case "outbox":
		if c.DBDriver != "postgres" {
			return fmt.Errorf("NOTIFIER outbox requires DB_DRIVER postgres")
		}
	default:
		return fmt.Errorf("unsupported NOTIFIER: %s", c.Notifier)
	}
	return nil
}

// New creates a new Config by parsing environment variables
// Example: ELIGO_DB_DRIVER, ELIGO_HTTP_PORT
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("ELIGO", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("db_driver", cfg.DBDriver).
		Str("environment", string(cfg.Environment)).
		Int("port", cfg.HTTPPort).
		Str("auth_mode", cfg.AuthMode).
		Str("notifier", cfg.Notifier).
		Bool("postgres_dsn_present", cfg.PostgresDSN != "").
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates an in-memory config for tests.
func NewForTesting() *Config {
	return &Config{
		BuildTarget:               "local",
		DBDriver:                  "memory",
		Environment:               EnvTesting,
		HTTPPort:                  0,
		AuthMode:                  "dev",
		Notifier:                  "log",
		SessionBuffer:             64,
		NotifyShards:              2,
		NotifyQueueSize:           16,
		HealthIntervalSeconds:     1,
		HealthProbeTimeoutSeconds: 1,
		OutboxBatchSize:           10,
		OutboxInterval:            100 * time.Millisecond,
	}
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

func (c *Config) HealthInterval() time.Duration {
	return time.Duration(c.HealthIntervalSeconds) * time.Second
}

func (c *Config) HealthProbeTimeout() time.Duration {
	return time.Duration(c.HealthProbeTimeoutSeconds) * time.Second
}
