package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for catalog-engine.
// Configuration can come from YAML file (config.yaml) or environment
// variables; environment variables always override YAML values. Secrets
// (passwords, keys) must only come from environment variables.
type Config struct {
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8585"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // set at load time, not from config

	Database DatabaseConfig `yaml:"database"`
	Events   EventsConfig   `yaml:"events"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"catalog"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"catalog_engine"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	// Pool hygiene: connections are recycled after this many minutes of age
	// or idleness.
	ConnLifetimeMinutes int    `yaml:"conn_lifetime_minutes" env:"PGCONN_LIFETIME_MINUTES" env-default:"60"`
	ConnIdleMinutes     int    `yaml:"conn_idle_minutes" env:"PGCONN_IDLE_MINUTES" env-default:"30"`
	MigrationsPath      string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// URL renders the pgx connection string.
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// EventsConfig holds event delivery settings.
type EventsConfig struct {
	// MaxRetries is the delivery retry ceiling before a subscription is moved
	// to retryLimitReached.
	MaxRetries int `yaml:"max_retries" env:"EVENTS_MAX_RETRIES" env-default:"5"`
	// ShutdownTimeoutSeconds bounds the wait for consumers to drain on stop.
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds" env:"EVENTS_SHUTDOWN_TIMEOUT_SECONDS" env-default:"5"`
}

// PipelineConfig holds the external pipeline-runner endpoint.
type PipelineConfig struct {
	BaseURL        string `yaml:"base_url" env:"PIPELINE_BASE_URL" env-default:""`
	Username       string `yaml:"username" env:"PIPELINE_USERNAME" env-default:"admin"`
	Password       string `yaml:"-" env:"PIPELINE_PASSWORD"` // secret - not in YAML
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"PIPELINE_TIMEOUT_SECONDS" env-default:"30"`
}

// Load reads config.yaml (when present) and applies environment overrides.
func Load(version string) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment config: %w", err)
		}
	}

	cfg.Version = version

	if cfg.Events.MaxRetries < 0 {
		return nil, fmt.Errorf("events.max_retries must not be negative")
	}

	return cfg, nil
}
