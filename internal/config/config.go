package config

import (
	"fmt"

	"github.com/draftpress/draftpress/internal/env"
)

// Config holds all configuration for the worker binary.
type Config struct {
	Database  DatabaseConfig
	Worker    WorkerConfig
	Growth    GrowthConfig
	Review    ReviewConfig
	Scheduler SchedulerConfig
	AI        AIConfig
	Remote    RemoteConfig

	// Env is the deployment environment. "test" disables worker bootstrap.
	Env string `env:"NODE_ENV"`

	// OTelEnabled gates the OpenTelemetry exporters.
	OTelEnabled bool `env:"QUEUE_OTEL_ENABLED"`
}

// Load parses environment variables into a Config and applies defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.Growth.markUnset()

	if err := env.Load(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.Worker.applyDefaults()
	cfg.Growth.applyDefaults()
	cfg.Scheduler.applyDefaults()
	cfg.AI.applyDefaults()
	cfg.Remote.applyDefaults()

	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("POSTGRES_URL is required")
	}

	return cfg, nil
}

// IsTest reports whether the process runs under a test environment where the
// queue worker must not bootstrap.
func (c *Config) IsTest() bool {
	return c.Env == "test"
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	DSN          string `env:"POSTGRES_URL"`
	MaxOpenConns int    `env:"QUEUE_DB_MAX_OPEN_CONNS"`
	MaxIdleConns int    `env:"QUEUE_DB_MAX_IDLE_CONNS"`
}
