// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
)

// Config holds all application configuration. Every knob has a working
// default so an empty environment yields a usable setup.
type Config struct {
	LogLevel string `env:"CSM_LOG_LEVEL" envDefault:"info"`

	CacheTTL time.Duration `env:"CSM_CACHE_TTL" envDefault:"15m"`

	BreakerFailureThreshold int           `env:"CSM_BREAKER_FAILURE_THRESHOLD" envDefault:"5"`
	BreakerCooldown         time.Duration `env:"CSM_BREAKER_COOLDOWN" envDefault:"60s"`

	RetryAttempts int           `env:"CSM_RETRY_ATTEMPTS" envDefault:"3"`
	RetryDelay    time.Duration `env:"CSM_RETRY_DELAY" envDefault:"200ms"`

	AutosaveDelay time.Duration `env:"CSM_AUTOSAVE_DELAY" envDefault:"2s"`

	SyncInterval time.Duration `env:"CSM_SYNC_INTERVAL" envDefault:"30s"`
	// QueuePath is the on-disk location of the offline write journal.
	// Empty means in-memory, which drops queued writes on exit.
	QueuePath string `env:"CSM_QUEUE_PATH"`

	// APIBaseURL points at the backend document API. Binaries without
	// one fall back to an in-memory store.
	APIBaseURL string `env:"CSM_API_BASE_URL"`
	APIKey     string `env:"CSM_API_KEY"`

	AdminEmail string `env:"CSM_ADMIN_EMAIL"`
	SMTPAddr   string `env:"CSM_SMTP_ADDR" envDefault:"localhost:1025"`
	SMTPFrom   string `env:"CSM_SMTP_FROM" envDefault:"no-reply@csmkit.local"`

	MaxScorePerQuestion int `env:"CSM_MAX_SCORE_PER_QUESTION" envDefault:"5"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return &cfg, nil
}

// Validate checks the loaded values against the ranges the pipeline expects.
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid CSM_LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("CSM_CACHE_TTL must be positive, got %s", c.CacheTTL)
	}
	if c.BreakerFailureThreshold < 1 {
		return fmt.Errorf("CSM_BREAKER_FAILURE_THRESHOLD must be at least 1, got %d", c.BreakerFailureThreshold)
	}
	if c.BreakerCooldown <= 0 {
		return fmt.Errorf("CSM_BREAKER_COOLDOWN must be positive, got %s", c.BreakerCooldown)
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("CSM_RETRY_ATTEMPTS must be at least 1, got %d", c.RetryAttempts)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("CSM_RETRY_DELAY must not be negative, got %s", c.RetryDelay)
	}
	if c.AutosaveDelay < 2*time.Second || c.AutosaveDelay > 20*time.Second {
		return fmt.Errorf("CSM_AUTOSAVE_DELAY must be between 2s-20s, got %s", c.AutosaveDelay)
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("CSM_SYNC_INTERVAL must be positive, got %s", c.SyncInterval)
	}
	if c.MaxScorePerQuestion < 1 {
		return fmt.Errorf("CSM_MAX_SCORE_PER_QUESTION must be at least 1, got %d", c.MaxScorePerQuestion)
	}
	return nil
}

// Level returns the zerolog level named by LogLevel, falling back to info
// when the name is unknown. Call Validate first to surface bad values.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
