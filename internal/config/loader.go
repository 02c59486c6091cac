package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Load reads configuration from environment variables.
// It attempts to load from .env file first (for local development),
// then parses environment variables into the Config struct.
func Load() (*Config, error) {
	// In production the environment is injected directly; the .env file is
	// a local development convenience.
	if err := godotenv.Load(); err != nil {
		logrus.Debugf("no .env file loaded: %v", err)
	} else {
		logrus.Infof("loaded environment variables from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate performs custom validation on the configuration.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP_PORT: %d (must be 1-65535)", c.HTTPPort)
	}
	if c.MetricsPort < 1 || c.MetricsPort > 65535 {
		return fmt.Errorf("invalid METRICS_PORT: %d (must be 1-65535)", c.MetricsPort)
	}
	if c.HTTPPort == c.MetricsPort {
		return fmt.Errorf("HTTP_PORT and METRICS_PORT must differ, both are %d", c.HTTPPort)
	}
	if c.CacheTTLSeconds < 1 {
		return fmt.Errorf("invalid RULE_CACHE_TTL_SECONDS: %d (must be positive)", c.CacheTTLSeconds)
	}
	if c.ActionExpiryMinutes < 1 {
		return fmt.Errorf("invalid ACTION_EXPIRY_MINUTES: %d (must be positive)", c.ActionExpiryMinutes)
	}
	if c.MinRulesPerCategory < 0 {
		return fmt.Errorf("invalid MIN_RULES_PER_CATEGORY: %d (must be non-negative)", c.MinRulesPerCategory)
	}
	return nil
}

// RedisAddr joins the configured Redis host and port.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}
