package config

import (
	"fmt"
	"net/url"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Load reads configuration from environment variables. It attempts to
// load from a .env file first (for local development), then parses
// environment variables into the Config struct.
func Load() (*Config, error) {
	// In production the environment is injected directly; a missing
	// .env file is the normal case there.
	if err := godotenv.Load(); err != nil {
		logrus.Warnf("no .env file found or error loading it: %v (this is normal in production)", err)
	} else {
		logrus.Infof("loaded environment variables from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config from environment: %w", err)
	}

	return cfg, nil
}

// Validate performs custom validation on the configuration, called after
// environment variables are parsed.
func (c *Config) Validate() error {
	if c.MetricsPort < 1 || c.MetricsPort > 65535 {
		return fmt.Errorf("invalid METRICS_PORT: %d (must be 1-65535)", c.MetricsPort)
	}

	if c.SandboxEnabled {
		if c.SandboxPort < 1 || c.SandboxPort > 65535 {
			return fmt.Errorf("invalid SANDBOX_PORT: %d (must be 1-65535)", c.SandboxPort)
		}
	} else {
		u, err := url.Parse(c.BackendURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("invalid BACKEND_URL: %q (must be an http(s) URL)", c.BackendURL)
		}
	}

	return nil
}

// RedisAddr returns host:port for the Redis client, empty when Redis is
// not configured.
func (c *Config) RedisAddr() string {
	if c.RedisHost == "" {
		return ""
	}
	return c.RedisHost + ":" + c.RedisPort
}
