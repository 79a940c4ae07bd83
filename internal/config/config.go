// Package config loads server settings from an optional YAML file, an
// optional .env file and the process environment, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr         string        `yaml:"addr" env:"BLOGSHOP_ADDR"`
		BaseURL      string        `yaml:"base_url" env:"BLOGSHOP_BASE_URL"`
		CookieSecure bool          `yaml:"cookie_secure" env:"BLOGSHOP_COOKIE_SECURE"`
		ReadTimeout  time.Duration `yaml:"read_timeout" env:"BLOGSHOP_READ_TIMEOUT"`
		WriteTimeout time.Duration `yaml:"write_timeout" env:"BLOGSHOP_WRITE_TIMEOUT"`
		RateLimit    float64       `yaml:"rate_limit" env:"BLOGSHOP_RATE_LIMIT"`
		RateBurst    int           `yaml:"rate_burst" env:"BLOGSHOP_RATE_BURST"`
	} `yaml:"server"`
	Database struct {
		Path string `yaml:"path" env:"BLOGSHOP_DB_PATH"`
	} `yaml:"database"`
	Media struct {
		Root     string `yaml:"root" env:"BLOGSHOP_MEDIA_ROOT"`
		MaxBytes int64  `yaml:"max_bytes" env:"BLOGSHOP_MEDIA_MAX_BYTES"`
	} `yaml:"media"`
	Session struct {
		TTL time.Duration `yaml:"ttl" env:"BLOGSHOP_SESSION_TTL"`
	} `yaml:"session"`
	Log struct {
		Level string `yaml:"level" env:"BLOGSHOP_LOG_LEVEL"`
		JSON  bool   `yaml:"json" env:"BLOGSHOP_LOG_JSON"`
	} `yaml:"log"`
	Payment struct {
		StripeKey      string        `yaml:"stripe_key" env:"STRIPE_SECRET_KEY"`
		StripeAPIURL   string        `yaml:"stripe_api_url" env:"STRIPE_API_URL"`
		Currency       string        `yaml:"currency" env:"BLOGSHOP_CURRENCY"`
		TokenSecret    string        `yaml:"token_secret" env:"BLOGSHOP_CHECKOUT_SECRET"`
		GatewayTimeout time.Duration `yaml:"gateway_timeout" env:"BLOGSHOP_GATEWAY_TIMEOUT"`
		MaxAttempts    int           `yaml:"max_attempts" env:"BLOGSHOP_GATEWAY_ATTEMPTS"`
		RetryBackoff   time.Duration `yaml:"retry_backoff" env:"BLOGSHOP_GATEWAY_BACKOFF"`
		StripeRetries  int64         `yaml:"stripe_max_retries" env:"STRIPE_MAX_RETRIES"`
	} `yaml:"payment"`
	Jobs struct {
		SessionPurge string        `yaml:"session_purge" env:"BLOGSHOP_JOB_SESSION_PURGE"`
		OrderSweep   string        `yaml:"order_sweep" env:"BLOGSHOP_JOB_ORDER_SWEEP"`
		StaleAfter   time.Duration `yaml:"stale_after" env:"BLOGSHOP_ORDER_STALE_AFTER"`
	} `yaml:"jobs"`
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	c := &Config{}
	c.Server.Addr = ":8080"
	c.Server.BaseURL = "http://localhost:8080"
	c.Server.ReadTimeout = 15 * time.Second
	c.Server.WriteTimeout = 30 * time.Second
	c.Server.RateLimit = 5
	c.Server.RateBurst = 20
	c.Database.Path = "./data/blogshop.db"
	c.Media.Root = "./data/media"
	c.Media.MaxBytes = 5 << 20
	c.Session.TTL = 24 * time.Hour
	c.Log.Level = "info"
	c.Payment.Currency = "usd"
	c.Payment.GatewayTimeout = 10 * time.Second
	c.Payment.MaxAttempts = 3
	c.Payment.RetryBackoff = 500 * time.Millisecond
	c.Jobs.SessionPurge = "@every 1h"
	c.Jobs.OrderSweep = "@every 15m"
	c.Jobs.StaleAfter = 24 * time.Hour
	return c
}

// Load builds the configuration. yamlPath and envFile may be empty; a
// missing .env file is not an error.
func Load(yamlPath, envFile string) (*Config, error) {
	cfg := Default()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("failed to decode environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Session.TTL <= 0 {
		return errors.New("session ttl must be positive")
	}
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Payment.StripeKey != "" && c.Payment.TokenSecret == "" {
		return errors.New("BLOGSHOP_CHECKOUT_SECRET is required when payments are enabled")
	}
	if c.Jobs.OrderSweep != "" && c.Jobs.StaleAfter <= 0 {
		return errors.New("jobs stale_after must be positive when the order sweep is on")
	}
	if c.Payment.RetryBackoff < 0 || c.Payment.StripeRetries < 0 {
		return errors.New("payment retry settings must not be negative")
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		return errors.New("rate limit settings must not be negative")
	}
	return nil
}

// PaymentsEnabled reports whether a payment gateway is configured.
func (c *Config) PaymentsEnabled() bool {
	return c.Payment.StripeKey != ""
}
