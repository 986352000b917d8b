// Package config provides environment-based configuration for contractdesk.
//
// Values are resolved in three layers: built-in defaults, an optional YAML file named
// by CONFIG_FILE, and finally environment variables (a local .env file is loaded first
// when present). Later layers win.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the API server, the outbox worker and the CLI.
type Config struct {
	// Database configuration
	DatabaseDSN string `yaml:"database_url"`

	// Authentication
	JWTSecret    string        `yaml:"jwt_secret"`
	JWTExpiry    time.Duration `yaml:"jwt_expiry"`
	APIKeyHeader string        `yaml:"api_key_header"`
	// APIKeys lists static service keys as comma-separated user:role:key triples.
	APIKeys string `yaml:"api_keys"`

	// Server configuration
	APIPort  int    `yaml:"api_port"`
	GRPCPort int    `yaml:"grpc_port"`
	APIHost  string `yaml:"api_host"`

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Log     LogConfig     `yaml:"log"`
	Scanner ScannerConfig `yaml:"scanner"`
	Renewal RenewalConfig `yaml:"renewal"`
	Outbox  OutboxConfig  `yaml:"outbox"`
	Notify  NotifyConfig  `yaml:"notify"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
}

// ScannerConfig holds expiration scanner configuration.
type ScannerConfig struct {
	DefaultThresholdDays int `yaml:"default_threshold_days"`
	// Timezone is the IANA zone whose calendar days define "today".
	Timezone string `yaml:"timezone"`
}

// RenewalConfig holds renewal workflow configuration.
type RenewalConfig struct {
	// PartyKind is the contract category renewals may be opened for.
	PartyKind string `yaml:"party_kind"`
	// EnforceGateConsistency opts into the gate consistency policy on updates.
	EnforceGateConsistency bool `yaml:"enforce_gate_consistency"`
}

// OutboxConfig holds configuration for the notification/audit outbox worker.
type OutboxConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxAttempts  int           `yaml:"max_attempts"`
	Concurrency  int           `yaml:"concurrency"`
}

// NotifyConfig holds notification delivery configuration.
type NotifyConfig struct {
	// WebhookURL receives expiration notices as JSON. Empty means log-only delivery.
	WebhookURL string        `yaml:"webhook_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// defaults returns the built-in configuration.
func defaults() *Config {
	return &Config{
		DatabaseDSN:     "postgres://localhost:5432/contractdesk?sslmode=disable",
		JWTExpiry:       24 * time.Hour,
		APIKeyHeader:    "X-API-Key",
		APIPort:         8080,
		GRPCPort:        9090,
		APIHost:         "0.0.0.0",
		ShutdownTimeout: 30 * time.Second,
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Scanner: ScannerConfig{
			DefaultThresholdDays: 30,
			Timezone:             "UTC",
		},
		Renewal: RenewalConfig{
			PartyKind: "humanitarian_org",
		},
		Outbox: OutboxConfig{
			PollInterval: time.Second,
			MaxAttempts:  5,
			Concurrency:  2,
		},
		Notify: NotifyConfig{
			Timeout: 10 * time.Second,
		},
	}
}

// Load reads configuration from the optional config file and environment variables.
func Load() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// loadFile overlays the YAML file at path onto c.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides c with any environment variables that are set.
func applyEnv(c *Config) {
	c.DatabaseDSN = getEnv("DATABASE_URL", c.DatabaseDSN)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.JWTExpiry = getDurationEnv("JWT_EXPIRY", c.JWTExpiry)
	c.APIKeyHeader = getEnv("API_KEY_HEADER", c.APIKeyHeader)
	c.APIKeys = getEnv("API_KEYS", c.APIKeys)
	c.APIPort = getIntEnv("API_PORT", c.APIPort)
	c.GRPCPort = getIntEnv("GRPC_PORT", c.GRPCPort)
	c.APIHost = getEnv("API_HOST", c.APIHost)
	c.ShutdownTimeout = getDurationEnv("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	c.Scanner.DefaultThresholdDays = getIntEnv("SCAN_DEFAULT_THRESHOLD_DAYS", c.Scanner.DefaultThresholdDays)
	c.Scanner.Timezone = getEnv("SCAN_TIMEZONE", c.Scanner.Timezone)

	c.Renewal.PartyKind = getEnv("RENEWAL_PARTY_KIND", c.Renewal.PartyKind)
	c.Renewal.EnforceGateConsistency = getBoolEnv("RENEWAL_ENFORCE_GATE_CONSISTENCY", c.Renewal.EnforceGateConsistency)

	c.Outbox.PollInterval = getDurationEnv("OUTBOX_POLL_INTERVAL", c.Outbox.PollInterval)
	c.Outbox.MaxAttempts = getIntEnv("OUTBOX_MAX_ATTEMPTS", c.Outbox.MaxAttempts)
	c.Outbox.Concurrency = getIntEnv("OUTBOX_CONCURRENCY", c.Outbox.Concurrency)

	c.Notify.WebhookURL = getEnv("NOTIFY_WEBHOOK_URL", c.Notify.WebhookURL)
	c.Notify.Timeout = getDurationEnv("NOTIFY_TIMEOUT", c.Notify.Timeout)
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if c.Scanner.DefaultThresholdDays < 0 {
		return fmt.Errorf("SCAN_DEFAULT_THRESHOLD_DAYS must not be negative, got %d", c.Scanner.DefaultThresholdDays)
	}
	if _, err := time.LoadLocation(c.Scanner.Timezone); err != nil {
		return fmt.Errorf("SCAN_TIMEZONE %q is not a valid time zone: %w", c.Scanner.Timezone, err)
	}
	if c.Outbox.MaxAttempts <= 0 {
		return fmt.Errorf("OUTBOX_MAX_ATTEMPTS must be positive, got %d", c.Outbox.MaxAttempts)
	}
	if c.Outbox.Concurrency <= 0 {
		return fmt.Errorf("OUTBOX_CONCURRENCY must be positive, got %d", c.Outbox.Concurrency)
	}
	return nil
}

// Location returns the scanner time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scanner.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
