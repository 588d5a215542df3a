// Package config handles configuration loading for fleet-sentinel.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"fleet-sentinel/internal/alerting"
	"fleet-sentinel/internal/detection"
	"fleet-sentinel/internal/kafka"
	"fleet-sentinel/internal/logging"
	"fleet-sentinel/internal/schema"
)

// DefaultPath is read when SENTINEL_CONFIG_PATH is unset.
const DefaultPath = "configs/config.yaml"

// Config holds the complete application configuration.
type Config struct {
	Server     ServerConfig             `yaml:"server"`
	Ingest     IngestConfig             `yaml:"ingest"`
	Auth       AuthConfig               `yaml:"auth"`
	RateLimit  RateLimitConfig          `yaml:"rate_limit"`
	Logging    logging.Config           `yaml:"logging"`
	Validation schema.ValidatorConfig   `yaml:"validation"`
	Detection  detection.Config         `yaml:"detection"`
	Outbox     OutboxConfig             `yaml:"outbox"`
	Forwarder  alerting.ForwarderConfig `yaml:"forwarder"`
	Kafka      kafka.Config             `yaml:"kafka"`
	Redis      alerting.RedisConfig     `yaml:"redis"`
	Webhook    WebhookConfig            `yaml:"webhook"`
	Slack      SlackConfig              `yaml:"slack"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	SecurityHeaders bool          `yaml:"security_headers"`
	HSTSMaxAge      int           `yaml:"hsts_max_age"` // seconds; zero omits the header
}

// IngestConfig bounds HTTP event batches.
type IngestConfig struct {
	MaxBatchSize   int `yaml:"max_batch_size"`
	MaxPayloadSize int `yaml:"max_payload_size"`
}

// AuthConfig holds API key authentication settings.
type AuthConfig struct {
	Enabled      bool     `yaml:"enabled"`
	APIKeyHeader string   `yaml:"api_key_header"`
	APIKeys      []string `yaml:"api_keys"`
}

// RateLimitConfig holds per-client rate limiting settings.
type RateLimitConfig struct {
	Enabled       bool          `yaml:"enabled"`
	RequestsPerIP int           `yaml:"requests_per_ip"`
	WindowSize    time.Duration `yaml:"window_size"`
	BurstSize     int           `yaml:"burst_size"`
	CleanupPeriod time.Duration `yaml:"cleanup_period"`
	ExemptPaths   []string      `yaml:"exempt_paths"`
	TrustProxy    bool          `yaml:"trust_proxy"` // honor X-Forwarded-For
}

// OutboxConfig sizes the queue between the alert sink and the forwarder.
type OutboxConfig struct {
	Size int `yaml:"size"`
}

// WebhookConfig configures a generic JSON webhook channel.
type WebhookConfig struct {
	Enabled bool              `yaml:"enabled"`
	Name    string            `yaml:"name"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
}

// SlackConfig configures the Slack incoming-webhook channel.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel"`
	Username   string `yaml:"username"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			SecurityHeaders: true,
		},
		Ingest: IngestConfig{
			MaxBatchSize:   1000,
			MaxPayloadSize: 10 * 1024 * 1024,
		},
		Auth: AuthConfig{
			APIKeyHeader: "X-API-Key",
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			RequestsPerIP: 1000,
			WindowSize:    time.Minute,
			BurstSize:     50,
			CleanupPeriod: 5 * time.Minute,
			ExemptPaths:   []string{"/health", "/metrics"},
		},
		Logging:    logging.DefaultConfig(),
		Validation: schema.DefaultValidatorConfig(),
		Detection:  detection.DefaultConfig(),
		Outbox:     OutboxConfig{Size: 10000},
		Forwarder:  alerting.DefaultForwarderConfig(),
		Kafka:      *kafka.DefaultConfig(),
		Redis:      alerting.DefaultRedisConfig(),
		Webhook: WebhookConfig{
			Name: "webhook",
		},
		Slack: SlackConfig{
			Username: "fleet-sentinel",
		},
	}
}

// Load reads the file named by SENTINEL_CONFIG_PATH (or DefaultPath) and
// applies environment overrides. A missing file yields the defaults.
func Load() (*Config, error) {
	path := os.Getenv("SENTINEL_CONFIG_PATH")
	if path == "" {
		path = DefaultPath
	}
	return LoadFile(path)
}

// LoadFile reads configuration from path on top of the defaults, then
// applies environment overrides.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if port := os.Getenv("SENTINEL_HTTP_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid SENTINEL_HTTP_PORT %q: %w", port, err)
		}
		c.Server.HTTPPort = p
	}

	if level := os.Getenv("SENTINEL_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if apiKey := os.Getenv("SENTINEL_API_KEY"); apiKey != "" {
		c.Auth.APIKeys = append(c.Auth.APIKeys, apiKey)
		c.Auth.Enabled = true
	}

	if brokers := os.Getenv("SENTINEL_KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = splitAndTrim(brokers, ",")
		c.Kafka.Enabled = true
	}

	if addr := os.Getenv("SENTINEL_REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
		c.Redis.Enabled = true
	}

	if url := os.Getenv("SENTINEL_WEBHOOK_URL"); url != "" {
		c.Webhook.URL = url
		c.Webhook.Enabled = true
	}

	if enabled := os.Getenv("SENTINEL_RATELIMIT_ENABLED"); enabled == "false" {
		c.RateLimit.Enabled = false
	}

	return nil
}

func splitAndTrim(s, sep string) []string {
	var parts []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// Validate validates the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid http_port: %d", c.Server.HTTPPort))
	}
	if c.Ingest.MaxBatchSize <= 0 {
		errs = append(errs, errors.New("max_batch_size must be positive"))
	}
	if c.Ingest.MaxPayloadSize <= 0 {
		errs = append(errs, errors.New("max_payload_size must be positive"))
	}
	if c.Outbox.Size <= 0 {
		errs = append(errs, errors.New("outbox size must be positive"))
	}
	if c.Forwarder.Workers <= 0 {
		errs = append(errs, errors.New("forwarder workers must be positive"))
	}

	if c.Auth.Enabled {
		if c.Auth.APIKeyHeader == "" {
			errs = append(errs, errors.New("auth: api_key_header is required"))
		}
		if len(c.Auth.APIKeys) == 0 {
			errs = append(errs, errors.New("auth: at least one api key is required"))
		}
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerIP <= 0 || c.RateLimit.WindowSize <= 0 {
			errs = append(errs, errors.New("rate_limit: requests_per_ip and window_size must be positive"))
		}
		if c.RateLimit.CleanupPeriod <= 0 {
			errs = append(errs, errors.New("rate_limit: cleanup_period must be positive"))
		}
	}

	if err := c.Detection.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("detection: %w", err))
	}

	if c.Kafka.Enabled {
		if err := c.Kafka.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis: addr is required"))
	}
	if c.Webhook.Enabled && c.Webhook.URL == "" {
		errs = append(errs, errors.New("webhook: url is required"))
	}
	if c.Slack.Enabled && c.Slack.WebhookURL == "" {
		errs = append(errs, errors.New("slack: webhook_url is required"))
	}

	return errors.Join(errs...)
}
