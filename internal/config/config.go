package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config represents the main Orderline configuration
type Config struct {
	// Server holds the intake webhook server settings
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Signature holds request authentication settings
	Signature SignatureConfig `json:"signature" mapstructure:"signature"`

	// Correlation holds pairing and session lifecycle tunables
	Correlation CorrelationConfig `json:"correlation" mapstructure:"correlation"`

	// Fetch holds media download settings
	Fetch FetchConfig `json:"fetch" mapstructure:"fetch"`

	// Pipeline holds downstream submission settings
	Pipeline PipelineConfig `json:"pipeline" mapstructure:"pipeline"`

	// Gateway holds the chat gateway send API settings
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Authorization holds the sender allowlist
	Authorization AuthorizationConfig `json:"authorization" mapstructure:"authorization"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds intake server configuration
type ServerConfig struct {
	Host               string `json:"host" mapstructure:"host"`
	Port               int    `json:"port" mapstructure:"port"`
	Path               string `json:"path" mapstructure:"path"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"`
	ShutdownTimeout    int    `json:"shutdown_timeout" mapstructure:"shutdown_timeout"` // seconds
	EnableMetrics      bool   `json:"enable_metrics" mapstructure:"enable_metrics"`
}

// SignatureConfig holds webhook signature verification settings
type SignatureConfig struct {
	Secret    string `json:"secret" mapstructure:"secret"`
	Header    string `json:"header" mapstructure:"header"`
	Algorithm string `json:"algorithm" mapstructure:"algorithm"` // sha256, sha1
}

// CorrelationConfig holds pairing window and session lifecycle tunables.
// Durations are in seconds; WindowSeconds and ThrottleSeconds reload live.
type CorrelationConfig struct {
	WindowSeconds    int    `json:"window_seconds" mapstructure:"window_seconds"`
	RetentionSeconds int    `json:"retention_seconds" mapstructure:"retention_seconds"`
	SweepSchedule    string `json:"sweep_schedule" mapstructure:"sweep_schedule"`
	ThrottleSeconds  int    `json:"throttle_seconds" mapstructure:"throttle_seconds"`
}

// FetchConfig holds media download settings
type FetchConfig struct {
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	MaxBytes       int64  `json:"max_bytes" mapstructure:"max_bytes"`
	Username       string `json:"username" mapstructure:"username"`
	Password       string `json:"password" mapstructure:"password"`
}

// PipelineConfig holds downstream submission settings. An empty endpoint
// routes intake units to the log instead.
type PipelineConfig struct {
	Workers        int    `json:"workers" mapstructure:"workers"`
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	Endpoint       string `json:"endpoint" mapstructure:"endpoint"`
	Token          string `json:"token" mapstructure:"token"`
}

// GatewayConfig holds the chat gateway send API used for outbound
// notifications. An empty send URL routes notifications to the log.
type GatewayConfig struct {
	SendURL string `json:"send_url" mapstructure:"send_url"`
	Token   string `json:"token" mapstructure:"token"`
}

// AuthorizationConfig holds the sender allowlist. An empty allowlist admits
// every sender.
type AuthorizationConfig struct {
	Allowlist []string `json:"allowlist" mapstructure:"allowlist"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level    string `json:"level" mapstructure:"level"`
	File     string `json:"file" mapstructure:"file"`
	MaxSize  int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge   int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress bool   `json:"compress" mapstructure:"compress"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               3001,
			Path:               "/webhook/orders",
			RateLimitPerMinute: 100,
			ShutdownTimeout:    30,
			EnableMetrics:      true,
		},
		Signature: SignatureConfig{
			Header:    "X-Webhook-Signature",
			Algorithm: "sha256",
		},
		Correlation: CorrelationConfig{
			WindowSeconds:    5,
			RetentionSeconds: 3600,
			SweepSchedule:    "@every 1m",
			ThrottleSeconds:  300,
		},
		Fetch: FetchConfig{
			TimeoutSeconds: 30,
			MaxBytes:       5 << 20,
		},
		Pipeline: PipelineConfig{
			Workers:        4,
			TimeoutSeconds: 30,
		},
		Logging: LoggingConfig{
			Level:    "info",
			MaxSize:  100,
			MaxAge:   7,
			Compress: true,
		},
	}
}

// Window returns the pairing window as a duration.
func (c CorrelationConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// Retention returns the idle session retention as a duration.
func (c CorrelationConfig) Retention() time.Duration {
	return time.Duration(c.RetentionSeconds) * time.Second
}

// Throttle returns the unauthorized-notice throttle as a duration.
func (c CorrelationConfig) Throttle() time.Duration {
	return time.Duration(c.ThrottleSeconds) * time.Second
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Path == "" || c.Server.Path[0] != '/' {
		return fmt.Errorf("server path must start with '/': %q", c.Server.Path)
	}
	if c.Server.RateLimitPerMinute < 0 {
		return fmt.Errorf("rate_limit_per_minute must not be negative")
	}

	if c.Signature.Secret != "" {
		if c.Signature.Algorithm != "sha256" && c.Signature.Algorithm != "sha1" {
			return fmt.Errorf("invalid signature algorithm %s (must be: sha256, sha1)", c.Signature.Algorithm)
		}
	}

	if c.Correlation.WindowSeconds <= 0 {
		return fmt.Errorf("correlation window_seconds must be positive")
	}
	if c.Correlation.RetentionSeconds <= 0 {
		return fmt.Errorf("correlation retention_seconds must be positive")
	}
	if c.Correlation.RetentionSeconds < c.Correlation.WindowSeconds {
		return fmt.Errorf("retention_seconds must not be shorter than window_seconds")
	}
	if c.Correlation.ThrottleSeconds <= 0 {
		return fmt.Errorf("correlation throttle_seconds must be positive")
	}

	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch timeout_seconds must be positive")
	}
	if c.Fetch.MaxBytes <= 0 {
		return fmt.Errorf("fetch max_bytes must be positive")
	}

	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline workers must be positive")
	}
	if c.Pipeline.TimeoutSeconds <= 0 {
		return fmt.Errorf("pipeline timeout_seconds must be positive")
	}

	switch c.Logging.Level {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	return nil
}
