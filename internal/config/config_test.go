package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 3001, cfg.Server.Port)
	assert.Equal(t, "/webhook/orders", cfg.Server.Path)
	assert.Equal(t, "sha256", cfg.Signature.Algorithm)
	assert.Equal(t, 5, cfg.Correlation.WindowSeconds)
	assert.Equal(t, 3600, cfg.Correlation.RetentionSeconds)
	assert.Equal(t, 300, cfg.Correlation.ThrottleSeconds)
	assert.Equal(t, int64(5<<20), cfg.Fetch.MaxBytes)
	assert.Equal(t, "info", cfg.Logging.Level)

	require.NoError(t, cfg.Validate())
}

func TestCorrelationConfig_Durations(t *testing.T) {
	c := CorrelationConfig{WindowSeconds: 5, RetentionSeconds: 3600, ThrottleSeconds: 300}

	assert.Equal(t, 5*time.Second, c.Window())
	assert.Equal(t, time.Hour, c.Retention())
	assert.Equal(t, 5*time.Minute, c.Throttle())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "path without leading slash",
			mutate:  func(c *Config) { c.Server.Path = "webhook" },
			wantErr: "must start with '/'",
		},
		{
			name: "bad signature algorithm",
			mutate: func(c *Config) {
				c.Signature.Secret = "s3cret"
				c.Signature.Algorithm = "md5"
			},
			wantErr: "invalid signature algorithm",
		},
		{
			name:   "algorithm ignored without secret",
			mutate: func(c *Config) { c.Signature.Algorithm = "md5" },
		},
		{
			name:    "zero window",
			mutate:  func(c *Config) { c.Correlation.WindowSeconds = 0 },
			wantErr: "window_seconds must be positive",
		},
		{
			name: "retention shorter than window",
			mutate: func(c *Config) {
				c.Correlation.WindowSeconds = 60
				c.Correlation.RetentionSeconds = 30
			},
			wantErr: "retention_seconds must not be shorter",
		},
		{
			name:    "zero throttle",
			mutate:  func(c *Config) { c.Correlation.ThrottleSeconds = 0 },
			wantErr: "throttle_seconds must be positive",
		},
		{
			name:    "zero fetch timeout",
			mutate:  func(c *Config) { c.Fetch.TimeoutSeconds = 0 },
			wantErr: "fetch timeout_seconds must be positive",
		},
		{
			name:    "zero pipeline workers",
			mutate:  func(c *Config) { c.Pipeline.Workers = 0 },
			wantErr: "pipeline workers must be positive",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "invalid log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
