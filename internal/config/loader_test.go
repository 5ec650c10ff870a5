package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orderline.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoader_MissingFileReturnsDefaults(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "nope.json"))

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 3001, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Correlation.WindowSeconds)
	assert.NotEmpty(t, cfg.DataDir)
	assert.NotEmpty(t, cfg.Logging.File)
}

func TestLoader_LoadsFileOverDefaults(t *testing.T) {
	path := writeConfigFile(t, `{
		"server": {"port": 9000},
		"correlation": {"window_seconds": 10, "throttle_seconds": 60},
		"signature": {"secret": "hush"}
	}`)

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Correlation.WindowSeconds)
	assert.Equal(t, 60, cfg.Correlation.ThrottleSeconds)
	assert.Equal(t, "hush", cfg.Signature.Secret)

	// Untouched fields keep their defaults.
	assert.Equal(t, "/webhook/orders", cfg.Server.Path)
	assert.Equal(t, 3600, cfg.Correlation.RetentionSeconds)
	assert.Equal(t, "sha256", cfg.Signature.Algorithm)
}

func TestLoader_InvalidJSON(t *testing.T) {
	path := writeConfigFile(t, `{not json`)

	_, err := NewLoader(path).Load()
	assert.Error(t, err)
}

func TestLoader_SaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orderline.json")
	loader := NewLoader(path)

	cfg := DefaultConfig()
	cfg.Server.Port = 4242
	cfg.Authorization.Allowlist = []string{"628111000111"}
	require.NoError(t, loader.Save(cfg))

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 4242, loaded.Server.Port)
	assert.Equal(t, []string{"628111000111"}, loaded.Authorization.Allowlist)
}

func TestLoader_GetConfigPath(t *testing.T) {
	assert.Equal(t, "/tmp/x.json", NewLoader("/tmp/x.json").GetConfigPath())
	assert.Contains(t, NewLoader("").GetConfigPath(), ".orderline")
}
