package config

import (
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnChange(t *testing.T) {
	path := writeConfigFile(t, `{"correlation": {"window_seconds": 5}}`)
	loader := NewLoader(path)

	reloaded := make(chan *Config, 1)
	w := NewWatcher(loader, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	}, zerolog.Nop())
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte(`{"correlation": {"window_seconds": 12}}`), 0644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 12, cfg.Correlation.WindowSeconds)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcher_IgnoresInvalidConfig(t *testing.T) {
	path := writeConfigFile(t, `{"correlation": {"window_seconds": 5}}`)
	loader := NewLoader(path)

	reloaded := make(chan *Config, 1)
	w := NewWatcher(loader, func(cfg *Config) { reloaded <- cfg }, zerolog.Nop())
	require.NoError(t, w.Start())
	defer w.Stop()

	// window_seconds of zero fails validation; the callback must not fire.
	require.NoError(t, os.WriteFile(path, []byte(`{"correlation": {"window_seconds": 0}}`), 0644))

	select {
	case <-reloaded:
		t.Fatal("invalid config must not be delivered")
	case <-time.After(time.Second):
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	path := writeConfigFile(t, `{}`)
	w := NewWatcher(NewLoader(path), nil, zerolog.Nop())
	require.NoError(t, w.Start())

	w.Stop()
	w.Stop()
}
