package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads the config file when it changes on disk and hands the new
// config to a callback. Only callers decide which fields are safe to apply at
// runtime; the watcher just delivers validated snapshots.
type Watcher struct {
	loader   *Loader
	onReload func(*Config)
	logger   zerolog.Logger

	watcher  *fsnotify.Watcher
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewWatcher creates a config file watcher. onReload is called with each
// successfully loaded and validated config.
func NewWatcher(loader *Loader, onReload func(*Config), logger zerolog.Logger) *Watcher {
	return &Watcher{
		loader:   loader,
		onReload: onReload,
		logger:   logger.With().Str("module", "config").Logger(),
		stopCh:   make(chan struct{}),
	}
}

// Start begins watching the config file. Editors often replace files rather
// than writing in place, so the parent directory is watched and events are
// filtered by name.
func (w *Watcher) Start() error {
	configPath := w.loader.GetConfigPath()

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fw

	if err := fw.Add(filepath.Dir(configPath)); err != nil {
		fw.Close()
		return err
	}

	go w.run(configPath)
	return nil
}

func (w *Watcher) run(configPath string) {
	// Debounce: editors fire several events per save.
	var timer *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(configPath) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(200*time.Millisecond, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("config watcher error")

		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := w.loader.Load()
	if err != nil {
		w.logger.Error().Err(err).Msg("config reload failed")
		return
	}
	if err := cfg.Validate(); err != nil {
		w.logger.Error().Err(err).Msg("reloaded config is invalid, keeping current settings")
		return
	}

	w.logger.Info().Msg("config reloaded")
	if w.onReload != nil {
		w.onReload(cfg)
	}
}

// Stop halts the watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if w.watcher != nil {
			w.watcher.Close()
		}
	})
}
