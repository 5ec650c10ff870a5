package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/oselz/orderline/internal/config"
	"github.com/oselz/orderline/internal/logger"
	"github.com/oselz/orderline/internal/observability"
	"github.com/oselz/orderline/pkg/correlation"
	"github.com/oselz/orderline/pkg/dispatch"
	"github.com/oselz/orderline/pkg/ingest"
	"github.com/oselz/orderline/pkg/session"
	"github.com/oselz/orderline/pkg/taskqueue"
	"github.com/oselz/orderline/pkg/webhook"
)

// Daemon wires the intake service: webhook surface, per-sender queue,
// correlation engine, dispatcher, session store and janitor.
type Daemon struct {
	config     *config.Config
	configPath string
	logger     *logger.Logger

	store      *session.MemoryStore
	janitor    *session.Janitor
	queue      *taskqueue.Queue
	dispatcher *dispatch.Dispatcher
	engine     *correlation.Engine
	authorizer *correlation.AllowlistAuthorizer

	webhookServer *webhook.Server
	configWatcher *config.Watcher
	lifecycle     *LifecycleManager

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	serveErr chan error
}

// New creates a daemon instance from a validated config. configPath is the
// file the config was loaded from; empty disables runtime reload.
func New(cfg *config.Config, configPath string, log *logger.Logger) (*Daemon, error) {
	observability.EnsureRegistered()

	d := &Daemon{
		config:     cfg,
		configPath: configPath,
		logger:     log,
		serveErr:   make(chan error, 1),
	}

	zl := log.GetZerolog()

	d.store = session.NewMemoryStore()
	d.queue = taskqueue.New()

	d.janitor = session.NewJanitor(d.store, cfg.Correlation.Retention(), cfg.Correlation.SweepSchedule)
	d.janitor.SetOnEvict(func(evicted int) {
		observability.RecordSessionsEvicted(evicted)
	})

	notifier := d.buildNotifier(zl)
	pipeline := d.buildPipeline(zl)

	d.dispatcher = dispatch.NewDispatcher(
		pipeline,
		notifier,
		d.queue,
		cfg.Pipeline.Workers,
		time.Duration(cfg.Pipeline.TimeoutSeconds)*time.Second,
		zl,
	)

	fetcher := ingest.NewHTTPFetcher(
		time.Duration(cfg.Fetch.TimeoutSeconds)*time.Second,
		cfg.Fetch.MaxBytes,
		ingest.Credentials{Username: cfg.Fetch.Username, Password: cfg.Fetch.Password},
		zl,
	)

	d.authorizer = correlation.NewAllowlistAuthorizer(cfg.Authorization.Allowlist)

	commands := newCommandRouter(d.store, notifier, zl)

	d.engine = correlation.NewEngine(
		d.store,
		d.dispatcher,
		fetcher,
		d.authorizer,
		notifier,
		commands,
		cfg.Correlation.Window(),
		cfg.Correlation.Throttle(),
		zl,
	)

	adapter, err := ingest.NewAdapter(zl)
	if err != nil {
		return nil, fmt.Errorf("failed to build ingest adapter: %w", err)
	}

	d.webhookServer = webhook.NewServer(webhook.ServerOptions{
		Host:               cfg.Server.Host,
		Port:               cfg.Server.Port,
		Path:               cfg.Server.Path,
		Secret:             cfg.Signature.Secret,
		SignatureHeader:    cfg.Signature.Header,
		SignatureAlgorithm: cfg.Signature.Algorithm,
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
		ShutdownTimeout:    time.Duration(cfg.Server.ShutdownTimeout) * time.Second,
		EnableMetrics:      cfg.Server.EnableMetrics,
	}, adapter, d.engine, d.queue, d.store, zl)

	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

func (d *Daemon) buildNotifier(zl zerolog.Logger) dispatch.Notifier {
	if d.config.Gateway.SendURL == "" {
		return dispatch.NewLogNotifier(zl)
	}
	timeout := time.Duration(d.config.Pipeline.TimeoutSeconds) * time.Second
	return dispatch.NewHTTPNotifier(d.config.Gateway.SendURL, d.config.Gateway.Token, timeout, zl)
}

func (d *Daemon) buildPipeline(zl zerolog.Logger) dispatch.Pipeline {
	if d.config.Pipeline.Endpoint == "" {
		return dispatch.NewLogPipeline(zl)
	}
	timeout := time.Duration(d.config.Pipeline.TimeoutSeconds) * time.Second
	return dispatch.NewHTTPPipeline(d.config.Pipeline.Endpoint, d.config.Pipeline.Token, timeout, zl)
}

// Start starts all services.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	d.logger.Info().Msg("Starting orderline daemon")

	if err := d.lifecycle.Start(); err != nil {
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if err := d.janitor.Start(); err != nil {
		return fmt.Errorf("failed to start session janitor: %w", err)
	}
	d.logger.Info().Msg("Session janitor started")

	if err := d.startConfigWatcher(); err != nil {
		d.logger.Warn().Err(err).Msg("Config watcher unavailable, runtime reload disabled")
	}

	go func() {
		if err := d.webhookServer.Start(); err != nil {
			d.serveErr <- err
		}
	}()
	d.logger.Info().
		Str("host", d.config.Server.Host).
		Int("port", d.config.Server.Port).
		Msg("Intake server started")

	d.logger.Info().Msg("Daemon started successfully")
	return nil
}

// Stop stops all services gracefully.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	d.logger.Info().Msg("Stopping orderline daemon")

	shutdownTimeout := time.Duration(d.config.Server.ShutdownTimeout) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := d.webhookServer.Stop(ctx); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop intake server")
	}

	// Queued events and pipeline submissions get a bounded drain before the
	// queue is torn down.
	if !d.queue.Drain(shutdownTimeout) {
		d.logger.Warn().Msg("Task queue drain timed out, pending tasks dropped")
	}
	if err := d.queue.Close(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to close task queue")
	}

	d.janitor.Stop()
	d.logger.Info().Msg("Session janitor stopped")

	if d.configWatcher != nil {
		d.configWatcher.Stop()
	}

	if err := d.lifecycle.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	d.logger.Info().Msg("Daemon stopped")
	return nil
}

func (d *Daemon) startConfigWatcher() error {
	if d.configPath == "" {
		return fmt.Errorf("no config file to watch")
	}
	loader := config.NewLoader(d.configPath)
	d.configWatcher = config.NewWatcher(loader, d.applyReload, d.logger.GetZerolog())
	return d.configWatcher.Start()
}

// applyReload applies the runtime-reloadable tunables from a fresh config.
// Structural settings (ports, paths, secrets) require a restart.
func (d *Daemon) applyReload(cfg *config.Config) {
	d.engine.SetWindow(cfg.Correlation.Window())
	d.engine.SetThrottleWindow(cfg.Correlation.Throttle())
	d.janitor.SetRetention(cfg.Correlation.Retention())
	d.authorizer.Replace(cfg.Authorization.Allowlist)

	d.logger.Info().
		Dur("window", cfg.Correlation.Window()).
		Dur("retention", cfg.Correlation.Retention()).
		Dur("throttle", cfg.Correlation.Throttle()).
		Msg("Runtime tunables reloaded")
}

// Status reports the daemon state.
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running:  d.running,
		Sessions: d.store.Len(),
	}
	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}
	return status
}

// Wait blocks until a termination signal or a listener failure, then stops
// the daemon.
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		d.logger.Info().Str("signal", sig.String()).Msg("Received signal")
	case err := <-d.serveErr:
		d.logger.Error().Err(err).Msg("Intake server failed")
	}

	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// Status describes the running daemon.
type Status struct {
	Running   bool
	Uptime    time.Duration
	StartTime time.Time
	Sessions  int
}
