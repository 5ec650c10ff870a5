package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/oselz/orderline/internal/observability"
	"github.com/oselz/orderline/pkg/ingest"
	"github.com/oselz/orderline/pkg/taskqueue"
)

const maxRequestBody = 10 << 20

// EventHandler processes a parsed intake event. The correlation engine
// satisfies this interface.
type EventHandler interface {
	Handle(ctx context.Context, ev ingest.Event) error
}

// SessionCounter reports the number of live sessions, used by the health
// endpoint. The session store satisfies this interface.
type SessionCounter interface {
	Len() int
}

// Server exposes the single gateway intake endpoint over HTTP. Requests are
// authenticated, parsed, and handed to a per-sender queue lane; the response
// is written as soon as the event is enqueued so the gateway never waits on
// correlation or media downloads.
type Server struct {
	opts      ServerOptions
	adapter   *ingest.Adapter
	handler   EventHandler
	queue     *taskqueue.Queue
	validator Validator
	limiter   *RateLimiter
	sessions  SessionCounter
	logger    zerolog.Logger

	httpServer   *http.Server
	startTime    time.Time
	shuttingDown bool
	shutdownMu   sync.RWMutex
	inFlightReqs sync.WaitGroup
}

// NewServer creates an intake server. The queue must outlive the server;
// lanes are created on demand per sender.
func NewServer(opts ServerOptions, adapter *ingest.Adapter, handler EventHandler, queue *taskqueue.Queue, sessions SessionCounter, logger zerolog.Logger) *Server {
	if opts.Path == "" {
		opts.Path = "/webhook/orders"
	}
	if opts.SignatureHeader == "" {
		opts.SignatureHeader = "X-Webhook-Signature"
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 30 * time.Second
	}

	s := &Server{
		opts:      opts,
		adapter:   adapter,
		handler:   handler,
		queue:     queue,
		sessions:  sessions,
		logger:    logger.With().Str("module", "webhook").Logger(),
		startTime: time.Now(),
	}

	if opts.Secret != "" {
		s.validator = NewHMACValidator(opts.Secret, opts.SignatureAlgorithm)
	}
	if opts.RateLimitPerMinute > 0 {
		s.limiter = NewRateLimiter(opts.RateLimitPerMinute)
	}

	return s
}

// Start begins serving; it blocks until the listener fails or Stop is called.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc(s.opts.Path, s.handleIntake)
	mux.HandleFunc("/health", s.handleHealth)
	if s.opts.EnableMetrics {
		mux.Handle("/metrics", observability.MetricsHandler())
	}

	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().
		Str("addr", addr).
		Str("path", s.opts.Path).
		Bool("signature_required", s.validator != nil).
		Msg("intake server starting")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("intake server: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.shuttingDown = true
	s.shutdownMu.Unlock()

	drained := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		s.logger.Info().Msg("in-flight requests drained")
	case <-time.After(s.opts.ShutdownTimeout):
		s.logger.Warn().Msg("shutdown timeout waiting for in-flight requests")
	case <-ctx.Done():
	}

	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleIntake(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.shutdownMu.RLock()
	stopping := s.shuttingDown
	s.shutdownMu.RUnlock()
	if stopping {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	s.inFlightReqs.Add(1)
	defer s.inFlightReqs.Done()

	if s.limiter != nil {
		ip := clientIP(r)
		if !s.limiter.Allow(ip) {
			observability.RecordEventRejected("rate_limited")
			w.Header().Set("Retry-After", strconv.Itoa(s.limiter.RetryAfter(ip)))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if s.validator != nil {
		sig := r.Header.Get(s.opts.SignatureHeader)
		if !s.validator.Validate(sig, r.URL.String(), body) {
			observability.RecordEventRejected("bad_signature")
			s.logger.Warn().Str("remote", clientIP(r)).Msg("signature verification failed")
			http.Error(w, "invalid signature", http.StatusForbidden)
			return
		}
	}

	ev, err := s.adapter.Parse(body)
	if err != nil {
		if errors.Is(err, ingest.ErrMalformedEvent) {
			observability.RecordEventRejected("malformed")
			s.logger.Warn().Err(err).Msg("malformed event payload")
			http.Error(w, "malformed payload", http.StatusBadRequest)
			return
		}
		http.Error(w, "failed to parse payload", http.StatusInternalServerError)
		return
	}

	lane := "sender:" + ev.SenderID
	s.queue.EnsureLane(lane, 1)
	handler := s.handler
	logger := s.logger
	s.queue.Submit(lane, func(ctx context.Context) error {
		return handler.Handle(ctx, ev)
	}, func(err error) {
		if err != nil {
			logger.Error().Err(err).Str("event_id", ev.ID).Str("sender", ev.SenderID).Msg("event processing failed")
		}
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":   "queued",
		"event_id": ev.ID,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
	}
	if s.sessions != nil {
		resp["active_sessions"] = s.sessions.Len()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for i := range fwd {
			if fwd[i] == ',' {
				return fwd[:i]
			}
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
