package correlation

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/oselz/orderline/internal/observability"
	"github.com/oselz/orderline/pkg/dispatch"
	"github.com/oselz/orderline/pkg/ingest"
	"github.com/oselz/orderline/pkg/session"
)

const (
	DefaultWindow         = 5 * time.Second
	DefaultThrottleWindow = 5 * time.Minute
)

// Authorizer reports whether a sender is permitted to place orders. The
// authorization decision itself (tenant lookup, phone allowlists) lives
// outside this engine.
type Authorizer interface {
	Authorize(ctx context.Context, senderID string) (bool, error)
}

// Notifier delivers outbound messages to a sender.
type Notifier interface {
	Send(ctx context.Context, senderID, text string) error
}

// CommandRouter receives events whose text begins with the command marker.
// The engine performs no further processing of such events.
type CommandRouter interface {
	Route(ctx context.Context, senderID, commandText string) error
}

// Engine applies the pairing rules to inbound events. All session state goes
// through the store's atomic Mutate; media download and notifications happen
// outside the per-sender lock.
type Engine struct {
	store      session.Store
	dispatcher *dispatch.Dispatcher
	fetcher    ingest.Fetcher
	authorizer Authorizer
	notifier   Notifier
	commands   CommandRouter
	logger     zerolog.Logger

	window   atomic.Int64 // nanoseconds
	throttle atomic.Int64 // nanoseconds
}

// NewEngine wires the engine. Zero window and throttle fall back to
// DefaultWindow and DefaultThrottleWindow.
func NewEngine(
	store session.Store,
	dispatcher *dispatch.Dispatcher,
	fetcher ingest.Fetcher,
	authorizer Authorizer,
	notifier Notifier,
	commands CommandRouter,
	window time.Duration,
	throttle time.Duration,
	logger zerolog.Logger,
) *Engine {
	if window == 0 {
		window = DefaultWindow
	}
	if throttle == 0 {
		throttle = DefaultThrottleWindow
	}
	e := &Engine{
		store:      store,
		dispatcher: dispatcher,
		fetcher:    fetcher,
		authorizer: authorizer,
		notifier:   notifier,
		commands:   commands,
		logger:     logger.With().Str("module", "correlation").Logger(),
	}
	e.window.Store(int64(window))
	e.throttle.Store(int64(throttle))
	return e
}

// Window returns the current correlation window.
func (e *Engine) Window() time.Duration {
	return time.Duration(e.window.Load())
}

// SetWindow updates the correlation window at runtime.
func (e *Engine) SetWindow(d time.Duration) {
	if d <= 0 {
		return
	}
	e.window.Store(int64(d))
	e.logger.Info().Dur("window", d).Msg("Correlation window updated")
}

// ThrottleWindow returns the unauthorized-notice throttle window.
func (e *Engine) ThrottleWindow() time.Duration {
	return time.Duration(e.throttle.Load())
}

// SetThrottleWindow updates the throttle window at runtime.
func (e *Engine) SetThrottleWindow(d time.Duration) {
	if d <= 0 {
		return
	}
	e.throttle.Store(int64(d))
	e.logger.Info().Dur("throttle_window", d).Msg("Unauthorized throttle window updated")
}

// decision is the outcome of one atomic session mutation. Everything that
// touches the network (dispatch, notices) happens after the lock is released.
type decision struct {
	dispatchName string
	dispatchAtts []session.Attachment
	expired      int
	discarded    int
	buffered     int
}

// Handle processes one normalized event end to end.
func (e *Engine) Handle(ctx context.Context, ev ingest.Event) error {
	start := time.Now()
	defer func() { observability.RecordEventDuration(time.Since(start)) }()

	logger := e.logger.With().
		Str("event_id", ev.ID).
		Str("sender_id", ev.SenderID).
		Logger()

	if ev.IsCommand {
		observability.RecordEvent("command")
		logger.Debug().Str("command", ev.Text).Msg("Event routed to command subsystem")
		return e.commands.Route(ctx, ev.SenderID, ev.Text)
	}

	authorized, err := e.authorizer.Authorize(ctx, ev.SenderID)
	if err != nil {
		return fmt.Errorf("authorization check for %s: %w", ev.SenderID, err)
	}
	if !authorized {
		observability.RecordEventRejected("unauthorized")
		e.handleUnauthorized(ctx, ev.SenderID, logger)
		return nil
	}

	// Download media before taking the per-sender lock. A failed download
	// skips that attachment only.
	attachments, fetchFailed := e.fetchMedia(ctx, ev, logger)

	observability.RecordEvent(eventKind(ev.Text, attachments))

	now := time.Now()
	var d decision
	if err := e.store.Mutate(ev.SenderID, func(s *session.Session) {
		d = e.apply(s, ev.Text, attachments, now)
		s.LastActivityAt = now
	}); err != nil {
		return fmt.Errorf("session mutation for %s: %w", ev.SenderID, err)
	}

	e.settle(ctx, ev.SenderID, d, fetchFailed, logger)
	return nil
}

// apply runs the pairing rules against the locked session and returns what to
// do once the lock is released.
func (e *Engine) apply(s *session.Session, text string, attachments []session.Attachment, now time.Time) decision {
	var d decision
	window := e.Window()

	switch {
	case text != "" && len(attachments) > 0:
		// Combined message: both pieces are authoritative for the same
		// order. Anything buffered earlier is superseded, not merged.
		d.discarded = len(s.Pending)
		d.dispatchName = text
		d.dispatchAtts = attachments
		s.Reset()

	case text != "":
		s.CustomerName = text
		recent, expired := partitionByAge(s.Pending, now, window)
		d.expired = len(expired)
		if len(recent) > 0 {
			d.dispatchName = s.CustomerName
			d.dispatchAtts = recent
			s.Reset()
		} else {
			// Name stored, awaiting photos. Expired leftovers are gone
			// either way.
			s.Pending = nil
		}

	case len(attachments) > 0:
		if s.CustomerName != "" {
			// Name-then-media dispatches immediately, so the buffer is
			// empty whenever a name is set.
			d.dispatchName = s.CustomerName
			d.dispatchAtts = attachments
			s.Reset()
		} else {
			recent, expired := partitionByAge(s.Pending, now, window)
			d.expired = len(expired)
			s.Pending = append(recent, attachments...)
			d.buffered = len(attachments)
		}
	}

	return d
}

// settle performs the side effects decided under the lock.
func (e *Engine) settle(ctx context.Context, senderID string, d decision, fetchFailed int, logger zerolog.Logger) {
	if d.discarded > 0 {
		observability.RecordAttachmentsDiscarded(d.discarded)
		logger.Info().Int("discarded", d.discarded).Msg("Buffered attachments superseded by combined message")
	}
	if d.expired > 0 {
		observability.RecordAttachmentsExpired(d.expired)
		logger.Info().Int("expired", d.expired).Msg("Buffered attachments aged out")
		e.notify(ctx, senderID, "expiry",
			fmt.Sprintf("%d photo(s) arrived too long before the name and were dropped. Please resend them.", d.expired),
			logger)
	}
	if fetchFailed > 0 {
		e.notify(ctx, senderID, "fetch_failure",
			fmt.Sprintf("%d photo(s) could not be downloaded. Please resend them.", fetchFailed),
			logger)
	}

	if d.dispatchName != "" && len(d.dispatchAtts) > 0 {
		if _, err := e.dispatcher.Dispatch(senderID, d.dispatchName, d.dispatchAtts); err != nil {
			// Unreachable with a non-empty name and attachments; logged
			// rather than propagated because the session is already reset.
			logger.Error().Err(err).Msg("Dispatch refused")
		}
		return
	}

	if d.buffered > 0 {
		observability.RecordAttachmentsBuffered(d.buffered)
		e.notify(ctx, senderID, "ack",
			fmt.Sprintf("%d photo(s) received. Send the customer name to finish the order.", d.buffered),
			logger)
	}
}

// handleUnauthorized sends the rejection notice unless one was already sent
// within the throttle window. Throttle state lives on the session so a
// spamming unknown sender holds exactly one session, nothing more.
func (e *Engine) handleUnauthorized(ctx context.Context, senderID string, logger zerolog.Logger) {
	throttle := e.ThrottleWindow()
	now := time.Now()

	shouldNotify := false
	e.store.Mutate(senderID, func(s *session.Session) {
		if !s.WarningActive || now.Sub(s.LastWarningAt) > throttle {
			shouldNotify = true
			s.WarningActive = true
			s.LastWarningAt = now
		}
		s.LastActivityAt = now
	})

	if shouldNotify {
		logger.Warn().Msg("Unauthorized sender rejected")
		e.notify(ctx, senderID, "unauthorized",
			"This number is not registered for order intake. Contact your administrator to get access.",
			logger)
	} else {
		logger.Debug().Msg("Unauthorized sender rejection suppressed by throttle")
	}
}

// fetchMedia downloads every media reference in the event. Each attachment
// gets its own ReceivedAt at buffering time.
func (e *Engine) fetchMedia(ctx context.Context, ev ingest.Event, logger zerolog.Logger) ([]session.Attachment, int) {
	if len(ev.Media) == 0 {
		return nil, 0
	}

	now := time.Now()
	attachments := make([]session.Attachment, 0, len(ev.Media))
	failed := 0

	for _, ref := range ev.Media {
		data, err := e.fetcher.Fetch(ctx, ref)
		if err != nil {
			observability.RecordMediaFetchError()
			logger.Warn().Str("url", ref.URL).Err(err).Msg("Media fetch failed, skipping attachment")
			failed++
			continue
		}
		attachments = append(attachments, session.Attachment{
			Data:        data,
			ContentType: ref.ContentType,
			ReceivedAt:  now,
		})
	}

	return attachments, failed
}

func (e *Engine) notify(ctx context.Context, senderID, kind, text string, logger zerolog.Logger) {
	observability.RecordNotification(kind)
	if err := e.notifier.Send(ctx, senderID, text); err != nil {
		logger.Warn().Str("kind", kind).Err(err).Msg("Failed to send notification")
	}
}

// partitionByAge splits attachments into those still inside the correlation
// window and those past it, preserving arrival order.
func partitionByAge(pending []session.Attachment, now time.Time, window time.Duration) (recent, expired []session.Attachment) {
	for _, a := range pending {
		if now.Sub(a.ReceivedAt) <= window {
			recent = append(recent, a)
		} else {
			expired = append(expired, a)
		}
	}
	return recent, expired
}

func eventKind(text string, attachments []session.Attachment) string {
	switch {
	case text != "" && len(attachments) > 0:
		return "combined"
	case text != "":
		return "text"
	case len(attachments) > 0:
		return "media"
	default:
		return "empty"
	}
}
