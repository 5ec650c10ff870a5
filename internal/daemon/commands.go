package daemon

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/oselz/orderline/pkg/dispatch"
	"github.com/oselz/orderline/pkg/session"
)

// commandRouter handles slash commands from senders. Commands never enter
// correlation; they act on the sender's own session only.
type commandRouter struct {
	store    session.Store
	notifier dispatch.Notifier
	logger   zerolog.Logger
}

func newCommandRouter(store session.Store, notifier dispatch.Notifier, logger zerolog.Logger) *commandRouter {
	return &commandRouter{
		store:    store,
		notifier: notifier,
		logger:   logger.With().Str("module", "commands").Logger(),
	}
}

// Route implements correlation.CommandRouter.
func (r *commandRouter) Route(ctx context.Context, senderID, commandText string) error {
	fields := strings.Fields(commandText)
	if len(fields) == 0 {
		return nil
	}
	command := strings.ToLower(fields[0])

	r.logger.Info().
		Str("sender_id", senderID).
		Str("command", command).
		Msg("command received")

	switch command {
	case "/reset":
		return r.handleReset(ctx, senderID)
	case "/status":
		return r.handleStatus(ctx, senderID)
	default:
		return r.notifier.Send(ctx, senderID, fmt.Sprintf("Unknown command %s. Available: /reset, /status", command))
	}
}

func (r *commandRouter) handleReset(ctx context.Context, senderID string) error {
	var dropped int
	err := r.store.Mutate(senderID, func(s *session.Session) {
		dropped = len(s.Pending)
		s.Reset()
	})
	if err != nil {
		return fmt.Errorf("reset session for %s: %w", senderID, err)
	}

	text := "Session cleared."
	if dropped > 0 {
		text = fmt.Sprintf("Session cleared. %d buffered photo(s) were discarded.", dropped)
	}
	return r.notifier.Send(ctx, senderID, text)
}

func (r *commandRouter) handleStatus(ctx context.Context, senderID string) error {
	s := r.store.GetOrCreate(senderID)

	name := s.CustomerName
	if name == "" {
		name = "(not set)"
	}
	text := fmt.Sprintf("Customer name: %s. Buffered photos: %d.", name, len(s.Pending))
	return r.notifier.Send(ctx, senderID, text)
}
