package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// HTTPNotifier sends outbound texts to a sender through the chat gateway's
// send API.
type HTTPNotifier struct {
	sendURL string
	token   string
	client  *http.Client
	logger  zerolog.Logger
}

// NewHTTPNotifier creates a notifier posting to the gateway sendURL.
func NewHTTPNotifier(sendURL, token string, timeout time.Duration, logger zerolog.Logger) *HTTPNotifier {
	if timeout <= 0 {
		timeout = DefaultSubmitTimeout
	}
	return &HTTPNotifier{
		sendURL: sendURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("module", "notifier").Logger(),
	}
}

// Send implements Notifier.
func (n *HTTPNotifier) Send(ctx context.Context, senderID, text string) error {
	body, err := json.Marshal(map[string]string{
		"recipient": senderID,
		"text":      text,
	})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.sendURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway send returned %d", resp.StatusCode)
	}
	return nil
}

// LogNotifier writes outbound texts to the log instead of a gateway. It
// stands in when no send URL is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("module", "notifier").Logger()}
}

// Send implements Notifier.
func (n *LogNotifier) Send(_ context.Context, senderID, text string) error {
	n.logger.Info().
		Str("sender_id", senderID).
		Str("text", text).
		Msg("outbound notification (log notifier)")
	return nil
}

var _ Notifier = (*HTTPNotifier)(nil)
var _ Notifier = (*LogNotifier)(nil)
