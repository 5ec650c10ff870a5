package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ErrPipeline marks a downstream rejection of an intake unit.
var ErrPipeline = errors.New("pipeline rejected intake unit")

// HTTPPipeline submits intake units to an extraction service as JSON over
// HTTP. Any non-2xx response is ErrPipeline.
type HTTPPipeline struct {
	endpoint string
	token    string
	client   *http.Client
	logger   zerolog.Logger
}

// NewHTTPPipeline creates a pipeline posting to endpoint. token, when set, is
// sent as a bearer token.
func NewHTTPPipeline(endpoint, token string, timeout time.Duration, logger zerolog.Logger) *HTTPPipeline {
	if timeout <= 0 {
		timeout = DefaultSubmitTimeout
	}
	return &HTTPPipeline{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("module", "pipeline").Logger(),
	}
}

type wireAttachment struct {
	Data        []byte    `json:"data"`
	ContentType string    `json:"contentType"`
	ReceivedAt  time.Time `json:"receivedAt"`
}

type wireUnit struct {
	ID           string           `json:"id"`
	SenderID     string           `json:"sender"`
	CustomerName string           `json:"customerName"`
	Attachments  []wireAttachment `json:"attachments"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// Submit implements Pipeline.
func (p *HTTPPipeline) Submit(ctx context.Context, unit OrderIntakeUnit) error {
	body, err := json.Marshal(toWire(unit))
	if err != nil {
		return fmt.Errorf("encode intake unit %s: %w", unit.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build pipeline request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPipeline, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: endpoint returned %d", ErrPipeline, resp.StatusCode)
	}

	p.logger.Debug().
		Str("unit_id", unit.ID).
		Int("status", resp.StatusCode).
		Msg("intake unit accepted downstream")
	return nil
}

func toWire(unit OrderIntakeUnit) wireUnit {
	atts := make([]wireAttachment, len(unit.Attachments))
	for i, a := range unit.Attachments {
		atts[i] = wireAttachment(a)
	}
	return wireUnit{
		ID:           unit.ID,
		SenderID:     unit.SenderID,
		CustomerName: unit.CustomerName,
		Attachments:  atts,
		CreatedAt:    unit.CreatedAt,
	}
}

// LogPipeline records intake units in the log and accepts them. It stands in
// when no downstream endpoint is configured.
type LogPipeline struct {
	logger zerolog.Logger
}

// NewLogPipeline creates a log-only pipeline.
func NewLogPipeline(logger zerolog.Logger) *LogPipeline {
	return &LogPipeline{logger: logger.With().Str("module", "pipeline").Logger()}
}

// Submit implements Pipeline.
func (p *LogPipeline) Submit(_ context.Context, unit OrderIntakeUnit) error {
	total := 0
	for _, a := range unit.Attachments {
		total += len(a.Data)
	}
	p.logger.Info().
		Str("unit_id", unit.ID).
		Str("sender_id", unit.SenderID).
		Str("customer", unit.CustomerName).
		Int("attachments", len(unit.Attachments)).
		Int("total_bytes", total).
		Msg("intake unit accepted (log pipeline)")
	return nil
}

var _ Pipeline = (*HTTPPipeline)(nil)
var _ Pipeline = (*LogPipeline)(nil)
