package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

// CommandMarker is the prefix that routes an event to the command subsystem
// instead of the correlation engine.
const CommandMarker = "/"

// ErrMalformedEvent marks a payload that cannot be normalized (missing or
// empty sender identity, wrong shape). Such events are dropped with a logged
// warning and never queued.
var ErrMalformedEvent = errors.New("malformed event")

// MediaRef points at one media item on the gateway's media host.
type MediaRef struct {
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
}

// Event is the canonical form of one inbound gateway message.
type Event struct {
	ID         string
	SenderID   string
	Text       string
	Media      []MediaRef
	IsCommand  bool
	ReceivedAt time.Time
}

// payloadSchema validates the vendor-neutral webhook body shape before any
// field is read.
const payloadSchema = `{
	"type": "object",
	"required": ["sender"],
	"properties": {
		"sender": {"type": "string", "minLength": 1},
		"text": {"type": "string"},
		"media": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["url"],
				"properties": {
					"url": {"type": "string", "minLength": 1},
					"contentType": {"type": "string"}
				}
			}
		}
	}
}`

type payload struct {
	Sender string     `json:"sender"`
	Text   string     `json:"text"`
	Media  []MediaRef `json:"media"`
}

// Adapter turns raw webhook bodies into Events.
type Adapter struct {
	schema *gojsonschema.Schema
	logger zerolog.Logger
}

// NewAdapter creates an Adapter with the payload schema compiled.
func NewAdapter(logger zerolog.Logger) (*Adapter, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(payloadSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile payload schema: %w", err)
	}
	return &Adapter{
		schema: schema,
		logger: logger.With().Str("module", "ingest").Logger(),
	}, nil
}

// Parse validates and normalizes a raw webhook body. The returned event
// carries a fresh nanoid used to correlate log lines across the pipeline.
func (a *Adapter) Parse(raw []byte) (Event, error) {
	result, err := a.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		a.logger.Warn().Err(err).Msg("Payload is not valid JSON")
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			details = append(details, e.String())
		}
		a.logger.Warn().Strs("errors", details).Msg("Payload failed schema validation")
		return Event{}, fmt.Errorf("%w: %s", ErrMalformedEvent, strings.Join(details, "; "))
	}

	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	id, _ := gonanoid.New()
	text := strings.TrimSpace(p.Text)

	ev := Event{
		ID:         id,
		SenderID:   p.Sender,
		Text:       text,
		Media:      p.Media,
		IsCommand:  strings.HasPrefix(text, CommandMarker),
		ReceivedAt: time.Now(),
	}

	a.logger.Debug().
		Str("event_id", ev.ID).
		Str("sender_id", ev.SenderID).
		Bool("has_text", ev.Text != "").
		Int("media", len(ev.Media)).
		Bool("is_command", ev.IsCommand).
		Msg("Event normalized")

	return ev, nil
}
