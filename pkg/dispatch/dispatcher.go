// Package dispatch assembles finalized order intake units and hands them to
// the downstream extraction/persistence pipeline. Submission is asynchronous:
// the webhook response never waits for extraction, but every submission's
// outcome is observed and reported to the sender exactly once.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/oselz/orderline/internal/observability"
	"github.com/oselz/orderline/pkg/session"
	"github.com/oselz/orderline/pkg/taskqueue"
)

// PipelineLane is the task queue lane carrying pipeline submissions.
const PipelineLane = "pipeline"

// DefaultSubmitTimeout bounds a single pipeline submission.
const DefaultSubmitTimeout = 30 * time.Second

// ErrEmptyDispatch is returned when a dispatch is attempted without a
// customer name or without attachments. The correlation engine never emits
// such a dispatch; this guards the contract.
var ErrEmptyDispatch = errors.New("dispatch requires a customer name and at least one attachment")

// OrderIntakeUnit is the finalized bundle handed to the pipeline. It is
// constructed exactly once per dispatch; this package holds no reference to
// it afterwards.
type OrderIntakeUnit struct {
	ID           string
	SenderID     string
	CustomerName string
	Attachments  []session.Attachment
	CreatedAt    time.Time
}

// Pipeline is the downstream extraction/persistence collaborator. Retry
// policy belongs to the pipeline, not to this package.
type Pipeline interface {
	Submit(ctx context.Context, unit OrderIntakeUnit) error
}

// Notifier delivers outbound messages to a sender.
type Notifier interface {
	Send(ctx context.Context, senderID, text string) error
}

// Dispatcher builds intake units and submits them through the task queue.
type Dispatcher struct {
	pipeline Pipeline
	notifier Notifier
	queue    *taskqueue.Queue
	timeout  time.Duration
	logger   zerolog.Logger
	onResult func(success bool)
}

// NewDispatcher creates a Dispatcher submitting through queue with the given
// number of concurrent pipeline workers.
func NewDispatcher(pipeline Pipeline, notifier Notifier, queue *taskqueue.Queue, workers int, timeout time.Duration, logger zerolog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if timeout == 0 {
		timeout = DefaultSubmitTimeout
	}
	queue.EnsureLane(PipelineLane, workers)
	return &Dispatcher{
		pipeline: pipeline,
		notifier: notifier,
		queue:    queue,
		timeout:  timeout,
		logger:   logger.With().Str("module", "dispatch").Logger(),
	}
}

// SetOnResult registers a hook invoked once per completed submission.
func (d *Dispatcher) SetOnResult(fn func(success bool)) {
	d.onResult = fn
}

// Dispatch assembles an intake unit and fires the pipeline submission.
// The sender gets exactly one notification per dispatch: success once the
// pipeline accepts the unit, or a failure notice otherwise. The session has
// already been reset by the caller regardless of the outcome.
func (d *Dispatcher) Dispatch(senderID, customerName string, attachments []session.Attachment) (OrderIntakeUnit, error) {
	if customerName == "" || len(attachments) == 0 {
		return OrderIntakeUnit{}, ErrEmptyDispatch
	}

	unit := OrderIntakeUnit{
		ID:           uuid.NewString(),
		SenderID:     senderID,
		CustomerName: customerName,
		Attachments:  attachments,
		CreatedAt:    time.Now(),
	}

	d.logger.Info().
		Str("unit_id", unit.ID).
		Str("sender_id", senderID).
		Str("customer", customerName).
		Int("attachments", len(attachments)).
		Msg("Order intake unit dispatched")

	d.queue.Submit(PipelineLane, func(ctx context.Context) error {
		submitCtx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		if err := d.pipeline.Submit(submitCtx, unit); err != nil {
			return fmt.Errorf("pipeline submission for unit %s: %w", unit.ID, err)
		}
		return nil
	}, func(err error) {
		d.notifyResult(unit, err)
	})

	return unit, nil
}

func (d *Dispatcher) notifyResult(unit OrderIntakeUnit, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	observability.RecordDispatch(err == nil)
	if d.onResult != nil {
		d.onResult(err == nil)
	}

	var text, kind string
	if err != nil {
		d.logger.Error().
			Str("unit_id", unit.ID).
			Str("sender_id", unit.SenderID).
			Err(err).
			Msg("Pipeline rejected intake unit")
		text = fmt.Sprintf("We could not process the order for %s. Please send the name and photos again.", unit.CustomerName)
		kind = "dispatch_failure"
	} else {
		text = fmt.Sprintf("Order for %s received with %d photo(s). Processing now.", unit.CustomerName, len(unit.Attachments))
		kind = "dispatch_success"
	}

	observability.RecordNotification(kind)
	if nerr := d.notifier.Send(ctx, unit.SenderID, text); nerr != nil {
		// Best effort only; the dispatch itself is already settled.
		d.logger.Warn().
			Str("unit_id", unit.ID).
			Str("sender_id", unit.SenderID).
			Err(nerr).
			Msg("Failed to send dispatch notification")
	}
}
