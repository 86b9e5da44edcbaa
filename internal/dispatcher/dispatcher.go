// Package dispatcher turns a fired notification into a chat message about
// the train's live status.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vonatfigyelo/vonatfigyelo/internal/mav"
	"github.com/vonatfigyelo/vonatfigyelo/internal/messaging"
	"github.com/vonatfigyelo/vonatfigyelo/internal/notification"
	"github.com/vonatfigyelo/vonatfigyelo/internal/telemetry"
)

// Dispatch outcomes, as recorded in metrics.
const (
	OutcomeOnTime     = "on_time"
	OutcomeDelayed    = "delayed"
	OutcomeNotRunning = "not_running"
	OutcomeFailed     = "failed"
)

// TrainFinder looks up a running train.
type TrainFinder interface {
	FindByCode(ctx context.Context, code string) (mav.RealtimeTrain, bool, error)
}

// Unscheduler cancels the timer of a notification.
type Unscheduler interface {
	Remove(ctx context.Context, n *notification.Notification) error
}

// Store deletes consumed notifications.
type Store interface {
	Delete(ctx context.Context, id int64) error
}

// Config configures a Dispatcher.
type Config struct {
	Trains    TrainFinder
	Scheduler Unscheduler
	Store     Store
	Messenger messaging.Service
	Logger    zerolog.Logger
	Metrics   *telemetry.Metrics

	// Timeout bounds the handling of one fired notification. Default: 30 seconds
	Timeout time.Duration
}

// Dispatcher handles fired notifications.
type Dispatcher struct {
	trains    TrainFinder
	scheduler Unscheduler
	store     Store
	messenger messaging.Service
	logger    zerolog.Logger
	metrics   *telemetry.Metrics
	timeout   time.Duration
}

// New creates a dispatcher.
func New(cfg Config) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Dispatcher{
		trains:    cfg.Trains,
		scheduler: cfg.Scheduler,
		store:     cfg.Store,
		messenger: cfg.Messenger,
		logger:    cfg.Logger.With().Str("component", "dispatcher").Logger(),
		metrics:   cfg.Metrics,
		timeout:   cfg.Timeout,
	}
}

// Message texts.
const (
	headerFormat      = "ℹ️ Értesítés a %s számú vonatról."
	notRunningMessage = "🚫 A vonat nem található a Vonatinfón."
	delayedFormat     = "⏰ A vonat %d perc késésben van."
	onTimeMessage     = "🕒 A vonat időben érkezik."
)

// Compose builds the message sent for a train. found is false when the
// train is not on the live map.
func Compose(code string, train mav.RealtimeTrain, found bool) (string, string) {
	lines := []string{fmt.Sprintf(headerFormat, code)}
	outcome := OutcomeOnTime
	switch {
	case !found:
		lines = append(lines, notRunningMessage)
		outcome = OutcomeNotRunning
	case train.Delay > 0:
		lines = append(lines, fmt.Sprintf(delayedFormat, train.Delay))
		outcome = OutcomeDelayed
	default:
		lines = append(lines, onTimeMessage)
	}
	return strings.Join(lines, "\n"), outcome
}

// Handle sends the status of the notification's train to its chat. A once
// notification is unscheduled and deleted afterwards, whatever the outcome.
// Errors and panics are reported and never returned.
//
// Lookup and send share one timeout. Reporting and cleanup get their own, so
// they still run after a lookup exhausted it.
func (d *Dispatcher) Handle(ctx context.Context, n *notification.Notification) {
	parent := ctx
	logger := d.logger.With().Int64("notification_id", n.ID).Str("train", n.Train).Logger()

	defer func() {
		if rec := recover(); rec != nil {
			d.metrics.RecordDispatch(OutcomeFailed)
			d.report(parent, logger, fmt.Errorf("notification %d: panic: %v", n.ID, rec))
		}
	}()

	if n.IsOnce() {
		defer d.consume(parent, logger, n)
	}

	if err := d.deliver(parent, logger, n); err != nil {
		d.metrics.RecordDispatch(OutcomeFailed)
		d.report(parent, logger, err)
	}
}

// deliver looks up the train and sends the message within the dispatch timeout.
func (d *Dispatcher) deliver(parent context.Context, logger zerolog.Logger, n *notification.Notification) error {
	ctx, cancel := context.WithTimeout(parent, d.timeout)
	defer cancel()

	train, found, err := d.trains.FindByCode(ctx, n.Train)
	if err != nil {
		return fmt.Errorf("notification %d: looking up train %s: %w", n.ID, n.Train, err)
	}

	text, outcome := Compose(n.Train, train, found)
	if err := d.messenger.Send(ctx, n.ChatID, text); err != nil {
		return fmt.Errorf("notification %d: sending to chat %d: %w", n.ID, n.ChatID, err)
	}

	d.metrics.RecordDispatch(outcome)
	logger.Info().Str("outcome", outcome).Int64("chat_id", n.ChatID).Msg("notification sent")
	return nil
}

// followUp returns a fresh bounded context that keeps parent's values but not
// its cancellation.
func (d *Dispatcher) followUp(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), d.timeout)
}

// consume removes a fired once notification from the scheduler and the store.
func (d *Dispatcher) consume(parent context.Context, logger zerolog.Logger, n *notification.Notification) {
	ctx, cancel := d.followUp(parent)
	defer cancel()

	if err := d.scheduler.Remove(ctx, n); err != nil {
		d.report(parent, logger, fmt.Errorf("notification %d: unscheduling: %w", n.ID, err))
	}
	err := d.store.Delete(ctx, n.ID)
	if err != nil && !errors.Is(err, notification.ErrNotificationNotFound) {
		d.report(parent, logger, fmt.Errorf("notification %d: deleting: %w", n.ID, err))
		return
	}
	logger.Debug().Msg("once notification consumed")
}

func (d *Dispatcher) report(parent context.Context, logger zerolog.Logger, err error) {
	logger.Error().Err(err).Msg("notification dispatch failed")

	ctx, cancel := d.followUp(parent)
	defer cancel()
	d.messenger.ReportError(ctx, err)
}
