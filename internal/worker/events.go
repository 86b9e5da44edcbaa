package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vonatfigyelo/vonatfigyelo/internal/notification"
)

// Event types carried on the schedule topic.
const (
	EventScheduled   = "scheduled"
	EventUnscheduled = "unscheduled"
	EventCacheWarm   = "cache_warm"
)

// ErrUnknownEvent is returned for an event type the worker does not handle.
var ErrUnknownEvent = errors.New("unknown event")

// Event is one message on the schedule topic.
type Event struct {
	Event          string `json:"event"`
	NotificationID int64  `json:"notification_id,omitempty"`
}

// ParseEvent decodes an event message.
func ParseEvent(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("decoding event: %w", err)
	}
	return e, nil
}

// NotificationStore is what the event handler reads.
type NotificationStore interface {
	FindByID(ctx context.Context, id int64) (*notification.Notification, error)
}

// LocalScheduler is the in-process scheduler events are applied to.
type LocalScheduler interface {
	Add(ctx context.Context, n *notification.Notification) error
	RemoveByID(id int64)
}

// EventHandlerConfig configures an EventHandler.
type EventHandlerConfig struct {
	Store     NotificationStore
	Scheduler LocalScheduler
	WarmJob   *WarmJob
	Logger    zerolog.Logger
}

// EventHandler applies schedule events to the local scheduler.
type EventHandler struct {
	store     NotificationStore
	scheduler LocalScheduler
	warmJob   *WarmJob
	logger    zerolog.Logger
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(cfg EventHandlerConfig) *EventHandler {
	return &EventHandler{
		store:     cfg.Store,
		scheduler: cfg.Scheduler,
		warmJob:   cfg.WarmJob,
		logger:    cfg.Logger,
	}
}

// Apply handles one event. A scheduled event re-reads the notification from
// the store, so a notification deleted in the meantime is unscheduled instead.
// Returned errors are worth redelivering.
func (h *EventHandler) Apply(ctx context.Context, e Event) error {
	switch e.Event {
	case EventScheduled:
		n, err := h.store.FindByID(ctx, e.NotificationID)
		if errors.Is(err, notification.ErrNotificationNotFound) {
			h.scheduler.RemoveByID(e.NotificationID)
			h.logger.Info().Int64("notification_id", e.NotificationID).Msg("scheduled notification no longer stored")
			return nil
		}
		if errors.Is(err, notification.ErrInvalidSchedule) {
			h.scheduler.RemoveByID(e.NotificationID)
			h.logger.Error().Err(err).Int64("notification_id", e.NotificationID).Msg("dropping stored notification with invalid schedule")
			return nil
		}
		if err != nil {
			return fmt.Errorf("loading notification %d: %w", e.NotificationID, err)
		}
		if err := h.scheduler.Add(ctx, n); err != nil {
			if errors.Is(err, notification.ErrInvalidSchedule) {
				h.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("dropping unschedulable notification")
				return nil
			}
			return err
		}
		return nil

	case EventUnscheduled:
		h.scheduler.RemoveByID(e.NotificationID)
		return nil

	case EventCacheWarm:
		if h.warmJob == nil {
			return nil
		}
		result := h.warmJob.Run(ctx)
		if result.Failed > result.Successful {
			return fmt.Errorf("too many warm failures: %d/%d", result.Failed, result.Failed+result.Successful)
		}
		return nil

	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, e.Event)
	}
}
