package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/vonatfigyelo/vonatfigyelo/internal/notification"
)

// PubSubHandler consumes schedule events for the worker.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	events           *EventHandler
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Events           *EventHandler
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	subscriber.ReceiveSettings.MaxOutstandingMessages = 10
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		events:           cfg.Events,
		logger:           cfg.Logger,
	}, nil
}

// Start processes messages until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	event, err := ParseEvent(msg.Data)
	if err != nil {
		logger.Error().Err(err).Msg("dropping malformed message")
		msg.Ack()
		return
	}

	if err := h.events.Apply(ctx, event); err != nil {
		if errors.Is(err, ErrUnknownEvent) {
			logger.Warn().Str("event", event.Event).Msg("unknown event type")
			msg.Ack()
			return
		}
		logger.Error().Err(err).Str("event", event.Event).Msg("event failed")
		msg.Nack()
		return
	}

	logger.Debug().
		Str("event", event.Event).
		Int64("notification_id", event.NotificationID).
		Dur("duration", time.Since(startTime)).
		Msg("event applied")
	msg.Ack()
}

// Publisher announces schedule changes made by the API to the worker.
// It satisfies notification.Scheduler.
type Publisher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	logger    zerolog.Logger
}

var _ notification.Scheduler = (*Publisher)(nil)

// PublisherConfig holds configuration for the Publisher.
type PublisherConfig struct {
	ProjectID string
	Topic     string
	Logger    zerolog.Logger
}

// NewPublisher creates a Publisher.
func NewPublisher(ctx context.Context, cfg PublisherConfig) (*Publisher, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	return &Publisher{
		client:    client,
		publisher: client.Publisher(cfg.Topic),
		logger:    cfg.Logger.With().Str("topic", cfg.Topic).Logger(),
	}, nil
}

// Add publishes a scheduled event.
func (p *Publisher) Add(ctx context.Context, n *notification.Notification) error {
	return p.publish(ctx, Event{Event: EventScheduled, NotificationID: n.ID})
}

// Remove publishes an unscheduled event.
func (p *Publisher) Remove(ctx context.Context, n *notification.Notification) error {
	return p.publish(ctx, Event{Event: EventUnscheduled, NotificationID: n.ID})
}

// Close flushes pending messages and closes the client.
func (p *Publisher) Close() error {
	p.publisher.Stop()
	return p.client.Close()
}

func (p *Publisher) publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	result := p.publisher.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"event": e.Event},
	})
	id, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("publishing %s event: %w", e.Event, err)
	}
	p.logger.Debug().Str("message_id", id).Str("event", e.Event).Int64("notification_id", e.NotificationID).Msg("event published")
	return nil
}
