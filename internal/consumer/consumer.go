package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/acuevasp/hookrelay/internal/delivery"
	"github.com/acuevasp/hookrelay/pkg/db/models"
	"github.com/acuevasp/hookrelay/pkg/logger"
	"github.com/google/uuid"
)

// Subscriber is the slice of the Pub/Sub subscriber the consumer needs.
type Subscriber interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// EndpointSource resolves the active destinations of a tenant.
type EndpointSource interface {
	EnabledEndpoints(ctx context.Context, orgID string) ([]models.Endpoint, error)
}

// Deliverer fans one event out to its channels.
type Deliverer interface {
	Deliver(ctx context.Context, event delivery.Event, endpoints []models.Endpoint) []models.NotificationHistory
}

// Params configure the event consumer.
type Params struct {
	Logger      *logger.Logger
	Subscriber  Subscriber
	Endpoints   EndpointSource
	Coordinator Deliverer
}

// Consumer pulls ingested events off the subscription and hands them to the
// delivery coordinator. Malformed messages are acked and dropped; transient
// infrastructure failures are nacked for redelivery.
type Consumer struct {
	logg        *logger.Logger
	subscriber  Subscriber
	endpoints   EndpointSource
	coordinator Deliverer
}

// New builds the event consumer.
func New(params Params) (*Consumer, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Subscriber == nil {
		return nil, fmt.Errorf("subscriber required")
	}
	if params.Endpoints == nil {
		return nil, fmt.Errorf("endpoint source required")
	}
	if params.Coordinator == nil {
		return nil, fmt.Errorf("coordinator required")
	}
	return &Consumer{
		logg:        params.Logger,
		subscriber:  params.Subscriber,
		endpoints:   params.Endpoints,
		coordinator: params.Coordinator,
	}, nil
}

// Run blocks pulling messages until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logg.Info(ctx, "event consumer starting")
	err := c.subscriber.Receive(ctx, c.handle)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("receiving events: %w", err)
	}
	c.logg.Info(ctx, "event consumer stopped")
	return nil
}

func (c *Consumer) handle(ctx context.Context, msg *pubsub.Message) {
	event, err := decodeEvent(msg.Data)
	if err != nil {
		// Poison message: redelivery cannot fix it.
		c.logg.Error(ctx, "dropping undecodable event message", err)
		msg.Ack()
		return
	}

	ctx = c.logg.WithEventID(c.logg.WithOrgID(ctx, event.OrgID), event.ID.String())

	endpoints, err := c.endpoints.EnabledEndpoints(ctx, event.OrgID)
	if err != nil {
		c.logg.Error(ctx, "resolving endpoints failed; nacking for redelivery", err)
		msg.Nack()
		return
	}

	c.coordinator.Deliver(ctx, event, endpoints)
	msg.Ack()
}

func decodeEvent(data []byte) (delivery.Event, error) {
	var event delivery.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return delivery.Event{}, fmt.Errorf("decoding event: %w", err)
	}
	if event.ID == uuid.Nil {
		return delivery.Event{}, fmt.Errorf("event id is required")
	}
	if event.OrgID == "" {
		return delivery.Event{}, fmt.Errorf("event org id is required")
	}
	return event, nil
}
