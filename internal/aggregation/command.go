package aggregation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/acuevasp/hookrelay/pkg/enums"
	"github.com/acuevasp/hookrelay/pkg/logger"
	"github.com/google/uuid"
)

// Command instructs the downstream mailer to render and send the digest of
// one key for the given window. Ephemeral; never persisted.
type Command struct {
	ID               uuid.UUID              `json:"id"`
	OrgID            string                 `json:"orgId"`
	Bundle           string                 `json:"bundle"`
	Application      string                 `json:"application"`
	SubscriptionType enums.SubscriptionType `json:"subscriptionType"`
	WindowStart      time.Time              `json:"windowStart"`
	WindowEnd        time.Time              `json:"windowEnd"`
	EventCount       int                    `json:"eventCount"`
	Payload          json.RawMessage        `json:"payload"`
	EmittedAt        time.Time              `json:"emittedAt"`
}

// Emitter hands a finished command to the mail pipeline.
type Emitter interface {
	Emit(ctx context.Context, cmd Command) error
}

// Publisher is the slice of the Pub/Sub publisher the emitter needs.
type Publisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) *pubsub.PublishResult
}

// PubSubEmitter publishes commands to the digest topic.
type PubSubEmitter struct {
	logg      *logger.Logger
	publisher Publisher
}

// NewPubSubEmitter builds the emitter.
func NewPubSubEmitter(logg *logger.Logger, publisher Publisher) (*PubSubEmitter, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher required")
	}
	return &PubSubEmitter{logg: logg, publisher: publisher}, nil
}

// Emit publishes the command and waits for the broker ack so the caller can
// safely purge the staged rows afterwards.
func (e *PubSubEmitter) Emit(ctx context.Context, cmd Command) error {
	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encoding aggregation command: %w", err)
	}
	msg := &pubsub.Message{
		Data: body,
		Attributes: map[string]string{
			"orgId":       cmd.OrgID,
			"bundle":      cmd.Bundle,
			"application": cmd.Application,
			"commandId":   cmd.ID.String(),
		},
	}
	if _, err := e.publisher.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("publishing aggregation command for org %s: %w", cmd.OrgID, err)
	}
	e.logg.Info(e.logg.WithOrgID(ctx, cmd.OrgID), "aggregation command emitted")
	return nil
}
