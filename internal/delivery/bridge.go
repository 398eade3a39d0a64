package delivery

import (
	"context"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/acuevasp/hookrelay/pkg/db/models"
	"github.com/acuevasp/hookrelay/pkg/enums"
	"github.com/acuevasp/hookrelay/pkg/logger"
	"github.com/acuevasp/hookrelay/pkg/metrics"
)

// Publisher is the slice of the Pub/Sub publisher the bridge channel needs.
type Publisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) *pubsub.PublishResult
}

// BridgeProcessorParams configure the bridge channel.
type BridgeProcessorParams struct {
	Logger    *logger.Logger
	Publisher Publisher
	Renderer  Renderer
	Metrics   *metrics.DeliveryMetrics
}

// BridgeProcessor forwards events to the integrations topic, where the
// downstream integration service picks them up. Pub/Sub handles
// redelivery, so the processor itself never retries.
type BridgeProcessor struct {
	logg      *logger.Logger
	publisher Publisher
	renderer  Renderer
	metrics   *metrics.DeliveryMetrics
	now       func() time.Time
}

// NewBridgeProcessor builds the bridge channel processor.
func NewBridgeProcessor(params BridgeProcessorParams) (*BridgeProcessor, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Publisher == nil {
		return nil, fmt.Errorf("publisher required")
	}
	renderer := params.Renderer
	if renderer == nil {
		renderer = JSONRenderer{}
	}
	return &BridgeProcessor{
		logg:      params.Logger,
		publisher: params.Publisher,
		renderer:  renderer,
		metrics:   params.Metrics,
		now:       time.Now,
	}, nil
}

func (p *BridgeProcessor) Type() enums.EndpointType { return enums.EndpointTypeBridge }

// Process publishes the event once per endpoint. The endpoint sub-type is
// carried as a message attribute so the integration service can route it.
func (p *BridgeProcessor) Process(ctx context.Context, event Event, endpoints []models.Endpoint) []models.NotificationHistory {
	channel := string(enums.EndpointTypeBridge)
	results := make([]models.NotificationHistory, 0, len(endpoints))

	body, err := p.renderer.Render(ctx, event, enums.EndpointTypeBridge)
	if err != nil {
		p.logg.Error(p.logg.WithEventID(ctx, event.ID.String()), "rendering bridge body failed", err)
		for _, endpoint := range endpoints {
			p.metrics.IncOutcome(channel, false)
			results = append(results, failureHistory(event, endpoint, 0, Details{Error: err.Error()}))
		}
		return results
	}

	for _, endpoint := range endpoints {
		start := p.now()
		p.metrics.IncAttempt(channel)

		attrs := map[string]string{
			"orgId":      event.OrgID,
			"eventType":  event.EventType,
			"endpointId": endpoint.ID.String(),
		}
		if endpoint.SubType != nil {
			attrs["integration"] = *endpoint.SubType
		}

		_, err := p.publisher.Publish(ctx, &pubsub.Message{Data: body, Attributes: attrs}).Get(ctx)
		elapsed := time.Since(start).Milliseconds()
		p.metrics.IncOutcome(channel, err == nil)
		p.metrics.ObserveDuration(channel, time.Since(start))

		if err != nil {
			epCtx := p.logg.WithEndpointID(ctx, endpoint.ID.String())
			p.logg.Error(epCtx, "publishing bridge event failed", err)
			results = append(results, failureHistory(event, endpoint, elapsed, Details{Error: err.Error()}))
			continue
		}
		results = append(results, successHistory(event, endpoint, elapsed))
	}
	return results
}
