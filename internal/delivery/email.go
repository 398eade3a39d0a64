package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/acuevasp/hookrelay/pkg/db/models"
	"github.com/acuevasp/hookrelay/pkg/enums"
	"github.com/acuevasp/hookrelay/pkg/logger"
	"github.com/acuevasp/hookrelay/pkg/metrics"
)

// AggregationStore stages inbound events for the daily digest job.
type AggregationStore interface {
	Stage(ctx context.Context, rows []models.EmailAggregation) error
}

// EmailProcessorParams configure the email subscription channel.
type EmailProcessorParams struct {
	Logger  *logger.Logger
	Store   AggregationStore
	Metrics *metrics.DeliveryMetrics
}

// EmailProcessor handles the email subscription channel. Nothing is sent
// at delivery time: each event payload is staged once for the org, and the
// aggregation job later folds the staged rows into a digest.
type EmailProcessor struct {
	logg    *logger.Logger
	store   AggregationStore
	metrics *metrics.DeliveryMetrics
	now     func() time.Time
}

// NewEmailProcessor builds the email subscription channel processor.
func NewEmailProcessor(params EmailProcessorParams) (*EmailProcessor, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("aggregation store required")
	}
	return &EmailProcessor{
		logg:    params.Logger,
		store:   params.Store,
		metrics: params.Metrics,
		now:     time.Now,
	}, nil
}

func (p *EmailProcessor) Type() enums.EndpointType { return enums.EndpointTypeEmailSubscription }

// Process stages the event once regardless of how many email endpoints the
// org has, then reports the shared result against every endpoint.
func (p *EmailProcessor) Process(ctx context.Context, event Event, endpoints []models.Endpoint) []models.NotificationHistory {
	start := p.now()
	channel := string(enums.EndpointTypeEmailSubscription)
	p.metrics.IncAttempt(channel)

	rows := make([]models.EmailAggregation, 0, len(event.Events))
	for _, payload := range event.Events {
		rows = append(rows, models.EmailAggregation{
			OrgID:       event.OrgID,
			Bundle:      event.Bundle,
			Application: event.Application,
			Payload:     payload.Payload,
		})
	}

	err := p.store.Stage(ctx, rows)
	elapsed := time.Since(start).Milliseconds()
	p.metrics.IncOutcome(channel, err == nil)
	p.metrics.ObserveDuration(channel, time.Since(start))

	results := make([]models.NotificationHistory, 0, len(endpoints))
	for _, endpoint := range endpoints {
		if err != nil {
			p.logg.Error(p.logg.WithEventID(ctx, event.ID.String()), "staging email aggregation failed", err)
			results = append(results, failureHistory(event, endpoint, elapsed, Details{Error: err.Error()}))
			continue
		}
		results = append(results, successHistory(event, endpoint, elapsed))
	}
	return results
}
