package delivery

import (
	"context"
	"fmt"
	"sync"

	"github.com/acuevasp/hookrelay/pkg/db/models"
	"github.com/acuevasp/hookrelay/pkg/enums"
	"github.com/acuevasp/hookrelay/pkg/logger"
)

// Recorder persists the history rows produced by one delivery run.
type Recorder interface {
	Record(ctx context.Context, histories []models.NotificationHistory) error
}

// CoordinatorParams configure the delivery coordinator.
type CoordinatorParams struct {
	Logger     *logger.Logger
	Recorder   Recorder
	Processors []Processor
}

// Coordinator fans one event out to every channel processor whose type has
// at least one configured endpoint. Channels run concurrently and are
// isolated from each other: a panic or failure in one never blocks the rest.
type Coordinator struct {
	logg       *logger.Logger
	recorder   Recorder
	processors map[enums.EndpointType]Processor
}

// NewCoordinator builds the coordinator and indexes processors by channel type.
func NewCoordinator(params CoordinatorParams) (*Coordinator, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Recorder == nil {
		return nil, fmt.Errorf("recorder required")
	}
	if len(params.Processors) == 0 {
		return nil, fmt.Errorf("at least one processor required")
	}

	processors := make(map[enums.EndpointType]Processor, len(params.Processors))
	for _, proc := range params.Processors {
		if proc == nil {
			continue
		}
		if _, exists := processors[proc.Type()]; exists {
			return nil, fmt.Errorf("duplicate processor for channel %q", proc.Type())
		}
		processors[proc.Type()] = proc
	}

	return &Coordinator{
		logg:       params.Logger,
		recorder:   params.Recorder,
		processors: processors,
	}, nil
}

// Deliver routes the event to every matching channel and records one
// history row per endpoint. Recording failures are logged, not returned:
// a broken audit trail must not trigger event redelivery.
func (c *Coordinator) Deliver(ctx context.Context, event Event, endpoints []models.Endpoint) []models.NotificationHistory {
	ctx = c.logg.WithEventID(c.logg.WithOrgID(ctx, event.OrgID), event.ID.String())

	groups, order := c.groupByType(ctx, endpoints)
	if len(order) == 0 {
		c.logg.Debug(ctx, "no deliverable endpoints for event")
		return nil
	}

	results := make([][]models.NotificationHistory, len(order))
	var wg sync.WaitGroup
	for i, channelType := range order {
		wg.Add(1)
		go func(idx int, t enums.EndpointType) {
			defer wg.Done()
			results[idx] = c.runProcessor(ctx, c.processors[t], event, groups[t])
		}(i, channelType)
	}
	wg.Wait()

	var histories []models.NotificationHistory
	for _, batch := range results {
		histories = append(histories, batch...)
	}

	if err := c.recorder.Record(ctx, histories); err != nil {
		c.logg.Error(ctx, "recording notification histories failed", err)
	}
	return histories
}

// groupByType splits the endpoints per channel, keeping the first-seen
// channel order and the endpoint order within each channel. Endpoints of a
// type with no registered processor are dropped with a warning.
func (c *Coordinator) groupByType(ctx context.Context, endpoints []models.Endpoint) (map[enums.EndpointType][]models.Endpoint, []enums.EndpointType) {
	groups := make(map[enums.EndpointType][]models.Endpoint)
	var order []enums.EndpointType
	for _, endpoint := range endpoints {
		if !endpoint.Enabled {
			continue
		}
		if _, ok := c.processors[endpoint.Type]; !ok {
			c.logg.Warn(c.logg.WithEndpointID(ctx, endpoint.ID.String()),
				fmt.Sprintf("no processor registered for channel %q", endpoint.Type))
			continue
		}
		if _, seen := groups[endpoint.Type]; !seen {
			order = append(order, endpoint.Type)
		}
		groups[endpoint.Type] = append(groups[endpoint.Type], endpoint)
	}
	return groups, order
}

// runProcessor shields the coordinator from a panicking channel. A panic
// yields one failure row per endpoint so the audit trail stays complete.
func (c *Coordinator) runProcessor(ctx context.Context, proc Processor, event Event, endpoints []models.Endpoint) (histories []models.NotificationHistory) {
	defer func() {
		if r := recover(); r != nil {
			c.logg.Error(ctx, fmt.Sprintf("channel %q panicked", proc.Type()), fmt.Errorf("%v", r))
			histories = histories[:0]
			for _, endpoint := range endpoints {
				histories = append(histories, failureHistory(event, endpoint, 0, Details{
					Error: fmt.Sprintf("channel processor panicked: %v", r),
				}))
			}
		}
	}()
	return proc.Process(ctx, event, endpoints)
}
