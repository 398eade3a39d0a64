package delivery

import (
	"context"
	"encoding/json"

	"github.com/acuevasp/hookrelay/pkg/db/models"
	"github.com/acuevasp/hookrelay/pkg/enums"
)

// Processor delivers one event to every destination of its channel type,
// producing exactly one history row per endpoint regardless of outcome.
type Processor interface {
	Type() enums.EndpointType
	Process(ctx context.Context, event Event, endpoints []models.Endpoint) []models.NotificationHistory
}

// Details captures the terminal failure of a delivery; successes leave it
// empty.
type Details struct {
	URL          string `json:"url,omitempty"`
	Method       string `json:"method,omitempty"`
	Code         *int   `json:"code,omitempty"`
	Error        string `json:"error,omitempty"`
	ResponseBody string `json:"response_body,omitempty"`
}

func (d Details) marshal() json.RawMessage {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil
	}
	return raw
}

func successHistory(event Event, endpoint models.Endpoint, elapsedMs int64) models.NotificationHistory {
	return models.NotificationHistory{
		EndpointID:       endpoint.ID,
		EventID:          event.ID,
		OrgID:            event.OrgID,
		InvocationTimeMs: elapsedMs,
		InvocationResult: true,
	}
}

func failureHistory(event Event, endpoint models.Endpoint, elapsedMs int64, details Details) models.NotificationHistory {
	return models.NotificationHistory{
		EndpointID:       endpoint.ID,
		EventID:          event.ID,
		OrgID:            event.OrgID,
		InvocationTimeMs: elapsedMs,
		InvocationResult: false,
		Details:          details.marshal(),
	}
}
