package delivery

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/acuevasp/hookrelay/pkg/enums"
)

// Renderer turns an event into a channel-specific body. Template expansion
// is owned by an external service; the engine treats rendering as opaque.
type Renderer interface {
	Render(ctx context.Context, event Event, channel enums.EndpointType) ([]byte, error)
}

// JSONRenderer is the default renderer: a stable JSON envelope of the
// event, independent of channel type.
type JSONRenderer struct{}

func (JSONRenderer) Render(_ context.Context, event Event, _ enums.EndpointType) ([]byte, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", event.ID, err)
	}
	return body, nil
}
