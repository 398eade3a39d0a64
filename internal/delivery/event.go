package delivery

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is one tenant-originated occurrence handed to the engine by the
// ingestion pipeline. Immutable once ingested; the engine only reads it.
type Event struct {
	ID          uuid.UUID       `json:"id"`
	OrgID       string          `json:"orgId"`
	AccountID   string          `json:"accountId,omitempty"`
	Bundle      string          `json:"bundle"`
	Application string          `json:"application"`
	EventType   string          `json:"eventType"`
	Timestamp   time.Time       `json:"timestamp"`
	Events      []EventPayload  `json:"events"`
	Context     json.RawMessage `json:"context,omitempty"`
}

// EventPayload is one sub-record of an Event (the original system allows
// several payloads per event).
type EventPayload struct {
	Payload json.RawMessage `json:"payload"`
}
