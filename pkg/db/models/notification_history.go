package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NotificationHistory records the final outcome of delivering one event to
// one endpoint. One row per (event, endpoint) attempt sequence; retries are
// collapsed into the terminal outcome. Append-only.
type NotificationHistory struct {
	ID               uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	EndpointID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	EventID          uuid.UUID       `gorm:"type:uuid;not null;index"`
	OrgID            string          `gorm:"type:text;not null"`
	InvocationTimeMs int64           `gorm:"not null"`
	InvocationResult bool            `gorm:"not null"`
	Details          json.RawMessage `gorm:"type:jsonb"`
	CreatedAt        time.Time       `gorm:"type:timestamptz;default:now()"`
}
