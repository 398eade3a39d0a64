package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EmailAggregation stages one inbound event for the daily digest. Rows are
// written by the email channel processor and drained (read then purged) by
// the aggregation job; a row is visible to at most one aggregation window.
type EmailAggregation struct {
	ID          uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrgID       string          `gorm:"type:text;not null;index:idx_email_aggregations_key"`
	Bundle      string          `gorm:"type:text;not null;index:idx_email_aggregations_key"`
	Application string          `gorm:"type:text;not null;index:idx_email_aggregations_key"`
	Payload     json.RawMessage `gorm:"type:jsonb;not null"`
	CreatedAt   time.Time       `gorm:"type:timestamptz;default:now();index"`
}
