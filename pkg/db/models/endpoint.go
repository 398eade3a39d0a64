package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/acuevasp/hookrelay/pkg/enums"
)

// Endpoint is a configured delivery destination owned by the configuration
// API; the engine reads it to decide how to deliver an event.
type Endpoint struct {
	ID      uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrgID   string             `gorm:"type:text;not null;index"`
	Name    string             `gorm:"type:text;not null"`
	Type    enums.EndpointType `gorm:"type:endpoint_type;not null"`
	SubType *string            `gorm:"type:text"`
	Enabled bool               `gorm:"not null;default:true"`

	// Webhook properties.
	URL                    string  `gorm:"type:text"`
	Method                 string  `gorm:"type:text;default:'POST'"`
	DisableTLSVerification bool    `gorm:"not null;default:false"`
	SecretToken            *string `gorm:"type:text"`
	BasicAuthUser          *string `gorm:"type:text"`
	BasicAuthPassword      *string `gorm:"type:text"`

	Extras    json.RawMessage `gorm:"type:jsonb"`
	CreatedAt time.Time       `gorm:"type:timestamptz;default:now()"`
	UpdatedAt time.Time       `gorm:"type:timestamptz;default:now()"`
}
