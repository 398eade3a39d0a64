package models

import (
	"time"

	"github.com/acuevasp/hookrelay/pkg/enums"
)

// EmailSubscription is an opt-in of one user to digests for a
// bundle/application pair. The engine only counts them; the subscription
// API owns writes.
type EmailSubscription struct {
	OrgID            string                 `gorm:"type:text;primaryKey"`
	UserID           string                 `gorm:"type:text;primaryKey"`
	Bundle           string                 `gorm:"type:text;primaryKey"`
	Application      string                 `gorm:"type:text;primaryKey"`
	SubscriptionType enums.SubscriptionType `gorm:"type:subscription_type;primaryKey"`
	CreatedAt        time.Time              `gorm:"type:timestamptz;default:now()"`
}
