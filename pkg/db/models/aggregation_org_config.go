package models

import "time"

// AggregationOrgConfig carries per-tenant digest scheduling state. The
// primary key guarantees exactly one row per org.
type AggregationOrgConfig struct {
	OrgID                  string    `gorm:"type:text;primaryKey"`
	ScheduledExecutionHour int       `gorm:"not null;default:0"`
	LastRun                time.Time `gorm:"type:timestamptz;not null"`
	CreatedAt              time.Time `gorm:"type:timestamptz;default:now()"`
	UpdatedAt              time.Time `gorm:"type:timestamptz;default:now()"`
}
