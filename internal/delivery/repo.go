package delivery

import (
	"context"
	"fmt"

	"github.com/acuevasp/hookrelay/pkg/db"
	"github.com/acuevasp/hookrelay/pkg/db/models"
	apperrors "github.com/acuevasp/hookrelay/pkg/errors"
	"github.com/google/uuid"
)

// Repository persists delivery records and reads endpoint configuration.
type Repository struct {
	client *db.Client
}

// NewRepository builds the delivery repository.
func NewRepository(client *db.Client) (*Repository, error) {
	if client == nil {
		return nil, fmt.Errorf("db client required")
	}
	return &Repository{client: client}, nil
}

// Record persists the history rows of one delivery run atomically.
func (r *Repository) Record(ctx context.Context, histories []models.NotificationHistory) error {
	if len(histories) == 0 {
		return nil
	}
	if err := r.client.DB().WithContext(ctx).Create(&histories).Error; err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, err, "persisting notification histories")
	}
	return nil
}

// Stage buffers event payloads for the email digest.
func (r *Repository) Stage(ctx context.Context, rows []models.EmailAggregation) error {
	if len(rows) == 0 {
		return nil
	}
	if err := r.client.DB().WithContext(ctx).Create(&rows).Error; err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, err, "staging email aggregations")
	}
	return nil
}

// EnabledEndpoints lists the active destinations of an org.
func (r *Repository) EnabledEndpoints(ctx context.Context, orgID string) ([]models.Endpoint, error) {
	var endpoints []models.Endpoint
	err := r.client.DB().WithContext(ctx).
		Where("org_id = ? AND enabled = true", orgID).
		Order("created_at ASC").
		Find(&endpoints).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "listing enabled endpoints")
	}
	return endpoints, nil
}

// HistoriesByEvent returns the audit trail of one event, newest first.
func (r *Repository) HistoriesByEvent(ctx context.Context, eventID uuid.UUID) ([]models.NotificationHistory, error) {
	var histories []models.NotificationHistory
	err := r.client.DB().WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("created_at DESC").
		Find(&histories).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "listing histories by event")
	}
	return histories, nil
}

// HistoriesByEndpoint returns recent deliveries to one endpoint.
func (r *Repository) HistoriesByEndpoint(ctx context.Context, endpointID uuid.UUID, limit int) ([]models.NotificationHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	var histories []models.NotificationHistory
	err := r.client.DB().WithContext(ctx).
		Where("endpoint_id = ?", endpointID).
		Order("created_at DESC").
		Limit(limit).
		Find(&histories).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "listing histories by endpoint")
	}
	return histories, nil
}
