package aggregation

import (
	"context"
	"fmt"
	"time"

	"github.com/acuevasp/hookrelay/pkg/db"
	"github.com/acuevasp/hookrelay/pkg/db/models"
	"github.com/acuevasp/hookrelay/pkg/enums"
	apperrors "github.com/acuevasp/hookrelay/pkg/errors"
	"gorm.io/gorm"
)

// Repository reads staged aggregation rows and per-org scheduling state.
type Repository struct {
	client *db.Client
}

// NewRepository builds the aggregation repository.
func NewRepository(client *db.Client) (*Repository, error) {
	if client == nil {
		return nil, fmt.Errorf("db client required")
	}
	return &Repository{client: client}, nil
}

// OrgsDue returns the org configs whose scheduled hour matches now and that
// have not run within the current hour yet. Orgs whose watermark is older
// than staleAfter are due regardless of their scheduled hour, so a missed
// cycle is caught up on the next tick.
func (r *Repository) OrgsDue(ctx context.Context, now time.Time, staleAfter time.Duration, limit int) ([]models.AggregationOrgConfig, error) {
	if limit <= 0 {
		limit = 100
	}
	if staleAfter <= 0 {
		staleAfter = 24 * time.Hour
	}
	var configs []models.AggregationOrgConfig
	err := r.client.DB().WithContext(ctx).
		Where("(scheduled_execution_hour = ? AND last_run < ?) OR last_run < ?",
			now.UTC().Hour(), now.Add(-time.Hour), now.Add(-staleAfter)).
		Order("org_id ASC").
		Limit(limit).
		Find(&configs).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "listing orgs due for aggregation")
	}
	return configs, nil
}

// DailySubscriberCount counts users opted into daily digests for the key's
// bundle/application pair.
func (r *Repository) DailySubscriberCount(ctx context.Context, key Key) (int64, error) {
	var count int64
	err := r.client.DB().WithContext(ctx).
		Model(&models.EmailSubscription{}).
		Where("org_id = ? AND bundle = ? AND application = ? AND subscription_type = ?",
			key.OrgID, key.Bundle, key.Application, enums.SubscriptionTypeDaily).
		Distinct("user_id").
		Count(&count).Error
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeInternal, err, "counting daily subscribers")
	}
	return count, nil
}

// DistinctKeys lists the bundle/application pairs with staged rows inside
// the window, in deterministic order.
func (r *Repository) DistinctKeys(ctx context.Context, orgID string, window Window) ([]Key, error) {
	type pair struct {
		Bundle      string
		Application string
	}
	var pairs []pair
	err := r.client.DB().WithContext(ctx).
		Model(&models.EmailAggregation{}).
		Distinct("bundle", "application").
		Where("org_id = ? AND created_at > ? AND created_at <= ?", orgID, window.Start, window.End).
		Order("bundle ASC, application ASC").
		Find(&pairs).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "listing aggregation keys")
	}
	keys := make([]Key, 0, len(pairs))
	for _, p := range pairs {
		keys = append(keys, Key{OrgID: orgID, Bundle: p.Bundle, Application: p.Application})
	}
	return keys, nil
}

// Rows returns the staged rows for one key inside the window, oldest first.
func (r *Repository) Rows(ctx context.Context, key Key, window Window) ([]models.EmailAggregation, error) {
	var rows []models.EmailAggregation
	err := r.client.DB().WithContext(ctx).
		Where("org_id = ? AND bundle = ? AND application = ? AND created_at > ? AND created_at <= ?",
			key.OrgID, key.Bundle, key.Application, window.Start, window.End).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "loading staged rows")
	}
	return rows, nil
}

// Purge removes every staged row of the org stamped at or before the window
// end, including rows of keys no aggregator handles.
func (r *Repository) Purge(ctx context.Context, orgID string, until time.Time) (int64, error) {
	res := r.client.DB().WithContext(ctx).
		Where("org_id = ? AND created_at <= ?", orgID, until).
		Delete(&models.EmailAggregation{})
	if res.Error != nil {
		return 0, apperrors.Wrap(apperrors.CodeInternal, res.Error, "purging staged rows")
	}
	return res.RowsAffected, nil
}

// AdvanceLastRun moves the org watermark forward so the next window starts
// where this one ended.
func (r *Repository) AdvanceLastRun(ctx context.Context, orgID string, runAt time.Time) error {
	res := r.client.DB().WithContext(ctx).
		Model(&models.AggregationOrgConfig{}).
		Where("org_id = ?", orgID).
		Updates(map[string]any{"last_run": runAt, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return apperrors.Wrap(apperrors.CodeInternal, res.Error, "advancing last run")
	}
	if res.RowsAffected == 0 {
		return apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("no aggregation config for org %s", orgID))
	}
	return nil
}

// EnsureOrgConfig creates the scheduling row for a new org if missing. The
// initial watermark is backdated so the first run covers the default window.
func (r *Repository) EnsureOrgConfig(ctx context.Context, orgID string, hour int, defaultWindow time.Duration) error {
	return r.client.WithTx(ctx, func(tx *gorm.DB) error {
		var existing models.AggregationOrgConfig
		err := tx.Where("org_id = ?", orgID).First(&existing).Error
		if err == nil {
			return nil
		}
		if err != gorm.ErrRecordNotFound {
			return apperrors.Wrap(apperrors.CodeInternal, err, "loading aggregation config")
		}
		cfg := models.AggregationOrgConfig{
			OrgID:                  orgID,
			ScheduledExecutionHour: hour,
			LastRun:                time.Now().UTC().Add(-defaultWindow),
		}
		if err := tx.Create(&cfg).Error; err != nil {
			return apperrors.Wrap(apperrors.CodeInternal, err, "creating aggregation config")
		}
		return nil
	})
}
