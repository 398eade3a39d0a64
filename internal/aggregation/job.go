package aggregation

import (
	"context"
	"fmt"
	"time"

	"github.com/acuevasp/hookrelay/pkg/config"
	"github.com/acuevasp/hookrelay/pkg/db/models"
	"github.com/acuevasp/hookrelay/pkg/enums"
	"github.com/acuevasp/hookrelay/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// Store is the persistence surface the digest job depends on.
type Store interface {
	OrgsDue(ctx context.Context, now time.Time, staleAfter time.Duration, limit int) ([]models.AggregationOrgConfig, error)
	DailySubscriberCount(ctx context.Context, key Key) (int64, error)
	DistinctKeys(ctx context.Context, orgID string, window Window) ([]Key, error)
	Rows(ctx context.Context, key Key, window Window) ([]models.EmailAggregation, error)
	Purge(ctx context.Context, orgID string, until time.Time) (int64, error)
	AdvanceLastRun(ctx context.Context, orgID string, runAt time.Time) error
}

// JobParams configure the digest aggregation job.
type JobParams struct {
	Logger   *logger.Logger
	Store    Store
	Registry *Registry
	Emitter  Emitter
	Config   config.AggregationConfig
	Now      func() time.Time
}

// Job walks every org due this cycle, folds its staged rows into digests,
// emits one command per key and drains the staging table. Orgs are
// independent: one failing org never blocks the rest of the batch.
type Job struct {
	logg     *logger.Logger
	store    Store
	registry *Registry
	emitter  Emitter
	cfg      config.AggregationConfig
	now      func() time.Time
}

// NewJob builds the digest aggregation job.
func NewJob(params JobParams) (*Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	if params.Registry == nil {
		return nil, fmt.Errorf("aggregator registry required")
	}
	if params.Emitter == nil {
		return nil, fmt.Errorf("emitter required")
	}
	cfg := params.Config
	if cfg.DefaultWindow <= 0 {
		cfg.DefaultWindow = 24 * time.Hour
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Job{
		logg:     params.Logger,
		store:    params.Store,
		registry: params.Registry,
		emitter:  params.Emitter,
		cfg:      cfg,
		now:      now,
	}, nil
}

func (j *Job) Name() string { return "email-digest-aggregation" }

// Run processes every org due at the current hour, plus stragglers whose
// watermark is older than the default window.
func (j *Job) Run(ctx context.Context) error {
	now := j.now().UTC()

	configs, err := j.store.OrgsDue(ctx, now, j.cfg.DefaultWindow, j.cfg.OrgBatchSize)
	if err != nil {
		return fmt.Errorf("listing orgs due: %w", err)
	}
	if len(configs) == 0 {
		j.logg.Info(ctx, "no orgs due for aggregation")
		return nil
	}

	var errs error
	for _, orgCfg := range configs {
		if err := j.runOrg(ctx, orgCfg, now); err != nil {
			j.logg.Error(j.logg.WithOrgID(ctx, orgCfg.OrgID), "org aggregation failed", err)
			errs = multierr.Append(errs, fmt.Errorf("org %s: %w", orgCfg.OrgID, err))
		}
	}
	return errs
}

// runOrg covers the half-open window since the org's last run. Bad staged
// data fails only its own key; the window still closes over it so malformed
// rows cannot wedge the org forever. Infrastructure failures (store reads,
// command publishing) abort the org without purging, so the same window is
// retried next cycle.
func (j *Job) runOrg(ctx context.Context, orgCfg models.AggregationOrgConfig, now time.Time) error {
	orgCtx := j.logg.WithOrgID(ctx, orgCfg.OrgID)
	window := Window{Start: orgCfg.LastRun, End: now}

	keys, err := j.store.DistinctKeys(ctx, orgCfg.OrgID, window)
	if err != nil {
		return fmt.Errorf("listing keys: %w", err)
	}

	for _, key := range keys {
		if err := j.runKey(orgCtx, key, window, now); err != nil {
			return err
		}
	}

	purged, err := j.store.Purge(ctx, orgCfg.OrgID, window.End)
	if err != nil {
		return fmt.Errorf("purging staged rows: %w", err)
	}
	if err := j.store.AdvanceLastRun(ctx, orgCfg.OrgID, window.End); err != nil {
		return fmt.Errorf("advancing watermark: %w", err)
	}
	j.logg.Info(j.logg.WithField(orgCtx, "purged_rows", purged), "aggregation window closed")
	return nil
}

func (j *Job) runKey(ctx context.Context, key Key, window Window, now time.Time) error {
	keyCtx := j.logg.WithFields(ctx, map[string]any{
		"bundle":      key.Bundle,
		"application": key.Application,
	})

	subscribers, err := j.store.DailySubscriberCount(ctx, key)
	if err != nil {
		return fmt.Errorf("counting subscribers for %s: %w", key, err)
	}
	if subscribers == 0 {
		j.logg.Info(keyCtx, "no daily subscribers; staged rows will be purged unsent")
		return nil
	}

	aggregator, ok := j.registry.Lookup(key.Bundle, key.Application)
	if !ok {
		j.logg.Warn(keyCtx, "no aggregator registered; skipping key")
		return nil
	}

	rows, err := j.store.Rows(ctx, key, window)
	if err != nil {
		return fmt.Errorf("loading rows for %s: %w", key, err)
	}
	if len(rows) == 0 {
		return nil
	}

	payload, err := aggregator.Aggregate(ctx, key, rows)
	if err != nil {
		// Bad staged data: fail the key, not the org. The window still
		// purges these rows so they cannot poison every future run.
		j.logg.Error(keyCtx, "aggregation failed; key skipped this window", err)
		return nil
	}

	cmd := Command{
		ID:               uuid.New(),
		OrgID:            key.OrgID,
		Bundle:           key.Bundle,
		Application:      key.Application,
		SubscriptionType: enums.SubscriptionTypeDaily,
		WindowStart:      window.Start,
		WindowEnd:        window.End,
		EventCount:       len(rows),
		Payload:          payload,
		EmittedAt:        now,
	}
	if err := j.emitter.Emit(ctx, cmd); err != nil {
		return fmt.Errorf("emitting command for %s: %w", key, err)
	}
	return nil
}
