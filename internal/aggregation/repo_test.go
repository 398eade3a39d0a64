//go:build db
// +build db

package aggregation

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/acuevasp/hookrelay/pkg/config"
	"github.com/acuevasp/hookrelay/pkg/db"
	"github.com/acuevasp/hookrelay/pkg/db/models"
	"github.com/acuevasp/hookrelay/pkg/enums"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestClient(t *testing.T) *db.Client {
	t.Helper()

	dsn := os.Getenv("HOOKRELAY_DB_DSN")
	if dsn == "" {
		t.Skip("HOOKRELAY_DB_DSN is not set")
	}

	client, err := db.New(context.Background(), config.DBConfig{DSN: dsn}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func seedRow(t *testing.T, client *db.Client, orgID, bundle, application string, createdAt time.Time) {
	t.Helper()
	row := models.EmailAggregation{
		ID:          uuid.New(),
		OrgID:       orgID,
		Bundle:      bundle,
		Application: application,
		Payload:     json.RawMessage(`{"host":"h1","policyId":"p1"}`),
		CreatedAt:   createdAt,
	}
	require.NoError(t, client.DB().Create(&row).Error)
}

func TestRepositoryWindowIsHalfOpen(t *testing.T) {
	client := openTestClient(t)
	repo, err := NewRepository(client)
	require.NoError(t, err)

	orgID := "test-org-" + uuid.NewString()
	t.Cleanup(func() {
		client.DB().Where("org_id = ?", orgID).Delete(&models.EmailAggregation{})
	})

	start := time.Date(2026, 1, 15, 6, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	window := Window{Start: start, End: end}

	seedRow(t, client, orgID, "security", "policies", start)                // on start: previous window
	seedRow(t, client, orgID, "security", "policies", start.Add(time.Hour)) // inside
	seedRow(t, client, orgID, "security", "policies", end)                  // on end: this window
	seedRow(t, client, orgID, "security", "policies", end.Add(time.Second)) // next window

	ctx := context.Background()

	rows, err := repo.Rows(ctx, Key{OrgID: orgID, Bundle: "security", Application: "policies"}, window)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].CreatedAt.Before(rows[1].CreatedAt), "rows must come back oldest first")

	keys, err := repo.DistinctKeys(ctx, orgID, window)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "security", keys[0].Bundle)

	purged, err := repo.Purge(ctx, orgID, end)
	require.NoError(t, err)
	assert.Equal(t, int64(3), purged, "purge covers everything up to and including the window end")

	var remaining int64
	require.NoError(t, client.DB().Model(&models.EmailAggregation{}).Where("org_id = ?", orgID).Count(&remaining).Error)
	assert.Equal(t, int64(1), remaining, "the post-window row must survive")
}

func TestRepositoryDistinctKeysSplitsByBundleAndApplication(t *testing.T) {
	client := openTestClient(t)
	repo, err := NewRepository(client)
	require.NoError(t, err)

	orgID := "test-org-" + uuid.NewString()
	t.Cleanup(func() {
		client.DB().Where("org_id = ?", orgID).Delete(&models.EmailAggregation{})
	})

	start := time.Date(2026, 1, 15, 6, 0, 0, 0, time.UTC)
	window := Window{Start: start, End: start.Add(24 * time.Hour)}

	seedRow(t, client, orgID, "security", "policies", start.Add(time.Hour))
	seedRow(t, client, orgID, "security", "scans", start.Add(time.Hour))
	seedRow(t, client, orgID, "commerce", "orders", start.Add(2*time.Hour))
	seedRow(t, client, orgID, "commerce", "orders", start.Add(3*time.Hour))

	keys, err := repo.DistinctKeys(context.Background(), orgID, window)
	require.NoError(t, err)
	require.Len(t, keys, 3)
	for _, key := range keys {
		assert.Equal(t, orgID, key.OrgID)
	}
}

func TestRepositorySubscriberCountAndWatermark(t *testing.T) {
	client := openTestClient(t)
	repo, err := NewRepository(client)
	require.NoError(t, err)

	orgID := "test-org-" + uuid.NewString()
	t.Cleanup(func() {
		client.DB().Where("org_id = ?", orgID).Delete(&models.EmailSubscription{})
		client.DB().Where("org_id = ?", orgID).Delete(&models.AggregationOrgConfig{})
	})

	ctx := context.Background()

	subs := []models.EmailSubscription{
		{OrgID: orgID, UserID: "u1", Bundle: "security", Application: "policies", SubscriptionType: enums.SubscriptionTypeDaily},
		{OrgID: orgID, UserID: "u1", Bundle: "security", Application: "scans", SubscriptionType: enums.SubscriptionTypeDaily},
		{OrgID: orgID, UserID: "u2", Bundle: "security", Application: "policies", SubscriptionType: enums.SubscriptionTypeDaily},
		{OrgID: orgID, UserID: "u3", Bundle: "security", Application: "policies", SubscriptionType: enums.SubscriptionTypeInstant},
	}
	for i := range subs {
		require.NoError(t, client.DB().Create(&subs[i]).Error)
	}

	count, err := repo.DailySubscriberCount(ctx, Key{OrgID: orgID, Bundle: "security", Application: "policies"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count, "u1/u2 daily; instant subscription excluded")

	count, err = repo.DailySubscriberCount(ctx, Key{OrgID: orgID, Bundle: "security", Application: "scans"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "per-key count, not per-org")

	require.NoError(t, repo.EnsureOrgConfig(ctx, orgID, 6, 24*time.Hour))
	// Idempotent on repeat.
	require.NoError(t, repo.EnsureOrgConfig(ctx, orgID, 9, 24*time.Hour))

	var cfg models.AggregationOrgConfig
	require.NoError(t, client.DB().Where("org_id = ?", orgID).First(&cfg).Error)
	assert.Equal(t, 6, cfg.ScheduledExecutionHour, "second ensure must not overwrite")

	runAt := time.Date(2026, 1, 16, 6, 0, 0, 0, time.UTC)
	require.NoError(t, repo.AdvanceLastRun(ctx, orgID, runAt))

	require.NoError(t, client.DB().Where("org_id = ?", orgID).First(&cfg).Error)
	assert.True(t, cfg.LastRun.Equal(runAt))

	err = repo.AdvanceLastRun(ctx, "missing-org-"+uuid.NewString(), runAt)
	assert.Error(t, err, "advancing an unknown org must fail")
}
