package aggregation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/acuevasp/hookrelay/pkg/db/models"
	apperrors "github.com/acuevasp/hookrelay/pkg/errors"
)

// PayloadAggregator folds the staged rows of one key into a digest payload.
// Implementations receive rows of a single tenant only and must reject
// anything else.
type PayloadAggregator interface {
	Aggregate(ctx context.Context, key Key, rows []models.EmailAggregation) (json.RawMessage, error)
}

// Registry maps bundle/application pairs to their aggregator. Keys with no
// registered aggregator are skipped; their rows are still purged at the end
// of the window so they cannot pile up.
type Registry struct {
	aggregators map[string]PayloadAggregator
}

// NewAggregatorRegistry builds an empty registry.
func NewAggregatorRegistry() *Registry {
	return &Registry{aggregators: map[string]PayloadAggregator{}}
}

// Register binds an aggregator to a bundle/application pair, replacing any
// previous binding.
func (r *Registry) Register(bundle, application string, aggregator PayloadAggregator) {
	if aggregator == nil {
		return
	}
	r.aggregators[registryKey(bundle, application)] = aggregator
}

// Lookup returns the aggregator for the pair, if any.
func (r *Registry) Lookup(bundle, application string) (PayloadAggregator, bool) {
	aggregator, ok := r.aggregators[registryKey(bundle, application)]
	return aggregator, ok
}

func registryKey(bundle, application string) string {
	return strings.ToLower(bundle) + "/" + strings.ToLower(application)
}

// ensureSingleTenant rejects rows that do not belong to the key's org.
// Mixing tenants in one digest is a data leak, so this fails the whole run
// rather than dropping rows quietly.
func ensureSingleTenant(key Key, rows []models.EmailAggregation) error {
	for _, row := range rows {
		if row.OrgID != key.OrgID {
			return apperrors.New(apperrors.CodeConflict,
				fmt.Sprintf("row %s belongs to org %s, expected %s", row.ID, row.OrgID, key.OrgID))
		}
	}
	return nil
}
