package ports

import (
	"context"

	"github.com/emiliopalmerini/mvariant/internal/domain"
)

// AnalyticsSink receives experiment events. Callers never retry on error.
type AnalyticsSink interface {
	// ExperimentAssigned records an experiment_assigned event.
	ExperimentAssigned(ctx context.Context, event domain.AssignmentEvent) error
	// VariantSet updates the experiment_variant_set user property.
	VariantSet(ctx context.Context, experimentID, variantID string) error
}
