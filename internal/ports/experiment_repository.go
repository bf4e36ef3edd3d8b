package ports

import (
	"context"

	"github.com/emiliopalmerini/mvariant/internal/domain"
)

// ExperimentRepository is the document store holding the system-of-record
// experiment catalog.
type ExperimentRepository interface {
	List(ctx context.Context) ([]domain.Experiment, error)
	Upsert(ctx context.Context, experiment *domain.Experiment) error
}
