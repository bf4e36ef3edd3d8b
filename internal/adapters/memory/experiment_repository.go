package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/emiliopalmerini/mvariant/internal/domain"
)

type ExperimentRepository struct {
	mu   sync.RWMutex
	docs map[string]domain.Experiment
}

func NewExperimentRepository(experiments ...domain.Experiment) *ExperimentRepository {
	r := &ExperimentRepository{docs: make(map[string]domain.Experiment)}
	for _, e := range experiments {
		r.docs[e.ID] = e
	}
	return r
}

// List returns experiments ordered by id.
func (r *ExperimentRepository) List(ctx context.Context) ([]domain.Experiment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Experiment, 0, len(r.docs))
	for _, e := range r.docs {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *ExperimentRepository) Upsert(ctx context.Context, e *domain.Experiment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.docs[e.ID] = *e
	return nil
}
