// Package memory provides in-process implementations of the ports, used by
// tests and by the CLI when no database is configured.
package memory

import (
	"context"
	"sync"

	"github.com/emiliopalmerini/mvariant/internal/domain"
)

type AssignmentRepository struct {
	mu   sync.Mutex
	docs map[domain.AssignmentKey]domain.Assignment
}

func NewAssignmentRepository() *AssignmentRepository {
	return &AssignmentRepository{docs: make(map[domain.AssignmentKey]domain.Assignment)}
}

func (r *AssignmentRepository) Get(ctx context.Context, key domain.AssignmentKey) (*domain.Assignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.docs[key]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r *AssignmentRepository) CreateIfAbsent(ctx context.Context, a *domain.Assignment) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	id := a.Key()
	if _, ok := r.docs[id]; ok {
		return false, nil
	}
	r.docs[id] = *a
	return true, nil
}

func (r *AssignmentRepository) Put(ctx context.Context, a *domain.Assignment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.docs[a.Key()] = *a
	return nil
}

func (r *AssignmentRepository) Delete(ctx context.Context, key domain.AssignmentKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.docs, key)
	return nil
}

// Len returns the number of stored documents.
func (r *AssignmentRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.docs)
}

// CountByVariant returns the number of stored assignments per variant.
func (r *AssignmentRepository) CountByVariant(ctx context.Context, experimentID string) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[string]int64)
	for _, a := range r.docs {
		if a.ExperimentID == experimentID {
			counts[a.VariantID]++
		}
	}
	return counts, nil
}
