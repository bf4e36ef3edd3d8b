package ports

import (
	"context"

	"github.com/emiliopalmerini/mvariant/internal/domain"
)

// AssignmentRepository persists one assignment document per user and
// experiment. Get returns (nil, nil) when no document exists.
type AssignmentRepository interface {
	Get(ctx context.Context, key domain.AssignmentKey) (*domain.Assignment, error)
	// CreateIfAbsent writes the assignment only when no document exists for
	// its key and reports whether this call created it.
	CreateIfAbsent(ctx context.Context, assignment *domain.Assignment) (bool, error)
	// Put overwrites unconditionally. Reserved for QA overrides.
	Put(ctx context.Context, assignment *domain.Assignment) error
	Delete(ctx context.Context, key domain.AssignmentKey) error
}
