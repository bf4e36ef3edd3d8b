package turso

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/emiliopalmerini/mvariant/internal/domain"
	"github.com/emiliopalmerini/mvariant/internal/infrastructure/database"
)

type AssignmentRepository struct {
	db *sql.DB
}

func NewAssignmentRepository(db *sql.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

func (r *AssignmentRepository) Get(ctx context.Context, key domain.AssignmentKey) (*domain.Assignment, error) {
	a, err := database.WithRetry(ctx, streamRetries, func() (*domain.Assignment, error) {
		var a domain.Assignment
		var assignedAt string
		err := r.db.QueryRowContext(ctx, `
			SELECT user_id, experiment_id, variant_id, assigned_at
			FROM experiment_assignments WHERE user_id = ? AND experiment_id = ?
		`, key.UserID, key.ExperimentID).Scan(&a.UserID, &a.ExperimentID, &a.VariantID, &assignedAt)
		if err != nil {
			return nil, err
		}
		if a.AssignedAt, err = time.Parse(time.RFC3339Nano, assignedAt); err != nil {
			return nil, fmt.Errorf("failed to parse assigned_at %q: %w", assignedAt, err)
		}
		return &a, nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return a, nil
}

// CreateIfAbsent relies on the (user_id, experiment_id) primary key. The row
// is written only when none exists, and RowsAffected tells the winner apart.
// document_id is stored for readers that address documents by it.
func (r *AssignmentRepository) CreateIfAbsent(ctx context.Context, a *domain.Assignment) (bool, error) {
	res, err := database.WithRetry(ctx, streamRetries, func() (sql.Result, error) {
		return r.db.ExecContext(ctx, `
			INSERT INTO experiment_assignments (document_id, user_id, experiment_id, variant_id, assigned_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(user_id, experiment_id) DO NOTHING
		`, a.Key().DocumentID(), a.UserID, a.ExperimentID, a.VariantID, formatTime(a.AssignedAt))
	})
	if err != nil {
		return false, fmt.Errorf("failed to create assignment: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *AssignmentRepository) Put(ctx context.Context, a *domain.Assignment) error {
	_, err := database.WithRetry(ctx, streamRetries, func() (sql.Result, error) {
		return r.db.ExecContext(ctx, `
			INSERT INTO experiment_assignments (document_id, user_id, experiment_id, variant_id, assigned_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(user_id, experiment_id) DO UPDATE SET
				variant_id = excluded.variant_id,
				assigned_at = excluded.assigned_at
		`, a.Key().DocumentID(), a.UserID, a.ExperimentID, a.VariantID, formatTime(a.AssignedAt))
	})
	if err != nil {
		return fmt.Errorf("failed to put assignment: %w", err)
	}
	return nil
}

func (r *AssignmentRepository) Delete(ctx context.Context, key domain.AssignmentKey) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM experiment_assignments WHERE user_id = ? AND experiment_id = ?`, key.UserID, key.ExperimentID)
	if err != nil {
		return fmt.Errorf("failed to delete assignment: %w", err)
	}
	return nil
}

// CountByVariant returns how many users each variant of experimentID holds.
func (r *AssignmentRepository) CountByVariant(ctx context.Context, experimentID string) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT variant_id, COUNT(*) FROM experiment_assignments
		WHERE experiment_id = ? GROUP BY variant_id
	`, experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to count assignments: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var variant string
		var n int64
		if err := rows.Scan(&variant, &n); err != nil {
			return nil, err
		}
		counts[variant] = n
	}
	return counts, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
