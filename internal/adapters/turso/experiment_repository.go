package turso

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/emiliopalmerini/mvariant/internal/domain"
	"github.com/emiliopalmerini/mvariant/internal/infrastructure/database"
)

const streamRetries = 2

// ExperimentRepository stores each experiment as a JSON document.
type ExperimentRepository struct {
	db *sql.DB
	// Invalid documents are skipped by List and reported here.
	OnInvalid func(id string, err error)
}

func NewExperimentRepository(db *sql.DB) *ExperimentRepository {
	return &ExperimentRepository{db: db}
}

func (r *ExperimentRepository) List(ctx context.Context) ([]domain.Experiment, error) {
	type row struct {
		id  string
		doc string
	}

	rows, err := database.WithRetry(ctx, streamRetries, func() ([]row, error) {
		rs, err := r.db.QueryContext(ctx, `SELECT id, document FROM experiment_documents ORDER BY id`)
		if err != nil {
			return nil, err
		}
		defer rs.Close()

		var out []row
		for rs.Next() {
			var rw row
			if err := rs.Scan(&rw.id, &rw.doc); err != nil {
				return nil, err
			}
			out = append(out, rw)
		}
		return out, rs.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}

	experiments := make([]domain.Experiment, 0, len(rows))
	for _, rw := range rows {
		var e domain.Experiment
		if err := json.Unmarshal([]byte(rw.doc), &e); err == nil {
			err = e.Validate()
		} else {
			err = fmt.Errorf("failed to decode experiment %s: %w", rw.id, err)
		}
		if err != nil {
			if r.OnInvalid != nil {
				r.OnInvalid(rw.id, err)
			}
			continue
		}
		experiments = append(experiments, e)
	}
	return experiments, nil
}

func (r *ExperimentRepository) Upsert(ctx context.Context, experiment *domain.Experiment) error {
	if err := experiment.Validate(); err != nil {
		return err
	}
	doc, err := json.Marshal(experiment)
	if err != nil {
		return fmt.Errorf("failed to encode experiment: %w", err)
	}

	_, err = database.WithRetry(ctx, streamRetries, func() (sql.Result, error) {
		return r.db.ExecContext(ctx, `
			INSERT INTO experiment_documents (id, status, document, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				status = excluded.status,
				document = excluded.document,
				updated_at = excluded.updated_at
		`, experiment.ID, string(experiment.Status), string(doc), time.Now().UTC().Format(time.RFC3339))
	})
	if err != nil {
		return fmt.Errorf("failed to upsert experiment: %w", err)
	}
	return nil
}

func (r *ExperimentRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM experiment_documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete experiment: %w", err)
	}
	return nil
}
