package turso

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/emiliopalmerini/mvariant/internal/domain"
	"github.com/emiliopalmerini/mvariant/internal/ports"
)

// ConfigSource is a pull-style config source over the remote_config table.
// Fetch reads the published rows into a staged set and Activate promotes it.
type ConfigSource struct {
	db *sql.DB

	mu     sync.Mutex
	staged map[string]domain.Value
	active map[string]domain.Value
}

func NewConfigSource(db *sql.DB) *ConfigSource {
	return &ConfigSource{db: db}
}

func (s *ConfigSource) Fetch(ctx context.Context) (ports.FetchResult, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM remote_config`)
	if err != nil {
		return ports.FetchResult{Status: ports.SourceStatusFailure}, fmt.Errorf("failed to fetch remote config: %w", err)
	}
	defer rows.Close()

	values := make(map[string]domain.Value)
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return ports.FetchResult{Status: ports.SourceStatusFailure}, err
		}
		values[key] = domain.ParseValue(raw)
	}
	if err := rows.Err(); err != nil {
		return ports.FetchResult{Status: ports.SourceStatusFailure}, err
	}

	s.mu.Lock()
	s.staged = values
	s.mu.Unlock()

	return ports.FetchResult{Values: values, Status: ports.SourceStatusSuccess}, nil
}

func (s *ConfigSource) Activate(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staged == nil {
		return false, nil
	}
	s.active, s.staged = s.staged, nil
	return true, nil
}

// SetDefaults records in-app defaults so operators can inspect them.
func (s *ConfigSource) SetDefaults(ctx context.Context, defaults map[string]domain.Value) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for key, v := range defaults {
		raw, err := v.MarshalJSON()
		if err != nil {
			return fmt.Errorf("failed to encode default %s: %w", key, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO remote_config_defaults (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, key, string(raw)); err != nil {
			return fmt.Errorf("failed to store default %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// Publish writes a value operators push to clients. It becomes visible on
// the next Fetch.
func (s *ConfigSource) Publish(ctx context.Context, key string, v domain.Value) error {
	raw, err := v.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO remote_config (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, string(raw), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", key, err)
	}
	return nil
}
