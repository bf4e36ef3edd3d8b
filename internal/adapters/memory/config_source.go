package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/emiliopalmerini/mvariant/internal/domain"
	"github.com/emiliopalmerini/mvariant/internal/ports"
)

// ConfigSource holds a published set of values. Fetch stages them and
// Activate promotes the staged set, mirroring a remote config backend.
type ConfigSource struct {
	mu        sync.Mutex
	published map[string]domain.Value
	staged    map[string]domain.Value
	active    map[string]domain.Value
	defaults  map[string]domain.Value
}

func NewConfigSource(values map[string]domain.Value) *ConfigSource {
	return &ConfigSource{published: maps.Clone(values)}
}

// PublishAll replaces the values returned by the next Fetch.
func (s *ConfigSource) PublishAll(values map[string]domain.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = maps.Clone(values)
}

// Publish sets one value for the next Fetch.
func (s *ConfigSource) Publish(ctx context.Context, key string, v domain.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.published == nil {
		s.published = make(map[string]domain.Value)
	}
	s.published[key] = v
	return nil
}

func (s *ConfigSource) Fetch(ctx context.Context) (ports.FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return ports.FetchResult{Status: ports.SourceStatusFailure}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.staged = maps.Clone(s.published)
	if s.staged == nil {
		s.staged = make(map[string]domain.Value)
	}
	return ports.FetchResult{Values: maps.Clone(s.staged), Status: ports.SourceStatusSuccess}, nil
}

// Activate reports false when there was nothing new to promote.
func (s *ConfigSource) Activate(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.staged == nil {
		return false, nil
	}
	s.active = s.staged
	s.staged = nil
	return true, nil
}

func (s *ConfigSource) SetDefaults(ctx context.Context, defaults map[string]domain.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults = maps.Clone(defaults)
	return nil
}

// Active returns the promoted values.
func (s *ConfigSource) Active() map[string]domain.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.active)
}
