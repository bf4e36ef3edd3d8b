package experiment

import (
	"context"

	"github.com/emiliopalmerini/mvariant/internal/domain"
)

// Value returns the config value key of the user's variant, or def when the
// experiment, variant or key is absent.
func (s *Service) Value(ctx context.Context, experimentID, userID, key string, def domain.Value) domain.Value {
	v, err := s.GetVariant(ctx, experimentID, userID)
	if err != nil || v == nil {
		return def
	}
	val, ok := v.Value(key)
	if !ok {
		return def
	}
	return val
}

// Int returns def unless the value is an integer.
func (s *Service) Int(ctx context.Context, experimentID, userID, key string, def int64) int64 {
	n, ok := s.Value(ctx, experimentID, userID, key, domain.Value{}).AsInt()
	if !ok {
		return def
	}
	return n
}

// Float accepts integers as well.
func (s *Service) Float(ctx context.Context, experimentID, userID, key string, def float64) float64 {
	f, ok := s.Value(ctx, experimentID, userID, key, domain.Value{}).AsFloat()
	if !ok {
		return def
	}
	return f
}

func (s *Service) Bool(ctx context.Context, experimentID, userID, key string, def bool) bool {
	b, ok := s.Value(ctx, experimentID, userID, key, domain.Value{}).AsBool()
	if !ok {
		return def
	}
	return b
}

func (s *Service) String(ctx context.Context, experimentID, userID, key string, def string) string {
	str, ok := s.Value(ctx, experimentID, userID, key, domain.Value{}).AsString()
	if !ok {
		return def
	}
	return str
}
