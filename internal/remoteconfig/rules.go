package remoteconfig

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/emiliopalmerini/mvariant/internal/domain"
)

// Rule validates one required key of a snapshot.
//
// DefaultRules only uses IntRange and FloatRange. NonEmptyString, Bool,
// JSONDocument and OneOf are building blocks for services that pass their
// own Options.Rules. The catalog key is not among the defaults:
// a bad catalog push falls back to the document store instead of rejecting
// the whole snapshot.
type Rule struct {
	Key   string
	Check func(v domain.Value) error
}

// DefaultRules are the keys every activated snapshot must carry.
func DefaultRules() []Rule {
	return []Rule{
		IntRange("max_books_limit", 0, 1000),
		FloatRange("network_timeout_seconds", 0, 300),
	}
}

// DefaultValues are the in-app defaults for the keys DefaultRules require.
func DefaultValues() map[string]domain.Value {
	return map[string]domain.Value{
		"max_books_limit":         domain.IntValue(50),
		"network_timeout_seconds": domain.FloatValue(30),
	}
}

// IntRange requires an integer with min < v <= max.
func IntRange(key string, min, max int64) Rule {
	return Rule{Key: key, Check: func(v domain.Value) error {
		n, ok := v.AsInt()
		if !ok {
			return fmt.Errorf("expected int, got %s", v.Kind())
		}
		if n <= min {
			return fmt.Errorf("must be > %d, got %d", min, n)
		}
		if n > max {
			return fmt.Errorf("must be <= %d, got %d", max, n)
		}
		return nil
	}}
}

// FloatRange requires a number with min < v <= max. Integers are accepted.
func FloatRange(key string, min, max float64) Rule {
	return Rule{Key: key, Check: func(v domain.Value) error {
		f, ok := v.AsFloat()
		if !ok {
			return fmt.Errorf("expected number, got %s", v.Kind())
		}
		if f <= min {
			return fmt.Errorf("must be > %v, got %v", min, f)
		}
		if f > max {
			return fmt.Errorf("must be <= %v, got %v", max, f)
		}
		return nil
	}}
}

// NonEmptyString requires a string with non-blank content.
func NonEmptyString(key string) Rule {
	return Rule{Key: key, Check: func(v domain.Value) error {
		s, ok := v.AsString()
		if !ok {
			return fmt.Errorf("expected string, got %s", v.Kind())
		}
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("must not be empty")
		}
		return nil
	}}
}

// Bool requires a boolean.
func Bool(key string) Rule {
	return Rule{Key: key, Check: func(v domain.Value) error {
		if _, ok := v.AsBool(); !ok {
			return fmt.Errorf("expected bool, got %s", v.Kind())
		}
		return nil
	}}
}

// JSONDocument requires a list or map, or a string holding valid JSON.
func JSONDocument(key string) Rule {
	return Rule{Key: key, Check: func(v domain.Value) error {
		switch v.Kind() {
		case domain.KindList, domain.KindMap:
			return nil
		case domain.KindString:
			s, _ := v.AsString()
			if !json.Valid([]byte(s)) {
				return fmt.Errorf("invalid JSON document")
			}
			return nil
		default:
			return fmt.Errorf("expected JSON document, got %s", v.Kind())
		}
	}}
}

// OneOf requires a string from a closed set.
func OneOf(key string, allowed ...string) Rule {
	return Rule{Key: key, Check: func(v domain.Value) error {
		s, ok := v.AsString()
		if !ok {
			return fmt.Errorf("expected string, got %s", v.Kind())
		}
		for _, a := range allowed {
			if s == a {
				return nil
			}
		}
		return fmt.Errorf("must be one of %s, got %q", strings.Join(allowed, ", "), s)
	}}
}

// Validate checks values against rules and returns the first violation.
func Validate(values map[string]domain.Value, rules []Rule) error {
	for _, r := range rules {
		v, ok := values[r.Key]
		if !ok || v.IsNull() {
			return &domain.ConfigError{Kind: domain.ConfigValidationFailed, Key: r.Key, Reason: "required key missing"}
		}
		if err := r.Check(v); err != nil {
			return &domain.ConfigError{Kind: domain.ConfigValidationFailed, Key: r.Key, Reason: err.Error()}
		}
	}
	return nil
}
