package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrFetchFailed        = errors.New("config fetch failed")
	ErrActivationFailed   = errors.New("config activation failed")
	ErrMaxRetriesExceeded = errors.New("config fetch exceeded max retries")
	ErrValidationFailed   = errors.New("config validation failed")
	ErrNotInitialized     = errors.New("config not initialized")

	ErrCatalogUnavailable = errors.New("experiment catalog unavailable")

	ErrKeyMismatch    = errors.New("stored assignment belongs to another key")
	ErrAssignmentLost = errors.New("conditional write lost and no readable assignment")

	ErrInvalidArgument    = errors.New("invalid argument")
	ErrExperimentNotFound = errors.New("experiment not found")
	ErrVariantNotFound    = errors.New("variant not found")
)

type ConfigErrorKind int

const (
	ConfigFetchFailed ConfigErrorKind = iota + 1
	ConfigActivationFailed
	ConfigMaxRetriesExceeded
	ConfigValidationFailed
	ConfigNotInitialized
)

func (k ConfigErrorKind) sentinel() error {
	switch k {
	case ConfigFetchFailed:
		return ErrFetchFailed
	case ConfigActivationFailed:
		return ErrActivationFailed
	case ConfigMaxRetriesExceeded:
		return ErrMaxRetriesExceeded
	case ConfigValidationFailed:
		return ErrValidationFailed
	case ConfigNotInitialized:
		return ErrNotInitialized
	default:
		return nil
	}
}

// ConfigError reports a failure to obtain a usable config snapshot.
// It matches the sentinel of its Kind with errors.Is.
type ConfigError struct {
	Kind     ConfigErrorKind
	Key      string
	Reason   string
	Attempts int
	Err      error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	if s := e.Kind.sentinel(); s != nil {
		b.WriteString(s.Error())
	} else {
		b.WriteString("config error")
	}
	if e.Key != "" {
		fmt.Fprintf(&b, ": key %q", e.Key)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	if e.Attempts > 0 {
		fmt.Fprintf(&b, " (after %d attempts)", e.Attempts)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ConfigError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// CatalogError is returned when neither the config snapshot nor the document
// store produced a catalog.
type CatalogError struct {
	Remote   error
	Fallback error
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("%v: remote: %v; fallback: %v", ErrCatalogUnavailable, e.Remote, e.Fallback)
}

func (e *CatalogError) Unwrap() []error {
	errs := []error{ErrCatalogUnavailable}
	if e.Remote != nil {
		errs = append(errs, e.Remote)
	}
	if e.Fallback != nil {
		errs = append(errs, e.Fallback)
	}
	return errs
}

// StoreError wraps a read or write failure against the assignment store.
type StoreError struct {
	Op  string
	Key AssignmentKey
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("assignment store %s %s: %v", e.Op, e.Key.DocumentID(), e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// ExperimentError is the umbrella error surfaced by the experiment service.
type ExperimentError struct {
	ExperimentID string
	UserID       string
	Err          error
}

func (e *ExperimentError) Error() string {
	return fmt.Sprintf("experiment %s for user %s: %v", e.ExperimentID, e.UserID, e.Err)
}

func (e *ExperimentError) Unwrap() error { return e.Err }
