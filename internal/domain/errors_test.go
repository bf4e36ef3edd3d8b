package domain

import (
	"errors"
	"io"
	"testing"
)

func TestConfigError_MatchesSentinelAndCause(t *testing.T) {
	err := error(&ConfigError{Kind: ConfigMaxRetriesExceeded, Attempts: 3, Err: io.ErrUnexpectedEOF})

	if !errors.Is(err, ErrMaxRetriesExceeded) {
		t.Error("expected ErrMaxRetriesExceeded")
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("expected wrapped cause")
	}
	if errors.Is(err, ErrValidationFailed) {
		t.Error("unexpected ErrValidationFailed match")
	}

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Attempts != 3 {
		t.Errorf("errors.As failed: %v", err)
	}
}

func TestConfigError_ValidationMessage(t *testing.T) {
	err := &ConfigError{Kind: ConfigValidationFailed, Key: "max_books_limit", Reason: "must be > 0"}
	want := `config validation failed: key "max_books_limit": must be > 0`
	if err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}
}

func TestCatalogError_Unwrap(t *testing.T) {
	remote := &ConfigError{Kind: ConfigNotInitialized}
	fallback := errors.New("document store offline")
	err := error(&CatalogError{Remote: remote, Fallback: fallback})

	if !errors.Is(err, ErrCatalogUnavailable) {
		t.Error("expected ErrCatalogUnavailable")
	}
	if !errors.Is(err, ErrNotInitialized) {
		t.Error("expected remote cause")
	}
	if !errors.Is(err, fallback) {
		t.Error("expected fallback cause")
	}
}

func TestStoreError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := error(&StoreError{Op: "create", Key: AssignmentKey{UserID: "u", ExperimentID: "e"}, Err: cause})
	if !errors.Is(err, cause) {
		t.Error("expected cause")
	}
	if err.Error() != "assignment store create u_e: disk full" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
