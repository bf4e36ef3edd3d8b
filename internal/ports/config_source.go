package ports

import (
	"context"

	"github.com/emiliopalmerini/mvariant/internal/domain"
)

// SourceStatus is the outcome reported by a config source for one fetch.
type SourceStatus string

const (
	SourceStatusSuccess   SourceStatus = "success"
	SourceStatusThrottled SourceStatus = "throttled"
	SourceStatusFailure   SourceStatus = "failure"
)

// FetchResult carries the values staged by a fetch.
type FetchResult struct {
	Values map[string]domain.Value
	Status SourceStatus
}

// ConfigSource is a remote key/value channel. Fetch stages values, Activate
// promotes the staged values.
type ConfigSource interface {
	Fetch(ctx context.Context) (FetchResult, error)
	Activate(ctx context.Context) (bool, error)
	SetDefaults(ctx context.Context, defaults map[string]domain.Value) error
}
