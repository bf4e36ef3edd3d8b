package otel

import (
	"context"

	"github.com/emiliopalmerini/mvariant/internal/domain"
	"github.com/emiliopalmerini/mvariant/internal/ports"
)

// NoOpSink is an analytics sink that does nothing.
type NoOpSink struct{}

// NewNoOpSink creates a new no-op sink for graceful degradation.
func NewNoOpSink() *NoOpSink {
	return &NoOpSink{}
}

func (s *NoOpSink) ExperimentAssigned(ctx context.Context, e domain.AssignmentEvent) error {
	return nil
}

func (s *NoOpSink) VariantSet(ctx context.Context, experimentID, variantID string) error {
	return nil
}

func (s *NoOpSink) Close(ctx context.Context) error {
	return nil
}

// ClosableSink is an analytics sink owning resources released by Close.
type ClosableSink interface {
	ports.AnalyticsSink
	Close(ctx context.Context) error
}

// Open returns the OTLP sink when enabled. A disabled or failing exporter
// degrades to a NoOpSink.
func Open(ctx context.Context, cfg Config, log ports.Logger) ClosableSink {
	if !cfg.Enabled {
		return NewNoOpSink()
	}
	sink, err := NewSink(ctx, cfg)
	if err != nil {
		log.Warn("otel analytics disabled", "error", err)
		return NewNoOpSink()
	}
	return sink
}
