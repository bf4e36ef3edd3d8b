package analytics

import (
	"context"

	"github.com/emiliopalmerini/mvariant/internal/domain"
	"github.com/emiliopalmerini/mvariant/internal/ports"
)

// LogSink writes events to the structured log.
type LogSink struct {
	logger ports.Logger
}

func NewLogSink(logger ports.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) ExperimentAssigned(_ context.Context, e domain.AssignmentEvent) error {
	s.logger.Info(domain.EventExperimentAssigned,
		"experiment_id", e.ExperimentID,
		"variant_id", e.VariantID,
		"user_id", e.UserID,
		"assigned_at", e.AssignedAt,
	)
	return nil
}

func (s *LogSink) VariantSet(_ context.Context, experimentID, variantID string) error {
	s.logger.Info(domain.EventExperimentVariantSet, "experiment_id", experimentID, "variant_id", variantID)
	return nil
}
