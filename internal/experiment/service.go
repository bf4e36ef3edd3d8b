// Package experiment resolves, assigns and persists the variant a user sees
// for an experiment.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/emiliopalmerini/mvariant/internal/assignment"
	"github.com/emiliopalmerini/mvariant/internal/domain"
	"github.com/emiliopalmerini/mvariant/internal/logger"
	"github.com/emiliopalmerini/mvariant/internal/ports"
)

// Catalog provides the current experiment catalog.
type Catalog interface {
	Experiments(ctx context.Context) ([]domain.Experiment, error)
	Invalidate()
}

// Assigner picks a variant from a non-empty, positively weighted list.
type Assigner interface {
	Assign(variants []domain.Variant) domain.Variant
}

type Options struct {
	Analytics ports.AnalyticsSink
	Logger    ports.Logger
	Now       func() time.Time
}

// Service is the entry point for variant lookups. Experiments are additive:
// any failure that is not a caller mistake surfaces as "no variant".
type Service struct {
	catalog   Catalog
	store     *assignment.Store
	assigner  Assigner
	analytics ports.AnalyticsSink
	log       ports.Logger
	now       func() time.Time

	group singleflight.Group
}

func NewService(catalog Catalog, store *assignment.Store, assigner Assigner, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &Service{
		catalog:   catalog,
		store:     store,
		assigner:  assigner,
		analytics: opts.Analytics,
		log:       opts.Logger,
		now:       opts.Now,
	}
}

// GetVariant returns the variant assigned to userID, assigning one on first
// call. A nil variant with a nil error means the experiment is not running
// for this user.
func (s *Service) GetVariant(ctx context.Context, experimentID, userID string) (*domain.Variant, error) {
	if err := checkArgs(experimentID, userID); err != nil {
		return nil, err
	}

	exp, ok := s.runningExperiment(ctx, experimentID)
	if !ok {
		return nil, nil
	}

	key := domain.AssignmentKey{UserID: userID, ExperimentID: experimentID}
	existing, err := s.store.Get(ctx, key)
	if err != nil {
		s.log.Warn("assignment lookup failed, assigning fresh", "experiment_id", experimentID, "user_id", userID, "error", err)
	}
	if existing != nil {
		return resolve(exp, existing), nil
	}

	v, err, _ := s.group.Do(key.DocumentID(), func() (interface{}, error) {
		return s.assign(ctx, exp, key)
	})
	if err != nil {
		return nil, err
	}
	// Waiters of one flight share the result; each gets its own copy.
	picked, _ := v.(*domain.Variant)
	if picked == nil {
		return nil, nil
	}
	out := *picked
	return &out, nil
}

func (s *Service) assign(ctx context.Context, exp *domain.Experiment, key domain.AssignmentKey) (*domain.Variant, error) {
	// A concurrent flight may have finished between the lookup and now.
	if existing, err := s.store.Get(ctx, key); err == nil && existing != nil {
		return resolve(exp, existing), nil
	}

	picked := s.assigner.Assign(exp.Variants)
	a := domain.Assignment{
		UserID:       key.UserID,
		ExperimentID: key.ExperimentID,
		VariantID:    picked.ID,
		AssignedAt:   s.now(),
	}

	stored, created, err := s.store.Create(ctx, a)
	if errors.Is(err, domain.ErrAssignmentLost) {
		// Another writer holds the document but it cannot be read, so the
		// locally picked variant may disagree with it.
		s.log.Error("assignment race lost and stored variant unreadable", "experiment_id", key.ExperimentID, "user_id", key.UserID, "error", err)
		return nil, nil
	}
	if err != nil {
		s.log.Error("failed to persist assignment", "experiment_id", key.ExperimentID, "user_id", key.UserID, "variant_id", picked.ID, "error", err)
		return &picked, nil
	}
	if !created {
		s.log.Debug("assignment race lost, using stored variant", "experiment_id", key.ExperimentID, "user_id", key.UserID, "variant_id", stored.VariantID)
		return resolve(exp, &stored), nil
	}

	s.log.Info("user assigned to variant", "experiment_id", key.ExperimentID, "user_id", key.UserID, "variant_id", stored.VariantID)
	s.emit(ctx, stored)
	return &picked, nil
}

func (s *Service) emit(ctx context.Context, a domain.Assignment) {
	if s.analytics == nil {
		return
	}
	event := domain.AssignmentEvent{
		ExperimentID: a.ExperimentID,
		VariantID:    a.VariantID,
		UserID:       a.UserID,
		AssignedAt:   a.AssignedAt,
	}
	if err := s.analytics.ExperimentAssigned(ctx, event); err != nil {
		s.log.Warn("analytics event dropped", "event", domain.EventExperimentAssigned, "error", err)
	}
	if err := s.analytics.VariantSet(ctx, a.ExperimentID, a.VariantID); err != nil {
		s.log.Warn("analytics event dropped", "event", domain.EventExperimentVariantSet, "error", err)
	}
}

// runningExperiment returns the experiment when the catalog loads and the
// experiment can be assigned.
func (s *Service) runningExperiment(ctx context.Context, experimentID string) (*domain.Experiment, bool) {
	experiments, err := s.catalog.Experiments(ctx)
	if err != nil {
		s.log.Warn("experiment catalog unavailable", "experiment_id", experimentID, "error", err)
		return nil, false
	}

	exp, ok := domain.FindExperiment(experiments, experimentID)
	if !ok {
		s.log.Debug("experiment not in catalog", "experiment_id", experimentID)
		return nil, false
	}
	if !exp.Assignable() {
		return nil, false
	}
	return exp, true
}

// resolve maps a stored assignment back to its variant. An assignment whose
// variant was removed from the catalog yields nil; it is never rebound.
func resolve(exp *domain.Experiment, a *domain.Assignment) *domain.Variant {
	v, ok := exp.FindVariant(a.VariantID)
	if !ok {
		return nil
	}
	out := *v
	return &out
}

// Reset forgets the assignment so the next GetVariant assigns again.
func (s *Service) Reset(ctx context.Context, experimentID, userID string) error {
	if err := checkArgs(experimentID, userID); err != nil {
		return err
	}
	key := domain.AssignmentKey{UserID: userID, ExperimentID: experimentID}
	if err := s.store.Reset(ctx, key); err != nil {
		return &domain.ExperimentError{ExperimentID: experimentID, UserID: userID, Err: err}
	}
	s.log.Info("assignment reset", "experiment_id", experimentID, "user_id", userID)
	return nil
}

// ForceAssignment binds userID to variantID regardless of any previous
// assignment. The variant must exist in the current catalog.
func (s *Service) ForceAssignment(ctx context.Context, experimentID, userID, variantID string) error {
	if err := checkArgs(experimentID, userID); err != nil {
		return err
	}

	experiments, err := s.catalog.Experiments(ctx)
	if err != nil {
		return &domain.ExperimentError{ExperimentID: experimentID, UserID: userID, Err: err}
	}
	exp, ok := domain.FindExperiment(experiments, experimentID)
	if !ok {
		return &domain.ExperimentError{ExperimentID: experimentID, UserID: userID, Err: domain.ErrExperimentNotFound}
	}
	if _, ok := exp.FindVariant(variantID); !ok {
		return &domain.ExperimentError{
			ExperimentID: experimentID,
			UserID:       userID,
			Err:          fmt.Errorf("%w: %s", domain.ErrVariantNotFound, variantID),
		}
	}

	a := domain.Assignment{UserID: userID, ExperimentID: experimentID, VariantID: variantID, AssignedAt: s.now()}
	if err := s.store.Force(ctx, a); err != nil {
		return &domain.ExperimentError{ExperimentID: experimentID, UserID: userID, Err: err}
	}
	s.log.Info("assignment forced", "experiment_id", experimentID, "user_id", userID, "variant_id", variantID)
	return nil
}

// RefreshCatalog drops the cached catalog; the next lookup reloads it.
func (s *Service) RefreshCatalog() {
	s.catalog.Invalidate()
}

func (s *Service) Experiments(ctx context.Context) ([]domain.Experiment, error) {
	return s.catalog.Experiments(ctx)
}

func checkArgs(experimentID, userID string) error {
	switch {
	case experimentID == "":
		return &domain.ExperimentError{UserID: userID, Err: fmt.Errorf("%w: experiment id is required", domain.ErrInvalidArgument)}
	case userID == "":
		return &domain.ExperimentError{ExperimentID: experimentID, Err: fmt.Errorf("%w: user id is required", domain.ErrInvalidArgument)}
	}
	return nil
}
