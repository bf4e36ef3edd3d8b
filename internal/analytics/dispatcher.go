// Package analytics delivers experiment events to analytics sinks without
// blocking the assignment path.
package analytics

import (
	"context"
	"errors"
	"sync"

	"github.com/emiliopalmerini/mvariant/internal/domain"
	"github.com/emiliopalmerini/mvariant/internal/ports"
)

const DefaultBufferSize = 256

// ErrDropped is returned when the buffer is full or the dispatcher closed.
var ErrDropped = errors.New("analytics event dropped")

type event struct {
	name       string
	assignment domain.AssignmentEvent
	experiment string
	variant    string
}

// Dispatcher queues events and forwards them to every sink from a single
// worker. Delivery is best effort: sink errors are logged and never retried.
type Dispatcher struct {
	sinks  []ports.AnalyticsSink
	logger ports.Logger

	queue  chan event
	done   chan struct{}
	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts the worker. Call Close to drain and stop it.
func NewDispatcher(logger ports.Logger, bufferSize int, sinks ...ports.AnalyticsSink) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	d := &Dispatcher{
		sinks:  sinks,
		logger: logger,
		queue:  make(chan event, bufferSize),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// ExperimentAssigned implements ports.AnalyticsSink.
func (d *Dispatcher) ExperimentAssigned(_ context.Context, e domain.AssignmentEvent) error {
	return d.enqueue(event{name: domain.EventExperimentAssigned, assignment: e})
}

// VariantSet implements ports.AnalyticsSink.
func (d *Dispatcher) VariantSet(_ context.Context, experimentID, variantID string) error {
	return d.enqueue(event{name: domain.EventExperimentVariantSet, experiment: experimentID, variant: variantID})
}

func (d *Dispatcher) enqueue(e event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDropped
	}
	select {
	case d.queue <- e:
		return nil
	default:
		d.logger.Warn("analytics buffer full", "event", e.name)
		return ErrDropped
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	ctx := context.Background()
	for e := range d.queue {
		for _, sink := range d.sinks {
			var err error
			switch e.name {
			case domain.EventExperimentAssigned:
				err = sink.ExperimentAssigned(ctx, e.assignment)
			case domain.EventExperimentVariantSet:
				err = sink.VariantSet(ctx, e.experiment, e.variant)
			}
			if err != nil {
				d.logger.Error("analytics sink failed", "event", e.name, "error", err)
			}
		}
	}
}

// Close stops accepting events and waits for queued ones to be delivered,
// or for ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
