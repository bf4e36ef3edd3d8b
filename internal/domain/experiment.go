package domain

import (
	"encoding/json"
	"fmt"
)

type ExperimentStatus string

const (
	StatusActive   ExperimentStatus = "active"
	StatusInactive ExperimentStatus = "inactive"
)

// Experiment is a named A/B test. It is owned by an operator and read-only
// to the engine.
type Experiment struct {
	ID       string           `json:"id"`
	Status   ExperimentStatus `json:"status"`
	Variants []Variant        `json:"variants"`
}

// Variant is one arm of an experiment. Weight is relative and need not sum
// to one across the experiment.
type Variant struct {
	ID     string           `json:"id"`
	Name   string           `json:"name"`
	Weight float64          `json:"weight"`
	Config map[string]Value `json:"config"`
}

func (e *Experiment) IsActive() bool {
	return e.Status == StatusActive
}

// TotalWeight sums the weights of all variants.
func (e *Experiment) TotalWeight() float64 {
	var total float64
	for _, v := range e.Variants {
		total += v.Weight
	}
	return total
}

// Assignable reports whether users can be bucketed into this experiment:
// it must be active and carry at least one variant with positive weight.
func (e *Experiment) Assignable() bool {
	return e.IsActive() && e.TotalWeight() > 0
}

func (e *Experiment) FindVariant(id string) (*Variant, bool) {
	for i := range e.Variants {
		if e.Variants[i].ID == id {
			return &e.Variants[i], true
		}
	}
	return nil, false
}

// Validate checks the structural invariants of a decoded experiment.
func (e *Experiment) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("experiment id is required")
	}

	switch e.Status {
	case StatusActive, StatusInactive:
	default:
		return fmt.Errorf("experiment %s: unknown status %q", e.ID, e.Status)
	}

	if e.IsActive() && len(e.Variants) == 0 {
		return fmt.Errorf("experiment %s: active experiment has no variants", e.ID)
	}

	seen := make(map[string]struct{}, len(e.Variants))
	for _, v := range e.Variants {
		if v.ID == "" {
			return fmt.Errorf("experiment %s: variant id is required", e.ID)
		}
		if _, dup := seen[v.ID]; dup {
			return fmt.Errorf("experiment %s: duplicate variant id %q", e.ID, v.ID)
		}
		seen[v.ID] = struct{}{}

		if v.Weight < 0 {
			return fmt.Errorf("experiment %s: variant %s has negative weight %v", e.ID, v.ID, v.Weight)
		}
	}
	return nil
}

// Value returns a single config entry of the variant.
func (v *Variant) Value(key string) (Value, bool) {
	if v == nil || v.Config == nil {
		return Value{}, false
	}
	val, ok := v.Config[key]
	return val, ok
}

// DecodeCatalog parses a JSON array of experiments and validates each one.
// Duplicate experiment ids are rejected.
func DecodeCatalog(data []byte) ([]Experiment, error) {
	var experiments []Experiment
	if err := json.Unmarshal(data, &experiments); err != nil {
		return nil, fmt.Errorf("failed to decode experiment catalog: %w", err)
	}

	seen := make(map[string]struct{}, len(experiments))
	for i := range experiments {
		if err := experiments[i].Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[experiments[i].ID]; dup {
			return nil, fmt.Errorf("duplicate experiment id %q", experiments[i].ID)
		}
		seen[experiments[i].ID] = struct{}{}
	}
	return experiments, nil
}

// FindExperiment looks an experiment up by id.
func FindExperiment(experiments []Experiment, id string) (*Experiment, bool) {
	for i := range experiments {
		if experiments[i].ID == id {
			return &experiments[i], true
		}
	}
	return nil, false
}
