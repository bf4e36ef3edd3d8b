package domain

import "time"

// AssignmentKey identifies the single assignment allowed per user and
// experiment.
type AssignmentKey struct {
	UserID       string
	ExperimentID string
}

// DocumentID is the key used by document stores, "<userId>_<experimentId>".
func (k AssignmentKey) DocumentID() string {
	return k.UserID + "_" + k.ExperimentID
}

// Assignment is the durable record binding a user to a variant.
type Assignment struct {
	UserID       string
	ExperimentID string
	VariantID    string
	AssignedAt   time.Time
}

func (a *Assignment) Key() AssignmentKey {
	return AssignmentKey{UserID: a.UserID, ExperimentID: a.ExperimentID}
}

// Belongs reports whether a is the assignment of key. Document ids alone can
// collide ("a"+"b_c" and "a_b"+"c"), the pair cannot.
func (a *Assignment) Belongs(key AssignmentKey) bool {
	return a.UserID == key.UserID && a.ExperimentID == key.ExperimentID
}

// AssignmentEvent is emitted to analytics when a new assignment is written.
type AssignmentEvent struct {
	ExperimentID string
	VariantID    string
	UserID       string
	AssignedAt   time.Time
}

const (
	EventExperimentAssigned   = "experiment_assigned"
	EventExperimentVariantSet = "experiment_variant_set"
)
