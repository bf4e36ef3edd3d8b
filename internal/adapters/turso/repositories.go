package turso

import (
	"database/sql"

	"github.com/emiliopalmerini/mvariant/internal/ports"
)

// Repositories holds all turso repository implementations as port interfaces.
type Repositories struct {
	Experiments ports.ExperimentRepository
	Assignments ports.AssignmentRepository
	Config      ports.ConfigSource
}

// NewRepositories creates all turso repository implementations from a database connection.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Experiments: NewExperimentRepository(db),
		Assignments: NewAssignmentRepository(db),
		Config:      NewConfigSource(db),
	}
}
