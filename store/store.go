// Package store persists projects, their agent rosters (with memories)
// and their threads. The engine writes through it after every mutation;
// it never reads mid-round.
package store

import (
	"context"
	"errors"

	"github.com/florean/agora/core"
)

// ErrNotFound is returned when a project does not exist.
var ErrNotFound = errors.New("project not found")

// Store is the persistence port. Implementations must make SaveProject
// atomic: a crash mid-write never leaves a half-written state behind.
type Store interface {
	// SaveProject inserts or replaces a project wholesale.
	SaveProject(ctx context.Context, p core.Project) error

	// LoadProject returns one project by ID, or ErrNotFound.
	LoadProject(ctx context.Context, id string) (core.Project, error)

	// LoadProjects returns every persisted project.
	LoadProjects(ctx context.Context) ([]core.Project, error)

	// DeleteProject removes a project. Deleting a missing project
	// returns ErrNotFound.
	DeleteProject(ctx context.Context, id string) error
}
