package driven

import (
	"context"
	"errors"
	"fmt"

	"github.com/ericfisherdev/sonarpanel/internal/domain/model"
)

// Sentinel errors returned by ProjectStore implementations.
var (
	// ErrProjectNotFound indicates no project exists for the given path or key.
	ErrProjectNotFound = errors.New("project not found")

	// ErrProjectAlreadyExists indicates a project with the same path or key exists.
	ErrProjectAlreadyExists = fmt.Errorf("project already exists: %w", ErrLocalStoreConflict)
)

// ProjectStore defines the driven port for project record persistence.
type ProjectStore interface {
	// Insert stores a new record and returns it with ID and timestamps set.
	// Returns ErrProjectAlreadyExists if the path or key is taken.
	Insert(ctx context.Context, project model.Project) (*model.Project, error)

	// FindByPath returns nil, nil if no record exists for path.
	FindByPath(ctx context.Context, path string) (*model.Project, error)

	// FindByKey returns nil, nil if no record exists for key.
	FindByKey(ctx context.Context, key string) (*model.Project, error)

	// ListAll returns all records ordered by path.
	ListAll(ctx context.Context) ([]model.Project, error)

	// UpdateField sets a single mutable field. Returns ErrProjectNotFound if
	// id does not exist.
	UpdateField(ctx context.Context, id int64, field model.ProjectField, value string) error

	// DeleteByPath removes the record and returns it, or nil, nil if no
	// record exists for path.
	DeleteByPath(ctx context.Context, path string) (*model.Project, error)
}
