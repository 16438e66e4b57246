package bulk

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ImportRunFilter defines the filters for querying import runs
type ImportRunFilter struct {
	Kind        *EntityKind
	Status      *RunStatus
	StartedFrom *time.Time
	StartedTo   *time.Time
}

// ImportRunListResult represents a paginated list of import runs
type ImportRunListResult struct {
	Items      []*ImportRun
	TotalCount int64
	Page       int
	PageSize   int
}

// ImportRunRepository defines the interface for import run persistence
type ImportRunRepository interface {
	// FindByID finds an import run by ID
	FindByID(ctx context.Context, id uuid.UUID) (*ImportRun, error)

	// FindAll returns import runs, newest first, with pagination and filtering
	FindAll(ctx context.Context, filter ImportRunFilter, page, pageSize int) (*ImportRunListResult, error)

	// FindRunning finds runs that never reached a terminal state (for recovery after restart)
	FindRunning(ctx context.Context) ([]*ImportRun, error)

	// Save saves an import run (create or update)
	Save(ctx context.Context, run *ImportRun) error
}
