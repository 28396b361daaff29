package store

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/domain"
)

// TaskFilter narrows ListByOwner results. Zero values match everything.
type TaskFilter struct {
	State domain.TaskState
	Kind  domain.TaskKind
}

// Page selects a window of results. Page numbers start at 1.
type Page struct {
	Number int
	Limit  int
}

// Offset returns the number of rows to skip. It saturates at math.MaxInt
// instead of overflowing.
func (p Page) Offset() int {
	if p.Number <= 1 || p.Limit <= 0 {
		return 0
	}
	if p.Number-1 > math.MaxInt/p.Limit {
		return math.MaxInt
	}
	return (p.Number - 1) * p.Limit
}

// GenerationTaskStore persists generation tasks. Terminal transitions are
// compare-and-set on the processing state: exactly one of Complete, Fail or
// Cancel succeeds per task, and every later call reports
// domain.ErrAlreadyTerminal without changing the record.
type GenerationTaskStore interface {
	// Create saves a new task in the processing state.
	Create(ctx context.Context, task *domain.GenerationTask) error

	// GetByID retrieves a task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.GenerationTask, error)

	// ListByOwner returns the owner's tasks newest first, together with the
	// total number of tasks matching the filter.
	ListByOwner(ctx context.Context, ownerID uuid.UUID, filter TaskFilter, page Page) ([]*domain.GenerationTask, int, error)

	// ListProcessing returns tasks still processing that were created more
	// than olderThan ago. A zero duration returns all processing tasks.
	ListProcessing(ctx context.Context, olderThan time.Duration) ([]*domain.GenerationTask, error)

	// ListCreatedSince returns every task created at or after since, oldest
	// first. A zero since returns all tasks.
	ListCreatedSince(ctx context.Context, since time.Time) ([]*domain.GenerationTask, error)

	// UpdateProgress raises the progress of a processing task. Lower values
	// and updates on terminal tasks are ignored without error.
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error

	// Complete marks the task completed with progress 100 and the artifact.
	Complete(ctx context.Context, id uuid.UUID, artifactID uuid.UUID) (*domain.GenerationTask, error)

	// Fail marks the task failed with the given descriptor.
	Fail(ctx context.Context, id uuid.UUID, desc domain.TaskError) (*domain.GenerationTask, error)

	// Cancel marks the task cancelled if ownerID owns it.
	// Returns domain.ErrNotOwner for any other account.
	Cancel(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) (*domain.GenerationTask, error)
}
