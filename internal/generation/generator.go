package generation

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/domain"
)

// ProgressFunc receives progress in percent. Values only matter while the
// task is processing; callers may ignore regressions and late reports.
type ProgressFunc func(progress int)

// Request carries everything a Producer needs to render one task.
type Request struct {
	TaskID  uuid.UUID
	OwnerID uuid.UUID
	Kind    domain.TaskKind
	Input   domain.GenerationInput
}

// Producer renders the artifact for a generation request.
type Producer interface {
	// Produce writes every artifact variant to storage and only then returns
	// the artifact describing them. On error nothing it wrote remains.
	// Produce stops early with ctx.Err() once ctx is done.
	Produce(ctx context.Context, req Request, progress ProgressFunc) (*domain.Artifact, error)
}
