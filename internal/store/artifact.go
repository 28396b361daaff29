package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/domain"
)

// ArtifactStore persists artifact metadata. Artifacts are immutable once created.
type ArtifactStore interface {
	// Create saves a new artifact.
	Create(ctx context.Context, artifact *domain.Artifact) error

	// GetByID retrieves an artifact by its unique ID.
	// Returns ErrArtifactNotFound if the artifact does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Artifact, error)
}
