package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/domain"
	"github.com/phrazzld/inkwell-api/internal/store"
)

// ArtifactStore implements store.ArtifactStore in memory.
type ArtifactStore struct {
	db *DB
	tx *journal
}

var _ store.ArtifactStore = (*ArtifactStore)(nil)

// NewArtifactStore returns an ArtifactStore backed by d.
func NewArtifactStore(d *DB) *ArtifactStore {
	return &ArtifactStore{db: d}
}

func cloneArtifact(a *domain.Artifact) *domain.Artifact {
	c := *a
	c.Tags = append([]string(nil), a.Tags...)
	c.Variants = append([]domain.ArtifactVariant(nil), a.Variants...)
	return &c
}

// Create implements store.ArtifactStore.Create.
func (s *ArtifactStore) Create(ctx context.Context, artifact *domain.Artifact) error {
	if err := artifact.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	return s.db.exec(s.tx, func(j *journal) error {
		if _, exists := s.db.artifacts[artifact.ID]; exists {
			return store.ErrDuplicate
		}
		s.db.artifacts[artifact.ID] = cloneArtifact(artifact)
		j.record(func() { delete(s.db.artifacts, artifact.ID) })
		return nil
	})
}

// GetByID implements store.ArtifactStore.GetByID.
func (s *ArtifactStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Artifact, error) {
	var out *domain.Artifact
	err := s.db.exec(s.tx, func(*journal) error {
		a, ok := s.db.artifacts[id]
		if !ok {
			return store.ErrArtifactNotFound
		}
		out = cloneArtifact(a)
		return nil
	})
	return out, err
}
