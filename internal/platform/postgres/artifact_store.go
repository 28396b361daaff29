package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/domain"
	"github.com/phrazzld/inkwell-api/internal/store"
)

// PostgresArtifactStore implements the store.ArtifactStore interface.
type PostgresArtifactStore struct {
	db store.DBTX
}

// NewPostgresArtifactStore creates a PostgresArtifactStore.
func NewPostgresArtifactStore(db store.DBTX) *PostgresArtifactStore {
	if db == nil {
		panic("db cannot be nil")
	}
	return &PostgresArtifactStore{db: db}
}

// Ensure PostgresArtifactStore implements store.ArtifactStore interface
var _ store.ArtifactStore = (*PostgresArtifactStore)(nil)

// WithTx returns a store that runs its queries on tx.
func (s *PostgresArtifactStore) WithTx(tx *sql.Tx) *PostgresArtifactStore {
	return &PostgresArtifactStore{db: tx}
}

// Create implements store.ArtifactStore.Create
func (s *PostgresArtifactStore) Create(ctx context.Context, artifact *domain.Artifact) error {
	if err := artifact.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	tags := artifact.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}
	variantsJSON, err := json.Marshal(artifact.Variants)
	if err != nil {
		return fmt.Errorf("failed to encode variants: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO artifacts (id, task_id, owner_id, title, tags, source_prompt, source_image, variants, is_public, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		artifact.ID, artifact.TaskID, artifact.OwnerID, artifact.Title, tagsJSON,
		artifact.SourcePrompt, artifact.SourceImage, variantsJSON, artifact.IsPublic, artifact.CreatedAt,
	)
	if err != nil {
		return storeError("artifact", "create", err)
	}
	return nil
}

// GetByID implements store.ArtifactStore.GetByID
func (s *PostgresArtifactStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Artifact, error) {
	var (
		a                     domain.Artifact
		tagsJSON, variantJSON []byte
		prompt, image         sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, task_id, owner_id, title, tags, source_prompt, source_image, variants, is_public, created_at
		FROM artifacts WHERE id = $1`, id,
	).Scan(&a.ID, &a.TaskID, &a.OwnerID, &a.Title, &tagsJSON, &prompt, &image, &variantJSON, &a.IsPublic, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrArtifactNotFound
	}
	if err != nil {
		return nil, storeError("artifact", "get", err)
	}

	if err := json.Unmarshal(tagsJSON, &a.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}
	if err := json.Unmarshal(variantJSON, &a.Variants); err != nil {
		return nil, fmt.Errorf("failed to decode variants: %w", err)
	}
	a.SourcePrompt = prompt.String
	a.SourceImage = image.String
	return &a, nil
}
