package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/domain"
	"github.com/phrazzld/inkwell-api/internal/generation"
)

// MockProducer implements generation.Producer for testing
type MockProducer struct {
	// ProduceFn allows test cases to mock the Produce behavior
	ProduceFn func(ctx context.Context, req generation.Request, progress generation.ProgressFunc) (*domain.Artifact, error)

	// Err is returned when ProduceFn is nil. A nil Err yields NewTestArtifact.
	Err error

	mu       sync.Mutex
	requests []generation.Request
}

var _ generation.Producer = (*MockProducer)(nil)

// Produce implements the generation.Producer interface
func (m *MockProducer) Produce(
	ctx context.Context,
	req generation.Request,
	progress generation.ProgressFunc,
) (*domain.Artifact, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.ProduceFn != nil {
		return m.ProduceFn(ctx, req, progress)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if progress != nil {
		progress(50)
	}
	return NewTestArtifact(req), nil
}

// Requests returns the requests Produce was called with.
func (m *MockProducer) Requests() []generation.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]generation.Request(nil), m.requests...)
}

// NewTestArtifact returns a valid artifact for req without touching storage.
func NewTestArtifact(req generation.Request) *domain.Artifact {
	id := uuid.New()
	prefix := "artifacts/" + req.OwnerID.String() + "/" + id.String() + "/"
	return &domain.Artifact{
		ID:           id,
		TaskID:       req.TaskID,
		OwnerID:      req.OwnerID,
		Title:        domain.TitleFromPrompt(req.Input.Prompt),
		Tags:         domain.TagsFromPrompt(req.Input.Prompt),
		SourcePrompt: req.Input.Prompt,
		SourceImage:  req.Input.ReferenceImage,
		IsPublic:     req.Input.IsPublic,
		Variants: []domain.ArtifactVariant{
			{Name: domain.VariantOutline, Key: prefix + "outline.png", ContentType: "image/png", Width: 1024, Height: 1024},
			{Name: domain.VariantColored, Key: prefix + "colored.png", ContentType: "image/png", Width: 1024, Height: 1024},
		},
		CreatedAt: time.Now().UTC(),
	}
}
