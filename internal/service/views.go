package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/domain"
)

// TaskView is what callers see when they poll a generation task. Result is
// present only when the task completed and Error only when it failed.
type TaskView struct {
	ID          uuid.UUID         `json:"task_id"`
	Kind        domain.TaskKind   `json:"kind"`
	Status      domain.TaskState  `json:"status"`
	Progress    int               `json:"progress"`
	Cost        int64             `json:"cost"`
	Prompt      string            `json:"prompt,omitempty"`
	AspectRatio string            `json:"aspect_ratio"`
	IsPublic    bool              `json:"is_public"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	FinishedAt  *time.Time        `json:"finished_at,omitempty"`
	Error       *domain.TaskError `json:"error,omitempty"`
	Result      *ArtifactView     `json:"result,omitempty"`
}

// ArtifactView describes a completed task's artifact with fetchable URLs.
type ArtifactView struct {
	ID        uuid.UUID     `json:"id"`
	Title     string        `json:"title"`
	Tags      []string      `json:"tags"`
	Variants  []VariantView `json:"variants"`
	CreatedAt time.Time     `json:"created_at"`
}

// VariantView is one rendering of an artifact.
type VariantView struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// cachedView is the form in which terminal views are cached. The owner and
// visibility travel with the view so cached reads are still authorized.
type cachedView struct {
	OwnerID  uuid.UUID `json:"owner_id"`
	IsPublic bool      `json:"is_public"`
	View     *TaskView `json:"view"`
}

// view builds the TaskView for t, loading the artifact for completed tasks.
func (s *GenerationService) view(ctx context.Context, t *domain.GenerationTask) (*TaskView, error) {
	v := &TaskView{
		ID:          t.ID,
		Kind:        t.Kind,
		Status:      t.State,
		Progress:    t.Progress,
		Cost:        t.Cost,
		Prompt:      t.Input.Prompt,
		AspectRatio: string(t.Input.AspectRatio),
		IsPublic:    t.Input.IsPublic,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		FinishedAt:  t.FinishedAt(),
		Error:       t.Error,
	}

	if t.State != domain.TaskStateCompleted || t.ArtifactID == nil {
		return v, nil
	}

	artifact, err := s.stores.Artifacts.GetByID(ctx, *t.ArtifactID)
	if err != nil {
		return nil, err
	}
	result := &ArtifactView{
		ID:        artifact.ID,
		Title:     artifact.Title,
		Tags:      artifact.Tags,
		CreatedAt: artifact.CreatedAt,
		Variants:  make([]VariantView, 0, len(artifact.Variants)),
	}
	for _, variant := range artifact.Variants {
		url, err := s.files.URL(ctx, variant.Key)
		if err != nil {
			return nil, err
		}
		result.Variants = append(result.Variants, VariantView{
			Name:   variant.Name,
			URL:    url,
			Width:  variant.Width,
			Height: variant.Height,
		})
	}
	v.Result = result
	return v, nil
}
