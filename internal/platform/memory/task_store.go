package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/domain"
	"github.com/phrazzld/inkwell-api/internal/store"
)

// GenerationTaskStore implements store.GenerationTaskStore in memory.
type GenerationTaskStore struct {
	db  *DB
	tx  *journal
	now func() time.Time
}

var _ store.GenerationTaskStore = (*GenerationTaskStore)(nil)

// NewGenerationTaskStore returns a GenerationTaskStore backed by d.
func NewGenerationTaskStore(d *DB) *GenerationTaskStore {
	return &GenerationTaskStore{db: d}
}

func (s *GenerationTaskStore) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now().UTC()
}

func cloneTask(t *domain.GenerationTask) *domain.GenerationTask {
	c := *t
	if t.ArtifactID != nil {
		id := *t.ArtifactID
		c.ArtifactID = &id
	}
	if t.Error != nil {
		e := *t.Error
		c.Error = &e
	}
	for _, p := range []**time.Time{&c.CompletedAt, &c.FailedAt, &c.CancelledAt} {
		if *p != nil {
			v := **p
			*p = &v
		}
	}
	return &c
}

// Create implements store.GenerationTaskStore.Create.
func (s *GenerationTaskStore) Create(ctx context.Context, task *domain.GenerationTask) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	return s.db.exec(s.tx, func(j *journal) error {
		if _, ok := s.db.accounts[task.OwnerID]; !ok {
			return fmt.Errorf("%w: owner does not exist", store.ErrInvalidEntity)
		}
		if _, exists := s.db.tasks[task.ID]; exists {
			return store.ErrDuplicate
		}
		s.db.tasks[task.ID] = cloneTask(task)
		j.record(func() { delete(s.db.tasks, task.ID) })
		return nil
	})
}

// GetByID implements store.GenerationTaskStore.GetByID.
func (s *GenerationTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.GenerationTask, error) {
	var out *domain.GenerationTask
	err := s.db.exec(s.tx, func(*journal) error {
		t, ok := s.db.tasks[id]
		if !ok {
			return store.ErrTaskNotFound
		}
		out = cloneTask(t)
		return nil
	})
	return out, err
}

// ListByOwner implements store.GenerationTaskStore.ListByOwner.
func (s *GenerationTaskStore) ListByOwner(
	ctx context.Context,
	ownerID uuid.UUID,
	filter store.TaskFilter,
	page store.Page,
) ([]*domain.GenerationTask, int, error) {
	var matched []*domain.GenerationTask
	_ = s.db.exec(s.tx, func(*journal) error {
		for _, t := range s.db.tasks {
			if t.OwnerID != ownerID {
				continue
			}
			if filter.State != "" && t.State != filter.State {
				continue
			}
			if filter.Kind != "" && t.Kind != filter.Kind {
				continue
			}
			matched = append(matched, cloneTask(t))
		}
		return nil
	})

	sort.Slice(matched, func(i, k int) bool {
		if !matched[i].CreatedAt.Equal(matched[k].CreatedAt) {
			return matched[i].CreatedAt.After(matched[k].CreatedAt)
		}
		return matched[i].ID.String() > matched[k].ID.String()
	})

	total := len(matched)
	start := page.Offset()
	if start < 0 || start >= total {
		return []*domain.GenerationTask{}, total, nil
	}
	end := total
	if page.Limit > 0 && start+page.Limit < total {
		end = start + page.Limit
	}
	return matched[start:end], total, nil
}

// ListProcessing implements store.GenerationTaskStore.ListProcessing.
func (s *GenerationTaskStore) ListProcessing(ctx context.Context, olderThan time.Duration) ([]*domain.GenerationTask, error) {
	cutoff := s.clock().Add(-olderThan)
	var out []*domain.GenerationTask
	_ = s.db.exec(s.tx, func(*journal) error {
		for _, t := range s.db.tasks {
			if t.State != domain.TaskStateProcessing {
				continue
			}
			if olderThan > 0 && !t.CreatedAt.Before(cutoff) {
				continue
			}
			out = append(out, cloneTask(t))
		}
		return nil
	})
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

// ListCreatedSince implements store.GenerationTaskStore.ListCreatedSince.
func (s *GenerationTaskStore) ListCreatedSince(ctx context.Context, since time.Time) ([]*domain.GenerationTask, error) {
	var out []*domain.GenerationTask
	_ = s.db.exec(s.tx, func(*journal) error {
		for _, t := range s.db.tasks {
			if t.CreatedAt.Before(since) {
				continue
			}
			out = append(out, cloneTask(t))
		}
		return nil
	})
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

// UpdateProgress implements store.GenerationTaskStore.UpdateProgress.
func (s *GenerationTaskStore) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	return s.db.exec(s.tx, func(j *journal) error {
		t, ok := s.db.tasks[id]
		if !ok {
			return store.ErrTaskNotFound
		}
		before := cloneTask(t)
		if t.ApplyProgress(progress, s.clock()) {
			j.record(func() { s.db.tasks[id] = before })
		}
		return nil
	})
}

// transition applies fn to the stored task and returns a copy of the result.
func (s *GenerationTaskStore) transition(id uuid.UUID, fn func(t *domain.GenerationTask) error) (*domain.GenerationTask, error) {
	var out *domain.GenerationTask
	err := s.db.exec(s.tx, func(j *journal) error {
		t, ok := s.db.tasks[id]
		if !ok {
			return store.ErrTaskNotFound
		}
		before := cloneTask(t)
		if err := fn(t); err != nil {
			return err
		}
		j.record(func() { s.db.tasks[id] = before })
		out = cloneTask(t)
		return nil
	})
	return out, err
}

// Complete implements store.GenerationTaskStore.Complete.
func (s *GenerationTaskStore) Complete(ctx context.Context, id uuid.UUID, artifactID uuid.UUID) (*domain.GenerationTask, error) {
	return s.transition(id, func(t *domain.GenerationTask) error {
		return t.Complete(artifactID, s.clock())
	})
}

// Fail implements store.GenerationTaskStore.Fail.
func (s *GenerationTaskStore) Fail(ctx context.Context, id uuid.UUID, desc domain.TaskError) (*domain.GenerationTask, error) {
	return s.transition(id, func(t *domain.GenerationTask) error {
		return t.Fail(desc, s.clock())
	})
}

// Cancel implements store.GenerationTaskStore.Cancel.
func (s *GenerationTaskStore) Cancel(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) (*domain.GenerationTask, error) {
	return s.transition(id, func(t *domain.GenerationTask) error {
		return t.Cancel(ownerID, s.clock())
	})
}
