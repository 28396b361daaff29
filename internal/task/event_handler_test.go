package task

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFactory struct {
	err     error
	created []uuid.UUID
}

func (f *stubFactory) CreateJob(taskID uuid.UUID) (Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, taskID)
	return NewMockTask(taskID, TaskTypeGeneration), nil
}

type stubSubmitter struct {
	err       error
	submitted []Task
}

func (s *stubSubmitter) Submit(ctx context.Context, task Task) error {
	if s.err != nil {
		return s.err
	}
	s.submitted = append(s.submitted, task)
	return nil
}

func generationEvent(t *testing.T, taskID uuid.UUID) *events.TaskRequestEvent {
	t.Helper()
	event, err := events.NewGenerationRequestedEvent(events.GenerationRequest{
		TaskID:  taskID,
		OwnerID: uuid.New(),
		Kind:    "text-to-image",
	})
	require.NoError(t, err)
	return event
}

func TestTaskFactoryEventHandler_HandleEvent(t *testing.T) {
	t.Parallel()

	t.Run("submits a job for the task", func(t *testing.T) {
		t.Parallel()
		factory := &stubFactory{}
		runner := &stubSubmitter{}
		handler := NewTaskFactoryEventHandler(factory, runner, setupTestLogger())

		taskID := uuid.New()
		require.NoError(t, handler.HandleEvent(context.Background(), generationEvent(t, taskID)))

		assert.Equal(t, []uuid.UUID{taskID}, factory.created)
		require.Len(t, runner.submitted, 1)
		assert.Equal(t, taskID, runner.submitted[0].ID())
	})

	t.Run("ignores other event types", func(t *testing.T) {
		t.Parallel()
		factory := &stubFactory{}
		handler := NewTaskFactoryEventHandler(factory, &stubSubmitter{}, setupTestLogger())

		event, err := events.NewTaskRequestEvent("other", map[string]string{})
		require.NoError(t, err)
		assert.NoError(t, handler.HandleEvent(context.Background(), event))
		assert.Empty(t, factory.created)
	})

	t.Run("rejects malformed payload", func(t *testing.T) {
		t.Parallel()
		handler := NewTaskFactoryEventHandler(&stubFactory{}, &stubSubmitter{}, setupTestLogger())

		event, err := events.NewTaskRequestEvent(events.GenerationRequested, "not an object")
		require.NoError(t, err)
		assert.ErrorContains(t, handler.HandleEvent(context.Background(), event), "failed to unmarshal payload")
	})

	t.Run("rejects missing task ID", func(t *testing.T) {
		t.Parallel()
		handler := NewTaskFactoryEventHandler(&stubFactory{}, &stubSubmitter{}, setupTestLogger())
		assert.ErrorIs(t, handler.HandleEvent(context.Background(), generationEvent(t, uuid.Nil)), ErrEmptyTaskID)
	})

	t.Run("factory error", func(t *testing.T) {
		t.Parallel()
		handler := NewTaskFactoryEventHandler(&stubFactory{err: errors.New("bad")}, &stubSubmitter{}, setupTestLogger())
		assert.ErrorContains(t, handler.HandleEvent(context.Background(), generationEvent(t, uuid.New())), "failed to create task")
	})

	t.Run("queue full is reported", func(t *testing.T) {
		t.Parallel()
		runner := &stubSubmitter{err: ErrQueueFull}
		handler := NewTaskFactoryEventHandler(&stubFactory{}, runner, setupTestLogger())
		assert.ErrorIs(t, handler.HandleEvent(context.Background(), generationEvent(t, uuid.New())), ErrQueueFull)
	})
}
