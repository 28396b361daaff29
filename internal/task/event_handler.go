package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/events"
)

// JobFactory builds the job that processes a generation task
type JobFactory interface {
	CreateJob(taskID uuid.UUID) (Task, error)
}

// Submitter accepts tasks for background execution
type Submitter interface {
	Submit(ctx context.Context, task Task) error
}

// TaskFactoryEventHandler implements the events.EventHandler interface
// to handle task creation events and delegate them to the task factory.
type TaskFactoryEventHandler struct {
	taskFactory JobFactory
	taskRunner  Submitter
	logger      *slog.Logger
}

// Ensure TaskFactoryEventHandler implements events.EventHandler
var _ events.EventHandler = (*TaskFactoryEventHandler)(nil)

// NewTaskFactoryEventHandler creates a new event handler that uses the given task factory
// to create tasks, and submits them to the provided task runner.
func NewTaskFactoryEventHandler(taskFactory JobFactory, taskRunner Submitter, logger *slog.Logger) *TaskFactoryEventHandler {
	return &TaskFactoryEventHandler{
		taskFactory: taskFactory,
		taskRunner:  taskRunner,
		logger:      logger.With("component", "task_factory_event_handler"),
	}
}

// HandleEvent creates a job for a GenerationRequested event and submits it
// to the runner. An error means the task was not scheduled.
func (h *TaskFactoryEventHandler) HandleEvent(ctx context.Context, event *events.TaskRequestEvent) error {
	if event.Type != events.GenerationRequested {
		h.logger.Debug("ignoring event with unsupported type",
			"event_type", event.Type,
			"event_id", event.ID)
		return nil
	}

	var payload events.GenerationRequest
	if err := event.UnmarshalPayload(&payload); err != nil {
		h.logger.Error("failed to unmarshal payload", "error", err, "event_id", event.ID)
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if payload.TaskID == uuid.Nil {
		return fmt.Errorf("event %s: %w", event.ID, ErrEmptyTaskID)
	}

	job, err := h.taskFactory.CreateJob(payload.TaskID)
	if err != nil {
		h.logger.Error("failed to create task",
			"error", err,
			"task_id", payload.TaskID,
			"event_id", event.ID)
		return fmt.Errorf("failed to create task: %w", err)
	}

	if err := h.taskRunner.Submit(ctx, job); err != nil {
		h.logger.Error("failed to submit task",
			"error", err,
			"task_id", payload.TaskID,
			"event_id", event.ID)
		return fmt.Errorf("failed to submit task: %w", err)
	}

	h.logger.Debug("task created and submitted",
		"task_id", payload.TaskID,
		"task_kind", payload.Kind,
		"event_id", event.ID)
	return nil
}
