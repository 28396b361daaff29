package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/domain"
	"github.com/phrazzld/inkwell-api/internal/generation"
	"github.com/phrazzld/inkwell-api/internal/platform/logger"
)

// Common errors
var (
	ErrNilProducer = errors.New("producer cannot be nil")
	ErrNilOutcomes = errors.New("outcome recorder cannot be nil")
	ErrNilLogger   = errors.New("logger cannot be nil")
	ErrEmptyTaskID = errors.New("task ID cannot be empty")
)

// outcomeTimeout bounds writing a job's result once the job context is gone.
const outcomeTimeout = 10 * time.Second

// Outcomes applies what a job observed to the generation task. CompleteTask
// and FailTask return domain.ErrAlreadyTerminal when the task already
// finished, e.g. because its owner cancelled it.
type Outcomes interface {
	GetTask(ctx context.Context, taskID uuid.UUID) (*domain.GenerationTask, error)
	RecordProgress(ctx context.Context, taskID uuid.UUID, progress int) error
	CompleteTask(ctx context.Context, taskID uuid.UUID, artifact *domain.Artifact) error
	FailTask(ctx context.Context, taskID uuid.UUID, desc domain.TaskError) error
}

// GenerationJob runs the producer for one generation task and records the
// outcome.
type GenerationJob struct {
	taskID   uuid.UUID
	producer generation.Producer
	outcomes Outcomes
	timeout  time.Duration
	logger   *slog.Logger
}

var _ Task = (*GenerationJob)(nil)

// NewGenerationJob creates a job for taskID. A positive timeout bounds the
// producer run.
func NewGenerationJob(
	taskID uuid.UUID,
	producer generation.Producer,
	outcomes Outcomes,
	timeout time.Duration,
	logger *slog.Logger,
) (*GenerationJob, error) {
	if producer == nil {
		return nil, ErrNilProducer
	}
	if outcomes == nil {
		return nil, ErrNilOutcomes
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	if taskID == uuid.Nil {
		return nil, ErrEmptyTaskID
	}

	return &GenerationJob{
		taskID:   taskID,
		producer: producer,
		outcomes: outcomes,
		timeout:  timeout,
		logger:   logger,
	}, nil
}

// ID returns the generation task the job works on
func (j *GenerationJob) ID() uuid.UUID {
	return j.taskID
}

// Type returns the task type identifier
func (j *GenerationJob) Type() string {
	return TaskTypeGeneration
}

// Execute runs the producer and completes or fails the task. A task that is
// already terminal, e.g. cancelled while queued, is skipped.
func (j *GenerationJob) Execute(ctx context.Context) error {
	log := logger.FromContextOrDefault(ctx, j.logger).With("task_id", j.taskID)

	task, err := j.outcomes.GetTask(ctx, j.taskID)
	if err != nil {
		return fmt.Errorf("failed to load generation task: %w", err)
	}
	if task.IsTerminal() {
		log.Info("skipping finished task", "state", task.State)
		return nil
	}
	log = log.With("task_kind", task.Kind, "owner_id", task.OwnerID)

	runCtx := ctx
	if j.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	req := generation.Request{
		TaskID:  task.ID,
		OwnerID: task.OwnerID,
		Kind:    task.Kind,
		Input:   task.Input,
	}
	progress := func(p int) {
		if err := j.outcomes.RecordProgress(runCtx, j.taskID, p); err != nil {
			log.Warn("failed to record progress", "progress", p, "error", err)
		}
	}

	artifact, produceErr := j.producer.Produce(logger.WithLogger(runCtx, log), req, progress)

	// The outcome is written even when ctx was cancelled by shutdown.
	outCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), outcomeTimeout)
	defer cancel()

	if produceErr != nil {
		desc := generation.Describe(produceErr)
		if ctx.Err() != nil {
			desc = domain.TaskError{Code: domain.TaskErrorInterrupted, Message: "generation was interrupted"}
		}
		if err := j.outcomes.FailTask(outCtx, j.taskID, desc); err != nil {
			if errors.Is(err, domain.ErrAlreadyTerminal) {
				log.Info("task finished before producer failure was recorded", "error", produceErr)
				return nil
			}
			return fmt.Errorf("failed to record failure (%v): %w", produceErr, err)
		}
		return fmt.Errorf("generation failed with %s: %w", desc.Code, produceErr)
	}

	if err := j.outcomes.CompleteTask(outCtx, j.taskID, artifact); err != nil {
		if errors.Is(err, domain.ErrAlreadyTerminal) {
			log.Info("task finished before completion, artifact discarded",
				"artifact_id", artifact.ID)
			return nil
		}
		return fmt.Errorf("failed to record completion: %w", err)
	}

	log.Info("generation task completed", "artifact_id", artifact.ID)
	return nil
}

// GenerationJobFactory builds jobs that share one producer and outcome recorder.
type GenerationJobFactory struct {
	producer generation.Producer
	outcomes Outcomes
	timeout  time.Duration
	logger   *slog.Logger
}

// NewGenerationJobFactory creates a factory. timeout bounds each producer run;
// zero disables the bound.
func NewGenerationJobFactory(
	producer generation.Producer,
	outcomes Outcomes,
	timeout time.Duration,
	logger *slog.Logger,
) *GenerationJobFactory {
	return &GenerationJobFactory{
		producer: producer,
		outcomes: outcomes,
		timeout:  timeout,
		logger:   logger,
	}
}

// CreateJob returns a job for the given generation task
func (f *GenerationJobFactory) CreateJob(taskID uuid.UUID) (Task, error) {
	return NewGenerationJob(taskID, f.producer, f.outcomes, f.timeout, f.logger)
}
