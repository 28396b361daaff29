package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// TaskRunnerConfig holds configuration for the task runner
type TaskRunnerConfig struct {
	// WorkerCount determines how many concurrent workers process tasks
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory task queue
	// If zero, defaults to 100
	QueueSize int

	// StuckTaskAge defines how long a task can be in processing state
	// before it's considered stuck and failed
	StuckTaskAge time.Duration

	// StuckTaskCheckInterval defines how often to check for stuck tasks
	// If zero, defaults to 5 minutes
	StuckTaskCheckInterval time.Duration
}

// DefaultTaskRunnerConfig returns a TaskRunnerConfig with reasonable defaults
func DefaultTaskRunnerConfig() TaskRunnerConfig {
	return TaskRunnerConfig{
		WorkerCount:            2,
		QueueSize:              100,
		StuckTaskAge:           30 * time.Minute,
		StuckTaskCheckInterval: 5 * time.Minute,
	}
}

// OrphanResolver fails generation tasks that no worker will ever finish.
// olderThan of zero selects every processing task.
type OrphanResolver interface {
	ResolveOrphans(ctx context.Context, olderThan time.Duration) (int, error)
}

// TaskRunner manages background task processing
type TaskRunner struct {
	queue    *TaskQueue
	pool     *WorkerPool
	resolver OrphanResolver
	config   TaskRunnerConfig
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTaskRunner creates a new TaskRunner. resolver may be nil, in which case
// no recovery or stuck-task sweep is performed.
func NewTaskRunner(resolver OrphanResolver, config TaskRunnerConfig, logger *slog.Logger) *TaskRunner {
	defaults := DefaultTaskRunnerConfig()
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.StuckTaskCheckInterval <= 0 {
		config.StuckTaskCheckInterval = defaults.StuckTaskCheckInterval
	}
	logger = logger.With("component", "task_runner")

	queue := NewTaskQueue(config.QueueSize, logger)
	pool := NewWorkerPool(queue, WorkerPoolConfig{WorkerCount: config.WorkerCount}, logger)

	ctx, cancel := context.WithCancel(context.Background())

	return &TaskRunner{
		queue:    queue,
		pool:     pool,
		resolver: resolver,
		config:   config,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetErrorHandler allows setting a custom error handler function
func (r *TaskRunner) SetErrorHandler(handler func(task Task, err error)) {
	r.pool.SetErrorHandler(handler)
}

// Submit adds a new task to the queue. It never blocks; a full queue
// returns ErrQueueFull.
func (r *TaskRunner) Submit(ctx context.Context, task Task) error {
	if err := r.queue.Enqueue(task); err != nil {
		return fmt.Errorf("failed to enqueue task %s: %w", task.ID(), err)
	}
	r.logger.Debug("task queued",
		"task_id", task.ID().String(),
		"task_type", task.Type(),
		"queue_depth", r.queue.Len())
	return nil
}

// Start resolves tasks left over from a previous run, then starts the
// workers and the stuck-task monitor.
func (r *TaskRunner) Start() error {
	if err := r.Recover(r.ctx); err != nil {
		return fmt.Errorf("failed to recover tasks: %w", err)
	}

	r.pool.Start()

	if r.resolver != nil && r.config.StuckTaskAge > 0 {
		r.wg.Add(1)
		go r.stuckTaskMonitor()
	}
	return nil
}

// Stop gracefully shuts down the task runner. Running tasks are cancelled
// and apply their own outcome; tasks still queued remain processing and
// are resolved by Recover on the next start.
func (r *TaskRunner) Stop() {
	r.cancel()
	r.wg.Wait()
	r.queue.Close()
	r.pool.Stop()
}

// Recover fails every task still processing. Jobs live only in memory, so
// at startup no worker can be running them.
func (r *TaskRunner) Recover(ctx context.Context) error {
	if r.resolver == nil {
		return nil
	}
	n, err := r.resolver.ResolveOrphans(ctx, 0)
	if err != nil {
		return err
	}
	r.logger.Info("recovered unfinished tasks", "failed_count", n)
	return nil
}

// stuckTaskMonitor periodically fails tasks that have been processing for
// longer than StuckTaskAge.
func (r *TaskRunner) stuckTaskMonitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.StuckTaskCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return

		case <-ticker.C:
			n, err := r.resolver.ResolveOrphans(r.ctx, r.config.StuckTaskAge)
			if err != nil {
				r.logger.Error("failed to check for stuck tasks", "error", err)
				continue
			}
			if n > 0 {
				r.logger.Warn("failed stuck tasks", "count", n, "max_age", r.config.StuckTaskAge)
			}
		}
	}
}
