package task

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
)

// MockTask is a simple implementation of the Task interface for testing
type MockTask struct {
	TaskID    uuid.UUID
	TaskType  string
	ExecuteFn func(ctx context.Context) error

	executed atomic.Int32
}

// NewMockTask creates a new MockTask with the given ID and type
func NewMockTask(id uuid.UUID, taskType string) *MockTask {
	return &MockTask{
		TaskID:    id,
		TaskType:  taskType,
		ExecuteFn: func(ctx context.Context) error { return nil },
	}
}

// ID returns the task's unique identifier
func (t *MockTask) ID() uuid.UUID {
	return t.TaskID
}

// Type returns the task type identifier
func (t *MockTask) Type() string {
	return t.TaskType
}

// Execute runs the task logic
func (t *MockTask) Execute(ctx context.Context) error {
	t.executed.Add(1)
	return t.ExecuteFn(ctx)
}

// Executions returns how many times Execute was called
func (t *MockTask) Executions() int {
	return int(t.executed.Load())
}
