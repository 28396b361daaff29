package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// TaskKind is the kind of generation a task performs.
type TaskKind string

const (
	TaskKindTextToImage  TaskKind = "text-to-image"
	TaskKindImageToImage TaskKind = "image-to-image"
)

// Valid reports whether k is a known kind.
func (k TaskKind) Valid() bool {
	return k == TaskKindTextToImage || k == TaskKindImageToImage
}

// TaskState is the lifecycle state of a generation task.
// Processing is the only non-terminal state.
type TaskState string

const (
	TaskStateProcessing TaskState = "processing"
	TaskStateCompleted  TaskState = "completed"
	TaskStateFailed     TaskState = "failed"
	TaskStateCancelled  TaskState = "cancelled"
)

// Valid reports whether s is a known state.
func (s TaskState) Valid() bool {
	switch s {
	case TaskStateProcessing, TaskStateCompleted, TaskStateFailed, TaskStateCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition can leave s.
func (s TaskState) Terminal() bool {
	return s == TaskStateCompleted || s == TaskStateFailed || s == TaskStateCancelled
}

// AspectRatio is a requested output shape such as "3:4".
type AspectRatio string

const (
	AspectSquare    AspectRatio = "1:1"
	AspectPortrait  AspectRatio = "3:4"
	AspectLandscape AspectRatio = "4:3"
	AspectWide      AspectRatio = "16:9"
	AspectTall      AspectRatio = "9:16"
)

var aspectDimensions = map[AspectRatio][2]int{
	AspectSquare:    {1024, 1024},
	AspectPortrait:  {768, 1024},
	AspectLandscape: {1024, 768},
	AspectWide:      {1024, 576},
	AspectTall:      {576, 1024},
}

// Dimensions returns the output width and height rendered for the ratio.
func (a AspectRatio) Dimensions() (int, int, bool) {
	d, ok := aspectDimensions[a]
	return d[0], d[1], ok
}

// Task error codes recorded on failed tasks.
const (
	TaskErrorGeneration   = "generation_failed"
	TaskErrorStorage      = "storage_error"
	TaskErrorInvalidInput = "invalid_input"
	TaskErrorTimeout      = "timeout"
	TaskErrorInterrupted  = "interrupted"
	TaskErrorScheduling   = "scheduling_failed"
)

// TaskError describes why a task failed.
type TaskError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Task validation errors
var (
	ErrEmptyTaskID      = errors.New("task ID cannot be empty")
	ErrEmptyOwnerID     = errors.New("task owner ID cannot be empty")
	ErrInvalidTaskKind  = errors.New("invalid task kind")
	ErrInvalidTaskState = errors.New("invalid task state")
	ErrInvalidCost      = errors.New("task cost must be positive")
	ErrInvalidProgress  = errors.New("progress must be between 0 and 100")
	ErrMissingArtifact  = errors.New("completed task requires an artifact")
	ErrMissingTaskError = errors.New("failed task requires an error descriptor")
)

// GenerationInput is what the caller asked to generate.
type GenerationInput struct {
	Prompt         string      `json:"prompt,omitempty"`
	ReferenceImage string      `json:"reference_image,omitempty"`
	SourceName     string      `json:"source_name,omitempty"`
	AspectRatio    AspectRatio `json:"aspect_ratio"`
	IsPublic       bool        `json:"is_public"`
}

// InputLimits bounds accepted generation input.
type InputLimits struct {
	MaxPromptLength     int
	AllowedAspectRatios []AspectRatio
}

// Validate checks the input for the given kind and returns a *ValidationError
// listing every invalid field.
func (in GenerationInput) Validate(kind TaskKind, limits InputLimits) error {
	verr := &ValidationError{Err: ErrValidation}

	if !kind.Valid() {
		verr.Add("kind", "must be text-to-image or image-to-image")
	}

	prompt := strings.TrimSpace(in.Prompt)
	switch kind {
	case TaskKindTextToImage:
		if prompt == "" {
			verr.Add("prompt", "is required")
		}
	case TaskKindImageToImage:
		if strings.TrimSpace(in.ReferenceImage) == "" {
			verr.Add("image", "is required")
		}
	}
	if limits.MaxPromptLength > 0 && utf8.RuneCountInString(prompt) > limits.MaxPromptLength {
		verr.Add("prompt", fmt.Sprintf("must be at most %d characters", limits.MaxPromptLength))
	}

	if !ratioAllowed(in.AspectRatio, limits.AllowedAspectRatios) {
		verr.Add("aspect_ratio", "is not supported")
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}

func ratioAllowed(r AspectRatio, allowed []AspectRatio) bool {
	if _, _, ok := r.Dimensions(); !ok {
		return false
	}
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == r {
			return true
		}
	}
	return false
}

// GenerationTask tracks one generation request from submission to its
// terminal outcome. ArtifactID is set only when completed and Error only
// when failed.
type GenerationTask struct {
	ID          uuid.UUID       `json:"id"`
	OwnerID     uuid.UUID       `json:"owner_id"`
	Kind        TaskKind        `json:"kind"`
	Input       GenerationInput `json:"input"`
	State       TaskState       `json:"state"`
	Progress    int             `json:"progress"`
	Cost        int64           `json:"cost"`
	ArtifactID  *uuid.UUID      `json:"artifact_id,omitempty"`
	Error       *TaskError      `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	FailedAt    *time.Time      `json:"failed_at,omitempty"`
	CancelledAt *time.Time      `json:"cancelled_at,omitempty"`
}

// NewGenerationTask creates a task in the processing state with zero progress.
func NewGenerationTask(ownerID uuid.UUID, kind TaskKind, input GenerationInput, cost int64) (*GenerationTask, error) {
	now := time.Now().UTC()
	task := &GenerationTask{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Kind:      kind,
		Input:     input,
		State:     TaskStateProcessing,
		Progress:  0,
		Cost:      cost,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}
	return task, nil
}

// Validate checks field values and the state invariants.
func (t *GenerationTask) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}
	if t.OwnerID == uuid.Nil {
		return ErrEmptyOwnerID
	}
	if !t.Kind.Valid() {
		return ErrInvalidTaskKind
	}
	if !t.State.Valid() {
		return ErrInvalidTaskState
	}
	if t.Cost <= 0 {
		return ErrInvalidCost
	}
	if t.Progress < 0 || t.Progress > 100 {
		return ErrInvalidProgress
	}
	if (t.State == TaskStateCompleted) != (t.ArtifactID != nil) {
		return ErrMissingArtifact
	}
	if (t.State == TaskStateFailed) != (t.Error != nil) {
		return ErrMissingTaskError
	}
	return nil
}

// IsTerminal reports whether the task has reached a final state.
func (t *GenerationTask) IsTerminal() bool {
	return t.State.Terminal()
}

// MaxProcessingProgress is the highest progress a task reports before it
// completes; only completion sets 100.
const MaxProcessingProgress = 99

// ApplyProgress raises progress and reports whether it changed. Updates on a
// terminal task and updates that would lower progress are ignored.
func (t *GenerationTask) ApplyProgress(progress int, at time.Time) bool {
	if t.IsTerminal() {
		return false
	}
	if progress > MaxProcessingProgress {
		progress = MaxProcessingProgress
	}
	if progress <= t.Progress {
		return false
	}
	t.Progress = progress
	t.UpdatedAt = at
	return true
}

// Complete moves a processing task to completed.
func (t *GenerationTask) Complete(artifactID uuid.UUID, at time.Time) error {
	if t.IsTerminal() {
		return ErrAlreadyTerminal
	}
	if artifactID == uuid.Nil {
		return ErrMissingArtifact
	}
	t.State = TaskStateCompleted
	t.Progress = 100
	t.ArtifactID = &artifactID
	t.CompletedAt = &at
	t.UpdatedAt = at
	return nil
}

// Fail moves a processing task to failed.
func (t *GenerationTask) Fail(desc TaskError, at time.Time) error {
	if t.IsTerminal() {
		return ErrAlreadyTerminal
	}
	if desc.Code == "" {
		return ErrMissingTaskError
	}
	t.State = TaskStateFailed
	t.Error = &desc
	t.FailedAt = &at
	t.UpdatedAt = at
	return nil
}

// Cancel moves a processing task owned by ownerID to cancelled. Ownership is
// checked first so non-owners learn nothing about the task state.
func (t *GenerationTask) Cancel(ownerID uuid.UUID, at time.Time) error {
	if t.OwnerID != ownerID {
		return ErrNotOwner
	}
	if t.IsTerminal() {
		return ErrAlreadyTerminal
	}
	t.State = TaskStateCancelled
	t.CancelledAt = &at
	t.UpdatedAt = at
	return nil
}

// FinishedAt returns the time the task reached its terminal state, if any.
func (t *GenerationTask) FinishedAt() *time.Time {
	switch t.State {
	case TaskStateCompleted:
		return t.CompletedAt
	case TaskStateFailed:
		return t.FailedAt
	case TaskStateCancelled:
		return t.CancelledAt
	}
	return nil
}

// Refundable reports whether the task's terminal state entitles the owner to
// a refund of its cost.
func (t *GenerationTask) Refundable() bool {
	return t.State == TaskStateFailed || t.State == TaskStateCancelled
}
