package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLimits = InputLimits{
	MaxPromptLength:     20,
	AllowedAspectRatios: []AspectRatio{AspectSquare, AspectPortrait},
}

func newProcessingTask(t *testing.T) *GenerationTask {
	t.Helper()
	task, err := NewGenerationTask(uuid.New(), TaskKindTextToImage, GenerationInput{
		Prompt:      "a red fox",
		AspectRatio: AspectSquare,
	}, 20)
	require.NoError(t, err)
	return task
}

func TestNewGenerationTask(t *testing.T) {
	t.Parallel()

	task := newProcessingTask(t)
	assert.NotEqual(t, uuid.Nil, task.ID)
	assert.Equal(t, TaskStateProcessing, task.State)
	assert.Equal(t, 0, task.Progress)
	assert.Nil(t, task.ArtifactID)
	assert.Nil(t, task.Error)
	assert.False(t, task.IsTerminal())

	_, err := NewGenerationTask(uuid.Nil, TaskKindTextToImage, GenerationInput{}, 20)
	assert.ErrorIs(t, err, ErrEmptyOwnerID)

	_, err = NewGenerationTask(uuid.New(), TaskKind("sketch"), GenerationInput{}, 20)
	assert.ErrorIs(t, err, ErrInvalidTaskKind)

	_, err = NewGenerationTask(uuid.New(), TaskKindTextToImage, GenerationInput{}, 0)
	assert.ErrorIs(t, err, ErrInvalidCost)
}

func TestGenerationInputValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		kind   TaskKind
		input  GenerationInput
		fields []string
	}{
		{
			name:  "valid text",
			kind:  TaskKindTextToImage,
			input: GenerationInput{Prompt: "a red fox", AspectRatio: AspectSquare},
		},
		{
			name:  "valid image without prompt",
			kind:  TaskKindImageToImage,
			input: GenerationInput{ReferenceImage: "uploads/a.png", AspectRatio: AspectPortrait},
		},
		{
			name:   "empty prompt",
			kind:   TaskKindTextToImage,
			input:  GenerationInput{Prompt: "   ", AspectRatio: AspectSquare},
			fields: []string{"prompt"},
		},
		{
			name:   "prompt too long",
			kind:   TaskKindTextToImage,
			input:  GenerationInput{Prompt: "a fox in a very very long forest", AspectRatio: AspectSquare},
			fields: []string{"prompt"},
		},
		{
			name:   "missing reference image and bad ratio",
			kind:   TaskKindImageToImage,
			input:  GenerationInput{AspectRatio: AspectWide},
			fields: []string{"image", "aspect_ratio"},
		},
		{
			name:   "unknown ratio",
			kind:   TaskKindTextToImage,
			input:  GenerationInput{Prompt: "fox", AspectRatio: "2:1"},
			fields: []string{"aspect_ratio"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.input.Validate(tc.kind, testLimits)
			if len(tc.fields) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			for _, f := range tc.fields {
				assert.Contains(t, verr.Fields, f)
			}
			assert.Len(t, verr.Fields, len(tc.fields))
		})
	}
}

func TestApplyProgress(t *testing.T) {
	t.Parallel()

	task := newProcessingTask(t)
	now := time.Now()

	assert.True(t, task.ApplyProgress(10, now))
	assert.True(t, task.ApplyProgress(30, now))
	assert.False(t, task.ApplyProgress(20, now), "lower progress is ignored")
	assert.False(t, task.ApplyProgress(30, now), "duplicate progress is ignored")
	assert.Equal(t, 30, task.Progress)

	assert.True(t, task.ApplyProgress(100, now))
	assert.Equal(t, MaxProcessingProgress, task.Progress, "only completion reaches 100")

	require.NoError(t, task.Complete(uuid.New(), now))
	assert.False(t, task.ApplyProgress(50, now))
	assert.Equal(t, 100, task.Progress)
}

func TestTerminalTransitionsAreExactlyOnce(t *testing.T) {
	t.Parallel()

	now := time.Now()

	t.Run("complete then others", func(t *testing.T) {
		task := newProcessingTask(t)
		require.NoError(t, task.Complete(uuid.New(), now))
		assert.Equal(t, TaskStateCompleted, task.State)
		assert.Equal(t, 100, task.Progress)
		assert.NotNil(t, task.CompletedAt)

		assert.ErrorIs(t, task.Complete(uuid.New(), now), ErrAlreadyTerminal)
		assert.ErrorIs(t, task.Fail(TaskError{Code: TaskErrorStorage}, now), ErrAlreadyTerminal)
		assert.ErrorIs(t, task.Cancel(task.OwnerID, now), ErrAlreadyTerminal)
		assert.Equal(t, TaskStateCompleted, task.State)
		assert.NoError(t, task.Validate())
	})

	t.Run("cancel then complete", func(t *testing.T) {
		task := newProcessingTask(t)
		require.NoError(t, task.Cancel(task.OwnerID, now))
		assert.ErrorIs(t, task.Complete(uuid.New(), now), ErrAlreadyTerminal)
		assert.Equal(t, TaskStateCancelled, task.State)
		assert.Nil(t, task.ArtifactID)
		assert.True(t, task.Refundable())
	})

	t.Run("fail records descriptor", func(t *testing.T) {
		task := newProcessingTask(t)
		require.NoError(t, task.Fail(TaskError{Code: TaskErrorStorage, Message: "disk full"}, now))
		require.NotNil(t, task.Error)
		assert.Equal(t, TaskErrorStorage, task.Error.Code)
		assert.Equal(t, &now, task.FinishedAt())
		assert.NoError(t, task.Validate())
	})

	t.Run("cancel by non owner", func(t *testing.T) {
		task := newProcessingTask(t)
		assert.ErrorIs(t, task.Cancel(uuid.New(), now), ErrNotOwner)
		assert.Equal(t, TaskStateProcessing, task.State)
	})
}

func TestAspectRatioDimensions(t *testing.T) {
	w, h, ok := AspectPortrait.Dimensions()
	assert.True(t, ok)
	assert.Equal(t, 768, w)
	assert.Equal(t, 1024, h)

	_, _, ok = AspectRatio("5:4").Dimensions()
	assert.False(t, ok)
}
